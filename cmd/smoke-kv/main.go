package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"deskbot.org/internal/kv/pg"
)

// Smoke test for the durable KV store: write, read back, delete, verify.
// Points at a real Postgres; run it against staging, never production.
func main() {
	dsn := os.Getenv("DESKBOT_PG_DSN")
	if dsn == "" {
		log.Fatal("DESKBOT_PG_DSN is required")
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open kv store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}

	key := fmt.Sprintf("smoke-%d", rand.Int())
	want := []byte(`{"smoke":true}`)

	if err := store.Set(ctx, key, want); err != nil {
		log.Fatalf("set: %v", err)
	}
	got, ok, err := store.Get(ctx, key)
	if err != nil {
		log.Fatalf("get: %v", err)
	}
	if !ok || !bytes.Equal(got, want) {
		log.Fatalf("readback mismatch: ok=%v value=%s", ok, got)
	}

	// Overwrite must replace, not append.
	want2 := []byte(`{"smoke":true,"round":2}`)
	if err := store.Set(ctx, key, want2); err != nil {
		log.Fatalf("overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, key)
	if err != nil || !ok || !bytes.Equal(got, want2) {
		log.Fatalf("overwrite readback mismatch: ok=%v err=%v value=%s", ok, err, got)
	}

	if err := store.Delete(ctx, key); err != nil {
		log.Fatalf("delete: %v", err)
	}
	if _, ok, err = store.Get(ctx, key); err != nil || ok {
		log.Fatalf("key survived delete: ok=%v err=%v", ok, err)
	}

	fmt.Printf("✅ kv smoke test passed: key=%s\n", key)
}
