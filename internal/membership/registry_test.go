package membership

import (
	"context"
	"testing"
	"time"

	"deskbot.org/internal/kv"
	"deskbot.org/internal/kv/memory"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestLoadEmptyStore(t *testing.T) {
	r := NewRegistry(memory.New())
	memberships, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(memberships) != 0 {
		t.Fatalf("expected empty set, got %v", memberships)
	}
}

func TestLoadMalformedData(t *testing.T) {
	store := memory.New()
	if err := store.Set(context.Background(), kv.KeyMemberships, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	r := NewRegistry(store)
	memberships, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load should not fail on malformed data: %v", err)
	}
	if len(memberships) != 0 {
		t.Fatalf("expected empty set, got %v", memberships)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	r := NewRegistry(memory.New())
	ctx := context.Background()
	in := []Membership{
		{UserID: "u1", GuildID: "g1", RoleID: "r1", ExpiresAt: ts("2026-09-01T00:00:00Z")},
		{UserID: "u2", GuildID: "g1", RoleID: "r2", ExpiresAt: nil},
	}
	if err := r.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if out[0].UserID != "u1" || out[0].ExpiresAt == nil || !out[0].ExpiresAt.Equal(*in[0].ExpiresAt) {
		t.Fatalf("first record mangled: %+v", out[0])
	}
	if out[1].ExpiresAt != nil {
		t.Fatalf("permanent record grew an expiry: %+v", out[1])
	}

	// save(load()) must be a no-op on contents
	if err := r.Save(ctx, out); err != nil {
		t.Fatalf("re-Save: %v", err)
	}
	again, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("re-Load: %v", err)
	}
	if len(again) != len(out) {
		t.Fatalf("round trip changed length: %d != %d", len(again), len(out))
	}
	for i := range again {
		if again[i].UserID != out[i].UserID || again[i].RoleID != out[i].RoleID || again[i].GuildID != out[i].GuildID {
			t.Fatalf("round trip changed record %d: %+v != %+v", i, again[i], out[i])
		}
	}
}

func TestAddReplacesSamePair(t *testing.T) {
	r := NewRegistry(memory.New())
	ctx := context.Background()

	if err := r.Add(ctx, Membership{UserID: "u1", GuildID: "g1", RoleID: "r1", ExpiresAt: ts("2026-09-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(ctx, Membership{UserID: "u1", GuildID: "g1", RoleID: "r1", ExpiresAt: ts("2026-10-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}

	memberships, _ := r.Load(ctx)
	if len(memberships) != 1 {
		t.Fatalf("duplicates accumulated: %v", memberships)
	}
	if !memberships[0].ExpiresAt.Equal(*ts("2026-10-01T00:00:00Z")) {
		t.Fatalf("newest record should win: %+v", memberships[0])
	}
}

func TestRemoveIdempotent(t *testing.T) {
	r := NewRegistry(memory.New())
	ctx := context.Background()
	if err := r.Add(ctx, Membership{UserID: "u1", GuildID: "g1", RoleID: "r1", ExpiresAt: ts("2026-09-01T00:00:00Z")}); err != nil {
		t.Fatal(err)
	}

	if err := r.Remove(ctx, "u1", "r1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := r.Remove(ctx, "u1", "r1"); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
	if err := r.Remove(ctx, "ghost", "r9"); err != nil {
		t.Fatalf("removing absent pair should be a no-op: %v", err)
	}

	memberships, _ := r.Load(ctx)
	if len(memberships) != 0 {
		t.Fatalf("expected empty set, got %v", memberships)
	}
}
