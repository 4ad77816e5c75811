package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"deskbot.org/internal/config"
	"deskbot.org/internal/gateway"
	"deskbot.org/internal/kv"
	"deskbot.org/internal/kv/memory"
	"deskbot.org/internal/kv/pg"
	"deskbot.org/internal/membership"
	"deskbot.org/internal/obs"
	"deskbot.org/internal/opsapi"
	"deskbot.org/internal/platform/rest"
	"deskbot.org/internal/stream"
	"deskbot.org/internal/ticket"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// KV store: Postgres when a DSN is configured, otherwise in-memory.
	var store kv.Store
	var pgStore *pg.Store
	if cfg.PostgresDSN != "" {
		pgStore, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open kv store: %v", err)
		}
		store = pgStore
	} else {
		log.Println("DESKBOT_PG_DSN not set; state will not survive restarts")
		store = memory.New()
	}

	client := rest.New(cfg.PlatformBaseURL, cfg.PlatformToken)
	events := stream.New()

	memberReg := membership.NewRegistry(store)
	members := membership.NewController(client, memberReg, membership.Config{
		GuildID:      cfg.GuildID,
		LogChannelID: cfg.MembershipLogChannelID,
	}, events)
	defer members.Stop()

	ticketReg, err := ticket.NewRegistry(ctx, store)
	if err != nil {
		log.Fatalf("load ticket state: %v", err)
	}
	tickets := ticket.NewController(client, ticketReg, ticket.Config{
		GuildID:       cfg.GuildID,
		CategoryID:    cfg.TicketCategoryID,
		SupportRoleID: cfg.SupportRoleID,
		SeniorRoleID:  cfg.SeniorRoleID,
		FounderRoleID: cfg.FounderRoleID,
		LogChannelID:  cfg.TicketLogChannelID,
	}, events)

	// Expired memberships are settled before any new command is served.
	if err := members.ReconcileOnStart(ctx); err != nil {
		log.Fatalf("reconcile memberships: %v", err)
	}

	api := opsapi.New(opsapi.Options{
		Probe:       opsapi.ReadyProbe{Store: store},
		Version:     version,
		Stream:      events,
		Memberships: memberReg,
		Revoker:     members,
		Tickets:     ticketReg,
	})

	srv := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting deskbot %s (ops on %s)", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	dispatcher := gateway.New(client, client, tickets, members)
	if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("event loop: %v", err)
	}

	log.Println("Shutting down...")
	obs.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
