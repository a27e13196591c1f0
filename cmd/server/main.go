package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warden/internal/admin"
	"warden/internal/api"
	"warden/internal/conflicts"
	"warden/internal/config"
	"warden/internal/db"
	"warden/internal/events"
	"warden/internal/feed"
	"warden/internal/middleware"
	"warden/internal/notify"
	"warden/internal/registry"
	"warden/internal/rules"
	"warden/internal/tokens"
	"warden/internal/version"
)

func main() {
	cfg := config.Load()

	if err := db.Init(cfg.DBPath); err != nil {
		log.Fatalf("❌ Database init failed: %v", err)
	}
	defer db.DB.Close()
	fmt.Printf("✅ Database connected (%s)\n", cfg.DBPath)

	if err := conflicts.EnsureSeeded(db.DB); err != nil {
		log.Fatalf("❌ Blacklist seed failed: %v", err)
	}
	admin.EnsureDefaultAdmin(db.DB, cfg)

	bus := events.NewBus()
	registry.Bus = bus
	conflicts.Bus = bus

	dispatcher := notify.NewDispatcher(cfg.NotifyURL, bus, nil, events.SeverityWarning)
	dispatcher.Start()
	defer dispatcher.Stop()

	hub := feed.NewHub(bus)
	defer hub.CloseAll()

	tokens.Enabled = cfg.AuthEnabled
	if !cfg.AuthEnabled {
		log.Println("⚠️  Token authentication is DISABLED")
	}

	ttl := time.Duration(cfg.TokenTTLDays) * 24 * time.Hour
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	handler := api.NewMux(func(mux *http.ServeMux) {
		tokens.RegisterRoutes(mux, ttl, authLimiter.Limit)
		rules.RegisterRoutes(mux, tokens.RequireToken)
		registry.RegisterRoutes(mux, tokens.RequireToken)
		conflicts.RegisterRoutes(mux, tokens.RequireToken)
		hub.RegisterRoutes(mux, tokens.RequireToken)
	})

	stopMaintenance := startMaintenance(cfg.LogRetentionDays)
	defer close(stopMaintenance)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		fmt.Printf("Warden server %s listening on port %s...\n", version.Version, cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Shutdown error: %v", err)
	}
}

// startMaintenance runs hourly cleanup of expired tokens and aged
// audit entries until the returned channel is closed.
func startMaintenance(retentionDays int) chan struct{} {
	stop := make(chan struct{})
	ticker := time.NewTicker(time.Hour)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := tokens.CleanupExpired(db.DB); err != nil {
					log.Printf("⚠️  Token cleanup failed: %v", err)
				} else if n > 0 {
					log.Printf("🧹 Removed %d expired tokens", n)
				}
				if n, err := registry.CleanupLogs(db.DB, retentionDays); err != nil {
					log.Printf("⚠️  Log cleanup failed: %v", err)
				} else if n > 0 {
					log.Printf("🧹 Removed %d aged management log entries", n)
				}
			case <-stop:
				return
			}
		}
	}()
	return stop
}
