package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corebank/backend/internal/audit"
	"github.com/corebank/backend/internal/auth"
	"github.com/corebank/backend/internal/config"
	"github.com/corebank/backend/internal/database"
	"github.com/corebank/backend/internal/handlers"
	"github.com/corebank/backend/internal/hsm"
	"github.com/corebank/backend/internal/ledger"
	"github.com/corebank/backend/internal/otp"
	"github.com/corebank/backend/internal/token"
	"github.com/corebank/backend/internal/vault"
)

const purgeInterval = time.Hour

func main() {
	// Initialize config
	config.Init(".env")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := database.Open(database.GetConfig())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	hasher := auth.NewHasher(cfg.Argon2)
	if cfg.SeedData {
		if err := database.Seed(ctx, db, hasher.Hash); err != nil {
			log.Fatalf("Failed to seed database: %v", err)
		}
	}

	cipher, err := hsm.New(hsm.Config{
		MasterKey: cfg.CipherMasterKey,
		Salt:      []byte(cfg.CipherSalt),
	})
	if err != nil {
		log.Fatalf("Failed to initialize cipher: %v", err)
	}

	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()

	var revocations auth.Revocations
	if redisClient := database.InitRedis(); redisClient != nil {
		defer redisClient.Close()
		revocations = auth.NewRedisRevocations(redisClient)
	} else {
		store := auth.NewSQLRevocations(db, cfg.QueryTimeout)
		go purgeRevocations(purgeCtx, store)
		revocations = store
	}

	recorder := audit.Multi(audit.NewDBSink(db, 2*time.Second), audit.NewLogSink())

	tokens := token.NewService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authService := auth.NewService(db, tokens, hasher, revocations, recorder, cfg.QueryTimeout)
	codes := otp.NewService(db, otp.Config{
		CodeLength:   cfg.OTPLength,
		CodeTimeout:  cfg.OTPTTL,
		QueryTimeout: cfg.QueryTimeout,
	})
	engine := ledger.NewEngine(db, codes, vault.New(cipher), recorder, cfg.QueryTimeout)

	router := handlers.NewRouter(handlers.RouterConfig{
		Auth:           handlers.NewAuthHandler(authService, codes, recorder),
		Bank:           handlers.NewBankHandler(engine, recorder),
		Authenticator:  authService,
		Audit:          recorder,
		DB:             db,
		RequestTimeout: 60 * time.Second,
	})

	// Start server
	server := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopPurge()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

// purgeRevocations drops expired revocations from the SQL store.
func purgeRevocations(ctx context.Context, store *auth.SQLRevocations) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Purge(ctx)
			if err != nil {
				log.Printf("[AUTH] Failed to purge expired revocations: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[AUTH] Purged %d expired revocations", n)
			}
		}
	}
}
