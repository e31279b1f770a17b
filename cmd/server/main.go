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

	"farmtech/backend/internal/cache"
	"farmtech/backend/internal/config"
	"farmtech/backend/internal/events"
	"farmtech/backend/internal/httpapi"
	"farmtech/backend/internal/identity"
	"farmtech/backend/internal/service"
	"farmtech/backend/internal/store"
	"farmtech/backend/internal/store/memory"
	pgstore "farmtech/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("postgres migration failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	opts := []service.Option{
		service.WithCheckoutRetries(cfg.CheckoutRetries),
	}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-process idempotency and locks", err)
			opts = append(opts, service.WithIdempotency(nil, cfg.IdempotencyTTL))
		} else {
			opts = append(opts, service.WithIdempotency(redisCache, cfg.IdempotencyTTL), service.WithLocker(redisCache))
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		opts = append(opts, service.WithIdempotency(nil, cfg.IdempotencyTTL))
		log.Println("cache: in-process")
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, 256)
		publisher.Start()
		opts = append(opts, service.WithPublisher(publisher))
		closers = append([]func() error{publisher.Close}, closers...)
		log.Printf("events: kafka topic %s", cfg.KafkaTopic)
	} else {
		log.Println("events: disabled")
	}

	svc := service.New(repo, opts...)
	directory := identity.NewDirectory(repo, svc)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, directory)

	if len(os.Args) > 1 && os.Args[1] == "token" {
		err := issueToken(ctx, directory, auth, os.Args[2:])
		closeAll(closers)
		if err != nil {
			log.Fatalf("token: %v", err)
		}
		return
	}

	api := httpapi.New(svc, directory, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	go svc.RunStaleReviser(runCtx, cfg.StaleReviseInterval)

	go func() {
		log.Printf("FarmTech backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopWorkers()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	closeAll(closers)
	log.Println("server stopped")
}

func closeAll(closers []func() error) {
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}
}

// issueToken prints a bearer token for an existing staff member. Operators
// use it in place of a login flow.
func issueToken(ctx context.Context, directory *identity.Directory, auth *httpapi.AuthManager, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: server token <staff-id>")
	}
	staff, err := directory.Staff(ctx, args[0])
	if err != nil {
		return err
	}
	token, expiresAt, err := auth.Issue(staff)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n# %s (%s), expires %s\n", token, staff.Name, staff.Role, expiresAt.Format(time.RFC3339))
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AccessTokenTTL > 24*time.Hour {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must not exceed one day")
	}
	return nil
}
