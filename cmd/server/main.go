package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"timebill/internal/handlers"
	"timebill/internal/storage"
)

func main() {
	// Emit monetary values as JSON numbers rather than quoted strings.
	decimal.MarshalJSONWithoutQuotes = true

	log := slog.Default()

	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfg, err := configFromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewDB(cfg.dbPath)
	if err != nil {
		log.Error("failed to open database", "error", err, "path", cfg.dbPath)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.CleanExpiredSessions(); err != nil {
		log.Warn("failed to clean expired sessions", "error", err)
	}

	h := handlers.NewHandlers(db, log, handlers.Config{
		SecureCookie: cfg.secureCookie,
		Currency:     cfg.currency,
		PaymentTerms: cfg.paymentTerms,
		TaxRate:      cfg.taxRate,
	})

	server := &http.Server{
		Addr:    cfg.addr,
		Handler: setupRouter(h),

		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("server started listening", "addr", cfg.addr, "db", cfg.dbPath)
	if err := server.ListenAndServe(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func setupRouter(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/api", h.Routes())
	return r
}

type config struct {
	addr         string
	dbPath       string
	secureCookie bool
	currency     string
	paymentTerms string
	taxRate      decimal.NullDecimal
}

func configFromEnv() (config, error) {
	cfg := config{
		addr:         envOr("ADDR", "localhost:8080"),
		dbPath:       envOr("DB_PATH", "timebill.db"),
		secureCookie: os.Getenv("SECURE_COOKIE") == "true",
		currency:     envOr("CURRENCY", "USD"),
		paymentTerms: envOr("PAYMENT_TERMS", "Net 30"),
	}

	if rate := os.Getenv("TAX_RATE"); rate != "" {
		parsed, err := decimal.NewFromString(rate)
		if err != nil {
			return cfg, fmt.Errorf("TAX_RATE must be a decimal fraction: %w", err)
		}
		if parsed.IsNegative() {
			return cfg, fmt.Errorf("TAX_RATE cannot be negative")
		}
		cfg.taxRate = decimal.NewNullDecimal(parsed)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
