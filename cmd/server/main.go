package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"PricePulse/internal/scrape"
	"PricePulse/internal/tracker"
	"PricePulse/pkg/kit"
)

func main() {
	app := "pricepulse"
	_ = godotenv.Load()

	log := kit.NewLogger(app)
	defer func() { _ = log.Sync() }()

	port := getenv("PORT", "8080")
	scrapeDelay := getenvDuration(log, "SCRAPE_DELAY", scrape.DefaultDelay)

	store := buildStore(log)

	s := &tracker.Server{
		Store:   store,
		Scraper: scrape.Simulator{Delay: scrapeDelay},
		Log:     log,
	}

	h := tracker.NewHandler(s, tracker.HTTPDeps{
		Log:            log,
		App:            app,
		Registry:       prometheus.NewRegistry(),
		MetricsEnabled: getenv("METRICS_ENABLED", "") == "true",
		MetricsToken:   getenv("METRICS_TOKEN", ""),
		SPAIndex:       getenv("SPA_INDEX", "web/index.html"),
	})

	if err := kit.RunHTTPServer(":"+port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

func buildStore(log *zap.Logger) tracker.Store {
	ctx := context.Background()

	switch driver := getenv("STORE_DRIVER", "memory"); driver {
	case "postgres":
		dsn := getenv("DATABASE_URL", "")
		if dsn == "" {
			log.Fatal("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			log.Fatal("open database", zap.Error(err))
		}
		store := tracker.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatal("ensure schema", zap.Error(err))
		}
		log.Info("using postgres store")
		return store

	case "memory":
		store := tracker.NewMemStore()
		if getenv("SEED_DEMO", "true") == "true" {
			if err := tracker.SeedDemo(ctx, store); err != nil {
				log.Fatal("seed demo data", zap.Error(err))
			}
			log.Info("seeded demo products")
		}
		return store

	default:
		log.Fatal("unknown STORE_DRIVER", zap.String("driver", driver))
		return nil
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvDuration(log *zap.Logger, k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatal("invalid duration", zap.String("var", k), zap.String("value", v))
	}
	return d
}
