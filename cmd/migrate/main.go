package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"tutorme-platform/internal/config"
	"tutorme-platform/pkg/logger"
	"tutorme-platform/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	dir := flag.String("dir", "migrations", "directory with migration files")
	down := flag.Bool("down", false, "roll back the most recent migration instead of applying")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	ctx := context.Background()
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Error("goose dialect", "err", err)
		os.Exit(1)
	}

	if *down {
		if err := goose.DownContext(ctx, db, *dir); err != nil {
			log.Error("rollback failed", "err", err)
			os.Exit(1)
		}
		log.Info("rolled back one migration")
		return
	}

	if err := goose.UpContext(ctx, db, *dir); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		log.Error("get version", "err", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "version", version)
}
