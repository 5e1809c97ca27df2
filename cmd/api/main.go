package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tutorme-platform/internal/audit"
	"tutorme-platform/internal/auth"
	"tutorme-platform/internal/calltransport"
	"tutorme-platform/internal/config"
	"tutorme-platform/internal/lesson"
	"tutorme-platform/internal/payment"
	"tutorme-platform/internal/rating"
	"tutorme-platform/internal/session"
	"tutorme-platform/internal/transcription"
	"tutorme-platform/pkg/logger"
	"tutorme-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	lessons := lesson.NewPostgresStore(db)
	ratings := rating.NewService(rating.NewPostgresRepo(db))
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	transport := calltransport.NewJitsiTransport(cfg.Jitsi.Domain)

	var channel transcription.Channel
	if cfg.Transcribe.SocketURL != "" {
		sock := transcription.NewSocketChannel(cfg.Transcribe.SocketURL, log)
		if err := sock.Connect(rootCtx); err != nil {
			log.Warn("transcription service unreachable, notes disabled", "err", err)
		}
		defer sock.Close()
		channel = sock
	} else {
		log.Warn("TRANSCRIBE_WS_URL not set, transcription disabled")
		channel = transcription.NewMemoryChannel()
	}

	gateway := payment.NewPayChanguGateway(cfg.Payment)
	results := payment.NewResultMux()

	sessions := session.NewManager(session.Config{
		Lessons:        lessons,
		Ratings:        ratings,
		Transport:      transport,
		Channel:        channel,
		Gateway:        gateway,
		Results:        results,
		Audit:          auditSvc,
		Log:            log,
		RatingDelay:    500 * time.Millisecond,
		NavigateDelay:  3 * time.Second,
		LessonsListURL: "/mylessons",
		Currency:       cfg.Payment.Currency,
	}, &session.RedisLocker{RDB: rdb})

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	webhook := &payment.WebhookHandler{
		Mux: results,
		Log: log,
		Dedupe: func(c *gin.Context, key string, ttl time.Duration) (bool, error) {
			return utils.MarkOnce(c.Request.Context(), rdb, key, ttl)
		},
	}

	registerRoutes(r, auth.RequireAccessToken(authManager), httpDeps{
		auth:     authManager,
		sessions: sessions,
		webhook:  webhook,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
