package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/Skotchmaster/auth_platform/internal/audit"
	"github.com/Skotchmaster/auth_platform/internal/config"
	"github.com/Skotchmaster/auth_platform/internal/httpserver"
	"github.com/Skotchmaster/auth_platform/internal/limiter"
	"github.com/Skotchmaster/auth_platform/internal/logging"
	"github.com/Skotchmaster/auth_platform/internal/middleware"
	"github.com/Skotchmaster/auth_platform/internal/repo"
	"github.com/Skotchmaster/auth_platform/internal/service"
	"github.com/Skotchmaster/auth_platform/internal/tokens"
	"github.com/labstack/echo/v4"
)

func main() {
	cfg := config.Load()
	config.MustNonEmptyBytes(cfg.SecretKey, "SECRET_KEY")
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")

	logger := logging.New(cfg.LogLevel, cfg.ServiceName)
	ctx := logging.IntoContext(context.Background(), logger)

	policy, err := limiter.ParsePolicy(cfg.SessionLimitPolicy)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := config.InitDB(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	gormRepo := &repo.GormRepo{DB: db}

	var sinks audit.Multi
	var kafkaPublisher *audit.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher = audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, kafkaPublisher)
	}
	adminHTTP := &httpserver.AdminHTTP{Cfg: &cfg}
	if cfg.ESURL != "" {
		esClient, err := audit.NewESClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			log.Fatalf("elasticsearch init error: %v", err)
		}
		sinks = append(sinks, &audit.ESIndexer{Client: esClient, Index: cfg.ESIndex})
		adminHTTP.ES = esClient
	}

	svc := &service.AuthService{
		Repo:       gormRepo,
		Codec:      &tokens.Codec{Secret: cfg.SecretKey, Issuer: cfg.Issuer},
		Limiter:    limiter.New(gormRepo, cfg.MaxSessionsPerSubject, policy),
		Audit:      sinks,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}
	adminHTTP.Svc = svc

	e := echo.New()
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), logger)))
			return next(c)
		}
	})

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:  &httpserver.AuthHTTP{Svc: svc},
		AdminHandler: adminHTTP,
		Auth:         middleware.NewAuth(svc),
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.ServerPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka close", "error", err)
		}
	}
}
