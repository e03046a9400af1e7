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

	"github.com/avast/retry-go/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meditrack/coldchain/internal/access"
	"github.com/meditrack/coldchain/internal/audit"
	"github.com/meditrack/coldchain/internal/gateway"
	"github.com/meditrack/coldchain/internal/handler"
	"github.com/meditrack/coldchain/internal/infra"
	"github.com/meditrack/coldchain/internal/infra/auth"
	"github.com/meditrack/coldchain/internal/insurance"
	"github.com/meditrack/coldchain/internal/registry"
	"github.com/meditrack/coldchain/internal/repository/postgres"
	"github.com/meditrack/coldchain/internal/server"
	"github.com/meditrack/coldchain/internal/treasury"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин.
	// При завершении main() или срабатывании SIGTERM, cancel() остановит слушателей
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	repo, err := postgres.NewRepo(cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal("failed to open postgres pool", zap.Error(err))
	}
	defer repo.Close()

	// База может стартовать дольше сервиса (docker-compose) — пингуем с ретраями
	pinger := retry.New(
		retry.Context(appCtx),
		retry.Attempts(10),
		retry.Delay(time.Second),
	)
	if err := pinger.Do(func() error { return repo.Ping(appCtx) }); err != nil {
		logger.Fatal("postgres is unreachable", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(appCtx).Err(); err != nil {
		logger.Fatal("redis is unreachable", zap.Error(err))
	}

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)

	// Экспортируем метрики для Prometheus на отдельном порту
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	// 3. Журнал аудита: события летят в Postgres пачками
	recorder := audit.NewRecorder(repo, logger, cfg.Audit.BufferSize, cfg.Audit.FlushInterval)
	recorder.Start()
	defer recorder.Stop()

	// 4. Control Plane: роли, пауза, синхронизация реплик через Redis
	acl := access.NewControl(repo, rdb, recorder, logger, cfg.Auth.AdminActor)
	if err := acl.Warmup(appCtx); err != nil {
		logger.Fatal("failed to warm up access control", zap.Error(err))
	}
	acl.StartListeners(appCtx)

	// 5. Доменные компоненты. RAM-таблицы — источник правды,
	// Postgres — write-through хранилище для рестартов.
	shipments := registry.NewShipmentRegistry(acl, repo, recorder, logger, metrics, cfg.Shipping)
	if err := shipments.Warmup(appCtx); err != nil {
		logger.Fatal("failed to warm up shipment registry", zap.Error(err))
	}

	// Платежный шлюз: мок процессора за Circuit Breaker и лимитером
	fundGateway := gateway.NewProtectedGateway(&gateway.MockProcessor{}, cfg.Treasury, metrics, logger)

	funds := treasury.New(acl, fundGateway, repo, recorder, logger, metrics)
	if err := funds.Warmup(appCtx); err != nil {
		logger.Fatal("failed to warm up treasury", zap.Error(err))
	}

	policies := insurance.NewPolicyRegistry(shipments, funds, acl, repo, recorder, logger, metrics)
	if err := policies.Warmup(appCtx); err != nil {
		logger.Fatal("failed to warm up policy registry", zap.Error(err))
	}

	// 6. Аутентификация: RS256, личность в токене, права в таблице ролей
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse public key", zap.Error(err))
	}
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to parse private key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(publicKey)
	tokens := auth.NewTokenService(repo, privateKey, cfg.Auth.TokenTTL)

	// 7. HTTP-поверхность
	api := server.NewAPIServer(
		cfg,
		logger,
		validator,
		handler.NewAuthHandler(tokens),
		handler.NewShipmentHandler(shipments),
		handler.NewInsuranceHandler(policies),
		handler.NewTreasuryHandler(funds),
		handler.NewAccessHandler(acl),
		handler.NewAuditHandler(repo),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("coldchain api started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("coldchain api stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("coldchain api exited properly")
}
