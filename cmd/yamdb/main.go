package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yamdb/internal/mail"
	"yamdb/internal/metrics"
	"yamdb/internal/ratelimit"
	"yamdb/internal/server"
	db "yamdb/repository/db"
	inmemory "yamdb/repository/inmemory"
)

const shutdownTimeout = 30 * time.Second

type storage interface {
	server.Repository
	Close()
}

func main() {
	cfg, err := server.ReadConfig()
	if err != nil {
		slog.Error("ошибка чтения конфигурации", "error", err)
		os.Exit(2)
	}
	logger := server.NewLogger(cfg.LogLevel)
	logger.Info("запуск сервиса YaMDb", "addr", cfg.ListenAddr(), "storage", cfg.Storage)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("сервис остановлен с ошибкой", "error", err)
		os.Exit(1)
	}
	logger.Info("сервис завершен")
}

func run(ctx context.Context, cfg *server.Config, logger *slog.Logger) error {
	repo, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}

	deps := server.Deps{Mailer: mailer, Metrics: metrics.New(), Logger: logger}
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.RateLimit, cfg.RateWindow.Duration)
		if err != nil {
			return err
		}
		defer limiter.Close()
		deps.Limiter = limiter
		logger.Info("ограничение частоты запросов включено", "limit", cfg.RateLimit, "window", cfg.RateWindow.String())
	}

	api, err := server.NewAPI(repo, cfg, deps)
	if err != nil {
		return err
	}
	return serve(ctx, api, logger)
}

// openStorage prefers PostgreSQL. Migrations must apply; only a failed pool
// connection afterwards falls back to memory.
func openStorage(cfg *server.Config, logger *slog.Logger) (storage, error) {
	if cfg.Storage == server.StorageMemory {
		logger.Info("используется хранилище в памяти")
		return inmemory.NewStorage(), nil
	}

	if err := db.Migration(cfg.DBStr, cfg.MigratePath); err != nil {
		return nil, fmt.Errorf("применение миграций: %w", err)
	}
	logger.Info("миграции применены успешно")

	dbStorage, err := db.NewStorage(cfg.DBStr, logger)
	if err != nil {
		logger.Warn("не удалось подключиться к БД, используем память", "error", err)
		return inmemory.NewStorage(), nil
	}
	return dbStorage, nil
}

func newMailer(cfg *server.Config, logger *slog.Logger) (mail.Sender, error) {
	if cfg.Mail.Host == "" {
		logger.Info("SMTP не настроен, письма пишутся в лог")
		return mail.NewLogSender(logger), nil
	}
	return mail.NewSMTPSender(cfg.Mail)
}

type apiServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serve blocks until the server fails or ctx is cancelled, then drains open
// connections within shutdownTimeout.
func serve(ctx context.Context, api apiServer, logger *slog.Logger) error {
	serverErr := make(chan error, 1)
	go func() {
		if err := api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, начинаем graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("graceful shutdown выполнен успешно")
	return nil
}
