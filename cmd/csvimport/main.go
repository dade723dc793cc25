// Command csvimport fills a PostgreSQL database with the CSV demo data set.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"yamdb/internal/fixtures"
	"yamdb/internal/server"
	db "yamdb/repository/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("csvimport", flag.ExitOnError)
	dir := fs.String("dir", "static/data", "папка с CSV файлами")
	dsn := fs.String("dbdsn", os.Getenv("DB_STR"), "DSN для подключения к базе данных")
	migratePath := fs.String("migratepath", "migrations", "путь к папке с миграциями")
	logLevel := fs.String("loglevel", "info", "уровень логирования")
	_ = fs.Parse(os.Args[1:])

	logger := server.NewLogger(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *dsn, *migratePath, *dir, logger); err != nil {
		logger.Error("импорт не выполнен", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dsn, migratePath, dir string, logger *slog.Logger) error {
	if err := db.Migration(dsn, migratePath); err != nil {
		return err
	}
	store, err := db.NewStorage(dsn, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := fixtures.NewLoader(store, logger).Load(ctx, dir)
	if err != nil {
		return err
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	logger.Info("импорт завершен", "files", len(stats), "rows", total)
	return nil
}
