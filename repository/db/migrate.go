package db

import (
	"fmt"

	"yamdb/internal/domain/errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migration applies every pending migration found under migratePath.
func Migration(dsn, migratePath string) error {
	if dsn == "" {
		return errors.New("пустая строка подключения к базе данных")
	}
	if migratePath == "" {
		return errors.New("не указан путь к миграциям")
	}

	m, err := migrate.New("file://"+migratePath, dsn)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
