package repository

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
)

// DatabaseConfig - параметры подключения, из которых собирается DSN
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c DatabaseConfig) DSN() string {
	return c.dsnFor(c.Name)
}

func (c DatabaseConfig) dsnFor(name string) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, name, c.SSLMode,
	)
}

// URL возвращает адрес в формате, который понимает golang-migrate
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// ConnectWithRetry создает базу при необходимости и подключается к ней с повторами
func ConnectWithRetry(cfg DatabaseConfig, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	logger := slog.Default().With("component", "db")

	if err := ensureDatabase(cfg, logger); err != nil {
		return nil, err
	}

	var (
		db  *sqlx.DB
		err error
	)
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", cfg.DSN())
		if err == nil {
			db.SetMaxOpenConns(maxOpenConns)
			db.SetMaxIdleConns(maxIdleConns)
			db.SetConnMaxLifetime(connMaxLifetime)
			return db, nil
		}

		logger.Warn("failed to connect to database", "attempt", i+1, "max_attempts", maxAttempts, "error", err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func ensureDatabase(cfg DatabaseConfig, logger *slog.Logger) error {
	// Системная база postgres существует всегда
	pgDB, err := sqlx.Connect("postgres", cfg.dsnFor("postgres"))
	if err != nil {
		logger.Warn("cannot reach postgres maintenance database, skipping create", "error", err)
		return nil
	}
	defer pgDB.Close()

	var exists bool
	if err := pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name); err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}
	if exists {
		return nil
	}

	logger.Info("database does not exist, creating", "name", cfg.Name)
	if _, err := pgDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(cfg.Name)); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	return nil
}
