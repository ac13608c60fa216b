// Package checkpoint provisions the durable backend for the reasoning
// engine's conversation state. The core only sets the schema up and
// hands the engine a ready handle; it never interprets the contents.
package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds connection settings for the checkpoint database.
type Config struct {
	Host           string
	Port           string
	DBName         string
	User           string
	Password       string
	ConnectOptions string
}

// DSN assembles the Postgres connection URL. Connect options are
// percent-encoded because libpq parses "options" as a nested key=value
// string.
func (c Config) DSN() string {
	dsn := fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=require",
		c.User, c.Password, c.Host, c.Port, c.DBName)
	if c.ConnectOptions != "" {
		dsn += "&options=" + strings.ReplaceAll(c.ConnectOptions, "=", "%3D")
	}
	return dsn
}

// Turn is one entry in a session's checkpoint timeline. The timeline is
// append-only and addressed solely by session key.
type Turn struct {
	ID         uint      `gorm:"primaryKey"`
	SessionKey string    `gorm:"size:128;index:idx_turns_session_key;not null"`
	Role       string    `gorm:"size:32;not null"`
	Content    string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName pins the table name so schema setup stays stable across
// gorm naming-strategy changes.
func (Turn) TableName() string {
	return "checkpoint_turns"
}

// Store owns the checkpoint database handle and its one-time schema
// setup.
type Store struct {
	db        *gorm.DB
	setupOnce sync.Once
	setupErr  error
}

// NewPostgres opens the shared checkpoint connection pool. Schema setup
// is deferred until first use (EnsureSchema).
func NewPostgres(cfg Config) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access checkpoint connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// New wraps an already-open gorm handle. Used by tests and embedded
// deployments that bring their own database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema performs idempotent schema setup, at most once per
// process even under concurrent first calls. A setup failure is
// remembered and returned on every subsequent call rather than
// silently retried.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.setupOnce.Do(func() {
		if err := s.db.WithContext(ctx).AutoMigrate(&Turn{}); err != nil {
			s.setupErr = fmt.Errorf("migrate checkpoint schema: %w", err)
		}
	})
	return s.setupErr
}

// AppendTurn records one turn in a session's timeline. Schema setup is
// lazy on first use.
func (s *Store) AppendTurn(ctx context.Context, sessionKey, role, content string) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	turn := Turn{SessionKey: sessionKey, Role: role, Content: content}
	if err := s.db.WithContext(ctx).Create(&turn).Error; err != nil {
		return fmt.Errorf("append checkpoint turn: %w", err)
	}
	return nil
}

// History returns the session's timeline in insertion order.
func (s *Store) History(ctx context.Context, sessionKey string) ([]Turn, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	var turns []Turn
	err := s.db.WithContext(ctx).
		Where("session_key = ?", sessionKey).
		Order("id").
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("load checkpoint history: %w", err)
	}
	return turns, nil
}

// Ping verifies checkpoint database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("access checkpoint connection pool: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("access checkpoint connection pool: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close checkpoint database: %w", err)
	}
	return nil
}
