package board

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"metaverse/internal/pkg/logx"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// postgresStore keeps one row per room in board_snapshots.
type postgresStore struct {
	pool *pgxpool.Pool
}

// newPostgresStore connects a pool and applies pending migrations.
func newPostgresStore(ctx context.Context, dsn string) (*postgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := runMigrations(sqlDB); err != nil {
		pool.Close()
		return nil, err
	}

	return &postgresStore{pool: pool}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logx.Info("Board migrations applied")
	return nil
}

func (s *postgresStore) Load(ctx context.Context, roomKey string) ([]byte, error) {
	var content []byte
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM board_snapshots WHERE room_key = $1`,
		roomKey,
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", roomKey, err)
	}
	return content, nil
}

func (s *postgresStore) Save(ctx context.Context, roomKey string, content []byte) error {
	if err := checkSize(content); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO board_snapshots (room_key, content, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (room_key) DO UPDATE
		 SET content = EXCLUDED.content, updated_at = NOW()`,
		roomKey, content,
	)
	if err != nil {
		return fmt.Errorf("save board %s: %w", roomKey, err)
	}
	return nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
