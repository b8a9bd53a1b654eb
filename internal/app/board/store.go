/*
Package board persists the latest whiteboard snapshot of each room so that a room
recreated after going idle starts from the board its members left behind.

Content is opaque here: it is the compressed edit payload exactly as clients sent
it. Three backends are available, chosen by Config.Driver: an in-process map, a
PostgreSQL table and an S3-compatible bucket.
*/
package board

import (
	"context"
	"errors"
	"fmt"
)

// MaxContentBytes bounds one stored snapshot.
const MaxContentBytes = 512 << 10

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

var (
	// ErrNotFound is returned by Load when a room has no saved board.
	ErrNotFound = errors.New("board not found")

	// ErrTooLarge is returned by Save for content above MaxContentBytes.
	ErrTooLarge = errors.New("board content too large")
)

// Store loads and saves board snapshots keyed by room key ("<type>/<id>").
type Store interface {
	Load(ctx context.Context, roomKey string) ([]byte, error)
	Save(ctx context.Context, roomKey string, content []byte) error
	Close() error
}

// Config selects and configures a Store.
type Config struct {
	Driver string

	DatabaseDSN string

	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Open is the factory for Store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverPostgres:
		s, err := newPostgresStore(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverS3:
		s, err := newS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown board store driver %q", cfg.Driver)
	}
}

func checkSize(content []byte) error {
	if len(content) > MaxContentBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(content))
	}
	return nil
}
