package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/crawlpace/crawlpace/internal/config"
)

const driverLibsql = "libsql"

// Store persists throttle events and pacing snapshots. Nothing on the
// admission path reads from it.
type Store struct {
	DB     *sql.DB
	driver string
}

// dataSource is a resolved libsql connection string. Local sources are
// single-file databases that get WAL and a busy timeout.
type dataSource struct {
	dsn   string
	local bool
}

// Open connects to the configured history database.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = driverLibsql
	}
	if driver != driverLibsql {
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	src, err := resolveDataSource(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverLibsql, src.dsn)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if err := prepare(ctx, db, src); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db, driver: driver}, nil
}

func prepare(ctx context.Context, db *sql.DB, src dataSource) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history store: %w", err)
	}
	if !src.local {
		return nil
	}

	// Event writes come from many crawl workers; one connection plus a
	// busy timeout serializes them instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	pragmas := []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"}
	for _, pragma := range pragmas {
		var result any
		if err := db.QueryRowContext(ctx, pragma).Scan(&result); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// CheckHealth pings the database.
func (s *Store) CheckHealth(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("history store not open")
	}
	return s.DB.PingContext(ctx)
}

func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// resolveDataSource turns the store settings into a libsql DSN. A remote
// url wins over a path; bare paths become file: DSNs and get their parent
// directory created.
func resolveDataSource(cfg config.StoreConfig) (dataSource, error) {
	if remote := strings.TrimSpace(cfg.URL); remote != "" {
		dsn, err := withAuthToken(remote, cfg.AuthToken)
		return dataSource{dsn: dsn}, err
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return dataSource{}, errors.New("store path or url is required")
	case path == ":memory:", strings.HasPrefix(path, "libsql:"):
		return dataSource{dsn: path}, nil
	case strings.HasPrefix(path, "file:"):
		u, err := url.Parse(path)
		if err != nil {
			return dataSource{}, fmt.Errorf("invalid store path: %w", err)
		}
		local := u.Path
		if local == "" {
			local = u.Opaque
		}
		if err := mkdirParent(strings.TrimPrefix(local, "//")); err != nil {
			return dataSource{}, err
		}
		return dataSource{dsn: path, local: true}, nil
	default:
		if err := mkdirParent(path); err != nil {
			return dataSource{}, err
		}
		return dataSource{dsn: "file:" + filepath.Clean(path), local: true}, nil
	}
}

func withAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	q := u.Query()
	if q.Get("authToken") == "" {
		q.Set("authToken", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func mkdirParent(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if path == "" || dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- shared data directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
