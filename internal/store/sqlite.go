package store

import (
	"context"
	"database/sql"
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/agrilocal/advisory-aggregation/internal/advisory"
	"github.com/agrilocal/advisory-aggregation/internal/clock"
)

// SQLiteCache is a cache backend that survives restarts.
// Payloads are gob-encoded so value types survive the round trip.
type SQLiteCache struct {
	readDB  *sql.DB
	writeDB *sql.DB
	clock   clock.Clock
}

// OpenSQLite opens (or creates) the cache database at dbPath.
func OpenSQLite(dbPath string, clk clock.Clock) (*SQLiteCache, error) {
	if clk == nil {
		clk = clock.SystemUTC{}
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	c := &SQLiteCache{readDB: readDB, writeDB: writeDB, clock: clk}
	if err := c.init(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// schemaVersion is bumped whenever the row encoding changes. Cached rows are
// disposable, so an older table is dropped rather than migrated.
const schemaVersion = 2

func init() {
	// Payload values are stored as interfaces; nested containers need registering.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(advisory.Payload{})
	gob.Register(time.Time{})
}

func (c *SQLiteCache) init() error {
	var version int
	if err := c.writeDB.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version < schemaVersion {
		if _, err := c.writeDB.Exec(`DROP TABLE IF EXISTS advisory_cache`); err != nil {
			return fmt.Errorf("dropping stale cache table: %w", err)
		}
	}

	_, err := c.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS advisory_cache (
			key         TEXT PRIMARY KEY,
			capability  TEXT NOT NULL,
			provider    TEXT NOT NULL DEFAULT '',
			produced_at INTEGER NOT NULL,
			payload     BLOB,
			degraded    INTEGER NOT NULL DEFAULT 0,
			error_kind  TEXT NOT NULL DEFAULT '',
			message     TEXT NOT NULL DEFAULT '',
			expires_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_advisory_cache_expires ON advisory_cache(expires_at);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	if _, err := c.writeDB.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("writing schema version: %w", err)
	}
	return nil
}

func encodePayload(p advisory.Payload) ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePayload(data []byte) (advisory.Payload, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var p advisory.Payload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, err
	}
	return p, nil
}

// Close releases both database handles.
func (c *SQLiteCache) Close() error {
	var errs []error
	if c.readDB != nil {
		errs = append(errs, c.readDB.Close())
	}
	if c.writeDB != nil {
		errs = append(errs, c.writeDB.Close())
	}
	return errors.Join(errs...)
}

// Get returns the stored response for key if it has not expired.
func (c *SQLiteCache) Get(ctx context.Context, key string) (advisory.ProviderResponse, bool, error) {
	now := c.clock.NowUTC().UnixNano()

	var (
		resp       advisory.ProviderResponse
		capability string
		producedAt int64
		payload    []byte
		degraded   int
		errorKind  string
	)
	err := c.readDB.QueryRowContext(ctx, `
		SELECT capability, provider, produced_at, payload, degraded, error_kind, message
		FROM advisory_cache
		WHERE key = ? AND expires_at > ?
	`, key, now).Scan(&capability, &resp.Provider, &producedAt, &payload, &degraded, &errorKind, &resp.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return advisory.ProviderResponse{}, false, nil
	}
	if err != nil {
		return advisory.ProviderResponse{}, false, fmt.Errorf("%w: reading %s: %v", advisory.ErrCacheUnavailable, key, err)
	}

	if resp.Payload, err = decodePayload(payload); err != nil {
		return advisory.ProviderResponse{}, false, fmt.Errorf("%w: decoding %s: %v", advisory.ErrCacheUnavailable, key, err)
	}
	resp.Capability = advisory.Capability(capability)
	resp.ProducedAt = time.Unix(0, producedAt).UTC()
	resp.Degraded = degraded != 0
	resp.Error = advisory.ErrorKind(errorKind)
	return resp, true, nil
}

// Put upserts resp under key until now+ttl.
func (c *SQLiteCache) Put(ctx context.Context, key string, resp advisory.ProviderResponse, ttl time.Duration) error {
	payload, err := encodePayload(resp.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload for %s: %w", key, err)
	}
	degraded := 0
	if resp.Degraded {
		degraded = 1
	}
	expiresAt := c.clock.NowUTC().Add(ttl).UnixNano()

	_, err = c.writeDB.ExecContext(ctx, `
		INSERT INTO advisory_cache (key, capability, provider, produced_at, payload, degraded, error_kind, message, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			capability = excluded.capability,
			provider = excluded.provider,
			produced_at = excluded.produced_at,
			payload = excluded.payload,
			degraded = excluded.degraded,
			error_kind = excluded.error_kind,
			message = excluded.message,
			expires_at = excluded.expires_at
	`, key, string(resp.Capability), resp.Provider, resp.ProducedAt.UnixNano(), payload,
		degraded, string(resp.Error), resp.Message, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: writing %s: %v", advisory.ErrCacheUnavailable, key, err)
	}
	return nil
}

// Invalidate deletes key.
func (c *SQLiteCache) Invalidate(ctx context.Context, key string) error {
	if _, err := c.writeDB.ExecContext(ctx, `DELETE FROM advisory_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%w: invalidating %s: %v", advisory.ErrCacheUnavailable, key, err)
	}
	return nil
}

// Sweep deletes expired rows and reports how many were removed.
func (c *SQLiteCache) Sweep() int {
	res, err := c.writeDB.Exec(`DELETE FROM advisory_cache WHERE expires_at <= ?`, c.clock.NowUTC().UnixNano())
	if err != nil {
		log.Warn().Err(err).Msg("sqlite cache sweep failed")
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}
