package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrAlreadyGranted indicates the (network, address) or
	// (network, requester) pair already holds a faucet grant.
	ErrAlreadyGranted = errors.New("storage: grant already exists")
	// ErrNoSnapshot indicates no snapshot row matched the query.
	ErrNoSnapshot = errors.New("storage: no snapshot found")
)

const (
	insertGrantSQL = `INSERT INTO faucet_grants (network, address, requester_id, grant_tx_ref)
    SELECT $1, $2, $3, $4
    WHERE NOT EXISTS (
        SELECT 1 FROM faucet_grants
        WHERE network = $1 AND (address = $2 OR requester_id = $3)
    );`

	grantExistsSQL = `SELECT EXISTS (
        SELECT 1 FROM faucet_grants
        WHERE network = $1 AND (address = $2 OR requester_id = $3)
    );`

	listGrantsSQL = `SELECT network, address, requester_id, grant_tx_ref, created_at
    FROM faucet_grants
    WHERE network = $1
    ORDER BY created_at;`

	insertUserSnapshotSQL = `INSERT INTO user_snapshots (
        network, timestamp, address, requester_id,
        usd_assets, led_assets, led_debt, price_at_sample, net_value
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`

	latestSnapshotsSQL = `SELECT network, timestamp, address, requester_id,
        usd_assets::text, led_assets::text, led_debt::text, price_at_sample::text, net_value::text
    FROM user_snapshots
    WHERE network = $1
      AND timestamp = (SELECT MAX(timestamp) FROM user_snapshots WHERE network = $1)
    ORDER BY net_value DESC;`

	latestSnapshotsPerAddressSQL = `SELECT DISTINCT ON (address)
        network, timestamp, address, requester_id,
        usd_assets::text, led_assets::text, led_debt::text, price_at_sample::text, net_value::text
    FROM user_snapshots
    WHERE network = $1
    ORDER BY address, timestamp DESC;`

	latestSnapshotForRequesterSQL = `SELECT network, timestamp, address, requester_id,
        usd_assets::text, led_assets::text, led_debt::text, price_at_sample::text, net_value::text
    FROM user_snapshots
    WHERE network = $1 AND requester_id = $2
    ORDER BY timestamp DESC
    LIMIT 1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`

	uniqueViolationCode = "23505"
)

// MetricStore defines operations for protocol metric persistence.
type MetricStore interface {
	AppendMetric(ctx context.Context, sample MetricSample) error
	QueryMetricRange(ctx context.Context, network string, kind MetricKind, begin, end int64) ([]MetricSample, error)
	ListRecentMetrics(ctx context.Context, network string, kind MetricKind, limit int) ([]MetricSample, error)
}

// UserSnapshotStore defines operations for balance snapshot persistence.
type UserSnapshotStore interface {
	AppendUserSnapshot(ctx context.Context, snap UserSnapshot) error
	LatestSnapshotsByNetwork(ctx context.Context, network string) ([]UserSnapshot, error)
	LatestSnapshotForRequester(ctx context.Context, network, requesterID string) (UserSnapshot, error)
}

// GrantStore defines operations for faucet grant persistence.
type GrantStore interface {
	InsertGrantIfAbsent(ctx context.Context, grant FaucetGrant) error
	GrantExists(ctx context.Context, network, address, requesterID string) (bool, error)
	ListGrants(ctx context.Context, network string) ([]FaucetGrant, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to metric, snapshot, and grant tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// AppendMetric appends one metric row. No uniqueness constraint is
// enforced; overlapping passes may produce duplicate timestamps and range
// readers must tolerate them.
func (s *Store) AppendMetric(ctx context.Context, sample MetricSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	table, ok := metricTables[sample.Kind]
	if !ok {
		return fmt.Errorf("unknown metric kind: %s", sample.Kind)
	}
	if sample.Value == nil {
		return fmt.Errorf("metric value is nil")
	}

	query := fmt.Sprintf(`INSERT INTO %s (network, timestamp, value) VALUES ($1, $2, $3);`, table)
	if _, execErr := pool.Exec(ctx, query, sample.Network, sample.Timestamp, sample.Value.String()); execErr != nil {
		return fmt.Errorf("append metric %s: %w", sample.Kind, execErr)
	}
	return nil
}

// QueryMetricRange returns rows with begin < timestamp < end, ascending.
// Both bounds are exclusive, matching the original API contract.
func (s *Store) QueryMetricRange(ctx context.Context, network string, kind MetricKind, begin, end int64) ([]MetricSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	table, ok := metricTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown metric kind: %s", kind)
	}

	query := fmt.Sprintf(`SELECT network, timestamp, value::text FROM %s
        WHERE network = $1 AND timestamp > $2 AND timestamp < $3
        ORDER BY timestamp ASC;`, table)

	rows, queryErr := pool.Query(ctx, query, network, begin, end)
	if queryErr != nil {
		return nil, fmt.Errorf("query metric range: %w", queryErr)
	}
	defer rows.Close()

	return scanMetricRows(rows, kind)
}

// ListRecentMetrics returns the most recent rows for one series, newest first.
func (s *Store) ListRecentMetrics(ctx context.Context, network string, kind MetricKind, limit int) ([]MetricSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	table, ok := metricTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown metric kind: %s", kind)
	}

	query := fmt.Sprintf(`SELECT network, timestamp, value::text FROM %s
        WHERE network = $1
        ORDER BY timestamp DESC
        LIMIT $2;`, table)

	rows, queryErr := pool.Query(ctx, query, network, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent metrics: %w", queryErr)
	}
	defer rows.Close()

	return scanMetricRows(rows, kind)
}

func scanMetricRows(rows pgx.Rows, kind MetricKind) ([]MetricSample, error) {
	samples := make([]MetricSample, 0)
	for rows.Next() {
		var (
			network   string
			timestamp int64
			valueStr  string
		)
		if err := rows.Scan(&network, &timestamp, &valueStr); err != nil {
			return nil, err
		}
		value, ok := new(big.Int).SetString(valueStr, 10)
		if !ok {
			return nil, fmt.Errorf("parse metric value: %q", valueStr)
		}
		samples = append(samples, MetricSample{
			Network:   network,
			Timestamp: timestamp,
			Kind:      kind,
			Value:     value,
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// AppendUserSnapshot appends one balance snapshot row.
func (s *Store) AppendUserSnapshot(ctx context.Context, snap UserSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for name, v := range map[string]*big.Int{
		"usd_assets":      snap.USDAssets,
		"led_assets":      snap.LEDAssets,
		"led_debt":        snap.LEDDebt,
		"price_at_sample": snap.PriceAtSample,
		"net_value":       snap.NetValue,
	} {
		if v == nil {
			return fmt.Errorf("snapshot field %s is nil", name)
		}
	}

	_, execErr := pool.Exec(ctx, insertUserSnapshotSQL,
		snap.Network,
		snap.Timestamp,
		snap.Address,
		snap.RequesterID,
		snap.USDAssets.String(),
		snap.LEDAssets.String(),
		snap.LEDDebt.String(),
		snap.PriceAtSample.String(),
		snap.NetValue.String(),
	)
	if execErr != nil {
		return fmt.Errorf("append user snapshot: %w", execErr)
	}
	return nil
}

// LatestSnapshotsByNetwork returns every row at the single maximum
// timestamp present for the network, one per address, highest net value
// first. Addresses whose last successful sample predates that timestamp
// are absent; see DESIGN.md before changing this.
func (s *Store) LatestSnapshotsByNetwork(ctx context.Context, network string) ([]UserSnapshot, error) {
	return s.querySnapshots(ctx, latestSnapshotsSQL, network)
}

// LatestSnapshotsPerAddress returns the per-address maximum-timestamp rows.
// Alternate leaderboard semantics kept alongside the legacy global-max
// variant; nothing user-facing calls it yet.
func (s *Store) LatestSnapshotsPerAddress(ctx context.Context, network string) ([]UserSnapshot, error) {
	return s.querySnapshots(ctx, latestSnapshotsPerAddressSQL, network)
}

func (s *Store) querySnapshots(ctx context.Context, query string, args ...interface{}) ([]UserSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("query snapshots: %w", queryErr)
	}
	defer rows.Close()

	snaps := make([]UserSnapshot, 0)
	for rows.Next() {
		snap, scanErr := scanUserSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snaps = append(snaps, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snaps, nil
}

// LatestSnapshotForRequester returns the requester's most recent snapshot.
func (s *Store) LatestSnapshotForRequester(ctx context.Context, network, requesterID string) (UserSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return UserSnapshot{}, err
	}

	rows, queryErr := pool.Query(ctx, latestSnapshotForRequesterSQL, network, requesterID)
	if queryErr != nil {
		return UserSnapshot{}, fmt.Errorf("query requester snapshot: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return UserSnapshot{}, rows.Err()
		}
		return UserSnapshot{}, ErrNoSnapshot
	}
	return scanUserSnapshot(rows)
}

func scanUserSnapshot(rows pgx.Rows) (UserSnapshot, error) {
	var (
		snap UserSnapshot
		usd  string
		led  string
		debt string
		prc  string
		net  string
	)
	if err := rows.Scan(
		&snap.Network,
		&snap.Timestamp,
		&snap.Address,
		&snap.RequesterID,
		&usd,
		&led,
		&debt,
		&prc,
		&net,
	); err != nil {
		return UserSnapshot{}, err
	}

	for _, field := range []struct {
		raw    string
		target **big.Int
	}{
		{usd, &snap.USDAssets},
		{led, &snap.LEDAssets},
		{debt, &snap.LEDDebt},
		{prc, &snap.PriceAtSample},
		{net, &snap.NetValue},
	} {
		value, ok := new(big.Int).SetString(field.raw, 10)
		if !ok {
			return UserSnapshot{}, fmt.Errorf("parse snapshot value: %q", field.raw)
		}
		*field.target = value
	}
	return snap, nil
}

// InsertGrantIfAbsent atomically inserts a grant unless either the address
// or the requester already holds one for the network. Uniqueness
// constraints back the conditional insert against concurrent writers.
func (s *Store) InsertGrantIfAbsent(ctx context.Context, grant FaucetGrant) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, insertGrantSQL,
		grant.Network,
		grant.Address,
		grant.RequesterID,
		grant.GrantTxRef,
	)
	if execErr != nil {
		var pgErr *pgconn.PgError
		if errors.As(execErr, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrAlreadyGranted
		}
		return fmt.Errorf("insert grant: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAlreadyGranted
	}
	return nil
}

// GrantExists reports whether the address or requester already has a grant.
func (s *Store) GrantExists(ctx context.Context, network, address, requesterID string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var exists bool
	if scanErr := pool.QueryRow(ctx, grantExistsSQL, network, address, requesterID).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("grant exists: %w", scanErr)
	}
	return exists, nil
}

// ListGrants returns every grant for the network in creation order.
func (s *Store) ListGrants(ctx context.Context, network string) ([]FaucetGrant, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listGrantsSQL, network)
	if queryErr != nil {
		return nil, fmt.Errorf("list grants: %w", queryErr)
	}
	defer rows.Close()

	grants := make([]FaucetGrant, 0)
	for rows.Next() {
		var g FaucetGrant
		var createdAt time.Time
		if err := rows.Scan(&g.Network, &g.Address, &g.RequesterID, &g.GrantTxRef, &createdAt); err != nil {
			return nil, err
		}
		g.CreatedAt = createdAt
		grants = append(grants, g)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return grants, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort; the lock is released anyway when the session ends.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ MetricStore       = (*Store)(nil)
	_ UserSnapshotStore = (*Store)(nil)
	_ GrantStore        = (*Store)(nil)
	_ AdvisoryLocker    = (*Store)(nil)
)
