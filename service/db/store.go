package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/presale/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var Schema string

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DBTX is the query surface shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store provides database operations for the presale ledger.
type Store struct {
	pool    *pgxpool.Pool
	q       DBTX
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		q:    pool,
	}
}

// WithMetrics records query latency for the store's writes and lookups.
func (s *Store) WithMetrics(m *metrics.Metrics) *Store {
	s.metrics = m
	return s
}

func (s *Store) observe(operation, table string, start time.Time, err error) {
	s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Purchase is a confirmed transfer to a presale recipient.
type Purchase struct {
	TxHash       string
	Network      string
	ChainID      string
	FromAddress  string
	ToAddress    string
	NativeAmount string // numeric, in whole native units
	TokenAmount  int64
	Inviter      string
	CreatedAt    time.Time
}

// CreatePurchaseParams contains the parameters for recording a purchase.
type CreatePurchaseParams struct {
	TxHash       string
	Network      string
	ChainID      string
	FromAddress  string
	ToAddress    string
	NativeAmount string
	TokenAmount  int64
	Inviter      string
}

// RaisedSnapshot is one polled recipient balance. Balance is nil when the
// lookup failed.
type RaisedSnapshot struct {
	Asset    string
	Network  string
	Address  string
	Balance  *string
	PolledAt time.Time
}

const purchaseColumns = `tx_hash, network, chain_id, from_address, to_address, native_amount::text, token_amount, inviter, created_at`

// CreatePurchase inserts a purchase. Recording the same transaction twice
// returns the existing row.
func (s *Store) CreatePurchase(ctx context.Context, params CreatePurchaseParams) (p *Purchase, err error) {
	defer func(start time.Time) { s.observe("insert", "purchases", start, err) }(time.Now())
	row := s.q.QueryRow(ctx, `
		INSERT INTO purchases (tx_hash, network, chain_id, from_address, to_address, native_amount, token_amount, inviter)
		VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8)
		ON CONFLICT (tx_hash, network) DO UPDATE SET tx_hash = EXCLUDED.tx_hash
		RETURNING `+purchaseColumns,
		params.TxHash,
		params.Network,
		params.ChainID,
		params.FromAddress,
		params.ToAddress,
		params.NativeAmount,
		params.TokenAmount,
		pgtextFromString(params.Inviter),
	)
	return scanPurchase(row)
}

// GetPurchase retrieves a purchase by transaction hash and network.
func (s *Store) GetPurchase(ctx context.Context, txHash, network string) (*Purchase, error) {
	row := s.q.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE tx_hash = $1 AND network = $2`, txHash, network)
	return scanPurchase(row)
}

// ListPurchasesByAddress returns the most recent purchases made from address.
func (s *Store) ListPurchasesByAddress(ctx context.Context, address string, limit int32) (out []*Purchase, err error) {
	defer func(start time.Time) { s.observe("select", "purchases", start, err) }(time.Now())
	rows, err := s.q.Query(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		WHERE from_address = $1
		ORDER BY created_at DESC
		LIMIT $2`, address, limit)
	if err != nil {
		return nil, err
	}
	return collectPurchases(rows)
}

// ListRecentPurchases returns the most recent purchases across all networks.
func (s *Store) ListRecentPurchases(ctx context.Context, limit int32) ([]*Purchase, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+purchaseColumns+`
		FROM purchases
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectPurchases(rows)
}

// TokensSold sums the tokens allocated across recorded purchases.
func (s *Store) TokensSold(ctx context.Context) (int64, error) {
	var total int64
	err := s.q.QueryRow(ctx, `SELECT COALESCE(SUM(token_amount), 0)::bigint FROM purchases`).Scan(&total)
	return total, err
}

// CreateRaisedSnapshots inserts the balances of one poll in a single batch.
func (s *Store) CreateRaisedSnapshots(ctx context.Context, snaps []*RaisedSnapshot) (err error) {
	defer func(start time.Time) { s.observe("insert", "raised_snapshots", start, err) }(time.Now())
	if len(snaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snaps {
		batch.Queue(`
			INSERT INTO raised_snapshots (asset, network, address, balance, polled_at)
			VALUES ($1, $2, $3, $4::text::numeric, $5)`,
			snap.Asset,
			snap.Network,
			snap.Address,
			pgtextFromStringPtr(snap.Balance),
			pgtype.Timestamptz{Time: snap.PolledAt, Valid: true},
		)
	}
	return s.q.SendBatch(ctx, batch).Close()
}

// LatestRaisedSnapshots returns the newest snapshot per network.
func (s *Store) LatestRaisedSnapshots(ctx context.Context) ([]*RaisedSnapshot, error) {
	rows, err := s.q.Query(ctx, `
		SELECT DISTINCT ON (network) asset, network, address, balance::text, polled_at
		FROM raised_snapshots
		ORDER BY network, polled_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RaisedSnapshot
	for rows.Next() {
		var (
			snap     RaisedSnapshot
			balance  pgtype.Text
			polledAt pgtype.Timestamptz
		)
		if err := rows.Scan(&snap.Asset, &snap.Network, &snap.Address, &balance, &polledAt); err != nil {
			return nil, err
		}
		snap.Balance = stringPtrFromPgtext(balance)
		snap.PolledAt = polledAt.Time
		out = append(out, &snap)
	}
	return out, rows.Err()
}

// DeleteRaisedSnapshotsOlderThan prunes snapshot history.
func (s *Store) DeleteRaisedSnapshotsOlderThan(ctx context.Context, before time.Time) error {
	_, err := s.q.Exec(ctx, `DELETE FROM raised_snapshots WHERE polled_at < $1`, before)
	return err
}

func scanPurchase(row pgx.Row) (*Purchase, error) {
	var (
		p         Purchase
		inviter   pgtype.Text
		createdAt pgtype.Timestamptz
	)
	err := row.Scan(&p.TxHash, &p.Network, &p.ChainID, &p.FromAddress, &p.ToAddress, &p.NativeAmount, &p.TokenAmount, &inviter, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Inviter = inviter.String
	p.CreatedAt = createdAt.Time
	return &p, nil
}

func collectPurchases(rows pgx.Rows) ([]*Purchase, error) {
	defer rows.Close()
	out := make([]*Purchase, 0)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Helper functions to convert between pgx types and domain types

func pgtextFromString(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
