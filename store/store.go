package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"polymarket-maker-go/inventory"
	"polymarket-maker-go/market"
	"polymarket-maker-go/order"
)

// ErrNoSession is returned by LoadLatestSnapshot when the store holds no
// snapshot for the market yet (fresh database or fresh market).
var ErrNoSession = errors.New("no stored session")

const schema = `
-- 每个市场的最新账本快照，UPSERT 保证单行
CREATE TABLE IF NOT EXISTS snapshots (
    condition_id TEXT PRIMARY KEY,
    q_yes        REAL NOT NULL DEFAULT 0,
    c_yes        REAL NOT NULL DEFAULT 0,
    q_no         REAL NOT NULL DEFAULT 0,
    c_no         REAL NOT NULL DEFAULT 0,
    realized_pnl REAL NOT NULL DEFAULT 0,
    total_trades INTEGER NOT NULL DEFAULT 0,
    total_volume REAL NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
);

-- 成交流水，只追加
CREATE TABLE IF NOT EXISTS fills (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    condition_id TEXT NOT NULL,
    order_id     TEXT NOT NULL,
    outcome      TEXT NOT NULL,
    side         TEXT NOT NULL,
    price        REAL NOT NULL,
    size         REAL NOT NULL,
    filled_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_market ON fills(condition_id, filled_at DESC);
`

// Store persists the fill journal and ledger snapshots in SQLite (pure Go
// driver, no CGo). One Store serves one market. Implements order.Journal.
type Store struct {
	db          *sql.DB
	conditionID string
}

// Open opens (or creates) the database at the given DSN and applies the schema.
func Open(dsn, conditionID string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store.Open %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // SQLite 单写者
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.Open: apply schema: %w", err)
	}
	return &Store{db: db, conditionID: conditionID}, nil
}

// AppendFill records one executed trade in the journal.
func (s *Store) AppendFill(ctx context.Context, rec order.FillRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO fills (condition_id, order_id, outcome, side, price, size, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.conditionID, rec.OrderID, string(rec.Outcome), string(rec.Side),
		rec.Price, rec.Size, ts.UTC(),
	); err != nil {
		return fmt.Errorf("store.AppendFill: %w", err)
	}
	return nil
}

// SaveSnapshot upserts the market's ledger snapshot. Last write wins; the
// journal is the source of truth if the two ever disagree.
func (s *Store) SaveSnapshot(ctx context.Context, snap inventory.Snapshot) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots
			(condition_id, q_yes, c_yes, q_no, c_no, realized_pnl,
			 total_trades, total_volume, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(condition_id) DO UPDATE SET
			q_yes        = excluded.q_yes,
			c_yes        = excluded.c_yes,
			q_no         = excluded.q_no,
			c_no         = excluded.c_no,
			realized_pnl = excluded.realized_pnl,
			total_trades = excluded.total_trades,
			total_volume = excluded.total_volume,
			updated_at   = excluded.updated_at
	`,
		s.conditionID, snap.QYes, snap.CYes, snap.QNo, snap.CNo, snap.RealizedPnL,
		snap.TotalTrades, snap.TotalVolume, snap.CreatedAt.UTC(), snap.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("store.SaveSnapshot: %w", err)
	}
	return nil
}

// LoadLatestSnapshot returns the stored ledger snapshot for the market,
// or ErrNoSession when none exists.
func (s *Store) LoadLatestSnapshot(ctx context.Context) (inventory.Snapshot, error) {
	var snap inventory.Snapshot
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT q_yes, c_yes, q_no, c_no, realized_pnl,
		       total_trades, total_volume, created_at, updated_at
		FROM snapshots WHERE condition_id = ?
	`, s.conditionID).Scan(
		&snap.QYes, &snap.CYes, &snap.QNo, &snap.CNo, &snap.RealizedPnL,
		&snap.TotalTrades, &snap.TotalVolume, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Snapshot{}, ErrNoSession
	}
	if err != nil {
		return inventory.Snapshot{}, fmt.Errorf("store.LoadLatestSnapshot: %w", err)
	}
	snap.CreatedAt = parseStoredTime(createdAt)
	snap.UpdatedAt = parseStoredTime(updatedAt)
	return snap, nil
}

// FillSummary aggregates the journal for reporting.
type FillSummary struct {
	Outcome string
	Side    string
	Count   int64
	Volume  float64
	Nominal float64 // 成交额 = Σ price*size
}

// SummarizeFills groups the market's journal by outcome and side.
func (s *Store) SummarizeFills(ctx context.Context) ([]FillSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, side, COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(price*size), 0)
		FROM fills WHERE condition_id = ?
		GROUP BY outcome, side
		ORDER BY outcome, side
	`, s.conditionID)
	if err != nil {
		return nil, fmt.Errorf("store.SummarizeFills: %w", err)
	}
	defer rows.Close()

	var out []FillSummary
	for rows.Next() {
		var fs FillSummary
		if err := rows.Scan(&fs.Outcome, &fs.Side, &fs.Count, &fs.Volume, &fs.Nominal); err != nil {
			return nil, fmt.Errorf("store.SummarizeFills: scan: %w", err)
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

// RecentFills returns the market's newest journal entries, newest first.
func (s *Store) RecentFills(ctx context.Context, limit int) ([]order.FillRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, outcome, side, price, size, filled_at
		FROM fills WHERE condition_id = ?
		ORDER BY filled_at DESC, id DESC
		LIMIT ?
	`, s.conditionID, limit)
	if err != nil {
		return nil, fmt.Errorf("store.RecentFills: %w", err)
	}
	defer rows.Close()

	var out []order.FillRecord
	for rows.Next() {
		var rec order.FillRecord
		var outcome, side, filledAt string
		if err := rows.Scan(&rec.OrderID, &outcome, &side, &rec.Price, &rec.Size, &filledAt); err != nil {
			return nil, fmt.Errorf("store.RecentFills: scan: %w", err)
		}
		rec.Outcome = market.Outcome(outcome)
		rec.Side = market.Side(side)
		rec.Timestamp = parseStoredTime(filledAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SQLite 返回带时区偏移的时间字符串
func parseStoredTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
