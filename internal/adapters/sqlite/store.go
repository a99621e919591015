package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"coinwatch/internal/domain"
	"coinwatch/internal/ports"
)

// Store implements the ports repository interfaces (orders, prices, history,
// totals) on a single SQLite database. The schema mirrors the four-table
// layout of the watcher: history and orders keyed by (id, exchange), prices
// keyed by (exchange, symbol), and an append-only total series.
//
// Prices, quantities and totals are stored as exact decimal strings; any
// rounding happens at presentation boundaries only.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewStore opens (and if necessary creates) the database.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/coinwatch.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// WAL so the web readers never block the reconciler's writes.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver behaves best
	// with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db, logger: cfg.Logger}

	if err := store.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified", map[string]interface{}{"path": dbPath})

	return store, nil
}

// initializeSchema creates tables if they don't exist.
func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS history (
		id TEXT NOT NULL,
		exchange TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		confirmed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (id, exchange)
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT NOT NULL,
		exchange TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		as_of TIMESTAMP NOT NULL,
		PRIMARY KEY (id, exchange)
	);

	CREATE TABLE IF NOT EXISTS prices (
		exchange TEXT NOT NULL,
		symbol TEXT NOT NULL,
		price TEXT NOT NULL,
		PRIMARY KEY (exchange, symbol)
	);

	CREATE TABLE IF NOT EXISTS total (
		date TIMESTAMP NOT NULL,
		exchange TEXT NOT NULL,
		total TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_confirmed ON history (confirmed);
	CREATE INDEX IF NOT EXISTS idx_total_exchange_date ON total (exchange, date);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite store")
		return s.db.Close()
	}
	return nil
}

// --- OrderRepository Implementation ---

// ApplyOrderDiff inserts toAdd and deletes toRemove for one exchange in a
// single transaction. Readers never observe a half-applied diff.
func (s *Store) ApplyOrderDiff(ctx context.Context, exchange string, toAdd []domain.Order, toRemove []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin order diff transaction for %s: %w: %w", exchange, ports.ErrTxFailed, err)
	}
	defer tx.Rollback()

	const insertQuery = `
	INSERT INTO orders (id, exchange, symbol, side, price, quantity, as_of)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, o := range toAdd {
		if _, err := tx.ExecContext(ctx, insertQuery,
			o.ID, exchange, o.Symbol, string(o.Side), o.Price.String(), o.Quantity.String(), o.AsOf.UTC()); err != nil {
			return fmt.Errorf("failed to insert order %s for %s: %w: %w", o.ID, exchange, ports.ErrTxFailed, err)
		}
	}

	const deleteQuery = `DELETE FROM orders WHERE exchange = ? AND id = ?`
	for _, id := range toRemove {
		if _, err := tx.ExecContext(ctx, deleteQuery, exchange, id); err != nil {
			return fmt.Errorf("failed to delete order %s for %s: %w: %w", id, exchange, ports.ErrTxFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order diff for %s: %w: %w", exchange, ports.ErrTxFailed, err)
	}
	s.logger.Debug(ctx, "Order diff applied", map[string]interface{}{
		"exchange": exchange, "added": len(toAdd), "removed": len(toRemove),
	})
	return nil
}

// OrderIDs returns the stored order ids for one exchange.
func (s *Store) OrderIDs(ctx context.Context, exchange string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM orders WHERE exchange = ?`, exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to query order ids for %s: %w: %w", exchange, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order id rows: %w", err)
	}
	return ids, nil
}

// Orders returns stored orders, optionally filtered by exchange.
func (s *Store) Orders(ctx context.Context, exchange string) ([]domain.Order, error) {
	query := `SELECT id, exchange, symbol, side, price, quantity, as_of FROM orders`
	args := []interface{}{}
	if exchange != "" {
		query += ` WHERE exchange = ?`
		args = append(args, exchange)
	}
	query += ` ORDER BY exchange, symbol, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

// --- PriceRepository Implementation ---

// ReplacePrices swaps one exchange's price rows for the fresh set.
// Price is a point-in-time quantity; the last fetch always wins.
func (s *Store) ReplacePrices(ctx context.Context, exchange string, prices map[string]decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin price transaction for %s: %w: %w", exchange, ports.ErrTxFailed, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM prices WHERE exchange = ?`, exchange); err != nil {
		return fmt.Errorf("failed to clear prices for %s: %w: %w", exchange, ports.ErrTxFailed, err)
	}
	const insertQuery = `INSERT INTO prices (exchange, symbol, price) VALUES (?, ?, ?)`
	for symbol, price := range prices {
		if _, err := tx.ExecContext(ctx, insertQuery, exchange, symbol, price.String()); err != nil {
			return fmt.Errorf("failed to insert price %s for %s: %w: %w", symbol, exchange, ports.ErrTxFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prices for %s: %w: %w", exchange, ports.ErrTxFailed, err)
	}
	return nil
}

// Prices returns all stored quotes.
func (s *Store) Prices(ctx context.Context) ([]domain.PriceQuote, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT exchange, symbol, price FROM prices ORDER BY exchange, symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	quotes := make([]domain.PriceQuote, 0)
	for rows.Next() {
		var q domain.PriceQuote
		var price string
		if err := rows.Scan(&q.Exchange, &q.Symbol, &price); err != nil {
			return nil, fmt.Errorf("failed to scan price quote: %w", err)
		}
		if q.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid stored price %q for %s/%s: %w", price, q.Exchange, q.Symbol, err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows: %w", err)
	}
	return quotes, nil
}

// --- HistoryRepository Implementation ---

// InsertHistory appends records not already present by (id, exchange) with
// confirmed=0. INSERT OR IGNORE makes repeated appearances across cycles
// harmless.
func (s *Store) InsertHistory(ctx context.Context, records []domain.HistoryRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin history transaction: %w: %w", ports.ErrTxFailed, err)
	}
	defer tx.Rollback()

	const query = `
	INSERT OR IGNORE INTO history (id, exchange, symbol, side, price, quantity, confirmed)
	VALUES (?, ?, ?, ?, ?, ?, 0)`

	var inserted int64
	for _, rec := range records {
		res, err := tx.ExecContext(ctx, query,
			rec.ID, rec.Exchange, rec.Symbol, string(rec.Side), rec.Price.String(), rec.Quantity.String())
		if err != nil {
			return 0, fmt.Errorf("failed to insert history record %s/%s: %w: %w", rec.ID, rec.Exchange, ports.ErrTxFailed, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected for history record %s/%s: %w", rec.ID, rec.Exchange, err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit history records: %w: %w", ports.ErrTxFailed, err)
	}
	if inserted > 0 {
		s.logger.Debug(ctx, "History records inserted", map[string]interface{}{"count": inserted})
	}
	return inserted, nil
}

// PendingHistory returns all unconfirmed records across exchanges.
func (s *Store) PendingHistory(ctx context.Context) ([]domain.HistoryRecord, error) {
	return s.queryHistory(ctx, `
	SELECT id, exchange, symbol, side, price, quantity, confirmed
	FROM history WHERE confirmed < 1 ORDER BY exchange, rowid`)
}

// History returns all stored records.
func (s *Store) History(ctx context.Context) ([]domain.HistoryRecord, error) {
	return s.queryHistory(ctx, `
	SELECT id, exchange, symbol, side, price, quantity, confirmed
	FROM history ORDER BY exchange, rowid`)
}

func (s *Store) queryHistory(ctx context.Context, query string) ([]domain.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	records := make([]domain.HistoryRecord, 0)
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return records, nil
}

// ConfirmHistory transitions one record's confirmed flag 0->1. The update
// only ever sets the flag, so the transition cannot regress.
func (s *Store) ConfirmHistory(ctx context.Context, id, exchange string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE history SET confirmed = 1 WHERE id = ? AND exchange = ?`, id, exchange)
	if err != nil {
		return fmt.Errorf("failed to confirm history record %s/%s: %w: %w", id, exchange, ports.ErrQueryFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected confirming %s/%s: %w", id, exchange, err)
	}
	if n == 0 {
		return fmt.Errorf("history record %s/%s not found for confirmation: %w", id, exchange, ports.ErrNotFound)
	}
	s.logger.Debug(ctx, "History record confirmed", map[string]interface{}{"id": id, "exchange": exchange})
	return nil
}

// PruneConfirmed deletes confirmed rows beyond the most recent keep rows
// for one exchange. rowid order stands in for insertion order. Pending rows
// are never touched.
func (s *Store) PruneConfirmed(ctx context.Context, exchange string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	const query = `
	DELETE FROM history
	WHERE exchange = ? AND confirmed = 1 AND rowid NOT IN (
		SELECT rowid FROM history
		WHERE exchange = ? AND confirmed = 1
		ORDER BY rowid DESC LIMIT ?
	)`
	if _, err := s.db.ExecContext(ctx, query, exchange, exchange, keep); err != nil {
		return fmt.Errorf("failed to prune confirmed history for %s: %w: %w", exchange, ports.ErrQueryFailed, err)
	}
	return nil
}

// --- TotalRepository Implementation ---

// AppendTotal records one point of the total-value series.
func (s *Store) AppendTotal(ctx context.Context, exchange string, total decimal.Decimal, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO total (date, exchange, total) VALUES (?, ?, ?)`,
		at.UTC(), exchange, total.String())
	if err != nil {
		return fmt.Errorf("failed to append total for %s: %w: %w", exchange, ports.ErrQueryFailed, err)
	}
	return nil
}

// Totals returns the series for one exchange, oldest first.
func (s *Store) Totals(ctx context.Context, exchange string) ([]domain.TotalSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, exchange, total FROM total WHERE exchange = ? ORDER BY date`, exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals for %s: %w: %w", exchange, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	snapshots := make([]domain.TotalSnapshot, 0)
	for rows.Next() {
		var snap domain.TotalSnapshot
		var total string
		if err := rows.Scan(&snap.Date, &snap.Exchange, &total); err != nil {
			return nil, fmt.Errorf("failed to scan total snapshot: %w", err)
		}
		if snap.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("invalid stored total %q for %s: %w", total, exchange, err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating total rows: %w", err)
	}
	return snapshots, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanOrder scans a row into a domain.Order.
func scanOrder(sc scanner) (domain.Order, error) {
	var o domain.Order
	var side, price, quantity string
	if err := sc.Scan(&o.ID, &o.Exchange, &o.Symbol, &side, &price, &quantity, &o.AsOf); err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.Side(side)
	var err error
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Order{}, fmt.Errorf("invalid stored price %q: %w", price, err)
	}
	if o.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return domain.Order{}, fmt.Errorf("invalid stored quantity %q: %w", quantity, err)
	}
	return o, nil
}

// scanHistory scans a row into a domain.HistoryRecord.
func scanHistory(sc scanner) (domain.HistoryRecord, error) {
	var rec domain.HistoryRecord
	var side, price, quantity string
	var confirmed int
	if err := sc.Scan(&rec.ID, &rec.Exchange, &rec.Symbol, &side, &price, &quantity, &confirmed); err != nil {
		return domain.HistoryRecord{}, err
	}
	rec.Side = domain.Side(side)
	rec.Confirmed = confirmed >= 1
	var err error
	if rec.Price, err = decimal.NewFromString(price); err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("invalid stored price %q: %w", price, err)
	}
	if rec.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("invalid stored quantity %q: %w", quantity, err)
	}
	return rec, nil
}
