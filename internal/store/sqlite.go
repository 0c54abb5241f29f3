package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Orders: append-only audit records
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		token INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		segment TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		product TEXT NOT NULL,
		lots INTEGER NOT NULL,
		lot_size INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL,
		leverage REAL NOT NULL,
		margin_blocked REAL,
		status TEXT NOT NULL,
		reject_reason TEXT,
		shortfall REAL,
		filled_qty INTEGER DEFAULT 0,
		average_price REAL,
		position_id TEXT,
		placed_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Positions: append-only, one transition into CLOSED/SQUARED_OFF
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		token INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		segment TEXT NOT NULL,
		side TEXT NOT NULL,
		product TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		lot_size INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		margin_used REAL NOT NULL,
		leverage REAL NOT NULL,
		realized_pnl REAL,
		exit_price REAL,
		status TEXT NOT NULL,
		square_off_reason TEXT,
		opened_at DATETIME NOT NULL,
		closed_at DATETIME
	);

	-- Sealed candles
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token INTEGER NOT NULL,
		interval_seconds INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		UNIQUE(token, interval_seconds, timestamp)
	);

	CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_positions_user ON positions(user_id);
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
	CREATE INDEX IF NOT EXISTS idx_candles_series ON candles(token, interval_seconds);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveOrder inserts a new order record.
func (s *SQLiteStore) SaveOrder(ctx context.Context, o *models.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, token, symbol, exchange, segment, side, type, product,
			lots, lot_size, quantity, price, leverage, margin_blocked, status, reject_reason,
			shortfall, filled_qty, average_price, position_id, placed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.UserID, o.Token, o.Symbol, o.Exchange, o.Segment, o.Side, o.Type, o.Product,
		o.Lots, o.LotSize, o.Quantity, o.Price, o.Leverage, o.MarginBlocked, o.Status, o.RejectReason,
		o.Shortfall, o.FilledQty, o.AveragePrice, o.PositionID, o.PlacedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// UpdateOrder records an order's transition. Only status-bearing fields move.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, o *models.Order) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, filled_qty = ?, average_price = ?, position_id = ?,
			margin_blocked = ?, updated_at = ?
		WHERE id = ?
	`, o.Status, o.FilledQty, o.AveragePrice, o.PositionID, o.MarginBlocked, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

// GetOrders retrieves orders matching the filter, most recent first.
func (s *SQLiteStore) GetOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	query := `SELECT id, user_id, token, symbol, exchange, segment, side, type, product,
		lots, lot_size, quantity, price, leverage, margin_blocked, status, reject_reason,
		shortfall, filled_qty, average_price, position_id, placed_at, updated_at
		FROM orders WHERE 1=1`
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Token != 0 {
		query += " AND token = ?"
		args = append(args, filter.Token)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Terminal != nil {
		if *filter.Terminal {
			query += " AND status IN ('EXECUTED', 'CANCELLED', 'REJECTED')"
		} else {
			query += " AND status NOT IN ('EXECUTED', 'CANCELLED', 'REJECTED')"
		}
	}

	query += " ORDER BY placed_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Token, &o.Symbol, &o.Exchange, &o.Segment,
			&o.Side, &o.Type, &o.Product, &o.Lots, &o.LotSize, &o.Quantity, &o.Price,
			&o.Leverage, &o.MarginBlocked, &o.Status, &o.RejectReason, &o.Shortfall,
			&o.FilledQty, &o.AveragePrice, &o.PositionID, &o.PlacedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SavePosition inserts a new position record.
func (s *SQLiteStore) SavePosition(ctx context.Context, p *models.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (id, user_id, order_id, token, symbol, exchange, segment, side,
			product, quantity, lot_size, entry_price, margin_used, leverage, realized_pnl,
			exit_price, status, square_off_reason, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.OrderID, p.Token, p.Symbol, p.Exchange, p.Segment, p.Side,
		p.Product, p.Quantity, p.LotSize, p.EntryPrice, p.MarginUsed, p.Leverage, p.RealizedPnL,
		p.ExitPrice, p.Status, p.SquareOff, p.OpenedAt, nullableTime(p.ClosedAt))
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// UpdatePosition records a position's transition into CLOSED/SQUARED_OFF.
func (s *SQLiteStore) UpdatePosition(ctx context.Context, p *models.Position) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions SET status = ?, realized_pnl = ?, exit_price = ?,
			square_off_reason = ?, closed_at = ?
		WHERE id = ?
	`, p.Status, p.RealizedPnL, p.ExitPrice, p.SquareOff, nullableTime(p.ClosedAt), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	return nil
}

// GetPositions retrieves positions matching the filter, most recent first.
func (s *SQLiteStore) GetPositions(ctx context.Context, filter PositionFilter) ([]models.Position, error) {
	query := `SELECT id, user_id, order_id, token, symbol, exchange, segment, side, product,
		quantity, lot_size, entry_price, margin_used, leverage, realized_pnl, exit_price,
		status, square_off_reason, opened_at, closed_at
		FROM positions WHERE 1=1`
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Token != 0 {
		query += " AND token = ?"
		args = append(args, filter.Token)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY opened_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		var closedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.UserID, &p.OrderID, &p.Token, &p.Symbol, &p.Exchange,
			&p.Segment, &p.Side, &p.Product, &p.Quantity, &p.LotSize, &p.EntryPrice,
			&p.MarginUsed, &p.Leverage, &p.RealizedPnL, &p.ExitPrice, &p.Status,
			&p.SquareOff, &p.OpenedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		if closedAt.Valid {
			p.ClosedAt = closedAt.Time
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// SaveCandle inserts a sealed candle. Replaces on conflict so replays are
// harmless.
func (s *SQLiteStore) SaveCandle(ctx context.Context, c models.Candle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO candles (token, interval_seconds, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Token, c.Interval, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return fmt.Errorf("failed to save candle: %w", err)
	}
	return nil
}

// GetCandles retrieves up to limit candles for a series, oldest first.
func (s *SQLiteStore) GetCandles(ctx context.Context, token uint32, interval int64, limit int) ([]models.Candle, error) {
	query := `SELECT token, interval_seconds, timestamp, open, high, low, close, volume
		FROM candles WHERE token = ? AND interval_seconds = ?
		ORDER BY timestamp DESC`
	args := []interface{}{token, interval}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Token, &c.Interval, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into ascending order.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// Ensure SQLiteStore implements DataStore.
var _ DataStore = (*SQLiteStore)(nil)
