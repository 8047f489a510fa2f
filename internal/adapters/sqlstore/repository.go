package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"mexcGuardBot/internal/domain"
	"mexcGuardBot/internal/ports"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Repository implements ports.JournalRepository on SQLite or Postgres.
type Repository struct {
	db     *sql.DB
	driver string
	logger ports.Logger
}

// Config holds configuration for the journal repository.
type Config struct {
	Driver string // sqlite3 (default) or postgres
	DBPath string // sqlite3 file path
	DSN    string // postgres connection string
	Logger ports.Logger
}

// NewRepository opens the database and makes sure the schema exists.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for journal repository")
	}
	ctx := context.Background()
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var dsn string
	switch driver {
	case DriverSQLite:
		dbPath := cfg.DBPath
		if dbPath == "" {
			dbPath = "./data/mexc_guard_bot.db"
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
			cfg.Logger.Error(ctx, err, "Journal repository initialization failed")
			return nil, err
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("DSN is required for postgres journal")
		}
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		err = fmt.Errorf("failed to open %s database: %w", driver, err)
		cfg.Logger.Error(ctx, err, "Journal repository initialization failed")
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping %s database: %w", driver, err)
		cfg.Logger.Error(ctx, err, "Journal repository initialization failed")
		return nil, err
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, driver: driver, logger: cfg.Logger}
	if err := repo.initializeSchema(ctx); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(ctx, err, "Journal repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(ctx, "Journal database ready", map[string]interface{}{"driver": driver})

	return repo, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	order_id TEXT NOT NULL,
	status TEXT NOT NULL,
	quantity TEXT NOT NULL DEFAULT '',
	quote_amount TEXT NOT NULL DEFAULT '',
	entry_price REAL NOT NULL DEFAULT 0,
	take_profit REAL NOT NULL DEFAULT 0,
	stop_loss REAL NOT NULL DEFAULT 0,
	source TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS guards (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	guard_id TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	take_profit REAL NOT NULL,
	stop_loss REAL NOT NULL,
	state TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	trigger_price REAL NOT NULL DEFAULT 0,
	polls INTEGER NOT NULL DEFAULT 0,
	order_id TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_guards_user_symbol ON guards (user_id, symbol, ended_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	order_id TEXT NOT NULL,
	status TEXT NOT NULL,
	quantity TEXT NOT NULL DEFAULT '',
	quote_amount TEXT NOT NULL DEFAULT '',
	entry_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	take_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
	stop_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
	source TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS guards (
	id BIGSERIAL PRIMARY KEY,
	guard_id TEXT NOT NULL,
	user_id BIGINT NOT NULL,
	symbol TEXT NOT NULL,
	take_profit DOUBLE PRECISION NOT NULL,
	stop_loss DOUBLE PRECISION NOT NULL,
	state TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	trigger_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	polls INTEGER NOT NULL DEFAULT 0,
	order_id TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_guards_user_symbol ON guards (user_id, symbol, ended_at);
`

func (r *Repository) initializeSchema(ctx context.Context) error {
	schema := sqliteSchema
	if r.driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing journal database connection")
		return r.db.Close()
	}
	return nil
}

// rebind rewrites "?" placeholders to "$n" for postgres.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

// RecordOrder saves an order record and returns its assigned ID.
func (r *Repository) RecordOrder(ctx context.Context, rec *domain.OrderRecord) (int64, error) {
	const query = `
	INSERT INTO orders (user_id, symbol, side, order_id, status, quantity, quote_amount, entry_price, take_profit, stop_loss, source, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var id int64
	err := r.db.QueryRowContext(ctx, rebind(r.driver, query),
		rec.UserID, rec.Symbol, string(rec.Side), rec.OrderID, rec.Status, rec.Quantity, rec.QuoteAmount,
		rec.Entry, rec.TakeProfit, rec.StopLoss, rec.Source, createdAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order for symbol %s: %w", rec.Symbol, err)
	}
	return id, nil
}

// RecordGuard saves the final report of a guard.
func (r *Repository) RecordGuard(ctx context.Context, rep *domain.GuardReport) error {
	const query = `
	INSERT INTO guards (guard_id, user_id, symbol, take_profit, stop_loss, state, reason, trigger_price, polls, order_id, started_at, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	orderID := ""
	if rep.Order != nil {
		orderID = rep.Order.OrderID
	}
	endedAt := rep.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, rebind(r.driver, query),
		rep.GuardID, rep.Key.UserID, rep.Key.Symbol, rep.TakeProfit, rep.StopLoss, string(rep.State),
		string(rep.Reason), rep.TriggerPrice, rep.Polls, orderID, rep.StartedAt.UTC(), endedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert guard report for %s: %w", rep.Key, err)
	}
	return nil
}

// RecentOrders returns the latest orders of a user, newest first.
func (r *Repository) RecentOrders(ctx context.Context, userID int64, limit int) ([]*domain.OrderRecord, error) {
	const query = `
	SELECT id, user_id, symbol, side, order_id, status, quantity, quote_amount, entry_price, take_profit, stop_loss, source, created_at
	FROM orders
	WHERE user_id = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, rebind(r.driver, query), userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query orders for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []*domain.OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return out, nil
}

// GuardsBySymbol returns finished guards for a user and symbol, newest first.
func (r *Repository) GuardsBySymbol(ctx context.Context, userID int64, symbol string, limit int) ([]*domain.GuardReport, error) {
	const query = `
	SELECT guard_id, user_id, symbol, take_profit, stop_loss, state, reason, trigger_price, polls, order_id, started_at, ended_at
	FROM guards
	WHERE user_id = ? AND symbol = ?
	ORDER BY ended_at DESC, id DESC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, rebind(r.driver, query), userID, symbol, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query guards for %d:%s: %w", userID, symbol, err)
	}
	defer rows.Close()

	var out []*domain.GuardReport
	for rows.Next() {
		rep, err := scanGuard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guard row: %w", err)
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating guard rows: %w", err)
	}
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

// --- Scan Helpers ---

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s scanner) (*domain.OrderRecord, error) {
	var rec domain.OrderRecord
	var side string
	err := s.Scan(&rec.ID, &rec.UserID, &rec.Symbol, &side, &rec.OrderID, &rec.Status, &rec.Quantity,
		&rec.QuoteAmount, &rec.Entry, &rec.TakeProfit, &rec.StopLoss, &rec.Source, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Side = domain.OrderSide(side)
	return &rec, nil
}

func scanGuard(s scanner) (*domain.GuardReport, error) {
	var rep domain.GuardReport
	var state, reason, orderID string
	err := s.Scan(&rep.GuardID, &rep.Key.UserID, &rep.Key.Symbol, &rep.TakeProfit, &rep.StopLoss, &state,
		&reason, &rep.TriggerPrice, &rep.Polls, &orderID, &rep.StartedAt, &rep.EndedAt)
	if err != nil {
		return nil, err
	}
	rep.State = domain.GuardState(state)
	rep.Reason = domain.CloseReason(reason)
	if orderID != "" {
		rep.Order = &domain.OrderResult{OrderID: orderID, Symbol: rep.Key.Symbol, Side: domain.Sell}
	}
	return &rep, nil
}
