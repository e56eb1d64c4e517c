package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
)

// ClickHouseOrderStore persists orders as an append-only state log in a
// ReplacingMergeTree keyed by order_id and versioned by updated_at. Every
// Create/Update writes a new row; reads resolve the latest version.
type ClickHouseOrderStore struct {
	db     *sql.DB
	orders string
	trades string
}

// NewClickHouseOrderStore creates an order store over the given pool.
func NewClickHouseOrderStore(db *sql.DB, ordersTable, tradesTable string) repository.OrderStore {
	return &ClickHouseOrderStore{db: db, orders: ordersTable, trades: tradesTable}
}

// OrderSchema returns the DDL for the order and trade tables.
func OrderSchema(ordersTable, tradesTable string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			order_id        String,
			user_id         String,
			strategy_id     String,
			symbol          LowCardinality(String),
			side            LowCardinality(String),
			type            LowCardinality(String),
			quantity        Int64,
			limit_price     Float64,
			status          LowCardinality(String),
			broker_order_id String,
			filled_qty      Int64,
			filled_price    Float64,
			error           String,
			created_at      DateTime64(3),
			updated_at      DateTime64(3),
			timeout_at      DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY order_id`, ordersTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			order_id     String,
			symbol       LowCardinality(String),
			side         LowCardinality(String),
			quantity     Int64,
			price        Float64,
			executed_at  DateTime64(3)
		) ENGINE = MergeTree
		ORDER BY (symbol, executed_at)`, tradesTable),
	}
}

const orderColumns = "order_id, user_id, strategy_id, symbol, side, type, quantity, limit_price, status, broker_order_id, filled_qty, filled_price, error, created_at, updated_at, timeout_at"

func (s *ClickHouseOrderStore) insert(ctx context.Context, o *models.Order) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.orders, orderColumns)
	_, err := s.db.ExecContext(ctx, q,
		o.OrderID, o.UserID, o.StrategyID, o.Symbol,
		string(o.Side), string(o.Type), o.Quantity, o.LimitPrice,
		string(o.Status), o.BrokerOrderID, o.FilledQty, o.FilledPrice,
		o.Error, o.CreatedAt, o.UpdatedAt, o.TimeoutAt,
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.OrderID, err)
	}
	return nil
}

func (s *ClickHouseOrderStore) Create(ctx context.Context, o *models.Order) error {
	return s.insert(ctx, o)
}

// Update appends a new version row. A fill additionally writes a trade
// row so executions survive later status changes.
func (s *ClickHouseOrderStore) Update(ctx context.Context, o *models.Order) error {
	if err := s.insert(ctx, o); err != nil {
		return err
	}
	if o.Status == models.StatusFilled || o.Status == models.StatusPartiallyFilled {
		q := fmt.Sprintf("INSERT INTO %s (order_id, symbol, side, quantity, price, executed_at) VALUES (?, ?, ?, ?, ?, ?)", s.trades)
		if _, err := s.db.ExecContext(ctx, q,
			o.OrderID, o.Symbol, string(o.Side), o.FilledQty, o.FilledPrice, o.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert trade %s: %w", o.OrderID, err)
		}
	}
	return nil
}

func (s *ClickHouseOrderStore) Get(ctx context.Context, orderID string) (*models.Order, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE order_id = ? ORDER BY updated_at DESC LIMIT 1", orderColumns, s.orders)
	o, err := scanOrder(s.db.QueryRowContext(ctx, q, orderID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", repository.ErrOrderNotFound, orderID)
	}
	return o, err
}

func (s *ClickHouseOrderStore) ListPending(ctx context.Context) ([]*models.Order, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE status NOT IN ('FILLED', 'REJECTED', 'CANCELLED') ORDER BY created_at", orderColumns, s.orders)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *ClickHouseOrderStore) Close() error {
	return nil // pool managed by pkg/clickhouse
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (*models.Order, error) {
	var (
		o                 models.Order
		side, typ, status string
		created, updated  time.Time
		timeout           time.Time
	)
	err := r.Scan(
		&o.OrderID, &o.UserID, &o.StrategyID, &o.Symbol,
		&side, &typ, &o.Quantity, &o.LimitPrice,
		&status, &o.BrokerOrderID, &o.FilledQty, &o.FilledPrice,
		&o.Error, &created, &updated, &timeout,
	)
	if err != nil {
		return nil, err
	}
	o.Side = models.OrderSide(side)
	o.Type = models.OrderType(typ)
	o.Status = models.OrderStatus(status)
	o.CreatedAt = created
	o.UpdatedAt = updated
	o.TimeoutAt = timeout
	return &o, nil
}
