package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/trahn-treasury/internal/models"
)

const tradeColumns = `id, timestamp, trading_day, trader, kind, asset_in, asset_out,
	amount_in::text, amount_out::text, burned::text, approved, rejections,
	is_paper_trade, created_at`

type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

func (r *TradeRepo) Record(ctx context.Context, t *models.Trade) (*models.Trade, error) {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	td := TradingDay(ts)
	rejections := t.Rejections
	if rejections == nil {
		rejections = []string{}
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO trade_history
		 (timestamp, trading_day, trader, kind, asset_in, asset_out,
		  amount_in, amount_out, burned, approved, rejections, is_paper_trade)
		 VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9::numeric,$10,$11,$12)
		 RETURNING `+tradeColumns,
		ts, td, t.Trader, t.Kind, t.AssetIn, t.AssetOut,
		orZeroString(t.AmountIn), orZeroString(t.AmountOut), t.Burned,
		t.Approved, rejections, t.IsPaperTrade,
	)
	return scanTrade(row)
}

// tradeFilter narrows trade_history reads. Zero fields do not filter.
type tradeFilter struct {
	day    string
	trader string
	paper  *bool
	limit  int
	newest bool
}

func (f tradeFilter) where() (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.day != "" {
		add("trading_day = $%d", f.day)
	}
	if f.trader != "" {
		add("lower(trader) = lower($%d)", f.trader)
	}
	if f.paper != nil {
		add("is_paper_trade = $%d", *f.paper)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *TradeRepo) list(ctx context.Context, f tradeFilter) ([]models.Trade, error) {
	where, args := f.where()
	query := `SELECT ` + tradeColumns + ` FROM trade_history` + where
	if f.newest {
		query += " ORDER BY timestamp DESC, id DESC"
	} else {
		query += " ORDER BY timestamp ASC, id ASC"
	}
	if f.limit > 0 {
		args = append(args, f.limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// GetByDay returns a trading day's proposals in the order they were made.
func (r *TradeRepo) GetByDay(ctx context.Context, tradingDay string, paperMode *bool) ([]models.Trade, error) {
	return r.list(ctx, tradeFilter{day: tradingDay, paper: paperMode})
}

// GetAll returns the most recent proposals first.
func (r *TradeRepo) GetAll(ctx context.Context, limit int, paperMode *bool) ([]models.Trade, error) {
	return r.list(ctx, tradeFilter{paper: paperMode, limit: limit, newest: true})
}

// GetByTrader returns one trader's most recent proposals first.
func (r *TradeRepo) GetByTrader(ctx context.Context, trader string, limit int, paperMode *bool) ([]models.Trade, error) {
	return r.list(ctx, tradeFilter{trader: trader, paper: paperMode, limit: limit, newest: true})
}

// GetStats returns aggregate trade statistics.
// If paperMode is non-nil, filters by is_paper_trade.
func (r *TradeRepo) GetStats(ctx context.Context, paperMode *bool) (*models.TradeStats, error) {
	where, args := tradeFilter{paper: paperMode}.where()
	query := `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE approved),
			COUNT(*) FILTER (WHERE NOT approved),
			COUNT(*) FILTER (WHERE kind = 'buyback'),
			MIN(timestamp),
			MAX(timestamp)
		 FROM trade_history` + where

	var s models.TradeStats
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&s.TotalTrades, &s.ApprovedCount, &s.RejectedCount, &s.BuybackCount,
		&s.FirstTrade, &s.LastTrade,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RejectionCounts tallies rejection codes across rejected proposals, most
// frequent first.
func (r *TradeRepo) RejectionCounts(ctx context.Context, paperMode *bool) ([]models.RejectionCount, error) {
	query := `SELECT code, COUNT(*) FROM trade_history, unnest(rejections) AS code WHERE NOT approved`
	var args []any
	if paperMode != nil {
		args = append(args, *paperMode)
		query += " AND is_paper_trade = $1"
	}
	query += " GROUP BY code ORDER BY COUNT(*) DESC, code"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RejectionCount
	for rows.Next() {
		var c models.RejectionCount
		if err := rows.Scan(&c.Code, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *TradeRepo) CountToday(ctx context.Context) (int, error) {
	where, args := tradeFilter{day: TradingDayNow()}.where()
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trade_history`+where, args...).Scan(&count)
	return count, err
}

func orZeroString(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// --- scan helpers ---

func scanTrade(row scannable) (*models.Trade, error) {
	var t models.Trade
	var td time.Time
	err := row.Scan(
		&t.ID, &t.Timestamp, &td, &t.Trader, &t.Kind, &t.AssetIn, &t.AssetOut,
		&t.AmountIn, &t.AmountOut, &t.Burned, &t.Approved, &t.Rejections,
		&t.IsPaperTrade, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.TradingDay = td.Format("2006-01-02")
	return &t, nil
}

func collectTrades(rows rowsIter) ([]models.Trade, error) {
	var out []models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
