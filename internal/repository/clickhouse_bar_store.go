package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgch "FinCast/pkg/clickhouse"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// insertChunk is the number of rows per multi-VALUES insert.
const insertChunk = 2000

// CHBarStore reads and writes bars in ClickHouse at one interval.
type CHBarStore struct {
	db       *sql.DB
	table    string
	interval domrepo.Interval
	l        *applogger.Logger
}

func NewCHBarStore(db *sql.DB, database string, iv domrepo.Interval) *CHBarStore {
	return &CHBarStore{
		db:       db,
		table:    qualified(database, pkgch.BarsTable),
		interval: iv,
		l:        applogger.Nop(),
	}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHBarStore) Symbols(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT symbol FROM %s WHERE interval = ? ORDER BY symbol", s.table)
	rows, err := s.db.QueryContext(ctx, q, string(s.interval))
	if err != nil {
		s.l.Error("clickhouse symbols query error", applogger.String("table", s.table), applogger.Error(err))
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// LatestSeries returns the last n bars of symbol in ascending order.
func (s *CHBarStore) LatestSeries(ctx context.Context, symbol string, n int) (models.Series, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, open, high, low, close, volume, vwap, transactions
        FROM %s FINAL
        WHERE symbol = ? AND interval = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	q := fmt.Sprintf(qtpl, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(s.interval), n)
	if err != nil {
		s.l.Error("clickhouse latest_bars query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return models.Series{}, fmt.Errorf("latest bars: %w", err)
	}
	defer rows.Close()

	bars := make([]models.Bar, 0, n)
	for rows.Next() {
		b := models.Bar{Symbol: symbol}
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.VWAP, &b.Transactions); err != nil {
			s.l.Error("clickhouse latest_bars scan error", applogger.String("symbol", symbol), applogger.Error(err))
			return models.Series{}, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return models.Series{}, fmt.Errorf("rows: %w", err)
	}
	if len(bars) == 0 {
		return models.Series{}, fmt.Errorf("series %s: %w", symbol, domrepo.ErrNotFound)
	}
	// reverse to ASC
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	s.l.Debug("clickhouse latest_bars ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return models.SeriesFromBars(symbol, bars), nil
}

// StoreBars inserts bars aligned to the store interval. Bars without a
// symbol or timestamp are dropped.
func (s *CHBarStore) StoreBars(ctx context.Context, bars []models.Bar) error {
	width := s.interval.Duration()
	for start := 0; start < len(bars); start += insertChunk {
		end := start + insertChunk
		if end > len(bars) {
			end = len(bars)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*10)
		for _, b := range bars[start:end] {
			if b.Symbol == "" || b.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				b.Symbol,
				string(s.interval),
				util.Bucket(b.Timestamp, width),
				b.Open,
				b.High,
				b.Low,
				b.Close,
				b.Volume,
				b.VWAP,
				b.Transactions,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, interval, ts, open, high, low, close, volume, vwap, transactions) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_bars error", applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("store bars: %w", err)
		}
	}
	return nil
}

func qualified(database, table string) string {
	if database == "" {
		return table
	}
	return database + "." + table
}
