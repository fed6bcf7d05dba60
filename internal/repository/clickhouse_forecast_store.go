package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgch "FinCast/pkg/clickhouse"
	applogger "FinCast/pkg/logger"
)

// CHForecastStore keeps every forecast result in ClickHouse. The full
// result is stored as JSON payload next to the queryable columns.
type CHForecastStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHForecastStore(db *sql.DB, database string) *CHForecastStore {
	return &CHForecastStore{db: db, table: qualified(database, pkgch.ForecastsTable), l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHForecastStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHForecastStore) SaveRun(ctx context.Context, run *models.RunSummary) error {
	if run == nil || len(run.Results) == 0 {
		return nil
	}
	values := make([]string, 0, len(run.Results))
	args := make([]interface{}, 0, len(run.Results)*9)
	for _, sym := range run.Symbols() {
		r := run.Results[sym]
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", sym, err)
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.RunID,
			r.Symbol,
			r.Model,
			r.ModelName,
			r.MAE,
			uint16(r.Horizon),
			r.Forecast,
			string(payload),
			r.CompletedAt,
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (run_id, symbol, model, model_name, best_mae, horizon, predictions, payload, completed_at) VALUES %s",
		s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.l.Error("clickhouse save_run error", applogger.String("run_id", run.RunID), applogger.Error(err))
		return fmt.Errorf("save forecasts: %w", err)
	}
	return nil
}

func (s *CHForecastStore) Latest(ctx context.Context, symbol string) (*models.ForecastResult, error) {
	q := fmt.Sprintf("SELECT payload FROM %s WHERE symbol = ? ORDER BY completed_at DESC LIMIT 1", s.table)
	var payload string
	err := s.db.QueryRowContext(ctx, q, symbol).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("forecast %s: %w", symbol, domrepo.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest forecast: %w", err)
	}
	return decodeResult(payload)
}

func (s *CHForecastStore) LatestAll(ctx context.Context) ([]*models.ForecastResult, error) {
	q := fmt.Sprintf("SELECT argMax(payload, completed_at) FROM %s GROUP BY symbol ORDER BY symbol", s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("latest forecasts: %w", err)
	}
	defer rows.Close()

	var out []*models.ForecastResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		r, err := decodeResult(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func decodeResult(payload string) (*models.ForecastResult, error) {
	var r models.ForecastResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}
	return &r, nil
}
