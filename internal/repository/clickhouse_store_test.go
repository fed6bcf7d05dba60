package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
)

// passthrough lets array arguments reach the mock unchanged, as the
// ClickHouse driver accepts them natively.
type passthrough struct{}

func (passthrough) ConvertValue(v interface{}) (driver.Value, error) { return v, nil }

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestCHBarStoreLatestSeriesIsAscending(t *testing.T) {
	db, mock := newMock(t)
	store := NewCHBarStore(db, "fincast", domrepo.Interval10m)

	t0 := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"ts", "open", "high", "low", "close", "volume", "vwap", "transactions"}).
		AddRow(t0.Add(20*time.Minute), 3.0, 3.0, 3.0, 3.0, 30.0, 3.0, int64(3)).
		AddRow(t0.Add(10*time.Minute), 2.0, 2.0, 2.0, 2.0, 20.0, 2.0, int64(2)).
		AddRow(t0, 1.0, 1.0, 1.0, 1.0, 10.0, 1.0, int64(1))
	mock.ExpectQuery(`FROM fincast\.bars FINAL\s+WHERE symbol = \? AND interval = \?`).
		WithArgs("AAPL", "10m", 3).
		WillReturnRows(rows)

	s, err := store.LatestSeries(context.Background(), "AAPL", 3)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, "AAPL", s.Symbol)
	assert.Equal(t, 1.0, s.Observations[0][models.ColumnClose])
	assert.Equal(t, 3.0, s.Observations[2][models.ColumnVWAP])
	assert.True(t, t0.Equal(s.Timestamps[0]))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCHBarStoreLatestSeriesEmpty(t *testing.T) {
	db, mock := newMock(t)
	store := NewCHBarStore(db, "fincast", domrepo.Interval10m)
	mock.ExpectQuery(`FROM fincast\.bars`).
		WillReturnRows(sqlmock.NewRows([]string{"ts", "open", "high", "low", "close", "volume", "vwap", "transactions"}))

	_, err := store.LatestSeries(context.Background(), "NONE", 10)
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestCHBarStoreSymbols(t *testing.T) {
	db, mock := newMock(t)
	store := NewCHBarStore(db, "fincast", domrepo.Interval1h)
	mock.ExpectQuery(`SELECT DISTINCT symbol FROM fincast\.bars WHERE interval = \?`).
		WithArgs("1h").
		WillReturnRows(sqlmock.NewRows([]string{"symbol"}).AddRow("AAPL").AddRow("MSFT"))

	syms, err := store.Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, syms)
}

func TestCHBarStoreStoreBarsAlignsToInterval(t *testing.T) {
	db, mock := newMock(t)
	store := NewCHBarStore(db, "fincast", domrepo.Interval10m)
	ts := time.Date(2024, 5, 1, 14, 7, 31, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO fincast\.bars \(symbol, interval, ts, open, high, low, close, volume, vwap, transactions\) VALUES \(\?, \?, \?, \?, \?, \?, \?, \?, \?, \?\)$`).
		WithArgs("AAPL", "10m", time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC), 1.0, 2.0, 0.5, 1.5, 100.0, 1.4, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.StoreBars(context.Background(), []models.Bar{
		{Symbol: "AAPL", Timestamp: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100, VWAP: 1.4, Transactions: 7},
		{Symbol: "", Timestamp: ts},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func sampleRun() *models.RunSummary {
	done := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	return &models.RunSummary{
		RunID:      "run-1",
		StartedAt:  done.Add(-time.Minute),
		FinishedAt: done,
		Results: map[string]*models.ForecastResult{
			"MSFT": {RunID: "run-1", Symbol: "MSFT", Model: "linear", ModelName: "linear", MAE: 0.5, Forecast: []float64{400.1, 400.2}, Horizon: 2, CompletedAt: done, FittedModel: json.RawMessage(`{"kind":"linear"}`)},
			"AAPL": {RunID: "run-1", Symbol: "AAPL", Model: "constant", ModelName: "baseline", MAE: 1.25, Forecast: []float64{180, 180}, Horizon: 2, CompletedAt: done},
		},
		Failures: []models.InstrumentFailure{{Symbol: "TINY", Kind: "insufficient_data", State: "RAW", Message: "too short"}},
	}
}

func TestCHForecastStoreSaveRun(t *testing.T) {
	db, mock := newMock(t)
	store := NewCHForecastStore(db, "fincast")

	mock.ExpectExec(`INSERT INTO fincast\.forecasts`).
		WithArgs(
			"run-1", "AAPL", "constant", "baseline", 1.25, uint16(2), []float64{180, 180}, sqlmock.AnyArg(), sqlmock.AnyArg(),
			"run-1", "MSFT", "linear", "linear", 0.5, uint16(2), []float64{400.1, 400.2}, sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, store.SaveRun(context.Background(), sampleRun()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCHForecastStoreLatest(t *testing.T) {
	db, mock := newMock(t)
	store := NewCHForecastStore(db, "fincast")

	payload, err := json.Marshal(sampleRun().Results["MSFT"])
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT payload FROM fincast\.forecasts WHERE symbol = \?`).
		WithArgs("MSFT").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(string(payload)))
	mock.ExpectQuery(`SELECT payload FROM fincast\.forecasts WHERE symbol = \?`).
		WithArgs("NONE").
		WillReturnError(sql.ErrNoRows)

	r, err := store.Latest(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, []float64{400.1, 400.2}, r.Forecast)

	_, err = store.Latest(context.Background(), "NONE")
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestCHForecastStoreLatestAll(t *testing.T) {
	db, mock := newMock(t)
	store := NewCHForecastStore(db, "fincast")

	run := sampleRun()
	a, _ := json.Marshal(run.Results["AAPL"])
	m, _ := json.Marshal(run.Results["MSFT"])
	mock.ExpectQuery(`SELECT argMax\(payload, completed_at\) FROM fincast\.forecasts GROUP BY symbol`).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(string(a)).AddRow(string(m)))

	all, err := store.LatestAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "AAPL", all[0].Symbol)
	assert.Equal(t, "MSFT", all[1].Symbol)
}
