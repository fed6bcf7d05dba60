package clickhouse

import "fmt"

// Table names used by the repositories.
const (
	BarsTable      = "bars"
	ForecastsTable = "forecasts"
)

// SchemaStatements returns the DDL for the FinCast tables in database.
func SchemaStatements(database string) []string {
	if database == "" {
		database = "default"
	}
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	symbol LowCardinality(String),
	interval LowCardinality(String),
	ts DateTime64(3, 'UTC'),
	open Float64,
	high Float64,
	low Float64,
	close Float64,
	volume Float64,
	vwap Float64,
	transactions Int64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, interval, ts)`, database, BarsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	run_id String,
	symbol LowCardinality(String),
	model LowCardinality(String),
	model_name String,
	best_mae Float64,
	horizon UInt16,
	predictions Array(Float64),
	payload String,
	completed_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (symbol, completed_at)`, database, ForecastsTable),
	}
}
