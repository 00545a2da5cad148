package repository

import "fmt"

// ClickHouseSchema returns the idempotent DDL for database db.
func ClickHouseSchema(db string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.price_bars (
			symbol     LowCardinality(String),
			interval   LowCardinality(String),
			date       DateTime('UTC'),
			open       Float64,
			high       Float64,
			low        Float64,
			close      Float64,
			volume     Float64,
			fetched_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(fetched_at)
		ORDER BY (symbol, interval, date)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.operations_audit (
			id             String,
			portfolio_id   String,
			symbol         LowCardinality(String),
			operation_type LowCardinality(String),
			quantity       Decimal(38, 10),
			price          Decimal(38, 10),
			fees           Decimal(38, 10),
			total_amount   Decimal(38, 10),
			operation_date DateTime64(3, 'UTC'),
			notes          String,
			created_at     DateTime64(3, 'UTC'),
			position_closed UInt8
		) ENGINE = ReplacingMergeTree(created_at)
		ORDER BY (portfolio_id, operation_date, id)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.analysis_requests (
			id            String,
			scope_kind    LowCardinality(String),
			scope_id      String,
			status        LowCardinality(String),
			error_message String,
			analysis_id   String,
			requested_at  DateTime64(3, 'UTC'),
			completed_at  Nullable(DateTime64(3, 'UTC')),
			version       DateTime64(6, 'UTC')
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY id`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.analysis_history (
			id           String,
			scope_kind   LowCardinality(String),
			scope_id     String,
			payload      String,
			generated_at DateTime64(3, 'UTC'),
			expires_at   DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (scope_kind, scope_id, generated_at)`, db),
	}
}
