package migrations

import "embed"

// PostgresFS embeds the run-catalog migration files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the candle-table migration files.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
