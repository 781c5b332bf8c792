package stubapi

import (
	"database/sql"
	"embed"

	"github.com/nao1215/aibridge/pkg/migration"
)

// migrationFiles はスキーマ定義のSQLファイルを埋め込んだファイルシステム。
//
//go:embed migrations/*.sql
var migrationFiles embed.FS

// initSchema はマイグレーションを適用してデータベーススキーマを初期化する。
// 適用済みのマイグレーションはスキップされるため、起動のたびに呼び出してよい。
func initSchema(db *sql.DB) error {
	return migration.Run(db, migrationFiles, "migrations")
}
