// Package migration はSQLiteデータベースのスキーマ適用を管理する。
// embed.FSに埋め込んだSQLファイルをバージョン順に適用し、
// 適用済みバージョンをschema_migrationsテーブルで追跡する。
package migration

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
)

// createMigrationsTable は適用済みバージョンを追跡するテーブルのDDL。
const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
)`

// Run はfsys内のdir直下にあるマイグレーションファイルのうち、
// 未適用のものだけをバージョン順に適用する。
// ファイル名は「000001_create_messages.up.sql」の形式で、
// 先頭の数値がバージョンとなる。
func Run(db *sql.DB, fsys fs.FS, dir string) error {
	if _, err := db.Exec(createMigrationsTable); err != nil {
		return fmt.Errorf("schema_migrationsテーブルの作成に失敗: %w", err)
	}

	migrations, err := collect(fsys, dir)
	if err != nil {
		return fmt.Errorf("マイグレーションファイルの収集に失敗: %w", err)
	}

	for _, m := range migrations {
		done, err := isApplied(db, m.version)
		if err != nil {
			return fmt.Errorf("適用状態の確認に失敗: %w", err)
		}
		if done {
			continue
		}

		if err := apply(db, fsys, m); err != nil {
			return fmt.Errorf("マイグレーション%sの適用に失敗: %w", m.filename, err)
		}
		log.Printf("[Migration] %s を適用しました", m.filename)
	}
	return nil
}

// migrationFile は1つのマイグレーションファイルを表す。
type migrationFile struct {
	// version はファイル名先頭の数値バージョン。
	version int
	// filename は拡張子を含むファイル名。
	filename string
	// path はfsys内のフルパス。
	path string
}

// collect はdir直下の*.up.sqlファイルをバージョン昇順で返す。
// バージョン番号で始まらないファイル名は無視する。
func collect(fsys fs.FS, dir string) ([]migrationFile, error) {
	paths, err := fs.Glob(fsys, dir+"/*.up.sql")
	if err != nil {
		return nil, err
	}

	migrations := make([]migrationFile, 0, len(paths))
	for _, p := range paths {
		filename := path.Base(p)
		prefix, _, ok := strings.Cut(filename, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		migrations = append(migrations, migrationFile{
			version:  version,
			filename: filename,
			path:     p,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}

// isApplied は指定バージョンが適用済みかどうかを返す。
func isApplied(db *sql.DB, version int) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// apply は1つのマイグレーションをトランザクション内で実行し、バージョンを記録する。
// SQLの実行とバージョンの記録はまとめてコミットされ、失敗時はどちらも残らない。
func apply(db *sql.DB, fsys fs.FS, m migrationFile) error {
	content, err := fs.ReadFile(fsys, m.path)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("SQLの実行に失敗: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("適用バージョンの記録に失敗: %w", err)
	}
	return tx.Commit()
}
