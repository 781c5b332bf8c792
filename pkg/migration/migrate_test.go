package migration

import (
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

// openTestDB はテスト用のインメモリSQLiteデータベースを開く。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("テスト用データベースのオープンに失敗: %v", err)
	}
	// インメモリDBは接続ごとに独立するため、接続を1本に固定する
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestRun はRun関数を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("マイグレーションがバージョン順に適用されること", func(t *testing.T) {
		t.Parallel()

		// 000002は000001が作るテーブルに依存するため、順序が崩れると失敗する
		fsys := fstest.MapFS{
			"migrations/000002_add_index.up.sql": &fstest.MapFile{
				Data: []byte("CREATE INDEX idx_notes_body ON notes(body)"),
			},
			"migrations/000001_create_notes.up.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL)"),
			},
		}

		db := openTestDB(t)
		if err := Run(db, fsys, "migrations"); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}

		if _, err := db.Exec("INSERT INTO notes (body) VALUES ('hello')"); err != nil {
			t.Errorf("マイグレーション適用後のINSERTに失敗: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの参照に失敗: %v", err)
		}
		if count != 2 {
			t.Errorf("適用済みバージョン数 = %d, want 2", count)
		}
	})

	t.Run("適用済みのマイグレーションが再実行されないこと", func(t *testing.T) {
		t.Parallel()

		// IF NOT EXISTSを付けないため、再実行されるとエラーになる
		fsys := fstest.MapFS{
			"migrations/000001_create_notes.up.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY)"),
			},
		}

		db := openTestDB(t)
		if err := Run(db, fsys, "migrations"); err != nil {
			t.Fatalf("1回目のRun()でエラーが発生: %v", err)
		}
		if err := Run(db, fsys, "migrations"); err != nil {
			t.Fatalf("2回目のRun()でエラーが発生: %v", err)
		}
	})

	t.Run("SQLが不正な場合にエラーとなりバージョンが記録されないこと", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{
			"migrations/000001_broken.up.sql": &fstest.MapFile{
				Data: []byte("CREATE TABL notes (id INTEGER)"),
			},
		}

		db := openTestDB(t)
		if err := Run(db, fsys, "migrations"); err == nil {
			t.Fatal("Run()がエラーを返すべきだが、nilが返った")
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの参照に失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("失敗したマイグレーションのバージョンが記録されている: count = %d", count)
		}
	})

	t.Run("バージョン番号で始まらないファイルが無視されること", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{
			"migrations/000001_create_notes.up.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY)"),
			},
			"migrations/seed_data.up.sql": &fstest.MapFile{
				Data: []byte("INSERT INTO missing_table VALUES (1)"),
			},
		}

		db := openTestDB(t)
		if err := Run(db, fsys, "migrations"); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの参照に失敗: %v", err)
		}
		if count != 1 {
			t.Errorf("適用済みバージョン数 = %d, want 1", count)
		}
	})

	t.Run("後から追加されたマイグレーションだけが適用されること", func(t *testing.T) {
		t.Parallel()

		first := fstest.MapFS{
			"migrations/000001_create_notes.up.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY)"),
			},
		}
		second := fstest.MapFS{
			"migrations/000001_create_notes.up.sql": first["migrations/000001_create_notes.up.sql"],
			"migrations/000002_create_tags.up.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT)"),
			},
		}

		db := openTestDB(t)
		if err := Run(db, first, "migrations"); err != nil {
			t.Fatalf("1回目のRun()でエラーが発生: %v", err)
		}
		if err := Run(db, second, "migrations"); err != nil {
			t.Fatalf("2回目のRun()でエラーが発生: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの参照に失敗: %v", err)
		}
		if count != 2 {
			t.Errorf("適用済みバージョン数 = %d, want 2", count)
		}
	})
}
