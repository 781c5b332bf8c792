package stubapi

import (
	"context"
	"database/sql"
)

// Session はsessionsテーブルの1行を表す。
type Session struct {
	// SessionID は会話を識別するセッションID。
	SessionID string
	// CreatedAt はセッションの作成日時（ISO 8601形式）。
	CreatedAt string
	// LastActivity は最終利用日時（ISO 8601形式）。
	LastActivity string
}

// Message はmessagesテーブルの1行を表す。
type Message struct {
	// ID はメッセージの一意識別子。
	ID int64
	// SessionID はメッセージが属するセッションのID。
	SessionID string
	// Type はメッセージ種別（"user"または"ai"）。
	Type string
	// Message はメッセージ本文。
	Message string
	// Timestamp は記録日時（ISO 8601形式）。
	Timestamp string
}

// UploadedFile はuploaded_filesテーブルの1行を表す。
type UploadedFile struct {
	// ID はファイルの一意識別子。
	ID int64
	// SessionID はファイルが属するセッションのID。
	SessionID string
	// Filename はアップロード時の元のファイル名。
	Filename string
	// FilePath は保存先のファイルパス。
	FilePath string
	// FileType はファイルのContent-Type。
	FileType string
	// FileSize はファイルサイズ（バイト）。
	FileSize int64
	// UploadedAt はアップロード日時（ISO 8601形式）。
	UploadedAt string
}

// Queries はデータベースクエリの実行オブジェクト。
type Queries struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewQueries は新しいQueriesを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// GetSessionByID はセッションIDでセッションを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetSessionByID(ctx context.Context, sessionID string) (Session, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT session_id, created_at, last_activity FROM sessions WHERE session_id = ?", sessionID)

	var s Session
	err := row.Scan(&s.SessionID, &s.CreatedAt, &s.LastActivity)
	return s, err
}

// CreateSessionParams はCreateSessionの引数。
type CreateSessionParams struct {
	// SessionID は作成するセッションのID。
	SessionID string
	// CreatedAt は作成日時。
	CreatedAt string
	// LastActivity は最終利用日時。
	LastActivity string
}

// CreateSession は新しいセッションを作成する。
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO sessions (session_id, created_at, last_activity) VALUES (?, ?, ?)",
		arg.SessionID, arg.CreatedAt, arg.LastActivity)
	return err
}

// UpdateSessionActivity はセッションの最終利用日時を更新する。
func (q *Queries) UpdateSessionActivity(ctx context.Context, sessionID, lastActivity string) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ? WHERE session_id = ?", lastActivity, sessionID)
	return err
}

// ListSessions はすべてのセッションを最終利用日時の新しい順で取得する。
func (q *Queries) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT session_id, created_at, last_activity FROM sessions ORDER BY last_activity DESC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.SessionID, &s.CreatedAt, &s.LastActivity); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteSession はセッションを削除する。
// messagesテーブルの該当行は外部キーのON DELETE CASCADEで削除される。
func (q *Queries) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID)
	return err
}

// CreateMessageParams はCreateMessageの引数。
type CreateMessageParams struct {
	// SessionID はメッセージが属するセッションのID。
	SessionID string
	// Type はメッセージ種別（"user"または"ai"）。
	Type string
	// Message はメッセージ本文。
	Message string
	// Timestamp は記録日時。
	Timestamp string
}

// CreateMessage はメッセージを保存し、採番されたIDを含む行を返す。
func (q *Queries) CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error) {
	row := q.db.QueryRowContext(ctx,
		`INSERT INTO messages (session_id, type, message, timestamp) VALUES (?, ?, ?, ?)
		 RETURNING id, session_id, type, message, timestamp`,
		arg.SessionID, arg.Type, arg.Message, arg.Timestamp)

	var m Message
	err := row.Scan(&m.ID, &m.SessionID, &m.Type, &m.Message, &m.Timestamp)
	return m, err
}

// ListMessagesBySession は指定セッションのメッセージを記録順で取得する。
func (q *Queries) ListMessagesBySession(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, session_id, type, message, timestamp FROM messages
		 WHERE session_id = ? ORDER BY timestamp, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Type, &m.Message, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CountMessagesBySession は指定セッションのメッセージ数を返す。
func (q *Queries) CountMessagesBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&count)
	return count, err
}

// CreateUploadedFileParams はCreateUploadedFileの引数。
type CreateUploadedFileParams struct {
	// SessionID はファイルが属するセッションのID。
	SessionID string
	// Filename はアップロード時の元のファイル名。
	Filename string
	// FilePath は保存先のファイルパス。
	FilePath string
	// FileType はファイルのContent-Type。
	FileType string
	// FileSize はファイルサイズ（バイト）。
	FileSize int64
	// UploadedAt はアップロード日時。
	UploadedAt string
}

// CreateUploadedFile はファイルのメタデータを保存し、採番されたIDを含む行を返す。
func (q *Queries) CreateUploadedFile(ctx context.Context, arg CreateUploadedFileParams) (UploadedFile, error) {
	row := q.db.QueryRowContext(ctx,
		`INSERT INTO uploaded_files (session_id, filename, file_path, file_type, file_size, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id, session_id, filename, file_path, file_type, file_size, uploaded_at`,
		arg.SessionID, arg.Filename, arg.FilePath, arg.FileType, arg.FileSize, arg.UploadedAt)

	var f UploadedFile
	err := row.Scan(&f.ID, &f.SessionID, &f.Filename, &f.FilePath, &f.FileType, &f.FileSize, &f.UploadedAt)
	return f, err
}

// GetFileByID はファイルIDでアップロード済みファイルを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetFileByID(ctx context.Context, id int64) (UploadedFile, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, session_id, filename, file_path, file_type, file_size, uploaded_at
		 FROM uploaded_files WHERE id = ?`, id)

	var f UploadedFile
	err := row.Scan(&f.ID, &f.SessionID, &f.Filename, &f.FilePath, &f.FileType, &f.FileSize, &f.UploadedAt)
	return f, err
}

// ListFilesBySession は指定セッションのファイルをアップロード日時の新しい順で取得する。
func (q *Queries) ListFilesBySession(ctx context.Context, sessionID string) ([]UploadedFile, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, session_id, filename, file_path, file_type, file_size, uploaded_at
		 FROM uploaded_files WHERE session_id = ? ORDER BY uploaded_at DESC, id DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var files []UploadedFile
	for rows.Next() {
		var f UploadedFile
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Filename, &f.FilePath, &f.FileType, &f.FileSize, &f.UploadedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFile はアップロード済みファイルのメタデータを削除する。
func (q *Queries) DeleteFile(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM uploaded_files WHERE id = ?", id)
	return err
}
