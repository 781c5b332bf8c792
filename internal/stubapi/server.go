package stubapi

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/aibridge/pkg/middleware"
	_ "modernc.org/sqlite"
)

// maxUploadSize はマルチパートフォーム処理に割り当てる最大メモリ（50MB）。
var maxUploadSize int64 = 50 << 20

// allowedFileExtensions はアップロードを許可するファイル拡張子。
var allowedFileExtensions = []string{".mp3", ".mp4"}

// defaultSessionID はsession_id未指定時に使用されるセッションID。
const defaultSessionID = "default"

// Server はスタブバックエンドのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はデータベースクエリの実行オブジェクト。
	queries *Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// dataDir はアップロードファイルの保存先ディレクトリ。
	dataDir string
}

// NewServer は新しいスタブバックエンドサーバーを生成する。
// SQLiteデータベースの初期化とアップロード保存先の作成を行う。
func NewServer(port string) (*Server, error) {
	dbPath := os.Getenv("STUB_DB_PATH")
	if dbPath == "" {
		dbPath = "stubapi.db"
	}
	dataDir := os.Getenv("STUB_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	sqlDB, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("アップロード保存先の作成に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	// マルチパートフォームの最大メモリを設定する。
	router.MaxMultipartMemory = maxUploadSize

	s := &Server{
		router:  router,
		port:    port,
		queries: NewQueries(sqlDB),
		db:      sqlDB,
		dataDir: dataDir,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		// チャットメッセージの送信
		api.POST("/chat", s.handleChat())
		// チャット履歴の取得
		api.GET("/chat/:session_id", s.handleGetChatHistory())
		// セッションのクリア
		api.DELETE("/chat/:session_id", s.handleClearChatSession())
		// セッション一覧の取得
		api.GET("/sessions", s.handleListSessions())
		// ファイルのアップロード（マルチパートフォーム）
		api.POST("/upload", s.handleUploadFile())
		// アップロード済みファイル一覧の取得
		api.GET("/files/:session_id", s.handleGetUploadedFiles())
		// ファイルの削除
		api.DELETE("/files/:file_id", s.handleDeleteFile())
		// ヘルスチェック
		api.GET("/health", s.handleHealthCheck())
	}
}

// chatRequest はチャットメッセージ送信リクエストのJSON構造。
type chatRequest struct {
	// Message はユーザーが送信するメッセージ本文。
	Message string `json:"message"`
	// SessionID は会話を識別するセッションID。省略時は"default"。
	SessionID string `json:"session_id"`
}

// messageModel はレスポンスに含まれるメッセージのJSON構造。
type messageModel struct {
	// ID はメッセージの一意識別子。
	ID int64 `json:"id"`
	// Type はメッセージ種別（"user"または"ai"）。
	Type string `json:"type"`
	// Message はメッセージ本文。
	Message string `json:"message"`
	// Timestamp は記録日時（ISO 8601形式）。
	Timestamp string `json:"timestamp"`
}

// chatResponse はチャットメッセージ送信のレスポンス。
type chatResponse struct {
	// Success は処理が成功したかどうか。
	Success bool `json:"success"`
	// UserMessage は保存されたユーザーメッセージ。
	UserMessage messageModel `json:"user_message"`
	// AIResponse は生成されたAI応答メッセージ。
	AIResponse messageModel `json:"ai_response"`
	// SessionID は会話を識別するセッションID。
	SessionID string `json:"session_id"`
}

// handleChat はチャットメッセージの受付を処理するハンドラを返す。
// ユーザーメッセージを保存し、スタブのAI応答を生成して保存し、両方を返す。
func (s *Server) handleChat() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Invalid request body: %v", err)})
			return
		}

		if strings.TrimSpace(req.Message) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Message cannot be empty"})
			return
		}

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = defaultSessionID
		}

		now := time.Now()
		if err := s.getOrCreateSession(c, sessionID, now); err != nil {
			log.Printf("セッションの作成に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Internal server error: %v", err)})
			return
		}

		userMsg, err := s.queries.CreateMessage(c.Request.Context(), CreateMessageParams{
			SessionID: sessionID,
			Type:      "user",
			Message:   req.Message,
			Timestamp: isoTimestamp(now),
		})
		if err != nil {
			log.Printf("ユーザーメッセージの保存に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Internal server error: %v", err)})
			return
		}

		aiMsg, err := s.queries.CreateMessage(c.Request.Context(), CreateMessageParams{
			SessionID: sessionID,
			Type:      "ai",
			Message:   generateStubResponse(req.Message),
			Timestamp: isoTimestamp(time.Now()),
		})
		if err != nil {
			log.Printf("AI応答メッセージの保存に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Internal server error: %v", err)})
			return
		}

		if err := s.queries.UpdateSessionActivity(c.Request.Context(), sessionID, isoTimestamp(time.Now())); err != nil {
			// 最終利用日時の更新失敗は応答を妨げない。
			log.Printf("セッションの最終利用日時の更新に失敗: %v", err)
		}

		c.JSON(http.StatusOK, chatResponse{
			Success:     true,
			UserMessage: toMessageModel(userMsg),
			AIResponse:  toMessageModel(aiMsg),
			SessionID:   sessionID,
		})
	}
}

// chatHistoryResponse はチャット履歴取得のレスポンス。
type chatHistoryResponse struct {
	// Success は処理が成功したかどうか。
	Success bool `json:"success"`
	// Messages はセッション内のメッセージ一覧（記録順）。
	Messages []messageModel `json:"messages"`
	// SessionID は会話を識別するセッションID。
	SessionID string `json:"session_id"`
}

// handleGetChatHistory はチャット履歴の取得を処理するハンドラを返す。
// 未知のセッションIDでもエラーにはせず、空の履歴を返す。
func (s *Server) handleGetChatHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session_id")

		messages, err := s.queries.ListMessagesBySession(c.Request.Context(), sessionID)
		if err != nil {
			log.Printf("チャット履歴の取得に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Failed to retrieve chat history: %v", err)})
			return
		}

		// メッセージ0件のときはnullではなく空配列を返す。
		models := make([]messageModel, 0, len(messages))
		for _, m := range messages {
			models = append(models, toMessageModel(m))
		}

		c.JSON(http.StatusOK, chatHistoryResponse{
			Success:   true,
			Messages:  models,
			SessionID: sessionID,
		})
	}
}

// handleClearChatSession はセッションのクリアを処理するハンドラを返す。
// セッションを削除すると、属するメッセージも外部キー制約で削除される。
func (s *Server) handleClearChatSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session_id")

		if _, err := s.queries.GetSessionByID(c.Request.Context(), sessionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"detail": "Session not found"})
				return
			}
			log.Printf("セッションの取得に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}

		if err := s.queries.DeleteSession(c.Request.Context(), sessionID); err != nil {
			log.Printf("セッションの削除に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}

		log.Printf("セッションをクリアしました: %s", sessionID)

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": fmt.Sprintf("Session %s cleared", sessionID),
		})
	}
}

// sessionSummary はセッション一覧の1要素。
type sessionSummary struct {
	// SessionID は会話を識別するセッションID。
	SessionID string `json:"session_id"`
	// MessageCount はセッション内のメッセージ数。
	MessageCount int64 `json:"message_count"`
	// CreatedAt はセッションの作成日時（ISO 8601形式）。
	CreatedAt string `json:"created_at"`
	// LastActivity は最終利用日時（ISO 8601形式）。
	LastActivity string `json:"last_activity"`
}

// sessionListResponse はセッション一覧取得のレスポンス。
type sessionListResponse struct {
	// Success は処理が成功したかどうか。
	Success bool `json:"success"`
	// Sessions はセッションの一覧（最終利用日時の新しい順）。
	Sessions []sessionSummary `json:"sessions"`
}

// handleListSessions はセッション一覧の取得を処理するハンドラを返す。
func (s *Server) handleListSessions() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions, err := s.queries.ListSessions(c.Request.Context())
		if err != nil {
			log.Printf("セッション一覧の取得に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}

		summaries := make([]sessionSummary, 0, len(sessions))
		for _, sess := range sessions {
			count, err := s.queries.CountMessagesBySession(c.Request.Context(), sess.SessionID)
			if err != nil {
				log.Printf("メッセージ数の取得に失敗: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
				return
			}
			summaries = append(summaries, sessionSummary{
				SessionID:    sess.SessionID,
				MessageCount: count,
				CreatedAt:    sess.CreatedAt,
				LastActivity: sess.LastActivity,
			})
		}

		c.JSON(http.StatusOK, sessionListResponse{Success: true, Sessions: summaries})
	}
}

// fileUploadResponse はファイルアップロードのレスポンス。
type fileUploadResponse struct {
	// Success は処理が成功したかどうか。
	Success bool `json:"success"`
	// Filename はアップロード時の元のファイル名。
	Filename string `json:"filename"`
	// FilePath は保存先のファイルパス。
	FilePath string `json:"file_path"`
	// FileSize はファイルサイズ（バイト）。
	FileSize int64 `json:"file_size"`
	// FileID は採番されたファイルID。
	FileID int64 `json:"file_id"`
	// Message は結果を説明するメッセージ。
	Message string `json:"message"`
}

// handleUploadFile はファイルのアップロードを処理するハンドラを返す。
// マルチパートフォームからファイルを受け取り、拡張子を検証し、
// ディスクに保存してメタデータをデータベースに記録する。
func (s *Server) handleUploadFile() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			sessionID = defaultSessionID
		}

		// マルチパートフォームからファイルを取得する。
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "No file provided"})
			return
		}
		defer file.Close()

		if header.Filename == "" {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "No file provided"})
			return
		}

		// 拡張子のバリデーション。
		filename := filepath.Base(header.Filename)
		ext := strings.ToLower(filepath.Ext(filename))
		if !isAllowedExtension(ext) {
			c.JSON(http.StatusBadRequest, gin.H{
				"detail": fmt.Sprintf("Invalid file type. Only %s files are allowed.", strings.Join(allowedFileExtensions, ", ")),
			})
			return
		}

		// 保存名にタイムスタンプを付けて名前の衝突を避ける。
		now := time.Now()
		storedName := fmt.Sprintf("%s_%s", now.Format("20060102_150405"), filename)
		storagePath := filepath.Join(s.dataDir, storedName)

		dst, err := os.Create(storagePath)
		if err != nil {
			log.Printf("ファイルの作成に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("File upload failed: %v", err)})
			return
		}
		defer dst.Close()

		written, err := io.Copy(dst, file)
		if err != nil {
			log.Printf("ファイルの書き込みに失敗: %v", err)
			if removeErr := os.Remove(storagePath); removeErr != nil {
				log.Printf("クリーンアップ失敗: %v", removeErr)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("File upload failed: %v", err)})
			return
		}

		log.Printf("ファイルを保存しました: %s", storagePath)

		record, err := s.queries.CreateUploadedFile(c.Request.Context(), CreateUploadedFileParams{
			SessionID:  sessionID,
			Filename:   filename,
			FilePath:   storagePath,
			FileType:   header.Header.Get("Content-Type"),
			FileSize:   written,
			UploadedAt: isoTimestamp(now),
		})
		if err != nil {
			log.Printf("ファイルメタデータの保存に失敗: %v", err)
			// メタデータを記録できなかったファイルはディスクから取り除く。
			if removeErr := os.Remove(storagePath); removeErr != nil {
				log.Printf("クリーンアップ失敗: %v", removeErr)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("File upload failed: %v", err)})
			return
		}

		c.JSON(http.StatusOK, fileUploadResponse{
			Success:  true,
			Filename: filename,
			FilePath: storagePath,
			FileSize: written,
			FileID:   record.ID,
			Message:  fmt.Sprintf("File '%s' uploaded successfully", filename),
		})
	}
}

// fileInfo はファイル一覧の1要素。
type fileInfo struct {
	// ID はファイルの一意識別子。
	ID int64 `json:"id"`
	// Filename はアップロード時の元のファイル名。
	Filename string `json:"filename"`
	// FilePath は保存先のファイルパス。
	FilePath string `json:"file_path"`
	// FileType はファイルのContent-Type。
	FileType string `json:"file_type"`
	// FileSize はファイルサイズ（バイト）。
	FileSize int64 `json:"file_size"`
	// UploadedAt はアップロード日時（ISO 8601形式）。
	UploadedAt string `json:"uploaded_at"`
}

// fileListResponse はファイル一覧取得のレスポンス。
type fileListResponse struct {
	// Success は処理が成功したかどうか。
	Success bool `json:"success"`
	// Files はアップロード済みファイルの一覧（アップロード日時の新しい順）。
	Files []fileInfo `json:"files"`
}

// handleGetUploadedFiles はアップロード済みファイル一覧の取得を処理するハンドラを返す。
func (s *Server) handleGetUploadedFiles() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session_id")

		files, err := s.queries.ListFilesBySession(c.Request.Context(), sessionID)
		if err != nil {
			log.Printf("ファイル一覧の取得に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Failed to retrieve files: %v", err)})
			return
		}

		infos := make([]fileInfo, 0, len(files))
		for _, f := range files {
			infos = append(infos, fileInfo{
				ID:         f.ID,
				Filename:   f.Filename,
				FilePath:   f.FilePath,
				FileType:   f.FileType,
				FileSize:   f.FileSize,
				UploadedAt: f.UploadedAt,
			})
		}

		c.JSON(http.StatusOK, fileListResponse{Success: true, Files: infos})
	}
}

// handleDeleteFile はファイルの削除を処理するハンドラを返す。
// ディスク上のファイルとデータベースのメタデータの両方を削除する。
func (s *Server) handleDeleteFile() gin.HandlerFunc {
	return func(c *gin.Context) {
		fileID, err := strconv.ParseInt(c.Param("file_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid file ID"})
			return
		}

		record, err := s.queries.GetFileByID(c.Request.Context(), fileID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"detail": "File not found"})
				return
			}
			log.Printf("ファイルの取得に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Failed to delete file: %v", err)})
			return
		}

		// ディスクからの削除に失敗しても、メタデータの削除は続行する。
		if err := os.Remove(record.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("ディスクからのファイル削除に失敗: %v", err)
		}

		if err := s.queries.DeleteFile(c.Request.Context(), fileID); err != nil {
			log.Printf("ファイルレコードの削除に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Failed to delete file: %v", err)})
			return
		}

		log.Printf("ファイルを削除しました: %d", fileID)

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": fmt.Sprintf("File '%s' deleted successfully", record.Filename),
			"file_id": fileID,
		})
	}
}

// handleHealthCheck はヘルスチェックを処理するハンドラを返す。
func (s *Server) handleHealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": isoTimestamp(time.Now()),
		})
	}
}

// getOrCreateSession はセッションを取得し、存在しなければ新規作成する。
func (s *Server) getOrCreateSession(c *gin.Context, sessionID string, now time.Time) error {
	_, err := s.queries.GetSessionByID(c.Request.Context(), sessionID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	ts := isoTimestamp(now)
	if err := s.queries.CreateSession(c.Request.Context(), CreateSessionParams{
		SessionID:    sessionID,
		CreatedAt:    ts,
		LastActivity: ts,
	}); err != nil {
		return err
	}

	log.Printf("新しいセッションを作成しました: %s", sessionID)
	return nil
}

// generateStubResponse はスタブのAI応答を生成する。
// 実際のLLMは呼び出さず、受け取ったメッセージを埋め込んだ定型文を返す。
func generateStubResponse(message string) string {
	return fmt.Sprintf("スタブ応答: %s", message)
}

// toMessageModel はデータベースの行をレスポンス用のmessageModelに変換する。
func toMessageModel(m Message) messageModel {
	return messageModel{
		ID:        m.ID,
		Type:      m.Type,
		Message:   m.Message,
		Timestamp: m.Timestamp,
	}
}

// isoTimestamp は時刻をISO 8601形式の文字列に変換する。
func isoTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000000")
}

// isAllowedExtension はアップロードを許可する拡張子かどうかを判定する。
func isAllowedExtension(ext string) bool {
	for _, allowed := range allowedFileExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
