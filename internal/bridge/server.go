package bridge

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/aibridge/pkg/gateway"
	"github.com/nao1215/aibridge/pkg/middleware"
)

// defaultAllowedOrigins はCORSで許可するデフォルトのオリジン。
// Tauri WebViewとViteの開発サーバーに対応する。
const defaultAllowedOrigins = "tauri://localhost,http://localhost:1420"

// Server はブリッジデーモンのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// backendClient はバックエンドAPIへの転送クライアント。
	backendClient *gateway.Client
}

// NewServer は新しいブリッジサーバーを生成する。
func NewServer(port string) (*Server, error) {
	backendURL := getEnvOr("BACKEND_API_URL", gateway.DefaultBaseURL)
	allowedOrigins := parseOrigins(getEnvOr("ALLOWED_ORIGINS", defaultAllowedOrigins))

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(allowedOrigins))

	s := &Server{
		router:        router,
		port:          port,
		backendClient: gateway.New(backendURL),
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
	rpc := s.router.Group("/rpc")
	{
		// チャットメッセージの送信
		rpc.POST("/send_chat_message", s.handleSendChatMessage())
		// チャット履歴の取得
		rpc.POST("/get_chat_history", s.handleGetChatHistory())
		// バックエンドAPIのヘルスチェック
		rpc.POST("/check_api_health", s.handleCheckAPIHealth())
		// ファイルのアップロード（マルチパートフォーム）
		rpc.POST("/upload_file", s.handleUploadFile())
		// アップロード済みファイル一覧の取得
		rpc.POST("/get_uploaded_files", s.handleGetUploadedFiles())
		// ファイルの削除
		rpc.POST("/delete_file", s.handleDeleteFile())
		// セッションのクリア
		rpc.POST("/clear_chat_history", s.handleClearChatHistory())
		// セッション一覧の取得
		rpc.POST("/list_sessions", s.handleListSessions())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "bridge"})
	})
}

// sendChatMessageArgs はsend_chat_message RPCの引数。
type sendChatMessageArgs struct {
	// Message はユーザーが送信するメッセージ本文。
	Message string `json:"message"`
	// SessionID は会話を識別するセッションID。
	SessionID string `json:"session_id"`
}

// handleSendChatMessage はチャットメッセージ送信RPCを処理するハンドラを返す。
func (s *Server) handleSendChatMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		var args sendChatMessageArgs
		if err := c.ShouldBindJSON(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("引数の解析に失敗しました: %v", err)})
			return
		}

		result, err := s.backendClient.SendChatMessage(c.Request.Context(), args.Message, args.SessionID)
		respondText(c, result, err)
	}
}

// getChatHistoryArgs はget_chat_history RPCの引数。
type getChatHistoryArgs struct {
	// SessionID は会話を識別するセッションID。
	SessionID string `json:"session_id"`
}

// handleGetChatHistory はチャット履歴取得RPCを処理するハンドラを返す。
func (s *Server) handleGetChatHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		var args getChatHistoryArgs
		if err := c.ShouldBindJSON(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("引数の解析に失敗しました: %v", err)})
			return
		}

		result, err := s.backendClient.GetChatHistory(c.Request.Context(), args.SessionID)
		respondText(c, result, err)
	}
}

// handleCheckAPIHealth はバックエンドAPIのヘルスチェックRPCを処理するハンドラを返す。
func (s *Server) handleCheckAPIHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.backendClient.CheckAPIHealth(c.Request.Context())
		respondText(c, result, err)
	}
}

// handleUploadFile はファイルアップロードRPCを処理するハンドラを返す。
// マルチパートフォームのfileパートをそのままバックエンドAPIへ転送する。
func (s *Server) handleUploadFile() gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("ファイルの取得に失敗しました: %v", err)})
			return
		}
		defer file.Close()

		sessionID := c.PostForm("session_id")

		result, err := s.backendClient.UploadFile(c.Request.Context(), sessionID, header.Filename, file)
		respondText(c, result, err)
	}
}

// getUploadedFilesArgs はget_uploaded_files RPCの引数。
type getUploadedFilesArgs struct {
	// SessionID は会話を識別するセッションID。
	SessionID string `json:"session_id"`
}

// handleGetUploadedFiles はアップロード済みファイル一覧取得RPCを処理するハンドラを返す。
func (s *Server) handleGetUploadedFiles() gin.HandlerFunc {
	return func(c *gin.Context) {
		var args getUploadedFilesArgs
		if err := c.ShouldBindJSON(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("引数の解析に失敗しました: %v", err)})
			return
		}

		result, err := s.backendClient.GetUploadedFiles(c.Request.Context(), args.SessionID)
		respondText(c, result, err)
	}
}

// deleteFileArgs はdelete_file RPCの引数。
type deleteFileArgs struct {
	// FileID は削除対象のファイルID。
	FileID int64 `json:"file_id"`
}

// handleDeleteFile はファイル削除RPCを処理するハンドラを返す。
func (s *Server) handleDeleteFile() gin.HandlerFunc {
	return func(c *gin.Context) {
		var args deleteFileArgs
		if err := c.ShouldBindJSON(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("引数の解析に失敗しました: %v", err)})
			return
		}

		result, err := s.backendClient.DeleteFile(c.Request.Context(), args.FileID)
		respondText(c, result, err)
	}
}

// clearChatHistoryArgs はclear_chat_history RPCの引数。
type clearChatHistoryArgs struct {
	// SessionID は会話を識別するセッションID。
	SessionID string `json:"session_id"`
}

// handleClearChatHistory はセッションクリアRPCを処理するハンドラを返す。
func (s *Server) handleClearChatHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		var args clearChatHistoryArgs
		if err := c.ShouldBindJSON(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("引数の解析に失敗しました: %v", err)})
			return
		}

		result, err := s.backendClient.ClearChatHistory(c.Request.Context(), args.SessionID)
		respondText(c, result, err)
	}
}

// handleListSessions はセッション一覧取得RPCを処理するハンドラを返す。
func (s *Server) handleListSessions() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.backendClient.ListSessions(c.Request.Context())
		respondText(c, result, err)
	}
}

// respondText は転送結果をステータスコード200のテキストとして返す。
// 転送に失敗した場合もエラーメッセージを200のテキストとして返し、
// 呼び出し側は本文が"Failed to "で始まるかどうかで成否を判別する。
func respondText(c *gin.Context, result string, err error) {
	if err != nil {
		log.Printf("転送に失敗: %v", err)
		c.String(http.StatusOK, err.Error())
		return
	}
	c.String(http.StatusOK, result)
}

// parseOrigins はカンマ区切りのオリジン指定を分解する。
func parseOrigins(value string) []string {
	parts := strings.Split(value, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
