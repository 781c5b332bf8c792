package bridge

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/aibridge/pkg/gateway"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer はテスト用のブリッジサーバーを構築する。
// backendURLにはhttptestで立てたモックバックエンドのURLを渡す。
func setupTestServer(t *testing.T, backendURL string) *gin.Engine {
	t.Helper()

	router := gin.New()
	s := &Server{
		router:        router,
		port:          "0",
		backendClient: gateway.New(backendURL),
	}
	s.setupRoutes()

	return router
}

// postRPC はテスト用にRPCエンドポイントへJSONリクエストを送信するヘルパー関数。
func postRPC(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(http.MethodPost, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestBridgeHealthCheck はブリッジ自身のヘルスチェックエンドポイントを検証する。
func TestBridgeHealthCheck(t *testing.T) {
	t.Parallel()

	router := setupTestServer(t, "http://127.0.0.1:1")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}

	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v", err)
	}
	if result["status"] != "ok" {
		t.Errorf("status: got %v, want ok", result["status"])
	}
	if result["service"] != "bridge" {
		t.Errorf("service: got %v, want bridge", result["service"])
	}
}

// TestHandleSendChatMessage はチャットメッセージ送信RPCのテスト。
func TestHandleSendChatMessage(t *testing.T) {
	t.Parallel()

	t.Run("バックエンドの応答をそのままテキストで返すこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("メソッド: got %s, want POST", r.Method)
			}
			if r.URL.Path != "/api/chat" {
				t.Errorf("パス: got %s, want /api/chat", r.URL.Path)
			}
			body, _ := io.ReadAll(r.Body)
			var req map[string]string
			if err := json.Unmarshal(body, &req); err != nil {
				t.Errorf("リクエストボディの解析に失敗: %v", err)
			}
			if req["message"] != "こんにちは" {
				t.Errorf("message: got %s, want こんにちは", req["message"])
			}
			if req["session_id"] != "session-1" {
				t.Errorf("session_id: got %s, want session-1", req["session_id"])
			}
			w.Header().Set("Content-Type", "application/json")
			if _, err := w.Write([]byte(`{"success":true,"session_id":"session-1"}`)); err != nil {
				t.Errorf("レスポンスの書き込みに失敗: %v", err)
			}
		}))
		t.Cleanup(backend.Close)

		router := setupTestServer(t, backend.URL)

		w := postRPC(router, "/rpc/send_chat_message", map[string]string{
			"message":    "こんにちは",
			"session_id": "session-1",
		})

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != `{"success":true,"session_id":"session-1"}` {
			t.Errorf("ボディ: got %s", got)
		}
		if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
			t.Errorf("Content-Type: got %s, want text/plain; charset=utf-8", ct)
		}
	})

	t.Run("バックエンドがエラーステータスでも本文をそのまま返すこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			if _, err := w.Write([]byte(`{"detail":"Internal server error"}`)); err != nil {
				t.Errorf("レスポンスの書き込みに失敗: %v", err)
			}
		}))
		t.Cleanup(backend.Close)

		router := setupTestServer(t, backend.URL)

		w := postRPC(router, "/rpc/send_chat_message", map[string]string{"message": "hi", "session_id": "s"})

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != `{"detail":"Internal server error"}` {
			t.Errorf("ボディ: got %s", got)
		}
	})

	t.Run("バックエンドに到達できない場合は失敗メッセージを返すこと", func(t *testing.T) {
		t.Parallel()

		router := setupTestServer(t, "http://127.0.0.1:1")

		w := postRPC(router, "/rpc/send_chat_message", map[string]string{"message": "hi", "session_id": "s"})

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); !strings.HasPrefix(got, "Failed to send request: ") {
			t.Errorf("ボディがFailed to send request: で始まっていません: %s", got)
		}
	})

	t.Run("引数が不正なJSONの場合はBadRequest", func(t *testing.T) {
		t.Parallel()

		router := setupTestServer(t, "http://127.0.0.1:1")

		req := httptest.NewRequest(http.MethodPost, "/rpc/send_chat_message", bytes.NewReader([]byte("{invalid")))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleGetChatHistory はチャット履歴取得RPCのテスト。
func TestHandleGetChatHistory(t *testing.T) {
	t.Parallel()

	t.Run("セッションIDをパスに埋め込んでバックエンドへ転送すること", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("メソッド: got %s, want GET", r.Method)
			}
			if r.URL.Path != "/api/chat/session-9" {
				t.Errorf("パス: got %s, want /api/chat/session-9", r.URL.Path)
			}
			if _, err := w.Write([]byte(`{"success":true,"messages":[]}`)); err != nil {
				t.Errorf("レスポンスの書き込みに失敗: %v", err)
			}
		}))
		t.Cleanup(backend.Close)

		router := setupTestServer(t, backend.URL)

		w := postRPC(router, "/rpc/get_chat_history", map[string]string{"session_id": "session-9"})

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != `{"success":true,"messages":[]}` {
			t.Errorf("ボディ: got %s", got)
		}
	})

	t.Run("バックエンドに到達できない場合は失敗メッセージを返すこと", func(t *testing.T) {
		t.Parallel()

		router := setupTestServer(t, "http://127.0.0.1:1")

		w := postRPC(router, "/rpc/get_chat_history", map[string]string{"session_id": "s"})

		if got := w.Body.String(); !strings.HasPrefix(got, "Failed to get history: ") {
			t.Errorf("ボディがFailed to get history: で始まっていません: %s", got)
		}
	})
}

// TestHandleCheckAPIHealth はバックエンドヘルスチェックRPCのテスト。
func TestHandleCheckAPIHealth(t *testing.T) {
	t.Parallel()

	t.Run("バックエンドのヘルスチェック結果をそのまま返すこと", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/health" {
				t.Errorf("パス: got %s, want /api/health", r.URL.Path)
			}
			if _, err := w.Write([]byte(`{"status":"healthy"}`)); err != nil {
				t.Errorf("レスポンスの書き込みに失敗: %v", err)
			}
		}))
		t.Cleanup(backend.Close)

		router := setupTestServer(t, backend.URL)

		w := postRPC(router, "/rpc/check_api_health", nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != `{"status":"healthy"}` {
			t.Errorf("ボディ: got %s", got)
		}
	})

	t.Run("バックエンドに到達できない場合は失敗メッセージを返すこと", func(t *testing.T) {
		t.Parallel()

		router := setupTestServer(t, "http://127.0.0.1:1")

		w := postRPC(router, "/rpc/check_api_health", nil)

		if got := w.Body.String(); !strings.HasPrefix(got, "Failed to check health: ") {
			t.Errorf("ボディがFailed to check health: で始まっていません: %s", got)
		}
	})
}

// TestHandleUploadFile はファイルアップロードRPCのテスト。
func TestHandleUploadFile(t *testing.T) {
	t.Parallel()

	t.Run("ファイルとセッションIDをバックエンドへ転送すること", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/upload" {
				t.Errorf("パス: got %s, want /api/upload", r.URL.Path)
			}
			if got := r.URL.Query().Get("session_id"); got != "session-up" {
				t.Errorf("session_idクエリ: got %s, want session-up", got)
			}
			file, header, err := r.FormFile("file")
			if err != nil {
				t.Errorf("fileパートの取得に失敗: %v", err)
				return
			}
			defer file.Close()
			if header.Filename != "voice.mp3" {
				t.Errorf("ファイル名: got %s, want voice.mp3", header.Filename)
			}
			content, _ := io.ReadAll(file)
			if string(content) != "dummy audio data" {
				t.Errorf("ファイル内容: got %s, want dummy audio data", content)
			}
			if _, err := w.Write([]byte(`{"success":true,"file_id":1}`)); err != nil {
				t.Errorf("レスポンスの書き込みに失敗: %v", err)
			}
		}))
		t.Cleanup(backend.Close)

		router := setupTestServer(t, backend.URL)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "voice.mp3")
		if err != nil {
			t.Fatalf("マルチパートフォームの作成に失敗: %v", err)
		}
		if _, err := fw.Write([]byte("dummy audio data")); err != nil {
			t.Fatalf("ファイル内容の書き込みに失敗: %v", err)
		}
		if err := mw.WriteField("session_id", "session-up"); err != nil {
			t.Fatalf("session_idフィールドの書き込みに失敗: %v", err)
		}
		if err := mw.Close(); err != nil {
			t.Fatalf("マルチパートフォームのクローズに失敗: %v", err)
		}

		req := httptest.NewRequest(http.MethodPost, "/rpc/upload_file", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		if got := w.Body.String(); got != `{"success":true,"file_id":1}` {
			t.Errorf("ボディ: got %s", got)
		}
	})

	t.Run("ファイルパートがない場合はBadRequest", func(t *testing.T) {
		t.Parallel()

		router := setupTestServer(t, "http://127.0.0.1:1")

		req := httptest.NewRequest(http.MethodPost, "/rpc/upload_file", bytes.NewReader(nil))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleGetUploadedFiles はアップロード済みファイル一覧取得RPCのテスト。
func TestHandleGetUploadedFiles(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("メソッド: got %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/files/session-f" {
			t.Errorf("パス: got %s, want /api/files/session-f", r.URL.Path)
		}
		if _, err := w.Write([]byte(`{"success":true,"files":[]}`)); err != nil {
			t.Errorf("レスポンスの書き込みに失敗: %v", err)
		}
	}))
	t.Cleanup(backend.Close)

	router := setupTestServer(t, backend.URL)

	w := postRPC(router, "/rpc/get_uploaded_files", map[string]string{"session_id": "session-f"})

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != `{"success":true,"files":[]}` {
		t.Errorf("ボディ: got %s", got)
	}
}

// TestHandleDeleteFile はファイル削除RPCのテスト。
func TestHandleDeleteFile(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("メソッド: got %s, want DELETE", r.Method)
		}
		if r.URL.Path != "/api/files/42" {
			t.Errorf("パス: got %s, want /api/files/42", r.URL.Path)
		}
		if _, err := w.Write([]byte(`{"success":true,"file_id":42}`)); err != nil {
			t.Errorf("レスポンスの書き込みに失敗: %v", err)
		}
	}))
	t.Cleanup(backend.Close)

	router := setupTestServer(t, backend.URL)

	w := postRPC(router, "/rpc/delete_file", map[string]int64{"file_id": 42})

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != `{"success":true,"file_id":42}` {
		t.Errorf("ボディ: got %s", got)
	}
}

// TestHandleClearChatHistory はセッションクリアRPCのテスト。
func TestHandleClearChatHistory(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("メソッド: got %s, want DELETE", r.Method)
		}
		if r.URL.Path != "/api/chat/session-c" {
			t.Errorf("パス: got %s, want /api/chat/session-c", r.URL.Path)
		}
		if _, err := w.Write([]byte(`{"success":true,"message":"Session session-c cleared"}`)); err != nil {
			t.Errorf("レスポンスの書き込みに失敗: %v", err)
		}
	}))
	t.Cleanup(backend.Close)

	router := setupTestServer(t, backend.URL)

	w := postRPC(router, "/rpc/clear_chat_history", map[string]string{"session_id": "session-c"})

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != `{"success":true,"message":"Session session-c cleared"}` {
		t.Errorf("ボディ: got %s", got)
	}
}

// TestHandleListSessions はセッション一覧取得RPCのテスト。
func TestHandleListSessions(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("メソッド: got %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/sessions" {
			t.Errorf("パス: got %s, want /api/sessions", r.URL.Path)
		}
		if _, err := w.Write([]byte(`{"success":true,"sessions":[]}`)); err != nil {
			t.Errorf("レスポンスの書き込みに失敗: %v", err)
		}
	}))
	t.Cleanup(backend.Close)

	router := setupTestServer(t, backend.URL)

	w := postRPC(router, "/rpc/list_sessions", nil)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != `{"success":true,"sessions":[]}` {
		t.Errorf("ボディ: got %s", got)
	}
}

// TestNewServer は環境変数による設定の読み込みを検証する。
// t.Setenvを使用するため並列実行しない。
func TestNewServer(t *testing.T) {
	t.Run("環境変数でバックエンドURLを上書きできること", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if _, err := w.Write([]byte(`{"status":"healthy"}`)); err != nil {
				t.Errorf("レスポンスの書き込みに失敗: %v", err)
			}
		}))
		t.Cleanup(backend.Close)

		t.Setenv("BACKEND_API_URL", backend.URL)

		s, err := NewServer("4780")
		if err != nil {
			t.Fatalf("サーバーの生成に失敗: %v", err)
		}
		if s.port != "4780" {
			t.Errorf("port: got %s, want 4780", s.port)
		}

		w := postRPC(s.router, "/rpc/check_api_health", nil)
		if got := w.Body.String(); got != `{"status":"healthy"}` {
			t.Errorf("ボディ: got %s", got)
		}
	})

	t.Run("デフォルトのCORSオリジンが許可されること", func(t *testing.T) {
		t.Setenv("BACKEND_API_URL", "")
		t.Setenv("ALLOWED_ORIGINS", "")

		s, err := NewServer("4780")
		if err != nil {
			t.Fatalf("サーバーの生成に失敗: %v", err)
		}

		req := httptest.NewRequest(http.MethodOptions, "/rpc/list_sessions", nil)
		req.Header.Set("Origin", "tauri://localhost")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "tauri://localhost" {
			t.Errorf("Access-Control-Allow-Origin: got %s, want tauri://localhost", got)
		}
	})

	t.Run("ALLOWED_ORIGINSでCORSオリジンを上書きできること", func(t *testing.T) {
		t.Setenv("ALLOWED_ORIGINS", "http://example.com")

		s, err := NewServer("4780")
		if err != nil {
			t.Fatalf("サーバーの生成に失敗: %v", err)
		}

		req := httptest.NewRequest(http.MethodOptions, "/rpc/list_sessions", nil)
		req.Header.Set("Origin", "tauri://localhost")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("許可されていないオリジンにAccess-Control-Allow-Originが付与されています: %s", got)
		}
	})
}

// TestParseOrigins はカンマ区切りオリジン指定の分解を検証する。
func TestParseOrigins(t *testing.T) {
	t.Parallel()

	t.Run("空白を除去して分解できること", func(t *testing.T) {
		t.Parallel()

		got := parseOrigins("tauri://localhost, http://localhost:1420 ,http://example.com")
		want := []string{"tauri://localhost", "http://localhost:1420", "http://example.com"}

		if len(got) != len(want) {
			t.Fatalf("要素数: got %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("got[%d]: %s, want %s", i, got[i], want[i])
			}
		}
	})

	t.Run("空要素は無視されること", func(t *testing.T) {
		t.Parallel()

		got := parseOrigins("tauri://localhost,,http://localhost:1420,")
		if len(got) != 2 {
			t.Errorf("要素数: got %d, want 2", len(got))
		}
	})
}
