package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultBaseURL は接続先バックエンドAPIの既定のベースURL。
// デスクトップアプリと同一マシンで動作するローカルバックエンドを指す。
const DefaultBaseURL = "http://localhost:8000"

// Client はバックエンドAPIへのリクエスト転送を行うGatewayクライアント。
// 各操作はHTTPリクエストを1回発行し、レスポンスボディを文字列として
// そのまま返す。呼び出し間で状態を共有せず、同時に呼び出しても安全。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	// タイムアウトは設定しない。応答しないバックエンドへの呼び出しは、
	// その呼び出しだけが完了までブロックされる。
	httpClient *http.Client
	// baseURL は接続先バックエンドのベースURL。
	baseURL string
}

// New は新しいGatewayクライアントを生成する。
// baseURLには接続先バックエンドのベースURL（例: "http://localhost:8000"）を指定する。
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
	}
}

// chatRequest は POST /api/chat のリクエストボディ。
// バックエンドとの契約上、フィールドはこの2つのみでキー名も固定。
type chatRequest struct {
	// Message はユーザーが入力したメッセージ本文。
	Message string `json:"message"`
	// SessionID は会話を識別するセッションID。
	SessionID string `json:"session_id"`
}

// SendChatMessage はチャットメッセージをバックエンドに送信し、
// レスポンスボディをそのまま返す。
func (c *Client) SendChatMessage(ctx context.Context, message, sessionID string) (string, error) {
	body, err := json.Marshal(chatRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: OpSendChatMessage, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: OpSendChatMessage, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	return c.forward(OpSendChatMessage, req)
}

// GetChatHistory は指定セッションのチャット履歴を取得し、
// レスポンスボディをそのまま返す。
// セッションIDはパスセグメントとして埋め込む。
func (c *Client) GetChatHistory(ctx context.Context, sessionID string) (string, error) {
	endpoint := c.baseURL + "/api/chat/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: OpGetChatHistory, Err: err}
	}
	return c.forward(OpGetChatHistory, req)
}

// CheckAPIHealth はバックエンドのヘルスチェックエンドポイントを呼び出し、
// レスポンスボディをそのまま返す。
func (c *Client) CheckAPIHealth(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: OpCheckAPIHealth, Err: err}
	}
	return c.forward(OpCheckAPIHealth, req)
}

// UploadFile はファイルをバックエンドにアップロードし、
// レスポンスボディをそのまま返す。
// ファイル内容はマルチパートフォームのfileパートとして送信する。
// ファイル種別やサイズの検証はバックエンド側の責務であり、ここでは行わない。
func (c *Client) UploadFile(ctx context.Context, sessionID, filename string, file io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: OpUploadFile, Err: err}
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", &Error{Kind: KindTransport, Op: OpUploadFile, Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &Error{Kind: KindTransport, Op: OpUploadFile, Err: err}
	}

	endpoint := c.baseURL + "/api/upload?session_id=" + url.QueryEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: OpUploadFile, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.forward(OpUploadFile, req)
}

// GetUploadedFiles は指定セッションにアップロード済みのファイル一覧を取得し、
// レスポンスボディをそのまま返す。
func (c *Client) GetUploadedFiles(ctx context.Context, sessionID string) (string, error) {
	endpoint := c.baseURL + "/api/files/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: OpGetUploadedFiles, Err: err}
	}
	return c.forward(OpGetUploadedFiles, req)
}

// DeleteFile はアップロード済みファイルを削除し、レスポンスボディをそのまま返す。
func (c *Client) DeleteFile(ctx context.Context, fileID int64) (string, error) {
	endpoint := c.baseURL + "/api/files/" + strconv.FormatInt(fileID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: OpDeleteFile, Err: err}
	}
	return c.forward(OpDeleteFile, req)
}

// ClearChatHistory は指定セッションのチャット履歴を削除し、
// レスポンスボディをそのまま返す。
func (c *Client) ClearChatHistory(ctx context.Context, sessionID string) (string, error) {
	endpoint := c.baseURL + "/api/chat/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: OpClearChatHistory, Err: err}
	}
	return c.forward(OpClearChatHistory, req)
}

// ListSessions はアクティブなセッションの一覧を取得し、
// レスポンスボディをそのまま返す。
func (c *Client) ListSessions(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sessions", nil)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: OpListSessions, Err: err}
	}
	return c.forward(OpListSessions, req)
}

// forward はリクエストを送信し、レスポンスボディを文字列として返す共通処理。
// ステータスコードは確認しない。4xx/5xxでもボディが読み取れれば成功として
// ボディをそのまま返す。
func (c *Client) forward(op Op, req *http.Request) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindReadBody, Op: op, Err: err}
	}
	return string(body), nil
}
