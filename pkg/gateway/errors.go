package gateway

import "fmt"

// ErrorKind はGateway呼び出しが失敗した段階を表す種別。
// 失敗はこの2種類のみであり、どちらも単一の呼び出しで完結する。
// リトライやエスカレーションは行わない。
type ErrorKind int

const (
	// KindTransport はリクエストを送信できなかった、
	// またはレスポンスを受信できなかったことを表す。
	KindTransport ErrorKind = iota + 1
	// KindReadBody はレスポンスは受信できたが、
	// ボディを最後まで読み取れなかったことを表す。
	KindReadBody
)

// Op は失敗した操作を表す操作名。
type Op string

const (
	// OpSendChatMessage はチャットメッセージ送信操作。
	OpSendChatMessage Op = "SendChatMessage"
	// OpGetChatHistory はチャット履歴取得操作。
	OpGetChatHistory Op = "GetChatHistory"
	// OpCheckAPIHealth はバックエンドのヘルスチェック操作。
	OpCheckAPIHealth Op = "CheckAPIHealth"
	// OpUploadFile はファイルアップロード操作。
	OpUploadFile Op = "UploadFile"
	// OpGetUploadedFiles はアップロード済みファイル一覧取得操作。
	OpGetUploadedFiles Op = "GetUploadedFiles"
	// OpDeleteFile はアップロード済みファイル削除操作。
	OpDeleteFile Op = "DeleteFile"
	// OpClearChatHistory はチャット履歴削除操作。
	OpClearChatHistory Op = "ClearChatHistory"
	// OpListSessions はセッション一覧取得操作。
	OpListSessions Op = "ListSessions"
)

// requestFailurePrefix は操作ごとのリクエスト失敗メッセージの接頭辞を返す。
// 既存のフロントエンドはこの接頭辞で成功テキストと失敗テキストを見分けるため、
// 文言を変更してはならない。
func (o Op) requestFailurePrefix() string {
	switch o {
	case OpGetChatHistory:
		return "Failed to get history"
	case OpCheckAPIHealth:
		return "Failed to check health"
	case OpUploadFile:
		return "Failed to upload file"
	case OpGetUploadedFiles:
		return "Failed to list files"
	case OpDeleteFile:
		return "Failed to delete file"
	case OpClearChatHistory:
		return "Failed to clear history"
	case OpListSessions:
		return "Failed to list sessions"
	default:
		// OpSendChatMessageを含む
		return "Failed to send request"
	}
}

// readFailurePrefix はボディ読み取り失敗メッセージの接頭辞。全操作で共通。
const readFailurePrefix = "Failed to read response"

// Error はGateway呼び出しの失敗を表すエラー。
// Error()が返す文字列は「Failed to ...: 原因」形式であり、
// フロントエンドにそのまま表示できる。
type Error struct {
	// Kind は失敗の種別。
	Kind ErrorKind
	// Op は失敗した操作。
	Op Op
	// Err は根本原因のエラー。
	Err error
}

// Error は失敗メッセージを返す。
// リクエスト失敗時は操作ごとの接頭辞、ボディ読み取り失敗時は
// 共通の接頭辞に原因を続けた文字列を返す。
func (e *Error) Error() string {
	if e.Kind == KindReadBody {
		return fmt.Sprintf("%s: %v", readFailurePrefix, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op.requestFailurePrefix(), e.Err)
}

// Unwrap は根本原因のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}
