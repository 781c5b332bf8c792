// Package gateway はバックエンドAPIへのリクエスト転送を行うクライアントを提供する。
//
// デスクトップシェルのチャット操作（メッセージ送信、履歴取得、ヘルスチェックなど）を
// ローカルバックエンドへのHTTPリクエストに変換し、レスポンスボディを加工せず
// そのまま文字列として返す。ボディのパースとHTTPステータスコードの解釈は行わない。
// バックエンドがエラーをステータスコードやボディで表現していても、
// その解釈は呼び出し元の責務である。
package gateway
