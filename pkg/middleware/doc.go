// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリ、CORS設定、リクエストIDの採番など、
// ブリッジデーモンとスタブAPIサーバーで共通して使用するミドルウェアを含む。
package middleware
