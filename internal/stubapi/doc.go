// Package stubapi は開発用のスタブバックエンドAPIサーバーを提供する。
//
// 本番のアシスタントバックエンド（LLMで応答を生成するサーバー）と同じ
// HTTPコントラクトをSQLiteの上に実装し、バックエンドを起動しなくても
// ブリッジデーモンとデスクトップシェルの開発・動作確認をできるようにする。
// アシスタントの応答は定型文であり、言語モデルは使用しない。
// レスポンスのフィールド名とエラー形式は本番バックエンドに合わせている。
package stubapi
