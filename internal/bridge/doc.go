// Package bridge はデスクトップシェルのWebViewから呼び出されるローカルRPCサーバーを提供する。
// 各RPCはバックエンドAPIへの転送操作と1対1で対応し、転送結果を
// ステータスコード200のテキストとしてそのまま返す。転送の成否は
// レスポンス本文が"Failed to "で始まるかどうかで呼び出し側が判別する。
package bridge
