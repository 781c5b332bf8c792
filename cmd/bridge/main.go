// ブリッジデーモンのエントリポイント。
// デスクトップシェルのWebViewからのRPCを受け付け、バックエンドAPIへ転送する。
// ループバックでの利用を前提としたローカルサービス。
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/nao1215/aibridge/internal/bridge"
)

func main() {
	// .envファイルがあれば読み込む。なくても起動は続行する。
	if err := godotenv.Load(); err != nil {
		log.Printf(".envファイルが見つからないため、環境変数をそのまま使用します")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "4780"
	}

	server, err := bridge.NewServer(port)
	if err != nil {
		log.Fatalf("ブリッジサーバーの初期化に失敗: %v", err)
	}

	log.Printf("ブリッジデーモンを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("ブリッジデーモンの起動に失敗: %v", err)
	}
}
