// スタブバックエンドのエントリポイント。
// 本番のバックエンドAPIと同じHTTPコントラクトをSQLite上で提供する。
// バックエンドが手元にない開発環境での動作確認に使用する。
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/nao1215/aibridge/internal/stubapi"
)

func main() {
	// .envファイルがあれば読み込む。なくても起動は続行する。
	if err := godotenv.Load(); err != nil {
		log.Printf(".envファイルが見つからないため、環境変数をそのまま使用します")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	server, err := stubapi.NewServer(port)
	if err != nil {
		log.Fatalf("スタブバックエンドサーバーの初期化に失敗: %v", err)
	}

	log.Printf("スタブバックエンドを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("スタブバックエンドの起動に失敗: %v", err)
	}
}
