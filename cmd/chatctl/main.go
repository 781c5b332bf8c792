// チャットバックエンドを操作する開発用CLI。
// ブリッジデーモンを経由せず、転送クライアントで直接バックエンドAPIを呼び出す。
// 成功時はバックエンドの応答テキストをそのまま標準出力へ書き出す。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/aibridge/pkg/gateway"
)

const usage = `Usage: chatctl [-base URL] <command> [flags]

Commands:
  send        -message <text> [-session <id>]  チャットメッセージを送信する
  history     [-session <id>]                  チャット履歴を取得する
  clear       [-session <id>]                  セッションをクリアする
  health                                       バックエンドのヘルスチェックを行う
  sessions                                     セッション一覧を取得する
  files       [-session <id>]                  アップロード済みファイル一覧を取得する
  upload      -file <path> [-session <id>]     MP3/MP4ファイルをアップロードする
  delete-file -id <file_id>                    アップロード済みファイルを削除する
`

func main() {
	baseURL := flag.String("base", gateway.DefaultBaseURL, "バックエンドAPIのベースURL")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	client := gateway.New(*baseURL)
	ctx := context.Background()

	var (
		result string
		err    error
	)

	switch args[0] {
	case "send":
		result, err = runSend(ctx, client, args[1:])
	case "history":
		result, err = runHistory(ctx, client, args[1:])
	case "clear":
		result, err = runClear(ctx, client, args[1:])
	case "health":
		result, err = client.CheckAPIHealth(ctx)
	case "sessions":
		result, err = client.ListSessions(ctx)
	case "files":
		result, err = runFiles(ctx, client, args[1:])
	case "upload":
		result, err = runUpload(ctx, client, args[1:])
	case "delete-file":
		result, err = runDeleteFile(ctx, client, args[1:])
	default:
		failf("unknown command: %s", args[0])
	}

	if err != nil {
		fail(err.Error())
	}
	writeStdoutln(result)
}

func runSend(ctx context.Context, client *gateway.Client, args []string) (string, error) {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	message := fs.String("message", "", "送信するメッセージ本文")
	session := fs.String("session", "default", "セッションID")
	parseFlags(fs, args)

	if strings.TrimSpace(*message) == "" {
		fail("send: -message is required")
	}
	return client.SendChatMessage(ctx, *message, *session)
}

func runHistory(ctx context.Context, client *gateway.Client, args []string) (string, error) {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	session := fs.String("session", "default", "セッションID")
	parseFlags(fs, args)

	return client.GetChatHistory(ctx, *session)
}

func runClear(ctx context.Context, client *gateway.Client, args []string) (string, error) {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	session := fs.String("session", "default", "セッションID")
	parseFlags(fs, args)

	return client.ClearChatHistory(ctx, *session)
}

func runFiles(ctx context.Context, client *gateway.Client, args []string) (string, error) {
	fs := flag.NewFlagSet("files", flag.ContinueOnError)
	session := fs.String("session", "default", "セッションID")
	parseFlags(fs, args)

	return client.GetUploadedFiles(ctx, *session)
}

func runUpload(ctx context.Context, client *gateway.Client, args []string) (string, error) {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	path := fs.String("file", "", "アップロードするファイルのパス")
	session := fs.String("session", "default", "セッションID")
	parseFlags(fs, args)

	if *path == "" {
		fail("upload: -file is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		failf("upload: %v", err)
	}
	defer f.Close()

	return client.UploadFile(ctx, *session, filepath.Base(*path), f)
}

func runDeleteFile(ctx context.Context, client *gateway.Client, args []string) (string, error) {
	fs := flag.NewFlagSet("delete-file", flag.ContinueOnError)
	id := fs.Int64("id", 0, "削除するファイルのID")
	parseFlags(fs, args)

	if *id <= 0 {
		fail("delete-file: -id is required")
	}
	return client.DeleteFile(ctx, *id)
}

func parseFlags(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		fail(err.Error())
	}
}

func printUsage() {
	if _, err := fmt.Fprint(os.Stderr, usage); err != nil {
		os.Exit(1)
	}
}

func fail(msg string) {
	if _, err := fmt.Fprintln(os.Stderr, msg); err != nil {
		os.Exit(1)
	}
	os.Exit(1)
}

func failf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format+"\n", args...); err != nil {
		os.Exit(1)
	}
	os.Exit(1)
}

func writeStdoutln(line string) {
	if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
		os.Exit(1)
	}
}
