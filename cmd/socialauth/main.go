// Command socialauth はソーシャルログインAPIサーバーを起動する。
//
// サブコマンド:
//
//	serve        APIサーバーを起動する（既定）
//	migrate      データベースマイグレーションを適用する
//	set-admin    --email で指定したユーザーを管理者にする
//	healthcheck  起動中のサーバーの /health を確認する
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/socialauth/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "socialauth: %v\n", err)
		os.Exit(1)
	}
}
