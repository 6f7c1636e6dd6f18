// Command hansang は생일한상のBFFゲートウェイ。
//
//	hansang serve        HTTPサーバー
//	hansang worker       client_stateのクリーンアップ
//	hansang migrate      マイグレーション
//	hansang healthcheck  コンテナのヘルスチェック
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/hansang/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
