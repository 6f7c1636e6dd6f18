package app

// Command は起動モード（サブコマンド）を表す。
type Command string

const (
	// CommandServe はページとJSON APIを提供するゲートウェイとして起動する。
	CommandServe Command = "serve"
	// CommandWorker はclient_stateのクリーンアップを行うワーカーとして起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はclient_stateテーブルのマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のゲートウェイの /health を確認する。
	// distrolessイメージにはcurlがないため、Dockerのヘルスチェックで使う。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数からサブコマンドを決める。
// 引数がない場合や未知のコマンドはserveとして扱う。2番目以降の引数は見ない。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
