package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandSetAdmin はメールアドレスで指定したユーザーを管理者にすることを示す。
	CommandSetAdmin Command = "set-admin"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "set-admin", "set:admin":
		return CommandSetAdmin
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// ParseSetAdminFlags はset-adminサブコマンドのフラグを解析し、対象のメールアドレスを返す。
// argsにはサブコマンド名を除いた引数を渡す。
func ParseSetAdminFlags(args []string, output io.Writer) (string, error) {
	fs := pflag.NewFlagSet(string(CommandSetAdmin), pflag.ContinueOnError)
	fs.SetOutput(output)
	email := fs.StringP("email", "e", "", "管理者にするユーザーのメールアドレス")

	if err := fs.Parse(args); err != nil {
		return "", err
	}
	// --emailを省略した位置引数も受け付ける
	if *email == "" && fs.NArg() > 0 {
		*email = fs.Arg(0)
	}
	if strings.TrimSpace(*email) == "" {
		return "", fmt.Errorf("--email is required")
	}
	return strings.TrimSpace(*email), nil
}

// MigrateOptions はmigrateサブコマンドのオプション。
type MigrateOptions struct {
	Down  bool // trueの場合はロールバックする
	Steps int  // ロールバックする件数
}

// ParseMigrateFlags はmigrateサブコマンドの引数を解析する。
// "migrate down --steps 2" のように down を指定した場合のみロールバックする。
func ParseMigrateFlags(args []string, output io.Writer) (MigrateOptions, error) {
	fs := pflag.NewFlagSet(string(CommandMigrate), pflag.ContinueOnError)
	fs.SetOutput(output)
	steps := fs.IntP("steps", "n", 1, "ロールバックするマイグレーションの件数")

	if err := fs.Parse(args); err != nil {
		return MigrateOptions{}, err
	}

	opts := MigrateOptions{Steps: *steps}
	switch fs.Arg(0) {
	case "", "up":
	case "down":
		opts.Down = true
	default:
		return MigrateOptions{}, fmt.Errorf("unknown migrate direction: %s", fs.Arg(0))
	}
	if opts.Down && opts.Steps < 1 {
		return MigrateOptions{}, fmt.Errorf("--steps must be positive: %d", opts.Steps)
	}
	return opts, nil
}
