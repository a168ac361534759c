// Package app はコマンドラインの起動処理と依存関係の組み立てを提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hitoshi/socialauth/internal/config"
	"github.com/hitoshi/socialauth/internal/database"
	"github.com/hitoshi/socialauth/internal/logger"
	"github.com/hitoshi/socialauth/internal/model"
	"github.com/hitoshi/socialauth/internal/repository"
	"github.com/hitoshi/socialauth/internal/user"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.Options{})

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定のログレベルと実行環境でロガーを再構成する
	logger.SetupDefault(w, logger.Options{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
	})

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	// フラグの誤りは設定読み込みより先に報告する
	var (
		adminEmail  string
		migrateOpts MigrateOptions
	)
	switch cmd {
	case CommandSetAdmin:
		email, err := ParseSetAdminFlags(args[1:], w)
		if err != nil {
			return fmt.Errorf("invalid set-admin arguments: %w", err)
		}
		adminEmail = email
	case CommandMigrate:
		opts, err := ParseMigrateFlags(args[1:], w)
		if err != nil {
			return fmt.Errorf("invalid migrate arguments: %w", err)
		}
		migrateOpts = opts
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("environment", cfg.Environment),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, migrateOpts)
	case CommandSetAdmin:
		return runSetAdmin(cfg, adminEmail)
	default:
		return runServe(cfg)
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// 通常はすべての未適用マイグレーションを順番に適用し、downの場合は指定件数だけ取り消す。
func runMigrate(cfg *config.Config, opts MigrateOptions) error {
	if opts.Down {
		slog.Info("rolling back database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
			slog.Int("steps", opts.Steps),
		)
		version, err := database.RollbackMigrations(cfg.DatabaseURL, opts.Steps)
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database rollback completed", slog.Uint64("version", uint64(version)))
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runSetAdmin はメールアドレスで指定したユーザーに管理者権限を付与する。
// 既に管理者の場合は何もせず成功とする。
func runSetAdmin(cfg *config.Config, email string) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return setAdmin(ctx, user.NewService(repository.NewPostgresUserRepo(db), nil), email)
}

// adminSetter はset-adminコマンドが必要とするサービスインターフェース。
type adminSetter interface {
	SetAdminByEmail(ctx context.Context, email string) (*model.User, error)
}

func setAdmin(ctx context.Context, svc adminSetter, email string) error {
	u, err := svc.SetAdminByEmail(ctx, email)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeAlreadyAdmin {
			slog.Info("user is already an admin", slog.String("email", email))
			return nil
		}
		return fmt.Errorf("failed to set admin %s: %w", email, err)
	}

	slog.Info("admin access granted",
		slog.Int64("user_id", u.ID),
		slog.String("email", email),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
