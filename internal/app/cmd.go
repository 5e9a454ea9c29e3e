package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hitoshi/passgate/internal/config"
)

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンドの指定がない場合はserveとして起動する。
// SIGINTまたはSIGTERMを受信すると各モードはグレースフルに終了する。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCmd はpassgateのルートコマンドを生成する。
// ルートコマンド自体はserveと同じ動作をする。
func NewRootCmd(w io.Writer) *cobra.Command {
	serve := newServeCmd(w)

	cmd := &cobra.Command{
		Use:           "passgate",
		Short:         "Session-authenticated web server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	cmd.AddCommand(serve)
	cmd.AddCommand(newMigrateCmd(w))
	cmd.AddCommand(newWorkerCmd(w))
	cmd.AddCommand(newHealthcheckCmd())

	return cmd
}

func newServeCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := initCommand(w, "serve")
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func newMigrateCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := initCommand(w, "migrate")
			if err != nil {
				return err
			}
			return runMigrate(cfg)
		},
	}
}

func newWorkerCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the expired-session cleanup only",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := initCommand(w, "worker")
			if err != nil {
				return err
			}
			return runWorker(cmd.Context(), cfg)
		},
	}
}

// newHealthcheckCmd は軽量サブコマンドのため、フル初期化（必須環境変数の検証）をスキップする。
func newHealthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the local /health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			host := os.Getenv("HOST")
			if host == "" {
				host = ":3000"
			}
			return runHealthcheck(cmd.Context(), config.NormalizeHost(host))
		},
	}
}

func initCommand(w io.Writer, name string) (*config.Config, error) {
	cfg, err := Init(w)
	if err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", name),
		slog.String("host", cfg.Host),
		slog.String("session_store", cfg.SessionStore),
	)
	return cfg, nil
}
