package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/moodfox/internal/app"
	"github.com/moodfox/internal/config"
	"github.com/moodfox/internal/db"
	"github.com/moodfox/internal/telemetry"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatalf("moodfox: %v", err)
	}
}

func newRootCommand() *cobra.Command {
	serve := newServeCommand()
	cmd := &cobra.Command{
		Use:           "moodfox",
		Short:         "情绪日记与心灵探险服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	cmd.AddCommand(serve, newMigrateCommand(), newSeedUserCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务与后台生成任务",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := db.Init(cfg.DatabasePath); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			log.Printf("数据库迁移完成: %s", cfg.DatabasePath)
			return nil
		},
	}
}

func newSeedUserCommand() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "seed-user",
		Short: "创建登录账号",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := db.Init(cfg.DatabasePath); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			created, err := db.EnsureUser(db.DB, username, password)
			if err != nil {
				return err
			}
			if created {
				log.Printf("已创建账号 %s", username)
			} else {
				log.Printf("账号 %s 已存在或参数为空，未做修改", username)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "登录用户名")
	cmd.Flags().StringVarP(&password, "password", "p", "", "登录密码")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func serve(parent context.Context, cfg config.AppConfig) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.GinMode)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("moodfox 监听 %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to run server: %w", err)
		}
	case <-ctx.Done():
		log.Printf("收到退出信号，开始关闭服务")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	// 先停 HTTP 再排空后台任务，避免新任务进入已关闭的队列
	if err := application.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	return errors.Join(errs...)
}
