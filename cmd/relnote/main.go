package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/relnote/internal/config"
	"github.com/xxxsen/relnote/internal/handler"
	"github.com/xxxsen/relnote/internal/job"
	"github.com/xxxsen/relnote/internal/middleware"
	"github.com/xxxsen/relnote/internal/pkg/jwt"
	"github.com/xxxsen/relnote/internal/schedule"
)

const drainTimeout = 30 * time.Second

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "relnote",
		Short: "related notes search backend",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the http server and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return runServer(a)
		},
	}

	var tokenUser, tokenName string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "mint a bearer token for a note owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tokenUser == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			token, err := jwt.GenerateToken(tokenUser, tokenName, []byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "owner id")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "owner display name")

	var reembedUser string
	var reembedBatch int
	reembedCmd := &cobra.Command{
		Use:   "reembed",
		Short: "recompute and store the embeddings of all notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			count, err := a.notes.Reembed(ctx, reembedUser, reembedBatch)
			logutil.GetLogger(ctx).Info("reembed finished", zap.String("user_id", reembedUser), zap.Int("count", count))
			return err
		},
	}
	reembedCmd.Flags().StringVar(&reembedUser, "user", "", "restrict to one owner")
	reembedCmd.Flags().IntVar(&reembedBatch, "batch", 100, "notes per page")

	rootCmd.AddCommand(runCmd, tokenCmd, reembedCmd)
	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

func runServer(a *app) error {
	cfg := a.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingBackfillJob(a.notes, cfg.Jobs.BackfillBatch), cfg.Jobs.BackfillSpec); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.cache, cfg.EmbedCache.MaxAgeDays), cfg.Jobs.CacheCleanupSpec); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Notes:           handler.NewNoteHandler(a.notes),
		Search:          handler.NewSearchHandler(a.search),
		JWTSecret:       []byte(cfg.JWTSecret),
		RequestTimeout:  time.Duration(cfg.Search.RequestTimeoutSec) * time.Second,
		SearchPerMinute: cfg.RateLimit.SearchPerMinute,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping")
	a.drain(drainTimeout)
	return nil
}
