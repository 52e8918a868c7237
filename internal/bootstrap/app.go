package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"go-wecom-gateway/internal/adapter/client"
	handler "go-wecom-gateway/internal/adapter/http"
	"go-wecom-gateway/internal/ai"
	"go-wecom-gateway/internal/assistant"
	"go-wecom-gateway/internal/shared"
	"go-wecom-gateway/internal/wework"
)

// App 应用程序，组装所有组件
type App struct {
	server          *http.Server
	logger          *slog.Logger
	assistant       *assistant.Assistant
	shutdownTimeout time.Duration
	closers         []io.Closer
}

// NewApp 初始化应用：slog logger → Crypto → TokenStore → API 客户端 → Assistant → WeWork Service → HTTP Handler → 路由
func NewApp(cfg *shared.Config) (*App, error) {
	logger, logCloser := initLogger(cfg.Log)
	app := &App{logger: logger, shutdownTimeout: cfg.Server.ShutdownTimeout}
	if logCloser != nil {
		app.closers = append(app.closers, logCloser)
	}

	creds, err := wework.NewCredentials(cfg.WeWork.Token, cfg.WeWork.EncodingAESKey, cfg.WeWork.CorpID)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("init crypto: %w", err)
	}
	crypto, err := wework.NewCrypto(creds)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("init crypto: %w", err)
	}

	tokens, err := app.initTokenStore(cfg.TokenCache)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("init token store: %w", err)
	}
	wwClient := client.NewWeWorkClient(cfg.WeWork, tokens, nil, logger)

	var aiSvc ai.Service
	if cfg.AI.BaseURL != "" {
		aiSvc = client.NewAIClient(cfg.AI, logger)
	} else {
		logger.Info("ai.base_url not set, text messages will be echoed")
	}

	opts := []assistant.Option{assistant.WithWelcomeText(cfg.Assistant.WelcomeText)}
	if cfg.Assistant.ReplyMode == shared.ReplyModeActive {
		opts = append(opts, assistant.WithActiveReply(wwClient))
	}
	app.assistant = assistant.New(aiSvc, logger, opts...)

	wwSvc := wework.NewService(crypto, app.assistant, logger)

	var metrics *handler.Metrics
	if cfg.Metrics.Enabled {
		metrics = handler.NewMetrics()
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.CallbackPath, handler.NewCallbackHandler(wwSvc, logger, metrics))
	mux.Handle("/health", handler.NewHealthHandler())
	if metrics != nil {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	app.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return app, nil
}

// Handler 返回路由，便于测试
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run 启动 HTTP 服务器，ctx 取消后优雅退出并等待主动回复任务结束
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting server", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		a.assistant.Wait()
		return nil
	})

	return g.Wait()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close resource failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *App) initTokenStore(cfg shared.TokenCacheConfig) (client.TokenStore, error) {
	if cfg.Driver != shared.TokenCacheRedis {
		return client.NewMemoryTokenStore(), nil
	}

	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.closers = append(a.closers, cli)
	a.logger.Info("token cache using redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return client.NewRedisTokenStore(cli, cfg.KeyPrefix), nil
}

// initLogger 根据配置初始化 slog logger
// 配置了 log.file 时同时写入 stdout 和按大小滚动的日志文件
func initLogger(cfg shared.LogConfig) (*slog.Logger, io.Closer) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer
	)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closer = rotator
	}

	var h slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}

	return slog.New(h), closer
}
