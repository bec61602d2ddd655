// Package main はAPIゲートウェイのエントリポイント。
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"benefits-gateway/config"
	"benefits-gateway/internal/handler"
	"benefits-gateway/internal/infra"
	"benefits-gateway/internal/middleware"
	"benefits-gateway/internal/repository"
	"benefits-gateway/internal/usecase"
	"benefits-gateway/pkg/fieldcrypt"
	"benefits-gateway/pkg/fieldcrypt/gormcrypt"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg, infra.ParseLevel(cfg.LogLevel))

	metrics := infra.NewMetrics()

	// 鍵素材は起動時に一度だけ導出する
	codec, err := infra.NewFieldCodec(ctx, cfg)
	if err != nil {
		slog.Error("failed to init field encryption", "error", err)
		os.Exit(1)
	}

	checks := map[string]handler.ReadinessCheck{}

	// DB初期化（監査ログのdatabase出力、またはレディネス確認に使用）
	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = infra.NewDB(cfg.DatabaseURL, infra.DefaultDBConfig(),
			gormcrypt.New(codec, fieldcrypt.DefaultRegistry(), metrics))
		if err != nil {
			slog.Error("failed to init database", "error", err)
			os.Exit(1)
		}
		sqlDB, err := db.DB()
		if err != nil {
			slog.Error("failed to get database handle", "error", err)
			os.Exit(1)
		}
		defer sqlDB.Close()
		checks["database"] = sqlDB.PingContext
	}

	// 監査ログ
	sinks, closers, err := buildAuditSinks(cfg, db)
	if err != nil {
		slog.Error("failed to init audit sinks", "error", err)
		os.Exit(1)
	}
	for _, c := range closers {
		defer c.Close()
	}
	auditService := usecase.NewAuditService(sinks, cfg.Audit.BufferSize, metrics)

	// トークン検証
	keys := infra.NewKeySetCache(cfg.Auth.JWKSURL, &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, cfg.Auth.RefreshInterval, cfg.Auth.RequestsPerMinute, metrics)
	if err := keys.Refresh(ctx); err != nil {
		// 鍵は最初の認証時に再取得する
		slog.Warn("failed to prefetch signing keys", "url", cfg.Auth.JWKSURL, "error", err)
	}
	validator := usecase.NewTokenValidator(keys, usecase.TokenValidatorConfig{
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
		Algorithms:     cfg.Auth.Algorithms,
		ClaimNamespace: cfg.Auth.ClaimNamespace,
		Leeway:         cfg.Auth.Leeway,
	})

	authz, err := usecase.NewAuthorizerFromFile(ctx, cfg.AuthzPolicyFile)
	if err != nil {
		slog.Error("failed to init authorizer", "error", err)
		os.Exit(1)
	}

	// ルーティング
	routes, err := cfg.Routes()
	if err != nil {
		slog.Error("failed to load routes", "error", err)
		os.Exit(1)
	}
	proxy := handler.NewProxyRouter(routes, authz, cfg.Proxy.UpstreamTimeout, metrics)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.Proxy.RoutesFile != "" {
		watcher, err := infra.NewRouteWatcher(cfg.Proxy.RoutesFile, proxy.Replace, metrics)
		if err != nil {
			slog.Error("failed to watch routes file", "path", cfg.Proxy.RoutesFile, "error", err)
			os.Exit(1)
		}
		go watcher.Run(runCtx)
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	router := handler.NewRouter(handler.RouterConfig{
		APIPrefix:      cfg.APIPrefix,
		PublicPaths:    cfg.PublicPaths,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, handler.Dependencies{
		Health:    handler.NewHealthHandler(cfg.Env, checks),
		Proxy:     proxy,
		Validator: validator,
		Tenants: usecase.NewTenantResolver(usecase.TenantResolverConfig{
			Header:             cfg.Tenant.Header,
			QueryParam:         cfg.Tenant.QueryParam,
			DefaultTenant:      cfg.Tenant.DefaultTenant,
			ReservedSubdomains: cfg.Tenant.ReservedSubdomains,
		}),
		Audit:       auditService,
		RateLimiter: limiter,
		Metrics:     metrics,
	})

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "benefits-gateway"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		slog.Error("failed to listen", "addr", server.Addr, "error", err)
		os.Exit(1)
	}

	slog.Info("starting server",
		"port", cfg.Port,
		"env", cfg.Env,
		"routes", len(routes),
		"audit_sinks", cfg.Audit.Sinks,
	)
	serveErr := serve(runCtx, server, ln, cfg.ShutdownTimeout)
	if serveErr != nil {
		slog.Error("server error", "error", serveErr)
	}

	// 残りの監査エントリを書き切る
	drainCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := auditService.Close(drainCtx); err != nil {
		slog.Error("failed to drain audit entries", "error", err)
	}
	slog.Info("server stopped")
	if serveErr != nil {
		os.Exit(1)
	}
}

// buildAuditSinks はAUDIT_SINKSに従って監査ログの出力先を組み立てる。
func buildAuditSinks(cfg *config.Config, db *gorm.DB) ([]usecase.NamedSink, []io.Closer, error) {
	var (
		sinks   []usecase.NamedSink
		closers []io.Closer
	)
	for _, name := range cfg.Audit.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, usecase.NamedSink{Name: name, Sink: usecase.NewLogAuditSink(nil)})
		case "database":
			if db == nil {
				return nil, nil, errors.New("audit sink database requires DATABASE_URL")
			}
			sinks = append(sinks, usecase.NamedSink{Name: name, Sink: repository.NewAuditRepository(db)})
		case "badger":
			bdb, err := infra.NewBadgerDB(cfg.Audit.BadgerDir)
			if err != nil {
				return nil, nil, err
			}
			closers = append(closers, bdb)
			sinks = append(sinks, usecase.NamedSink{Name: name, Sink: repository.NewBadgerAuditStore(bdb)})
		}
	}
	return sinks, closers, nil
}
