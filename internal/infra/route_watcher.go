package infra

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"benefits-gateway/config"
	"benefits-gateway/internal/domain"
)

const routeReloadDebounce = 100 * time.Millisecond

// RouteWatcher はルーティングファイルを監視し、変更時にルート表を再構築して apply に渡す。
// 読み込みに失敗した場合は現在のルート表を維持する。
type RouteWatcher struct {
	path    string
	apply   func([]*domain.Route)
	watcher *fsnotify.Watcher
	metrics *Metrics
}

// NewRouteWatcher はファイルのあるディレクトリを監視するRouteWatcherを生成する。
// エディタによる置き換え保存も検知するため、ファイルではなくディレクトリを監視する。
func NewRouteWatcher(path string, apply func([]*domain.Route), metrics *Metrics) (*RouteWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving routes file path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching routes directory: %w", err)
	}

	return &RouteWatcher{
		path:    absPath,
		apply:   apply,
		watcher: watcher,
		metrics: metrics,
	}, nil
}

// Run はctxがキャンセルされるまでファイル変更を監視する。
func (w *RouteWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(routeReloadDebounce, func() { _ = w.Reload(ctx) })
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "Routes file watcher error", "error", err)
		}
	}
}

// Reload はルーティングファイルを読み込み直して反映する。
func (w *RouteWatcher) Reload(ctx context.Context) error {
	defs, err := config.LoadRoutes(w.path)
	if err == nil {
		var routes []*domain.Route
		if routes, err = config.BuildRoutes(defs); err == nil {
			w.apply(routes)
			w.metrics.RouteReloaded("success")
			slog.InfoContext(ctx, "Routes reloaded", "path", w.path, "routes", len(routes))
			return nil
		}
	}

	w.metrics.RouteReloaded("error")
	slog.ErrorContext(ctx, "Failed to reload routes; keeping current table",
		"operation", "Reload",
		"path", w.path,
		"error", err,
	)
	return err
}
