package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const maxKeySetSize = 1 << 20

var (
	// ErrKeyNotFound はトークンのkidに一致する公開鍵が鍵セットに存在しない場合のエラー。
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrKeySetRateLimited は鍵セットの再取得がレート上限に達している場合のエラー。
	ErrKeySetRateLimited = errors.New("key set refresh rate limited")
)

// KeySetCache は公開鍵セット（JWKS）を取得してキャッシュする。
//
// 取得から refreshInterval を過ぎた鍵は、そのまま返しつつバックグラウンドで再取得する。
// 未知のkidを受け取った場合は同期的に再取得するが、取得回数はrequestsPerMinuteで制限し、
// 同時に発生した再取得は1回にまとめる。
type KeySetCache struct {
	url             string
	client          *http.Client
	refreshInterval time.Duration
	limiter         *rate.Limiter
	group           singleflight.Group
	metrics         *Metrics

	mu        sync.RWMutex
	keys      map[string]any
	fetchedAt time.Time
	now       func() time.Time
}

// NewKeySetCache はKeySetCacheを生成する。client がnilの場合は10秒タイムアウトのクライアントを使う。
func NewKeySetCache(url string, client *http.Client, refreshInterval time.Duration, requestsPerMinute int, metrics *Metrics) *KeySetCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 5
	}
	return &KeySetCache{
		url:             url,
		client:          client,
		refreshInterval: refreshInterval,
		limiter:         rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
		metrics:         metrics,
		keys:            map[string]any{},
		now:             time.Now,
	}
}

// Key はkidに対応する公開鍵を返す。
func (c *KeySetCache) Key(ctx context.Context, kid string) (any, error) {
	key, found, loaded, stale := c.lookup(kid)
	if found {
		if stale {
			c.refreshInBackground()
		}
		return key, nil
	}

	// 未取得、または未知のkid（鍵のローテーション直後など）
	if loaded && !c.limiter.Allow() {
		return nil, ErrKeySetRateLimited
	}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	if key, found, _, _ = c.lookup(kid); found {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

func (c *KeySetCache) lookup(kid string) (key any, found, loaded, stale bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	loaded = !c.fetchedAt.IsZero()
	stale = loaded && c.now().Sub(c.fetchedAt) > c.refreshInterval

	key, found = c.keys[kid]
	if !found && kid == "" && len(c.keys) == 1 {
		// kidを持たないトークンは、鍵が1つだけの場合に限りその鍵で検証する
		for _, k := range c.keys {
			key, found = k, true
		}
	}
	return key, found, loaded, stale
}

func (c *KeySetCache) refreshInBackground() {
	if !c.limiter.Allow() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Refresh(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to refresh key set; keeping cached keys",
				"url", c.url,
				"error", err,
			)
		}
	}()
}

// Refresh は鍵セットを取得してキャッシュを置き換える。同時呼び出しは1回の取得にまとめる。
func (c *KeySetCache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("jwks", func() (any, error) {
		keys, err := c.fetch(ctx)
		if err != nil {
			c.metrics.KeySetRefreshed("error")
			return nil, err
		}
		c.mu.Lock()
		c.keys = keys
		c.fetchedAt = c.now()
		c.mu.Unlock()
		c.metrics.KeySetRefreshed("success")
		slog.DebugContext(ctx, "Key set refreshed", "url", c.url, "keys", len(keys))
		return nil, nil
	})
	return err
}

func (c *KeySetCache) fetch(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating key set request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching key set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching key set: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize))
	if err != nil {
		return nil, fmt.Errorf("reading key set: %w", err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parsing key set: %w", err)
	}

	keys := make(map[string]any, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		kid, _ := key.KeyID()
		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			return nil, fmt.Errorf("exporting key %q: %w", kid, err)
		}
		keys[kid] = raw
	}
	if len(keys) == 0 {
		return nil, errors.New("key set contains no keys")
	}
	return keys, nil
}
