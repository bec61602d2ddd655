package infra

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jwksServer struct {
	*httptest.Server
	requests atomic.Int32

	mu   sync.Mutex
	keys map[string]*rsa.PublicKey
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()
	s := &jwksServer{keys: map[string]*rsa.PublicKey{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()

		var keys []map[string]string
		for kid, pub := range s.keys {
			keys = append(keys, map[string]string{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) addKey(t *testing.T, kid string) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	s.mu.Lock()
	s.keys[kid] = &priv.PublicKey
	s.mu.Unlock()
	return priv
}

func TestKeySetCache_FetchesAndCaches(t *testing.T) {
	srv := newJWKSServer(t)
	priv := srv.addKey(t, "k1")
	cache := NewKeySetCache(srv.URL, srv.Client(), time.Hour, 5, nil)

	key, err := cache.Key(context.Background(), "k1")
	require.NoError(t, err)

	pub, ok := key.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, 0, priv.PublicKey.N.Cmp(pub.N))

	_, err = cache.Key(context.Background(), "k1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, srv.requests.Load())
}

func TestKeySetCache_UnknownKidRefreshes(t *testing.T) {
	srv := newJWKSServer(t)
	srv.addKey(t, "k1")
	cache := NewKeySetCache(srv.URL, srv.Client(), time.Hour, 5, nil)

	_, err := cache.Key(context.Background(), "k1")
	require.NoError(t, err)

	// 鍵のローテーション
	srv.addKey(t, "k2")
	_, err = cache.Key(context.Background(), "k2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, srv.requests.Load())

	_, err = cache.Key(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestKeySetCache_RefreshIsRateLimited(t *testing.T) {
	srv := newJWKSServer(t)
	srv.addKey(t, "k1")
	cache := NewKeySetCache(srv.URL, srv.Client(), time.Hour, 2, nil)

	_, err := cache.Key(context.Background(), "k1")
	require.NoError(t, err)

	var limited bool
	for i := 0; i < 5; i++ {
		_, err := cache.Key(context.Background(), "unknown")
		require.Error(t, err)
		if errors.Is(err, ErrKeySetRateLimited) {
			limited = true
		}
	}
	assert.True(t, limited)
	assert.LessOrEqual(t, srv.requests.Load(), int32(3))
}

func TestKeySetCache_StaleKeysServedWhileRefreshing(t *testing.T) {
	srv := newJWKSServer(t)
	srv.addKey(t, "k1")
	cache := NewKeySetCache(srv.URL, srv.Client(), time.Minute, 5, nil)

	_, err := cache.Key(context.Background(), "k1")
	require.NoError(t, err)

	now := time.Now()
	cache.mu.Lock()
	cache.now = func() time.Time { return now.Add(2 * time.Minute) }
	cache.mu.Unlock()

	_, err = cache.Key(context.Background(), "k1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return srv.requests.Load() == 2 }, time.Second, 10*time.Millisecond)
}

func TestKeySetCache_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cache := NewKeySetCache(srv.URL, srv.Client(), time.Hour, 5, nil)
	_, err := cache.Key(context.Background(), "k1")
	assert.Error(t, err)
}
