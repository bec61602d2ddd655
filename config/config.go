// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port            string        `validate:"required,numeric"`
	Env             string        `validate:"oneof=development test local staging production"`
	LogLevel        string        `validate:"oneof=DEBUG INFO WARN ERROR"`
	APIPrefix       string        `validate:"required,startswith=/"`
	PublicPaths     []string      `validate:"dive,startswith=/"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	Encryption EncryptionConfig
	Auth       AuthConfig
	Tenant     TenantConfig
	Proxy      ProxyConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	Audit      AuditConfig

	DatabaseURL        string
	KMSKeyName         string
	GoogleCloudProject string
	AuthzPolicyFile    string

	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64 `validate:"gte=0,lte=1"`
}

// EncryptionConfig はフィールド暗号化の鍵素材設定。
// Passphrase または KMSCiphertext（Cloud KMSでラップしたパスフレーズ）のどちらかが必要。
type EncryptionConfig struct {
	Passphrase    string
	Salt          string `validate:"required"`
	KMSCiphertext string
}

// AuthConfig はベアラートークン検証の設定。
type AuthConfig struct {
	Issuer            string        `validate:"required,url"`
	Audience          string        `validate:"required"`
	JWKSURL           string        `validate:"required,url"`
	Algorithms        []string      `validate:"min=1,dive,oneof=RS256 RS384 RS512 PS256 PS384 PS512 ES256 ES384 ES512"`
	ClaimNamespace    string
	RefreshInterval   time.Duration `validate:"gt=0"`
	RequestsPerMinute int           `validate:"gt=0"`
	Leeway            time.Duration `validate:"gte=0"`
}

// TenantConfig はテナント解決の設定。
type TenantConfig struct {
	Header             string `validate:"required"`
	QueryParam         string `validate:"required"`
	DefaultTenant      string
	ReservedSubdomains []string
}

// ProxyConfig はバックエンド転送の設定。
type ProxyConfig struct {
	Services        map[string]string
	RoutesFile      string
	UpstreamTimeout time.Duration `validate:"gt=0"`
}

// CORSConfig は許可するオリジンの設定。
type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig はクライアントIP単位のレート制限設定。
type RateLimitConfig struct {
	Enabled  bool
	Requests int           `validate:"gt=0"`
	Window   time.Duration `validate:"gt=0"`
}

// AuditConfig は監査ログの出力先設定。
type AuditConfig struct {
	Sinks      []string `validate:"min=1,dive,oneof=log database badger"`
	BadgerDir  string
	BufferSize int `validate:"gt=0"`
}

// ServiceNames はルーティング対象のサービス名とAPIプレフィックスの既定対応。
var ServiceNames = []struct {
	Name   string
	Prefix string
	EnvKey string
	URL    string
}{
	{Name: "enrollment", Prefix: "enrollments", EnvKey: "ENROLLMENT_SERVICE_URL", URL: "http://enrollment-service:3100"},
	{Name: "benefits", Prefix: "benefits", EnvKey: "BENEFITS_SERVICE_URL", URL: "http://benefits-service:3101"},
	{Name: "documents", Prefix: "documents", EnvKey: "DOCUMENTS_SERVICE_URL", URL: "http://documents-service:3102"},
	{Name: "carriers", Prefix: "carriers", EnvKey: "CARRIERS_SERVICE_URL", URL: "http://carriers-service:3103"},
	{Name: "notifications", Prefix: "notifications", EnvKey: "NOTIFICATIONS_SERVICE_URL", URL: "http://notifications-service:3104"},
	{Name: "reporting", Prefix: "reports", EnvKey: "REPORTING_SERVICE_URL", URL: "http://reporting-service:3105"},
	{Name: "rules", Prefix: "rules", EnvKey: "RULES_SERVICE_URL", URL: "http://rules-service:3106"},
	{Name: "ai", Prefix: "ai", EnvKey: "AI_SERVICE_URL", URL: "http://ai-service:3107"},
}

// Load は環境変数から設定を読み込み、検証する。
func Load() (*Config, error) {
	shutdown, err := getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	refresh, err := getEnvAsDuration("JWKS_REFRESH_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	leeway, err := getEnvAsDuration("AUTH_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, err
	}
	upstreamTimeout, err := getEnvAsDuration("UPSTREAM_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	window, err := getEnvAsDuration("API_RATE_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	issuer := os.Getenv("AUTH_ISSUER")
	jwksURL := os.Getenv("AUTH_JWKS_URL")
	// AUTH0_DOMAIN が設定されている場合は発行者とJWKS URLを導出する
	if domain := os.Getenv("AUTH0_DOMAIN"); domain != "" {
		if issuer == "" {
			issuer = "https://" + domain + "/"
		}
		if jwksURL == "" {
			jwksURL = "https://" + domain + "/.well-known/jwks.json"
		}
	}
	audience := getEnv("AUTH_AUDIENCE", os.Getenv("AUTH0_AUDIENCE"))

	services := make(map[string]string, len(ServiceNames))
	for _, s := range ServiceNames {
		services[s.Name] = getEnv(s.EnvKey, s.URL)
	}

	env := getEnv("ENV", getEnv("NODE_ENV", "development"))
	defaultTenant := ""
	if !isProductionEnv(env) {
		defaultTenant = getEnv("DEFAULT_TENANT", "default")
	}

	apiPrefix := strings.TrimSuffix(getEnv("API_PREFIX", "/api"), "/")

	cfg := &Config{
		Port:            getEnv("PORT", "4000"),
		Env:             env,
		LogLevel:        strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		APIPrefix:       apiPrefix,
		PublicPaths:     getEnvAsList("PUBLIC_PATHS", []string{apiPrefix + "/health", apiPrefix + "/public/"}),
		ShutdownTimeout: shutdown,
		Encryption: EncryptionConfig{
			Passphrase:    os.Getenv("ENCRYPTION_KEY"),
			Salt:          os.Getenv("ENCRYPTION_SALT"),
			KMSCiphertext: os.Getenv("ENCRYPTION_KEY_KMS_CIPHERTEXT"),
		},
		Auth: AuthConfig{
			Issuer:            issuer,
			Audience:          audience,
			JWKSURL:           jwksURL,
			Algorithms:        getEnvAsList("AUTH_ALGORITHMS", []string{"RS256"}),
			ClaimNamespace:    os.Getenv("AUTH_CLAIM_NAMESPACE"),
			RefreshInterval:   refresh,
			RequestsPerMinute: getEnvAsInt("JWKS_REQUESTS_PER_MINUTE", 5),
			Leeway:            leeway,
		},
		Tenant: TenantConfig{
			Header:             getEnv("TENANT_HEADER", "X-Tenant-ID"),
			QueryParam:         getEnv("TENANT_QUERY_PARAM", "tenantId"),
			DefaultTenant:      defaultTenant,
			ReservedSubdomains: getEnvAsList("RESERVED_SUBDOMAINS", []string{"www", "api"}),
		},
		Proxy: ProxyConfig{
			Services:        services,
			RoutesFile:      os.Getenv("ROUTES_FILE"),
			UpstreamTimeout: upstreamTimeout,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins(),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getEnvAsBool("API_RATE_LIMIT_ENABLED", true),
			Requests: getEnvAsInt("API_RATE_LIMIT", 100),
			Window:   window,
		},
		Audit: AuditConfig{
			Sinks:      getEnvAsList("AUDIT_SINKS", []string{"log"}),
			BadgerDir:  getEnv("AUDIT_BADGER_DIR", "./data/audit"),
			BufferSize: getEnvAsInt("AUDIT_BUFFER_SIZE", 1024),
		},
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		KMSKeyName:         os.Getenv("KMS_KEY_NAME"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		AuthzPolicyFile:    os.Getenv("AUTHZ_POLICY_FILE"),
		OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "benefits-gateway"),
		OtelSamplingRate:   getEnvAsFloat("OTEL_SAMPLING_RATE", 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Encryption.Passphrase == "" && c.Encryption.KMSCiphertext == "" {
		return errors.New("ENCRYPTION_KEY or ENCRYPTION_KEY_KMS_CIPHERTEXT is required")
	}
	if c.Encryption.KMSCiphertext != "" && c.KMSKeyName == "" {
		return errors.New("KMS_KEY_NAME is required when ENCRYPTION_KEY_KMS_CIPHERTEXT is set")
	}
	for _, sink := range c.Audit.Sinks {
		if sink == "database" && c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the database audit sink")
		}
	}
	return nil
}

// IsProduction は本番相当の環境かどうかを返す。本番相当では既定テナントを使わない。
func (c *Config) IsProduction() bool {
	return isProductionEnv(c.Env)
}

func isProductionEnv(env string) bool {
	return env == "production" || env == "staging"
}

func corsOrigins() []string {
	origins := getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001"})
	for _, key := range []string{"EMPLOYEE_PORTAL_URL", "ADMIN_DASHBOARD_URL"} {
		if v := os.Getenv(key); v != "" {
			origins = append(origins, v)
		}
	}
	return origins
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvAsList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
