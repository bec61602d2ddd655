package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"benefits-gateway/internal/domain"
)

// RouteConfig はルーティングファイル中の1ルート定義。
type RouteConfig struct {
	Name       string `yaml:"name"`
	Prefix     string `yaml:"prefix"`
	Target     string `yaml:"target"`
	Rewrite    string `yaml:"rewrite"`
	Permission string `yaml:"permission"`
}

type routesFile struct {
	Routes []RouteConfig `yaml:"routes"`
}

// DefaultRoutes は各サービスURLから既定のルート定義を生成する。
// `<apiPrefix>/<prefix>` を `/<prefix>` に書き換えて転送する。
func (c *Config) DefaultRoutes() []RouteConfig {
	routes := make([]RouteConfig, 0, len(ServiceNames))
	for _, s := range ServiceNames {
		routes = append(routes, RouteConfig{
			Name:    s.Name,
			Prefix:  c.APIPrefix + "/" + s.Prefix,
			Target:  c.Proxy.Services[s.Name],
			Rewrite: "/" + s.Prefix,
		})
	}
	return routes
}

// LoadRoutes はYAMLのルーティングファイルを読み込む。
func LoadRoutes(path string) ([]RouteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routes file: %w", err)
	}
	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing routes file: %w", err)
	}
	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("routes file %s defines no routes", path)
	}
	return f.Routes, nil
}

// Routes は設定済みのルート定義を返す。ROUTES_FILE が指定されていればそちらを優先する。
func (c *Config) Routes() ([]*domain.Route, error) {
	defs := c.DefaultRoutes()
	if c.Proxy.RoutesFile != "" {
		loaded, err := LoadRoutes(c.Proxy.RoutesFile)
		if err != nil {
			return nil, err
		}
		defs = loaded
	}
	return BuildRoutes(defs)
}

// BuildRoutes はルート定義を検証し、ドメインのRouteに変換する。
func BuildRoutes(defs []RouteConfig) ([]*domain.Route, error) {
	routes := make([]*domain.Route, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("route with prefix %q has no name", d.Prefix)
		}
		if !strings.HasPrefix(d.Prefix, "/") {
			return nil, fmt.Errorf("route %s: prefix must start with /", d.Name)
		}
		if seen[d.Prefix] {
			return nil, fmt.Errorf("route %s: duplicate prefix %s", d.Name, d.Prefix)
		}
		seen[d.Prefix] = true

		target, err := url.Parse(d.Target)
		if err != nil {
			return nil, fmt.Errorf("route %s: invalid target: %w", d.Name, err)
		}
		if target.Scheme != "http" && target.Scheme != "https" || target.Host == "" {
			return nil, fmt.Errorf("route %s: target must be an absolute http(s) url", d.Name)
		}

		rewrite := d.Rewrite
		if rewrite == "" {
			rewrite = d.Prefix
		}
		routes = append(routes, &domain.Route{
			Name:               d.Name,
			Prefix:             d.Prefix,
			Target:             target,
			RewritePrefix:      strings.TrimSuffix(rewrite, "/"),
			RequiredPermission: d.Permission,
		})
	}
	return routes, nil
}
