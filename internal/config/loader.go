// internal/config/loader.go
//
// Configuration loader and reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `SITE_`, where `__` maps to “.”
     (e.g., `SITE_HTTP__LISTEN_ADDR → http.listen_addr`).

Between merging and unmarshalling, every string leaf that starts with
`vault:` is swapped for the secret it names.  The tree is then
unmarshalled into strongly-typed structs, defaulted, validated, and cached
in an `atomic.Pointer` for lock-free reads.  `Reload()` repeats the whole
sequence with the same resolver and swaps the pointer.

Instrumentation
---------------
  • DEBUG spans  root discovery, YAML read, secret resolution.
  • ERROR spans  YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span   final “config loaded” with key highlights.
  • Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`;
    this lets `go run ./cmd/web` work from any sub-directory.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// EnvPrefix marks environment overrides.
const EnvPrefix = "SITE_"

// refPrefix marks a value that must be resolved through a SecretResolver.
const refPrefix = "vault:"

// SecretResolver turns a `vault:` reference into its value.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

var (
	current  atomic.Pointer[Config]
	resolver atomic.Value // holds resolverBox
)

type resolverBox struct{ r SecretResolver }

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves SITE_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to an executable heuristic for the production
// layout (<root>/bin/web).
func rootDir() string {
	if r := os.Getenv(EnvPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, and env overrides without secret resolution.  A
// `vault:` reference in the tree is an error.
func Load() (*Config, error) {
	return LoadWith(context.Background(), nil)
}

// LoadWith is Load with a resolver for `vault:` references.  The resolver
// is remembered for Reload.
func LoadWith(ctx context.Context, sr SecretResolver) (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k, sr); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	cfg.applyDefaults()
	if !filepath.IsAbs(cfg.Log.Dir) {
		cfg.Log.Dir = filepath.Join(root, cfg.Log.Dir)
	}
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	resolver.Store(resolverBox{sr})
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"endpoint", cfg.Contact.Endpoint,
		"smtp", cfg.Relay.SMTP.Host != "",
		"store", cfg.Relay.Store.DSN != "",
		"webhook", cfg.Relay.Webhook.URL != "",
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// envKey maps SITE_RELAY__SMTP__HOST → relay.smtp.host.
func envKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", "."))
}

// resolveSecrets replaces every `vault:` string leaf in k.  Keys are
// visited in sorted order so failures are reported deterministically.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, sr SecretResolver) error {
	all := k.All()
	keys := make([]string, 0, len(all))
	for key, val := range all {
		if s, ok := val.(string); ok && strings.HasPrefix(s, refPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		ref := all[key].(string)
		if sr == nil {
			return fmt.Errorf("config %s: %s needs a vault client (set VAULT_ADDR)", key, ref)
		}
		val, err := sr.Resolve(ctx, ref)
		if err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		zap.S().Debugw("config secret resolved", "key", key)
	}
	return nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// Get returns the last successfully loaded Config, or nil.
func Get() *Config { return current.Load() }

// Reload re-reads every layer with the resolver from the previous load.
func Reload(ctx context.Context) error {
	var sr SecretResolver
	if b, ok := resolver.Load().(resolverBox); ok {
		sr = b.r
	}
	_, err := LoadWith(ctx, sr)
	return err
}
