// internal/config/loader_test.go
//
// Loader tests run against a throwaway root with its own conf/global.yaml.
// SITE_ROOT points the loader at it.

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseYAML = `
http:
  listen_addr: ":9090"
contact:
  services:
    - Virtual Tours
    - Google Street View
relay:
  mail_to:
    - studio@ruthram360.example
  smtp:
    host: smtp.example.com
    from: site@ruthram360.example
    password: "vault:kv/site/smtp#password"
  throttle:
    limit: 5
    window: 15m
`

type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := m[ref]
	if !ok {
		return "", errors.New("no such secret")
	}
	return v, nil
}

func writeRoot(t *testing.T, yml string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "conf"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "conf", "global.yaml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SITE_ROOT", root)
	return root
}

func TestLoadWith_LayersAndSecrets(t *testing.T) {
	root := writeRoot(t, baseYAML)
	t.Setenv("SITE_HTTP__FORCE_HTTPS", "true")
	t.Setenv("SITE_RELAY__SUBJECT_PREFIX", "Website enquiry")

	cfg, err := LoadWith(context.Background(), mapResolver{
		"vault:kv/site/smtp#password": "s3cret",
	})
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}

	if cfg.HTTP.ListenAddr != ":9090" {
		t.Fatalf("listen_addr = %q", cfg.HTTP.ListenAddr)
	}
	if !cfg.HTTP.ForceHTTPS {
		t.Fatal("env override for force_https ignored")
	}
	if cfg.Relay.SubjectPrefix != "Website enquiry" {
		t.Fatalf("subject_prefix = %q", cfg.Relay.SubjectPrefix)
	}
	if cfg.Relay.SMTP.Password != "s3cret" {
		t.Fatalf("vault ref not resolved: %q", cfg.Relay.SMTP.Password)
	}
	if cfg.Relay.Throttle.Window != 15*time.Minute {
		t.Fatalf("throttle window = %v", cfg.Relay.Throttle.Window)
	}
	if len(cfg.Contact.Services) != 2 {
		t.Fatalf("services = %v", cfg.Contact.Services)
	}

	// defaults
	if cfg.Contact.Endpoint != "/api/send-email" || cfg.Relay.SMTP.Port != 587 {
		t.Fatalf("defaults not applied: endpoint=%q port=%d", cfg.Contact.Endpoint, cfg.Relay.SMTP.Port)
	}
	if got := cfg.HTTP.AliasMap()[LegacyEndpoint]; got != "/api/send-email" {
		t.Fatalf("legacy alias = %q, want /api/send-email", got)
	}
	if cfg.Log.Dir != filepath.Join(root, "logs") {
		t.Fatalf("log dir = %q", cfg.Log.Dir)
	}
	if cfg.Paths.Root != root {
		t.Fatalf("root = %q", cfg.Paths.Root)
	}
	if Get() != cfg {
		t.Fatal("Get() does not return the loaded config")
	}
}

func TestLoad_VaultRefWithoutResolver(t *testing.T) {
	writeRoot(t, baseYAML)
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "relay.smtp.password") {
		t.Fatalf("Load err = %v, want mention of relay.smtp.password", err)
	}
}

func TestLoad_ValidationNamesKoanfKeys(t *testing.T) {
	writeRoot(t, `
http:
  listen_addr: "nope"
relay:
  smtp:
    host: smtp.example.com
  store:
    table: "bad-name;"
`)
	_, err := Load()
	if err == nil {
		t.Fatal("Load accepted an invalid config")
	}
	for _, want := range []string{"http.listen_addr", "relay.mail_to", "relay.smtp.from", "relay.store.table"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoad_DotEnv(t *testing.T) {
	root := writeRoot(t, `
relay:
  mail_to: [studio@ruthram360.example]
`)
	dotenv := "SITE_GEO__DB_PATH=/var/lib/geo/City.mmdb\n"
	if err := os.WriteFile(filepath.Join(root, "conf", ".env"), []byte(dotenv), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("SITE_GEO__DB_PATH") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Geo.DBPath != "/var/lib/geo/City.mmdb" {
		t.Fatalf("geo.db_path = %q", cfg.Geo.DBPath)
	}
}

func TestReload_ReusesResolver(t *testing.T) {
	writeRoot(t, baseYAML)
	sr := mapResolver{"vault:kv/site/smtp#password": "first"}
	if _, err := LoadWith(context.Background(), sr); err != nil {
		t.Fatalf("LoadWith: %v", err)
	}

	sr["vault:kv/site/smtp#password"] = "second"
	if err := Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := Get().Relay.SMTP.Password; got != "second" {
		t.Fatalf("password after reload = %q", got)
	}
}

func TestEnvKey(t *testing.T) {
	if got := envKey("SITE_RELAY__THROTTLE__LIMIT"); got != "relay.throttle.limit" {
		t.Fatalf("envKey = %q", got)
	}
}
