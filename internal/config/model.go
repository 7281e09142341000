// internal/config/model.go
//
// Typed configuration model for the site.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                        dotenv values,
//   • `conf/global.yaml`                     primary static file,
//   • `SITE_`-prefixed environment overrides highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.  Koanf ignores `yaml`
//     tags unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import "time"

//
// HTTP section
//

// Alias serves From with the handler registered at To.  Listed as pairs
// rather than a map because koanf splits keys on dots.
type Alias struct {
	From string `koanf:"from" validate:"required,startswith=/"`
	To   string `koanf:"to"   validate:"required,startswith=/"`
}

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string  `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool    `koanf:"force_https"`
	TrustProxy bool    `koanf:"trust_proxy"` // honour X-Forwarded-For / X-Real-IP
	StaticDir  string  `koanf:"static_dir"` // built site; empty disables file serving
	Aliases    []Alias `koanf:"aliases"     validate:"dive"`
}

// AliasMap flattens Aliases for routing.NewAliases.
func (h HTTP) AliasMap() map[string]string {
	m := make(map[string]string, len(h.Aliases))
	for _, a := range h.Aliases {
		m[a.From] = a.To
	}
	return m
}

//
// Log section
//

// Log controls the zap/lumberjack sink.
type Log struct {
	Dir string `koanf:"dir"` // relative paths are resolved against Paths.Root
	Tee bool   `koanf:"tee"`
}

//
// Contact section
//

// Contact describes the public form.
type Contact struct {
	Endpoint string   `koanf:"endpoint" validate:"required,startswith=/"`
	Services []string `koanf:"services" validate:"dive,required"`
}

//
// Relay section
//

// SMTP holds outbound mail settings.  An empty Host selects the log-only
// mailer.
type SMTP struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"     validate:"omitempty,min=1,max=65535"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"     validate:"omitempty,email"`
}

// Store enables the MySQL submission log.  An empty DSN disables it.
type Store struct {
	DSN   string `koanf:"dsn"`
	Table string `koanf:"table" validate:"omitempty,sql_ident"`
}

// Webhook mirrors submissions to an external URL.  Empty disables it.
type Webhook struct {
	URL string `koanf:"url" validate:"omitempty,url"`
}

// Throttle bounds submissions per client address.  Limit 0 disables it.
type Throttle struct {
	Limit  int           `koanf:"limit"  validate:"min=0"`
	Window time.Duration `koanf:"window" validate:"required_with=Limit"`
}

// Relay configures the server side of the contact form.
type Relay struct {
	MailTo        []string `koanf:"mail_to"        validate:"required,min=1,dive,email"`
	SubjectPrefix string   `koanf:"subject_prefix"`
	SMTP          SMTP     `koanf:"smtp"`
	Store         Store    `koanf:"store"`
	Webhook       Webhook  `koanf:"webhook"`
	Throttle      Throttle `koanf:"throttle"`
}

//
// Geo section
//

// Geo points at an optional GeoLite2-City database.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // SITE_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP    HTTP    `koanf:"http"`
	Log     Log     `koanf:"log"`
	Contact Contact `koanf:"contact"`
	Relay   Relay   `koanf:"relay"`
	Geo     Geo     `koanf:"geo"`
	Paths   Paths   `koanf:"-"`
}

// LegacyEndpoint is where pages built before the Go relay still post.  It
// aliases to Contact.Endpoint unless http.aliases is set explicitly.
const LegacyEndpoint = "/api/send-email.php"

// applyDefaults fills the values YAML may omit.
func (c *Config) applyDefaults() {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = ":8080"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Contact.Endpoint == "" {
		c.Contact.Endpoint = "/api/send-email"
	}
	if c.HTTP.Aliases == nil && c.Contact.Endpoint != LegacyEndpoint {
		c.HTTP.Aliases = []Alias{{From: LegacyEndpoint, To: c.Contact.Endpoint}}
	}
	if c.Relay.SubjectPrefix == "" {
		c.Relay.SubjectPrefix = "New enquiry"
	}
	if c.Relay.SMTP.Port == 0 {
		c.Relay.SMTP.Port = 587
	}
	if c.Relay.Store.Table == "" {
		c.Relay.Store.Table = "contact_submission"
	}
	if c.Relay.Throttle.Limit > 0 && c.Relay.Throttle.Window == 0 {
		c.Relay.Throttle.Window = 10 * time.Minute
	}
}
