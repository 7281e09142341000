// cmd/web/main.go
//
// Site HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (host-wide file → .env fallback).
//
//  2. Bootstrap console logger so config errors are visible.
//
//  3. Connect to Vault when VAULT_ADDR is set, then load config with
//     `vault:` references resolved.
//
//  4. Start the daily rotating logger (tees to console in a TTY).
//
//  5. Open optional collaborators: GeoLite2 DB, MySQL submission store,
//     webhook sender.  A failure here is logged and the feature skipped.
//
//  6. Build the relay: email (required) → store → webhook.
//
//  7. Router:
//
//     • chi RequestID, RealIP (http.trust_proxy only), access logger,
//       Recoverer
//     • metrics, security headers, ForceHTTPS, requestinfo
//     • path aliases (legacy /api/send-email.php → contact.endpoint)
//     • POST {contact.endpoint}   relay
//     • GET  /healthz, /metrics
//     • /*                        built static site, when configured
//
//  8. Serve until SIGINT/SIGTERM, then drain requests and background
//     relay actions.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ruthram360/site/internal/config"
	"github.com/ruthram360/site/internal/database"
	"github.com/ruthram360/site/internal/logger"
	"github.com/ruthram360/site/internal/message"
	"github.com/ruthram360/site/internal/metrics"
	"github.com/ruthram360/site/internal/middleware"
	"github.com/ruthram360/site/internal/relay"
	"github.com/ruthram360/site/internal/requestinfo"
	"github.com/ruthram360/site/internal/routing"
	"github.com/ruthram360/site/internal/server"
	"github.com/ruthram360/site/internal/vault"
)

const serverEnvPath = "/usr/local/etc/ruthram360/global.env"

// loadEnv prefers the host-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("bootstrap logger: %v", err)
	}
	zap.ReplaceGlobals(boot)

	//
	// ── 1.  Vault + config ──────────────────────────────────────────────
	//
	var secrets config.SecretResolver
	if os.Getenv("VAULT_ADDR") != "" {
		vc, err := vault.New(ctx, boot.Sugar())
		if err != nil {
			boot.Sugar().Fatalw("vault connect failed", "err", err)
		}
		secrets = vc
	}

	cfg, err := config.LoadWith(ctx, secrets)
	if err != nil {
		boot.Sugar().Fatalw("config load failed", "err", err)
	}

	logOut, err := logger.New(cfg.Log.Dir, cfg.Log.Tee || runningInTTY())
	if err != nil {
		boot.Sugar().Fatalw("start logger", "err", err)
	}
	defer func() { _ = logOut.Sync() }()

	//
	// ── 2.  Optional collaborators ──────────────────────────────────────
	//
	var geo *requestinfo.GeoDB
	if p := cfg.Geo.DBPath; p != "" {
		if geo, err = requestinfo.OpenGeo(p); err != nil {
			logOut.Warnw("geo lookup disabled", "err", err)
		} else {
			defer geo.Close()
		}
	}

	actions := []relay.Action{relay.EmailAction{
		Mailer:        newMailer(cfg.Relay.SMTP, logOut),
		To:            cfg.Relay.MailTo,
		SubjectPrefix: cfg.Relay.SubjectPrefix,
	}}

	if dsn := cfg.Relay.Store.DSN; dsn != "" {
		db, err := database.Open(ctx, dsn)
		if err != nil {
			logOut.Warnw("submission store disabled", "err", err)
		} else {
			defer db.Close()
			store, err := relay.NewStoreAction(db, cfg.Relay.Store.Table)
			if err != nil {
				logOut.Fatalw("submission store", "err", err)
			}
			actions = append(actions, store)
			logOut.Infow("submission store online", "table", cfg.Relay.Store.Table)
		}
	}

	if url := cfg.Relay.Webhook.URL; url != "" {
		actions = append(actions, relay.WebhookAction{
			Sender: message.NewWebhookSender(url, logOut.Named("webhook")),
		})
	}

	relayHandler := relay.NewHandler(actions,
		relay.WithServices(cfg.Contact.Services),
		relay.WithThrottle(relay.NewThrottle(cfg.Relay.Throttle.Limit, cfg.Relay.Throttle.Window, relay.DefaultThrottleKeys)),
		relay.WithLogger(logOut),
	)

	//
	// ── 3.  Router ──────────────────────────────────────────────────────
	//
	aliases, err := routing.NewAliases(cfg.HTTP.AliasMap())
	if err != nil {
		logOut.Fatalw("http aliases", "err", err)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if cfg.HTTP.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(
		logger.Middleware(logOut),
		chimw.Recoverer,
		metrics.Instrument,
		middleware.Security,
		middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS),
		requestinfo.Middleware(geo),
		routing.Middleware(aliases),
	)

	relayHandler.Mount(r, cfg.Contact.Endpoint)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if dir := cfg.HTTP.StaticDir; dir != "" {
		r.Handle("/*", http.FileServer(http.Dir(dir)))
		logOut.Infow("serving static site", "dir", dir)
	}

	//
	// ── 4.  Serve ───────────────────────────────────────────────────────
	//
	if err := server.Run(ctx, server.New(cfg.HTTP.ListenAddr, r), logOut); err != nil {
		logOut.Errorw("http server", "err", err)
	}

	done := make(chan struct{})
	go func() { relayHandler.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(server.ShutdownGrace):
		logOut.Warnw("relay actions still running at exit")
	}
	logOut.Infow("bye")
}

// newMailer picks SMTP when a host is configured, else the log-only mailer.
func newMailer(c config.SMTP, log *zap.SugaredLogger) message.Mailer {
	if c.Host == "" {
		log.Warnw("smtp host not set, mail is logged only")
		return message.LogMailer{Log: log.Named("mail")}
	}
	return message.NewSMTPMailer(message.SMTPConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}, nil)
}
