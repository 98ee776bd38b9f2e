package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jmcleod/ironshield/api"
	"github.com/jmcleod/ironshield/internal/util"
	"github.com/jmcleod/ironshield/internal/uuid"
	"github.com/jmcleod/ironshield/keyring"
	"github.com/jmcleod/ironshield/origin"
	"github.com/jmcleod/ironshield/secrets"
	bboltstorage "github.com/jmcleod/ironshield/storage/bbolt"
	pgstorage "github.com/jmcleod/ironshield/storage/postgres"
)

var (
	port    int
	dataDir string
	tlsCert string
	tlsKey  string

	secretEnv        string
	secretFile       string
	secretVaultAddr  string
	secretVaultPath  string
	secretVaultField string

	allowedOrigins     []string
	allowMissingOrigin bool
	trustedProxies     []string
	redisAddr          string
	postgresDSN        string
	webhookURL         string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the anti-forgery protection server",
	Long: `Runs the reference server: the protection middleware wrapped around a small
demo application, the token and rejection-trail endpoints under /api/v1, and
Prometheus metrics under /metrics.

The signing secret is read from the configured source at startup and again on
SIGHUP, which rotates the key ring while keeping the previous key valid for
verification until the window closes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

		source, err := secretSource()
		if err != nil {
			return err
		}

		secret, err := secrets.Load(cmd.Context(), source)
		if err != nil {
			return fmt.Errorf("no usable signing secret, refusing to start: %w", err)
		}

		ring, err := keyring.New(secret)
		if err != nil {
			return fmt.Errorf("building key ring: %w", err)
		}
		defer ring.Close()

		opts := []api.Option{api.WithLogger(logger)}

		if len(allowedOrigins) > 0 {
			verifier := origin.NewVerifier()
			for _, raw := range allowedOrigins {
				if err := verifier.AddAllowedOrigin(raw); err != nil {
					return err
				}
			}
			verifier.AllowMissingOrigin(allowMissingOrigin)
			opts = append(opts, api.WithOriginVerifier(verifier))
		}

		if len(trustedProxies) > 0 {
			opt, err := api.WithTrustedProxies(trustedProxies)
			if err != nil {
				return err
			}
			opts = append(opts, opt)
		}

		if redisAddr != "" {
			store, err := api.DialRedisRejectionStore(cmd.Context(), redisAddr, os.Getenv("IRONSHIELD_REDIS_PASSWORD"), 0)
			if err != nil {
				return fmt.Errorf("connecting rejection store: %w", err)
			}
			defer store.Close()
			opts = append(opts, api.WithRejectionStore(store))
		}

		if postgresDSN != "" {
			trail, err := pgstorage.NewRepositoryFromDSN(cmd.Context(), postgresDSN)
			if err != nil {
				return fmt.Errorf("failed to open rejection trail: %w", err)
			}
			defer trail.Close()
			opts = append(opts, api.WithRejectionTrail(trail))
		} else {
			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			trail, err := bboltstorage.NewRepositoryFromFile(dataDir+"/trail.db", nil)
			if err != nil {
				return fmt.Errorf("failed to open rejection trail: %w", err)
			}
			defer trail.Close()
			opts = append(opts, api.WithRejectionTrail(trail))
		}

		if webhookURL != "" {
			opts = append(opts, api.WithWebhook(webhookURL, os.Getenv("IRONSHIELD_WEBHOOK_AUTH")))
		}

		a := api.New(ring, opts...)
		defer a.Close()

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Use(api.SecurityHeaders)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Handle("/metrics", promhttp.Handler())

		r.Mount("/api/v1", a.Router())
		mountDemoApp(r, a)

		var tlsConfig *tls.Config
		if tlsCert != "" && tlsKey != "" {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		} else {
			cert, err := util.GenerateSelfSignedCert()
			if err != nil {
				return fmt.Errorf("failed to generate self-signed certificate: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
			fmt.Println("Using self-signed runtime generated certificate for TLS")
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (data: %s)...\n", port, dataDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

		for {
			select {
			case sig := <-quit:
				if sig == syscall.SIGHUP {
					rotateFromSource(cmd.Context(), logger, a, ring, source)
					continue
				}
				fmt.Printf("\nReceived %s, shutting down...\n", sig)
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					return fmt.Errorf("server shutdown failed: %w", err)
				}
				return nil
			case err := <-done:
				return err
			}
		}
	},
}

// rotateFromSource re-fetches the signing secret and rotates it in. The old
// key keeps verifying until the window is trimmed back to two keys, so
// tokens issued before the rotation survive it.
func rotateFromSource(ctx context.Context, logger *slog.Logger, a *api.API, ring *keyring.Ring, source secrets.Source) {
	secret, err := secrets.Load(ctx, source)
	if err != nil {
		logger.Error("rotation aborted: secret re-fetch failed", "error", err)
		return
	}
	if secret.ID() == ring.ActiveID() {
		logger.Info("rotation skipped: secret unchanged", "key_id", secret.ID())
		return
	}
	if err := a.RotateKeys(secret); err != nil {
		logger.Error("rotation failed", "error", err)
		return
	}
	for ring.Len() > 2 {
		if err := a.RetireOldestKey(); err != nil {
			logger.Error("retiring old key failed", "error", err)
			break
		}
	}
	logger.Info("signing secret rotated", "active_key_id", ring.ActiveID(), "keys", ring.Len())
}

// secretSource picks the operator-configured secret source. Flags name the
// source only; the secret value itself never travels through argv.
func secretSource() (secrets.Source, error) {
	if secretFile != "" && secretVaultAddr != "" {
		return nil, errors.New("choose one of --secret-file and --secret-vault-addr")
	}
	if secretFile != "" {
		return secrets.FileSource{Path: secretFile}, nil
	}
	if secretVaultAddr != "" {
		if secretVaultPath == "" {
			return nil, errors.New("--secret-vault-path is required with --secret-vault-addr")
		}
		return secrets.NewVaultSource(secretVaultAddr, "", secretVaultPath, secretVaultField)
	}
	return secrets.EnvSource{Name: secretEnv}, nil
}

// mountDemoApp wires a minimal application behind the protection middleware
// so the full flow is exercisable out of the box: visit /, log in, submit.
func mountDemoApp(r chi.Router, a *api.API) {
	r.Group(func(gr chi.Router) {
		gr.Use(a.Protect)

		gr.Get("/", func(w http.ResponseWriter, req *http.Request) {
			token := api.TokenFromContext(req.Context())
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, demoPage, token, token)
		})

		gr.Post("/login", func(w http.ResponseWriter, req *http.Request) {
			// Demo only: a real application authenticates first.
			http.SetCookie(w, &http.Cookie{
				Name:     "session",
				Value:    uuid.New(),
				Path:     "/",
				HttpOnly: true,
				Secure:   true,
				SameSite: http.SameSiteLaxMode,
			})
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"logged in"}`))
		})

		gr.Post("/echo", func(w http.ResponseWriter, req *http.Request) {
			if err := req.ParseForm(); err != nil {
				http.Error(w, "bad form", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"message":%q}`, req.PostForm.Get("message"))
		})
	})
}

const demoPage = `<!DOCTYPE html>
<html>
<head><title>IronShield demo</title></head>
<body>
<h1>IronShield demo</h1>
<p>Your anti-forgery token: <code>%s</code></p>
<form method="POST" action="/echo">
  <input type="hidden" name="csrf_token" value="%s">
  <input type="text" name="message" placeholder="say something">
  <button type="submit">Echo</button>
</form>
<form method="POST" action="/login">
  <button type="submit">Log in (demo)</button>
</form>
</body>
</html>
`

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")

	serverCmd.Flags().StringVar(&secretEnv, "secret-env", "IRONSHIELD_SECRET", "Environment variable holding the master secret")
	serverCmd.Flags().StringVar(&secretFile, "secret-file", "", "File holding the master secret (first line)")
	serverCmd.Flags().StringVar(&secretVaultAddr, "secret-vault-addr", "", "HashiCorp Vault address to read the master secret from")
	serverCmd.Flags().StringVar(&secretVaultPath, "secret-vault-path", "", "Vault KV path holding the master secret")
	serverCmd.Flags().StringVar(&secretVaultField, "secret-vault-field", "", "Field name at the Vault path (default master_secret)")

	serverCmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origins", nil, "Origins allowed on mutating requests (scheme://host[:port]); empty disables origin checks")
	serverCmd.Flags().BoolVar(&allowMissingOrigin, "allow-missing-origin", false, "Accept mutating requests that carry no Origin or Referer header")
	serverCmd.Flags().StringSliceVar(&trustedProxies, "trusted-proxies", nil, "CIDRs of proxies whose forwarding headers are trusted")
	serverCmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Redis address for the shared rejection store (empty uses in-memory)")
	serverCmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "PostgreSQL DSN for the rejection trail (empty uses a local BBolt file)")
	serverCmd.Flags().StringVar(&webhookURL, "webhook-url", "", "HTTP endpoint receiving audit events and alerts")
}
