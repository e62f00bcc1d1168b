package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"

	"github.com/tariel-x/wellpush/internal/config"
)

const shutdownTimeout = 5 * time.Second

func newServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     log.New(newTLSErrorWriter(logger), "", 0),
	}
}

// runServer serves until ctx is cancelled, then drains in-flight requests.
func runServer(ctx context.Context, handler http.Handler, cfg *config.Config, logger *slog.Logger) error {
	if cfg.TLSMode == config.TLSModeAutocert {
		return serveAutocert(ctx, handler, cfg, logger)
	}
	srv := newServer(":"+cfg.HTTPPort, handler, logger)
	logger.Info("Starting HTTP server", "port", cfg.HTTPPort)
	return serve(ctx, logger, func(*http.Server) error { return srv.ListenAndServe() }, srv)
}

func serve(ctx context.Context, logger *slog.Logger, listen func(*http.Server) error, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			if err := listen(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server on %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func serveAutocert(ctx context.Context, handler http.Handler, cfg *config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.CertsDir, 0700); err != nil {
		return fmt.Errorf("failed to create certs directory: %w", err)
	}

	domain := normalizeDomain(cfg.Domain)
	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		HostPolicy: func(_ context.Context, host string) error {
			if normalizeDomain(host) != domain {
				return fmt.Errorf("host %q not configured (expected %q)", host, domain)
			}
			return nil
		},
		Cache: autocert.DirCache(cfg.CertsDir),
	}

	// ACME challenges on the plain port, everything else redirects.
	redirect := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
	})
	httpServer := newServer(":"+cfg.HTTPPort, m.HTTPHandler(redirect), logger)
	httpsServer := newServer(":"+cfg.HTTPSPort, handler, logger)
	httpsServer.TLSConfig = m.TLSConfig()

	go watchCertificate(ctx, m, domain, logger)

	logger.Info("Starting HTTPS server", "port", cfg.HTTPSPort, "domain", domain, "certs_dir", cfg.CertsDir)
	return serve(ctx, logger, func(srv *http.Server) error {
		if srv.TLSConfig != nil {
			return srv.ListenAndServeTLS("", "")
		}
		return srv.ListenAndServe()
	}, httpServer, httpsServer)
}

// watchCertificate touches the certificate daily so autocert renews it ahead
// of expiry even when traffic is low.
func watchCertificate(ctx context.Context, m *autocert.Manager, domain string, logger *slog.Logger) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(30 * time.Second):
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		checkCertificate(m, domain, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func checkCertificate(m *autocert.Manager, domain string, logger *slog.Logger) {
	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: domain})
	if err != nil || cert == nil || len(cert.Certificate) == 0 {
		logger.Warn("certificate not available yet", "domain", domain, "error", err)
		return
	}
	leaf := cert.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			logger.Error("failed to parse certificate", "error", err)
			return
		}
	}
	days := int(time.Until(leaf.NotAfter).Hours() / 24)
	logger.Info("certificate status", "domain", domain, "expires", leaf.NotAfter.Format("2006-01-02"), "days_left", days)
}

func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(domain, "www.")
}
