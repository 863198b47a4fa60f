// Package tls serves the API over HTTPS with certificates managed by CertMagic.
package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/libdns/azure"
)

// Config holds TLS configuration.
type Config struct {
	Domains      []string
	Email        string
	CacheDir     string
	Staging      bool // Use Let's Encrypt staging environment
	DNS          DNSConfig
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DNSConfig holds Azure DNS provider configuration for DNS-01 challenges.
type DNSConfig struct {
	SubscriptionID    string
	ResourceGroupName string
	ClientID          string // User Assigned Managed Identity client ID (optional)
}

// UsesDNSChallenge reports whether the DNS-01 challenge is configured.
func (c DNSConfig) UsesDNSChallenge() bool {
	return c.SubscriptionID != "" && c.ResourceGroupName != ""
}

// Server serves a handler over HTTPS. Without a DNS provider the HTTP-01
// challenge is answered on :80, which otherwise redirects to HTTPS.
type Server struct {
	config  Config
	handler http.Handler
	logger  *slog.Logger
	magic   *certmagic.Config
	issuer  *certmagic.ACMEIssuer

	mu      sync.Mutex
	servers []*http.Server
}

// NewServer validates the configuration and prepares certificate management.
func NewServer(cfg Config, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if len(cfg.Domains) == 0 {
		return nil, errors.New("TLS enabled but no domains specified")
	}
	if cfg.Email == "" {
		return nil, errors.New("TLS enabled but no email specified")
	}

	if cfg.CacheDir != "" {
		certmagic.Default.Storage = &certmagic.FileStorage{Path: cfg.CacheDir}
	}
	magic := certmagic.NewDefault()

	template := certmagic.ACMEIssuer{
		CA:     certmagic.LetsEncryptProductionCA,
		Email:  cfg.Email,
		Agreed: true,
	}
	if cfg.Staging {
		template.CA = certmagic.LetsEncryptStagingCA
	}
	if cfg.DNS.UsesDNSChallenge() {
		template.DNS01Solver = &certmagic.DNS01Solver{
			DNSManager: certmagic.DNSManager{
				DNSProvider: &azure.Provider{
					SubscriptionId:    cfg.DNS.SubscriptionID,
					ResourceGroupName: cfg.DNS.ResourceGroupName,
					ClientId:          cfg.DNS.ClientID, // Empty = System Assigned Managed Identity
				},
			},
		}
	}

	issuer := certmagic.NewACMEIssuer(magic, template)
	magic.Issuers = []certmagic.Issuer{issuer}

	return &Server{
		config:  cfg,
		handler: handler,
		logger:  logger,
		magic:   magic,
		issuer:  issuer,
	}, nil
}

// ManageCertificates obtains or renews certificates for the configured domains.
func (s *Server) ManageCertificates(ctx context.Context) error {
	s.logger.Info("obtaining certificates",
		"domains", s.config.Domains,
		"dns_challenge", s.config.DNS.UsesDNSChallenge(),
		"staging", s.config.Staging,
	)

	if err := s.magic.ManageSync(ctx, s.config.Domains); err != nil {
		return fmt.Errorf("managing certificates: %w", err)
	}

	s.logger.Info("certificates obtained successfully")
	return nil
}

// TLSConfig returns the TLS configuration serving the managed certificates.
func (s *Server) TLSConfig() *tls.Config {
	cfg := s.magic.TLSConfig()
	cfg.NextProtos = append([]string{"h2", "http/1.1"}, cfg.NextProtos...)
	return cfg
}

// ListenAndServe serves HTTPS on addr until Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.ManageCertificates(ctx); err != nil {
		return err
	}

	httpsServer := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		TLSConfig:         s.TLSConfig(),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
	}
	s.track(httpsServer)

	if !s.config.DNS.UsesDNSChallenge() {
		redirect := &http.Server{
			Addr:              ":80",
			Handler:           s.issuer.HTTPChallengeHandler(http.HandlerFunc(redirectToHTTPS)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.track(redirect)
		go func() {
			if err := redirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP challenge server error", "error", err)
			}
		}()
	}

	s.logger.Info("starting HTTPS server", "address", addr, "domains", s.config.Domains)
	return httpsServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down all listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	servers := s.servers
	s.servers = nil
	s.mu.Unlock()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) track(srv *http.Server) {
	s.mu.Lock()
	s.servers = append(s.servers, srv)
	s.mu.Unlock()
}

func redirectToHTTPS(w http.ResponseWriter, r *http.Request) {
	target := "https://" + r.Host + r.URL.RequestURI()
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}
