package natsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

var (
	// ErrCAFileRequired is returned when TLS is configured without a CA bundle.
	ErrCAFileRequired = errors.New("NATS TLS requires ca_file")
	// ErrCAParsingFailed is returned when CA certificate cannot be parsed
	ErrCAParsingFailed = errors.New("failed to parse CA certificate")
	// ErrClientCertIncomplete is returned when only one of cert_file and key_file is set.
	ErrClientCertIncomplete = errors.New("NATS client certificate requires both cert_file and key_file")
)

// TLSConfig builds a tls.Config for NATS. A client certificate is optional;
// when present the connection uses mTLS.
func TLSConfig(cfg *models.TLSConfig) (*tls.Config, error) {
	if cfg == nil || cfg.CAFile == "" {
		return nil, ErrCAFileRequired
	}

	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, ErrClientCertIncomplete
	}

	caCert, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, ErrCAParsingFailed
	}

	conf := &tls.Config{
		RootCAs:    caPool,
		ServerName: cfg.ServerName,
		MinVersion: tls.VersionTLS12,
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}

		conf.Certificates = []tls.Certificate{cert}
	}

	return conf, nil
}
