package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// certCheckInterval limits how often file modification times are polled.
const certCheckInterval = time.Minute

// CertLoader serves a TLS certificate and reloads it when the files change
// on disk, so certificates rotated by an external tool are picked up
// without a restart.
type CertLoader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu        sync.RWMutex
	cert      *tls.Certificate
	loadedAt  time.Time
	lastCheck time.Time
}

// NewCertLoader creates a CertLoader and performs the initial load.
func NewCertLoader(certFile, keyFile string, logger *slog.Logger) (*CertLoader, error) {
	loader := &CertLoader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger,
	}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	return loader, nil
}

// GetCertificate is a callback for tls.Config.GetCertificate. A stale
// certificate is returned rather than failing the handshake when the files
// cannot be re-read.
func (l *CertLoader) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.mu.RLock()
	if time.Since(l.lastCheck) < certCheckInterval {
		defer l.mu.RUnlock()
		return l.cert, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastCheck) < certCheckInterval {
		return l.cert, nil
	}
	l.lastCheck = time.Now()

	if l.modifiedSinceLoad() {
		if err := l.reload(); err != nil {
			l.logger.Error("failed to reload certificate", "error", err)
		}
	}
	return l.cert, nil
}

// modifiedSinceLoad must be called with l.mu held for writing.
func (l *CertLoader) modifiedSinceLoad() bool {
	certStat, err := os.Stat(l.certFile)
	if err != nil {
		l.logger.Error("failed to stat cert file", "error", err)
		return false
	}
	keyStat, err := os.Stat(l.keyFile)
	if err != nil {
		l.logger.Error("failed to stat key file", "error", err)
		return false
	}
	return certStat.ModTime().After(l.loadedAt) || keyStat.ModTime().After(l.loadedAt)
}

func (l *CertLoader) reload() error {
	cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}

	l.cert = &cert
	l.loadedAt = time.Now()
	l.logger.Info("loaded tls certificate", "cert", l.certFile, "key", l.keyFile)
	return nil
}
