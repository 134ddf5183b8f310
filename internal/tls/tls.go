package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Options selects the certificate pair served by the status API.
type Options struct {
	CertFile   string
	KeyFile    string
	MinVersion string
	// SelfSigned generates a pair at CertFile/KeyFile when neither exists.
	SelfSigned bool
	Hosts      []string
}

func parseTLSVersion(v string) (uint16, error) {
	switch strings.TrimSpace(strings.ToUpper(v)) {
	case "", "TLS1.2", "1.2":
		return tls.VersionTLS12, nil
	case "TLS1.3", "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported tls version %q", v)
	}
}

func safeReadFile(path string) ([]byte, error) {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) {
		abs, err := filepath.Abs(clean)
		if err != nil {
			return nil, err
		}
		clean = abs
	}
	return os.ReadFile(clean)
}

// getCertificationFunc reloads the pair from disk when either file changes,
// so renewed certificates are picked up without a restart.
func getCertificationFunc(certFile, keyFile string) (func(*tls.ClientHelloInfo) (*tls.Certificate, error), error) {
	load := func() (*tls.Certificate, time.Time, error) {
		certPEM, err := safeReadFile(certFile)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("read cert: %w", err)
		}
		keyPEM, err := safeReadFile(keyFile)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("read key: %w", err)
		}
		pair, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("parse key pair: %w", err)
		}
		return &pair, modTime(certFile, keyFile), nil
	}
	cert, stamp, err := load()
	if err != nil {
		return nil, err
	}
	var mu sync.Mutex
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		mu.Lock()
		defer mu.Unlock()
		if m := modTime(certFile, keyFile); m.After(stamp) {
			if next, ns, err := load(); err == nil {
				cert, stamp = next, ns
			}
		}
		return cert, nil
	}, nil
}

func modTime(paths ...string) time.Time {
	var latest time.Time
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil && fi.ModTime().After(latest) {
			latest = fi.ModTime()
		}
	}
	return latest
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Setup returns a server tls.Config, or nil when no certificate is configured.
func Setup(o Options) (*tls.Config, error) {
	if o.CertFile == "" && o.KeyFile == "" {
		return nil, nil
	}
	if o.CertFile == "" || o.KeyFile == "" {
		return nil, errors.New("tls: cert and key must be set together")
	}
	minVersion, err := parseTLSVersion(o.MinVersion)
	if err != nil {
		return nil, err
	}
	if o.SelfSigned && !exists(o.CertFile) && !exists(o.KeyFile) {
		hosts := o.Hosts
		if len(hosts) == 0 {
			hosts = []string{"localhost", "127.0.0.1"}
		}
		if err := GenerateSelfSignedCert(CertConfig{
			CommonName:   hosts[0],
			Organization: "svcmon",
			Hosts:        hosts,
			NotAfter:     time.Now().AddDate(1, 0, 0),
			CertPath:     o.CertFile,
			KeyPath:      o.KeyFile,
		}); err != nil {
			return nil, err
		}
	}
	getCert, err := getCertificationFunc(o.CertFile, o.KeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:     minVersion,
		GetCertificate: getCert,
	}, nil
}
