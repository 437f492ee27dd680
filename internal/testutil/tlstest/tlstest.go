// Package tlstest mints a short-lived CA and leaf certificates on disk so
// transport and config tests can run real TLS handshakes.
package tlstest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const validity = time.Hour

// Pair is an issued certificate and its private key, both PEM files.
type Pair struct {
	CertFile string
	KeyFile  string
	cert     tls.Certificate
}

// Authority signs leaves into its own directory.
type Authority struct {
	dir    string
	cert   *x509.Certificate
	key    *ecdsa.PrivateKey
	caFile string
	serial atomic.Int64
}

// New creates an authority named name under a fresh temp dir.
func New(t testing.TB, name string) *Authority {
	t.Helper()
	a := &Authority{dir: t.TempDir()}
	a.serial.Store(1)

	a.key = newKey(t)
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(a.serial.Load()),
		Subject:               pkix.Name{CommonName: name, Organization: []string{"deskwire tests"}},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &a.key.PublicKey, a.key)
	if err != nil {
		t.Fatalf("tlstest: self-sign %s: %v", name, err)
	}
	if a.cert, err = x509.ParseCertificate(der); err != nil {
		t.Fatalf("tlstest: parse %s: %v", name, err)
	}
	a.caFile = filepath.Join(a.dir, "ca.pem")
	writeBlock(t, a.caFile, "CERTIFICATE", der, 0o644)
	return a
}

// CAFile is the authority certificate in PEM.
func (a *Authority) CAFile() string { return a.caFile }

// Pool trusts only this authority.
func (a *Authority) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(a.cert)
	return pool
}

// Server issues a serving pair. Each host is an IP literal or a DNS name.
func (a *Authority) Server(t testing.TB, name string, hosts ...string) Pair {
	t.Helper()
	var ips []net.IP
	var dns []string
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		} else {
			dns = append(dns, h)
		}
	}
	return a.issue(t, name, x509.ExtKeyUsageServerAuth, func(c *x509.Certificate) {
		c.IPAddresses = ips
		c.DNSNames = dns
	})
}

// Client issues a pair for mutual TLS.
func (a *Authority) Client(t testing.TB, name string) Pair {
	t.Helper()
	return a.issue(t, name, x509.ExtKeyUsageClientAuth, nil)
}

// ServerConfig serves p. With verifyClients set, peers must present a
// certificate signed by a.
func (a *Authority) ServerConfig(p Pair, verifyClients bool) *tls.Config {
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{p.cert},
	}
	if verifyClients {
		cfg.ClientCAs = a.Pool()
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg
}

func (a *Authority) issue(t testing.TB, name string, usage x509.ExtKeyUsage, edit func(*x509.Certificate)) Pair {
	t.Helper()
	key := newKey(t)
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(a.serial.Add(1)),
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{usage},
	}
	if edit != nil {
		edit(tmpl)
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.cert, &key.PublicKey, a.key)
	if err != nil {
		t.Fatalf("tlstest: sign %s: %v", name, err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("tlstest: marshal key %s: %v", name, err)
	}

	base := filepath.Join(a.dir, fileName(name))
	p := Pair{CertFile: base + ".crt", KeyFile: base + ".key"}
	writeBlock(t, p.CertFile, "CERTIFICATE", der, 0o644)
	writeBlock(t, p.KeyFile, "PRIVATE KEY", keyDER, 0o600)
	if p.cert, err = tls.LoadX509KeyPair(p.CertFile, p.KeyFile); err != nil {
		t.Fatalf("tlstest: reload %s: %v", name, err)
	}
	return p
}

func newKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("tlstest: key: %v", err)
	}
	return key
}

func writeBlock(t testing.TB, path, kind string, der []byte, perm os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: kind, Bytes: der}), perm); err != nil {
		t.Fatalf("tlstest: write %s: %v", path, err)
	}
}

func fileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return "leaf"
	}
	return name
}
