package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/deskwire/internal/peer"
	"github.com/danmuck/deskwire/internal/protocol/payload"
	"github.com/danmuck/deskwire/internal/transport"
)

func (c ClientConfig) ConnectParams() (transport.ConnectParams, error) {
	session, err := transport.ParseSessionID(c.Connection.Session)
	if err != nil {
		return transport.ConnectParams{}, err
	}
	return transport.ConnectParams{
		Address:   c.Connection.Address,
		SessionID: session,
		ClientID:  c.Connection.ClientID,
		Width:     c.Connection.Width,
		Height:    c.Connection.Height,
		Quality:   c.Connection.Quality,
	}, nil
}

// Transport builds the configured binding. passphrase unlocks an encrypted
// SSH key and may be nil.
func (c ClientConfig) Transport(passphrase []byte) (transport.Transport, error) {
	timeout, err := parseDuration("connection.dial_timeout", c.Connection.DialTimeout)
	if err != nil {
		return nil, err
	}
	maxMessage := c.Connection.MaxMessageBytes

	switch c.Connection.Transport {
	case TransportTCP:
		return transport.NewStream(transport.TCPDialer{Timeout: timeout}, maxMessage), nil
	case TransportTLS:
		return transport.NewStream(transport.TLSDialer{
			Timeout: timeout,
			Options: transport.TLSOptions{
				CAFile:             c.TLS.CAFile,
				CertFile:           c.TLS.CertFile,
				KeyFile:            c.TLS.KeyFile,
				ServerName:         c.TLS.ServerName,
				InsecureSkipVerify: c.TLS.InsecureSkipVerify,
			},
		}, maxMessage), nil
	case TransportSSH:
		return transport.NewStream(transport.SSHDialer{
			Host:                        c.SSH.Host,
			Port:                        c.SSH.Port,
			User:                        c.SSH.User,
			KeyPath:                     c.SSH.KeyPath,
			Passphrase:                  passphrase,
			KnownHostsPath:              c.SSH.KnownHostsPath,
			InsecureSkipHostKeyChecking: c.SSH.InsecureSkipHostKeyChecking,
			Timeout:                     timeout,
		}, maxMessage), nil
	case TransportWebSocket:
		return transport.NewWebSocket(nil, maxMessage), nil
	default:
		return nil, fmt.Errorf("unknown connection.transport: %s", c.Connection.Transport)
	}
}

func (c PeerConfig) PeerOptions() (peer.Config, error) {
	interval, err := parseDuration("ping_interval", c.PingInterval)
	if err != nil {
		return peer.Config{}, err
	}
	return peer.Config{
		Width:        c.Width,
		Height:       c.Height,
		Windows:      c.Windows,
		Codec:        payload.ParseCodecTag(strings.ToLower(c.Codec)),
		Backlog:      c.Backlog,
		PingInterval: interval,
	}, nil
}

// ServerTLS returns nil when the peer listens in plain TCP.
func (c PeerConfig) ServerTLS() (*tls.Config, error) {
	if strings.TrimSpace(c.TLS.CertFile) == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	if caPath := strings.TrimSpace(c.TLS.ClientCAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("config: parse client ca bundle: %s", caPath)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}
