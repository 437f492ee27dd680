package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	ErrSSHJumpHost   = errors.New("transport: ssh jump host not set")
	ErrSSHUser       = errors.New("transport: ssh user not set")
	ErrSSHKey        = errors.New("transport: ssh key not set")
	ErrSSHKnownHosts = errors.New("transport: ssh known_hosts unavailable")
)

// SSHDialer reaches the desktop peer through an SSH jump host using a
// direct-tcpip forward. The peer address is resolved on the jump host.
type SSHDialer struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	// Timeout bounds the TCP dial to the jump host. The SSH handshake and
	// the forward are bounded by the Dial ctx.
	Timeout time.Duration
}

func (d SSHDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	jump, err := d.jumpAddress()
	if err != nil {
		return nil, err
	}
	cfg, err := d.clientConfig()
	if err != nil {
		return nil, err
	}

	nd := net.Dialer{Timeout: d.Timeout}
	raw, err := nd.DialContext(ctx, "tcp", jump)
	if err != nil {
		return nil, fmt.Errorf("transport: ssh dial %s: %w", jump, err)
	}
	client, err := sshHandshake(ctx, raw, jump, cfg)
	if err != nil {
		return nil, err
	}

	conn, err := client.DialContext(ctx, "tcp", address)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("transport: ssh forward %s via %s: %w", address, jump, err)
	}
	return &sshConn{Conn: conn, client: client}, nil
}

// sshHandshake runs the SSH client handshake on raw. ssh.NewClientConn has no
// ctx, so ctx is enforced through the conn deadline.
func sshHandshake(ctx context.Context, raw net.Conn, jump string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = raw.SetDeadline(time.Unix(1, 0))
	})

	conn, chans, reqs, err := ssh.NewClientConn(raw, jump, cfg)
	if !stop() {
		// ctx ended during the handshake; the deadline may already be poisoned.
		if err == nil {
			_ = conn.Close()
		}
		_ = raw.Close()
		return nil, fmt.Errorf("transport: ssh handshake %s: %w", jump, ctx.Err())
	}
	if err != nil {
		_ = raw.Close()
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			err = context.DeadlineExceeded
		}
		return nil, fmt.Errorf("transport: ssh handshake %s: %w", jump, err)
	}
	_ = raw.SetDeadline(time.Time{})
	return ssh.NewClient(conn, chans, reqs), nil
}

// sshConn closes the jump client along with the forwarded channel.
type sshConn struct {
	net.Conn
	client *ssh.Client
}

func (c *sshConn) Close() error {
	err := c.Conn.Close()
	if cerr := c.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// jumpAddress accepts "host", "host:port" or Host plus Port.
func (d SSHDialer) jumpAddress() (string, error) {
	host := strings.TrimSpace(d.Host)
	switch {
	case host == "":
		return "", ErrSSHJumpHost
	case d.Port != "":
		return net.JoinHostPort(host, d.Port), nil
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(host, "22"), nil
}

func (d SSHDialer) clientConfig() (*ssh.ClientConfig, error) {
	if strings.TrimSpace(d.User) == "" {
		return nil, ErrSSHUser
	}
	signer, err := d.loadSigner()
	if err != nil {
		return nil, err
	}
	hostKeys := ssh.InsecureIgnoreHostKey()
	if !d.InsecureSkipHostKeyChecking {
		if hostKeys, err = d.knownHosts(); err != nil {
			return nil, err
		}
	}
	return &ssh.ClientConfig{
		User:            d.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
	}, nil
}

func (d SSHDialer) loadSigner() (ssh.Signer, error) {
	if strings.TrimSpace(d.KeyPath) == "" {
		return nil, ErrSSHKey
	}
	pemBytes, err := os.ReadFile(d.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("transport: read ssh key: %w", err)
	}
	var signer ssh.Signer
	if len(d.Passphrase) > 0 {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pemBytes, d.Passphrase)
	} else {
		signer, err = ssh.ParsePrivateKey(pemBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: parse ssh key %s: %w", d.KeyPath, err)
	}
	return signer, nil
}

// knownHosts defaults to ~/.ssh/known_hosts.
func (d SSHDialer) knownHosts() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(d.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSSHKnownHosts, err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSSHKnownHosts, err)
	}
	return cb, nil
}
