package config

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/deskwire/internal/protocol/payload"
	"github.com/danmuck/deskwire/internal/testutil/testlog"
	"github.com/danmuck/deskwire/internal/testutil/tlstest"
	"github.com/danmuck/deskwire/internal/transport"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTemplatesLoadAndValidate(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	clientPath := filepath.Join(dir, "client.toml")
	if err := WriteTemplate(clientPath, "client", false); err != nil {
		t.Fatalf("write client template: %v", err)
	}
	client, err := LoadClientConfig(clientPath)
	if err != nil {
		t.Fatalf("load client template: %v", err)
	}
	if client.Connection.Transport != TransportTCP || client.Connection.Width != 1280 || client.Status.Enabled {
		t.Fatalf("client template got=%+v", client)
	}

	peerPath := filepath.Join(dir, "peer.toml")
	if err := WriteTemplate(peerPath, "peer", false); err != nil {
		t.Fatalf("write peer template: %v", err)
	}
	peerCfg, err := LoadPeerConfig(peerPath)
	if err != nil {
		t.Fatalf("load peer template: %v", err)
	}
	if peerCfg.Windows != 2 || peerCfg.Listen != ":7400" {
		t.Fatalf("peer template got=%+v", peerCfg)
	}

	if err := WriteTemplate(peerPath, "peer", false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if err := WriteTemplate(peerPath, "peer", true); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
	if _, err := Template("relay"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestClientConfigDefaultsAndConversion(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
[connection]
address = "desk.local:7400"
session = "000102030405060708090a0b0c0d0e0f"
client_id = 4
width = 800
height = 600
`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "deskctl" || cfg.Connection.Transport != TransportTCP || cfg.Connection.DialTimeout != "5s" {
		t.Fatalf("defaults got=%+v", cfg)
	}

	params, err := cfg.ConnectParams()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.SessionID[15] != 0x0f || params.ClientID != 4 || params.Width != 800 {
		t.Fatalf("params got=%+v", params)
	}

	tr, err := cfg.Transport(nil)
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	if _, ok := tr.(*transport.Stream); !ok {
		t.Fatalf("tcp transport got=%T", tr)
	}

	cfg.Connection.Transport = TransportWebSocket
	if tr, _ := cfg.Transport(nil); tr == nil {
		t.Fatalf("websocket transport missing")
	} else if _, ok := tr.(*transport.WebSocket); !ok {
		t.Fatalf("websocket transport got=%T", tr)
	}
}

func TestClientConfigValidation(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"missing address": `[connection]
transport = "tcp"`,
		"unknown transport": `[connection]
address = "a:1"
transport = "quic"`,
		"ssh without user": `[connection]
address = "a:1"
transport = "ssh"
[ssh]
host = "jump"`,
		"half size": `[connection]
address = "a:1"
width = 10`,
		"bad timeout": `[connection]
address = "a:1"
dial_timeout = "soon"`,
		"cert without key": `[connection]
address = "a:1"
[tls]
cert_file = "c.pem"`,
	}
	for name, body := range cases {
		if _, err := LoadClientConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	if _, err := LoadClientConfig(writeConfig(t, "[connection\n")); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("expected parse error, got=%v", err)
	}
	if _, err := LoadClientConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected load error")
	}
}

func TestPeerConfigConversion(t *testing.T) {
	testlog.Start(t)
	cfg, err := LoadPeerConfig(writeConfig(t, `
listen = "127.0.0.1:0"
codec = "RAW"
ping_interval = "250ms"
windows = 3
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	opts, err := cfg.PeerOptions()
	if err != nil {
		t.Fatalf("peer options: %v", err)
	}
	if opts.Codec != payload.CodecRaw || opts.PingInterval != 250*time.Millisecond || opts.Windows != 3 {
		t.Fatalf("peer options got=%+v", opts)
	}
	if tlsCfg, err := cfg.ServerTLS(); err != nil || tlsCfg != nil {
		t.Fatalf("plain peer tls got=%v err=%v", tlsCfg, err)
	}

	if _, err := LoadPeerConfig(writeConfig(t, `codec = "gif"`)); err == nil {
		t.Fatalf("expected codec validation error")
	}
}

func TestPeerServerTLSRequiresClientCerts(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.New(t, "deskpeer-ca")
	pair := ca.Server(t, "deskpeer", "localhost")
	certPath, keyPath := pair.CertFile, pair.KeyFile

	cfg := PeerConfig{TLS: PeerTLSConfig{CertFile: certPath, KeyFile: keyPath, ClientCAFile: ca.CAFile()}}
	tlsCfg, err := cfg.ServerTLS()
	if err != nil {
		t.Fatalf("server tls: %v", err)
	}
	if len(tlsCfg.Certificates) != 1 || tlsCfg.ClientAuth != tls.RequireAndVerifyClientCert || tlsCfg.ClientCAs == nil {
		t.Fatalf("server tls got=%+v", tlsCfg)
	}

	cfg.TLS.ClientCAFile = certPath + ".missing"
	if _, err := cfg.ServerTLS(); err == nil {
		t.Fatalf("expected missing client ca error")
	}
}
