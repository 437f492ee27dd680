package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/deskwire/internal/config"
	"github.com/danmuck/deskwire/internal/logging"
	"github.com/danmuck/deskwire/internal/observability"
	"github.com/danmuck/deskwire/internal/peer"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "cmd/deskpeer/config.toml", "peer config path")
	flag.Parse()

	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "deskpeer: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	cfg, err := config.LoadPeerConfig(path)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" && !logging.SetLevel(cfg.LogLevel) {
		log.Warn().Str("level", cfg.LogLevel).Msg("deskpeer unknown log level ignored")
	}

	opts, err := cfg.PeerOptions()
	if err != nil {
		return err
	}
	tlsCfg, err := cfg.ServerTLS()
	if err != nil {
		return err
	}

	p := peer.New(opts)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	log.Info().
		Str("addr", ln.Addr().String()).
		Bool("tls", tlsCfg != nil).
		Str("codec", opts.Codec.String()).
		Int("windows", opts.Windows).
		Msg("deskpeer listening")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Serve(ctx, ln)
	})

	if cfg.HTTPAddr != "" {
		status := observability.NewStatusServer(cfg.Name, cfg.HTTPAddr, cfg.CorsOrigins, func() any {
			return p.Stats()
		})
		p.Mount(status.Router())
		g.Go(func() error {
			return status.Serve(ctx)
		})
	}

	return g.Wait()
}
