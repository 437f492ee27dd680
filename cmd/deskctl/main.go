package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/deskwire/internal/config"
	"github.com/danmuck/deskwire/internal/logging"
	"github.com/danmuck/deskwire/internal/observability"
	"github.com/danmuck/deskwire/internal/protocol/instruction"
	"github.com/danmuck/deskwire/internal/protocol/message"
	"github.com/danmuck/deskwire/internal/protocol/payload"
	"github.com/danmuck/deskwire/internal/qos"
	"github.com/danmuck/deskwire/internal/tunnel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

func main() {
	configPath := flag.String("config", "cmd/deskctl/config.toml", "client config path")
	once := flag.Bool("once", false, "survey the peer once and disconnect")
	logLevel := flag.String("log-level", "", "override log level")
	clipboard := flag.String("clipboard", "", "send this text as clipboard after connecting")
	askPassphrase := flag.Bool("ssh-passphrase-prompt", false, "prompt for the ssh key passphrase")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "deskctl: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if cfg.LogLevel != "" && !logging.SetLevel(cfg.LogLevel) {
		log.Warn().Str("level", cfg.LogLevel).Msg("deskctl unknown log level ignored")
	}

	tune, err := loadTuning(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "deskctl: %v\n", err)
		os.Exit(1)
	}

	var passphrase []byte
	if *askPassphrase {
		passphrase, err = readPassphrase()
		if err != nil {
			fmt.Fprintf(os.Stderr, "deskctl: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, tune, passphrase, *once, *clipboard); err != nil {
		fmt.Fprintf(os.Stderr, "deskctl: %v\n", err)
		os.Exit(1)
	}
}

func readPassphrase() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("ssh passphrase prompt needs a terminal")
	}
	fmt.Fprint(os.Stderr, "ssh key passphrase: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return secret, nil
}

func run(ctx context.Context, cfg config.ClientConfig, tune tuning, passphrase []byte, once bool, clipboard string) error {
	tr, err := cfg.Transport(passphrase)
	if err != nil {
		return err
	}
	params, err := cfg.ConnectParams()
	if err != nil {
		return err
	}

	observability.RegisterMetrics()

	var strategy qos.Strategy = qos.Nop{}
	var adaptive *qos.Adaptive
	if tune.Adaptive {
		adaptive = qos.NewAdaptive(tune.QoS, nil)
		strategy = adaptive
	}

	tn := tunnel.New(tr, tunnel.Options{
		Config:  tune.Tunnel,
		QoS:     strategy,
		Decoder: message.NewDecoder(payload.NewPool(payload.ImageFactory{}, tune.DecodeWorkers)),
		Hooks: tunnel.Hooks{
			OnMessage: logMessage,
			OnClosed: func(cause error) {
				if cause != nil {
					log.Warn().Err(cause).Msg("deskctl tunnel closed")
					return
				}
				log.Info().Msg("deskctl tunnel closed")
			},
		},
	})
	if adaptive != nil {
		adaptive.Bind(tn)
	}

	if cfg.Status.Enabled {
		status := observability.NewStatusServer(cfg.Name, cfg.Status.Addr, cfg.Status.CorsOrigins, func() any {
			body := map[string]any{
				"service": cfg.Name,
				"address": params.Address,
				"session": params.SessionHex(),
				"state":   tn.State().String(),
				"pending": tn.Pending(),
			}
			if adaptive != nil {
				body["quality_index"] = adaptive.Index()
			}
			return body
		})
		go func() {
			if err := status.Serve(ctx); err != nil {
				log.Warn().Err(err).Msg("deskctl status server failed")
			}
		}()
	}

	log.Info().
		Str("transport", cfg.Connection.Transport).
		Str("address", params.Address).
		Str("session", params.SessionHex()).
		Msg("deskctl connecting")
	if err := tn.Connect(ctx, params); err != nil {
		return err
	}
	defer tn.Wait()

	if err := survey(ctx, tn); err != nil {
		_ = tn.Disconnect()
		return err
	}
	if clipboard != "" {
		if err := tn.SendInstruction(instruction.Clipboard{Text: clipboard}); err != nil {
			_ = tn.Disconnect()
			return err
		}
	}
	if once {
		return tn.Disconnect()
	}

	select {
	case <-ctx.Done():
		return tn.Disconnect()
	case <-tn.Closed():
		return tn.Err()
	}
}

// survey asks for the screen, the window list and one image per window.
func survey(ctx context.Context, tn *tunnel.Tunnel) error {
	reply, err := tn.Request(ctx, instruction.Screen{}, 0)
	if err != nil {
		return fmt.Errorf("screen request: %w", err)
	}
	logMessage(reply)

	reply, err = tn.Request(ctx, instruction.Windows{}, 0)
	if err != nil {
		return fmt.Errorf("windows request: %w", err)
	}
	logMessage(reply)

	wins, ok := reply.(message.Windows)
	if !ok {
		return fmt.Errorf("windows request: unexpected reply %s", reply.Type())
	}

	calls := make([]*tunnel.Call, 0, len(wins.Windows))
	for _, w := range wins.Windows {
		calls = append(calls, tn.Go(instruction.Image{ID: w.ID}, 0))
	}
	for _, call := range calls {
		reply, err := call.Wait(ctx)
		if err != nil {
			log.Warn().Err(err).Uint32("id", call.ID).Msg("deskctl image request failed")
			continue
		}
		logMessage(reply)
	}
	return nil
}

func logMessage(msg message.Message) {
	level := zerolog.DebugLevel
	switch msg.(type) {
	case message.Screen, message.Windows, message.Quality, message.Clipboard:
		level = zerolog.InfoLevel
	}

	h := msg.Head()
	ev := log.WithLevel(level).
		Uint32("command", h.CommandID).
		Uint32("backlog", h.Backlog)

	switch m := msg.(type) {
	case message.Screen:
		ev = ev.Int32("width", m.Width).Int32("height", m.Height)
	case message.Windows:
		ev = ev.Int("windows", len(m.Windows))
	case message.Image:
		ev = ev.Uint32("window", m.WindowID).Str("codec", m.Codec.String()).Int("bytes", textureLen(m.Color))
	case message.SubImages:
		ev = ev.Uint32("window", m.WindowID).Int("tiles", len(m.Images))
	case message.Mouse:
		ev = ev.Int32("x", m.X).Int32("y", m.Y).Uint32("cursor", m.CursorID)
	case message.CursorImage:
		ev = ev.Uint32("cursor", m.CursorID).Int("bytes", textureLen(m.Image))
	case message.Ping:
	case message.Quality:
		ev = ev.Uint32("index", m.Index).Float32("fps", m.FPS).Float32("max_mbps", m.MaxMbps)
	case message.Shape:
		ev = ev.Uint32("window", m.WindowID).Int("bytes", textureLen(m.Image))
	case message.Clipboard:
		ev = ev.Int("chars", len(m.Text))
	}
	ev.Msgf("deskctl %s", msg.Type())
}

func textureLen(t payload.Texture) int {
	if t == nil {
		return 0
	}
	return t.Len()
}
