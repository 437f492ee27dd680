package peer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/deskwire/internal/protocol/instruction"
	"github.com/rs/zerolog/log"
)

// Serve accepts stream clients on ln until ctx ends.
func (p *Peer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.ServeConn(ctx, conn); err != nil {
				log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("peer.Serve link ended")
			}
		}()
	}
}

// ServeConn runs one stream link: instructions framed by type on the way in,
// length-framed messages on the way out.
func (p *Peer) ServeConn(ctx context.Context, conn net.Conn) error {
	l := p.newLink()
	defer p.dropLink()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	var writeMu sync.Mutex
	write := func(buf []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_, err := conn.Write(buf)
		return err
	}
	if p.cfg.PingInterval > 0 {
		go p.pingLoop(ctx, l, write)
	}

	reader := bufio.NewReader(conn)
	for {
		buf, err := instruction.ReadFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		replies, err := l.handle(buf)
		if err != nil {
			log.Warn().Err(err).Msg("peer.ServeConn instruction rejected")
			continue
		}
		for _, reply := range replies {
			if err := write(reply); err != nil {
				return err
			}
		}
	}
}

func (p *Peer) pingLoop(ctx context.Context, l *link, write func([]byte) error) {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := write(l.ping()); err != nil {
				return
			}
		}
	}
}
