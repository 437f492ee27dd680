package tunnel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/deskwire/internal/observability"
	"github.com/danmuck/deskwire/internal/protocol/instruction"
	"github.com/danmuck/deskwire/internal/protocol/message"
	"github.com/danmuck/deskwire/internal/qos"
	"github.com/danmuck/deskwire/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrTunnelClosed     = errors.New("tunnel: closed")
	ErrRequestTimeout   = errors.New("tunnel: request timeout")
	ErrNotConnected     = errors.New("tunnel: not connected")
	ErrAlreadyConnected = errors.New("tunnel: already connected")
	ErrInvalidState     = errors.New("tunnel: invalid state")
)

type Tunnel struct {
	tr      transport.Transport
	cfg     Config
	hooks   Hooks
	qos     qos.Strategy
	decoder *message.Decoder
	ids     *IDGenerator

	state   atomic.Int32
	// mu guards header and admission of new decodes.
	mu      sync.Mutex
	header  instruction.Header
	pending *pendingTable

	sendMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
	cause     error
	decodes   sync.WaitGroup
}

func New(tr transport.Transport, opts Options) *Tunnel {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tunnel{
		tr:      tr,
		cfg:     opts.Config.WithDefaults(),
		hooks:   opts.Hooks,
		qos:     opts.QoS,
		decoder: opts.Decoder,
		ids:     opts.IDs,
		pending: newPendingTable(),
		ctx:     ctx,
		cancel:  cancel,
		closed:  make(chan struct{}),
	}
	if t.qos == nil {
		t.qos = qos.Nop{}
	}
	if t.decoder == nil {
		t.decoder = message.NewDecoder(nil)
	}
	if t.ids == nil {
		t.ids = NewIDGenerator(0)
	}
	return t
}

func (t *Tunnel) State() State { return State(t.state.Load()) }

func (t *Tunnel) Config() Config { return t.cfg }

// Closed is closed once the tunnel has shut down.
func (t *Tunnel) Closed() <-chan struct{} { return t.closed }

// Err returns the close cause once Closed is done.
func (t *Tunnel) Err() error {
	select {
	case <-t.closed:
		return t.cause
	default:
		return nil
	}
}

// Pending reports how many requests await a reply.
func (t *Tunnel) Pending() int { return t.pending.count() }

// Connect opens the transport and starts the receive loop. A transport
// failure closes the tunnel.
func (t *Tunnel) Connect(ctx context.Context, params transport.ConnectParams) error {
	if !t.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		switch t.State() {
		case StateClosed:
			return ErrTunnelClosed
		case StateConnecting, StateConnected:
			return ErrAlreadyConnected
		default:
			return ErrInvalidState
		}
	}

	t.mu.Lock()
	t.header = params.InstructionHeader()
	t.mu.Unlock()

	if err := t.tr.Open(ctx, params); err != nil {
		log.Warn().Err(err).Str("address", params.Address).Msg("tunnel.Connect transport open failed")
		t.shutdown(err)
		return err
	}
	if !t.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		return ErrTunnelClosed
	}
	log.Info().
		Str("address", params.Address).
		Str("session", params.SessionHex()).
		Uint32("client", params.ClientID).
		Msg("tunnel connected")

	go t.recvLoop()
	return nil
}

// Disconnect closes the tunnel, rejecting every pending request.
func (t *Tunnel) Disconnect() error {
	t.state.CompareAndSwap(int32(StateDisconnected), int32(StateClosed))
	t.shutdown(nil)
	return nil
}

// SendInstruction transmits in without tracking a reply.
func (t *Tunnel) SendInstruction(in instruction.Instruction) error {
	if err := t.ready(); err != nil {
		return err
	}
	h := t.envelope()
	h.ID = t.ids.Next()
	return t.send(h, in)
}

// Go sends in as a synchronous request and returns its Call. timeout <= 0
// uses Config.RequestTimeout.
func (t *Tunnel) Go(in instruction.Instruction, timeout time.Duration) *Call {
	id := t.ids.Next()
	call := newCall(id, in)
	if err := t.ready(); err != nil {
		call.settle(nil, err)
		return call
	}
	if err := t.pending.add(call); err != nil {
		call.settle(nil, err)
		return call
	}

	if timeout <= 0 {
		timeout = t.cfg.RequestTimeout
	}
	call.setTimer(time.AfterFunc(timeout, func() {
		if c := t.pending.take(id); c != nil {
			t.settle(c, nil, fmt.Errorf("%w: id=%d after %s", ErrRequestTimeout, id, timeout), "timeout")
		}
	}))

	h := t.envelope()
	h.ID = id
	h.Sync = true
	if err := t.send(h, in); err != nil {
		if c := t.pending.take(id); c != nil {
			t.settle(c, nil, err, "send_error")
		}
	}
	return call
}

// Request sends in and waits for the correlated reply.
func (t *Tunnel) Request(ctx context.Context, in instruction.Instruction, timeout time.Duration) (message.Message, error) {
	return t.Go(in, timeout).Wait(ctx)
}

func (t *Tunnel) ready() error {
	switch t.State() {
	case StateConnected:
		return nil
	case StateClosed:
		return ErrTunnelClosed
	default:
		return ErrNotConnected
	}
}

func (t *Tunnel) envelope() instruction.Header {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.header
}

func (t *Tunnel) send(h instruction.Header, in instruction.Instruction) error {
	buf, err := instruction.Encode(h, in)
	if err != nil {
		log.Warn().Err(err).Uint32("id", h.ID).Msg("tunnel.send encode failed")
		return err
	}

	t.sendMu.Lock()
	err = t.tr.Send(buf)
	t.sendMu.Unlock()
	if err != nil {
		log.Warn().Err(err).Str("type", in.Type().String()).Uint32("id", h.ID).Msg("tunnel.send transport failed")
		return err
	}

	observability.RecordInstructionSent(in.Type().String(), len(buf))
	if t.hooks.OnBytesSent != nil {
		t.hooks.OnBytesSent(len(buf))
	}
	return nil
}

func (t *Tunnel) recvLoop() {
	for {
		buf, err := t.tr.Receive()
		if err != nil {
			if t.State() != StateClosed {
				log.Info().Err(err).Msg("tunnel receive ended")
			}
			if errors.Is(err, transport.ErrClosed) {
				err = nil
			}
			t.shutdown(err)
			return
		}
		t.handleBuffer(buf)
	}
}

// handleBuffer runs the header fast path in arrival order, then decodes.
func (t *Tunnel) handleBuffer(buf []byte) {
	if len(buf) == 0 {
		log.Warn().Msg("tunnel dropped empty buffer")
		observability.RecordDroppedBuffer("empty")
		return
	}
	if len(buf) < message.HeaderSize {
		log.Warn().Int("len", len(buf)).Msg("tunnel dropped short buffer")
		observability.RecordDroppedBuffer("short")
		return
	}
	h, err := message.ParseHeader(buf)
	if err != nil {
		log.Warn().Err(err).Msg("tunnel dropped unreadable header")
		observability.RecordDroppedBuffer("header")
		return
	}

	if t.hooks.OnBytesReceived != nil {
		t.hooks.OnBytesReceived(len(buf))
	}
	observability.RecordMessageReceived(typeLabel(h.Type), len(buf), int(h.Backlog))

	if h.Type == message.TypePing {
		t.reply(instruction.Pong{Timestamp: h.Timestamp}, "pong")
	}
	if h.Length > t.cfg.DataAckThreshold {
		t.reply(instruction.DataAck{Timestamp: h.Timestamp, Length: h.Length}, "data_ack")
	}
	t.qos.Handle(int(h.Backlog))

	if !message.CarriesPayload(h.Type) {
		t.complete(buf, h)
		return
	}
	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	t.decodes.Add(1)
	t.mu.Unlock()
	go func() {
		defer t.decodes.Done()
		t.complete(buf, h)
	}()
}

func (t *Tunnel) reply(in instruction.Instruction, kind string) {
	if err := t.SendInstruction(in); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("tunnel fast path reply failed")
		return
	}
	observability.RecordFastPath(kind)
}

// complete fully decodes buf and routes the result.
func (t *Tunnel) complete(buf []byte, h message.Header) {
	ctx, cancel := context.WithTimeout(t.ctx, t.cfg.DecodeTimeout)
	defer cancel()

	msg, err := t.decoder.Decode(ctx, buf)
	if t.ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Warn().Err(err).
			Str("type", h.Type.String()).
			Uint32("command", h.CommandID).
			Msg("tunnel decode failed")
		observability.RecordDecodeError(typeLabel(h.Type))
		if h.CommandID != 0 {
			if c := t.pending.take(h.CommandID); c != nil {
				t.settle(c, nil, err, "decode_error")
			}
		}
		return
	}

	if id := msg.Head().CommandID; id != 0 {
		if c := t.pending.take(id); c != nil {
			t.settle(c, msg, nil, "resolved")
			return
		}
	}
	if t.hooks.OnMessage != nil {
		t.hooks.OnMessage(msg)
	}
}

func (t *Tunnel) settle(c *Call, reply message.Message, err error, outcome string) {
	if !c.settle(reply, err) {
		return
	}
	observability.RecordRequest(outcome, time.Since(c.Started))
}

// typeLabel keeps metric label values to the known catalog; the type field
// is peer controlled.
func typeLabel(typ message.Type) string {
	if !typ.Known() {
		return "unknown"
	}
	return typ.String()
}

// shutdown closes the tunnel once: it rejects every pending call and closes
// the transport. OnClosed fires afterwards, outside the once, so the hook may
// call back into the tunnel.
func (t *Tunnel) shutdown(cause error) {
	first := false
	var rejected int
	t.closeOnce.Do(func() {
		first = true
		t.state.Store(int32(StateClosed))
		t.cancel()

		rejectErr := ErrTunnelClosed
		if cause != nil {
			rejectErr = fmt.Errorf("%w: %v", ErrTunnelClosed, cause)
		}
		drained := t.pending.drain()
		for _, c := range drained {
			t.settle(c, nil, rejectErr, "closed")
		}
		rejected = len(drained)

		if err := t.tr.Close(); err != nil {
			log.Debug().Err(err).Msg("tunnel.shutdown transport close failed")
		}
		t.cause = cause
		close(t.closed)
	})
	if !first {
		return
	}

	log.Info().Err(cause).Int("rejected", rejected).Msg("tunnel closed")
	if t.hooks.OnClosed != nil {
		t.hooks.OnClosed(cause)
	}
}

// Wait blocks until the tunnel has closed and in-flight decodes have ended.
func (t *Tunnel) Wait() {
	<-t.closed
	// shutdown cancels ctx before closing; no decode is added after this.
	t.mu.Lock()
	t.mu.Unlock()
	t.decodes.Wait()
}
