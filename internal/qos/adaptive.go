package qos

import (
	"sync"

	"github.com/danmuck/deskwire/internal/protocol/instruction"
	"github.com/rs/zerolog/log"
)

// AdaptiveConfig tunes Adaptive. Index 0 is the best quality.
type AdaptiveConfig struct {
	HighWater int
	LowWater  int
	// Sustain is how many consecutive messages at or above HighWater trigger a downgrade.
	Sustain int
	// Recover is how many consecutive messages at or below LowWater trigger an upgrade.
	Recover  int
	MaxIndex uint32
	Initial  uint32
}

func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		HighWater: 8,
		LowWater:  1,
		Sustain:   3,
		Recover:   60,
		MaxIndex:  5,
		Initial:   0,
	}
}

func (c AdaptiveConfig) WithDefaults() AdaptiveConfig {
	d := DefaultAdaptiveConfig()
	if c.HighWater <= 0 {
		c.HighWater = d.HighWater
	}
	if c.LowWater < 0 || c.LowWater >= c.HighWater {
		c.LowWater = min(d.LowWater, c.HighWater-1)
	}
	if c.Sustain <= 0 {
		c.Sustain = d.Sustain
	}
	if c.Recover <= 0 {
		c.Recover = d.Recover
	}
	if c.MaxIndex == 0 {
		c.MaxIndex = d.MaxIndex
	}
	if c.Initial > c.MaxIndex {
		c.Initial = c.MaxIndex
	}
	return c
}

// Adaptive steps the requested quality down while the peer's backlog stays
// high and back up once it drains, emitting a Quality instruction on each step.
type Adaptive struct {
	cfg    AdaptiveConfig
	sender Sender

	mu    sync.Mutex
	index uint32
	high  int
	low   int
}

func NewAdaptive(cfg AdaptiveConfig, sender Sender) *Adaptive {
	cfg = cfg.WithDefaults()
	return &Adaptive{cfg: cfg, sender: sender, index: cfg.Initial}
}

// Bind sets the sender after construction, for when the tunnel that sends is
// built with this strategy.
func (a *Adaptive) Bind(sender Sender) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sender = sender
}

func (a *Adaptive) Index() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index
}

func (a *Adaptive) Handle(backlog int) {
	a.mu.Lock()
	next, changed := a.step(backlog)
	sender := a.sender
	a.mu.Unlock()

	if !changed || sender == nil {
		return
	}
	if err := sender.SendInstruction(instruction.Quality{Index: next}); err != nil {
		log.Warn().Err(err).Uint32("index", next).Msg("qos.Adaptive send quality failed")
		return
	}
	log.Debug().Int("backlog", backlog).Uint32("index", next).Msg("qos.Adaptive quality changed")
}

func (a *Adaptive) step(backlog int) (uint32, bool) {
	switch {
	case backlog >= a.cfg.HighWater:
		a.low = 0
		a.high++
		if a.high >= a.cfg.Sustain && a.index < a.cfg.MaxIndex {
			a.high = 0
			a.index++
			return a.index, true
		}
	case backlog <= a.cfg.LowWater:
		a.high = 0
		a.low++
		if a.low >= a.cfg.Recover && a.index > 0 {
			a.low = 0
			a.index--
			return a.index, true
		}
	default:
		a.high = 0
		a.low = 0
	}
	return a.index, false
}
