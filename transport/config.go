package transport

import (
	"log/slog"
	"time"
)

// Config controls an Entity, following the teacher's pattern of an
// explicit, validated options struct passed at construction time
// (tcp.ConnConfig in the reference library) rather than package-level
// mutable state — spec.md §9 asks for the protocol entity to be "an
// explicit value owned by the API surface" with explicit init/teardown.
type Config struct {
	// MaxDescriptors bounds the descriptor table (spec §4.5). Default 128.
	MaxDescriptors int
	// DefaultBacklog is used when Listen is called with backlog <= 0.
	DefaultBacklog int
	// InitialRTT seeds rtt_estimate (spec §3.2) before any round trip has
	// been observed. The retransmission timeout is InitialRTT*4 until the
	// EWMA (see Open Questions in DESIGN.md) updates it.
	InitialRTT time.Duration
	// MaxRetransmits caps retransmit_count before a CCB is forced to
	// CLOSED with ErrTimeoutExhausted (spec §4.2: "no maximum retry cap is
	// mandated; implementations may add one (recommended: 5)"). Zero means
	// unlimited.
	MaxRetransmits int
	// TimeWaitDuration bounds how long a connection lingers in TIME-WAIT
	// absorbing stray late datagrams before the descriptor is released.
	TimeWaitDuration time.Duration
	// ScanInterval is how often the timer-scanner goroutine wakes to check
	// for expired retransmit/time-wait deadlines (spec §4.2: "resolution
	// coarser than 10ms is acceptable").
	ScanInterval time.Duration
	// BasePort is added to a descriptor's slot index to derive its default
	// local port when Bind is not called explicitly (spec §4.5).
	BasePort uint16
	// Logger receives structured diagnostic output. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig returns the default configuration. NewEntity fills every
// zero field of the Config it is given from it, except MaxRetransmits,
// where zero means unlimited.
func DefaultConfig() Config {
	return Config{
		MaxDescriptors:   128,
		DefaultBacklog:   8,
		InitialRTT:       300 * time.Millisecond,
		MaxRetransmits:   5,
		TimeWaitDuration: 2 * time.Second,
		ScanInterval:     10 * time.Millisecond,
		BasePort:         15000,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.MaxDescriptors <= 0 {
		c.MaxDescriptors = d.MaxDescriptors
	}
	if c.DefaultBacklog <= 0 {
		c.DefaultBacklog = d.DefaultBacklog
	}
	if c.InitialRTT <= 0 {
		c.InitialRTT = d.InitialRTT
	}
	if c.TimeWaitDuration <= 0 {
		c.TimeWaitDuration = d.TimeWaitDuration
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = d.ScanInterval
	}
	if c.BasePort == 0 {
		c.BasePort = d.BasePort
	}
}
