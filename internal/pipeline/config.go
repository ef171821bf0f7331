package pipeline

import (
	"fmt"
	"time"

	st2110err "github.com/st2110/core/internal/errors"
	"github.com/st2110/core/internal/formats"
)

// Flags is the session flags bitmap from spec.md §6. Not every flag
// applies to every session type; §6's "Applies to" column documents which
// operations consult which bits.
type Flags uint32

const (
	FlagBlockGet Flags = 1 << iota
	FlagUserPacing
	FlagUserTimestamp
	FlagExactUserPacing
	FlagDropWhenLate
	FlagSplitAncByPkt
	FlagAutoDetectInterlaced
	FlagEnableRTCP
	FlagDataPathOnly
	FlagForceNUMA
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Endpoint is an IP/port pair identifying one direction of a session's
// network path.
type Endpoint struct {
	IP   string
	Port uint16
}

// Callbacks holds the optional non-blocking notification hooks a session
// may install (spec.md §6, §9 "Callback dispatch"). They are stored with
// the session's Config; Session itself does not invoke any of them. A
// hook installed here must not block.
type Callbacks struct {
	OnAvailable func(frameIndex int)
	OnDone      func(frameIndex int)
	OnLate      func(frameIndex int, lateBy time.Duration)
	OnEvent     func(name string, data map[string]any)
}

// Kind distinguishes the three ST 2110 essence kinds a session can carry;
// it governs how frameByteSize interprets the rest of Config.
type Kind uint8

const (
	KindVideo Kind = iota
	KindAudio
	KindAncillary
)

// Config is the immutable session configuration (spec.md §3, §6).
type Config struct {
	Name string
	Kind Kind

	Width, Height int
	FPSCode       string // e.g. "59.94", looked up via internal/formats
	PixelFormat   string // user-visible identifier, looked up via internal/formats
	Interlaced    bool

	// Audio-only fields (KindAudio).
	SampleCount int // samples per frame (packet time derived)
	Channels    int
	AudioFormat string // looked up via internal/formats

	// Ancillary-only fields (KindAncillary): the framebuffer holds raw
	// reassembled UDW bytes; MaxAncBytes bounds the per-frame allocation.
	MaxAncBytes int

	TX, RX Endpoint

	PayloadType uint8 // 0-127
	SSRCFilter  uint8 // 7-bit; 0 disables

	FramebufferCount int

	Flags Flags

	// BlockGetTimeout is the wait duration for a blocked get_frame before
	// a single re-scan; spec default is 1 second.
	BlockGetTimeout time.Duration

	Callbacks Callbacks

	// Direction selects the TX or RX cursor discipline. Create uses it as
	// given; the zero value is DirectionTX, whichever of TX/RX is populated.
	Direction Direction
}

// applyDefaults fills zero-value fields with the spec's stated defaults.
func (c *Config) applyDefaults() {
	if c.BlockGetTimeout <= 0 {
		c.BlockGetTimeout = 1 * time.Second
	}
}

// validate enforces the configuration-error conditions from spec.md §4.1
// ("create") and §7 tier 1: an invalid name, a framebuffer count below 2,
// an out-of-range payload type or SSRC filter, invalid geometry, an
// unknown pixel format, frame rate or audio format, a non-positive
// MaxAncBytes, or an unknown kind. A zero computed frame size is rejected
// by Create, not here.
func (c *Config) validate() error {
	if len(c.Name) == 0 || len(c.Name) > 31 {
		return st2110err.NewConfigError("session.create", fmt.Errorf("name length %d out of range [1,31]", len(c.Name)))
	}
	for _, r := range c.Name {
		if r < 0x20 || r > 0x7e {
			return st2110err.NewConfigError("session.create", fmt.Errorf("name must be printable ASCII"))
		}
	}
	if c.FramebufferCount < 2 {
		return st2110err.NewConfigError("session.create", fmt.Errorf("framebuffer count %d must be >= 2", c.FramebufferCount))
	}
	if c.PayloadType > 127 {
		return st2110err.NewConfigError("session.create", fmt.Errorf("payload type %d out of range [0,127]", c.PayloadType))
	}
	if c.SSRCFilter > 127 {
		return st2110err.NewConfigError("session.create", fmt.Errorf("ssrc filter %d out of range [0,127]", c.SSRCFilter))
	}
	switch c.Kind {
	case KindVideo:
		if c.Width <= 0 || c.Height <= 0 {
			return st2110err.NewConfigError("session.create", fmt.Errorf("frame geometry %dx%d invalid", c.Width, c.Height))
		}
		if _, err := formats.ParsePixelFormat(c.PixelFormat); err != nil {
			return st2110err.NewConfigError("session.create", err)
		}
		if _, err := formats.ParseFrameRate(c.FPSCode); err != nil {
			return st2110err.NewConfigError("session.create", err)
		}
	case KindAudio:
		if c.SampleCount <= 0 || c.Channels <= 0 {
			return st2110err.NewConfigError("session.create", fmt.Errorf("invalid audio geometry samples=%d channels=%d", c.SampleCount, c.Channels))
		}
		if _, err := formats.ParseAudioFormat(c.AudioFormat); err != nil {
			return st2110err.NewConfigError("session.create", err)
		}
	case KindAncillary:
		if c.MaxAncBytes <= 0 {
			return st2110err.NewConfigError("session.create", fmt.Errorf("max anc bytes %d must be positive", c.MaxAncBytes))
		}
	default:
		return st2110err.NewConfigError("session.create", fmt.Errorf("unknown session kind %d", c.Kind))
	}
	return nil
}

// frameByteSize computes the per-slot framebuffer allocation size for cfg,
// dispatching to internal/formats for video and audio geometry.
func frameByteSize(cfg Config) (int, error) {
	switch cfg.Kind {
	case KindVideo:
		pf, err := formats.ParsePixelFormat(cfg.PixelFormat)
		if err != nil {
			return 0, err
		}
		return formats.FrameSize(pf, cfg.Width, cfg.Height, cfg.Interlaced)
	case KindAudio:
		af, err := formats.ParseAudioFormat(cfg.AudioFormat)
		if err != nil {
			return 0, err
		}
		return formats.AudioFrameSize(af, cfg.SampleCount, cfg.Channels)
	case KindAncillary:
		return cfg.MaxAncBytes, nil
	default:
		return 0, fmt.Errorf("unknown session kind %d", cfg.Kind)
	}
}
