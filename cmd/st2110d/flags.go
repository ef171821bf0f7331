package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/st2110/core/internal/pipeline"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// cliConfig holds user-supplied flag values prior to translation into
// pipeline.Config, so main.go can validate and map in one place.
type cliConfig struct {
	mode        string // "tx" or "rx"
	name        string
	kind        string // "video", "audio", "anc"
	width       int
	height      int
	fps         string
	pixelFormat string
	interlaced  bool

	sampleCount int
	channels    int
	audioFormat string

	maxAncBytes int

	rxIP   string
	rxPort uint
	txIP   string
	txPort uint

	payloadType uint
	ssrcFilter  uint

	framebuffers int
	blockGet     bool
	autoDetectInterlaced bool

	metricsAddr string
	logLevel    string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("st2110d", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.mode, "mode", "rx", "Session direction: tx|rx")
	fs.StringVar(&cfg.name, "name", "st2110-session", "Session name (max 31 printable ASCII characters)")
	fs.StringVar(&cfg.kind, "kind", "anc", "Essence kind: video|audio|anc")

	fs.IntVar(&cfg.width, "width", 1920, "Frame width (video)")
	fs.IntVar(&cfg.height, "height", 1080, "Frame height (video)")
	fs.StringVar(&cfg.fps, "fps", "59.94", "Frame rate code (video)")
	fs.StringVar(&cfg.pixelFormat, "pixel-format", "YUV422RFC4175PG2BE10", "Pixel format identifier (video)")
	fs.BoolVar(&cfg.interlaced, "interlaced", false, "Frame geometry is interlaced (video)")

	fs.IntVar(&cfg.sampleCount, "sample-count", 48, "Samples per audio frame (audio)")
	fs.IntVar(&cfg.channels, "channels", 2, "Channel count (audio)")
	fs.StringVar(&cfg.audioFormat, "audio-format", "PCM24", "Audio sample format (audio)")

	fs.IntVar(&cfg.maxAncBytes, "max-anc-bytes", 65536, "Maximum reassembled ancillary frame size in bytes (anc)")

	fs.StringVar(&cfg.rxIP, "rx-ip", "239.1.1.1", "RX multicast/unicast group address")
	fs.UintVar(&cfg.rxPort, "rx-port", 20000, "RX UDP port")
	fs.StringVar(&cfg.txIP, "tx-ip", "239.1.1.1", "TX destination address")
	fs.UintVar(&cfg.txPort, "tx-port", 20000, "TX destination UDP port")

	fs.UintVar(&cfg.payloadType, "payload-type", 100, "RTP payload type (0-127)")
	fs.UintVar(&cfg.ssrcFilter, "ssrc-filter", 0, "7-bit SSRC filter, 0 disables")

	fs.IntVar(&cfg.framebuffers, "framebuffers", 4, "Framebuffer ring depth (>= 2)")
	fs.BoolVar(&cfg.blockGet, "block-get", true, "Block get_frame until a buffer is available")
	fs.BoolVar(&cfg.autoDetectInterlaced, "auto-detect-interlaced", false, "Auto-detect interlace from the first 64 ANC packets (anc RX)")

	fs.StringVar(&cfg.metricsAddr, "metrics-addr", ":9110", "Address to serve /metrics on; empty disables it")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := validateCLIConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateCLIConfig(cfg *cliConfig) error {
	switch cfg.mode {
	case "tx", "rx":
	default:
		return fmt.Errorf("invalid -mode %q, must be tx or rx", cfg.mode)
	}
	switch cfg.kind {
	case "video", "audio", "anc":
	default:
		return fmt.Errorf("invalid -kind %q, must be video, audio, or anc", cfg.kind)
	}
	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid -log-level %q", cfg.logLevel)
	}
	if cfg.payloadType > 127 {
		return errors.New("-payload-type must be between 0 and 127")
	}
	if cfg.ssrcFilter > 127 {
		return errors.New("-ssrc-filter must be between 0 and 127")
	}
	if net.ParseIP(cfg.rxIP) == nil {
		return fmt.Errorf("invalid -rx-ip %q", cfg.rxIP)
	}
	if net.ParseIP(cfg.txIP) == nil {
		return fmt.Errorf("invalid -tx-ip %q", cfg.txIP)
	}
	return nil
}

// toPipelineConfig translates the parsed CLI flags into a pipeline.Config.
func (c *cliConfig) toPipelineConfig() pipeline.Config {
	cfg := pipeline.Config{
		Name:             c.name,
		FramebufferCount: c.framebuffers,
		PayloadType:      uint8(c.payloadType),
		SSRCFilter:       uint8(c.ssrcFilter),
		RX:               pipeline.Endpoint{IP: c.rxIP, Port: uint16(c.rxPort)},
		TX:               pipeline.Endpoint{IP: c.txIP, Port: uint16(c.txPort)},
	}
	if c.mode == "tx" {
		cfg.Direction = pipeline.DirectionTX
	} else {
		cfg.Direction = pipeline.DirectionRX
	}

	switch c.kind {
	case "video":
		cfg.Kind = pipeline.KindVideo
		cfg.Width = c.width
		cfg.Height = c.height
		cfg.FPSCode = c.fps
		cfg.PixelFormat = c.pixelFormat
		cfg.Interlaced = c.interlaced
	case "audio":
		cfg.Kind = pipeline.KindAudio
		cfg.SampleCount = c.sampleCount
		cfg.Channels = c.channels
		cfg.AudioFormat = c.audioFormat
	case "anc":
		cfg.Kind = pipeline.KindAncillary
		cfg.MaxAncBytes = c.maxAncBytes
	}

	if c.blockGet {
		cfg.Flags |= pipeline.FlagBlockGet
	}
	if c.autoDetectInterlaced {
		cfg.Flags |= pipeline.FlagAutoDetectInterlaced
	}
	return cfg
}
