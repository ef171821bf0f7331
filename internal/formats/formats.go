// Package formats holds the lookup tables and pure functions shared by
// every session type: pixel/audio format identifiers, frame-rate codes,
// and the frame-size calculation that depends on them. Nothing here
// touches the network or the framebuffer pool; it is pure data plus pure
// functions so every other package can depend on it without a cycle.
package formats

import "fmt"

// PixelFormat enumerates the ST 2110-20/22 pixel formats this core
// recognizes. The wire-level codec devices for compressed formats live
// outside this core (the plugin loader); only the byte-accounting needed
// for framebuffer sizing is specified here.
type PixelFormat uint8

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatYUV422Planar10LE
	PixelFormatV210
	PixelFormatY210
	PixelFormatUYVY
	PixelFormatYUV422RFC4175PG2BE10
	PixelFormatYUV422PG2BE8
	PixelFormatYUV422PG2BE12
	PixelFormatYUV444PG4BE10
	PixelFormatYUV444PG4BE12
	PixelFormatRGBPG4BE10
	PixelFormatRGBPG4BE12
	PixelFormatRGB8
	PixelFormatRGBA
	PixelFormatBGRA
	PixelFormatYUV420P8
	PixelFormatYUV420P10LE
	PixelFormatYUV422P8
	PixelFormatYUV422P10LE
	PixelFormatYUV444P8
	PixelFormatYUV444P10LE
	PixelFormatNV12
	PixelFormatP010LE
)

// AudioFormat enumerates the ST 2110-30 PCM and AM824 sample encodings.
type AudioFormat uint8

const (
	AudioFormatUnknown AudioFormat = iota
	AudioFormatPCM8
	AudioFormatPCM16
	AudioFormatPCM24
	AudioFormatAM824
)

// pixelFormatNames is the user-visible string table; order matches the
// PixelFormat enum's intended "canonical" names, not declaration order.
var pixelFormatNames = map[string]PixelFormat{
	"YUV422PLANAR10LE":      PixelFormatYUV422Planar10LE,
	"V210":                  PixelFormatV210,
	"Y210":                  PixelFormatY210,
	"UYVY":                  PixelFormatUYVY,
	"YUV422RFC4175PG2BE10":  PixelFormatYUV422RFC4175PG2BE10,
	"YUV422RFC4175PG2BE8":   PixelFormatYUV422PG2BE8,
	"YUV422RFC4175PG2BE12":  PixelFormatYUV422PG2BE12,
	"YUV444RFC4175PG4BE10":  PixelFormatYUV444PG4BE10,
	"YUV444RFC4175PG4BE12":  PixelFormatYUV444PG4BE12,
	"RGBRFC4175PG4BE10":     PixelFormatRGBPG4BE10,
	"RGBRFC4175PG4BE12":     PixelFormatRGBPG4BE12,
	"RGB8":                  PixelFormatRGB8,
	"RGBA":                  PixelFormatRGBA,
	"BGRA":                  PixelFormatBGRA,
	"YUV420PLANAR8":         PixelFormatYUV420P8,
	"YUV420PLANAR10LE":      PixelFormatYUV420P10LE,
	"YUV422PLANAR8":         PixelFormatYUV422P8,
	"YUV422PLANAR10LEP":     PixelFormatYUV422P10LE,
	"YUV444PLANAR8":         PixelFormatYUV444P8,
	"YUV444PLANAR10LE":      PixelFormatYUV444P10LE,
	"NV12":                  PixelFormatNV12,
	"P010LE":                PixelFormatP010LE,
}

var audioFormatNames = map[string]AudioFormat{
	"PCM8":  AudioFormatPCM8,
	"PCM16": AudioFormatPCM16,
	"PCM24": AudioFormatPCM24,
	"AM824": AudioFormatAM824,
}

// frameRateCodes maps the user-visible fps label to an exact rational
// (numerator/denominator) so 29.97 and 59.94 are represented without
// floating-point drift (30000/1001, 60000/1001).
var frameRateCodes = map[string][2]uint32{
	"23.98":  {24000, 1001},
	"24":     {24, 1},
	"25":     {25, 1},
	"29.97":  {30000, 1001},
	"30":     {30, 1},
	"50":     {50, 1},
	"59.94":  {60000, 1001},
	"60":     {60, 1},
	"100":    {100, 1},
	"119.88": {120000, 1001},
	"120":    {120, 1},
}

// ParsePixelFormat looks up a user-visible pixel format identifier.
func ParsePixelFormat(s string) (PixelFormat, error) {
	if pf, ok := pixelFormatNames[s]; ok {
		return pf, nil
	}
	return PixelFormatUnknown, fmt.Errorf("unknown pixel format %q", s)
}

// ParseAudioFormat looks up a user-visible audio format identifier.
func ParseAudioFormat(s string) (AudioFormat, error) {
	if af, ok := audioFormatNames[s]; ok {
		return af, nil
	}
	return AudioFormatUnknown, fmt.Errorf("unknown audio format %q", s)
}

// FrameRate is an exact rational frames-per-second value.
type FrameRate struct {
	Num uint32
	Den uint32
}

// ParseFrameRate looks up a user-visible frame-rate code (e.g. "59.94").
func ParseFrameRate(s string) (FrameRate, error) {
	rat, ok := frameRateCodes[s]
	if !ok {
		return FrameRate{}, fmt.Errorf("unknown frame rate code %q", s)
	}
	return FrameRate{Num: rat[0], Den: rat[1]}, nil
}

// IntervalNS returns the nominal frame interval in nanoseconds, rounded
// to the nearest integer: round(1e9 * Den / Num).
func (r FrameRate) IntervalNS() uint64 {
	if r.Num == 0 {
		return 0
	}
	num := uint64(1_000_000_000) * uint64(r.Den)
	// round-to-nearest integer division
	return (num + uint64(r.Num)/2) / uint64(r.Num)
}

// pixelGroupLayout gives (group pixel count, group byte count) for the
// packed RFC 4175-style formats where frame size isn't simply width*height*bpp.
var pixelGroupLayout = map[PixelFormat]struct{ pixels, bytes int }{
	PixelFormatYUV422RFC4175PG2BE10: {2, 5},
	PixelFormatYUV422PG2BE8:         {2, 4},
	PixelFormatYUV422PG2BE12:        {2, 6},
	PixelFormatYUV444PG4BE10:        {4, 15},
	PixelFormatYUV444PG4BE12:        {4, 18},
	PixelFormatRGBPG4BE10:           {4, 15},
	PixelFormatRGBPG4BE12:           {4, 18},
	PixelFormatV210:                 {6, 16},
	PixelFormatY210:                 {2, 8}, // 2 pixels per 32-bit+32-bit word pair (4:2:2, 10-bit in 16-bit container)
}

// planarBytesPerPixel covers fixed per-pixel byte costs for simple planar or
// packed formats that are not pixel-group based.
var planarBytesPerPixel = map[PixelFormat]float64{
	PixelFormatUYVY:        2,
	PixelFormatRGB8:        3,
	PixelFormatRGBA:        4,
	PixelFormatBGRA:        4,
	PixelFormatYUV420P8:    1.5,
	PixelFormatYUV420P10LE: 3,
	PixelFormatYUV422P8:    2,
	PixelFormatYUV422P10LE: 4,
	PixelFormatYUV444P8:    3,
	PixelFormatYUV444P10LE: 6,
	PixelFormatNV12:        1.5,
	PixelFormatP010LE:      3,
}

// FrameSize computes the byte size of a single video frame for the given
// format, geometry and interlace flag. Interlaced frames are half-height
// fields (one field = one frame-worth of samples at half vertical
// resolution).
func FrameSize(pf PixelFormat, width, height int, interlaced bool) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid geometry %dx%d", width, height)
	}
	h := height
	if interlaced {
		if h%2 != 0 {
			return 0, fmt.Errorf("interlaced height %d must be even", h)
		}
		h /= 2
	}
	if layout, ok := pixelGroupLayout[pf]; ok {
		if width%layout.pixels != 0 {
			return 0, fmt.Errorf("width %d not a multiple of pixel group size %d", width, layout.pixels)
		}
		groups := (width / layout.pixels) * h
		return groups * layout.bytes, nil
	}
	if bpp, ok := planarBytesPerPixel[pf]; ok {
		return int(float64(width*h) * bpp), nil
	}
	return 0, fmt.Errorf("unsupported pixel format for frame sizing: %d", pf)
}

// AudioFrameSize computes the byte size of one audio frame: sampleCount
// frames * channels * bytes-per-sample for the given format.
func AudioFrameSize(af AudioFormat, sampleCount, channels int) (int, error) {
	if sampleCount <= 0 || channels <= 0 {
		return 0, fmt.Errorf("invalid audio geometry samples=%d channels=%d", sampleCount, channels)
	}
	var bps int
	switch af {
	case AudioFormatPCM8:
		bps = 1
	case AudioFormatPCM16:
		bps = 2
	case AudioFormatPCM24:
		bps = 3
	case AudioFormatAM824:
		bps = 4
	default:
		return 0, fmt.Errorf("unsupported audio format for frame sizing: %d", af)
	}
	return sampleCount * channels * bps, nil
}
