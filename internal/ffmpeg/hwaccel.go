package ffmpeg

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// vaapiDevices are probed in order when testing VA-API encoders.
var vaapiDevices = []string{"/dev/dri/renderD128", "/dev/dri/renderD129"}

// encoderProbeTimeout bounds a single encoder smoke test.
const encoderProbeTimeout = 10 * time.Second

// Encoder is a usable video encoder, hardware or software.
type Encoder struct {
	Name     string `json:"name"`
	Hardware bool   `json:"hardware"`
	// Device is set for VA-API encoders.
	Device string `json:"device,omitempty"`
}

// softwareEncoders maps a target codec to its software fallback.
var softwareEncoders = map[string]string{
	"h264": "libx264",
	"hevc": "libx265",
}

// hwEncoderNames maps a target codec and acceleration vendor to the encoder.
var hwEncoderNames = map[string]map[string]string{
	"h264": {
		"nvenc": "h264_nvenc",
		"qsv":   "h264_qsv",
		"vaapi": "h264_vaapi",
	},
	"hevc": {
		"nvenc": "hevc_nvenc",
		"qsv":   "hevc_qsv",
		"vaapi": "hevc_vaapi",
	},
}

// EncoderSelector picks the best working encoder for a target codec,
// preferring hardware in the configured priority order. Probe results are
// cached for the process lifetime.
type EncoderSelector struct {
	ffmpegPath string
	priority   []string
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]*Encoder
}

// NewEncoderSelector creates a selector with a vendor priority order such as
// ["nvenc", "qsv", "vaapi"].
func NewEncoderSelector(ffmpegPath string, priority []string, logger *slog.Logger) *EncoderSelector {
	if logger == nil {
		logger = slog.Default()
	}
	if len(priority) == 0 {
		priority = []string{"nvenc", "qsv", "vaapi"}
	}
	return &EncoderSelector{
		ffmpegPath: ffmpegPath,
		priority:   priority,
		logger:     logger,
		cache:      make(map[string]*Encoder),
	}
}

// Best returns the preferred working encoder for the target codec. The
// software fallback is always usable, so an encoder is always returned for
// known codecs; unknown codecs fall back to libx264.
func (s *EncoderSelector) Best(ctx context.Context, codec string) Encoder {
	s.mu.Lock()
	if cached, ok := s.cache[codec]; ok {
		enc := *cached
		s.mu.Unlock()
		return enc
	}
	s.mu.Unlock()

	enc := s.probeLadder(ctx, codec)

	s.mu.Lock()
	s.cache[codec] = &enc
	s.mu.Unlock()

	return enc
}

// Software returns the software encoder for the target codec. Used when a
// filter chain rules out hardware encoding, such as subtitle burn-in of
// bitmap tracks.
func (s *EncoderSelector) Software(codec string) Encoder {
	name, ok := softwareEncoders[codec]
	if !ok {
		name = "libx264"
	}
	return Encoder{Name: name}
}

func (s *EncoderSelector) probeLadder(ctx context.Context, codec string) Encoder {
	vendors := hwEncoderNames[codec]
	if vendors != nil {
		for _, vendor := range s.priority {
			name, ok := vendors[vendor]
			if !ok {
				continue
			}
			if vendor == "vaapi" {
				if runtime.GOOS != "linux" {
					continue
				}
				for _, device := range vaapiDevices {
					if s.testEncoder(ctx, name, device) {
						s.logger.Info("hardware encoder selected",
							slog.String("encoder", name),
							slog.String("device", device),
						)
						return Encoder{Name: name, Hardware: true, Device: device}
					}
				}
				continue
			}
			if s.testEncoder(ctx, name, "") {
				s.logger.Info("hardware encoder selected", slog.String("encoder", name))
				return Encoder{Name: name, Hardware: true}
			}
		}
	}

	enc := s.Software(codec)
	s.logger.Info("software encoder selected", slog.String("encoder", enc.Name))
	return enc
}

// testEncoder encodes a tiny synthetic clip to verify the encoder works on
// this machine.
func (s *EncoderSelector) testEncoder(ctx context.Context, encoder, vaapiDevice string) bool {
	ctx, cancel := context.WithTimeout(ctx, encoderProbeTimeout)
	defer cancel()

	args := []string{"-hide_banner", "-v", "error"}
	if vaapiDevice != "" {
		args = append(args, "-vaapi_device", vaapiDevice)
	}
	args = append(args, "-f", "lavfi", "-i", "color=black:s=64x64:d=0.1")
	if vaapiDevice != "" {
		args = append(args, "-vf", "format=nv12,hwupload")
	}
	args = append(args, "-c:v", encoder, "-f", "null", "-")

	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	return cmd.Run() == nil
}
