// Package ffmpeg wraps the ffmpeg and ffprobe binaries: media probing,
// encoder discovery, and resource sampling for running encodes.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// BinaryInfo describes the discovered ffmpeg installation.
type BinaryInfo struct {
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
	Version     string `json:"version"`
}

var versionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

// DetectBinaries resolves the ffmpeg and ffprobe binaries and verifies they
// run. Empty paths fall back to PATH lookup.
func DetectBinaries(ctx context.Context, ffmpegPath, ffprobePath string) (*BinaryInfo, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	resolved, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg binary %q not found", models.ErrUnavailable, ffmpegPath)
	}
	probeResolved, err := exec.LookPath(ffprobePath)
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe binary %q not found", models.ErrUnavailable, ffprobePath)
	}

	out, err := exec.CommandContext(ctx, resolved, "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("%w: running ffmpeg -version: %v", models.ErrUnavailable, err)
	}

	info := &BinaryInfo{
		FFmpegPath:  resolved,
		FFprobePath: probeResolved,
	}
	if m := versionRe.FindStringSubmatch(string(out)); m != nil {
		info.Version = m[1]
	} else {
		info.Version = strings.SplitN(string(out), "\n", 2)[0]
	}

	return info, nil
}
