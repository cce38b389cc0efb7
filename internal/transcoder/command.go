package transcoder

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/NicolasFerec/ferelix-server/internal/ffmpeg"
)

// defaultSegmentDuration is the HLS segment length in seconds.
const defaultSegmentDuration = 6

// textSubtitleCodecs can be extracted to WebVTT or burned via the subtitles
// filter. Bitmap codecs must be burned through an overlay filter graph.
var textSubtitleCodecs = map[string]struct{}{
	"subrip":   {},
	"srt":      {},
	"ass":      {},
	"ssa":      {},
	"webvtt":   {},
	"vtt":      {},
	"mov_text": {},
	"text":     {},
}

// IsTextSubtitleCodec reports whether the codec is text-based.
func IsTextSubtitleCodec(codec string) bool {
	_, ok := textSubtitleCodecs[strings.ToLower(codec)]
	return ok
}

// Params describes one HLS session request.
type Params struct {
	VideoCodec string
	AudioCodec string

	VideoBitrate int64
	AudioBitrate int64
	MaxWidth     int
	MaxHeight    int

	// StartTime is a fast-seek offset in seconds, placed before the input.
	StartTime float64

	SegmentDuration int

	// AudioStreamIndex is the absolute input stream index to map. Nil maps
	// the first audio stream, tolerating audio-less files.
	AudioStreamIndex *int

	// SubtitleStreamIndex selects a track for burn-in. SubtitleCodec decides
	// between the subtitles filter (text) and an overlay graph (bitmap).
	SubtitleStreamIndex *int
	SubtitleCodec       string
}

func (p Params) segmentDuration() int {
	if p.SegmentDuration > 0 {
		return p.SegmentDuration
	}
	return defaultSegmentDuration
}

func (p Params) burnBitmapSubtitle() bool {
	return p.SubtitleStreamIndex != nil && !IsTextSubtitleCodec(p.SubtitleCodec)
}

// buildHLSArgs assembles the encoder argument list for one session. Argument
// order follows the encoder's parsing rules: the seek sits before the input,
// stream maps and codec options before the filter chain, the HLS muxer last.
func buildHLSArgs(inputPath, outputDir string, p Params, enc ffmpeg.Encoder, remux bool) []string {
	args := []string{"-y"}

	vaapi := enc.Device != ""
	if vaapi {
		args = append(args, "-vaapi_device", enc.Device)
	}

	if p.StartTime > 0 {
		args = append(args, "-ss", formatSeconds(p.StartTime))
	}
	args = append(args, "-i", inputPath)

	// Bitmap burn-in decodes in software, overlays, and maps the graph
	// output, which rules out hardware surfaces.
	if p.burnBitmapSubtitle() {
		graph := fmt.Sprintf("[0:v][0:%d]overlay[v]", *p.SubtitleStreamIndex)
		args = append(args, "-filter_complex", graph, "-map", "[v]")
	} else {
		args = append(args, "-map", "0:v:0")
	}
	if p.AudioStreamIndex != nil {
		args = append(args, "-map", fmt.Sprintf("0:%d", *p.AudioStreamIndex))
	} else {
		args = append(args, "-map", "0:a:0?")
	}

	args = append(args, "-c:v", enc.Name)
	if enc.Name != "copy" {
		args = append(args, presetArgs(enc.Name)...)
		if !vaapi {
			args = append(args, "-pix_fmt", "yuv420p")
		}
	}

	args = append(args, "-c:a", p.AudioCodec)
	if p.AudioCodec == "aac" {
		args = append(args, "-profile:a", "aac_low", "-ar", "48000", "-ac", "2")
	}
	if p.AudioBitrate > 0 && p.AudioCodec != "copy" {
		args = append(args, "-b:a", strconv.FormatInt(p.AudioBitrate, 10))
	}

	if p.VideoBitrate > 0 && enc.Name != "copy" {
		args = append(args,
			"-b:v", strconv.FormatInt(p.VideoBitrate, 10),
			"-maxrate", strconv.FormatInt(p.VideoBitrate*12/10, 10),
			"-bufsize", strconv.FormatInt(p.VideoBitrate*2, 10),
		)
	}

	if filter := buildFilterChain(inputPath, p, enc); filter != "" {
		args = append(args, "-vf", filter)
	}

	args = append(args, "-copyts", "-start_at_zero")
	if remux {
		args = append(args, "-avoid_negative_ts", "make_zero")
	}

	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(p.segmentDuration()),
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", filepath.Join(outputDir, "segment_%03d.ts"),
		"-start_number", "0",
		filepath.Join(outputDir, "playlist.m3u8"),
	)
	return args
}

// buildFilterChain combines scaling and text subtitle burn-in. Bitmap burn-in
// lives in a filter_complex instead and never reaches here.
func buildFilterChain(inputPath string, p Params, enc ffmpeg.Encoder) string {
	if enc.Name == "copy" || p.burnBitmapSubtitle() {
		return ""
	}

	var filters []string
	vaapi := enc.Device != ""

	if p.SubtitleStreamIndex != nil && IsTextSubtitleCodec(p.SubtitleCodec) {
		filters = append(filters, fmt.Sprintf("subtitles=%s:stream_index=%d",
			escapeFilterPath(inputPath), *p.SubtitleStreamIndex))
	}

	if p.MaxWidth > 0 && p.MaxHeight > 0 {
		if vaapi {
			filters = append(filters, "format=nv12", "hwupload",
				fmt.Sprintf("scale_vaapi=w=%d:h=%d:force_original_aspect_ratio=decrease:force_divisible_by=2", p.MaxWidth, p.MaxHeight))
		} else {
			filters = append(filters,
				fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease:force_divisible_by=2", p.MaxWidth, p.MaxHeight))
		}
	} else if vaapi {
		filters = append(filters, "format=nv12", "hwupload")
	}

	return strings.Join(filters, ",")
}

// buildSubtitleArgs extracts one text track as WebVTT.
func buildSubtitleArgs(inputPath string, streamIndex int, outputPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-map", fmt.Sprintf("0:%d", streamIndex),
		"-c:s", "webvtt",
		outputPath,
	}
}

// presetArgs returns encoder-specific speed/quality arguments.
func presetArgs(encoder string) []string {
	switch {
	case strings.HasSuffix(encoder, "_nvenc"):
		return []string{"-preset", "p4"}
	case strings.HasSuffix(encoder, "_qsv"):
		return []string{"-preset", "medium"}
	case strings.HasSuffix(encoder, "_vaapi"):
		return nil
	default:
		return []string{"-preset", "veryfast"}
	}
}

// escapeFilterPath quotes characters the filter parser treats specially.
func escapeFilterPath(path string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`[`, `\[`,
		`]`, `\]`,
		`,`, `\,`,
	)
	return r.Replace(path)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
