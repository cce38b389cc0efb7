package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// ProbeResult contains the complete ffprobe output.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename       string            `json:"filename"`
	NumStreams     int               `json:"nb_streams"`
	FormatName     string            `json:"format_name"`
	FormatLongName string            `json:"format_long_name"`
	StartTime      string            `json:"start_time"`
	Duration       string            `json:"duration"`
	Size           string            `json:"size"`
	BitRate        string            `json:"bit_rate"`
	Tags           map[string]string `json:"tags"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index             int               `json:"index"`
	CodecName         string            `json:"codec_name"`
	CodecLongName     string            `json:"codec_long_name"`
	Profile           string            `json:"profile"`
	CodecType         string            `json:"codec_type"` // video, audio, subtitle, data
	Width             int               `json:"width,omitempty"`
	Height            int               `json:"height,omitempty"`
	PixFmt            string            `json:"pix_fmt,omitempty"`
	Level             int               `json:"level,omitempty"`
	ColorRange        string            `json:"color_range,omitempty"`
	ColorSpace        string            `json:"color_space,omitempty"`
	ColorTransfer     string            `json:"color_transfer,omitempty"`
	ColorPrimaries    string            `json:"color_primaries,omitempty"`
	SampleRate        string            `json:"sample_rate,omitempty"`
	Channels          int               `json:"channels,omitempty"`
	ChannelLayout     string            `json:"channel_layout,omitempty"`
	BitsPerRawSample  string            `json:"bits_per_raw_sample,omitempty"`
	RFrameRate        string            `json:"r_frame_rate,omitempty"`
	AvgFrameRate      string            `json:"avg_frame_rate,omitempty"`
	Duration          string            `json:"duration,omitempty"`
	BitRate           string            `json:"bit_rate,omitempty"`
	Disposition       ProbeDisposition  `json:"disposition,omitempty"`
	Tags              map[string]string `json:"tags,omitempty"`
	SideDataList      []ProbeSideData   `json:"side_data_list,omitempty"`
}

// ProbeDisposition contains stream disposition flags.
type ProbeDisposition struct {
	Default  int `json:"default"`
	Forced   int `json:"forced"`
	Comment  int `json:"comment"`
	Original int `json:"original"`
}

// ProbeSideData carries HDR metadata attached to a video stream.
type ProbeSideData struct {
	SideDataType string `json:"side_data_type"`

	// Mastering display metadata, as rationals like "1000.0000/1.0000".
	MaxLuminance string `json:"max_luminance,omitempty"`
	MinLuminance string `json:"min_luminance,omitempty"`

	// Content light level metadata.
	MaxContent int `json:"max_content,omitempty"`
	MaxAverage int `json:"max_average,omitempty"`
}

// MediaInfo is the probe summary the scanner persists for a media file.
type MediaInfo struct {
	Duration float64
	Bitrate  int64
	Width    int
	Height   int
	Codec    string

	VideoTracks    []models.VideoTrack
	AudioTracks    []models.AudioTrack
	SubtitleTracks []models.SubtitleTrack
}

// Prober extracts media information with ffprobe.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a prober using the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe runs ffprobe on a local file and returns the raw result.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: timeout after %v probing %s", models.ErrProbeFailed, p.timeout, path)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrProbeFailed, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("%w: parsing ffprobe output: %v", models.ErrProbeFailed, err)
	}

	return &result, nil
}

// ProbeMedia probes a file and converts the result to persistable track rows.
func (p *Prober) ProbeMedia(ctx context.Context, path string) (*MediaInfo, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return Summarize(result), nil
}

// Summarize converts a raw probe result into the scanner's media summary.
func Summarize(result *ProbeResult) *MediaInfo {
	info := &MediaInfo{}

	if result.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil {
			info.Duration = dur
		}
	}
	if result.Format.BitRate != "" {
		if br, err := strconv.ParseInt(result.Format.BitRate, 10, 64); err == nil {
			info.Bitrate = br
		}
	}

	for _, stream := range result.Streams {
		switch stream.CodecType {
		case "video":
			track := videoTrack(stream)
			info.VideoTracks = append(info.VideoTracks, track)

			// The first video stream defines the file-level summary.
			if info.Codec == "" {
				info.Codec = stream.CodecName
				info.Width = stream.Width
				info.Height = stream.Height
			}

		case "audio":
			info.AudioTracks = append(info.AudioTracks, audioTrack(stream))

		case "subtitle":
			info.SubtitleTracks = append(info.SubtitleTracks, subtitleTrack(stream))
		}
	}

	return info
}

func videoTrack(stream ProbeStream) models.VideoTrack {
	track := models.VideoTrack{
		StreamIndex: stream.Index,
		Codec:       stream.CodecName,
	}
	if stream.Width > 0 {
		track.Width = intPtr(stream.Width)
	}
	if stream.Height > 0 {
		track.Height = intPtr(stream.Height)
	}
	if stream.Profile != "" {
		track.Profile = strPtr(stream.Profile)
	}
	if stream.Level > 0 {
		track.Level = intPtr(stream.Level)
	}
	if stream.PixFmt != "" {
		track.PixelFormat = strPtr(stream.PixFmt)
	}

	depth := bitDepth(stream)
	track.BitDepth = &depth

	if stream.BitRate != "" {
		if br, err := strconv.ParseInt(stream.BitRate, 10, 64); err == nil {
			track.Bitrate = &br
		}
	}
	if fps := stream.Framerate(); fps > 0 {
		track.Framerate = &fps
	}
	if stream.ColorRange != "" {
		track.ColorRange = strPtr(stream.ColorRange)
	}
	if stream.ColorSpace != "" {
		track.ColorSpace = strPtr(stream.ColorSpace)
	}
	if stream.ColorPrimaries != "" {
		track.ColorPrimaries = strPtr(stream.ColorPrimaries)
	}
	if stream.ColorTransfer != "" {
		track.ColorTransfer = strPtr(stream.ColorTransfer)
	}

	for _, sd := range stream.SideDataList {
		switch sd.SideDataType {
		case "Mastering display metadata":
			if v, ok := parseRational(sd.MaxLuminance); ok {
				track.MaxLuminance = &v
			}
			if v, ok := parseRational(sd.MinLuminance); ok {
				track.MinLuminance = &v
			}
		case "Content light level metadata":
			if sd.MaxContent > 0 {
				track.MaxCLL = intPtr(sd.MaxContent)
			}
			if sd.MaxAverage > 0 {
				track.MaxFALL = intPtr(sd.MaxAverage)
			}
		}
	}

	return track
}

func audioTrack(stream ProbeStream) models.AudioTrack {
	track := models.AudioTrack{
		StreamIndex: stream.Index,
		Codec:       stream.CodecName,
		IsDefault:   stream.Disposition.Default == 1,
	}
	if stream.Channels > 0 {
		track.Channels = intPtr(stream.Channels)
	}
	if stream.SampleRate != "" {
		if sr, err := strconv.Atoi(stream.SampleRate); err == nil {
			track.SampleRate = &sr
		}
	}
	if stream.BitRate != "" {
		if br, err := strconv.ParseInt(stream.BitRate, 10, 64); err == nil {
			track.Bitrate = &br
		}
	}
	if stream.ChannelLayout != "" {
		track.ChannelLayout = strPtr(stream.ChannelLayout)
	}
	if lang, ok := stream.Tags["language"]; ok {
		normalized := NormalizeLanguage(lang)
		track.Language = &normalized
	}
	return track
}

func subtitleTrack(stream ProbeStream) models.SubtitleTrack {
	track := models.SubtitleTrack{
		StreamIndex: stream.Index,
		Codec:       stream.CodecName,
		IsDefault:   stream.Disposition.Default == 1,
		IsForced:    stream.Disposition.Forced == 1,
	}
	if lang, ok := stream.Tags["language"]; ok {
		normalized := NormalizeLanguage(lang)
		track.Language = &normalized
	}
	if title, ok := stream.Tags["title"]; ok {
		track.Title = strPtr(title)
	}
	return track
}

// bitDepth derives the sample bit depth of a video stream. ffprobe reports
// bits_per_raw_sample for some codecs; otherwise the pixel format suffix
// carries it (yuv420p10le, yuv420p12le, ...).
func bitDepth(stream ProbeStream) int {
	if stream.BitsPerRawSample != "" {
		if d, err := strconv.Atoi(stream.BitsPerRawSample); err == nil && d > 0 {
			return d
		}
	}
	pix := stream.PixFmt
	switch {
	case strings.Contains(pix, "16"):
		return 16
	case strings.Contains(pix, "12"):
		return 12
	case strings.Contains(pix, "10"):
		return 10
	default:
		return 8
	}
}

// parseRational parses ffprobe rationals like "1000.0000/1.0000".
func parseRational(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		return 0, false
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0, false
	}
	return num / den, true
}

// parseFramerate parses a framerate string like "30000/1001" or "25/1".
func parseFramerate(fr string) float64 {
	parts := strings.Split(fr, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			return f
		}
		return 0
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}

	return num / den
}

// Framerate returns the framerate for a video stream.
func (s *ProbeStream) Framerate() float64 {
	if s.AvgFrameRate != "" {
		if fps := parseFramerate(s.AvgFrameRate); fps > 0 {
			return fps
		}
	}
	if s.RFrameRate != "" {
		return parseFramerate(s.RFrameRate)
	}
	return 0
}

// GetVideoStream returns the first video stream from probe result.
func (r *ProbeResult) GetVideoStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i]
		}
	}
	return nil
}

// GetAudioStream returns the first audio stream from probe result.
func (r *ProbeResult) GetAudioStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			return &r.Streams[i]
		}
	}
	return nil
}

// NormalizeLanguage canonicalizes a language tag to its base subtag
// ("eng" stays "eng" when no mapping exists, "en-US" becomes "en").
func NormalizeLanguage(tag string) string {
	tag = strings.TrimSpace(strings.ToLower(tag))
	if tag == "" || tag == "und" {
		return tag
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	base, conf := parsed.Base()
	if conf == language.No {
		return tag
	}
	return base.String()
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
