package stream

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NicolasFerec/ferelix-server/internal/models"
)

// runtimeTicksPerSecond converts seconds to 100-nanosecond ticks.
const runtimeTicksPerSecond = 10_000_000

// standardResolutions are the manual transcode targets offered below the
// original resolution.
var standardResolutions = []AvailableResolution{
	{Width: 3840, Height: 2160, Label: "4K (3840x2160)"},
	{Width: 2560, Height: 1440, Label: "1440p (2560x1440)"},
	{Width: 1920, Height: 1080, Label: "1080p (1920x1080)"},
	{Width: 1280, Height: 720, Label: "720p (1280x720)"},
	{Width: 854, Height: 480, Label: "480p (854x480)"},
	{Width: 640, Height: 360, Label: "360p (640x360)"},
}

// hdrIndicators mark a track as HDR when found in its color metadata.
var hdrIndicators = []string{"bt2020", "rec2020", "smpte2084", "arib-std-b67", "hlg"}

// checkResult carries the outcome of one compatibility check.
type checkResult struct {
	canPlay bool
	reasons []TranscodeReason
}

// Decide evaluates delivery modes in order: manual resolution override,
// direct play, direct stream (remux), audio-only transcode, full transcode.
// It is pure; identical inputs yield identical outputs.
func Decide(media *models.MediaFile, profile *DeviceProfile, opts Options) *StreamInfo {
	info := &StreamInfo{
		ID:               media.ID.String(),
		Path:             media.FilePath,
		Protocol:         "File",
		Container:        containerOf(media),
		VideoType:        "VideoFile",
		PlayMethod:       PlayMethodDirectPlay,
		TranscodeReasons: []TranscodeReason{},
		MediaStreams:     buildMediaStreams(media),
	}
	if media.Duration != nil {
		ticks := int64(*media.Duration * runtimeTicksPerSecond)
		info.RunTimeTicks = &ticks
	}
	info.Bitrate = media.Bitrate
	info.AvailableResolutions = availableResolutions(media)

	// Manual override bypasses compatibility checks to honor user intent.
	if opts.RequestedResolution != nil {
		info.PlayMethod = PlayMethodTranscode
		info.TranscodingURL = fmt.Sprintf("/api/v1/stream/%s/master.m3u8", media.ID)
		info.TranscodingContainer = "mp4"
		info.TranscodingVideoCodec = "h264"
		info.TranscodingAudioCodec = "aac"
		info.TranscodingType = "full"
		info.TranscodeSettings = &TranscodeSettings{
			VideoCodec: "h264",
			AudioCodec: "aac",
			MaxWidth:   opts.RequestedResolution.Width,
			MaxHeight:  opts.RequestedResolution.Height,
		}
		return info
	}

	if opts.AllowDirectPlay {
		result := checkDirectPlay(media, profile)
		if result.canPlay {
			info.PlayMethod = PlayMethodDirectPlay
			info.DirectStreamURL = fmt.Sprintf("/api/v1/stream/%s", media.ID)
			info.TranscodeReasons = result.reasons
			return info
		}
		info.TranscodeReasons = append(info.TranscodeReasons, result.reasons...)
	}

	if opts.AllowDirectStream {
		result := checkDirectStream(media, profile)
		if result.canPlay {
			info.PlayMethod = PlayMethodDirectStream
			info.TranscodingURL = fmt.Sprintf("/api/v1/hls/%s/remux", media.ID)
			info.TranscodingContainer = "ts"
			info.TranscodingType = "remux"
			info.IsRemuxOnly = true
			info.TranscodeSettings = &TranscodeSettings{
				VideoCodec:  "copy",
				AudioCodec:  "copy",
				IsRemuxOnly: true,
			}
			return info
		}
		info.TranscodeReasons = append(info.TranscodeReasons, result.reasons...)

		// Video remuxes but audio does not: copy video, re-encode audio.
		videoOK, audioOK := remuxCompatibility(media, profile)
		if videoOK && !audioOK {
			info.PlayMethod = PlayMethodTranscode
			info.TranscodingURL = fmt.Sprintf("/api/v1/stream/%s/master.m3u8", media.ID)
			info.TranscodingContainer = "ts"
			info.TranscodingVideoCodec = "copy"
			info.TranscodingAudioCodec = "aac"
			info.TranscodingType = "audio-only"
			info.TranscodeReasons = append(info.TranscodeReasons, ReasonAudioTranscodeRequired)
			info.TranscodeSettings = &TranscodeSettings{
				VideoCodec:   "copy",
				AudioCodec:   "aac",
				AudioBitrate: 128000,
			}
			return info
		}
	}

	info.PlayMethod = PlayMethodTranscode
	info.TranscodingType = "full"
	if opts.AllowTranscode {
		info.TranscodingURL = fmt.Sprintf("/api/v1/stream/%s/master.m3u8", media.ID)
		info.TranscodingContainer = "mp4"
		info.TranscodingVideoCodec = "h264"
		info.TranscodingAudioCodec = "aac"
	} else {
		// Nothing matched and transcoding is disallowed; surface the failure.
		info.TranscodeReasons = append(info.TranscodeReasons, ReasonDirectPlayError)
	}
	return info
}

// checkDirectPlay verifies container, then first video and audio tracks.
func checkDirectPlay(media *models.MediaFile, profile *DeviceProfile) checkResult {
	container := containerOf(media)
	if !containerSupported(profile, container) {
		return checkResult{reasons: []TranscodeReason{ReasonContainerNotSupported}}
	}

	if len(media.VideoTracks) > 0 {
		if result := checkVideoCodec(&media.VideoTracks[0], profile, container); !result.canPlay {
			return result
		}
	}
	if len(media.AudioTracks) > 0 {
		if result := checkAudioCodec(&media.AudioTracks[0], profile, container); !result.canPlay {
			return result
		}
	}
	return checkResult{canPlay: true, reasons: []TranscodeReason{}}
}

// checkDirectStream applies the same codec rules against the remux target
// container.
func checkDirectStream(media *models.MediaFile, profile *DeviceProfile) checkResult {
	if len(media.VideoTracks) > 0 {
		if result := checkVideoCodec(&media.VideoTracks[0], profile, "mp4"); !result.canPlay {
			return result
		}
	}
	if len(media.AudioTracks) > 0 {
		if result := checkAudioCodec(&media.AudioTracks[0], profile, "mp4"); !result.canPlay {
			return result
		}
	}
	return checkResult{canPlay: true, reasons: []TranscodeReason{}}
}

// remuxCompatibility reports whether the first video and audio tracks would
// individually survive a remux to mp4.
func remuxCompatibility(media *models.MediaFile, profile *DeviceProfile) (videoOK, audioOK bool) {
	videoOK, audioOK = true, true
	if len(media.VideoTracks) > 0 {
		videoOK = checkVideoCodec(&media.VideoTracks[0], profile, "mp4").canPlay
	}
	if len(media.AudioTracks) > 0 {
		audioOK = checkAudioCodec(&media.AudioTracks[0], profile, "mp4").canPlay
	}
	return videoOK, audioOK
}

func checkVideoCodec(track *models.VideoTrack, profile *DeviceProfile, container string) checkResult {
	if track.Codec == "" {
		return checkResult{reasons: []TranscodeReason{ReasonUnknownVideoStreamInfo}}
	}

	supported := false
	for _, p := range profile.DirectPlayProfiles {
		if p.Type == "Video" && p.VideoCodec != "" &&
			listContains(p.Container, container) &&
			listContains(p.VideoCodec, track.Codec) {
			supported = true
			break
		}
	}
	if !supported {
		return checkResult{reasons: []TranscodeReason{ReasonVideoCodecNotSupported}}
	}

	return checkConditions(profile, "Video", track.Codec, videoProperty(track))
}

func checkAudioCodec(track *models.AudioTrack, profile *DeviceProfile, container string) checkResult {
	if track.Codec == "" {
		return checkResult{reasons: []TranscodeReason{ReasonUnknownAudioStreamInfo}}
	}

	supported := false
	for _, p := range profile.DirectPlayProfiles {
		if p.AudioCodec != "" && listContains(p.AudioCodec, track.Codec) &&
			(p.Type == "Audio" || (p.Type == "Video" && listContains(p.Container, container))) {
			supported = true
			break
		}
	}
	if !supported {
		return checkResult{reasons: []TranscodeReason{ReasonAudioCodecNotSupported}}
	}

	return checkConditions(profile, "Audio", track.Codec, audioProperty(track))
}

// propertyFunc resolves a condition property to the track's actual value.
// A nil result means the value is unknown and the condition passes.
type propertyFunc func(property string) any

// checkConditions evaluates every matching codec profile condition. A failed
// condition records its reason; a failed required condition stops evaluation.
func checkConditions(profile *DeviceProfile, trackType, codec string, value propertyFunc) checkResult {
	reasons := []TranscodeReason{}
	for _, cp := range profile.CodecProfiles {
		if cp.Type != trackType || cp.Codec != codec {
			continue
		}
		for _, cond := range cp.Conditions {
			if !conditionFails(cond, value(cond.Property)) {
				continue
			}
			if reason, ok := reasonForProperty(cond.Property); ok {
				reasons = append(reasons, reason)
			}
			if cond.IsRequired {
				return checkResult{reasons: reasons}
			}
		}
	}
	return checkResult{canPlay: true, reasons: reasons}
}

// conditionFails reports whether the actual value violates the condition.
// Unknown values or uncomparable pairs pass.
func conditionFails(cond ProfileCondition, actual any) bool {
	if actual == nil {
		return false
	}
	switch cond.Condition {
	case "LessThanEqual":
		a, aok := toFloat(actual)
		e, eok := toFloat(cond.Value)
		return aok && eok && a > e
	case "Equals":
		return !strings.EqualFold(toString(actual), cond.Value)
	case "EqualsAny":
		actualStr := toString(actual)
		for _, v := range strings.Split(cond.Value, "|") {
			if strings.EqualFold(actualStr, v) {
				return false
			}
		}
		return true
	case "GreaterThanEqual":
		a, aok := toFloat(actual)
		e, eok := toFloat(cond.Value)
		return aok && eok && a < e
	default:
		return false
	}
}

func videoProperty(track *models.VideoTrack) propertyFunc {
	return func(property string) any {
		switch property {
		case "VideoLevel":
			return intValue(track.Level)
		case "Width":
			return intValue(track.Width)
		case "Height":
			return intValue(track.Height)
		case "VideoBitrate":
			return int64Value(track.Bitrate)
		case "VideoBitDepth":
			return intValue(track.BitDepth)
		case "VideoProfile":
			return strValue(track.Profile)
		case "VideoRange":
			return videoRange(track)
		default:
			return nil
		}
	}
}

func audioProperty(track *models.AudioTrack) propertyFunc {
	return func(property string) any {
		switch property {
		case "AudioChannels":
			return intValue(track.Channels)
		case "AudioSampleRate":
			return intValue(track.SampleRate)
		case "AudioBitrate":
			return int64Value(track.Bitrate)
		default:
			return nil
		}
	}
}

// videoRange classifies a track as HDR or SDR from its color metadata.
func videoRange(track *models.VideoTrack) string {
	colorSpace := strings.ToLower(strValueOr(track.ColorSpace))
	primaries := strings.ToLower(strValueOr(track.ColorPrimaries))
	transfer := strings.ToLower(strValueOr(track.ColorTransfer))

	for _, indicator := range hdrIndicators {
		if strings.Contains(colorSpace, indicator) ||
			strings.Contains(primaries, indicator) ||
			strings.Contains(transfer, indicator) {
			return "HDR"
		}
	}
	return "SDR"
}

func reasonForProperty(property string) (TranscodeReason, bool) {
	switch property {
	case "VideoLevel":
		return ReasonVideoLevelNotSupported, true
	case "Width", "Height":
		return ReasonVideoResolutionNotSupported, true
	case "VideoBitrate":
		return ReasonVideoBitrateNotSupported, true
	case "VideoBitDepth":
		return ReasonVideoBitDepthNotSupported, true
	case "VideoProfile":
		return ReasonVideoProfileNotSupported, true
	case "VideoRange":
		return ReasonVideoRangeNotSupported, true
	case "AudioChannels":
		return ReasonAudioChannelsNotSupported, true
	case "AudioSampleRate":
		return ReasonAudioSampleRateNotSupported, true
	case "AudioBitrate":
		return ReasonAudioBitrateNotSupported, true
	default:
		return "", false
	}
}

func containerSupported(profile *DeviceProfile, container string) bool {
	for _, p := range profile.DirectPlayProfiles {
		if listContains(p.Container, container) {
			return true
		}
	}
	return false
}

// buildMediaStreams lists all tracks with contiguous indices: video first,
// then audio, then subtitles.
func buildMediaStreams(media *models.MediaFile) []MediaStream {
	streams := make([]MediaStream, 0, len(media.VideoTracks)+len(media.AudioTracks)+len(media.SubtitleTracks))

	for i := range media.VideoTracks {
		track := &media.VideoTracks[i]
		streams = append(streams, MediaStream{
			Index:         len(streams),
			Type:          "Video",
			Codec:         track.Codec,
			Width:         track.Width,
			Height:        track.Height,
			BitRate:       track.Bitrate,
			RealFrameRate: track.Framerate,
			Profile:       track.Profile,
			Level:         track.Level,
			PixelFormat:   track.PixelFormat,
			BitDepth:      track.BitDepth,
		})
	}
	for i := range media.AudioTracks {
		track := &media.AudioTracks[i]
		streams = append(streams, MediaStream{
			Index:      len(streams),
			Type:       "Audio",
			Codec:      track.Codec,
			Channels:   track.Channels,
			SampleRate: track.SampleRate,
			BitRate:    track.Bitrate,
			Language:   track.Language,
			IsDefault:  track.IsDefault,
		})
	}
	for i := range media.SubtitleTracks {
		track := &media.SubtitleTracks[i]
		streams = append(streams, MediaStream{
			Index:     len(streams),
			Type:      "Subtitle",
			Codec:     track.Codec,
			Language:  track.Language,
			Title:     track.Title,
			IsDefault: track.IsDefault,
			IsForced:  track.IsForced,
		})
	}
	return streams
}

// availableResolutions offers the original resolution plus each standard
// tier strictly below it.
func availableResolutions(media *models.MediaFile) []AvailableResolution {
	if len(media.VideoTracks) == 0 {
		return nil
	}
	track := &media.VideoTracks[0]
	width, height := 1920, 1080
	if track.Width != nil {
		width = *track.Width
	}
	if track.Height != nil {
		height = *track.Height
	}

	out := []AvailableResolution{{
		Width:      width,
		Height:     height,
		Label:      fmt.Sprintf("%dx%d (Original)", width, height),
		IsOriginal: true,
	}}
	for _, res := range standardResolutions {
		if res.Width < width || (res.Width == width && res.Height < height) {
			out = append(out, res)
		}
	}
	return out
}

func containerOf(media *models.MediaFile) string {
	if media.FileExtension == "" {
		return "unknown"
	}
	return strings.TrimPrefix(strings.ToLower(media.FileExtension), ".")
}

// listContains checks membership in a comma-separated list, ignoring case
// and surrounding whitespace.
func listContains(list, value string) bool {
	if list == "" {
		return false
	}
	value = strings.ToLower(strings.TrimSpace(value))
	for _, item := range strings.Split(list, ",") {
		if strings.ToLower(strings.TrimSpace(item)) == value {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func intValue(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func int64Value(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func strValue(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func strValueOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
