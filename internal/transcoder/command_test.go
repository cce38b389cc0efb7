package transcoder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasFerec/ferelix-server/internal/ffmpeg"
)

func argsString(args []string) string {
	return strings.Join(args, " ")
}

// indexOf returns the position of the first occurrence of value, or -1.
func indexOf(args []string, value string) int {
	for i, a := range args {
		if a == value {
			return i
		}
	}
	return -1
}

func TestBuildHLSArgs_Remux(t *testing.T) {
	p := Params{VideoCodec: "copy", AudioCodec: "copy"}
	args := buildHLSArgs("/media/film.mkv", "/tmp/transcode/job1", p, ffmpeg.Encoder{Name: "copy"}, true)
	joined := argsString(args)

	assert.Equal(t, "-y", args[0])
	assert.Contains(t, joined, "-i /media/film.mkv")
	assert.Contains(t, joined, "-map 0:v:0")
	assert.Contains(t, joined, "-map 0:a:0?")
	assert.Contains(t, joined, "-c:v copy")
	assert.Contains(t, joined, "-c:a copy")
	assert.Contains(t, joined, "-copyts -start_at_zero -avoid_negative_ts make_zero")
	assert.Contains(t, joined, "-f hls -hls_time 6 -hls_segment_type mpegts")
	assert.Contains(t, joined, "-hls_segment_filename /tmp/transcode/job1/segment_%03d.ts")
	assert.Contains(t, joined, "-start_number 0 /tmp/transcode/job1/playlist.m3u8")

	// Copy sessions carry no encoder options or filters.
	assert.NotContains(t, joined, "-pix_fmt")
	assert.NotContains(t, joined, "-vf")
	assert.NotContains(t, joined, "-b:v")
}

func TestBuildHLSArgs_SoftwareTranscode(t *testing.T) {
	p := Params{
		VideoCodec:   "h264",
		AudioCodec:   "aac",
		VideoBitrate: 4_000_000,
		AudioBitrate: 128_000,
		MaxWidth:     1280,
		MaxHeight:    720,
	}
	args := buildHLSArgs("/media/film.mkv", "/tmp/t/j", p, ffmpeg.Encoder{Name: "libx264"}, false)
	joined := argsString(args)

	assert.Contains(t, joined, "-c:v libx264 -preset veryfast -pix_fmt yuv420p")
	assert.Contains(t, joined, "-c:a aac -profile:a aac_low -ar 48000 -ac 2 -b:a 128000")
	assert.Contains(t, joined, "-b:v 4000000 -maxrate 4800000 -bufsize 8000000")
	assert.Contains(t, joined, "-vf scale=w=1280:h=720:force_original_aspect_ratio=decrease:force_divisible_by=2")
	assert.NotContains(t, joined, "-avoid_negative_ts")
}

func TestBuildHLSArgs_FastSeekBeforeInput(t *testing.T) {
	p := Params{VideoCodec: "h264", AudioCodec: "aac", StartTime: 330.5}
	args := buildHLSArgs("/media/film.mkv", "/tmp/t/j", p, ffmpeg.Encoder{Name: "libx264"}, false)

	ss := indexOf(args, "-ss")
	in := indexOf(args, "-i")
	require.GreaterOrEqual(t, ss, 0)
	require.Greater(t, in, ss)
	assert.Equal(t, "330.5", args[ss+1])
}

func TestBuildHLSArgs_VAAPI(t *testing.T) {
	p := Params{VideoCodec: "h264", AudioCodec: "aac", MaxWidth: 1920, MaxHeight: 1080}
	enc := ffmpeg.Encoder{Name: "h264_vaapi", Hardware: true, Device: "/dev/dri/renderD128"}
	args := buildHLSArgs("/media/film.mkv", "/tmp/t/j", p, enc, false)
	joined := argsString(args)

	assert.Contains(t, joined, "-vaapi_device /dev/dri/renderD128")
	assert.Contains(t, joined, "-c:v h264_vaapi")
	assert.Contains(t, joined, "format=nv12,hwupload,scale_vaapi=w=1920:h=1080:force_original_aspect_ratio=decrease:force_divisible_by=2")
	assert.NotContains(t, joined, "-pix_fmt")
}

func TestBuildHLSArgs_AudioStreamIndex(t *testing.T) {
	idx := 2
	p := Params{VideoCodec: "copy", AudioCodec: "aac", AudioStreamIndex: &idx}
	args := buildHLSArgs("/media/film.mkv", "/tmp/t/j", p, ffmpeg.Encoder{Name: "copy"}, false)

	assert.Contains(t, argsString(args), "-map 0:2")
	assert.NotContains(t, argsString(args), "0:a:0?")
}

func TestBuildHLSArgs_TextSubtitleBurnIn(t *testing.T) {
	idx := 3
	p := Params{
		VideoCodec:          "h264",
		AudioCodec:          "aac",
		SubtitleStreamIndex: &idx,
		SubtitleCodec:       "subrip",
	}
	args := buildHLSArgs("/media/my film.mkv", "/tmp/t/j", p, ffmpeg.Encoder{Name: "libx264"}, false)
	joined := argsString(args)

	assert.Contains(t, joined, "subtitles=/media/my film.mkv:stream_index=3")
	assert.Contains(t, joined, "-map 0:v:0")
	assert.NotContains(t, joined, "-filter_complex")
}

func TestBuildHLSArgs_BitmapSubtitleOverlay(t *testing.T) {
	idx := 4
	p := Params{
		VideoCodec:          "h264",
		AudioCodec:          "aac",
		SubtitleStreamIndex: &idx,
		SubtitleCodec:       "hdmv_pgs_subtitle",
	}
	args := buildHLSArgs("/media/film.mkv", "/tmp/t/j", p, ffmpeg.Encoder{Name: "libx264"}, false)
	joined := argsString(args)

	assert.Contains(t, joined, "-filter_complex [0:v][0:4]overlay[v]")
	assert.Contains(t, joined, "-map [v]")
	assert.NotContains(t, joined, "-map 0:v:0")
	assert.NotContains(t, joined, "-vf")
}

func TestBuildHLSArgs_SegmentDuration(t *testing.T) {
	p := Params{VideoCodec: "copy", AudioCodec: "copy", SegmentDuration: 4}
	args := buildHLSArgs("/media/film.mkv", "/tmp/t/j", p, ffmpeg.Encoder{Name: "copy"}, true)
	assert.Contains(t, argsString(args), "-hls_time 4")
}

func TestBuildSubtitleArgs(t *testing.T) {
	args := buildSubtitleArgs("/media/film.mkv", 3, "/cache/sub.vtt")
	assert.Equal(t, []string{"-y", "-i", "/media/film.mkv", "-map", "0:3", "-c:s", "webvtt", "/cache/sub.vtt"}, args)
}

func TestIsTextSubtitleCodec(t *testing.T) {
	assert.True(t, IsTextSubtitleCodec("subrip"))
	assert.True(t, IsTextSubtitleCodec("ASS"))
	assert.True(t, IsTextSubtitleCodec("mov_text"))
	assert.False(t, IsTextSubtitleCodec("hdmv_pgs_subtitle"))
	assert.False(t, IsTextSubtitleCodec("dvd_subtitle"))
	assert.False(t, IsTextSubtitleCodec(""))
}

func TestPresetArgs(t *testing.T) {
	assert.Equal(t, []string{"-preset", "p4"}, presetArgs("h264_nvenc"))
	assert.Equal(t, []string{"-preset", "medium"}, presetArgs("hevc_qsv"))
	assert.Nil(t, presetArgs("h264_vaapi"))
	assert.Equal(t, []string{"-preset", "veryfast"}, presetArgs("libx264"))
}

func TestEscapeFilterPath(t *testing.T) {
	assert.Equal(t, `/media/a\:b\,c`, escapeFilterPath("/media/a:b,c"))
	assert.Equal(t, `/media/it\'s.mkv`, escapeFilterPath("/media/it's.mkv"))
}
