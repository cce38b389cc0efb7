package transcoder

import (
	"regexp"
	"strconv"
	"strings"
)

// Encoder stderr progress fields. The time value is the encoder's absolute
// input position; callers subtract the seek offset to get job-relative
// transcoded seconds.
var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	timeRe    = regexp.MustCompile(`time=(\d{2}):(\d{2}):([\d.]+)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+)kbits/s`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// errorLineRe marks stderr lines worth surfacing in a failure message.
var errorLineRe = regexp.MustCompile(`(?i)error|failed|invalid|unable|could not|cannot`)

// progressUpdate is one parsed encoder status line.
type progressUpdate struct {
	Frame       int
	FPS         float64
	TimeSeconds float64
	BitrateKbps float64
	Speed       float64
	HasTime     bool
}

// parseProgressLine extracts progress fields from one stderr line. Returns
// false for lines carrying no recognizable progress field.
func parseProgressLine(line string) (progressUpdate, bool) {
	var u progressUpdate
	found := false

	if m := frameRe.FindStringSubmatch(line); m != nil {
		u.Frame, _ = strconv.Atoi(m[1])
		found = true
	}
	if m := fpsRe.FindStringSubmatch(line); m != nil {
		u.FPS, _ = strconv.ParseFloat(m[1], 64)
		found = true
	}
	if m := timeRe.FindStringSubmatch(line); m != nil {
		hours, _ := strconv.ParseFloat(m[1], 64)
		minutes, _ := strconv.ParseFloat(m[2], 64)
		seconds, _ := strconv.ParseFloat(m[3], 64)
		u.TimeSeconds = hours*3600 + minutes*60 + seconds
		u.HasTime = true
		found = true
	}
	if m := bitrateRe.FindStringSubmatch(line); m != nil {
		u.BitrateKbps, _ = strconv.ParseFloat(m[1], 64)
		found = true
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		u.Speed, _ = strconv.ParseFloat(m[1], 64)
		found = true
	}
	return u, found
}

// stderrTail keeps the most recent stderr lines for failure reporting.
type stderrTail struct {
	lines []string
	limit int
}

func newStderrTail(limit int) *stderrTail {
	return &stderrTail{limit: limit}
}

func (t *stderrTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

// message prefers lines that look like errors, falling back to the whole tail.
func (t *stderrTail) message() string {
	var errorLines []string
	for _, line := range t.lines {
		if errorLineRe.MatchString(line) {
			errorLines = append(errorLines, line)
		}
	}
	if len(errorLines) > 0 {
		return strings.Join(errorLines, "\n")
	}
	return strings.Join(t.lines, "\n")
}
