// Package transcoder manages HLS encoder sessions: command construction,
// process supervision, progress tracking, and working-directory lifecycle.
// Each session owns a subdirectory of the working root named by its job id;
// no encoder process survives a server restart, so startup purges every job
// that left an output directory behind.
package transcoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/NicolasFerec/ferelix-server/internal/ffmpeg"
	"github.com/NicolasFerec/ferelix-server/internal/jobs"
	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
)

const (
	// startCheckDelay is how long a freshly spawned encoder must survive
	// before the start is considered successful.
	startCheckDelay = 100 * time.Millisecond

	// gracefulStopTimeout bounds the whole quit, SIGTERM, kill escalation.
	// Each of the two waits gets half of it.
	gracefulStopTimeout = 10 * time.Second

	remuxReadinessTimeout     = 15 * time.Second
	transcodeReadinessTimeout = 30 * time.Second
	readinessPollInterval     = 500 * time.Millisecond

	subtitleExtractTimeout = 120 * time.Second

	// defaultMaxAge is how long terminal jobs keep their working directory.
	defaultMaxAge = 24 * time.Hour

	stderrTailLimit = 20
)

// session is one live encoder process.
type session struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
}

// Manager runs encoder sessions against a shared working root.
type Manager struct {
	root        string
	ffmpegPath  string
	jobsRepo    repository.TranscodingJobRepository
	encoders    *ffmpeg.EncoderSelector
	bus         *jobs.Bus
	logger      *slog.Logger
	maxAge      time.Duration
	stopTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates a transcoder manager. The bus may be nil.
func NewManager(root, ffmpegPath string, jobsRepo repository.TranscodingJobRepository, encoders *ffmpeg.EncoderSelector, bus *jobs.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		root:        root,
		ffmpegPath:  ffmpegPath,
		jobsRepo:    jobsRepo,
		encoders:    encoders,
		bus:         bus,
		logger:      logger.With(slog.String("component", "transcoder")),
		maxAge:      defaultMaxAge,
		stopTimeout: gracefulStopTimeout,
		sessions:    make(map[string]*session),
	}
}

// WithMaxAge overrides how long terminal jobs are retained.
func (m *Manager) WithMaxAge(d time.Duration) *Manager {
	if d > 0 {
		m.maxAge = d
	}
	return m
}

// WithStopTimeout overrides the stop escalation budget.
func (m *Manager) WithStopTimeout(d time.Duration) *Manager {
	if d > 0 {
		m.stopTimeout = d
	}
	return m
}

// JobDir returns the working directory for a job id.
func (m *Manager) JobDir(jobID string) string {
	return filepath.Join(m.root, jobID)
}

// PlaylistPath returns the manifest path for a job id.
func (m *Manager) PlaylistPath(jobID string) string {
	return filepath.Join(m.JobDir(jobID), "playlist.m3u8")
}

// StartRemuxHLS starts a copy-codec HLS session and waits for the playlist.
func (m *Manager) StartRemuxHLS(ctx context.Context, media *models.MediaFile, p Params) (*models.TranscodingJob, error) {
	p.VideoCodec = "copy"
	p.AudioCodec = "copy"
	return m.start(ctx, media, p, models.TranscodeTypeRemux, remuxReadinessTimeout)
}

// StartHLSTranscode starts a re-encoding HLS session and waits for the
// playlist.
func (m *Manager) StartHLSTranscode(ctx context.Context, media *models.MediaFile, p Params) (*models.TranscodingJob, error) {
	kind := models.TranscodeTypeHLS
	if p.VideoCodec == "copy" {
		kind = models.TranscodeTypeAudioTranscode
	}
	return m.start(ctx, media, p, kind, transcodeReadinessTimeout)
}

// StartAudioTranscodeHLS copies video and re-encodes audio only.
func (m *Manager) StartAudioTranscodeHLS(ctx context.Context, media *models.MediaFile, p Params) (*models.TranscodingJob, error) {
	p.VideoCodec = "copy"
	if p.AudioCodec == "" {
		p.AudioCodec = "aac"
	}
	if p.AudioBitrate == 0 {
		p.AudioBitrate = 128000
	}
	return m.start(ctx, media, p, models.TranscodeTypeAudioTranscode, transcodeReadinessTimeout)
}

func (m *Manager) start(ctx context.Context, media *models.MediaFile, p Params, kind models.TranscodeType, readiness time.Duration) (*models.TranscodingJob, error) {
	enc := m.resolveEncoder(ctx, p)

	job := &models.TranscodingJob{
		MediaFileID: media.ID,
		Type:        kind,
		Status:      models.TranscodeStatusPending,
		VideoCodec:  enc.Name,
		AudioCodec:  p.AudioCodec,
		StartTime:   p.StartTime,
	}
	if p.VideoBitrate > 0 {
		job.VideoBitrate = &p.VideoBitrate
	}
	if p.AudioBitrate > 0 {
		job.AudioBitrate = &p.AudioBitrate
	}
	if p.MaxWidth > 0 {
		job.MaxWidth = &p.MaxWidth
	}
	if p.MaxHeight > 0 {
		job.MaxHeight = &p.MaxHeight
	}
	if err := m.jobsRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	dir := m.JobDir(job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating transcode directory: %w", err)
	}

	args := buildHLSArgs(media.FilePath, dir, p, enc, kind == models.TranscodeTypeRemux)
	job.OutputPath = dir
	job.PlaylistPath = m.PlaylistPath(job.ID)
	job.FFmpegCommand = m.ffmpegPath + " " + strings.Join(args, " ")

	if err := m.spawn(ctx, job, media, args); err != nil {
		job.MarkFailed(err.Error())
		if updateErr := m.jobsRepo.Update(context.WithoutCancel(ctx), job); updateErr != nil {
			m.logger.Error("persisting failed job", slog.Any("error", updateErr))
		}
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: %s", models.ErrEncoderFailed, err)
	}

	m.waitForPlaylist(ctx, job, readiness)
	return job, nil
}

func (m *Manager) resolveEncoder(ctx context.Context, p Params) ffmpeg.Encoder {
	if p.VideoCodec == "copy" || p.VideoCodec == "" {
		return ffmpeg.Encoder{Name: "copy"}
	}
	if p.burnBitmapSubtitle() {
		// Overlay graphs run on software frames; hardware surfaces would
		// need a decode-overlay-reupload round trip.
		return m.encoders.Software(p.VideoCodec)
	}
	return m.encoders.Best(ctx, p.VideoCodec)
}

// spawn launches the encoder and its monitor. The 100 ms liveness check turns
// immediate exits, bad arguments and missing inputs mostly, into start errors
// instead of silently dead sessions.
func (m *Manager) spawn(ctx context.Context, job *models.TranscodingJob, media *models.MediaFile, args []string) error {
	cmd := exec.Command(m.ffmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("opening encoder stdin: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("opening encoder stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting encoder: %w", err)
	}

	sess := &session{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	m.mu.Lock()
	m.sessions[job.ID] = sess
	m.mu.Unlock()

	tail := newStderrTail(stderrTailLimit)
	go m.monitor(job, media, sess, stderr, tail)

	select {
	case <-sess.done:
		return fmt.Errorf("encoder exited immediately: %s", tail.message())
	case <-time.After(startCheckDelay):
	}

	job.MarkRunning(cmd.Process.Pid)
	if err := m.jobsRepo.Update(context.WithoutCancel(ctx), job); err != nil {
		m.logger.Error("persisting running job", slog.Any("error", err))
	}
	m.logger.Info("encoder started",
		slog.String("job_id", job.ID),
		slog.Int("pid", cmd.Process.Pid),
		slog.String("type", string(job.Type)),
	)
	return nil
}

// monitor consumes encoder stderr until exit, persisting progress and the
// final status. It runs for the lifetime of the child process.
func (m *Manager) monitor(job *models.TranscodingJob, media *models.MediaFile, sess *session, stderr io.Reader, tail *stderrTail) {
	defer close(sess.done)
	ctx := context.Background()

	var duration float64
	if media.Duration != nil {
		duration = *media.Duration
	}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail.add(line)

		update, ok := parseProgressLine(line)
		if !ok || !update.HasTime {
			continue
		}

		// The encoder reports absolute input time; progress is relative to
		// the seek offset.
		transcoded := update.TimeSeconds - job.StartTime
		if transcoded < 0 {
			transcoded = 0
		}
		percent := 0.0
		if duration > 0 {
			percent = transcoded / duration * 100
			if percent > 100 {
				percent = 100
			}
		}
		if err := m.jobsRepo.UpdateProgress(ctx, job.ID, percent, transcoded, update.FPS, int64(update.BitrateKbps*1000)); err != nil {
			m.logger.Warn("persisting transcode progress", slog.Any("error", err))
		}
		m.publish(jobs.Event{
			Type:     jobs.EventProgress,
			JobID:    job.ID,
			Progress: percent,
		})
	}

	err := sess.cmd.Wait()

	m.mu.Lock()
	delete(m.sessions, job.ID)
	m.mu.Unlock()

	current, getErr := m.jobsRepo.GetByID(ctx, job.ID)
	if getErr != nil || current == nil {
		return
	}
	if current.Status == models.TranscodeStatusCancelled {
		return
	}

	if err != nil {
		current.MarkFailed(tail.message())
		m.logger.Warn("encoder failed",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		m.publish(jobs.Event{Type: jobs.EventFailed, JobID: job.ID, Error: tail.message()})
	} else {
		current.MarkCompleted()
		m.logger.Info("encoder finished", slog.String("job_id", job.ID))
		m.publish(jobs.Event{Type: jobs.EventCompleted, JobID: job.ID, Progress: 100})
	}
	if updateErr := m.jobsRepo.Update(ctx, current); updateErr != nil {
		m.logger.Error("persisting final job status", slog.Any("error", updateErr))
	}
}

// waitForPlaylist blocks until the manifest exists or the readiness budget
// runs out. A timeout with a live encoder is not an error; the client polls
// the manifest endpoint and the encoder catches up.
func (m *Manager) waitForPlaylist(ctx context.Context, job *models.TranscodingJob, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(job.PlaylistPath); err == nil {
			return
		}
		if !m.isLive(job.ID) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(readinessPollInterval):
		}
	}
	m.logger.Warn("playlist readiness timeout", slog.String("job_id", job.ID))
}

// waitDone waits up to d for the session's monitor to observe process exit.
func waitDone(sess *session, d time.Duration) bool {
	select {
	case <-sess.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (m *Manager) isLive(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[jobID]
	return ok
}

// Stop ends a session: quit request over stdin, then SIGTERM, then SIGKILL,
// escalating within the stop budget. The job is marked cancelled and its
// working directory removed. Returns true when a live session or job existed.
func (m *Manager) Stop(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	sess := m.sessions[jobID]
	m.mu.Unlock()

	job, err := m.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job == nil && sess == nil {
		return false, nil
	}

	if job != nil && job.Status != models.TranscodeStatusCancelled {
		job.MarkCancelled()
		if err := m.jobsRepo.Update(ctx, job); err != nil {
			return false, err
		}
	}

	if sess != nil {
		if _, err := io.WriteString(sess.stdin, "q\n"); err == nil {
			sess.stdin.Close()
		}
		if !waitDone(sess, m.stopTimeout/2) {
			m.logger.Warn("encoder ignored quit, sending SIGTERM", slog.String("job_id", jobID))
			_ = sess.cmd.Process.Signal(syscall.SIGTERM)
			if !waitDone(sess, m.stopTimeout/2) {
				m.logger.Warn("encoder ignored SIGTERM, killing", slog.String("job_id", jobID))
				_ = sess.cmd.Process.Kill()
				<-sess.done
			}
		}
	}

	if job != nil && job.OutputPath != "" {
		if err := os.RemoveAll(job.OutputPath); err != nil {
			m.logger.Warn("removing transcode directory",
				slog.String("path", job.OutputPath),
				slog.Any("error", err),
			)
		}
	}
	m.publish(jobs.Event{Type: jobs.EventCancelled, JobID: jobID})
	m.logger.Info("transcode session stopped", slog.String("job_id", jobID))
	return true, nil
}

// ExtractSubtitle converts one embedded text track to WebVTT at outputPath.
// Bitmap tracks are rejected upstream; this runs the encoder with a bounded
// timeout and requires both a zero exit and an existing output file.
func (m *Manager) ExtractSubtitle(ctx context.Context, mediaPath string, streamIndex int, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, subtitleExtractTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("creating subtitle directory: %w", err)
	}

	args := buildSubtitleArgs(mediaPath, streamIndex, outputPath)
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: extracting subtitle stream %d: %s", models.ErrEncoderFailed, streamIndex, lastLine(string(out)))
	}
	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("%w: subtitle output missing", models.ErrEncoderFailed)
	}
	return nil
}

// CleanupTranscodeFiles removes terminal and never-started jobs not accessed
// within the retention window, along with their working directories.
func (m *Manager) CleanupTranscodeFiles(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.maxAge)
	stale, err := m.jobsRepo.GetStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, job := range stale {
		if job.OutputPath != "" {
			if err := os.RemoveAll(job.OutputPath); err != nil {
				m.logger.Warn("removing stale transcode directory",
					slog.String("path", job.OutputPath),
					slog.Any("error", err),
				)
				continue
			}
		}
		if err := m.jobsRepo.Delete(ctx, job.ID); err != nil {
			m.logger.Warn("deleting stale transcode job", slog.Any("error", err))
			continue
		}
		count++
	}
	if count > 0 {
		m.logger.Info("cleaned up stale transcode jobs", slog.Int("count", count))
	}
	return count, nil
}

// CleanupStalledAtStartup purges every job that left an output directory.
// Encoder processes do not survive a restart, so anything on disk is garbage
// and any recorded pid is either dead or someone else's.
func (m *Manager) CleanupStalledAtStartup(ctx context.Context) (int, error) {
	stalled, err := m.jobsRepo.GetAllWithOutput(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, job := range stalled {
		if job.ProcessID != nil && ffmpeg.IsProcessRunning(ctx, *job.ProcessID) {
			if err := ffmpeg.TerminateProcess(ctx, *job.ProcessID); err != nil {
				m.logger.Warn("terminating stalled encoder",
					slog.Int("pid", *job.ProcessID),
					slog.Any("error", err),
				)
			}
		}
		if err := os.RemoveAll(job.OutputPath); err != nil {
			m.logger.Warn("removing stalled transcode directory",
				slog.String("path", job.OutputPath),
				slog.Any("error", err),
			)
		}
		if err := m.jobsRepo.Delete(ctx, job.ID); err != nil {
			m.logger.Warn("deleting stalled transcode job", slog.Any("error", err))
			continue
		}
		count++
	}
	if count > 0 {
		m.logger.Info("purged stalled transcode jobs", slog.Int("count", count))
	}
	return count, nil
}

// ProcessStats samples the encoder process for a running job.
func (m *Manager) ProcessStats(ctx context.Context, jobID string) (*ffmpeg.ProcessStats, error) {
	job, err := m.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: transcoding job %s", models.ErrNotFound, jobID)
	}
	if job.ProcessID == nil {
		return &ffmpeg.ProcessStats{Running: false}, nil
	}
	return ffmpeg.SampleProcess(ctx, *job.ProcessID)
}

func (m *Manager) publish(e jobs.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "unknown encoder error"
}
