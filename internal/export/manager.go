// Package export runs timeline exports as background jobs: it snapshots the
// project, loads its assets and fonts into a private workspace, compiles and
// executes the ffmpeg passes (or streams frames into a hardware encoder), and
// moves the result into the output directory.
package export

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eleven-am/montage/internal/compositor"
	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/errs"
	"github.com/eleven-am/montage/internal/ffmpeg"
	"github.com/eleven-am/montage/internal/fontcache"
	"github.com/eleven-am/montage/internal/hwaccel"
	"github.com/eleven-am/montage/internal/probe"
	"github.com/eleven-am/montage/internal/stream"
)

type Options struct {
	Logger   zerolog.Logger
	Executor *ffmpeg.Executor
	Prober   *probe.Prober
	HW       *domain.HWAccelConfig

	Assets domain.AssetSource
	Fonts  domain.FontSource
	// FontCache, when set, keeps fetched fonts across sessions.
	FontCache *fontcache.Cache
	// Conversations draws chat elements. Defaults to the built-in chat
	// renderer.
	Conversations compositor.ConversationRenderer

	WorkDir          string
	OutputDir        string
	LoadConcurrency  int
	WordsPerSecond   float64
	StreamLimits     stream.Limits
	KeyframeInterval int
	ChunkFrames      int
}

// Manager runs at most one export at a time.
type Manager struct {
	opts   Options
	logger zerolog.Logger

	mu     sync.Mutex
	active *Job
}

func NewManager(opts Options) *Manager {
	if opts.HW == nil {
		opts.HW = hwaccel.Software()
	}
	if opts.Prober == nil {
		opts.Prober = probe.NewProber("")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}
	if opts.StreamLimits == (stream.Limits{}) {
		opts.StreamLimits = stream.DefaultLimits()
	}
	return &Manager{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "export").Logger(),
	}
}

// Start snapshots p and begins exporting it on a background goroutine.
func (m *Manager) Start(ctx context.Context, p domain.Project, settings domain.RenderSettings) (*Job, error) {
	if m.opts.Executor == nil {
		return nil, errs.Engine("export", errs.ErrEncoderUnavailable)
	}
	if m.opts.Assets == nil {
		return nil, errs.Validation("export", fmt.Errorf("no asset source configured"))
	}
	if len(p.Elements) == 0 {
		return nil, errs.Validation("export", errs.ErrNothingToRender)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, errs.Validation("export", errs.ErrExportInProgress).WithJob(m.active.id)
	}

	// The job outlives the request that started it.
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := newJob(uuid.New().String(), cancel)
	m.active = job

	snapshot := p.Clone()
	go m.run(jobCtx, job, snapshot, settings)

	m.logger.Info().Str("job", job.id).Str("format", string(settings.Format)).Int("elements", len(p.Elements)).Msg("export started")
	return job, nil
}

// Cancel stops the export with the given id. A new export may start as soon
// as Cancel returns.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.id != jobID {
		return errs.Validation("cancel", errs.ErrJobNotFound).WithJob(jobID)
	}
	m.active.Cancel()
	m.active = nil
	m.logger.Info().Str("job", jobID).Msg("export cancelled")
	return nil
}

// Active returns the running export, if any.
func (m *Manager) Active() (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != nil
}

// Stop cancels the running export and waits for it to clean up.
func (m *Manager) Stop() {
	m.mu.Lock()
	job := m.active
	m.active = nil
	m.mu.Unlock()

	if job != nil {
		job.Cancel()
		<-job.Done()
	}
}

func (m *Manager) release(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == job {
		m.active = nil
	}
}
