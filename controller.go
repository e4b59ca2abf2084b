// Package montage renders and exports non-linear-editor timelines.
//
// A timeline is a Project: typed elements (media clips, text, captions and
// chat conversations) placed on rows with time intervals, transforms, effects
// and transitions between adjacent clips. montage turns a project into
//
//   - a preview frame: the z-ordered layer tree at a timeline time, and
//     optionally its rasterized pixels, or
//   - an exported file: the timeline compiled into an ffmpeg filter graph, or
//     streamed frame by frame into a hardware H.264 encoder when the project
//     is small enough.
//
// # Basic Usage
//
//	controller := montage.NewController(montage.Options{
//	    Assets:  myAssetSource,
//	    Fonts:   myFontSource,
//	    HWAccel: true, // Use a hardware encoder when one is available
//	})
//
//	if err := controller.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer controller.Stop()
//
//	// Preview
//	frame := controller.RenderFrame(project, 2.5)
//	pixels, err := controller.RasterizeFrame(ctx, project, 2.5)
//
//	// Export
//	job, err := controller.StartExport(ctx, project, montage.RenderSettings{Format: montage.FormatMP4})
//	for p := range job.Progress() {
//	    fmt.Println(p.State, p.Percent)
//	}
//	result, err := job.Wait(ctx)
//
// # Exports
//
// Only one export runs at a time. An export works on a snapshot of the
// project, so the caller may keep editing while it runs. Elements whose assets
// cannot be loaded are dropped and the export continues with the rest; if
// nothing remains the job fails with ErrNothingToRender. Cancelling a job
// kills the encoder, discards partial output and removes the job workspace.
package montage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/montage/internal/canvas"
	"github.com/eleven-am/montage/internal/compositor"
	"github.com/eleven-am/montage/internal/config"
	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/errs"
	"github.com/eleven-am/montage/internal/export"
	"github.com/eleven-am/montage/internal/ffmpeg"
	"github.com/eleven-am/montage/internal/fontcache"
	"github.com/eleven-am/montage/internal/framecache"
	"github.com/eleven-am/montage/internal/hwaccel"
	"github.com/eleven-am/montage/internal/loader"
	"github.com/eleven-am/montage/internal/logging"
	"github.com/eleven-am/montage/internal/probe"
	"github.com/eleven-am/montage/internal/stream"
	"github.com/eleven-am/montage/internal/timeline"
)

type (
	// Project is the timeline snapshot every render and export operates on.
	Project = domain.Project

	// Element is one timed item on the timeline.
	Element = domain.Element

	// Transition joins two adjacent clips on the same row.
	Transition = domain.Transition

	// RenderSettings selects the export format, quality and size.
	RenderSettings = domain.RenderSettings

	// Result describes a finished export.
	Result = domain.Result

	// Progress is one update of a running export.
	Progress = domain.Progress

	// JobState is the phase of an export.
	JobState = domain.JobState

	// AssetSource resolves asset ids to bytes. Implementations must be safe
	// for concurrent use.
	AssetSource = domain.AssetSource

	// FontSource resolves font families to TTF/OTF bytes.
	FontSource = domain.FontSource

	// ConversationRenderer draws chat conversation elements.
	ConversationRenderer = compositor.ConversationRenderer

	// Frame is the layer tree of a project at one timeline time.
	Frame = compositor.Frame

	// Job is a running export.
	Job = export.Job
)

const (
	FormatWebM = domain.FormatWebM
	FormatMP4  = domain.FormatMP4
	FormatGIF  = domain.FormatGIF
	FormatMOV  = domain.FormatMOV
)

var (
	ErrNothingToRender    = errs.ErrNothingToRender
	ErrExportInProgress   = errs.ErrExportInProgress
	ErrJobNotFound        = errs.ErrJobNotFound
	ErrCancelled          = errs.ErrCancelled
	ErrEncoderUnavailable = errs.ErrEncoderUnavailable
	ErrAssetMissing       = errs.ErrAssetMissing

	errNotStarted = errors.New("controller not started")
)

// Options configures the Controller behavior and dependencies.
type Options struct {
	// Assets is required. Resolves media asset ids to bytes.
	Assets AssetSource

	// Fonts resolves font families used by text and caption elements.
	// Without it every family renders with the default face.
	Fonts FontSource

	// Conversations draws chat elements. Default: the built-in bubble
	// renderer.
	Conversations ConversationRenderer

	// Logger receives every component's logs. Default: the global logger.
	Logger *zerolog.Logger

	// FFmpegPath and FFprobePath locate the engine binaries.
	// Default: "ffmpeg" and "ffprobe" on PATH.
	FFmpegPath  string
	FFprobePath string

	// Threads passed to ffmpeg. Default: the number of logical CPUs.
	Threads int

	// FFmpegLogLevel is ffmpeg's -loglevel. Default: "warning".
	FFmpegLogLevel string

	// HWAccel enables hardware-accelerated encoding when available.
	// Detects NVENC, QSV, VideoToolbox and VAAPI on Start.
	HWAccel bool

	// WorkDir holds per-session and per-export workspaces.
	WorkDir string

	// OutputDir receives finished exports.
	OutputDir string

	// FontCachePath is the SQLite database keeping fetched fonts across
	// sessions. Empty disables the persistent cache.
	FontCachePath     string
	FontTTL           time.Duration
	FontSweepInterval time.Duration

	// FrameCacheSize is the number of rasterized preview frames kept.
	// Default: 120.
	FrameCacheSize int

	// WordsPerSecond times captions without word tokens. Default: 2.5.
	WordsPerSecond float64

	// LoadConcurrency bounds concurrent asset fetches. Default: 8.
	LoadConcurrency int

	// StreamMaxElementSeconds and StreamMaxElements bound which projects take
	// the streaming encoder path. Default: 120 seconds and 40 elements.
	StreamMaxElementSeconds float64
	StreamMaxElements       int

	// KeyframeInterval and ChunkFrames tune the streaming encoder.
	// Default: 30 frames each.
	KeyframeInterval int
	ChunkFrames      int
}

// OptionsFromConfig maps a loaded configuration onto Options. Sources and
// renderers still have to be set by the caller.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		FFmpegPath:              cfg.FFmpeg.BinaryPath,
		FFprobePath:             cfg.FFmpeg.ProbePath,
		Threads:                 cfg.FFmpeg.Threads,
		FFmpegLogLevel:          cfg.FFmpeg.LogLevel,
		HWAccel:                 cfg.FFmpeg.HWAccel,
		WorkDir:                 cfg.WorkDir,
		OutputDir:               cfg.OutputDir,
		FontCachePath:           cfg.Fonts.CachePath,
		FontTTL:                 cfg.Fonts.TTL,
		FontSweepInterval:       cfg.Fonts.SweepInterval,
		FrameCacheSize:          cfg.Preview.FrameCacheSize,
		WordsPerSecond:          cfg.Captions.WordsPerSecond,
		LoadConcurrency:         cfg.Loader.Concurrency,
		StreamMaxElementSeconds: cfg.Stream.MaxElementSeconds,
		StreamMaxElements:       cfg.Stream.MaxElements,
		KeyframeInterval:        cfg.Stream.KeyframeInterval,
		ChunkFrames:             cfg.Stream.ChunkFrames,
	}
}

func (o *Options) setDefaults() {
	def := config.Default()
	if o.Logger == nil {
		l := logging.NewLogger()
		o.Logger = &l
	}
	if o.FFmpegPath == "" {
		o.FFmpegPath = def.FFmpeg.BinaryPath
	}
	if o.FFprobePath == "" {
		o.FFprobePath = def.FFmpeg.ProbePath
	}
	if o.FFmpegLogLevel == "" {
		o.FFmpegLogLevel = def.FFmpeg.LogLevel
	}
	if o.WorkDir == "" {
		o.WorkDir = def.WorkDir
	}
	if o.OutputDir == "" {
		o.OutputDir = def.OutputDir
	}
	if o.FrameCacheSize == 0 {
		o.FrameCacheSize = def.Preview.FrameCacheSize
	}
	if o.WordsPerSecond == 0 {
		o.WordsPerSecond = def.Captions.WordsPerSecond
	}
	if o.LoadConcurrency == 0 {
		o.LoadConcurrency = def.Loader.Concurrency
	}
	if o.StreamMaxElementSeconds == 0 {
		o.StreamMaxElementSeconds = def.Stream.MaxElementSeconds
	}
	if o.StreamMaxElements == 0 {
		o.StreamMaxElements = def.Stream.MaxElements
	}
	if o.KeyframeInterval == 0 {
		o.KeyframeInterval = def.Stream.KeyframeInterval
	}
	if o.ChunkFrames == 0 {
		o.ChunkFrames = def.Stream.ChunkFrames
	}
}

func (o *Options) validate() {
	if o.Assets == nil {
		panic("montage: Assets is required")
	}
}

// Controller is the main entry point for previews and exports.
//
// RenderFrame works on a fresh Controller. Everything touching files
// (RasterizeFrame, StartExport) requires Start, and Stop releases the
// session workspace and font cache.
type Controller struct {
	opts    Options
	logger  zerolog.Logger
	exec    *ffmpeg.Executor
	prober  *probe.Prober
	preview *compositor.Compositor
	frames  *framecache.Cache

	mu      sync.Mutex
	started bool
	hw      *domain.HWAccelConfig
	cache   *fontcache.Cache
	session *previewSession
	exports *export.Manager
}

// previewSession holds the files loaded for rasterized previews.
type previewSession struct {
	ws       *loader.Workspace
	assets   *loader.Loader
	fonts    *loader.FontLoader
	book     *canvas.FontBook
	canvas   *canvas.Canvas
	composer *compositor.Compositor
	limit    int

	mu      sync.RWMutex
	handles map[domain.AssetID]domain.Handle
	failed  map[domain.AssetID]bool
	loaded  map[string]bool
}

// NewController creates a new Controller with the given options.
// It panics if Assets is nil.
func NewController(opts Options) *Controller {
	opts.validate()
	opts.setDefaults()

	logger := *opts.Logger
	frames, _ := framecache.New(opts.FrameCacheSize)

	return &Controller{
		opts:   opts,
		logger: logging.WithComponent(logger, "controller"),
		exec:   ffmpeg.New(logger, opts.FFmpegPath, opts.Threads, opts.FFmpegLogLevel),
		prober: probe.NewProber(opts.FFprobePath),
		preview: compositor.New(compositor.Options{
			Logger:         logging.WithComponent(logger, "compositor"),
			Conversations:  opts.Conversations,
			WordsPerSecond: opts.WordsPerSecond,
		}),
		frames: frames,
		hw:     hwaccel.Software(),
	}
}

// Start detects hardware encoders, opens the font cache and prepares the
// preview workspace.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("controller already started")
	}

	if c.opts.HWAccel {
		c.hw = hwaccel.DetectBest(ctx, c.opts.FFmpegPath)
	}
	c.logger.Info().Str("accelerator", string(c.hw.Accelerator)).Str("encoder", c.hw.Encoder).Msg("encoder selected")

	if c.opts.FontCachePath != "" && c.opts.Fonts != nil {
		if c.opts.FontCachePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(c.opts.FontCachePath), 0755); err != nil {
				return fmt.Errorf("create font cache dir: %w", err)
			}
		}
		cache, err := fontcache.Open(fontcache.Options{
			Path:          c.opts.FontCachePath,
			TTL:           c.opts.FontTTL,
			SweepInterval: c.opts.FontSweepInterval,
			Logger:        c.logger,
		})
		if err != nil {
			return fmt.Errorf("open font cache: %w", err)
		}
		c.cache = cache
	}

	session, err := c.newPreviewSession()
	if err != nil {
		c.closeCache()
		return fmt.Errorf("create preview session: %w", err)
	}
	c.session = session

	c.exports = export.NewManager(export.Options{
		Logger:        *c.opts.Logger,
		Executor:      c.exec,
		Prober:        c.prober,
		HW:            c.hw,
		Assets:        c.opts.Assets,
		Fonts:         c.opts.Fonts,
		FontCache:     c.cache,
		Conversations: c.opts.Conversations,
		WorkDir:       c.opts.WorkDir,
		OutputDir:     c.opts.OutputDir,

		LoadConcurrency: c.opts.LoadConcurrency,
		WordsPerSecond:  c.opts.WordsPerSecond,
		StreamLimits: stream.Limits{
			MaxElementSeconds: c.opts.StreamMaxElementSeconds,
			MaxElements:       c.opts.StreamMaxElements,
		},
		KeyframeInterval: c.opts.KeyframeInterval,
		ChunkFrames:      c.opts.ChunkFrames,
	})

	c.started = true
	return nil
}

// Stop cancels a running export, waits for it to clean up, and releases the
// preview workspace and font cache.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	c.started = false

	c.exports.Stop()
	c.session.close(c.logger)
	c.session = nil
	c.frames.Purge()
	c.closeCache()
}

func (c *Controller) closeCache() {
	if c.cache == nil {
		return
	}
	if err := c.cache.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to close font cache")
	}
	c.cache = nil
}

// Accelerator reports the encoder family selected on Start.
func (c *Controller) Accelerator() domain.Accelerator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hw.Accelerator
}

// RenderFrame returns the layer tree of project at t. It is pure: nothing is
// loaded and nothing is cached between calls.
func (c *Controller) RenderFrame(project Project, t float64) Frame {
	return c.preview.RenderFrame(context.Background(), project, t)
}

// RasterizeFrame draws project at t. Assets and fonts the project references
// are loaded on first use and kept for the session. Elements whose assets
// fail to load are skipped.
func (c *Controller) RasterizeFrame(ctx context.Context, project Project, t float64) (*image.RGBA, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return nil, errs.Validation("rasterize", errNotStarted)
	}

	session.ensureAssets(ctx, project, c.logger)
	session.ensureFonts(ctx, project, c.logger)
	if err := ctx.Err(); err != nil {
		return nil, errs.Cancelled("rasterize")
	}

	f := session.composer.RenderFrame(ctx, project, t)
	return session.canvas.Rasterize(ctx, f)
}

// StartExport begins exporting a snapshot of project. Only one export runs at
// a time; a second call fails with ErrExportInProgress until the first
// finishes or is cancelled.
func (c *Controller) StartExport(ctx context.Context, project Project, settings RenderSettings) (*Job, error) {
	c.mu.Lock()
	exports := c.exports
	started := c.started
	c.mu.Unlock()

	if !started {
		return nil, errs.Validation("export", errNotStarted)
	}
	return exports.Start(ctx, project, settings)
}

// CancelExport stops the export with the given id. A new export may be
// started as soon as CancelExport returns.
func (c *Controller) CancelExport(jobID string) error {
	c.mu.Lock()
	exports := c.exports
	c.mu.Unlock()

	if exports == nil {
		return errs.Validation("cancel", errs.ErrJobNotFound).WithJob(jobID)
	}
	return exports.Cancel(jobID)
}

// Split cuts a media clip at timeline time at. The right half gets rightID.
func Split(e Element, at float64, rightID string) (Element, Element, error) {
	return timeline.Split(e, at, rightID)
}

// Link adds a transition between two adjacent clips.
func Link(p Project, t Transition) (Project, error) {
	return timeline.Link(p, t)
}

// Unlink removes the transition between two clips.
func Unlink(p Project, fromID, toID string) Project {
	return timeline.Unlink(p, fromID, toID)
}

// RemoveElement drops an element and the transitions that reference it.
func RemoveElement(p Project, id string) Project {
	return timeline.RemoveElement(p, id)
}

func (c *Controller) newPreviewSession() (*previewSession, error) {
	ws, err := loader.NewWorkspace(c.opts.WorkDir, "preview")
	if err != nil {
		return nil, err
	}

	logger := *c.opts.Logger
	s := &previewSession{
		ws:      ws,
		book:    canvas.NewFontBook(),
		handles: make(map[domain.AssetID]domain.Handle),
		failed:  make(map[domain.AssetID]bool),
		loaded:  make(map[string]bool),
		limit:   c.opts.LoadConcurrency,
	}
	s.assets = loader.New(c.opts.Assets, loader.Options{
		Logger:      logger,
		Dir:         ws.Dir(),
		Concurrency: c.opts.LoadConcurrency,
	})
	if c.opts.Fonts != nil {
		s.fonts = loader.NewFontLoader(c.opts.Fonts, c.cache, loader.Options{
			Logger:      logger,
			Dir:         ws.Dir(),
			Concurrency: c.opts.LoadConcurrency,
		})
	}

	s.canvas = canvas.New(canvas.Options{
		Logger: logger,
		Source: canvas.NewFileSource(logger, s.resolve, c.exec),
		Fonts:  s.book,
		Cache:  c.frames,
	})

	conv := c.opts.Conversations
	if conv == nil {
		conv = canvas.NewChatRenderer(s.canvas)
	}
	s.composer = compositor.New(compositor.Options{
		Logger: logging.WithComponent(logger, "compositor"),
		Resolver: func(id domain.AssetID) bool {
			_, ok := s.resolve(id)
			return ok
		},
		Conversations:  conv,
		WordsPerSecond: c.opts.WordsPerSecond,
		Measurer:       s.book.Measurer,
	})
	return s, nil
}

func (s *previewSession) resolve(id domain.AssetID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[id]
	return h.Path, ok
}

// ensureAssets loads the project's media that is neither loaded nor known to
// be broken. Each id loads on its own so one broken asset never costs the
// others a refetch.
func (s *previewSession) ensureAssets(ctx context.Context, p Project, logger zerolog.Logger) {
	seen := make(map[domain.AssetID]bool)
	var missing []domain.AssetID
	s.mu.RLock()
	for _, e := range p.Elements {
		if e.Media == nil || e.Media.Src == "" || !e.Media.HasVisual() {
			continue
		}
		id := e.Media.Src
		if _, ok := s.handles[id]; ok || s.failed[id] || seen[id] {
			continue
		}
		seen[id] = true
		missing = append(missing, id)
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}
	for _, id := range missing {
		id := id
		g.Go(func() error {
			h, err := s.assets.Load(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				logger.Warn().Err(err).Str("asset", string(id)).Msg("preview asset unavailable")
				s.mu.Lock()
				s.failed[id] = true
				s.mu.Unlock()
				return nil
			}
			s.mu.Lock()
			s.handles[id] = h
			s.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// ensureFonts registers the families used by text and captions. Families
// that fail to load fall back to the default face.
func (s *previewSession) ensureFonts(ctx context.Context, p Project, logger zerolog.Logger) {
	if s.fonts == nil {
		return
	}

	var families []string
	s.mu.RLock()
	for _, e := range p.Elements {
		var family string
		switch {
		case e.Text != nil:
			family = e.Text.FontFamily
		case e.Caption != nil:
			family = e.Caption.Style.FontFamily
		}
		if family != "" && !s.loaded[family] {
			families = append(families, family)
		}
	}
	s.mu.RUnlock()
	if len(families) == 0 {
		return
	}

	for _, family := range families {
		paths, err := s.fonts.Load(ctx, []string{family}, nil)
		s.mu.Lock()
		s.loaded[family] = true
		s.mu.Unlock()
		if err != nil {
			logger.Warn().Err(err).Str("family", family).Msg("font unavailable, using default face")
			continue
		}
		if err := s.book.RegisterFile(family, paths[family]); err != nil {
			logger.Warn().Err(err).Str("family", family).Msg("failed to parse font")
		}
	}
}

func (s *previewSession) close(logger zerolog.Logger) {
	s.mu.Lock()
	handles := s.handles
	s.handles = make(map[domain.AssetID]domain.Handle)
	s.mu.Unlock()

	report := s.assets.Cleanup(handles)
	if report.Failed > 0 {
		logger.Warn().Int("failed", report.Failed).Msg("preview cleanup incomplete")
	}
	if err := s.ws.Remove(); err != nil {
		logger.Warn().Err(errs.Cleanup("preview", err)).Msg("failed to remove preview workspace")
	}
}
