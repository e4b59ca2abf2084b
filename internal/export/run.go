package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/eleven-am/montage/internal/canvas"
	"github.com/eleven-am/montage/internal/compositor"
	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/errs"
	"github.com/eleven-am/montage/internal/filtergraph"
	"github.com/eleven-am/montage/internal/format"
	"github.com/eleven-am/montage/internal/hwaccel"
	"github.com/eleven-am/montage/internal/loader"
	"github.com/eleven-am/montage/internal/sidecar"
	"github.com/eleven-am/montage/internal/stream"
	"github.com/eleven-am/montage/internal/timeline"
)

// session holds the per-job resources released when the job ends.
type session struct {
	m      *Manager
	job    *Job
	logger zerolog.Logger

	ws        *loader.Workspace
	assets    *loader.Loader
	fonts     *loader.FontLoader
	handles   map[domain.AssetID]domain.Handle
	fontPaths map[string]string

	// outputs are files already placed in the output directory.
	outputs []string
}

func (m *Manager) run(ctx context.Context, job *Job, p domain.Project, settings domain.RenderSettings) {
	s := &session{
		m:      m,
		job:    job,
		logger: m.logger.With().Str("job", job.id).Logger(),
	}

	result, err := s.execute(ctx, p, settings)

	state := domain.JobSucceeded
	switch {
	case err == nil:
	case ctx.Err() != nil || errors.Is(err, errs.ErrCancelled):
		state = domain.JobCancelled
		err = errs.Cancelled("export").WithJob(job.id)
	default:
		state = domain.JobFailed
		err = withJob(err, job.id)
	}

	if state != domain.JobSucceeded {
		s.discardOutputs()
	}
	s.cleanup()

	switch state {
	case domain.JobSucceeded:
		result.Elapsed = time.Since(job.started)
		s.logger.Info().Str("path", result.Path).Int64("size", result.Size).Dur("elapsed", result.Elapsed).Msg("export finished")
	case domain.JobCancelled:
		s.logger.Info().Msg("export cancelled")
	default:
		s.logger.Error().Err(err).Str("type", string(errs.TypeOf(err))).Msg("export failed")
	}

	m.release(job)
	job.finish(state, result, err)
}

func withJob(err error, id string) error {
	var e *errs.Error
	if errors.As(err, &e) {
		cp := *e
		return cp.WithJob(id)
	}
	return errs.New(errs.TypeInternal, "export", err).WithJob(id)
}

func (s *session) execute(ctx context.Context, p domain.Project, settings domain.RenderSettings) (domain.Result, error) {
	settings = settings.WithDefaults(p)
	p = timeline.Normalize(p, settings.FPS)
	p, invalid, problems := timeline.DropInvalid(p)
	for i, id := range invalid {
		s.logger.Warn().Err(problems[i]).Str("element", id).Msg("dropping invalid element")
	}
	if len(p.Elements) == 0 {
		return domain.Result{}, errs.Validation("export", errs.ErrNothingToRender)
	}

	spec, err := format.Lookup(settings.Format)
	if err != nil {
		return domain.Result{}, errs.Validation("export", err)
	}

	ws, err := loader.NewWorkspace(s.m.opts.WorkDir, "export")
	if err != nil {
		return domain.Result{}, errs.Engine("workspace", err)
	}
	s.ws = ws

	s.job.setState(domain.JobLoadingAssets)
	p, err = s.loadAssets(ctx, p)
	if err != nil {
		return domain.Result{}, err
	}
	if err := s.loadFonts(ctx, p); err != nil {
		return domain.Result{}, err
	}

	s.job.setState(domain.JobBuildingGraph)

	hw := s.m.opts.HW
	if ok, reason := stream.Eligible(p, settings, hw, s.m.opts.StreamLimits); ok {
		spec, _ = format.Lookup(domain.FormatMP4)
		err = s.streamEncode(ctx, p, settings, hw, spec)
	} else {
		s.logger.Debug().Str("reason", reason).Msg("using filter graph path")
		err = s.graphEncode(ctx, p, settings, hw, spec)
	}
	if err != nil {
		return domain.Result{}, err
	}

	s.job.setState(domain.JobFinalizing)
	return s.finalize(ctx, p, settings, spec)
}

func (s *session) loadAssets(ctx context.Context, p domain.Project) (domain.Project, error) {
	s.assets = loader.New(s.m.opts.Assets, loader.Options{
		Logger:      s.logger,
		Dir:         s.ws.Dir(),
		Concurrency: s.m.opts.LoadConcurrency,
		Listener: loader.ListenerFunc(func(ctx context.Context, st loader.FetchStatus) {
			if st.Error != "" {
				s.logger.Debug().Str("error", st.Error).Str("asset", st.Key).Msg("asset fetch failed")
				return
			}
			s.logger.Trace().Str("asset", st.Key).Int("size", st.Size).Msg("asset fetched")
		}),
	})

	for {
		ids := mediaAssets(p)
		handles, err := s.assets.LoadParallel(ctx, ids, s.job.setLoaded)
		if err == nil {
			s.handles = handles
			return p, nil
		}
		if ctx.Err() != nil {
			return p, errs.Cancelled("load")
		}

		failed := loader.FailedAssets(err)
		if len(failed) == 0 {
			return p, errs.Asset("load", "", err)
		}
		p = dropElements(p, failed, s.logger)
		if len(p.Elements) == 0 {
			return p, errs.Validation("load", errs.ErrNothingToRender)
		}
	}
}

func mediaAssets(p domain.Project) []domain.AssetID {
	var ids []domain.AssetID
	seen := make(map[domain.AssetID]bool)
	for _, e := range p.Elements {
		if e.Media == nil || e.Media.Src == "" || seen[e.Media.Src] {
			continue
		}
		seen[e.Media.Src] = true
		ids = append(ids, e.Media.Src)
	}
	return ids
}

// dropElements removes every element whose source failed to load.
func dropElements(p domain.Project, failed []domain.AssetID, logger zerolog.Logger) domain.Project {
	bad := make(map[domain.AssetID]bool, len(failed))
	for _, id := range failed {
		bad[id] = true
	}
	for _, e := range p.Elements {
		if e.Media != nil && bad[e.Media.Src] {
			logger.Warn().Str("element", e.ID).Str("asset", string(e.Media.Src)).Msg("dropping element with unavailable asset")
			p = timeline.RemoveElement(p, e.ID)
		}
	}
	return p
}

func fontFamilies(p domain.Project) []string {
	var families []string
	seen := make(map[string]bool)
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			families = append(families, f)
		}
	}
	for _, e := range p.Elements {
		switch {
		case e.Text != nil:
			add(e.Text.FontFamily)
		case e.Caption != nil:
			add(e.Caption.Style.FontFamily)
		}
	}
	return families
}

// loadFonts makes every referenced family available before the graph is
// built. Families that cannot be fetched render with the default face.
func (s *session) loadFonts(ctx context.Context, p domain.Project) error {
	families := fontFamilies(p)
	if len(families) == 0 || s.m.opts.Fonts == nil {
		return nil
	}

	s.fonts = loader.NewFontLoader(s.m.opts.Fonts, s.m.opts.FontCache, loader.Options{
		Logger:      s.logger,
		Dir:         s.ws.Dir(),
		Concurrency: s.m.opts.LoadConcurrency,
	})

	for len(families) > 0 {
		paths, err := s.fonts.Load(ctx, families, nil)
		if err == nil {
			s.fontPaths = paths
			return nil
		}
		if ctx.Err() != nil {
			return errs.Cancelled("fonts")
		}

		failed := loader.FailedKeys(err)
		if len(failed) == 0 {
			return errs.Asset("fonts", "", err)
		}
		s.logger.Warn().Strs("families", failed).Msg("fonts unavailable, using default face")
		families = without(families, failed)
	}
	return nil
}

func without(list, drop []string) []string {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	var out []string
	for _, v := range list {
		if !skip[v] {
			out = append(out, v)
		}
	}
	return out
}

// renderer builds the in-process compositor and canvas over the loaded
// workspace.
func (s *session) renderer(settings domain.RenderSettings) (*compositor.Compositor, *canvas.Canvas, compositor.ConversationRenderer) {
	book := canvas.NewFontBook()
	if err := book.RegisterAll(s.fontPaths); err != nil {
		s.logger.Warn().Err(err).Msg("failed to register fonts")
	}

	resolve := func(id domain.AssetID) (string, bool) {
		h, ok := s.handles[id]
		return h.Path, ok
	}
	cv := canvas.New(canvas.Options{
		Logger: s.logger,
		Source: canvas.NewFileSource(s.logger, resolve, s.m.opts.Executor),
		Fonts:  book,
	})

	conv := s.m.opts.Conversations
	if conv == nil {
		conv = canvas.NewChatRenderer(cv)
	}

	comp := compositor.New(compositor.Options{
		Logger: s.logger,
		Resolver: func(id domain.AssetID) bool {
			_, ok := s.handles[id]
			return ok
		},
		Conversations:  conv,
		WordsPerSecond: s.m.opts.WordsPerSecond,
		ChromaKey:      settings.ChromaKey,
		Measurer:       book.Measurer,
	})
	return comp, cv, conv
}

func (s *session) streamEncode(ctx context.Context, p domain.Project, settings domain.RenderSettings, hw *domain.HWAccelConfig, spec format.Spec) error {
	comp, cv, _ := s.renderer(settings)
	st := stream.New(stream.Options{
		Logger:           s.logger,
		Executor:         s.m.opts.Executor,
		Renderer:         comp,
		Rasterizer:       cv,
		KeyframeInterval: s.m.opts.KeyframeInterval,
		ChunkFrames:      s.m.opts.ChunkFrames,
	})

	out, err := os.Create(s.ws.Path("output" + spec.Extension))
	if err != nil {
		return errs.Engine("stream", err)
	}

	s.job.setState(domain.JobEncoding)
	usedHW, err := st.Encode(ctx, p, settings, hw, out, func(frame, total int) {
		s.job.setPercent(capPercent(float64(frame) / float64(total) * 100))
	})
	if cerr := out.Close(); err == nil && cerr != nil {
		err = errs.Engine("stream", cerr)
	}
	s.logger.Debug().Bool("hardware", usedHW).Msg("stream encode done")
	return err
}

func (s *session) graphEncode(ctx context.Context, p domain.Project, settings domain.RenderSettings, hw *domain.HWAccelConfig, spec format.Spec) error {
	sources, err := s.m.opts.Prober.ProbeAll(ctx, s.handles)
	if err != nil {
		if ctx.Err() != nil {
			return errs.Cancelled("probe")
		}
		return errs.Engine("probe", err)
	}

	overlays, err := s.conversationOverlays(ctx, p, settings.FPS)
	if err != nil {
		return err
	}

	in := filtergraph.Input{
		Project:   p,
		Duration:  p.Duration(),
		Settings:  settings,
		Handles:   s.handles,
		Sources:   sources,
		Fonts:     s.fontPaths,
		Overlays:  overlays,
		HW:        hw,
		WorkDir:   s.ws.Dir(),
		Output:    s.ws.Path("output" + spec.Extension),
		AlphaShim: settings.Format == domain.FormatWebM && format.WantsAlpha(settings),
	}

	plan, err := filtergraph.Compile(in)
	if err != nil {
		return err
	}
	for _, id := range plan.Skipped {
		s.logger.Warn().Str("element", id).Msg("element cannot be drawn offline, skipping")
	}

	s.job.setState(domain.JobEncoding)
	err = s.runPasses(ctx, plan)
	if err == nil || !usesHardware(plan) || !errs.Retryable(err) || ctx.Err() != nil {
		return err
	}

	s.logger.Warn().Err(err).Str("accelerator", string(hw.Accelerator)).Msg("hardware encode failed, retrying in software")
	os.Remove(in.Output)

	in.Settings.HWAccel = false
	in.HW = hwaccel.Software()
	if plan, err = filtergraph.Compile(in); err != nil {
		return err
	}
	return s.runPasses(ctx, plan)
}

func usesHardware(plan *filtergraph.Plan) bool {
	for _, pass := range plan.Passes {
		if pass.Hardware {
			return true
		}
	}
	return false
}

// conversationOverlays pre-renders chat elements as image sequences. A
// conversation that fails to render is left out of the graph.
func (s *session) conversationOverlays(ctx context.Context, p domain.Project, fps float64) (map[string]string, error) {
	var conv compositor.ConversationRenderer
	overlays := make(map[string]string)

	for _, e := range p.Elements {
		if e.Conversation == nil {
			continue
		}
		if conv == nil {
			_, _, conv = s.renderer(domain.RenderSettings{})
		}
		pattern, err := canvas.RenderSequence(ctx, conv, e, fps, s.ws.Dir())
		if err != nil {
			if ctx.Err() != nil {
				return nil, errs.Cancelled("conversation")
			}
			s.logger.Warn().Err(err).Str("element", e.ID).Msg("failed to render conversation")
			continue
		}
		overlays[e.ID] = pattern
	}
	return overlays, nil
}

// runPasses executes the plan in order. Progress is spread evenly across
// passes.
func (s *session) runPasses(ctx context.Context, plan *filtergraph.Plan) error {
	n := float64(len(plan.Passes))
	for i, pass := range plan.Passes {
		base := float64(i)
		s.logger.Debug().Str("pass", pass.Name).Bool("hardware", pass.Hardware).Msg("running pass")

		err := s.m.opts.Executor.Run(ctx, ffmpegOptions(pass, plan.Duration, func(percent float64) {
			s.job.setPercent(capPercent((base + percent/100) / n * 100))
		}))
		if err != nil {
			return err
		}
	}
	return nil
}

func capPercent(v float64) float64 {
	if v > 99.9 {
		return 99.9
	}
	return v
}

// finalize moves the output into the output directory and writes the
// optional caption sidecar next to it.
func (s *session) finalize(ctx context.Context, p domain.Project, settings domain.RenderSettings, spec format.Spec) (domain.Result, error) {
	if err := os.MkdirAll(s.m.opts.OutputDir, 0755); err != nil {
		return domain.Result{}, errs.Engine("finalize", err)
	}

	src := s.ws.Path("output" + spec.Extension)
	dst := filepath.Join(s.m.opts.OutputDir, s.job.id+spec.Extension)
	if err := moveFile(src, dst); err != nil {
		return domain.Result{}, errs.Engine("finalize", err)
	}
	s.outputs = append(s.outputs, dst)

	info, err := os.Stat(dst)
	if err != nil {
		return domain.Result{}, errs.Engine("finalize", err)
	}

	result := domain.Result{
		Path:      dst,
		MIME:      spec.MIME,
		Extension: spec.Extension,
		Size:      info.Size(),
		Duration:  p.Duration(),
	}

	if settings.CaptionSidecar && sidecar.HasCaptions(p) {
		vtt := filepath.Join(s.m.opts.OutputDir, s.job.id+".vtt")
		if err := sidecar.Write(vtt, p); err != nil {
			s.logger.Warn().Err(err).Msg("failed to write caption sidecar")
		} else {
			s.outputs = append(s.outputs, vtt)
			result.Sidecar = vtt
		}
	}

	if ctx.Err() != nil {
		return domain.Result{}, errs.Cancelled("finalize")
	}
	return result, nil
}

func (s *session) discardOutputs() {
	for _, path := range s.outputs {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove partial output")
		}
	}
	s.outputs = nil
}

// cleanup releases loaded files and the workspace. Failures are logged only.
func (s *session) cleanup() {
	if s.assets != nil && s.handles != nil {
		report := s.assets.Cleanup(s.handles)
		s.logger.Debug().Int("removed", report.Removed).Int("failed", report.Failed).Msg("assets cleaned up")
	}
	if s.fonts != nil && s.fontPaths != nil {
		s.fonts.Cleanup(s.fontPaths)
	}
	if s.ws != nil {
		if err := s.ws.Remove(); err != nil {
			s.logger.Warn().Err(errs.Cleanup("workspace", err)).Str("dir", s.ws.Dir()).Msg("failed to remove workspace")
		}
	}
}
