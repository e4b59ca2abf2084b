package filtergraph

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/eleven-am/montage/internal/caption"
	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/errs"
	"github.com/eleven-am/montage/internal/format"
	"github.com/eleven-am/montage/internal/textfx"
	"github.com/eleven-am/montage/internal/timeline"
	"github.com/eleven-am/montage/internal/transition"
)

type Input struct {
	Project  domain.Project
	Duration float64
	Settings domain.RenderSettings
	Handles  map[domain.AssetID]domain.Handle
	Sources  map[domain.AssetID]domain.SourceInfo
	// Fonts maps a font family to a font file in the workspace.
	Fonts map[string]string
	// Overlays maps a conversation element id to a pre-rasterised image
	// sequence pattern.
	Overlays map[string]string
	HW       *domain.HWAccelConfig
	WorkDir  string
	Output   string
	// AlphaShim re-encodes alpha-bearing VP9 sources to PNG-in-MOV before
	// the main pass for transparent webm exports.
	AlphaShim bool
}

// Pass is one ffmpeg invocation. Args exclude global flags and end with the
// output path.
type Pass struct {
	Name     string
	Args     []string
	Output   string
	Hardware bool
}

type Plan struct {
	Passes   []Pass
	Graph    *Graph
	Duration float64
	HasAudio bool
	// Skipped lists elements the offline engine cannot draw.
	Skipped []string
}

const (
	defaultFontSize = 48.0
	captionMargin   = 0.08
)

// Compile turns the project into the ordered passes that produce the export.
func Compile(in Input) (*Plan, error) {
	s := in.Settings.WithDefaults(in.Project)
	spec, err := format.Lookup(s.Format)
	if err != nil {
		return nil, errs.Validation("compile", err)
	}
	project, invalid, _ := timeline.DropInvalid(in.Project)
	in.Project = project
	if len(in.Project.Elements) == 0 {
		return nil, errs.Validation("compile", errs.ErrNothingToRender)
	}

	c := &compiler{
		in:       in,
		settings: s,
		spec:     spec,
		quality:  format.Quality(s.Quality),
		alpha:    format.WantsAlpha(s),
		hardware: format.UseHardware(s, in.HW),
		paths:    make(map[domain.AssetID]string),
		duration: in.Duration,
		skipped:  invalid,
	}
	if c.duration <= 0 {
		c.duration = in.Project.Duration()
	}
	c.width, c.height = format.EvenSize(s.Width, s.Height)

	c.elements = append([]domain.Element(nil), in.Project.Elements...)
	timeline.SortByZ(c.elements)

	plan := &Plan{Duration: c.duration}

	for _, e := range c.elements {
		if e.Media == nil {
			continue
		}
		h, ok := in.Handles[e.Media.Src]
		if !ok {
			return nil, errs.Asset("compile", string(e.Media.Src), errs.ErrAssetMissing)
		}
		c.paths[e.Media.Src] = h.Path
	}

	plan.Passes = append(plan.Passes, c.shims()...)

	if s.Format == domain.FormatGIF {
		palette := filepath.Join(in.WorkDir, "palette.png")

		g, args, vout, _ := c.build()
		pal := g.Add(NodePalette, "pal", []Pad{vout}, parseChain(format.PaletteGen(s))...)
		args = append(args, "-filter_complex", g.String(), "-map", "["+string(pal)+"]", "-update", "1", palette)
		plan.Passes = append(plan.Passes, Pass{Name: "palette", Args: args, Output: palette})

		g, args, vout, _ = c.build()
		idx := c.inputCount
		args = append(args, "-i", palette)
		out := g.Add(NodePaletteUse, "vout", []Pad{vout, StreamPad(idx, "v")}, parseChain(format.PaletteUse(s))...)
		video, err := format.VideoArgs(s, in.HW)
		if err != nil {
			return nil, errs.Graph("compile", err)
		}
		args = append(args, "-filter_complex", g.String(), "-map", "["+string(out)+"]")
		args = append(args, video...)
		args = append(args, in.Output)
		plan.Passes = append(plan.Passes, Pass{Name: "encode", Args: args, Output: in.Output})
		plan.Graph = g
		plan.Skipped = c.skipped
		return plan, validate(g)
	}

	g, args, vout, aout := c.build()
	final := []Filter{}
	if c.hardware {
		final = append(final, parseChain(in.HW.UploadFilter)...)
	} else {
		final = append(final, F("format", "pix_fmts", format.PixFmt(s)))
	}
	out := g.Add(NodeOutput, "vout", []Pad{vout}, final...)

	video, err := format.VideoArgs(s, in.HW)
	if err != nil {
		return nil, errs.Graph("compile", err)
	}

	if c.hardware {
		args = append(append([]string{}, in.HW.InitFlags...), args...)
	}
	args = append(args, "-filter_complex", g.String(), "-map", "["+string(out)+"]")
	if aout != "" {
		args = append(args, "-map", "["+string(aout)+"]")
		args = append(args, format.AudioArgs(s)...)
		plan.HasAudio = true
	}
	args = append(args, video...)
	args = append(args, in.Output)

	plan.Passes = append(plan.Passes, Pass{Name: "encode", Args: args, Output: in.Output, Hardware: c.hardware})
	plan.Graph = g
	plan.Skipped = c.skipped
	return plan, validate(g)
}

func validate(g *Graph) error {
	if err := g.Validate(); err != nil {
		return errs.Graph("compile", err)
	}
	return nil
}

type compiler struct {
	in       Input
	settings domain.RenderSettings
	spec     format.Spec
	quality  format.QualitySpec
	alpha    bool
	hardware bool
	width    int
	height   int
	duration float64
	elements []domain.Element
	paths    map[domain.AssetID]string
	shimmed  map[domain.AssetID]bool
	skipped  []string

	inputCount int
}

// shims re-encodes alpha VP9 sources whose alpha plane the default decoder
// would drop.
func (c *compiler) shims() []Pass {
	if !c.in.AlphaShim || !c.alpha || c.settings.Format != domain.FormatWebM {
		return nil
	}
	c.shimmed = make(map[domain.AssetID]bool)

	var passes []Pass
	for _, e := range c.elements {
		if e.Media == nil || !e.Media.HasVisual() || c.shimmed[e.Media.Src] {
			continue
		}
		if !c.alphaVP9(e.Media.Src) {
			continue
		}
		out := filepath.Join(c.in.WorkDir, fmt.Sprintf("shim_%d.mov", len(passes)))
		args := []string{"-c:v", "libvpx-vp9", "-i", c.paths[e.Media.Src], "-c:v", "png", "-pix_fmt", "rgba", "-an", out}
		passes = append(passes, Pass{Name: "alpha-shim", Args: args, Output: out})
		c.paths[e.Media.Src] = out
		c.shimmed[e.Media.Src] = true
	}
	return passes
}

func (c *compiler) alphaVP9(id domain.AssetID) bool {
	src, ok := c.in.Sources[id]
	return ok && src.HasAlpha && (src.Codec == "vp9" || src.Codec == "vp8")
}

// build assembles the canvas, media chains, overlay fold, burn-in text and
// audio mix. It returns the input arguments and the video and audio pads.
func (c *compiler) build() (*Graph, []string, Pad, Pad) {
	g := NewGraph()
	c.inputCount = 0
	var args []string

	base := c.canvas(g)
	var audio []Pad

	for _, e := range c.elements {
		switch e.Kind {
		case domain.KindMedia:
			m := e.Media
			if !m.HasVisual() && !m.HasAudio() {
				continue
			}
			idx := c.inputCount
			args = append(args, c.inputArgs(e)...)
			c.inputCount++

			if m.HasVisual() {
				v := c.mediaChain(g, e, idx)
				base = c.overlay(g, base, v, e)
			}
			if c.spec.HasAudio && c.carriesAudio(e) {
				audio = append(audio, c.audioChain(g, e, idx))
			}

		case domain.KindConversation:
			pattern, ok := c.in.Overlays[e.ID]
			if !ok {
				c.skipped = appendOnce(c.skipped, e.ID)
				continue
			}
			idx := c.inputCount
			args = append(args, "-framerate", num(c.settings.FPS), "-i", pattern)
			c.inputCount++

			v := g.Add(NodeVideo, "v", []Pad{StreamPad(idx, "v")},
				F("format", "pix_fmts", "rgba"),
				Filter{Name: "setpts"}.Expr("expr", fmt.Sprintf("PTS-STARTPTS+%s/TB", num(e.PositionStart))),
			)
			base = c.overlay(g, base, v, e)
		}
	}

	for _, e := range c.elements {
		switch e.Kind {
		case domain.KindText:
			base = c.text(g, base, e)
		case domain.KindCaption:
			base = c.captions(g, base, e)
		}
	}

	var aout Pad
	if len(audio) > 0 {
		aout = g.Add(NodeMix, "aout", audio, F("amix",
			"inputs", fmt.Sprint(len(audio)),
			"duration", "longest",
			"normalize", "0",
		))
	}
	return g, args, base, aout
}

func appendOnce(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

func (c *compiler) canvas(g *Graph) Pad {
	bg := Color(c.in.Project.Background, 1)
	if c.alpha {
		bg = "black@0"
	}
	filters := []Filter{F("color",
		"c", bg,
		"s", fmt.Sprintf("%dx%d", c.width, c.height),
		"r", num(c.settings.FPS),
		"d", num(c.duration),
	)}
	if c.alpha {
		filters = append(filters, F("format", "pix_fmts", "rgba"))
	}
	return g.Add(NodeSource, "base", nil, filters...)
}

func (c *compiler) inputArgs(e domain.Element) []string {
	m := e.Media
	path := c.paths[m.Src]
	switch m.Type {
	case domain.MediaImage:
		return []string{"-loop", "1", "-framerate", num(c.settings.FPS), "-t", num(e.Duration()), "-i", path}
	case domain.MediaVideo:
		if c.alpha && !c.shimmed[m.Src] && c.alphaVP9(m.Src) {
			return []string{"-c:v", "libvpx-vp9", "-i", path}
		}
	}
	return []string{"-i", path}
}

func (c *compiler) carriesAudio(e domain.Element) bool {
	m := e.Media
	if !m.HasAudio() {
		return false
	}
	src, known := c.in.Sources[m.Src]
	if m.Type == domain.MediaAudio {
		return !known || src.HasAudio
	}
	return known && src.HasAudio
}

// placement resolves the element rectangle in output pixels.
func (c *compiler) placement(e domain.Element) (x, y, w, h float64) {
	w, h = e.Width, e.Height
	if w <= 0 {
		w = float64(c.width)
	}
	if h <= 0 {
		h = float64(c.height)
	}
	return e.X, e.Y, w, h
}

// mediaChain processes one visual media input in a fixed order: trim, pixel
// format, chroma key, scale, rotate, effects, transitions, time shift and
// opacity.
func (c *compiler) mediaChain(g *Graph, e domain.Element, idx int) Pad {
	m := e.Media
	_, _, w, h := c.placement(e)
	w2, h2 := format.EvenSize(int(math.Round(w)), int(math.Round(h)))
	scale := F("scale", "w", fmt.Sprint(w2), "h", fmt.Sprint(h2), "flags", c.quality.ScaleFlags)
	shift := Filter{Name: "setpts"}.Expr("expr", fmt.Sprintf("PTS-STARTPTS+%s/TB", num(e.PositionStart)))

	if m.Type == domain.MediaAnimated {
		filters := []Filter{scale, shift, F("format", "pix_fmts", "rgba")}
		if loop, ok := c.loop(e); ok {
			filters = append(filters, loop)
		}
		filters = append(filters, c.opacity(e)...)
		return g.Add(NodeVideo, "v", []Pad{StreamPad(idx, "v")}, filters...)
	}

	var filters []Filter

	if m.Type == domain.MediaVideo {
		end := timeline.SourceTime(*m, e.Duration())
		filters = append(filters, F("trim", "start", num(m.StartTime), "end", num(end)))
	}
	if sp := m.Speed(); sp != 1 {
		filters = append(filters, Filter{Name: "setpts"}.Expr("expr", fmt.Sprintf("(PTS-STARTPTS)/%s", num(sp))))
	} else {
		filters = append(filters, Filter{Name: "setpts"}.Expr("expr", "PTS-STARTPTS"))
	}

	filters = append(filters, F("format", "pix_fmts", "rgba"))

	if ck := c.chromaKey(m); ck != nil {
		similarity := ck.Similarity
		if similarity <= 0 {
			similarity = 0.1
		}
		filters = append(filters, F("colorkey",
			"color", Color(ck.Color, 1),
			"similarity", num(similarity),
			"blend", num(ck.Blend),
		))
	}

	filters = append(filters, scale)

	scheduled := transition.Scheduled(c.in.Project, e)

	if rot := c.rotation(e, scheduled); rot != nil {
		filters = append(filters, *rot)
	}

	filters = append(filters, effects(m.Effects)...)

	for _, a := range scheduled {
		// rotate also fades, as its preview does
		if k := transition.Offline(a.Kind); k != transition.Fade && k != transition.Rotate {
			continue
		}
		dir := "in"
		if a.Role == transition.RoleOut {
			dir = "out"
		}
		filters = append(filters, F("fade",
			"t", dir,
			"st", num(a.Window.Start-e.PositionStart),
			"d", num(a.Window.Len()),
			"alpha", "1",
		))
	}

	filters = append(filters, shift)
	filters = append(filters, c.opacity(e)...)

	return g.Add(NodeVideo, "v", []Pad{StreamPad(idx, "v")}, filters...)
}

func (c *compiler) chromaKey(m *domain.Media) *domain.ChromaKey {
	if m.ChromaKey != nil {
		return m.ChromaKey
	}
	return c.settings.ChromaKey
}

// rotation folds the static rotation and any rotate transitions into one
// rotate filter evaluated per frame on local time.
func (c *compiler) rotation(e domain.Element, scheduled []transition.Active) *Filter {
	var terms []string
	if e.Rotation != 0 {
		terms = append(terms, num(e.Rotation*math.Pi/180))
	}
	for _, a := range scheduled {
		if transition.Offline(a.Kind) != transition.Rotate {
			continue
		}
		sign := 1.0
		if a.Direction == "left" {
			sign = -1
		}
		p := progressExpr(a.Window.Start-e.PositionStart, a.Window.Len())
		if a.Role == transition.RoleIn {
			terms = append(terms, fmt.Sprintf("%s*(1-%s)", num(-sign*math.Pi/2), p))
		} else {
			terms = append(terms, fmt.Sprintf("%s*%s", num(sign*math.Pi/2), p))
		}
	}
	if len(terms) == 0 {
		return nil
	}
	f := Filter{Name: "rotate"}.
		Expr("a", strings.Join(terms, "+")).
		Expr("ow", "hypot(iw,ih)").
		Expr("oh", "ow").
		With("c", "none")
	return &f
}

func progressExpr(start, length float64) string {
	if length <= 0 {
		return fmt.Sprintf("gte(t,%s)", num(start))
	}
	return fmt.Sprintf("clip((t-%s)/%s,0,1)", num(start), num(length))
}

func effects(fx domain.Effects) []Filter {
	var out []Filter
	if fx.Blur > 0 {
		out = append(out, F("gblur", "sigma", num(fx.Blur)))
	}
	eq := Filter{Name: "eq"}
	if fx.Brightness != 0 {
		eq = eq.With("brightness", num(clamp(fx.Brightness/100, -1, 1)))
	}
	if fx.Contrast != 0 && fx.Contrast != 100 {
		eq = eq.With("contrast", num(fx.Contrast/100))
	}
	if fx.Saturation != 0 && fx.Saturation != 100 {
		eq = eq.With("saturation", num(clamp(fx.Saturation/100, 0, 3)))
	}
	if len(eq.Args) > 0 {
		out = append(out, eq)
	}
	return out
}

func (c *compiler) opacity(e domain.Element) []Filter {
	if a := e.Alpha(); a < 1 {
		return []Filter{F("colorchannelmixer", "aa", num(a))}
	}
	return nil
}

// loop repeats an animated asset until it covers the element duration.
func (c *compiler) loop(e domain.Element) (Filter, bool) {
	src, ok := c.in.Sources[e.Media.Src]
	if !ok || src.Duration <= 0 {
		return Filter{}, false
	}
	if !e.Media.Loop && src.Duration >= e.Duration() {
		return Filter{}, false
	}
	rate := src.FrameRate
	if rate <= 0 {
		rate = 10
	}
	size := int(math.Ceil(src.Duration * rate))
	if size > 32767 {
		size = 32767
	}
	loops := int(math.Ceil(e.Duration()/src.Duration)) - 1
	if loops < 1 {
		return Filter{}, false
	}
	return F("loop", "loop", fmt.Sprint(loops), "size", fmt.Sprint(size), "start", "0"), true
}

// overlay composites v over base during the element window. Slide
// transitions move the overlay position on global time.
func (c *compiler) overlay(g *Graph, base, v Pad, e domain.Element) Pad {
	x, y, _, _ := c.placement(e)
	xExpr, yExpr := num(x), num(y)

	for _, a := range transition.Scheduled(c.in.Project, e) {
		if e.Kind != domain.KindMedia || transition.Offline(a.Kind) != transition.Slide {
			continue
		}
		dx, dy := slideVector(a.Direction)
		p := progressExpr(a.Window.Start, a.Window.Len())
		var offset string
		if a.Role == transition.RoleIn {
			offset = fmt.Sprintf("(1-%s)", p)
			dx, dy = -dx, -dy
		} else {
			offset = p
		}
		if dx != 0 {
			xExpr += fmt.Sprintf("+%s*W*%s", num(dx), offset)
		}
		if dy != 0 {
			yExpr += fmt.Sprintf("+%s*H*%s", num(dy), offset)
		}
	}

	mode := "yuv420"
	if c.alpha {
		mode = "rgb"
	}
	f := Filter{Name: "overlay"}.
		Expr("x", xExpr).
		Expr("y", yExpr).
		With("eof_action", "pass").
		With("format", mode).
		Expr("enable", fmt.Sprintf("between(t,%s,%s)", num(e.PositionStart), num(e.PositionEnd)))

	return g.Add(NodeOverlay, "ov", []Pad{base, v}, f)
}

func slideVector(direction string) (float64, float64) {
	switch direction {
	case "right":
		return 1, 0
	case "up":
		return 0, -1
	case "down":
		return 0, 1
	default:
		return -1, 0
	}
}

func (c *compiler) audioChain(g *Graph, e domain.Element, idx int) Pad {
	m := e.Media
	end := timeline.SourceTime(*m, e.Duration())
	filters := []Filter{
		F("atrim", "start", num(m.StartTime), "end", num(end)),
		Filter{Name: "asetpts"}.Expr("expr", "PTS-STARTPTS"),
	}
	filters = append(filters, atempo(m.Speed())...)

	delay := int64(math.Round(e.PositionStart * 1000))
	filters = append(filters, F("adelay", "delays", fmt.Sprint(delay), "all", "1"))
	filters = append(filters, F("volume", "volume", num(m.Gain())))

	if m.FadeIn > 0 {
		filters = append(filters, F("afade", "t", "in", "st", num(e.PositionStart), "d", num(m.FadeIn)))
	}
	if m.FadeOut > 0 {
		filters = append(filters, F("afade", "t", "out", "st", num(math.Max(e.PositionEnd-m.FadeOut, e.PositionStart)), "d", num(m.FadeOut)))
	}
	return g.Add(NodeAudio, "a", []Pad{StreamPad(idx, "a")}, filters...)
}

// atempo splits a speed factor into steps inside the filter's 0.5-2 range.
func atempo(speed float64) []Filter {
	var out []Filter
	for speed > 2 {
		out = append(out, F("atempo", "tempo", "2"))
		speed /= 2
	}
	for speed < 0.5 {
		out = append(out, F("atempo", "tempo", "0.5"))
		speed /= 0.5
	}
	if math.Abs(speed-1) > 1e-9 {
		out = append(out, F("atempo", "tempo", num(speed)))
	}
	return out
}

func (c *compiler) font(family string) string {
	if family == "" {
		return ""
	}
	return c.in.Fonts[family]
}

func (c *compiler) text(g *Graph, base Pad, e domain.Element) Pad {
	t := e.Text
	x, y, w, _ := c.placement(e)
	size := t.FontSize
	if size <= 0 {
		size = defaultFontSize
	}
	block := textfx.Layout(t.Text, w, size, t.LineHeight, t.Background.Padding, textfx.FixedAdvance{FontSize: size})

	f := c.drawtext(strings.Join(block.Lines, "\n"), t.FontFamily, size, t.Color, e.Alpha())
	f = f.Expr("x", alignExpr(t.Align, x, w)).Expr("y", num(y))
	if lh := block.LineHeight - size; lh > 0 {
		f = f.With("line_spacing", num(lh))
	}
	if t.StrokeWidth > 0 {
		f = f.With("borderw", num(t.StrokeWidth)).With("bordercolor", Color(t.StrokeColor, 1))
	}
	if t.Background.Shape != domain.ShapeNone && t.Background.Color != "" {
		f = f.With("box", "1").With("boxcolor", Color(t.Background.Color, 1)).With("boxborderw", num(t.Background.Padding))
	}
	if alpha := textAlpha(t, e); alpha != "" {
		f = f.Expr("alpha", alpha)
	}
	f = f.Expr("enable", fmt.Sprintf("between(t,%s,%s)", num(e.PositionStart), num(e.PositionEnd)))

	return g.Add(NodeText, "txt", []Pad{base}, f)
}

// textAlpha renders every in and out animation as a fade; richer text
// animations only exist in the preview.
func textAlpha(t *domain.Text, e domain.Element) string {
	var terms []string
	if a := t.AnimationIn; a != nil && a.Duration > 0 {
		terms = append(terms, progressExpr(e.PositionStart, a.Duration))
	}
	if a := t.AnimationOut; a != nil && a.Duration > 0 {
		terms = append(terms, fmt.Sprintf("clip((%s-t)/%s,0,1)", num(e.PositionEnd), num(a.Duration)))
	}
	return strings.Join(terms, "*")
}

func alignExpr(align string, x, w float64) string {
	switch align {
	case "center":
		return fmt.Sprintf("%s+(%s-text_w)/2", num(x), num(w))
	case "right":
		return fmt.Sprintf("%s+%s-text_w", num(x), num(w))
	default:
		return num(x)
	}
}

func (c *compiler) drawtext(text, family string, size float64, color string, alpha float64) Filter {
	f := Filter{Name: "drawtext"}
	if path := c.font(family); path != "" {
		f = f.With("fontfile", path)
	}
	if color == "" {
		color = "#FFFFFF"
	}
	return f.
		With("text", EscapeText(text)).
		With("fontsize", num(size)).
		With("fontcolor", Color(color, alpha))
}

// captions burns each cue of the track in. Typewriter tracks reveal one
// word at a time; every other style is drawn plain.
func (c *compiler) captions(g *Graph, base Pad, e domain.Element) Pad {
	track := e.Caption
	style := track.Style
	x, _, w, _ := c.placement(e)
	size := style.FontSize
	if size <= 0 {
		size = defaultFontSize
	}

	for _, cue := range track.Captions {
		start := math.Max(cue.Start(), e.PositionStart)
		end := math.Min(cue.End(), e.PositionEnd)
		if end <= start {
			continue
		}
		tokens := caption.Tokens(cue, track.Rate())
		if len(tokens) == 0 {
			continue
		}

		if caption.Offline(track.AnimationStyle) == domain.StyleTypewriter {
			for k := range tokens {
				ws := math.Max(tokens[k].Start, start)
				we := end
				if k+1 < len(tokens) {
					we = math.Min(tokens[k+1].Start, end)
				}
				if we <= ws {
					continue
				}
				base = c.captionText(g, base, joinTokens(tokens[:k+1]), style, size, x, w, e.Alpha(), ws, we)
			}
			continue
		}
		base = c.captionText(g, base, joinTokens(tokens), style, size, x, w, e.Alpha(), start, end)
	}
	return base
}

func joinTokens(tokens []domain.WordToken) string {
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.Text
	}
	return strings.Join(words, " ")
}

func (c *compiler) captionText(g *Graph, base Pad, text string, style domain.CaptionStyle, size, x, w, alpha, start, end float64) Pad {
	lines := textfx.Wrap(text, w*0.9, textfx.FixedAdvance{FontSize: size})
	f := c.drawtext(strings.Join(lines, "\n"), style.FontFamily, size, style.Color, alpha)
	f = f.Expr("x", alignExpr("center", x, w))

	switch style.Position {
	case "top":
		f = f.Expr("y", fmt.Sprintf("h*%s", num(captionMargin)))
	case "center":
		f = f.Expr("y", "(h-text_h)/2")
	default:
		f = f.Expr("y", fmt.Sprintf("h-text_h-h*%s", num(captionMargin)))
	}
	if style.StrokeWidth > 0 {
		f = f.With("borderw", num(style.StrokeWidth)).With("bordercolor", Color(style.StrokeColor, 1))
	}
	if style.Background != "" {
		f = f.With("box", "1").With("boxcolor", Color(style.Background, 1)).With("boxborderw", "12")
	}
	f = f.Expr("enable", fmt.Sprintf("between(t,%s,%s)", num(start), num(end)))
	return g.Add(NodeText, "cap", []Pad{base}, f)
}

// parseChain turns a short "name=k=v:k=v,name" chain from a lookup table into
// filters.
func parseChain(chain string) []Filter {
	var out []Filter
	for _, part := range strings.Split(chain, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, rest, _ := strings.Cut(part, "=")
		f := Filter{Name: name}
		if rest != "" {
			for _, opt := range strings.Split(rest, ":") {
				k, v, ok := strings.Cut(opt, "=")
				if ok {
					f.Args = append(f.Args, Arg{Key: k, Value: v})
				} else {
					f.Args = append(f.Args, Arg{Value: k})
				}
			}
		}
		out = append(out, f)
	}
	return out
}
