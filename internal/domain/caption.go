package domain

type AnimationStyle string

const (
	StylePlain      AnimationStyle = "plain"
	StyleKaraoke    AnimationStyle = "karaoke"
	StylePop        AnimationStyle = "pop"
	StyleWave       AnimationStyle = "wave"
	StyleRainbow    AnimationStyle = "rainbow"
	StyleGlitch     AnimationStyle = "glitch"
	StyleFire       AnimationStyle = "fire"
	StyleLiquid     AnimationStyle = "liquid"
	StyleTypewriter AnimationStyle = "typewriter"
)

const DefaultWordsPerSecond = 2.5

// WordToken times are in seconds on the timeline.
type WordToken struct {
	Text  string
	Start float64
	End   float64
}

type HighlightSpan struct {
	StartWord int
	EndWord   int
	Color     string
}

type Caption struct {
	ID         string
	Text       string
	StartMs    int64
	EndMs      int64
	Words      []WordToken
	Highlights []HighlightSpan
}

func (c Caption) Start() float64 { return float64(c.StartMs) / 1000 }
func (c Caption) End() float64   { return float64(c.EndMs) / 1000 }

type CaptionStyle struct {
	FontFamily     string
	FontSize       float64
	Color          string
	HighlightColor string
	StrokeColor    string
	StrokeWidth    float64
	Background     string
	Position       string
}

type CaptionTrack struct {
	ID             string
	Captions       []Caption
	Style          CaptionStyle
	AnimationStyle AnimationStyle
	WordsPerSecond float64
}

func (t CaptionTrack) Rate() float64 {
	if t.WordsPerSecond <= 0 {
		return DefaultWordsPerSecond
	}
	return t.WordsPerSecond
}
