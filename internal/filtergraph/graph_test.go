package filtergraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterStringEscapesValues(t *testing.T) {
	assert.Equal(t, `drawtext=text=a\\:b`, F("drawtext", "text", "a:b").String())
	assert.Equal(t, `drawtext=text=it\\\'s`, F("drawtext", "text", "it's").String())
	assert.Equal(t, `drawtext=text=x\,y`, F("drawtext", "text", "x,y").String())
	assert.Equal(t, `drawtext=text=\\\\`, F("drawtext", "text", `\`).String())
}

func TestFilterExprIsQuoted(t *testing.T) {
	f := Filter{Name: "overlay"}.Expr("enable", "between(t,1,2)")
	assert.Equal(t, `overlay=enable='between(t,1,2)'`, f.String())
}

func TestEscapeText(t *testing.T) {
	assert.Equal(t, `50\% off`, EscapeText("50% off"))
	assert.Equal(t, `a\\b`, EscapeText(`a\b`))
}

func TestGraphLabelsAndString(t *testing.T) {
	g := NewGraph()
	base := g.Add(NodeSource, "base", nil, F("color", "c", "black@1", "s", "2x2"))
	v := g.Add(NodeVideo, "v", []Pad{StreamPad(0, "v")}, F("format", "pix_fmts", "rgba"))
	out := g.Add(NodeOverlay, "ov", []Pad{base, v}, F("overlay", "x", "0", "y", "0"))

	assert.Equal(t, Pad("ov0"), out)
	assert.Equal(t, "color=c=black@1:s=2x2[base0];[0:v]format=pix_fmts=rgba[v0];[base0][v0]overlay=x=0:y=0[ov0]", g.String())
	assert.NoError(t, g.Validate())
	assert.Equal(t, 1, g.Count(NodeOverlay))
}

func TestGraphValidateRejectsReuse(t *testing.T) {
	g := NewGraph()
	a := g.Add(NodeSource, "base", nil, F("color"))
	g.Add(NodeVideo, "v", []Pad{a}, F("null"))
	g.Add(NodeVideo, "v", []Pad{a}, F("null"))
	require.Error(t, g.Validate())

	g = NewGraph()
	g.Add(NodeVideo, "v", []Pad{"missing"}, F("null"))
	require.Error(t, g.Validate())
}

func TestColor(t *testing.T) {
	assert.Equal(t, "0xFF0000@1", Color("#f00", 1))
	assert.Equal(t, "0x00FF00@0.5", Color("#00ff00", 0.5))
	assert.Equal(t, "0x0000FF@0.501961", Color("#0000ff80", 1))
	assert.Equal(t, "white@0.25", Color("white", 0.25))
	assert.Equal(t, "0x000000@1", Color("", 1))
}

func TestParseChain(t *testing.T) {
	fs := parseChain("format=nv12,hwupload=extra_hw_frames=64")
	require.Len(t, fs, 2)
	assert.Equal(t, "format=nv12", fs[0].String())
	assert.Equal(t, "hwupload=extra_hw_frames=64", fs[1].String())
}
