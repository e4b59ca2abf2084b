package canvas

import (
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ParseColor reads "#RGB", "#RGBA", "#RRGGBB", "#RRGGBBAA", rgb()/rgba() and
// CSS colour names. Anything else is opaque black.
func ParseColor(css string) color.NRGBA {
	c := strings.ToLower(strings.TrimSpace(css))
	switch {
	case c == "transparent":
		return color.NRGBA{}
	case strings.HasPrefix(c, "#"):
		return parseHex(c[1:])
	case strings.HasPrefix(c, "rgb"):
		return parseFunc(c)
	}
	if v, ok := colornames.Map[c]; ok {
		return color.NRGBA{R: v.R, G: v.G, B: v.B, A: 255}
	}
	return color.NRGBA{A: 255}
}

func parseHex(hex string) color.NRGBA {
	if len(hex) == 3 || len(hex) == 4 {
		long := make([]byte, 0, len(hex)*2)
		for i := 0; i < len(hex); i++ {
			long = append(long, hex[i], hex[i])
		}
		hex = string(long)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{A: 255}
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{A: 255}
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
}

func parseFunc(c string) color.NRGBA {
	open, end := strings.IndexByte(c, '('), strings.LastIndexByte(c, ')')
	if open < 0 || end < open {
		return color.NRGBA{A: 255}
	}
	parts := strings.Split(c[open+1:end], ",")
	if len(parts) < 3 {
		return color.NRGBA{A: 255}
	}
	ch := func(s string) uint8 {
		v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return uint8(math.Max(0, math.Min(255, v)))
	}
	out := color.NRGBA{R: ch(parts[0]), G: ch(parts[1]), B: ch(parts[2]), A: 255}
	if len(parts) > 3 {
		a, _ := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		out.A = uint8(math.Round(math.Max(0, math.Min(1, a)) * 255))
	}
	return out
}

func withAlpha(c color.NRGBA, a float64) color.NRGBA {
	c.A = uint8(math.Round(float64(c.A) * math.Max(0, math.Min(1, a))))
	return c
}
