package filtergraph

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Color converts a CSS style colour ("#RGB", "#RRGGBB", "#RRGGBBAA" or a
// name) into ffmpeg colour syntax with the given opacity multiplied in.
func Color(css string, alpha float64) string {
	c := strings.TrimSpace(css)
	if c == "" {
		c = "#000000"
	}
	if !strings.HasPrefix(c, "#") {
		return fmt.Sprintf("%s@%s", c, num(clamp(alpha, 0, 1)))
	}

	hex := c[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 8 {
		if a, err := strconv.ParseUint(hex[6:], 16, 8); err == nil {
			alpha *= float64(a) / 255
		}
		hex = hex[:6]
	}
	if len(hex) != 6 {
		return fmt.Sprintf("black@%s", num(clamp(alpha, 0, 1)))
	}
	return fmt.Sprintf("0x%s@%s", strings.ToUpper(hex), num(clamp(alpha, 0, 1)))
}

// num formats seconds and factors with at most six decimals.
func num(v float64) string {
	v = math.Round(v*1e6) / 1e6
	if v == 0 {
		v = 0 // drop negative zero
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
