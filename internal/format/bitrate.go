package format

import "github.com/eleven-am/montage/internal/domain"

type bounds struct {
	min int
	max int
}

var ladderHeights = []int{2160, 1080, 720, 480, 360}

var bitrateBounds = map[int]bounds{
	2160: {min: 8000000, max: 20000000},
	1080: {min: 2000000, max: 8000000},
	720:  {min: 1000000, max: 4000000},
	480:  {min: 500000, max: 2000000},
	360:  {min: 300000, max: 1000000},
}

// EstimateBitrate picks a hardware encoder target for the output size. The
// base rate comes from the height ladder and is scaled by pixel count
// relative to 16:9 and by the quality factor, then clamped to the ladder
// bounds.
func EstimateBitrate(width, height int, q domain.Quality) int {
	rung := ladderRung(height)
	base := baseBitrate(height)

	if width > 0 && height > 0 {
		ref := float64(height) * 16 / 9 * float64(height)
		base = int(float64(base) * float64(width*height) / ref)
	}
	base = int(float64(base) * Quality(q).BitrateFactor)

	return clampBitrate(rung, base)
}

func ladderRung(height int) int {
	for _, h := range ladderHeights {
		if height >= h {
			return h
		}
	}
	return ladderHeights[len(ladderHeights)-1]
}

func clampBitrate(height, bitrate int) int {
	b, ok := bitrateBounds[height]
	if !ok {
		return bitrate
	}
	if bitrate < b.min {
		return b.min
	}
	if bitrate > b.max {
		return b.max
	}
	return bitrate
}

func baseBitrate(height int) int {
	switch {
	case height >= 2160:
		return 15000000
	case height >= 1080:
		return 5000000
	case height >= 720:
		return 2500000
	case height >= 480:
		return 1200000
	default:
		return 800000
	}
}

// EvenSize rounds dimensions up to even values as 4:2:0 encoders require.
func EvenSize(width, height int) (int, int) {
	if width%2 != 0 {
		width++
	}
	if height%2 != 0 {
		height++
	}
	return width, height
}
