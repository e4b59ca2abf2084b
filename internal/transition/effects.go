package transition

import "math"

const (
	maxBlur     = 20.0
	maxPixelate = 40.0
	maxRipple   = 0.05
	zoomFactor  = 0.5
)

// sign returns the horizontal and vertical unit vector a direction moves
// content along. Unknown directions move left.
func sign(direction string) (float64, float64) {
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

func fade(p float64, _ string, role Role) Params {
	out := Identity()
	out.Opacity = visibility(p, role)
	return out
}

func dissolve(p float64, dir string, role Role) Params {
	out := fade(p, dir, role)
	out.Blur = math.Sin(math.Pi*p) * 2
	return out
}

// slide moves the incoming clip from the opposite edge to rest while the
// outgoing clip leaves in the direction of travel.
func slide(p float64, dir string, role Role) Params {
	dx, dy := sign(dir)
	out := Identity()
	if role == RoleIn {
		out.TranslateX = -dx * (1 - p)
		out.TranslateY = -dy * (1 - p)
	} else {
		out.TranslateX = dx * p
		out.TranslateY = dy * p
	}
	return out
}

func wipe(p float64, dir string, role Role) Params {
	out := Identity()
	v := visibility(p, role)
	dx, dy := sign(dir)
	// the wipe edge travels along dir; the incoming clip is revealed behind it
	switch {
	case dx > 0:
		out.Clip = wipeRect(v, role == RoleIn, true, false)
	case dx < 0:
		out.Clip = wipeRect(v, role == RoleIn, true, true)
	case dy > 0:
		out.Clip = wipeRect(v, role == RoleIn, false, false)
	default:
		out.Clip = wipeRect(v, role == RoleIn, false, true)
	}
	return out
}

// wipeRect builds a strip covering share v of one axis. reverse anchors the
// strip at the far edge; the outgoing role anchors opposite to the incoming.
func wipeRect(v float64, incoming, horizontal, reverse bool) Rect {
	far := reverse == incoming
	offset := 0.0
	if far {
		offset = 1 - v
	}
	if horizontal {
		return Rect{X: offset, Y: 0, W: v, H: 1}
	}
	return Rect{X: 0, Y: offset, W: 1, H: v}
}

// flip folds the outgoing clip to an edge-on line during the first half and
// unfolds the incoming clip during the second.
func flip(p float64, dir string, role Role) Params {
	out := Identity()
	var s float64
	if role == RoleOut {
		s = 1 - 2*p
	} else {
		s = 2*p - 1
	}
	if s <= 0 {
		out.Opacity = 0
		s = 0
	}
	if dir == "up" || dir == "down" {
		out.ScaleY = s
	} else {
		out.ScaleX = s
	}
	return out
}

func masked(mask Mask) Func {
	return func(p float64, _ string, role Role) Params {
		out := Identity()
		out.Mask = mask
		out.MaskCoverage = visibility(p, role)
		return out
	}
}

func zoomIn(p float64, _ string, role Role) Params {
	out := Identity()
	var s float64
	if role == RoleIn {
		s = zoomFactor + zoomFactor*p
	} else {
		s = 1 + p
	}
	out.ScaleX, out.ScaleY = s, s
	out.Opacity = visibility(p, role)
	return out
}

func zoomOut(p float64, _ string, role Role) Params {
	out := Identity()
	var s float64
	if role == RoleIn {
		s = 2 - p
	} else {
		s = 1 - zoomFactor*p
	}
	out.ScaleX, out.ScaleY = s, s
	out.Opacity = visibility(p, role)
	return out
}

func blur(p float64, _ string, role Role) Params {
	out := Identity()
	out.Blur = (1 - visibility(p, role)) * maxBlur
	out.Opacity = visibility(p, role)
	return out
}

func pixelate(p float64, _ string, role Role) Params {
	out := Identity()
	// block size peaks mid-transition so the hand-off happens at full coarseness
	out.Pixelate = 1 + math.Sin(math.Pi*p)*(maxPixelate-1)
	if role == RoleIn {
		out.Opacity = p
		if p >= 0.5 {
			out.Opacity = 1
		}
	} else if p >= 0.5 {
		out.Opacity = 0
	}
	return out
}

func spin(p float64, dir string, role Role) Params {
	out := Identity()
	turn := 360.0
	if dir == "left" {
		turn = -turn
	}
	v := visibility(p, role)
	out.Rotation = (1 - v) * turn
	out.ScaleX, out.ScaleY = v, v
	out.Opacity = v
	return out
}

func squeeze(p float64, dir string, role Role) Params {
	out := Identity()
	v := visibility(p, role)
	if dir == "up" || dir == "down" {
		out.ScaleY = v
	} else {
		out.ScaleX = v
	}
	return out
}

func rotate(p float64, dir string, role Role) Params {
	out := Identity()
	angle := 90.0
	if dir == "left" {
		angle = -angle
	}
	if role == RoleIn {
		out.Rotation = -angle * (1 - p)
	} else {
		out.Rotation = angle * p
	}
	out.Opacity = visibility(p, role)
	return out
}

func ripple(p float64, _ string, role Role) Params {
	out := Identity()
	out.Ripple = math.Sin(math.Pi*p) * maxRipple
	out.Opacity = visibility(p, role)
	return out
}
