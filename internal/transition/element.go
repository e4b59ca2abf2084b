package transition

import (
	"github.com/eleven-am/montage/internal/domain"
	"github.com/eleven-am/montage/internal/timeline"
)

// Active describes one transition affecting an element at some instant.
type Active struct {
	Kind      Kind
	Direction string
	Role      Role
	Window    Window
	Progress  float64
}

// Scheduled lists the entrance, exit and clip-to-clip transition windows of
// e. The from clip of a transition plays the out role and the to clip the in
// role. Progress is left at zero.
func Scheduled(p domain.Project, e domain.Element) []Active {
	var out []Active
	clip := timeline.IntervalOf(e)

	if e.Media != nil {
		if env := e.Media.Entrance; env != nil && env.Kind != "" {
			out = append(out, Active{Kind: Kind(env.Kind), Direction: env.Direction, Role: RoleIn, Window: Entrance(clip, env.Duration)})
		}
		if env := e.Media.Exit; env != nil && env.Kind != "" {
			out = append(out, Active{Kind: Kind(env.Kind), Direction: env.Direction, Role: RoleOut, Window: Exit(clip, env.Duration)})
		}
	}

	incoming, outgoing := timeline.TransitionsFor(p, e.ID)
	for _, tr := range incoming {
		if a, ok := clipTransition(p, tr, RoleIn); ok {
			out = append(out, a)
		}
	}
	for _, tr := range outgoing {
		if a, ok := clipTransition(p, tr, RoleOut); ok {
			out = append(out, a)
		}
	}
	return out
}

// ActiveAt returns the scheduled transitions of e running at t with their
// progress filled in.
func ActiveAt(p domain.Project, e domain.Element, t float64) []Active {
	var out []Active
	for _, a := range Scheduled(p, e) {
		prog, ok := a.Window.Progress(t)
		if !ok {
			continue
		}
		a.Progress = prog
		out = append(out, a)
	}
	return out
}

func clipTransition(p domain.Project, tr domain.Transition, role Role) (Active, bool) {
	from, ok := p.Element(tr.FromID)
	if !ok {
		return Active{}, false
	}
	to, ok := p.Element(tr.ToID)
	if !ok {
		return Active{}, false
	}
	w := Between(timeline.IntervalOf(from), timeline.IntervalOf(to), tr.Seconds())
	return Active{Kind: Kind(tr.Kind), Direction: tr.Direction, Role: role, Window: w}, true
}

// ParamsAt folds every transition of e running at t into one parameter set.
func ParamsAt(p domain.Project, e domain.Element, t float64) Params {
	out := Identity()
	for _, a := range ActiveAt(p, e, t) {
		out = Combine(out, Compute(a.Kind, a.Progress, a.Direction, a.Role))
	}
	return out
}
