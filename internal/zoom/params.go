package zoom

// ParamFunc returns the resize parameters for frame i of a scene.
type ParamFunc func(i int) Params

// Animation interpolates between two boxes over Steps frame steps. Frames at
// or beyond Steps hold To.
type Animation struct {
	From   Box
	To     Box
	Steps  int
	Easing Easing
}

// Box returns the interpolated view at frame i.
func (a Animation) Box(i int) Box {
	if a.Steps <= 0 || i >= a.Steps {
		return a.To
	}
	j := Ease(a.Easing, a.Steps, i, a.To.ResizeW > a.From.ResizeW)
	return Box{
		ResizeW: a.From.ResizeW + j*(a.To.ResizeW-a.From.ResizeW),
		ResizeH: a.From.ResizeH + j*(a.To.ResizeH-a.From.ResizeH),
		CenterX: a.From.CenterX + j*(a.To.CenterX-a.From.CenterX),
		CenterY: a.From.CenterY + j*(a.To.CenterY-a.From.CenterY),
	}
}

// Steps is the number of animation steps for a scene of frames frames when
// the hint asked for limit frames (0 meaning the whole scene).
func Steps(frames, limit int) int {
	if limit > 0 && limit < frames {
		return limit
	}
	return max(frames-1, 0)
}

// Result is a resolved resize hint for one scene.
type Result struct {
	Params   ParamFunc
	Saved    Box
	Animated bool
	Warnings []string
}

// Resolve turns a hint into per-frame parameters for a scene of frames
// frames. saved is the view left by the previous animated hint; Result.Saved
// is the view to carry into the next scene. A nil hint yields the baseline.
func Resolve(e Expr, b Baseline, saved Box, frames int) Result {
	switch e := e.(type) {
	case Animated:
		var warnings []string
		view := func(v View, fallback Box) Box {
			if v == nil {
				return fallback
			}
			box, w := b.Resolve(v)
			warnings = append(warnings, w...)
			return box
		}
		to := saved
		if e.From == nil && e.To == nil {
			to = b.Default()
		}
		anim := Animation{
			From:   view(e.From, saved),
			To:     view(e.To, to),
			Steps:  Steps(frames, e.Frames),
			Easing: e.Easing,
		}
		return Result{
			Params:   func(i int) Params { return b.Params(anim.Box(i)) },
			Saved:    anim.To,
			Animated: true,
			Warnings: warnings,
		}
	case View:
		box, warnings := b.Resolve(e)
		p := b.Params(box)
		return Result{Params: func(int) Params { return p }, Saved: saved, Warnings: warnings}
	}
	p := b.Params(b.Default())
	return Result{Params: func(int) Params { return p }, Saved: saved}
}
