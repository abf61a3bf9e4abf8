package zoom

import "math"

// lensDivisor shapes the experimental lens easing.
const lensDivisor = 66667.0

// Ease maps step i of steps to animation progress in [0, 1]. zoomingIn only
// affects the lens curve, which is mirrored for zoom-outs.
func Ease(e Easing, steps, i int, zoomingIn bool) float64 {
	if steps <= 0 {
		return 1
	}
	i = clampInt(i, 0, steps)
	t := float64(i) / float64(steps)
	switch e {
	case Quadratic:
		if t < 0.5 {
			return 2 * t * t
		}
		u := -2*t + 2
		return 1 - u*u/2
	case Bezier:
		return t * t * (3 - 2*t)
	case Parametric:
		sq := t * t
		return sq / (2*(sq-t) + 1)
	case Lens:
		if zoomingIn {
			return lens(steps, i)
		}
		return 1 - lens(steps, steps-i)
	}
	return t
}

func lens(steps, i int) float64 {
	t := float64(i) / float64(steps)
	factor := math.Pow(1+float64(steps)/lensDivisor, float64(i))
	if t < 0.5 {
		t /= factor
	} else {
		t *= factor
	}
	return math.Min(math.Max(t, 0), 1)
}
