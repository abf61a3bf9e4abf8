package zoom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned for resize hints that do not follow the zoom grammar.
var ErrSyntax = errors.New("invalid zoom expression")

func syntaxErr(s, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrSyntax, s, reason)
}

// Parse reads a resize hint:
//
//	zoom     := view | animated
//	animated := view? '-' view? ('#' frames)? ('$' easing)?
//	view     := n/total | n/XxY | p% | p%@quadrant | quadrant@p%
func Parse(s string) (Expr, error) {
	src := strings.TrimSpace(s)
	if src == "" {
		return nil, syntaxErr(s, "empty")
	}
	rest := src

	var easing Easing
	if before, after, ok := strings.Cut(rest, "$"); ok {
		e, err := parseEasing(after)
		if err != nil {
			return nil, syntaxErr(s, err.Error())
		}
		easing, rest = e, before
	}

	frames, hasFrames := 0, false
	if before, after, ok := strings.Cut(rest, "#"); ok {
		n, err := strconv.Atoi(after)
		if err != nil || n < 0 {
			return nil, syntaxErr(s, "frame count must be a non-negative integer")
		}
		frames, hasFrames, rest = n, true, before
	}

	from, to, animated := strings.Cut(rest, "-")
	if !animated {
		if hasFrames || easing != "" {
			return nil, syntaxErr(s, "timing needs an animation")
		}
		v, err := parseView(rest)
		if err != nil {
			return nil, syntaxErr(s, err.Error())
		}
		return v, nil
	}

	a := Animated{Frames: frames, HasFrames: hasFrames, Easing: easing}
	if from != "" {
		v, err := parseView(from)
		if err != nil {
			return nil, syntaxErr(s, err.Error())
		}
		a.From = v
	}
	if to != "" {
		v, err := parseView(to)
		if err != nil {
			return nil, syntaxErr(s, err.Error())
		}
		a.To = v
	}
	return a, nil
}

// ParseView reads a static view; animations are rejected.
func ParseView(s string) (View, error) {
	e, err := Parse(s)
	if err != nil {
		return nil, err
	}
	v, ok := e.(View)
	if !ok {
		return nil, syntaxErr(s, "expected a static view")
	}
	return v, nil
}

func parseEasing(s string) (Easing, error) {
	switch e := Easing(strings.ToUpper(s)); e {
	case Linear, Quadratic, Bezier, Parametric, Lens:
		return e, nil
	}
	return "", fmt.Errorf("unknown easing %q", s)
}

func parseView(s string) (View, error) {
	if a, b, ok := strings.Cut(s, "@"); ok {
		if strings.HasSuffix(a, "%") {
			p, err := parsePercent(a)
			if err != nil {
				return nil, err
			}
			q, err := parseQuadrant(b)
			if err != nil {
				return nil, err
			}
			return Combined{Percent: p, Quadrant: q, PercentFirst: true}, nil
		}
		q, err := parseQuadrant(a)
		if err != nil {
			return nil, err
		}
		p, err := parsePercent(b)
		if err != nil {
			return nil, err
		}
		return Combined{Percent: p, Quadrant: q}, nil
	}
	if strings.HasSuffix(s, "%") {
		return parsePercent(s)
	}
	return parseQuadrant(s)
}

func parsePercent(s string) (Percent, error) {
	digits, ok := strings.CutSuffix(s, "%")
	if !ok {
		return Percent{}, fmt.Errorf("%q is not a percent", s)
	}
	p, err := strconv.Atoi(digits)
	if err != nil {
		return Percent{}, fmt.Errorf("%q is not a percent", s)
	}
	if p < 100 {
		return Percent{}, fmt.Errorf("percent %d below 100", p)
	}
	return Percent{P: p}, nil
}

// MaxGridSide bounds the columns and rows of a quadrant grid.
const MaxGridSide = 100

func parseQuadrant(s string) (Quadrant, error) {
	ns, ts, ok := strings.Cut(s, "/")
	if !ok {
		return Quadrant{}, fmt.Errorf("%q is not a quadrant", s)
	}
	n, err := strconv.Atoi(ns)
	if err != nil {
		return Quadrant{}, fmt.Errorf("%q is not a quadrant", s)
	}
	q := Quadrant{N: n}
	if xs, ys, grid := strings.Cut(strings.ToUpper(ts), "X"); grid {
		cols, err1 := strconv.Atoi(xs)
		rows, err2 := strconv.Atoi(ys)
		if err1 != nil || err2 != nil || cols < 1 || rows < 1 || cols > MaxGridSide || rows > MaxGridSide {
			return Quadrant{}, fmt.Errorf("bad grid %q", ts)
		}
		q.Grid, q.Cols, q.Rows, q.Total = true, cols, rows, cols*rows
	} else {
		total, err := strconv.Atoi(ts)
		if err != nil || total < 1 || total > MaxGridSide*MaxGridSide {
			return Quadrant{}, fmt.Errorf("bad quadrant total %q", ts)
		}
		side := isqrt(total)
		if side*side != total {
			return Quadrant{}, fmt.Errorf("quadrant total %d is not a square", total)
		}
		q.Total, q.Cols, q.Rows = total, side, side
	}
	if n < 1 || n > q.Total {
		return Quadrant{}, fmt.Errorf("quadrant %d outside 1..%d", n, q.Total)
	}
	return q, nil
}
