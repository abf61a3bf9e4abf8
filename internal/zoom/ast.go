// Package zoom implements the resize hint language: a parser and printer for
// zoom expressions, the view geometry they describe relative to the project's
// resize/crop baseline, and the per-frame parameters of animated zooms.
package zoom

import (
	"math"
	"strconv"
	"strings"
)

// Expr is a parsed resize hint: a View or an Animated zoom.
type Expr interface {
	String() string
	expr()
}

// View is a single static framing.
type View interface {
	Expr
	view()
}

// Quadrant selects cell N of a grid. Plain form "n/total" uses a square grid
// of sqrt(total) cells per side; grid form "n/XxY" uses X columns and Y rows.
type Quadrant struct {
	N     int
	Total int
	Cols  int
	Rows  int
	Grid  bool
}

// Percent magnifies the baseline view around its center; P >= 100.
type Percent struct {
	P int
}

// Combined magnifies by Percent around the center of Quadrant's cell.
type Combined struct {
	Percent      Percent
	Quadrant     Quadrant
	PercentFirst bool
}

// Easing selects how an animation progresses over its frames.
type Easing string

const (
	Linear     Easing = "L"
	Quadratic  Easing = "Q"
	Bezier     Easing = "B"
	Parametric Easing = "P"
	Lens       Easing = "Z"
)

// Animated moves from one view to another. A nil From or To stands for the
// saved view; when both are nil the animation ends at the default view.
type Animated struct {
	From      View
	To        View
	Frames    int
	HasFrames bool
	Easing    Easing
}

func (Quadrant) expr() {}
func (Percent) expr()  {}
func (Combined) expr() {}
func (Animated) expr() {}

func (Quadrant) view() {}
func (Percent) view()  {}
func (Combined) view() {}

// dims returns the column count, row count and magnitude of the quadrant.
func (q Quadrant) dims() (cols, rows, magnitude int) {
	if q.Grid {
		return q.Cols, q.Rows, max(q.Cols, q.Rows)
	}
	side := isqrt(q.Total)
	return side, side, side
}

func (q Quadrant) String() string {
	if q.Grid {
		return strconv.Itoa(q.N) + "/" + strconv.Itoa(q.Cols) + "X" + strconv.Itoa(q.Rows)
	}
	return strconv.Itoa(q.N) + "/" + strconv.Itoa(q.Total)
}

func (p Percent) String() string {
	return strconv.Itoa(p.P) + "%"
}

func (c Combined) String() string {
	if c.PercentFirst {
		return c.Percent.String() + "@" + c.Quadrant.String()
	}
	return c.Quadrant.String() + "@" + c.Percent.String()
}

func (a Animated) String() string {
	var b strings.Builder
	if a.From != nil {
		b.WriteString(a.From.String())
	}
	b.WriteByte('-')
	if a.To != nil {
		b.WriteString(a.To.String())
	}
	if a.HasFrames {
		b.WriteByte('#')
		b.WriteString(strconv.Itoa(a.Frames))
	}
	if a.Easing != "" {
		b.WriteByte('$')
		b.WriteString(string(a.Easing))
	}
	return b.String()
}

func isqrt(n int) int {
	r := int(math.Sqrt(float64(n)))
	for r > 0 && r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}
