package zoom

import (
	"fmt"
	"math"
)

// MaxSelfFitZoom is the highest percent tried when fitting a combined view.
const MaxSelfFitZoom = 1000

// Baseline is the project's whole-scene resize and crop. Negative offsets
// center the crop.
type Baseline struct {
	ResizeW int
	ResizeH int
	CropW   int
	CropH   int
	OffsetX int
	OffsetY int
}

// Box is a resolved view: the frame is resized to ResizeW x ResizeH and the
// crop window is centered on (CenterX, CenterY) in resized coordinates.
type Box struct {
	ResizeW float64
	ResizeH float64
	CenterX float64
	CenterY float64
}

// Params are the per-frame resize and crop settings handed to the resizer.
type Params struct {
	ResizeW int
	ResizeH int
	CropW   int
	CropH   int
	OffsetX int
	OffsetY int
}

// Center is the crop center of the baseline in resized coordinates.
func (b Baseline) Center() (float64, float64) {
	cx := float64(b.ResizeW) / 2
	cy := float64(b.ResizeH) / 2
	if b.OffsetX >= 0 {
		cx = float64(b.OffsetX) + float64(b.CropW)/2
	}
	if b.OffsetY >= 0 {
		cy = float64(b.OffsetY) + float64(b.CropH)/2
	}
	return cx, cy
}

// Default is the 100% view of the baseline.
func (b Baseline) Default() Box {
	cx, cy := b.Center()
	return Box{ResizeW: float64(b.ResizeW), ResizeH: float64(b.ResizeH), CenterX: cx, CenterY: cy}
}

// Params converts a box into integer resize and crop settings, keeping the
// crop window inside the resized frame.
func (b Baseline) Params(box Box) Params {
	rw := int(math.Round(box.ResizeW))
	rh := int(math.Round(box.ResizeH))
	ox := int(math.Round(box.CenterX - float64(b.CropW)/2))
	oy := int(math.Round(box.CenterY - float64(b.CropH)/2))
	return Params{
		ResizeW: rw,
		ResizeH: rh,
		CropW:   b.CropW,
		CropH:   b.CropH,
		OffsetX: clampInt(ox, 0, rw-b.CropW),
		OffsetY: clampInt(oy, 0, rh-b.CropH),
	}
}

// Resolve computes the box of a static view. Warnings report a combined
// view that could not be fitted and fell back to its quadrant.
func (b Baseline) Resolve(v View) (Box, []string) {
	switch v := v.(type) {
	case Quadrant:
		return b.clampBox(b.quadrant(v)), nil
	case Percent:
		return b.clampBox(b.percent(v.P)), nil
	case Combined:
		if box, ok := b.selfFit(v); ok {
			return box, nil
		}
		warn := fmt.Sprintf("zoom %s cannot fit the frame up to %d%%, using %s", v, MaxSelfFitZoom, v.Quadrant)
		return b.clampBox(b.quadrant(v.Quadrant)), []string{warn}
	}
	return b.Default(), nil
}

func (b Baseline) quadrant(q Quadrant) Box {
	cols, rows, mag := q.dims()
	m := float64(mag)
	cx, cy := b.cellCenter(q, cols, rows)
	return Box{
		ResizeW: float64(b.ResizeW) * m,
		ResizeH: float64(b.ResizeH) * m,
		CenterX: cx * m,
		CenterY: cy * m,
	}
}

func (b Baseline) cellCenter(q Quadrant, cols, rows int) (float64, float64) {
	row := (q.N - 1) / cols
	col := (q.N - 1) % cols
	cw := float64(b.ResizeW) / float64(cols)
	ch := float64(b.ResizeH) / float64(rows)
	return (float64(col) + 0.5) * cw, (float64(row) + 0.5) * ch
}

func (b Baseline) percent(p int) Box {
	m := float64(p) / 100
	cx, cy := b.Center()
	return Box{
		ResizeW: float64(b.ResizeW) * m,
		ResizeH: float64(b.ResizeH) * m,
		CenterX: cx * m,
		CenterY: cy * m,
	}
}

func (b Baseline) combined(c Combined, p int) Box {
	cols, rows, _ := c.Quadrant.dims()
	m := float64(p) / 100
	cx, cy := b.cellCenter(c.Quadrant, cols, rows)
	return Box{
		ResizeW: float64(b.ResizeW) * m,
		ResizeH: float64(b.ResizeH) * m,
		CenterX: cx * m,
		CenterY: cy * m,
	}
}

// selfFit finds the smallest percent, starting at the requested one, for
// which the crop window stays inside the frame.
func (b Baseline) selfFit(c Combined) (Box, bool) {
	for p := c.Percent.P; p <= MaxSelfFitZoom; p++ {
		box := b.combined(c, p)
		if b.fits(box) {
			return box, true
		}
	}
	return Box{}, false
}

const fitEpsilon = 1e-6

func (b Baseline) fits(box Box) bool {
	hw, hh := float64(b.CropW)/2, float64(b.CropH)/2
	return box.CenterX-hw >= -fitEpsilon &&
		box.CenterY-hh >= -fitEpsilon &&
		box.CenterX+hw <= box.ResizeW+fitEpsilon &&
		box.CenterY+hh <= box.ResizeH+fitEpsilon
}

// clampBox moves the center so the crop window lies inside the frame.
func (b Baseline) clampBox(box Box) Box {
	hw, hh := float64(b.CropW)/2, float64(b.CropH)/2
	box.CenterX = clampFloat(box.CenterX, hw, box.ResizeW-hw)
	box.CenterY = clampFloat(box.CenterY, hh, box.ResizeH-hh)
	return box
}

func clampFloat(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
