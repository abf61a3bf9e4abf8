package zoom

import (
	"errors"
	"math"
	"testing"
)

var hd = Baseline{ResizeW: 1920, ResizeH: 1080, CropW: 1920, CropH: 1080, OffsetX: -1, OffsetY: -1}

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{
		"2/4",
		"9/9",
		"3/3X2",
		"150%",
		"200%@1/4",
		"1/4@200%",
		"2/4-100%#30$Q",
		"-",
		"-150%",
		"2/4-",
		"-#10$Z",
		"100%-4/4$B",
	} {
		e, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := e.String(); got != s {
			t.Fatalf("Parse(%q).String() = %q", s, got)
		}
	}
}

func TestParseNormalizes(t *testing.T) {
	e, err := Parse(" 1/2x3-150%$p ")
	if err != nil {
		t.Fatal(err)
	}
	if got := e.String(); got != "1/2X3-150%$P" {
		t.Fatalf("normalized = %q", got)
	}
}

func TestParseRejects(t *testing.T) {
	for _, s := range []string{
		"", "abc", "50%", "5/4", "0/4", "2/5", "1/0X2", "1/2X", "%",
		"2/4#30", "150%$Q", "2/4-100%$K", "2/4-100%#-1", "2/4-100%#x",
		"1/4@2/4", "150%@150%",
		"1/9223372036854775807", "1/10201", "1/101X1", "1/4X9223372036854775807",
	} {
		if _, err := Parse(s); !errors.Is(err, ErrSyntax) {
			t.Errorf("Parse(%q) err = %v, want ErrSyntax", s, err)
		}
	}
}

func TestParseView(t *testing.T) {
	if _, err := ParseView("2/4"); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseView("2/4-"); !errors.Is(err, ErrSyntax) {
		t.Fatalf("animated accepted as view: %v", err)
	}
}

func resolveStatic(t *testing.T, b Baseline, s string) (Params, []string) {
	t.Helper()
	v, err := ParseView(s)
	if err != nil {
		t.Fatal(err)
	}
	box, warnings := b.Resolve(v)
	return b.Params(box), warnings
}

func TestStaticViews(t *testing.T) {
	small := Baseline{ResizeW: 1920, ResizeH: 1080, CropW: 1280, CropH: 720, OffsetX: -1, OffsetY: -1}
	tests := []struct {
		name string
		base Baseline
		expr string
		want Params
	}{
		{"upper left", hd, "1/4", Params{3840, 2160, 1920, 1080, 0, 0}},
		{"upper right", hd, "2/4", Params{3840, 2160, 1920, 1080, 1920, 0}},
		{"lower right", hd, "4/4", Params{3840, 2160, 1920, 1080, 1920, 1080}},
		{"grid", hd, "3/3X2", Params{5760, 3240, 1920, 1080, 3840, 270}},
		{"percent", small, "150%", Params{2880, 1620, 1280, 720, 800, 450}},
		{"percent identity", hd, "100%", Params{1920, 1080, 1920, 1080, 0, 0}},
		{"combined self fit", hd, "100%@1/4", Params{3840, 2160, 1920, 1080, 0, 0}},
		{"combined in bounds", small, "1/4@200%", Params{3840, 2160, 1280, 720, 320, 180}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := resolveStatic(t, tt.base, tt.expr)
			if got != tt.want {
				t.Fatalf("%s = %+v, want %+v", tt.expr, got, tt.want)
			}
			if len(warnings) != 0 {
				t.Fatalf("unexpected warnings: %v", warnings)
			}
		})
	}
}

func TestCombinedFallsBackToQuadrant(t *testing.T) {
	got, warnings := resolveStatic(t, hd, "100%@1/100X1")
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one", warnings)
	}
	if got.ResizeW != 1920*100 || got.OffsetX != 0 {
		t.Fatalf("fallback params = %+v", got)
	}
}

func TestBaselineCenterHonorsOffsets(t *testing.T) {
	b := Baseline{ResizeW: 1920, ResizeH: 1080, CropW: 960, CropH: 540, OffsetX: 100, OffsetY: 50}
	cx, cy := b.Center()
	if cx != 580 || cy != 320 {
		t.Fatalf("center = %v,%v", cx, cy)
	}
	if p := b.Params(b.Default()); p.OffsetX != 100 || p.OffsetY != 50 {
		t.Fatalf("default params = %+v", p)
	}
}

func TestEaseEndpoints(t *testing.T) {
	for _, e := range []Easing{Linear, Quadratic, Bezier, Parametric, Lens, ""} {
		for _, in := range []bool{true, false} {
			if got := Ease(e, 10, 0, in); math.Abs(got) > 1e-9 {
				t.Errorf("Ease(%q,10,0,%v) = %v", e, in, got)
			}
			if got := Ease(e, 10, 10, in); math.Abs(got-1) > 1e-9 {
				t.Errorf("Ease(%q,10,10,%v) = %v", e, in, got)
			}
		}
	}
}

func TestEaseMidpoints(t *testing.T) {
	tests := []struct {
		e    Easing
		i    int
		want float64
	}{
		{Linear, 3, 0.3},
		{Quadratic, 5, 0.5},
		{Quadratic, 2, 0.08},
		{Bezier, 5, 0.5},
		{Bezier, 2, 0.104},
		{Parametric, 5, 0.5},
	}
	for _, tt := range tests {
		if got := Ease(tt.e, 10, tt.i, true); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Ease(%q,10,%d) = %v, want %v", tt.e, tt.i, got, tt.want)
		}
	}
	if got := Ease(Linear, 0, 0, true); got != 1 {
		t.Fatalf("zero steps = %v, want 1", got)
	}
}

func TestLensEasing(t *testing.T) {
	steps := 100
	prev := -1.0
	for i := 0; i <= steps; i++ {
		j := Ease(Lens, steps, i, true)
		if j < 0 || j > 1 {
			t.Fatalf("lens out of range at %d: %v", i, j)
		}
		if i < steps/2 && j > float64(i)/float64(steps) {
			t.Fatalf("lens first half above linear at %d", i)
		}
		prev = j
	}
	if prev != 1 {
		t.Fatalf("lens ends at %v", prev)
	}
	in := Ease(Lens, steps, 20, true)
	out := Ease(Lens, steps, 80, false)
	if math.Abs((1-out)-in) > 1e-9 {
		t.Fatalf("zoom-out lens is not mirrored: %v vs %v", in, out)
	}
}

func TestSteps(t *testing.T) {
	tests := []struct{ frames, limit, want int }{
		{60, 30, 30},
		{60, 0, 59},
		{60, 60, 59},
		{60, 90, 59},
		{1, 0, 0},
		{1, 5, 0},
	}
	for _, tt := range tests {
		if got := Steps(tt.frames, tt.limit); got != tt.want {
			t.Errorf("Steps(%d,%d) = %d, want %d", tt.frames, tt.limit, got, tt.want)
		}
	}
}

func TestAnimatedZoomOutQuadratic(t *testing.T) {
	e, err := Parse("2/4-100%#30$Q")
	if err != nil {
		t.Fatal(err)
	}
	res := Resolve(e, hd, hd.Default(), 60)
	if !res.Animated {
		t.Fatal("not animated")
	}
	tests := []struct {
		frame int
		want  Params
	}{
		// 2/4 is row 0, col 1: the upper-right cell, so the crop starts at x=1920.
		{0, Params{3840, 2160, 1920, 1080, 1920, 0}},
		{15, Params{2880, 1620, 1920, 1080, 960, 0}},
		{30, Params{1920, 1080, 1920, 1080, 0, 0}},
		{31, Params{1920, 1080, 1920, 1080, 0, 0}},
		{59, Params{1920, 1080, 1920, 1080, 0, 0}},
	}
	for _, tt := range tests {
		if got := res.Params(tt.frame); got != tt.want {
			t.Errorf("frame %d = %+v, want %+v", tt.frame, got, tt.want)
		}
	}
	if res.Saved != hd.Default() {
		t.Fatalf("saved = %+v, want default", res.Saved)
	}
}

func TestSavedViewCarriesOver(t *testing.T) {
	first := Resolve(mustParse(t, "100%-4/4"), hd, hd.Default(), 10)
	quad, _ := hd.Resolve(mustParse(t, "4/4").(View))
	if first.Saved != quad {
		t.Fatalf("saved = %+v, want %+v", first.Saved, quad)
	}

	// from omitted: starts where the previous scene ended
	second := Resolve(mustParse(t, "-150%"), hd, first.Saved, 10)
	if got := second.Params(0); got != hd.Params(quad) {
		t.Fatalf("second starts at %+v", got)
	}

	// to omitted: ends at the saved view
	third := Resolve(mustParse(t, "1/4-"), hd, quad, 10)
	if got := third.Params(9); got != hd.Params(quad) {
		t.Fatalf("third ends at %+v", got)
	}

	// bare dash returns to the default view
	back := Resolve(mustParse(t, "-"), hd, quad, 10)
	if back.Saved != hd.Default() || back.Params(0) != hd.Params(quad) {
		t.Fatalf("bare dash = %+v", back.Saved)
	}
}

func TestStaticHintKeepsSavedView(t *testing.T) {
	saved := Box{ResizeW: 3840, ResizeH: 2160, CenterX: 960, CenterY: 540}
	res := Resolve(mustParse(t, "150%"), hd, saved, 5)
	if res.Animated || res.Saved != saved {
		t.Fatalf("static hint changed saved view: %+v", res)
	}
	if res.Params(0) != res.Params(4) {
		t.Fatal("static params vary by frame")
	}
}

func TestSingleFrameShowsTarget(t *testing.T) {
	res := Resolve(mustParse(t, "2/4-100%"), hd, hd.Default(), 1)
	if got := res.Params(0); got != hd.Params(hd.Default()) {
		t.Fatalf("single frame = %+v", got)
	}
}

func TestNilHintIsBaseline(t *testing.T) {
	small := Baseline{ResizeW: 1920, ResizeH: 1080, CropW: 1280, CropH: 720, OffsetX: -1, OffsetY: -1}
	res := Resolve(nil, small, small.Default(), 3)
	if got := res.Params(1); got != (Params{1920, 1080, 1280, 720, 320, 180}) {
		t.Fatalf("baseline = %+v", got)
	}
}

func mustParse(t *testing.T, s string) Expr {
	t.Helper()
	e, err := Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return e
}
