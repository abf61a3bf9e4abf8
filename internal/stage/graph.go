// Package stage runs the post-processing stages over the kept scenes:
// Resize, Resynth, Inflate and Upscale. Each stage reads the output of the
// nearest enabled stage before it (or the scene directories) and writes one
// directory per kept scene. Stage output left behind by an earlier run is
// reused when it is still valid and purged otherwise.
package stage

import (
	"remixer/internal/framestore"
	"remixer/internal/hint"
	"remixer/internal/progress"
	"remixer/internal/project"
	"remixer/internal/util"
)

// Kind identifies a stage.
type Kind int

const (
	Resize Kind = iota
	Resynth
	Inflate
	Upscale
)

// Kinds lists the stages in pipeline order.
var Kinds = []Kind{Resize, Resynth, Inflate, Upscale}

func (k Kind) String() string {
	switch k {
	case Resize:
		return "resize"
	case Resynth:
		return "resynthesis"
	case Inflate:
		return "inflation"
	case Upscale:
		return "upscale"
	}
	return "unknown"
}

// Progress is the progress stage reported while k runs.
func (k Kind) Progress() progress.Stage {
	switch k {
	case Resize:
		return progress.StageResize
	case Resynth:
		return progress.StageResynth
	case Inflate:
		return progress.StageInflate
	}
	return progress.StageUpscale
}

// Stage is one node of the graph. A stage is enabled when the project
// selects it or a kept scene carries a hint for it.
type Stage struct {
	Kind     Kind
	Dir      string
	Selected bool
	Hinted   bool
}

func (s Stage) Enabled() bool { return s.Selected || s.Hinted }

// Graph is the stage chain in pipeline order.
type Graph struct {
	Stages []Stage
	Scenes string
}

// Build derives the graph of d given the hints of its kept scenes.
func Build(d *project.Descriptor, hints map[string]hint.Hints) Graph {
	l := d.Layout()
	g := Graph{
		Scenes: l.Scenes,
		Stages: []Stage{
			{Kind: Resize, Dir: l.Resize, Selected: d.Resize},
			{Kind: Resynth, Dir: l.Resynth, Selected: d.Resynthesize},
			{Kind: Inflate, Dir: l.Inflate, Selected: d.Inflate},
			{Kind: Upscale, Dir: l.Upscale, Selected: d.StageOptions.Upscale},
		},
	}
	for _, h := range hints {
		if h.Resize != nil {
			g.Stages[Resize].Hinted = true
		}
		if h.Resynth != "" && h.Resynth != hint.ResynthNone {
			g.Stages[Resynth].Hinted = true
		}
		if h.Inflate != "" {
			g.Stages[Inflate].Hinted = true
		}
		if h.Upscale != "" {
			g.Stages[Upscale].Hinted = true
		}
	}
	return g
}

// Stage returns the node of kind k.
func (g Graph) Stage(k Kind) Stage { return g.Stages[k] }

// Input is the directory stage k reads from: the output of the nearest
// enabled stage before it, or the scene directories.
func (g Graph) Input(k Kind) string {
	in := g.Scenes
	for _, s := range g.Stages[:k] {
		if s.Enabled() {
			in = s.Dir
		}
	}
	return in
}

// Final is the directory holding the finished frames of every kept scene.
func (g Graph) Final() string {
	return g.Input(Upscale + 1)
}

// Enabled lists the enabled stages in order.
func (g Graph) Enabled() []Stage {
	var out []Stage
	for _, s := range g.Stages {
		if s.Enabled() {
			out = append(out, s)
		}
	}
	return out
}

// Complete reports whether dir holds exactly one subdirectory per kept scene.
func Complete(dir string, kept []string) bool {
	subs, err := util.ListSubdirs(dir)
	if err != nil || len(subs) != len(kept) {
		return false
	}
	want := make(map[string]bool, len(kept))
	for _, k := range kept {
		want[k] = true
	}
	for _, s := range subs {
		if !want[s] {
			return false
		}
	}
	return true
}

// Stale reports whether dir holds content for a stage that is not enabled.
func Stale(enabled bool, dir string) bool {
	return !enabled && util.HasContent(dir)
}

// Changes flags the stages whose options differ from the ones the existing
// output was produced with.
type Changes struct {
	Resize  bool
	Resynth bool
	Inflate bool
	Upscale bool
}

func (c Changes) changed(k Kind) bool {
	switch k {
	case Resize:
		return c.Resize
	case Resynth:
		return c.Resynth
	case Inflate:
		return c.Inflate
	}
	return c.Upscale
}

// Any reports whether any stage changed.
func (c Changes) Any() bool {
	return c.Resize || c.Resynth || c.Inflate || c.Upscale
}

// ChangesSince compares the options recorded at the last processing run
// with the current ones. Nothing changed when nothing was recorded.
func ChangesSince(prev *project.StageOptions, cur project.StageOptions) Changes {
	if prev == nil {
		return Changes{}
	}
	return Changes{
		Resize: prev.Resize != cur.Resize,
		Resynth: prev.Resynthesize != cur.Resynthesize ||
			(cur.Resynthesize && prev.ResynthOption != cur.ResynthOption),
		Inflate: prev.Inflate != cur.Inflate ||
			(cur.Inflate && (prev.InflateBy != cur.InflateBy || prev.InflateSlow != cur.InflateSlow)),
		Upscale: prev.Upscale != cur.Upscale ||
			(cur.Upscale && prev.UpscaleOption != cur.UpscaleOption),
	}
}

// PurgeStale purges, from the first stage that is stale or changed onward,
// every stage directory. Later stages consume earlier ones, so nothing past
// an invalid stage can be trusted. It returns the purged stages.
func PurgeStale(store *framestore.Store, g Graph, ch Changes) ([]Kind, error) {
	for i, s := range g.Stages {
		if Stale(s.Enabled(), s.Dir) || (ch.changed(s.Kind) && util.HasContent(s.Dir)) {
			return purgeFrom(store, g, i)
		}
	}
	return nil, nil
}

// PurgeIncomplete purges, from the first enabled stage whose output does not
// match the kept scenes onward, every stage directory.
func PurgeIncomplete(store *framestore.Store, g Graph, kept []string) ([]Kind, error) {
	for i, s := range g.Stages {
		if !s.Enabled() || !util.HasContent(s.Dir) {
			continue
		}
		if !Complete(s.Dir, kept) {
			return purgeFrom(store, g, i)
		}
	}
	return nil, nil
}

// PurgeAll purges every stage directory.
func PurgeAll(store *framestore.Store, g Graph) ([]Kind, error) {
	return purgeFrom(store, g, 0)
}

func purgeFrom(store *framestore.Store, g Graph, i int) ([]Kind, error) {
	var paths []string
	var kinds []Kind
	for _, s := range g.Stages[i:] {
		if util.Exists(s.Dir) {
			paths = append(paths, s.Dir)
			kinds = append(kinds, s.Kind)
		}
	}
	if _, err := store.Purge(paths...); err != nil {
		return nil, err
	}
	return kinds, nil
}
