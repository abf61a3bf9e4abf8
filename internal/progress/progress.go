package progress

// Stage identifies a high-level step in the pipeline.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageRender     Stage = "render"
	StageSplit      Stage = "split"
	StageThumbnails Stage = "thumbnails"
	StageCompile    Stage = "compile"
	StageResize     Stage = "resize"
	StageResynth    Stage = "resynth"
	StageInflate    Stage = "inflate"
	StageUpscale    Stage = "upscale"
	StageAudio      Stage = "audio"
	StageVideo      Stage = "video"
	StageClips      Stage = "clips"
	StageConcat     Stage = "concat"
	StageExport     Stage = "export"
	StageRecover    Stage = "recover"
	StageCompleted  Stage = "completed"
	StageError      Stage = "error"
)

// Update conveys progress for one bar. Level 0 is the outer bar (scenes of a
// step); level 1 is the inner bar (frames of a scene).
// Total is 0 when the amount of work is unknown.
type Update struct {
	Stage   Stage
	Level   int
	Current int
	Total   int
	Message string // short human-friendly status line
}

// Percent returns 0..100, or -1 when the total is unknown.
func (u Update) Percent() float64 {
	if u.Total <= 0 {
		return -1
	}
	p := float64(u.Current) / float64(u.Total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// Log is a line destined for the operator-visible log pane.
type Log struct {
	Stage Stage
	Warn  bool
	Line  string
}

// Result is emitted once when a long operation completes or fails.
type Result struct {
	OutputPath string
	Bytes      int64
	Err        error // nil on success
}

// Reporter is implemented by UI or any observer interested in progress events.
type Reporter interface {
	Update(u Update)
	Log(l Log)
	Result(r Result)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Update(Update) {}
func (Nop) Log(Log)       {}
func (Nop) Result(Result) {}

// OrNop returns r, or a Nop reporter when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop{}
	}
	return r
}
