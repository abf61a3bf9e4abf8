// Package project persists the project descriptor: the single yaml file at
// the root of a project directory that records the source, every setting,
// the scene index, lifecycle flags and the material lists. It also ports a
// moved project and checks the descriptor against what is on disk.
package project

import (
	"path/filepath"

	"github.com/charmbracelet/log"

	"remixer/internal/framestore"
	"remixer/internal/media"
	"remixer/internal/scene"
)

// DescriptorName is the descriptor file name inside the project directory.
const DescriptorName = "project.yaml"

type SplitType string

const (
	SplitScene SplitType = "Scene"
	SplitBreak SplitType = "Break"
	SplitTime  SplitType = "Time"
	SplitNone  SplitType = "None"
)

type ThumbnailType string

const (
	ThumbnailGIF ThumbnailType = "GIF"
	ThumbnailJPG ThumbnailType = "JPG"
)

type ResynthOption string

const (
	ResynthClean   ResynthOption = "Clean"
	ResynthScrub   ResynthOption = "Scrub"
	ResynthReplace ResynthOption = "Replace"
)

type InflateSlow string

const (
	SlowNo     InflateSlow = "No"
	SlowAudio  InflateSlow = "Audio"
	SlowSilent InflateSlow = "Silent"
)

// Progress is the last completed step; the operator resumes there.
type Progress string

const (
	ProgressHome     Progress = "home"
	ProgressSettings Progress = "settings"
	ProgressSetup    Progress = "setup"
	ProgressChoose   Progress = "choose"
	ProgressCompile  Progress = "compile"
	ProgressProcess  Progress = "process"
	ProgressSave     Progress = "save"
)

var progressOrder = []Progress{
	ProgressHome, ProgressSettings, ProgressSetup, ProgressChoose,
	ProgressCompile, ProgressProcess, ProgressSave,
}

// Rank orders steps; unknown values rank below home.
func (p Progress) Rank() int {
	for i, s := range progressOrder {
		if s == p {
			return i
		}
	}
	return -1
}

// AtLeast reports whether p is step q or later.
func (p Progress) AtLeast(q Progress) bool { return p.Rank() >= q.Rank() }

// StageOptions is the stage selection snapshot compared between runs to
// detect option changes.
type StageOptions struct {
	Resize        bool          `yaml:"resize"`
	Resynthesize  bool          `yaml:"resynthesize"`
	ResynthOption ResynthOption `yaml:"resynth_option"`
	Inflate       bool          `yaml:"inflate"`
	InflateBy     string        `yaml:"inflate_by_option"`
	InflateSlow   InflateSlow   `yaml:"inflate_slow_option"`
	Upscale       bool          `yaml:"upscale"`
	UpscaleOption string        `yaml:"upscale_option"`
}

// Descriptor is the persisted project.
type Descriptor struct {
	SourceVideo  string        `yaml:"source_video"`
	SourceAudio  string        `yaml:"source_audio"`
	VideoDetails media.Details `yaml:"video_details"`
	ProjectPath  string        `yaml:"project_path"`
	ProjectFPS   float64       `yaml:"project_fps"`
	Deinterlace  bool          `yaml:"deinterlace"`
	IndexWidth   int           `yaml:"index_width"`
	FrameCount   int           `yaml:"frame_count"`

	SplitType         SplitType `yaml:"split_type"`
	SceneThreshold    float64   `yaml:"scene_threshold"`
	BreakDuration     float64   `yaml:"break_duration"`
	BreakRatio        float64   `yaml:"break_ratio"`
	SplitTime         int       `yaml:"split_time"`
	MinFramesPerScene int       `yaml:"min_frames_per_scene"`

	ResizeW     int `yaml:"resize_w"`
	ResizeH     int `yaml:"resize_h"`
	CropW       int `yaml:"crop_w"`
	CropH       int `yaml:"crop_h"`
	CropOffsetX int `yaml:"crop_offset_x"`
	CropOffsetY int `yaml:"crop_offset_y"`

	ThumbnailType ThumbnailType `yaml:"thumbnail_type"`

	StageOptions `yaml:",inline"`

	FramesPath        string `yaml:"frames_path"`
	ScenesPath        string `yaml:"scenes_path"`
	DroppedScenesPath string `yaml:"dropped_scenes_path"`
	ThumbnailPath     string `yaml:"thumbnail_path"`
	ResizePath        string `yaml:"resize_path"`
	ResynthPath       string `yaml:"resynthesis_path"`
	InflatePath       string `yaml:"inflation_path"`
	UpscalePath       string `yaml:"upscale_path"`
	ClipsPath         string `yaml:"clips_path"`
	AudioClipsPath    string `yaml:"audio_clips_path"`
	VideoClipsPath    string `yaml:"video_clips_path"`

	scene.Index `yaml:",inline"`

	ProcessedContentInvalid bool     `yaml:"processed_content_invalid"`
	SourceFramesInvalid     bool     `yaml:"source_frames_invalid"`
	Progress                Progress `yaml:"progress"`

	OutputFilepath string `yaml:"output_filepath"`
	OutputQuality  int    `yaml:"output_quality"`

	AudioClips []string `yaml:"audio_clips"`
	VideoClips []string `yaml:"video_clips"`
	Clips      []string `yaml:"clips"`

	// ProcessedWith and ProcessedHints record what the stage outputs on disk
	// were produced with.
	ProcessedWith  *StageOptions     `yaml:"processed_with,omitempty"`
	ProcessedHints map[string]string `yaml:"processed_hints,omitempty"`
}

// Defaults returns a descriptor with every setting at its default.
func Defaults() *Descriptor {
	return &Descriptor{
		ProjectFPS:        30,
		SplitType:         SplitScene,
		SceneThreshold:    0.6,
		BreakDuration:     2.0,
		BreakRatio:        0.98,
		SplitTime:         60,
		MinFramesPerScene: 10,
		CropOffsetX:       -1,
		CropOffsetY:       -1,
		ThumbnailType:     ThumbnailGIF,
		StageOptions: StageOptions{
			ResynthOption: ResynthScrub,
			InflateBy:     "2X",
			InflateSlow:   SlowNo,
			UpscaleOption: "2X",
		},
		OutputQuality: 23,
		Progress:      ProgressHome,
		Index: scene.Index{
			States: map[string]scene.State{},
			Labels: map[string]string{},
		},
	}
}

// New creates the descriptor for a freshly ingested source.
func New(projectPath, sourceVideo string, details media.Details) *Descriptor {
	d := Defaults()
	d.ProjectPath = projectPath
	d.SourceVideo = sourceVideo
	d.SourceAudio = sourceVideo
	d.VideoDetails = details
	if details.FrameRate > 0 {
		d.ProjectFPS = details.FrameRate
	}
	d.ResizeW, d.ResizeH = details.DisplayWidth, details.DisplayHeight
	d.CropW, d.CropH = details.DisplayWidth, details.DisplayHeight
	d.ApplyLayout(framestore.NewLayout(projectPath))
	return d
}

// Path is the descriptor file path.
func (d *Descriptor) Path() string {
	return filepath.Join(d.ProjectPath, DescriptorName)
}

// ApplyLayout stores the layout directories in the descriptor's path fields.
func (d *Descriptor) ApplyLayout(l framestore.Layout) {
	d.FramesPath = l.Source
	d.ScenesPath = l.Scenes
	d.DroppedScenesPath = l.Dropped
	d.ThumbnailPath = l.Thumbnails
	d.ResizePath = l.Resize
	d.ResynthPath = l.Resynth
	d.InflatePath = l.Inflate
	d.UpscalePath = l.Upscale
	d.ClipsPath = l.Clips
	d.AudioClipsPath = l.AudioClips
	d.VideoClipsPath = l.VideoClips
}

// Layout returns the directories recorded in the descriptor, falling back
// to the default layout for any empty field.
func (d *Descriptor) Layout() framestore.Layout {
	l := framestore.NewLayout(d.ProjectPath)
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&l.Source, d.FramesPath)
	set(&l.Scenes, d.ScenesPath)
	set(&l.Dropped, d.DroppedScenesPath)
	set(&l.Thumbnails, d.ThumbnailPath)
	set(&l.Resize, d.ResizePath)
	set(&l.Resynth, d.ResynthPath)
	set(&l.Inflate, d.InflatePath)
	set(&l.Upscale, d.UpscalePath)
	set(&l.Clips, d.ClipsPath)
	set(&l.AudioClips, d.AudioClipsPath)
	set(&l.VideoClips, d.VideoClipsPath)
	return l
}

// Store returns a frame store over the descriptor's layout that copies the
// descriptor into every purge directory.
func (d *Descriptor) Store(logger *log.Logger) *framestore.Store {
	s := framestore.New(d.ProjectPath, d.Path(), logger)
	s.Layout = d.Layout()
	return s
}

// PathFields lists every path-valued field with its yaml key.
func (d *Descriptor) PathFields() map[string]string {
	return map[string]string{
		"source_video":        d.SourceVideo,
		"source_audio":        d.SourceAudio,
		"project_path":        d.ProjectPath,
		"frames_path":         d.FramesPath,
		"scenes_path":         d.ScenesPath,
		"dropped_scenes_path": d.DroppedScenesPath,
		"thumbnail_path":      d.ThumbnailPath,
		"resize_path":         d.ResizePath,
		"resynthesis_path":    d.ResynthPath,
		"inflation_path":      d.InflatePath,
		"upscale_path":        d.UpscalePath,
		"clips_path":          d.ClipsPath,
		"audio_clips_path":    d.AudioClipsPath,
		"video_clips_path":    d.VideoClipsPath,
		"output_filepath":     d.OutputFilepath,
	}
}

// SceneIndex exposes the embedded scene index.
func (d *Descriptor) SceneIndex() *scene.Index { return &d.Index }

// ScenePath returns where a scene's frames live: under scenes_path when
// kept or not yet compiled, under dropped_scenes_path otherwise.
func (d *Descriptor) ScenePath(name string) string {
	if d.State(name) == scene.Drop && d.Progress.AtLeast(ProgressCompile) {
		return filepath.Join(d.Layout().Dropped, name)
	}
	return filepath.Join(d.Layout().Scenes, name)
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Names = append([]string(nil), d.Names...)
	c.Thumbnails = append([]string(nil), d.Thumbnails...)
	c.States = make(map[string]scene.State, len(d.States))
	for k, v := range d.States {
		c.States[k] = v
	}
	c.Labels = make(map[string]string, len(d.Labels))
	for k, v := range d.Labels {
		c.Labels[k] = v
	}
	c.AudioClips = append([]string(nil), d.AudioClips...)
	c.VideoClips = append([]string(nil), d.VideoClips...)
	c.Clips = append([]string(nil), d.Clips...)
	if d.ProcessedWith != nil {
		pw := *d.ProcessedWith
		c.ProcessedWith = &pw
	}
	if d.ProcessedHints != nil {
		c.ProcessedHints = make(map[string]string, len(d.ProcessedHints))
		for k, v := range d.ProcessedHints {
			c.ProcessedHints[k] = v
		}
	}
	return &c
}

// DropClipEntries removes the clips of the named scenes from the audio,
// video and muxed clip lists. Clip files are named after their scene.
func (d *Descriptor) DropClipEntries(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	keep := func(list []string) []string {
		var out []string
		for _, p := range list {
			if !drop[ClipScene(p)] {
				out = append(out, p)
			}
		}
		return out
	}
	d.AudioClips = keep(d.AudioClips)
	d.VideoClips = keep(d.VideoClips)
	d.Clips = keep(d.Clips)
}

// ClipScene is the scene name a clip file belongs to.
func ClipScene(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
