// Package report renders the project summaries shown between steps: the
// ingested source, the split settings, the scene choices and the stage
// plan. Each report is a bordered lipgloss table.
package report

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"remixer/internal/project"
	"remixer/internal/scene"
	"remixer/internal/stage"
	"remixer/internal/util/format"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
)

func render(title string, headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(styleFor)
	return titleStyle.Render(title) + "\n" + t.String()
}

// styleFor styles a table cell. Row 0 is the header; data rows start at 1.
func styleFor(row, _ int) lipgloss.Style {
	if row == 0 {
		return headerStyle
	}
	return cellStyle
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func fps(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Ingest summarizes the source video of d.
func Ingest(d *project.Descriptor) string {
	v := d.VideoDetails
	rows := [][]string{
		{"Source video", d.SourceVideo},
		{"Project", d.ProjectPath},
		{"Frame rate", fps(v.FrameRate)},
		{"Project rate", fps(d.ProjectFPS)},
		{"Duration", format.HMS(v.DurationSeconds)},
		{"Frames", strconv.Itoa(max(d.FrameCount, v.FrameCount))},
		{"Display size", fmt.Sprintf("%dx%d", v.DisplayWidth, v.DisplayHeight)},
		{"Codec", v.Codec},
		{"File size", format.HumanizeBytes(v.FileSize)},
		{"Audio", audio(d)},
	}
	if d.SourceAudio != "" && d.SourceAudio != d.SourceVideo {
		rows = append(rows, []string{"Source audio", d.SourceAudio})
	}
	return render("Ingest", []string{"Property", "Value"}, rows)
}

func audio(d *project.Descriptor) string {
	if !d.VideoDetails.HasAudio {
		return "none"
	}
	if d.VideoDetails.SampleRate > 0 {
		return fmt.Sprintf("%d Hz", d.VideoDetails.SampleRate)
	}
	return "yes"
}

// Settings summarizes the split settings; the rows shown depend on the
// split type.
func Settings(d *project.Descriptor) string {
	rows := [][]string{{"Split type", string(d.SplitType)}}
	switch d.SplitType {
	case project.SplitScene:
		rows = append(rows,
			[]string{"Scene threshold", fps(d.SceneThreshold)},
			[]string{"Minimum frames", strconv.Itoa(d.MinFramesPerScene)})
	case project.SplitBreak:
		rows = append(rows,
			[]string{"Break duration", fps(d.BreakDuration) + "s"},
			[]string{"Break ratio", fps(d.BreakRatio)},
			[]string{"Minimum frames", strconv.Itoa(d.MinFramesPerScene)})
	case project.SplitTime:
		rows = append(rows, []string{"Split time", strconv.Itoa(d.SplitTime) + "s"})
	}
	rows = append(rows,
		[]string{"Project rate", fps(d.ProjectFPS)},
		[]string{"Deinterlace", yesNo(d.Deinterlace)},
		[]string{"Thumbnails", string(d.ThumbnailType)})
	return render("Settings", []string{"Setting", "Value"}, rows)
}

// Tally counts scenes, frames and seconds per state.
type Tally struct {
	Scenes  [2]int
	Frames  [2]int
	Seconds [2]float64
}

const (
	kept = iota
	dropped
)

// Count tallies the scene choices of d. Scene names that do not parse are
// counted as scenes without frames.
func Count(d *project.Descriptor) Tally {
	var t Tally
	for _, name := range d.Names {
		col := kept
		if d.State(name) == scene.Drop {
			col = dropped
		}
		t.Scenes[col]++
		id, err := scene.Parse(name)
		if err != nil {
			continue
		}
		t.Frames[col] += id.Count()
		if d.ProjectFPS > 0 {
			t.Seconds[col] += float64(id.Count()) / d.ProjectFPS
		}
	}
	return t
}

// Choices tabulates scenes, frames and time kept and dropped.
func Choices(d *project.Descriptor) string {
	t := Count(d)
	rows := [][]string{
		{"Scenes", strconv.Itoa(t.Scenes[kept]), strconv.Itoa(t.Scenes[dropped]), strconv.Itoa(t.Scenes[kept] + t.Scenes[dropped])},
		{"Frames", strconv.Itoa(t.Frames[kept]), strconv.Itoa(t.Frames[dropped]), strconv.Itoa(t.Frames[kept] + t.Frames[dropped])},
		{"Time", format.HMS(t.Seconds[kept]), format.HMS(t.Seconds[dropped]), format.HMS(t.Seconds[kept] + t.Seconds[dropped])},
	}
	return render("Choices", []string{"", "Keep", "Drop", "Total"}, rows)
}

// Plan lists each stage with why it runs and where it writes, followed by
// the directory the remix is assembled from.
func Plan(g stage.Graph) string {
	var rows [][]string
	for _, s := range g.Stages {
		status := "off"
		switch {
		case s.Selected:
			status = "selected"
		case s.Hinted:
			status = "hinted"
		}
		dir := s.Dir
		if !s.Enabled() {
			dir = "-"
		}
		rows = append(rows, []string{s.Kind.String(), status, dir})
	}
	rows = append(rows, []string{"assemble from", "", g.Final()})
	return render("Plan", []string{"Stage", "Status", "Output"}, rows)
}

// Scenes lists every scene with its position, state, length and label. The
// scene under the cursor is marked.
func Scenes(d *project.Descriptor) string {
	cur := d.CurrentName()
	rows := make([][]string, 0, d.Len())
	for i, name := range d.Names {
		mark := ""
		if name == cur {
			mark = ">"
		}
		frames := "?"
		if id, err := scene.Parse(name); err == nil {
			frames = strconv.Itoa(id.Count())
		}
		rows = append(rows, []string{mark, strconv.Itoa(i), name, string(d.State(name)), frames, d.Label(name)})
	}
	return render("Scenes", []string{"", "#", "Scene", "State", "Frames", "Label"}, rows)
}
