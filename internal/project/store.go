package project

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"remixer/internal/scene"
	"remixer/internal/util"
)

// LoadError reports a descriptor that could not be parsed.
type LoadError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("load %s:%d:%d: %v", e.Path, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Save writes the descriptor atomically to <project_path>/project.yaml.
func Save(d *Descriptor) error {
	if d.ProjectPath == "" {
		return errors.New("descriptor has no project path")
	}
	return SaveTo(d, d.Path())
}

// SaveTo writes the descriptor atomically to path.
func SaveTo(d *Descriptor, path string) error {
	data, err := Marshal(d)
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("save descriptor: %w", err)
	}
	return nil
}

// Marshal renders the descriptor as yaml.
func Marshal(d *Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load reads a descriptor file and upgrades older formats.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return Parse(path, data)
}

// Parse decodes descriptor data; path is used for error reporting only.
func Parse(path string, data []byte) (*Descriptor, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		line := errorLine(err)
		return nil, &LoadError{Path: path, Line: line, Column: lineColumn(data, line), Err: err}
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, &LoadError{Path: path, Line: doc.Line, Column: doc.Column, Err: errors.New("descriptor is not a mapping")}
	}
	root := doc.Content[0]
	migrate(root)

	d := Defaults()
	if err := root.Decode(d); err != nil {
		line := errorLine(err)
		col := nodeColumn(root, line)
		if col == 0 {
			col = lineColumn(data, line)
		}
		return nil, &LoadError{Path: path, Line: line, Column: col, Err: err}
	}
	normalize(d)
	return d, nil
}

var lineRe = regexp.MustCompile(`line (\d+)`)

func errorLine(err error) int {
	var te *yaml.TypeError
	msg := err.Error()
	if errors.As(err, &te) && len(te.Errors) > 0 {
		msg = te.Errors[0]
	}
	m := lineRe.FindStringSubmatch(msg)
	if len(m) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// lineColumn is the 1-based column of the first non-blank character of line.
func lineColumn(data []byte, line int) int {
	if line <= 0 {
		return 0
	}
	lines := strings.Split(string(data), "\n")
	if line > len(lines) {
		return 1
	}
	text := lines[line-1]
	return len(text) - len(strings.TrimLeft(text, " \t")) + 1
}

// nodeColumn is the column of the last scalar on line, which for a
// "key: value" pair is the value.
func nodeColumn(n *yaml.Node, line int) int {
	if n == nil || line <= 0 {
		return 0
	}
	col := 0
	if n.Line == line && n.Kind == yaml.ScalarNode {
		col = n.Column
	}
	for _, c := range n.Content {
		if cc := nodeColumn(c, line); cc > 0 {
			col = cc
		}
	}
	return col
}

// legacyValues maps obsolete enum spellings to current ones, per key.
var legacyValues = map[string]map[string]string{
	"split_type": {
		"Scenes": "Scene", "Breaks": "Break", "Minute": "Time", "Minutes": "Time", "Nothing": "None",
	},
	"thumbnail_type": {
		"gif": "GIF", "jpg": "JPG", "jpeg": "JPG", "JPEG": "JPG",
	},
	"resynth_option": {
		"Clean Frames": "Clean", "Scrub Frames": "Scrub", "Replace Frames": "Replace",
	},
	"inflate_by_option": {
		"1": "1X", "2": "2X", "4": "4X", "8": "8X", "16": "16X",
	},
	"inflate_slow_option": {
		"false": "No", "False": "No", "true": "Audio", "True": "Audio", "Yes": "Audio",
	},
	"upscale_option": {
		"1": "1X", "2": "2X", "3": "3X", "4": "4X",
	},
	"progress": {
		"": "home", "split": "setup", "chooser": "choose", "processing": "process",
	},
}

func mapValue(root *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			return root.Content[i+1]
		}
	}
	return nil
}

// migrate rewrites an older descriptor tree in place: obsolete enum values
// are renamed and a legacy string current_scene becomes an index.
func migrate(root *yaml.Node) {
	for key, renames := range legacyValues {
		v := mapValue(root, key)
		if v == nil || v.Kind != yaml.ScalarNode {
			continue
		}
		if nv, ok := renames[v.Value]; ok {
			v.Value = nv
			v.Tag = "!!str"
			v.Style = 0
		}
	}

	cur := mapValue(root, "current_scene")
	if cur != nil && cur.Kind == yaml.ScalarNode {
		if _, err := strconv.Atoi(cur.Value); err != nil {
			idx := 0
			if names := mapValue(root, "scene_names"); names != nil && names.Kind == yaml.SequenceNode {
				for i, n := range names.Content {
					if n.Value == cur.Value {
						idx = i
						break
					}
				}
			}
			cur.Value = strconv.Itoa(idx)
			cur.Tag = "!!int"
			cur.Style = 0
		}
	}
}

// normalize fills fields introduced after a descriptor was written.
func normalize(d *Descriptor) {
	if d.SourceAudio == "" {
		d.SourceAudio = d.SourceVideo
	}
	if d.States == nil {
		d.States = map[string]scene.State{}
	}
	if d.Labels == nil {
		d.Labels = map[string]string{}
	}
	for _, n := range d.Names {
		if _, ok := d.States[n]; !ok {
			d.States[n] = scene.Keep
		}
	}
	for len(d.Thumbnails) < len(d.Names) {
		d.Thumbnails = append(d.Thumbnails, "")
	}
	if len(d.Thumbnails) > len(d.Names) {
		d.Thumbnails = d.Thumbnails[:len(d.Names)]
	}
	if len(d.AudioClips) == 0 {
		d.AudioClips = nil
	}
	if len(d.VideoClips) == 0 {
		d.VideoClips = nil
	}
	if len(d.Clips) == 0 {
		d.Clips = nil
	}
	if d.IndexWidth == 0 && len(d.Names) > 0 {
		if id, err := scene.Parse(d.Names[0]); err == nil {
			d.IndexWidth = id.Width
		}
	}
	if d.ProjectPath != "" && d.FramesPath == "" {
		d.ApplyLayout(d.Layout())
	}
	d.Jump(d.Current)
}
