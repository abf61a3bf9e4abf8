package scene

import (
	"sort"
	"strconv"
	"strings"
)

// DefaultSeparator joins hint pairs inside a label.
const DefaultSeparator = ","

// Hint tags recognized inside the braces of a label.
const (
	TagResize  = "R"
	TagResynth = "S"
	TagInflate = "I"
	TagUpscale = "U"
)

var tagOrder = map[string]int{TagResize: 0, TagResynth: 1, TagInflate: 2, TagUpscale: 3}

// Label is the parsed form of "(SORT) {TAG VALUE<sep>TAG VALUE} title".
type Label struct {
	Sort  string
	Hints map[string]string
	Title string
}

// SplitLabel parses a label. Both the sort mark and the hint group are
// optional; everything left over is the title. Tags are case-insensitive
// and stored upper-case.
func SplitLabel(label, sep string) Label {
	if sep == "" {
		sep = DefaultSeparator
	}
	out := Label{Hints: map[string]string{}}
	rest := strings.TrimSpace(label)

	if strings.HasPrefix(rest, "(") {
		if end := strings.Index(rest, ")"); end > 0 {
			out.Sort = strings.TrimSpace(rest[1:end])
			rest = strings.TrimSpace(rest[end+1:])
		}
	}
	if strings.HasPrefix(rest, "{") {
		if end := strings.Index(rest, "}"); end > 0 {
			for _, pair := range strings.Split(rest[1:end], sep) {
				pair = strings.TrimSpace(pair)
				if pair == "" {
					continue
				}
				tag, value, _ := strings.Cut(pair, " ")
				tag = strings.ToUpper(strings.TrimSpace(tag))
				if tag == "" {
					continue
				}
				out.Hints[tag] = strings.TrimSpace(value)
			}
			rest = strings.TrimSpace(rest[end+1:])
		}
	}
	out.Title = rest
	return out
}

// ComposeLabel is the inverse of SplitLabel.
func ComposeLabel(l Label, sep string) string {
	if sep == "" {
		sep = DefaultSeparator
	}
	var parts []string
	if l.Sort != "" {
		parts = append(parts, "("+l.Sort+")")
	}
	if len(l.Hints) > 0 {
		tags := make([]string, 0, len(l.Hints))
		for t := range l.Hints {
			tags = append(tags, t)
		}
		sort.Slice(tags, func(i, j int) bool { return tagLess(tags[i], tags[j]) })
		pairs := make([]string, 0, len(tags))
		for _, t := range tags {
			if v := l.Hints[t]; v != "" {
				pairs = append(pairs, t+" "+v)
			} else {
				pairs = append(pairs, t)
			}
		}
		parts = append(parts, "{"+strings.Join(pairs, sep+" ")+"}")
	}
	if l.Title != "" {
		parts = append(parts, l.Title)
	}
	return strings.Join(parts, " ")
}

// Hint returns the value of tag and whether it was present.
func (l Label) Hint(tag string) (string, bool) {
	v, ok := l.Hints[strings.ToUpper(tag)]
	return v, ok
}

func tagLess(a, b string) bool {
	oa, aok := tagOrder[a]
	ob, bok := tagOrder[b]
	switch {
	case aok && bok:
		return oa < ob
	case aok:
		return true
	case bok:
		return false
	}
	return a < b
}

// SortLess orders sort marks: numerically when both are integers,
// lexically otherwise.
func SortLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
