package scene

import "sort"

// Ordered is a scene placed in output order with its parsed label.
type Ordered struct {
	Name  string
	Label Label
}

// SaveOrder arranges names for concatenation: scenes carrying a sort mark
// come first in ascending mark order, ties in natural scene order, followed
// by the unsorted scenes in natural order.
func SaveOrder(x *Index, names []string, sep string) []Ordered {
	var sorted, unsorted []Ordered
	for _, n := range names {
		o := Ordered{Name: n, Label: SplitLabel(x.Label(n), sep)}
		if o.Label.Sort != "" {
			sorted = append(sorted, o)
		} else {
			unsorted = append(unsorted, o)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if SortLess(a.Label.Sort, b.Label.Sort) {
			return true
		}
		if SortLess(b.Label.Sort, a.Label.Sort) {
			return false
		}
		return a.Name < b.Name
	})
	sort.SliceStable(unsorted, func(i, j int) bool { return unsorted[i].Name < unsorted[j].Name })
	return append(sorted, unsorted...)
}
