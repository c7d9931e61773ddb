package descriptor

import (
	"github.com/san-kum/mbsolve/internal/constraints"
	"github.com/san-kum/mbsolve/internal/variables"
)

// Coloring partitions the active rows into groups with no shared variables.
// A friction row never shares a group with its normal row, so rows inside
// one group can be relaxed concurrently. Each group holds row indices in
// ascending order. The greedy assignment is deterministic.
func (d *Descriptor) Coloring() [][]int {
	if len(d.activeRows) == 0 {
		return nil
	}
	index := make(map[*constraints.Row]int, len(d.activeRows))
	frictionOf := make(map[*constraints.Row][]int)
	for i, r := range d.activeRows {
		index[r] = i
		if n := r.Normal(); n != nil {
			frictionOf[n] = append(frictionOf[n], i)
		}
	}
	// colors used by each variables group
	taken := make(map[*variables.Variables][]bool)
	rowColor := make([]int, len(d.activeRows))
	var groups [][]int

	for i, r := range d.activeRows {
		var blocked []bool
		mark := func(c int) {
			for len(blocked) <= c {
				blocked = append(blocked, false)
			}
			blocked[c] = true
		}
		for _, v := range r.Variables() {
			if !v.Assembled() {
				continue
			}
			for c, used := range taken[v] {
				if used {
					mark(c)
				}
			}
		}
		if n := r.Normal(); n != nil {
			if j, ok := index[n]; ok && j < i {
				mark(rowColor[j])
			}
		}
		for _, f := range frictionOf[r] {
			if f < i {
				mark(rowColor[f])
			}
		}
		c := 0
		for c < len(blocked) && blocked[c] {
			c++
		}
		rowColor[i] = c
		if c == len(groups) {
			groups = append(groups, nil)
		}
		groups[c] = append(groups[c], i)
		for _, v := range r.Variables() {
			if !v.Assembled() {
				continue
			}
			t := taken[v]
			for len(t) <= c {
				t = append(t, false)
			}
			t[c] = true
			taken[v] = t
		}
	}
	return groups
}
