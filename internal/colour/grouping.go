package colour

import (
	"fmt"
	"math"
)

// DefaultGroupTolerance is the largest difference from a group leader that
// still joins the group.
const DefaultGroupTolerance = 1.2

type GroupAssignment struct {
	Index  int     `json:"index" yaml:"index"`
	Group  string  `json:"group" yaml:"group"`
	DeltaE float64 `json:"deltaE" yaml:"deltaE"`
}

// AssignShadeGroups walks samples in order. Each sample joins the first
// existing group whose leader is within tolerance, otherwise it leads a new
// group. Groups are lettered A, B, C and so on in creation order; a leader
// has deltaE 0 and members carry their rounded distance to the leader.
func AssignShadeGroups(samples []Lab, tolerance float64) []GroupAssignment {
	if tolerance <= 0 {
		tolerance = DefaultGroupTolerance
	}
	leaders := []Lab{}
	out := make([]GroupAssignment, 0, len(samples))
	for i, s := range samples {
		assigned := false
		for g, leader := range leaders {
			de := DeltaE2000(s, leader)
			if de <= tolerance {
				out = append(out, GroupAssignment{Index: i, Group: groupName(g), DeltaE: math.Round(de*100) / 100})
				assigned = true
				break
			}
		}
		if !assigned {
			out = append(out, GroupAssignment{Index: i, Group: groupName(len(leaders))})
			leaders = append(leaders, s)
		}
	}
	return out
}

func groupName(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("G%d", i+1)
}
