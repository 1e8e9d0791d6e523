package sourcemap

import (
	"os"
	"sort"
	"strconv"
	"strings"
)

// A mapping table is line-oriented: one segment per line, four 1-based
// integers "genLine genCol srcLine srcCol". Malformed lines and # comments
// are skipped.
type table struct {
	segs map[int][]segment // keyed by generated line, sorted by generated column
}

type segment struct {
	genCol  int
	srcLine int
	srcCol  int
}

func parseTable(path string) *table {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	t := &table{segs: make(map[int][]segment)}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			continue
		}
		nums := make([]int, 4)
		ok := true
		for i, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil || n < 1 {
				ok = false
				break
			}
			nums[i] = n
		}
		if !ok {
			continue
		}
		t.segs[nums[0]] = append(t.segs[nums[0]], segment{genCol: nums[1], srcLine: nums[2], srcCol: nums[3]})
	}
	for ln := range t.segs {
		segs := t.segs[ln]
		sort.Slice(segs, func(i, j int) bool { return segs[i].genCol < segs[j].genCol })
	}
	return t
}

// resolve finds the segment with the greatest generated column at or before
// loc on the same generated line, the usual source-map nearest-match rule.
func (t *table) resolve(loc Location) (Location, bool) {
	segs := t.segs[loc.Line]
	idx := sort.Search(len(segs), func(i int) bool { return segs[i].genCol > loc.Column })
	if idx == 0 {
		return Location{}, false
	}
	s := segs[idx-1]
	return Location{Line: s.srcLine, Column: s.srcCol}, true
}
