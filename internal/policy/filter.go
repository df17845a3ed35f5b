package policy

import (
	"sort"
	"strconv"
	"strings"

	"dirsentry.org/internal/directory"
)

// Aggregate column names for the viewer/auditor rollup.
const (
	ColDepartment      = "Department"
	ColTeamSize        = "Team_Size"
	ColCommonSeniority = "Common_Seniority"
)

func filterIdentity(d *directory.Dataset, _ PrincipalContext) *directory.Dataset {
	return d.Clone()
}

// filterManagerTeam retains the manager's own row, direct reports, and
// reports of direct reports. The closure depth is deliberately fixed at 2:
// anything deeper in the hierarchy stays invisible on this path.
func filterManagerTeam(d *directory.Dataset, pctx PrincipalContext) *directory.Dataset {
	self := strings.ToLower(strings.TrimSpace(pctx.Identifier))
	uidIdx, haveUID := d.ColumnIndex(directory.ColUID)
	mgrIdx, haveMgr := d.ColumnIndex(directory.ColManager)
	if !haveMgr || !haveUID || self == "" {
		// Without a reporting structure there is no team to scope to.
		return directory.New(d.Columns...)
	}

	direct := make(map[string]struct{})
	for _, row := range d.Rows {
		if strings.EqualFold(row[mgrIdx], self) {
			direct[strings.ToLower(row[uidIdx])] = struct{}{}
		}
	}

	return d.SelectRows(func(i int) bool {
		uid := strings.ToLower(d.Rows[i][uidIdx])
		mgr := strings.ToLower(d.Rows[i][mgrIdx])
		if uid == self || mgr == self {
			return true
		}
		_, reportsToDirect := direct[mgr]
		return reportsToDirect
	})
}

// filterAggregate collapses the dataset into a department rollup: record
// count and modal seniority level. Per-row detail never reaches this path.
func filterAggregate(d *directory.Dataset, _ PrincipalContext) *directory.Dataset {
	out := directory.New(ColDepartment, ColTeamSize, ColCommonSeniority)
	deptIdx, haveDept := d.ColumnIndex(directory.ColDept)
	if !haveDept || d.Len() == 0 {
		return out
	}
	senIdx, haveSen := d.ColumnIndex(directory.ColSeniority)

	type stats struct {
		count     int
		seniority map[string]int
	}
	byDept := make(map[string]*stats)
	for _, row := range d.Rows {
		dept := strings.TrimSpace(row[deptIdx])
		if dept == "" {
			dept = "Unknown"
		}
		s, ok := byDept[dept]
		if !ok {
			s = &stats{seniority: make(map[string]int)}
			byDept[dept] = s
		}
		s.count++
		if haveSen {
			if level := strings.TrimSpace(row[senIdx]); level != "" {
				s.seniority[level]++
			}
		}
	}

	depts := make([]string, 0, len(byDept))
	for dept := range byDept {
		depts = append(depts, dept)
	}
	sort.Strings(depts)
	for _, dept := range depts {
		s := byDept[dept]
		out.Append(dept, strconv.Itoa(s.count), modal(s.seniority))
	}
	return out
}

// modal returns the most frequent value, lexicographically smallest on a
// tie, "Unknown" when there is nothing to count.
func modal(counts map[string]int) string {
	best, bestCount := "Unknown", 0
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}
