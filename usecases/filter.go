package usecases

import (
	"strings"

	"stresstest-server/entities"
)

// FilterAll disables a categorical filter.
const FilterAll = "all"

// FilterCriteria is the free-text and categorical filter of the dashboard table.
type FilterCriteria struct {
	SearchTerm string `form:"search" json:"search"`
	Status     string `form:"status" json:"status"`
	Version    string `form:"version" json:"version"`
}

// Filter returns the records matching c, in input order. It never mutates
// records and always returns a new slice.
func Filter(records []entities.DeviceTest, c FilterCriteria) []entities.DeviceTest {
	term := strings.TrimSpace(c.SearchTerm)
	lowered := strings.ToLower(term)

	out := make([]entities.DeviceTest, 0, len(records))
	for _, r := range records {
		if !matchesCategory(string(r.Status), c.Status) || !matchesCategory(r.SoftwareVersion, c.Version) {
			continue
		}
		if term != "" && !matchesSearch(r, term, lowered) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesCategory(value, want string) bool {
	return want == "" || want == FilterAll || value == want
}

// imei is numeric so it is compared as typed; serial and remarks ignore case.
func matchesSearch(r entities.DeviceTest, term, lowered string) bool {
	return strings.Contains(strings.ToLower(r.SerialNumber), lowered) ||
		strings.Contains(r.IMEI, term) ||
		strings.Contains(strings.ToLower(r.Remarks), lowered)
}
