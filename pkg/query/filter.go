package query

import (
	"sort"
	"strings"

	"bibliostat-mcp/pkg/client"
)

// Filter holds the predicates applied client-side after fetching. The
// upstream API only filters on term and date range server-side, so library,
// year and target group matching happens over the fetched window.
type Filter struct {
	// Library matches by case-sensitive substring containment against
	// the library identifier.
	Library string
	// Year matches the sample year exactly. Zero means no year filter.
	Year int
	// TargetGroup matches exactly.
	TargetGroup string
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.Library == "" && f.Year == 0 && f.TargetGroup == ""
}

// Matches reports whether one observation passes all set predicates.
func (f Filter) Matches(obs client.Observation) bool {
	if f.Library != "" && !strings.Contains(obs.Library.Id, f.Library) {
		return false
	}
	if f.Year != 0 && obs.SampleYear != f.Year {
		return false
	}
	if f.TargetGroup != "" && obs.TargetGroup != f.TargetGroup {
		return false
	}
	return true
}

// Apply returns the subset of observations passing the filter.
func (f Filter) Apply(observations []client.Observation) []client.Observation {
	if f.IsZero() {
		return observations
	}
	matched := make([]client.Observation, 0, len(observations))
	for _, obs := range observations {
		if f.Matches(obs) {
			matched = append(matched, obs)
		}
	}
	return matched
}

// Libraries de-duplicates the library references across observations,
// sorted by identifier. Later occurrences fill in fields (name, sigel)
// missing from earlier ones.
func Libraries(observations []client.Observation) []client.Library {
	byId := make(map[string]client.Library)
	for _, obs := range observations {
		if obs.Library.Id == "" {
			continue
		}
		known, seen := byId[obs.Library.Id]
		if !seen {
			byId[obs.Library.Id] = obs.Library
			continue
		}
		if known.Name == "" && obs.Library.Name != "" {
			known.Name = obs.Library.Name
		}
		if known.Sigel == "" && obs.Library.Sigel != "" {
			known.Sigel = obs.Library.Sigel
		}
		if known.Municipality == "" && obs.Library.Municipality != "" {
			known.Municipality = obs.Library.Municipality
		}
		byId[obs.Library.Id] = known
	}

	libraries := make([]client.Library, 0, len(byId))
	for _, lib := range byId {
		libraries = append(libraries, lib)
	}
	sort.Slice(libraries, func(i, j int) bool { return libraries[i].Id < libraries[j].Id })
	return libraries
}

// Years lists the distinct sample years present, sorted ascending.
func Years(observations []client.Observation) []int {
	seen := make(map[int]bool)
	for _, obs := range observations {
		if obs.SampleYear != 0 {
			seen[obs.SampleYear] = true
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// TargetGroups lists the distinct target groups present, sorted.
func TargetGroups(observations []client.Observation) []string {
	seen := make(map[string]bool)
	for _, obs := range observations {
		if obs.TargetGroup != "" {
			seen[obs.TargetGroup] = true
		}
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}
