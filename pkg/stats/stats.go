package stats

import (
	"errors"
	"math"
	"sort"

	"bibliostat-mcp/pkg/client"
)

// ErrNoValues is returned by Describe when there is nothing to describe.
// This is a deliberate hard failure: no meaningful statistic exists for an
// empty input, and a zeroed result would be misleading.
var ErrNoValues = errors.New("no numeric values to describe")

// Summary holds the full set of descriptive statistics for one value
// sequence.
type Summary struct {
	Count        int      `json:"count"`
	Sum          float64  `json:"sum"`
	Mean         float64  `json:"mean"`
	Median       float64  `json:"median"`
	Mode         *float64 `json:"mode"`
	Variance     float64  `json:"variance"`
	StdDev       float64  `json:"standardDeviation"`
	Min          float64  `json:"min"`
	Max          float64  `json:"max"`
	Range        float64  `json:"range"`
	Percentile25 float64  `json:"percentile25"`
	Percentile75 float64  `json:"percentile75"`
}

// Describe computes descriptive statistics over the given values. The
// variance is the population variance (divide by N). Percentiles use the
// nearest-rank method sorted[floor(n*p)], not interpolation.
func Describe(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrNoValues
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	var median float64
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	} else {
		median = sorted[n/2]
	}

	variance := 0.0
	for _, v := range sorted {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(n)

	return Summary{
		Count:        n,
		Sum:          sum,
		Mean:         mean,
		Median:       median,
		Mode:         mode(sorted),
		Variance:     variance,
		StdDev:       math.Sqrt(variance),
		Min:          sorted[0],
		Max:          sorted[n-1],
		Range:        sorted[n-1] - sorted[0],
		Percentile25: sorted[int(float64(n)*0.25)],
		Percentile75: sorted[int(float64(n)*0.75)],
	}, nil
}

// mode returns the most frequent value, picking the smallest when several
// values share the maximum frequency. When the number of max-frequency
// values equals the total value count (every value ties, including a
// single-element input) there is no meaningful mode and nil is returned.
func mode(sorted []float64) *float64 {
	freq := make(map[float64]int)
	maxFreq := 0
	for _, v := range sorted {
		freq[v]++
		if freq[v] > maxFreq {
			maxFreq = freq[v]
		}
	}

	modes := 0
	for _, count := range freq {
		if count == maxFreq {
			modes++
		}
	}
	if modes == len(sorted) {
		return nil
	}

	// sorted input, so the first max-frequency value is the smallest.
	for _, v := range sorted {
		if freq[v] == maxFreq {
			return &v
		}
	}
	return nil
}

// YearStats is the reduced per-year aggregate used by trend series.
type YearStats struct {
	Year    int     `json:"year"`
	Count   int     `json:"count"`
	Sum     float64 `json:"sum"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Trend groups numeric observation values by sample year within the
// inclusive [startYear, endYear] range. Years without any numeric
// observation are absent from the result, not reported as zero.
func Trend(observations []client.Observation, startYear, endYear int) []YearStats {
	byYear := make(map[int][]float64)
	for _, obs := range observations {
		if obs.SampleYear < startYear || obs.SampleYear > endYear {
			continue
		}
		if v, ok := obs.NumericValue(); ok {
			byYear[obs.SampleYear] = append(byYear[obs.SampleYear], v)
		}
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	series := make([]YearStats, 0, len(years))
	for _, y := range years {
		series = append(series, reduceYear(y, byYear[y]))
	}
	return series
}

func reduceYear(year int, values []float64) YearStats {
	ys := YearStats{Year: year, Count: len(values), Min: values[0], Max: values[0]}
	for _, v := range values {
		ys.Sum += v
		if v < ys.Min {
			ys.Min = v
		}
		if v > ys.Max {
			ys.Max = v
		}
	}
	ys.Average = ys.Sum / float64(ys.Count)
	return ys
}

// GroupStats is the reduced per-target-group aggregate.
type GroupStats struct {
	TargetGroup string  `json:"targetGroup"`
	Count       int     `json:"count"`
	Sum         float64 `json:"sum"`
	Average     float64 `json:"average"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
}

// GroupByTargetGroup aggregates numeric observation values per target
// group, sorted by group name.
func GroupByTargetGroup(observations []client.Observation) []GroupStats {
	byGroup := make(map[string][]float64)
	for _, obs := range observations {
		if obs.TargetGroup == "" {
			continue
		}
		if v, ok := obs.NumericValue(); ok {
			byGroup[obs.TargetGroup] = append(byGroup[obs.TargetGroup], v)
		}
	}

	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	result := make([]GroupStats, 0, len(groups))
	for _, g := range groups {
		values := byGroup[g]
		gs := GroupStats{TargetGroup: g, Count: len(values), Min: values[0], Max: values[0]}
		for _, v := range values {
			gs.Sum += v
			if v < gs.Min {
				gs.Min = v
			}
			if v > gs.Max {
				gs.Max = v
			}
		}
		gs.Average = gs.Sum / float64(gs.Count)
		result = append(result, gs)
	}
	return result
}

// YearComparison holds a single term's values in two years and the change
// between them. PercentChange is nil when the first year's value is zero,
// rather than reporting an infinite change.
type YearComparison struct {
	Term           string   `json:"term"`
	Year1Value     *float64 `json:"year1Value"`
	Year2Value     *float64 `json:"year2Value"`
	AbsoluteChange *float64 `json:"absoluteChange"`
	PercentChange  *float64 `json:"percentChange"`
}

// CompareYears builds a per-term comparison from the observations of two
// sample years. Changes are computed only when both values are numeric.
func CompareYears(year1Obs, year2Obs []client.Observation) map[string]YearComparison {
	comparisons := make(map[string]YearComparison)

	collect := func(observations []client.Observation, setValue func(*YearComparison, *float64)) {
		for _, obs := range observations {
			if obs.Term == "" {
				continue
			}
			v, ok := obs.NumericValue()
			if !ok {
				continue
			}
			c := comparisons[obs.Term]
			c.Term = obs.Term
			setValue(&c, &v)
			comparisons[obs.Term] = c
		}
	}
	collect(year1Obs, func(c *YearComparison, v *float64) { c.Year1Value = v })
	collect(year2Obs, func(c *YearComparison, v *float64) { c.Year2Value = v })

	for term, c := range comparisons {
		if c.Year1Value == nil || c.Year2Value == nil {
			continue
		}
		change := *c.Year2Value - *c.Year1Value
		c.AbsoluteChange = &change
		if *c.Year1Value != 0 {
			pct := change / *c.Year1Value * 100
			c.PercentChange = &pct
		}
		comparisons[term] = c
	}
	return comparisons
}

// TopByValue returns the n highest-valued numeric observations in
// descending order. The sort is stable, so ties keep their fetch order.
func TopByValue(observations []client.Observation, n int) []client.Observation {
	numeric := make([]client.Observation, 0, len(observations))
	for _, obs := range observations {
		if _, ok := obs.NumericValue(); ok {
			numeric = append(numeric, obs)
		}
	}

	sort.SliceStable(numeric, func(i, j int) bool {
		vi, _ := numeric[i].NumericValue()
		vj, _ := numeric[j].NumericValue()
		return vi > vj
	})

	if n > 0 && n < len(numeric) {
		numeric = numeric[:n]
	}
	return numeric
}

// NumericValues extracts the numeric values from a set of observations,
// silently skipping non-numeric ones.
func NumericValues(observations []client.Observation) []float64 {
	values := make([]float64, 0, len(observations))
	for _, obs := range observations {
		if v, ok := obs.NumericValue(); ok {
			values = append(values, v)
		}
	}
	return values
}
