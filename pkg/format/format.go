package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bibliostat-mcp/pkg/client"
	"bibliostat-mcp/pkg/stats"
	"bibliostat-mcp/pkg/terms"

	"github.com/goccy/go-json"
)

// ObservationLine renders one observation as a single text line.
func ObservationLine(obs client.Observation) string {
	library := obs.Library.Id
	if obs.Library.Name != "" {
		library = fmt.Sprintf("%s (%s)", obs.Library.Name, obs.Library.Id)
	}
	return fmt.Sprintf("%s | %s = %s | %s | %d | %s",
		obs.Id, obs.Term, obs.ValueString(), library, obs.SampleYear, obs.TargetGroup)
}

// ObservationList renders a set of observations, one line each.
func ObservationList(observations []client.Observation) string {
	var b strings.Builder
	for _, obs := range observations {
		b.WriteString("- ")
		b.WriteString(ObservationLine(obs))
		b.WriteString("\n")
	}
	return b.String()
}

// TermLine renders one term as a single text line.
func TermLine(t terms.Term) string {
	if t.Label == "" {
		return t.Id
	}
	return fmt.Sprintf("%s: %s", t.Id, t.Label)
}

// TermList renders a set of terms, one line each.
func TermList(list []terms.Term) string {
	var b strings.Builder
	for _, t := range list {
		b.WriteString("- ")
		b.WriteString(TermLine(t))
		b.WriteString("\n")
	}
	return b.String()
}

// TermDetails renders the full metadata block for one term.
func TermDetails(t terms.Term) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Term: %s\n", t.Id)
	if t.Label != "" {
		fmt.Fprintf(&b, "Label: %s\n", t.Label)
	}
	if t.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", t.Description)
	}
	if t.Comment != "" {
		fmt.Fprintf(&b, "Comment: %s\n", t.Comment)
	}
	if t.ValueType != "" {
		fmt.Fprintf(&b, "Value type: %s\n", t.ValueType)
	}
	if t.ValidFrom != "" || t.ValidTo != "" {
		fmt.Fprintf(&b, "Valid: %s - %s\n", t.ValidFrom, t.ValidTo)
	}
	if len(t.Replaces) > 0 {
		fmt.Fprintf(&b, "Replaces: %s\n", strings.Join(t.Replaces, ", "))
	}
	if t.ReplacedBy != "" {
		fmt.Fprintf(&b, "Replaced by: %s\n", t.ReplacedBy)
	}
	if c := t.Category(); c != "" {
		fmt.Fprintf(&b, "Category: %s\n", c)
	}
	return b.String()
}

// LibraryLine renders one library as a single text line.
func LibraryLine(lib client.Library) string {
	parts := []string{lib.Id}
	if lib.Name != "" {
		parts = append(parts, lib.Name)
	}
	if lib.Sigel != "" {
		parts = append(parts, "sigel: "+lib.Sigel)
	}
	if lib.Municipality != "" {
		parts = append(parts, lib.Municipality)
	}
	return strings.Join(parts, " | ")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SummaryBlock renders the full descriptive statistics.
func SummaryBlock(s stats.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Count: %d\n", s.Count)
	fmt.Fprintf(&b, "Sum: %s\n", formatNumber(s.Sum))
	fmt.Fprintf(&b, "Mean: %s\n", formatNumber(s.Mean))
	fmt.Fprintf(&b, "Median: %s\n", formatNumber(s.Median))
	if s.Mode != nil {
		fmt.Fprintf(&b, "Mode: %s\n", formatNumber(*s.Mode))
	} else {
		b.WriteString("Mode: none\n")
	}
	fmt.Fprintf(&b, "Variance: %s\n", formatNumber(s.Variance))
	fmt.Fprintf(&b, "Standard deviation: %s\n", formatNumber(s.StdDev))
	fmt.Fprintf(&b, "Min: %s\n", formatNumber(s.Min))
	fmt.Fprintf(&b, "Max: %s\n", formatNumber(s.Max))
	fmt.Fprintf(&b, "Range: %s\n", formatNumber(s.Range))
	fmt.Fprintf(&b, "25th percentile: %s\n", formatNumber(s.Percentile25))
	fmt.Fprintf(&b, "75th percentile: %s\n", formatNumber(s.Percentile75))
	return b.String()
}

// TrendTable renders a per-year trend series.
func TrendTable(series []stats.YearStats) string {
	var b strings.Builder
	b.WriteString("Year | Count | Sum | Average | Min | Max\n")
	for _, ys := range series {
		fmt.Fprintf(&b, "%d | %d | %s | %s | %s | %s\n",
			ys.Year, ys.Count, formatNumber(ys.Sum), formatNumber(ys.Average),
			formatNumber(ys.Min), formatNumber(ys.Max))
	}
	return b.String()
}

// GroupTable renders per-target-group aggregates.
func GroupTable(groups []stats.GroupStats) string {
	var b strings.Builder
	b.WriteString("Target group | Count | Sum | Average | Min | Max\n")
	for _, g := range groups {
		fmt.Fprintf(&b, "%s | %d | %s | %s | %s | %s\n",
			g.TargetGroup, g.Count, formatNumber(g.Sum), formatNumber(g.Average),
			formatNumber(g.Min), formatNumber(g.Max))
	}
	return b.String()
}

// ComparisonTable renders a per-term year-over-year comparison, terms
// sorted alphabetically. Missing values and omitted percent changes are
// shown as "-".
func ComparisonTable(comparisons map[string]stats.YearComparison, year1, year2 int) string {
	termIds := make([]string, 0, len(comparisons))
	for id := range comparisons {
		termIds = append(termIds, id)
	}
	sort.Strings(termIds)

	optional := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return formatNumber(*v)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Term | %d | %d | Change | Change %%\n", year1, year2)
	for _, id := range termIds {
		c := comparisons[id]
		fmt.Fprintf(&b, "%s | %s | %s | %s | %s\n",
			id, optional(c.Year1Value), optional(c.Year2Value),
			optional(c.AbsoluteChange), optional(c.PercentChange))
	}
	return b.String()
}

// csvQuote wraps a string field in double quotes. Embedded quotes are not
// escaped, which is a known limitation of the export format.
func csvQuote(s string) string {
	return `"` + s + `"`
}

// CSV serialises observations with the fixed column order id, term, value,
// library, sampleYear, targetGroup, modified. Zero observations yield an
// empty string rather than a header-only document.
func CSV(observations []client.Observation) string {
	if len(observations) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("id,term,value,library,sampleYear,targetGroup,modified\n")
	for _, obs := range observations {
		// String values stay string fields even when they look numeric
		// ("340" exports quoted, 340 exports bare).
		value := obs.ValueString()
		var text string
		if err := json.Unmarshal(obs.Value, &text); err == nil {
			value = csvQuote(text)
		}
		b.WriteString(strings.Join([]string{
			csvQuote(obs.Id),
			csvQuote(obs.Term),
			value,
			csvQuote(obs.Library.Id),
			strconv.Itoa(obs.SampleYear),
			csvQuote(obs.TargetGroup),
			csvQuote(obs.Modified),
		}, ","))
		b.WriteString("\n")
	}
	return b.String()
}
