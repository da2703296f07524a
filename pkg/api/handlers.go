package api

import (
	"context"
	"fmt"
	"strings"

	"bibliostat-mcp/pkg/client"
	"bibliostat-mcp/pkg/format"
	"bibliostat-mcp/pkg/query"
	"bibliostat-mcp/pkg/stats"
	"bibliostat-mcp/pkg/terms"

	"github.com/mark3labs/mcp-go/mcp"
)

// QueryService is the surface the tool handlers need from the query layer.
type QueryService interface {
	Search(ctx context.Context, q client.Query, f query.Filter) (query.ResultSet, error)
	APITerms(ctx context.Context) ([]terms.Term, error)
	Dictionary() *terms.Dictionary
	LibraryData(ctx context.Context, library, term string, year, limit int) (query.ResultSet, error)
	YearStatistics(ctx context.Context, term string, year, limit int) (stats.Summary, query.ResultSet, error)
	CompareLibraryYears(ctx context.Context, library string, year1, year2, limit int) (map[string]stats.YearComparison, query.ResultSet, error)
	TermTrend(ctx context.Context, term string, startYear, endYear, limit int) ([]stats.YearStats, query.ResultSet, error)
	MultipleTerms(ctx context.Context, termIds []string, year, limit int) (map[string]query.ResultSet, error)
	SearchLibraries(ctx context.Context, search string, limit int) ([]client.Library, query.ResultSet, error)
	YearsAvailable(ctx context.Context, term string, limit int) ([]int, query.ResultSet, error)
	ListTargetGroups(ctx context.Context, limit int) ([]string, query.ResultSet, error)
	FilterByTargetGroup(ctx context.Context, targetGroup, term string, year, limit int) (query.ResultSet, error)
	AggregateByTargetGroup(ctx context.Context, term string, year, limit int) ([]stats.GroupStats, query.ResultSet, error)
	CompareLibraries(ctx context.Context, libraries []string, term string, year, limit int) ([]query.LibraryComparison, error)
	TermReport(ctx context.Context, termId string, year, limit int) (query.Report, error)
}

func arguments(request mcp.CallToolRequest) (map[string]any, error) {
	argMap, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		if request.Params.Arguments == nil {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("invalid arguments format")
	}
	return argMap, nil
}

func stringArg(argMap map[string]any, key string) string {
	s, _ := argMap[key].(string)
	return s
}

// intArg reads a numeric argument; JSON numbers arrive as float64.
func intArg(argMap map[string]any, key string) int {
	switch v := argMap[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func requireString(argMap map[string]any, key string) (string, error) {
	s, ok := argMap[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("invalid or missing %s parameter", key)
	}
	return s, nil
}

func requireInt(argMap map[string]any, key string) (int, error) {
	v, ok := argMap[key].(float64)
	if !ok {
		if i, ok := argMap[key].(int); ok {
			return i, nil
		}
		return 0, fmt.Errorf("invalid or missing %s parameter", key)
	}
	return int(v), nil
}

// truncationNote appends the explicit truncation warning when the fetch
// window was filled, since client-side filters may then under-report.
func truncationNote(result query.ResultSet) string {
	if !result.MaybeTruncated {
		return ""
	}
	return "\n\nNote: results may be truncated; the fetch window was filled. Increase limit or paginate with offset."
}

// dictionaryNote surfaces a degraded local dictionary so that zero matches
// are diagnosable.
func dictionaryNote(dict *terms.Dictionary) string {
	if dict.Healthy() {
		return ""
	}
	return "\n\nWarning: the local term dictionary failed to load; term search runs against an empty dictionary."
}

func HandleSearchObservations(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}

	q := client.Query{
		Term:     stringArg(argMap, "term"),
		DateFrom: stringArg(argMap, "date_from"),
		DateTo:   stringArg(argMap, "date_to"),
		Limit:    intArg(argMap, "limit"),
		Offset:   intArg(argMap, "offset"),
	}

	result, err := service.Search(ctx, q, query.Filter{})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if len(result.Observations) == 0 {
		return mcp.NewToolResultText("No observations found."), nil
	}

	text := fmt.Sprintf("Found %d observations:\n\n%s%s",
		len(result.Observations), format.ObservationList(result.Observations), truncationNote(result))
	return mcp.NewToolResultText(text), nil
}

func HandleGetAPITerms(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	list, err := service.APITerms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch terms: %w", err)
	}

	if len(list) == 0 {
		return mcp.NewToolResultText("The API returned no term definitions."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("The API defines %d terms:\n\n%s", len(list), format.TermList(list))), nil
}

func HandleSearchTermsByCategory(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	category, err := requireString(argMap, "category")
	if err != nil {
		return nil, err
	}

	dict := service.Dictionary()
	matched := dict.SearchByCategory(category)
	if len(matched) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No terms found in category %q.%s", category, dictionaryNote(dict))), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d terms in category %q:\n\n%s", len(matched), category, format.TermList(matched))), nil
}

func HandleSearchTermsByKeyword(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	keyword, err := requireString(argMap, "keyword")
	if err != nil {
		return nil, err
	}

	dict := service.Dictionary()
	matched := dict.SearchByKeyword(keyword)
	if len(matched) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No terms match %q.%s", keyword, dictionaryNote(dict))), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d terms matching %q:\n\n%s", len(matched), keyword, format.TermList(matched))), nil
}

func HandleGetTermDetails(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	termId, err := requireString(argMap, "term_id")
	if err != nil {
		return nil, err
	}

	dict := service.Dictionary()
	t, found := dict.GetByID(termId)
	if !found {
		return mcp.NewToolResultText(fmt.Sprintf("Term %q not found in the dictionary.%s", termId, dictionaryNote(dict))), nil
	}
	return mcp.NewToolResultText(format.TermDetails(t)), nil
}

func HandleListCategories(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	dict := service.Dictionary()
	categories := dict.Categories()
	if len(categories) == 0 {
		return mcp.NewToolResultText("No categories available." + dictionaryNote(dict)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Available categories:\n- %s", strings.Join(categories, "\n- "))), nil
}

func HandleGetLibraryData(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	library, err := requireString(argMap, "library")
	if err != nil {
		return nil, err
	}

	result, err := service.LibraryData(ctx, library, stringArg(argMap, "term"), intArg(argMap, "year"), intArg(argMap, "limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to get library data: %w", err)
	}

	if len(result.Observations) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No observations found for library %q.%s", library, truncationNote(result))), nil
	}
	text := fmt.Sprintf("Found %d observations for library %q:\n\n%s%s",
		len(result.Observations), library, format.ObservationList(result.Observations), truncationNote(result))
	return mcp.NewToolResultText(text), nil
}

func HandleGetYearStatistics(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	term, err := requireString(argMap, "term")
	if err != nil {
		return nil, err
	}
	year, err := requireInt(argMap, "year")
	if err != nil {
		return nil, err
	}

	summary, result, err := service.YearStatistics(ctx, term, year, intArg(argMap, "limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}

	text := fmt.Sprintf("Statistics for %s in %d:\n\n%s%s", term, year, format.SummaryBlock(summary), truncationNote(result))
	return mcp.NewToolResultText(text), nil
}

func HandleCompareLibraryYears(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	library, err := requireString(argMap, "library")
	if err != nil {
		return nil, err
	}
	year1, err := requireInt(argMap, "year1")
	if err != nil {
		return nil, err
	}
	year2, err := requireInt(argMap, "year2")
	if err != nil {
		return nil, err
	}

	comparisons, result, err := service.CompareLibraryYears(ctx, library, year1, year2, intArg(argMap, "limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to compare years: %w", err)
	}

	if len(comparisons) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No comparable observations found for library %q in %d/%d.%s",
			library, year1, year2, truncationNote(result))), nil
	}
	text := fmt.Sprintf("Comparison for library %q:\n\n%s%s",
		library, format.ComparisonTable(comparisons, year1, year2), truncationNote(result))
	return mcp.NewToolResultText(text), nil
}

func HandleGetTermTrend(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	term, err := requireString(argMap, "term")
	if err != nil {
		return nil, err
	}
	startYear, err := requireInt(argMap, "start_year")
	if err != nil {
		return nil, err
	}
	endYear, err := requireInt(argMap, "end_year")
	if err != nil {
		return nil, err
	}

	series, result, err := service.TermTrend(ctx, term, startYear, endYear, intArg(argMap, "limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to compute trend: %w", err)
	}

	if len(series) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No numeric observations for %s between %d and %d.%s",
			term, startYear, endYear, truncationNote(result))), nil
	}
	text := fmt.Sprintf("Trend for %s (%d-%d):\n\n%s%s",
		term, startYear, endYear, format.TrendTable(series), truncationNote(result))
	return mcp.NewToolResultText(text), nil
}

func HandleGetMultipleTerms(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	termsParam, err := requireString(argMap, "terms")
	if err != nil {
		return nil, err
	}

	termIds := strings.Split(termsParam, ",")
	results, err := service.MultipleTerms(ctx, termIds, intArg(argMap, "year"), intArg(argMap, "limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch terms: %w", err)
	}

	var b strings.Builder
	for _, id := range termIds {
		id = strings.TrimSpace(id)
		result, ok := results[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "## %s (%d observations)\n%s\n", id, len(result.Observations), format.ObservationList(result.Observations))
		if result.MaybeTruncated {
			b.WriteString("(window filled; results may be truncated)\n")
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func HandleSearchLibraries(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}

	search := stringArg(argMap, "query")
	libraries, result, err := service.SearchLibraries(ctx, search, intArg(argMap, "limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to search libraries: %w", err)
	}

	if len(libraries) == 0 {
		return mcp.NewToolResultText("No libraries found." + truncationNote(result)), nil
	}

	var b strings.Builder
	for _, lib := range libraries {
		b.WriteString("- ")
		b.WriteString(format.LibraryLine(lib))
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(fmt.Sprintf("Found %d libraries:\n\n%s%s", len(libraries), b.String(), truncationNote(result))), nil
}

func HandleListYears(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}

	years, result, err := service.YearsAvailable(ctx, stringArg(argMap, "term"), intArg(argMap, "limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to list years: %w", err)
	}

	if len(years) == 0 {
		return mcp.NewToolResultText("No sample years found." + truncationNote(result)), nil
	}

	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = fmt.Sprintf("%d", y)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Available years: %s%s", strings.Join(parts, ", "), truncationNote(result))), nil
}

func HandleFilterByTargetGroup(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	targetGroup, err := requireString(argMap, "target_group")
	if err != nil {
		return nil, err
	}

	result, err := service.FilterByTargetGroup(ctx, targetGroup, stringArg(argMap, "term"), intArg(argMap, "year"), intArg(argMap, "limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to filter by target group: %w", err)
	}

	if len(result.Observations) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No observations for target group %q.%s", targetGroup, truncationNote(result))), nil
	}
	text := fmt.Sprintf("Found %d observations for target group %q:\n\n%s%s",
		len(result.Observations), targetGroup, format.ObservationList(result.Observations), truncationNote(result))
	return mcp.NewToolResultText(text), nil
}

func HandleAggregateByTargetGroup(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	term, err := requireString(argMap, "term")
	if err != nil {
		return nil, err
	}

	groups, result, err := service.AggregateByTargetGroup(ctx, term, intArg(argMap, "year"), intArg(argMap, "limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate: %w", err)
	}

	if len(groups) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No numeric observations for %s.%s", term, truncationNote(result))), nil
	}
	text := fmt.Sprintf("Aggregation of %s by target group:\n\n%s%s", term, format.GroupTable(groups), truncationNote(result))
	return mcp.NewToolResultText(text), nil
}

func HandleCompareLibraries(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	librariesParam, err := requireString(argMap, "libraries")
	if err != nil {
		return nil, err
	}
	term, err := requireString(argMap, "term")
	if err != nil {
		return nil, err
	}

	comparisons, err := service.CompareLibraries(ctx, strings.Split(librariesParam, ","), term, intArg(argMap, "year"), intArg(argMap, "limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to compare libraries: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Comparison of %s across %d libraries:\n\n", term, len(comparisons))
	for _, c := range comparisons {
		fmt.Fprintf(&b, "## %s (%d observations)\n", c.Library, c.Count)
		if c.Summary != nil {
			b.WriteString(format.SummaryBlock(*c.Summary))
		} else {
			b.WriteString("No numeric observations.\n")
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func HandleGetTermReport(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	term, err := requireString(argMap, "term")
	if err != nil {
		return nil, err
	}

	report, err := service.TermReport(ctx, term, intArg(argMap, "year"), intArg(argMap, "limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to build report: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Report for %s\n\n", report.TermId)
	if report.Term != nil {
		b.WriteString(format.TermDetails(*report.Term))
		b.WriteString("\n")
	} else {
		b.WriteString("(no dictionary metadata for this term)\n\n")
	}
	fmt.Fprintf(&b, "Observations: %d\n\n", report.Total)
	b.WriteString("## Statistics\n")
	b.WriteString(format.SummaryBlock(report.Summary))
	b.WriteString("\n## By target group\n")
	b.WriteString(format.GroupTable(report.Groups))
	b.WriteString("\n## Top 10 by value\n")
	b.WriteString(format.ObservationList(report.Top))
	if report.Truncated {
		b.WriteString("\nNote: results may be truncated; increase limit or paginate.")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func HandleExportCSV(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}
	term, err := requireString(argMap, "term")
	if err != nil {
		return nil, err
	}

	result, err := service.Search(ctx,
		client.Query{Term: term, Limit: intArg(argMap, "limit")},
		query.Filter{Year: intArg(argMap, "year")},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}

	return mcp.NewToolResultText(format.CSV(result.Observations)), nil
}

func HandleListTargetGroups(ctx context.Context, request mcp.CallToolRequest, service QueryService) (*mcp.CallToolResult, error) {
	argMap, err := arguments(request)
	if err != nil {
		return nil, err
	}

	groups, result, err := service.ListTargetGroups(ctx, intArg(argMap, "limit"))
	if err != nil {
		return nil, fmt.Errorf("failed to list target groups: %w", err)
	}

	if len(groups) == 0 {
		return mcp.NewToolResultText("No target groups found." + truncationNote(result)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Target groups:\n- %s%s", strings.Join(groups, "\n- "), truncationNote(result))), nil
}

// HandleTermDictionaryResource renders the full local dictionary as text.
func HandleTermDictionaryResource(ctx context.Context, request mcp.ReadResourceRequest, service QueryService) ([]mcp.ResourceContents, error) {
	dict := service.Dictionary()
	list := dict.Load()

	var b strings.Builder
	fmt.Fprintf(&b, "Term dictionary (%d terms)\n\n", len(list))
	for _, t := range list {
		b.WriteString(format.TermDetails(t))
		b.WriteString("\n")
	}
	if !dict.Healthy() {
		b.WriteString("Warning: the local term dictionary failed to load.\n")
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "bibliostat://terms",
			MIMEType: "text/plain",
			Text:     b.String(),
		},
	}, nil
}
