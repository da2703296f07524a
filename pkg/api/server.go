package api

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates the MCP server with every tool and resource
// registered. The tool registry is declared once in Tools so that any
// transport serves the same surface.
func NewServer(name, version string, service QueryService, logger *log.Logger) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithLogging(),
	)

	for _, t := range Tools(service, logger) {
		mcpServer.AddTool(t.Tool, t.Handler)
	}

	mcpServer.AddResource(mcp.NewResource("bibliostat://terms", "Term dictionary",
		mcp.WithResourceDescription("All term definitions from the local dictionary snapshot"),
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return HandleTermDictionaryResource(ctx, request, service)
	})

	return mcpServer
}

// Tools is the single declarative registry mapping tool names and schemas
// to handlers.
func Tools(service QueryService, logger *log.Logger) []server.ServerTool {
	handle := func(h func(context.Context, mcp.CallToolRequest, QueryService) (*mcp.CallToolResult, error)) server.ToolHandlerFunc {
		return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			result, err := h(ctx, request, service)
			if err != nil {
				logger.Printf("%s failed: %v", request.Params.Name, err)
			}
			return result, err
		}
	}

	return []server.ServerTool{
		{
			Tool: mcp.NewTool("search_observations",
				mcp.WithDescription("Search library statistics observations. Filters by term and date range run upstream; fetches at most 'limit' records."),
				mcp.WithString("term", mcp.Description("Term code to filter by (e.g. \"Folk54\")")),
				mcp.WithString("date_from", mcp.Description("Lower bound for the modification date (YYYY-MM-DD)")),
				mcp.WithString("date_to", mcp.Description("Upper bound for the modification date (YYYY-MM-DD)")),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch")),
				mcp.WithNumber("offset", mcp.Description("Number of records to skip, for pagination")),
			),
			Handler: handle(HandleSearchObservations),
		},
		{
			Tool: mcp.NewTool("get_api_terms",
				mcp.WithDescription("Fetch the authoritative term definitions from the live statistics API (may be larger than the local dictionary)."),
			),
			Handler: handle(HandleGetAPITerms),
		},
		{
			Tool: mcp.NewTool("search_terms_by_category",
				mcp.WithDescription("Search the local term dictionary by category prefix, case-insensitively (e.g. \"besok\" matches \"Besok12\")."),
				mcp.WithString("category", mcp.Description("Category prefix to match"), mcp.Required()),
			),
			Handler: handle(HandleSearchTermsByCategory),
		},
		{
			Tool: mcp.NewTool("search_terms_by_keyword",
				mcp.WithDescription("Search the local term dictionary by keyword across identifier, label and description."),
				mcp.WithString("keyword", mcp.Description("Keyword to search for"), mcp.Required()),
			),
			Handler: handle(HandleSearchTermsByKeyword),
		},
		{
			Tool: mcp.NewTool("get_term_details",
				mcp.WithDescription("Get the full metadata for one term by its identifier."),
				mcp.WithString("term_id", mcp.Description("Exact term identifier (e.g. \"Aktiv01\")"), mcp.Required()),
			),
			Handler: handle(HandleGetTermDetails),
		},
		{
			Tool: mcp.NewTool("list_categories",
				mcp.WithDescription("List the term categories (alphabetic identifier prefixes), sorted."),
			),
			Handler: handle(HandleListCategories),
		},
		{
			Tool: mcp.NewTool("get_library_data",
				mcp.WithDescription("Get all observations for one library, optionally narrowed by year and term. The library filter runs client-side over the fetched window."),
				mcp.WithString("library", mcp.Description("Library identifier, matched by substring"), mcp.Required()),
				mcp.WithNumber("year", mcp.Description("Sample year to narrow to")),
				mcp.WithString("term", mcp.Description("Term code to narrow to")),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch")),
			),
			Handler: handle(HandleGetLibraryData),
		},
		{
			Tool: mcp.NewTool("get_year_statistics",
				mcp.WithDescription("Compute full descriptive statistics (mean, median, mode, stddev, percentiles) for a term in one year."),
				mcp.WithString("term", mcp.Description("Term code"), mcp.Required()),
				mcp.WithNumber("year", mcp.Description("Sample year"), mcp.Required()),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch")),
			),
			Handler: handle(HandleGetYearStatistics),
		},
		{
			Tool: mcp.NewTool("compare_library_years",
				mcp.WithDescription("Compare one library's per-term values between two sample years, with absolute and percent changes."),
				mcp.WithString("library", mcp.Description("Library identifier, matched by substring"), mcp.Required()),
				mcp.WithNumber("year1", mcp.Description("First sample year"), mcp.Required()),
				mcp.WithNumber("year2", mcp.Description("Second sample year"), mcp.Required()),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch")),
			),
			Handler: handle(HandleCompareLibraryYears),
		},
		{
			Tool: mcp.NewTool("get_term_trend",
				mcp.WithDescription("Compute a term's per-year trend (count, sum, average, min, max) over an inclusive year range."),
				mcp.WithString("term", mcp.Description("Term code"), mcp.Required()),
				mcp.WithNumber("start_year", mcp.Description("First year of the range"), mcp.Required()),
				mcp.WithNumber("end_year", mcp.Description("Last year of the range"), mcp.Required()),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch")),
			),
			Handler: handle(HandleGetTermTrend),
		},
		{
			Tool: mcp.NewTool("get_multiple_terms",
				mcp.WithDescription("Fetch observations for several terms at once (one upstream call per term)."),
				mcp.WithString("terms", mcp.Description("Comma-separated term codes (e.g. \"Folk54,Aktiv01\")"), mcp.Required()),
				mcp.WithNumber("year", mcp.Description("Sample year to narrow to")),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch per term")),
			),
			Handler: handle(HandleGetMultipleTerms),
		},
		{
			Tool: mcp.NewTool("search_libraries",
				mcp.WithDescription("List the libraries present in the data, optionally narrowed by a search string over id, name, sigel and municipality."),
				mcp.WithString("query", mcp.Description("Case-insensitive search string; empty lists every library seen")),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch")),
			),
			Handler: handle(HandleSearchLibraries),
		},
		{
			Tool: mcp.NewTool("list_years",
				mcp.WithDescription("List the distinct sample years present in the data, optionally for one term."),
				mcp.WithString("term", mcp.Description("Term code to narrow to")),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch")),
			),
			Handler: handle(HandleListYears),
		},
		{
			Tool: mcp.NewTool("filter_by_target_group",
				mcp.WithDescription("Get observations for one target group (e.g. \"folkbibliotek\"), optionally narrowed by term and year."),
				mcp.WithString("target_group", mcp.Description("Target group, matched exactly"), mcp.Required()),
				mcp.WithString("term", mcp.Description("Term code to narrow to")),
				mcp.WithNumber("year", mcp.Description("Sample year to narrow to")),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch")),
			),
			Handler: handle(HandleFilterByTargetGroup),
		},
		{
			Tool: mcp.NewTool("aggregate_by_target_group",
				mcp.WithDescription("Aggregate a term's numeric values per target group (count, sum, average, min, max)."),
				mcp.WithString("term", mcp.Description("Term code"), mcp.Required()),
				mcp.WithNumber("year", mcp.Description("Sample year to narrow to")),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch")),
			),
			Handler: handle(HandleAggregateByTargetGroup),
		},
		{
			Tool: mcp.NewTool("compare_libraries",
				mcp.WithDescription("Compare a term's statistics across several libraries (one upstream call per library)."),
				mcp.WithString("libraries", mcp.Description("Comma-separated library identifiers"), mcp.Required()),
				mcp.WithString("term", mcp.Description("Term code"), mcp.Required()),
				mcp.WithNumber("year", mcp.Description("Sample year to narrow to")),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch per library")),
			),
			Handler: handle(HandleCompareLibraries),
		},
		{
			Tool: mcp.NewTool("get_term_report",
				mcp.WithDescription("Build a composite report for a term: dictionary metadata, full statistics, per-target-group aggregation and the top 10 observations by value."),
				mcp.WithString("term", mcp.Description("Term code"), mcp.Required()),
				mcp.WithNumber("year", mcp.Description("Sample year to narrow to")),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch")),
			),
			Handler: handle(HandleGetTermReport),
		},
		{
			Tool: mcp.NewTool("export_csv",
				mcp.WithDescription("Export a term's observations as CSV (columns: id, term, value, library, sampleYear, targetGroup, modified)."),
				mcp.WithString("term", mcp.Description("Term code"), mcp.Required()),
				mcp.WithNumber("year", mcp.Description("Sample year to narrow to")),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch")),
			),
			Handler: handle(HandleExportCSV),
		},
		{
			Tool: mcp.NewTool("list_target_groups",
				mcp.WithDescription("List the distinct target groups present in the data."),
				mcp.WithNumber("limit", mcp.Description("Maximum number of records to fetch")),
			),
			Handler: handle(HandleListTargetGroups),
		},
	}
}
