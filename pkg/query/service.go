package query

import (
	"context"
	"fmt"
	"strings"

	"bibliostat-mcp/pkg/cache"
	"bibliostat-mcp/pkg/client"
	"bibliostat-mcp/pkg/logging"
	"bibliostat-mcp/pkg/stats"
	"bibliostat-mcp/pkg/terms"
)

// Fetcher is the upstream API surface the service depends on.
type Fetcher interface {
	FetchObservations(ctx context.Context, query client.Query) ([]client.Observation, error)
	FetchTerms(ctx context.Context) ([]terms.Term, error)
}

// ResultSet is a filtered observation set. MaybeTruncated is set when the
// upstream fetch filled the whole requested window: client-side filters
// (library, year, target group) may then have missed matches beyond it,
// and the caller should retry with a larger limit or paginate.
type ResultSet struct {
	Observations   []client.Observation
	Total          int
	MaybeTruncated bool
}

// Service composes the upstream client, the local term dictionary and the
// response cache into the operations the tool handlers expose.
type Service struct {
	fetcher Fetcher
	dict    *terms.Dictionary
	cache   cache.ObservationCache
	console *logging.ConsoleLogger
	limit   int
}

// NewService creates a query service. defaultLimit bounds the fetch window
// when a tool call does not pass its own limit.
func NewService(fetcher Fetcher, dict *terms.Dictionary, resultCache cache.ObservationCache, console *logging.ConsoleLogger, defaultLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = 200
	}
	return &Service{
		fetcher: fetcher,
		dict:    dict,
		cache:   resultCache,
		console: console,
		limit:   defaultLimit,
	}
}

// Dictionary exposes the local term dictionary.
func (s *Service) Dictionary() *terms.Dictionary {
	return s.dict
}

// fetch retrieves observations for the query, serving from the cache when
// possible. The query's limit is defaulted before fetching so that cache
// keys stay stable.
func (s *Service) fetch(ctx context.Context, query client.Query) ([]client.Observation, client.Query, error) {
	if query.Limit <= 0 {
		query.Limit = s.limit
	}

	key := query.Key()
	if observations, found := s.cache.Get(key); found {
		return observations, query, nil
	}

	s.console.Log("Fetching observations: %s", key)
	observations, err := s.fetcher.FetchObservations(ctx, query)
	if err != nil {
		return nil, query, err
	}

	s.cache.Set(key, observations)
	return observations, query, nil
}

// Search fetches observations for the query and applies the client-side
// filter.
func (s *Service) Search(ctx context.Context, query client.Query, filter Filter) (ResultSet, error) {
	observations, query, err := s.fetch(ctx, query)
	if err != nil {
		return ResultSet{}, err
	}

	filtered := filter.Apply(observations)
	return ResultSet{
		Observations:   filtered,
		Total:          len(observations),
		MaybeTruncated: len(observations) >= query.Limit,
	}, nil
}

// APITerms fetches the authoritative term list from the live API.
func (s *Service) APITerms(ctx context.Context) ([]terms.Term, error) {
	return s.fetcher.FetchTerms(ctx)
}

// LibraryData returns all observations for one library, optionally
// narrowed by term and year.
func (s *Service) LibraryData(ctx context.Context, library, term string, year, limit int) (ResultSet, error) {
	return s.Search(ctx,
		client.Query{Term: term, Limit: limit},
		Filter{Library: library, Year: year},
	)
}

// YearStatistics computes the full descriptive statistics for a term in a
// given year. Fails when the year holds no numeric observations.
func (s *Service) YearStatistics(ctx context.Context, term string, year, limit int) (stats.Summary, ResultSet, error) {
	result, err := s.Search(ctx, client.Query{Term: term, Limit: limit}, Filter{Year: year})
	if err != nil {
		return stats.Summary{}, ResultSet{}, err
	}

	summary, err := stats.Describe(stats.NumericValues(result.Observations))
	if err != nil {
		return stats.Summary{}, result, fmt.Errorf("term %s in %d: %w", term, year, err)
	}
	return summary, result, nil
}

// CompareLibraryYears compares one library's per-term values between two
// sample years.
func (s *Service) CompareLibraryYears(ctx context.Context, library string, year1, year2, limit int) (map[string]stats.YearComparison, ResultSet, error) {
	result, err := s.Search(ctx, client.Query{Limit: limit}, Filter{Library: library})
	if err != nil {
		return nil, ResultSet{}, err
	}

	obs1 := Filter{Year: year1}.Apply(result.Observations)
	obs2 := Filter{Year: year2}.Apply(result.Observations)
	return stats.CompareYears(obs1, obs2), result, nil
}

// TermTrend computes the per-year trend series for a term over an
// inclusive year range.
func (s *Service) TermTrend(ctx context.Context, term string, startYear, endYear, limit int) ([]stats.YearStats, ResultSet, error) {
	result, err := s.Search(ctx, client.Query{Term: term, Limit: limit}, Filter{})
	if err != nil {
		return nil, ResultSet{}, err
	}
	return stats.Trend(result.Observations, startYear, endYear), result, nil
}

// MultipleTerms fetches observations for several terms, one sequential
// upstream call per term.
func (s *Service) MultipleTerms(ctx context.Context, termIds []string, year, limit int) (map[string]ResultSet, error) {
	results := make(map[string]ResultSet, len(termIds))
	for _, id := range termIds {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		result, err := s.Search(ctx, client.Query{Term: id, Limit: limit}, Filter{Year: year})
		if err != nil {
			return nil, fmt.Errorf("term %s: %w", id, err)
		}
		results[id] = result
	}
	return results, nil
}

// SearchLibraries derives the distinct libraries from a fetch window,
// optionally narrowed by a case-insensitive substring over id, name, sigel
// and municipality. An empty query lists every library seen.
func (s *Service) SearchLibraries(ctx context.Context, search string, limit int) ([]client.Library, ResultSet, error) {
	result, err := s.Search(ctx, client.Query{Limit: limit}, Filter{})
	if err != nil {
		return nil, ResultSet{}, err
	}

	libraries := Libraries(result.Observations)
	if search == "" {
		return libraries, result, nil
	}

	needle := strings.ToLower(search)
	matched := make([]client.Library, 0, len(libraries))
	for _, lib := range libraries {
		haystack := strings.ToLower(lib.Id + " " + lib.Name + " " + lib.Sigel + " " + lib.Municipality)
		if strings.Contains(haystack, needle) {
			matched = append(matched, lib)
		}
	}
	return matched, result, nil
}

// YearsAvailable lists the distinct sample years within the fetch window,
// optionally narrowed to one term.
func (s *Service) YearsAvailable(ctx context.Context, term string, limit int) ([]int, ResultSet, error) {
	result, err := s.Search(ctx, client.Query{Term: term, Limit: limit}, Filter{})
	if err != nil {
		return nil, ResultSet{}, err
	}
	return Years(result.Observations), result, nil
}

// ListTargetGroups lists the distinct target groups within the fetch
// window.
func (s *Service) ListTargetGroups(ctx context.Context, limit int) ([]string, ResultSet, error) {
	result, err := s.Search(ctx, client.Query{Limit: limit}, Filter{})
	if err != nil {
		return nil, ResultSet{}, err
	}
	return TargetGroups(result.Observations), result, nil
}

// FilterByTargetGroup returns the observations of one target group,
// optionally narrowed by term and year.
func (s *Service) FilterByTargetGroup(ctx context.Context, targetGroup, term string, year, limit int) (ResultSet, error) {
	return s.Search(ctx,
		client.Query{Term: term, Limit: limit},
		Filter{TargetGroup: targetGroup, Year: year},
	)
}

// AggregateByTargetGroup aggregates a term's numeric values per target
// group.
func (s *Service) AggregateByTargetGroup(ctx context.Context, term string, year, limit int) ([]stats.GroupStats, ResultSet, error) {
	result, err := s.Search(ctx, client.Query{Term: term, Limit: limit}, Filter{Year: year})
	if err != nil {
		return nil, ResultSet{}, err
	}
	return stats.GroupByTargetGroup(result.Observations), result, nil
}

// LibraryComparison is one library's aggregate within a multi-library
// comparison. Summary is nil when the library had no numeric observations
// in the window.
type LibraryComparison struct {
	Library string         `json:"library"`
	Count   int            `json:"count"`
	Summary *stats.Summary `json:"summary,omitempty"`
}

// CompareLibraries compares a term's statistics across several libraries,
// one sequential upstream call per library.
func (s *Service) CompareLibraries(ctx context.Context, libraries []string, term string, year, limit int) ([]LibraryComparison, error) {
	comparisons := make([]LibraryComparison, 0, len(libraries))
	for _, library := range libraries {
		library = strings.TrimSpace(library)
		if library == "" {
			continue
		}
		result, err := s.Search(ctx,
			client.Query{Term: term, Limit: limit},
			Filter{Library: library, Year: year},
		)
		if err != nil {
			return nil, fmt.Errorf("library %s: %w", library, err)
		}

		comparison := LibraryComparison{Library: library, Count: len(result.Observations)}
		if summary, err := stats.Describe(stats.NumericValues(result.Observations)); err == nil {
			comparison.Summary = &summary
		}
		comparisons = append(comparisons, comparison)
	}
	return comparisons, nil
}

// Report is the composed per-term overview: dictionary metadata, full
// descriptive statistics, per-target-group aggregation and the ten
// highest-valued observations.
type Report struct {
	TermId     string
	Term       *terms.Term
	Year       int
	Summary    stats.Summary
	Groups     []stats.GroupStats
	Top        []client.Observation
	Total      int
	Truncated  bool
	DictHealth bool
}

// TermReport builds the composed report for a term, optionally narrowed to
// one sample year. Fails when there is no numeric data to describe.
func (s *Service) TermReport(ctx context.Context, termId string, year, limit int) (Report, error) {
	report := Report{TermId: termId, Year: year, DictHealth: s.dict.Healthy()}

	if t, found := s.dict.GetByID(termId); found {
		report.Term = &t
	}

	result, err := s.Search(ctx, client.Query{Term: termId, Limit: limit}, Filter{Year: year})
	if err != nil {
		return Report{}, err
	}
	report.Total = len(result.Observations)
	report.Truncated = result.MaybeTruncated

	summary, err := stats.Describe(stats.NumericValues(result.Observations))
	if err != nil {
		return Report{}, fmt.Errorf("term %s: %w", termId, err)
	}
	report.Summary = summary
	report.Groups = stats.GroupByTargetGroup(result.Observations)
	report.Top = stats.TopByValue(result.Observations, 10)
	return report, nil
}
