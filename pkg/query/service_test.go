package query

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"bibliostat-mcp/pkg/cache"
	"bibliostat-mcp/pkg/client"
	"bibliostat-mcp/pkg/logging"
	"bibliostat-mcp/pkg/terms"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFetcher implements Fetcher with replaceable function fields.
type mockFetcher struct {
	fetchObservations func(ctx context.Context, query client.Query) ([]client.Observation, error)
	fetchTerms        func(ctx context.Context) ([]terms.Term, error)
}

func (m *mockFetcher) FetchObservations(ctx context.Context, query client.Query) ([]client.Observation, error) {
	return m.fetchObservations(ctx, query)
}

func (m *mockFetcher) FetchTerms(ctx context.Context) ([]terms.Term, error) {
	return m.fetchTerms(ctx)
}

func testDictionary(t *testing.T) *terms.Dictionary {
	t.Helper()
	d := terms.NewDictionary("terms.json", nil)
	d.ReadFile = func(string) ([]byte, error) {
		return []byte(`{"terms": [{"id": "Folk54", "label": "Bestånd totalt"}]}`), nil
	}
	return d
}

func testConsole(t *testing.T) *logging.ConsoleLogger {
	t.Helper()
	console, err := logging.NewConsoleLogger(filepath.Join(t.TempDir(), "test.log"))
	require.NoError(t, err)
	t.Cleanup(func() { console.Close() })
	return console
}

func newTestService(t *testing.T, fetcher Fetcher, resultCache cache.ObservationCache) *Service {
	t.Helper()
	if resultCache == nil {
		resultCache = cache.NewNoopCache()
	}
	return NewService(fetcher, testDictionary(t), resultCache, testConsole(t), 200)
}

func TestSearchServesFromCache(t *testing.T) {
	fetches := 0
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			fetches++
			return []client.Observation{
				obs("o1", "Folk54", client.Library{Id: "lib:Btk"}, 2020, "folkbibliotek", "10"),
			}, nil
		},
	}

	s := newTestService(t, fetcher, cache.NewResultCache(time.Minute, log.New(io.Discard, "", 0)))

	query := client.Query{Term: "Folk54", Limit: 100}
	_, err := s.Search(context.Background(), query, Filter{})
	require.NoError(t, err)
	_, err = s.Search(context.Background(), query, Filter{})
	require.NoError(t, err)

	assert.Equal(t, 1, fetches, "the second identical query must be served from the cache")
}

func TestSearchDefaultsLimit(t *testing.T) {
	var gotLimit int
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			gotLimit = query.Limit
			return nil, nil
		},
	}

	s := newTestService(t, fetcher, nil)
	_, err := s.Search(context.Background(), client.Query{Term: "Folk54"}, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 200, gotLimit)
}

func TestSearchTruncationFlag(t *testing.T) {
	observations := []client.Observation{
		obs("o1", "Folk54", client.Library{Id: "lib:Btk"}, 2020, "", "10"),
		obs("o2", "Folk54", client.Library{Id: "lib:Sto"}, 2020, "", "20"),
	}
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			return observations, nil
		},
	}
	s := newTestService(t, fetcher, nil)

	// The fetch filled the whole window: filters may have missed matches.
	result, err := s.Search(context.Background(), client.Query{Term: "Folk54", Limit: 2}, Filter{Library: "Btk"})
	require.NoError(t, err)
	assert.True(t, result.MaybeTruncated)
	assert.Equal(t, 2, result.Total)
	assert.Len(t, result.Observations, 1)

	result, err = s.Search(context.Background(), client.Query{Term: "Folk54", Limit: 10}, Filter{})
	require.NoError(t, err)
	assert.False(t, result.MaybeTruncated)
}

func TestSearchPropagatesUpstreamError(t *testing.T) {
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			return nil, errors.New("upstream down")
		},
	}
	s := newTestService(t, fetcher, nil)

	_, err := s.Search(context.Background(), client.Query{Term: "Folk54"}, Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestYearStatistics(t *testing.T) {
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			return []client.Observation{
				obs("o1", "Folk54", client.Library{Id: "a"}, 2020, "", "10"),
				obs("o2", "Folk54", client.Library{Id: "b"}, 2020, "", "20"),
				obs("o3", "Folk54", client.Library{Id: "c"}, 2019, "", "99"),
			}, nil
		},
	}
	s := newTestService(t, fetcher, nil)

	summary, result, err := s.YearStatistics(context.Background(), "Folk54", 2020, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, 15.0, summary.Mean)
	assert.Len(t, result.Observations, 2)
}

func TestYearStatisticsFailsWithoutNumericData(t *testing.T) {
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			return []client.Observation{
				obs("o1", "Folk54", client.Library{Id: "a"}, 2020, "", `"ej uppgift"`),
			}, nil
		},
	}
	s := newTestService(t, fetcher, nil)

	_, _, err := s.YearStatistics(context.Background(), "Folk54", 2020, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Folk54")
	assert.Contains(t, err.Error(), "2020")
}

func TestCompareLibraryYearsSingleFetch(t *testing.T) {
	fetches := 0
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			fetches++
			return []client.Observation{
				obs("o1", "Folk54", client.Library{Id: "lib:Btk"}, 2019, "", "200"),
				obs("o2", "Folk54", client.Library{Id: "lib:Btk"}, 2020, "", "250"),
				obs("o3", "Folk54", client.Library{Id: "lib:Sto"}, 2019, "", "999"),
			}, nil
		},
	}
	s := newTestService(t, fetcher, nil)

	comparisons, _, err := s.CompareLibraryYears(context.Background(), "Btk", 2019, 2020, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, fetches, "both years come out of one fetch window")

	c, ok := comparisons["Folk54"]
	require.True(t, ok)
	require.NotNil(t, c.PercentChange)
	assert.Equal(t, 25.0, *c.PercentChange)
}

func TestTermTrend(t *testing.T) {
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			return []client.Observation{
				obs("o1", "Folk54", client.Library{Id: "a"}, 2019, "", "10"),
				obs("o2", "Folk54", client.Library{Id: "a"}, 2020, "", "20"),
				obs("o3", "Folk54", client.Library{Id: "a"}, 2024, "", "99"),
			}, nil
		},
	}
	s := newTestService(t, fetcher, nil)

	series, _, err := s.TermTrend(context.Background(), "Folk54", 2019, 2021, 0)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 2019, series[0].Year)
	assert.Equal(t, 2020, series[1].Year)
}

func TestMultipleTermsFetchesEachTerm(t *testing.T) {
	var seen []string
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			seen = append(seen, query.Term)
			return []client.Observation{
				obs("o-"+query.Term, query.Term, client.Library{Id: "a"}, 2020, "", "1"),
			}, nil
		},
	}
	s := newTestService(t, fetcher, nil)

	results, err := s.MultipleTerms(context.Background(), []string{"Folk54", " Aktiv01 ", ""}, 2020, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Folk54", "Aktiv01"}, seen, "blank ids are skipped, the rest trimmed")
	assert.Len(t, results, 2)
	assert.Len(t, results["Aktiv01"].Observations, 1)
}

func TestMultipleTermsFailsFast(t *testing.T) {
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			if query.Term == "Aktiv01" {
				return nil, errors.New("boom")
			}
			return nil, nil
		},
	}
	s := newTestService(t, fetcher, nil)

	_, err := s.MultipleTerms(context.Background(), []string{"Folk54", "Aktiv01"}, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "term Aktiv01")
}

func TestSearchLibraries(t *testing.T) {
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			return []client.Observation{
				obs("o1", "Folk54", client.Library{Id: "lib:Btk", Name: "Botkyrka bibliotek", Municipality: "Botkyrka"}, 2020, "", "1"),
				obs("o2", "Folk54", client.Library{Id: "lib:Sto", Name: "Stockholms stadsbibliotek"}, 2020, "", "2"),
			}, nil
		},
	}
	s := newTestService(t, fetcher, nil)

	libraries, _, err := s.SearchLibraries(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, libraries, 2)

	libraries, _, err = s.SearchLibraries(context.Background(), "botkyrka", 0)
	require.NoError(t, err)
	require.Len(t, libraries, 1)
	assert.Equal(t, "lib:Btk", libraries[0].Id)
}

func TestCompareLibraries(t *testing.T) {
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			return []client.Observation{
				obs("o1", "Folk54", client.Library{Id: "lib:Btk"}, 2020, "", "10"),
				obs("o2", "Folk54", client.Library{Id: "lib:Sto"}, 2020, "", `"saknas"`),
			}, nil
		},
	}
	s := newTestService(t, fetcher, nil)

	comparisons, err := s.CompareLibraries(context.Background(), []string{"Btk", "Sto"}, "Folk54", 2020, 0)
	require.NoError(t, err)
	require.Len(t, comparisons, 2)

	assert.Equal(t, "Btk", comparisons[0].Library)
	require.NotNil(t, comparisons[0].Summary)
	assert.Equal(t, 10.0, comparisons[0].Summary.Mean)

	// Only a non-numeric value: count is reported, summary omitted.
	assert.Equal(t, "Sto", comparisons[1].Library)
	assert.Equal(t, 1, comparisons[1].Count)
	assert.Nil(t, comparisons[1].Summary)
}

func TestTermReport(t *testing.T) {
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			return []client.Observation{
				obs("o1", "Folk54", client.Library{Id: "a"}, 2020, "folkbibliotek", "10"),
				obs("o2", "Folk54", client.Library{Id: "b"}, 2020, "skolbibliotek", "30"),
			}, nil
		},
	}
	s := newTestService(t, fetcher, nil)

	report, err := s.TermReport(context.Background(), "Folk54", 2020, 0)
	require.NoError(t, err)

	require.NotNil(t, report.Term)
	assert.Equal(t, "Bestånd totalt", report.Term.Label)
	assert.True(t, report.DictHealth)
	assert.Equal(t, 2, report.Summary.Count)
	assert.Len(t, report.Groups, 2)
	require.Len(t, report.Top, 2)
	assert.Equal(t, "o2", report.Top[0].Id)
}

func TestTermReportFailsWithoutNumericData(t *testing.T) {
	fetcher := &mockFetcher{
		fetchObservations: func(ctx context.Context, query client.Query) ([]client.Observation, error) {
			return nil, nil
		},
	}
	s := newTestService(t, fetcher, nil)

	_, err := s.TermReport(context.Background(), "Folk54", 2020, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Folk54")
}
