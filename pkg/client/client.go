package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bibliostat-mcp/pkg/terms"

	"github.com/goccy/go-json"
)

// DefaultBaseURL points at the KB library statistics open-data API.
const DefaultBaseURL = "https://bibstat.kb.se"

// Client talks to the upstream JSON-LD API. A single attempt per call, no
// retries; the tool handler surfaces failures to the end user.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Query holds the filters the upstream API supports server-side. Everything
// else (library, year, target group) is filtered client-side after fetch.
type Query struct {
	Term     string
	DateFrom string
	DateTo   string
	Limit    int
	Offset   int
}

// Values encodes only the set filters as URL query parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Term != "" {
		v.Set("term", q.Term)
	}
	if q.DateFrom != "" {
		v.Set("date_from", q.DateFrom)
	}
	if q.DateTo != "" {
		v.Set("date_to", q.DateTo)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

// Key returns a stable string form of the query, used as cache key.
func (q Query) Key() string {
	return q.Values().Encode()
}

// Library identifies the institution an observation belongs to.
type Library struct {
	Id           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Sigel        string `json:"sigel,omitempty"`
	Municipality string `json:"municipality,omitempty"`
}

// UnmarshalJSON accepts both the bare string form and the structured
// object form the API uses for the library reference.
func (l *Library) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		l.Id = id
		return nil
	}

	var obj struct {
		Id           string `json:"@id"`
		Name         string `json:"name"`
		Sigel        string `json:"sigel"`
		Municipality string `json:"municipality"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	l.Id = obj.Id
	l.Name = obj.Name
	l.Sigel = obj.Sigel
	l.Municipality = obj.Municipality
	return nil
}

// Observation is one statistical measurement. Values may be numeric or
// free text; NumericValue distinguishes the two.
type Observation struct {
	Id          string          `json:"@id"`
	Term        string          `json:"term"`
	Value       json.RawMessage `json:"value"`
	Library     Library         `json:"library"`
	SampleYear  int             `json:"sampleYear"`
	TargetGroup string          `json:"targetGroup"`
	Modified    string          `json:"modified,omitempty"`
}

// NumericValue coerces the raw value to a float64. JSON numbers and
// numeric strings both count; anything else is reported as non-numeric.
func (o Observation) NumericValue() (float64, bool) {
	var n float64
	if err := json.Unmarshal(o.Value, &n); err == nil {
		return n, true
	}

	var s string
	if err := json.Unmarshal(o.Value, &s); err == nil {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// ValueString renders the raw value for display.
func (o Observation) ValueString() string {
	if n, ok := o.NumericValue(); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	var s string
	if err := json.Unmarshal(o.Value, &s); err == nil {
		return s
	}
	return string(o.Value)
}

// NewClient creates an upstream API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

type graphEnvelope struct {
	Graph []json.RawMessage `json:"@graph"`
}

func (c *Client) getGraph(ctx context.Context, path string, query url.Values) ([]json.RawMessage, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/ld+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var envelope graphEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s response: %w", path, err)
	}
	return envelope.Graph, nil
}

// FetchObservations queries /data with the given filters and parses the
// JSON-LD @graph into flat observation records. Entries that fail to parse
// individually are skipped.
func (c *Client) FetchObservations(ctx context.Context, query Query) ([]Observation, error) {
	graph, err := c.getGraph(ctx, "/data", query.Values())
	if err != nil {
		return nil, err
	}

	observations := make([]Observation, 0, len(graph))
	for _, raw := range graph {
		var obs Observation
		if err := json.Unmarshal(raw, &obs); err != nil {
			continue
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

// FetchTerms retrieves the authoritative term list from /def/terms. This is
// the live source; the local dictionary is a static snapshot for fast
// offline search.
func (c *Client) FetchTerms(ctx context.Context) ([]terms.Term, error) {
	graph, err := c.getGraph(ctx, "/def/terms", nil)
	if err != nil {
		return nil, err
	}

	list := make([]terms.Term, 0, len(graph))
	for _, raw := range graph {
		// JSON-LD entries carry the identifier as "@id"; the snapshot
		// format uses plain "id". Accept either.
		var entry struct {
			terms.Term
			GraphId string `json:"@id"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if entry.Term.Id == "" {
			entry.Term.Id = entry.GraphId
		}
		list = append(list, entry.Term)
	}
	return list, nil
}
