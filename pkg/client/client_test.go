package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const observationsBody = `{
	"@context": "https://bibstat.kb.se/def/context",
	"@graph": [
		{
			"@id": "https://bibstat.kb.se/data/obs1",
			"term": "Folk54",
			"value": 1200,
			"library": {"@id": "lib:Btk", "name": "Botkyrka bibliotek", "sigel": "Btk", "municipality": "Botkyrka"},
			"sampleYear": 2020,
			"targetGroup": "folkbibliotek",
			"modified": "2021-03-01T10:00:00Z"
		},
		{
			"@id": "https://bibstat.kb.se/data/obs2",
			"term": "Folk54",
			"value": "340",
			"library": "lib:Sto",
			"sampleYear": 2020,
			"targetGroup": "folkbibliotek"
		},
		{
			"@id": "https://bibstat.kb.se/data/obs3",
			"term": "Folk54",
			"value": "ej uppgift",
			"library": "lib:Gbg",
			"sampleYear": 2020,
			"targetGroup": "folkbibliotek"
		}
	]
}`

func TestFetchObservations(t *testing.T) {
	var gotPath, gotAccept string
	var gotQuery map[string][]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		gotQuery = r.URL.Query()
		w.Write([]byte(observationsBody))
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second)
	observations, err := c.FetchObservations(context.Background(), Query{Term: "Folk54", Limit: 100, Offset: 20})
	require.NoError(t, err)

	assert.Equal(t, "/data", gotPath)
	assert.Equal(t, "application/ld+json", gotAccept)
	assert.Equal(t, []string{"Folk54"}, gotQuery["term"])
	assert.Equal(t, []string{"100"}, gotQuery["limit"])
	assert.Equal(t, []string{"20"}, gotQuery["offset"])
	assert.NotContains(t, gotQuery, "date_from", "unset filters must not be encoded")
	assert.NotContains(t, gotQuery, "date_to")

	require.Len(t, observations, 3)

	// Structured library reference.
	assert.Equal(t, "lib:Btk", observations[0].Library.Id)
	assert.Equal(t, "Botkyrka bibliotek", observations[0].Library.Name)
	assert.Equal(t, "Btk", observations[0].Library.Sigel)
	assert.Equal(t, 2020, observations[0].SampleYear)
	assert.Equal(t, "folkbibliotek", observations[0].TargetGroup)

	// Bare string library reference.
	assert.Equal(t, "lib:Sto", observations[1].Library.Id)

	// Numeric coercion: JSON number, numeric string, free text.
	v, ok := observations[0].NumericValue()
	assert.True(t, ok)
	assert.Equal(t, 1200.0, v)

	v, ok = observations[1].NumericValue()
	assert.True(t, ok)
	assert.Equal(t, 340.0, v)

	_, ok = observations[2].NumericValue()
	assert.False(t, ok)
	assert.Equal(t, "ej uppgift", observations[2].ValueString())
}

func TestFetchObservationsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second)
	_, err := c.FetchObservations(context.Background(), Query{Term: "Folk54"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "service unavailable")
}

func TestFetchTerms(t *testing.T) {
	body := `{
		"@graph": [
			{"@id": "Aktiv01", "label": "Aktiva låntagare", "valueType": "integer"},
			{"id": "Besok12", "label": "Fysiska besök"}
		]
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/def/terms", r.URL.Path)
		w.Write([]byte(body))
	}))
	defer server.Close()

	c := NewClient(server.URL, 5*time.Second)
	list, err := c.FetchTerms(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "Aktiv01", list[0].Id)
	assert.Equal(t, "Aktiva låntagare", list[0].Label)
	assert.Equal(t, "Besok12", list[1].Id)
}

func TestQueryKeyStable(t *testing.T) {
	q1 := Query{Term: "Folk54", Limit: 100}
	q2 := Query{Term: "Folk54", Limit: 100}
	assert.Equal(t, q1.Key(), q2.Key())

	q3 := Query{Term: "Folk54", Limit: 200}
	assert.NotEqual(t, q1.Key(), q3.Key())

	assert.Empty(t, Query{}.Key())
}

func TestValueString(t *testing.T) {
	obs := Observation{Value: json.RawMessage("12.5")}
	assert.Equal(t, "12.5", obs.ValueString())

	obs = Observation{Value: json.RawMessage(`"text"`)}
	assert.Equal(t, "text", obs.ValueString())
}
