package query

import (
	"testing"

	"bibliostat-mcp/pkg/client"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obs(id, term string, lib client.Library, year int, group string, value string) client.Observation {
	return client.Observation{
		Id:          id,
		Term:        term,
		Value:       json.RawMessage(value),
		Library:     lib,
		SampleYear:  year,
		TargetGroup: group,
	}
}

func TestFilterMatches(t *testing.T) {
	o := obs("o1", "Folk54", client.Library{Id: "lib:Btk"}, 2020, "folkbibliotek", "10")

	assert.True(t, Filter{}.Matches(o))
	assert.True(t, Filter{Library: "Btk"}.Matches(o))
	assert.False(t, Filter{Library: "btk"}.Matches(o), "library matching is case-sensitive")
	assert.True(t, Filter{Year: 2020}.Matches(o))
	assert.False(t, Filter{Year: 2021}.Matches(o))
	assert.True(t, Filter{TargetGroup: "folkbibliotek"}.Matches(o))
	assert.False(t, Filter{TargetGroup: "folk"}.Matches(o), "target group matching is exact")
	assert.True(t, Filter{Library: "Btk", Year: 2020, TargetGroup: "folkbibliotek"}.Matches(o))
}

func TestFilterApply(t *testing.T) {
	observations := []client.Observation{
		obs("o1", "Folk54", client.Library{Id: "lib:Btk"}, 2020, "folkbibliotek", "10"),
		obs("o2", "Folk54", client.Library{Id: "lib:Sto"}, 2020, "folkbibliotek", "20"),
		obs("o3", "Folk54", client.Library{Id: "lib:Btk"}, 2021, "skolbibliotek", "30"),
	}

	filtered := Filter{Library: "Btk"}.Apply(observations)
	require.Len(t, filtered, 2)

	filtered = Filter{Library: "Btk", Year: 2021}.Apply(observations)
	require.Len(t, filtered, 1)
	assert.Equal(t, "o3", filtered[0].Id)

	assert.Len(t, Filter{}.Apply(observations), 3)
}

func TestLibrariesDedupesAndMerges(t *testing.T) {
	observations := []client.Observation{
		obs("o1", "Folk54", client.Library{Id: "lib:Sto"}, 2020, "", "1"),
		obs("o2", "Folk54", client.Library{Id: "lib:Btk"}, 2020, "", "2"),
		// Same library again, this time with the name filled in.
		obs("o3", "Aktiv01", client.Library{Id: "lib:Sto", Name: "Stockholms stadsbibliotek", Sigel: "Sto"}, 2021, "", "3"),
		obs("o4", "Folk54", client.Library{}, 2020, "", "4"),
	}

	libraries := Libraries(observations)
	require.Len(t, libraries, 2)

	assert.Equal(t, "lib:Btk", libraries[0].Id)
	assert.Equal(t, "lib:Sto", libraries[1].Id)
	assert.Equal(t, "Stockholms stadsbibliotek", libraries[1].Name)
	assert.Equal(t, "Sto", libraries[1].Sigel)
}

func TestYearsSorted(t *testing.T) {
	observations := []client.Observation{
		obs("o1", "Folk54", client.Library{Id: "a"}, 2021, "", "1"),
		obs("o2", "Folk54", client.Library{Id: "b"}, 2019, "", "2"),
		obs("o3", "Folk54", client.Library{Id: "c"}, 2021, "", "3"),
	}
	assert.Equal(t, []int{2019, 2021}, Years(observations))
}

func TestTargetGroupsSorted(t *testing.T) {
	observations := []client.Observation{
		obs("o1", "Folk54", client.Library{Id: "a"}, 2020, "skolbibliotek", "1"),
		obs("o2", "Folk54", client.Library{Id: "b"}, 2020, "folkbibliotek", "2"),
		obs("o3", "Folk54", client.Library{Id: "c"}, 2020, "folkbibliotek", "3"),
		obs("o4", "Folk54", client.Library{Id: "d"}, 2020, "", "4"),
	}
	assert.Equal(t, []string{"folkbibliotek", "skolbibliotek"}, TargetGroups(observations))
}
