package centers_test

import (
	"testing"

	"github.com/jrsteele09/findcourse-client/centers"
	"github.com/stretchr/testify/require"
)

var (
	english = centers.Major{ID: 1, Name: "English"}
	maths   = centers.Major{ID: 2, Name: "Mathematics"}
	it      = centers.Major{ID: 3, Name: "IT"}
)

func sample() []centers.Center {
	return []centers.Center{
		{ID: 1, Name: "Cambridge Learning", Address: "Tashkent, Chilonzor", RegionID: 10, Rating: 4.5, Majors: []centers.Major{english}},
		{ID: 2, Name: "Najot Ta'lim", Address: "Tashkent, Yunusobod", RegionID: 10, Rating: 4.9, Majors: []centers.Major{it, maths},
			Filials: []centers.Filial{{ID: 20, Name: "Samarkand", RegionID: 20}}},
		{ID: 3, Name: "Registon Academy", Address: "Samarkand", RegionID: 20, Rating: 3.2, Majors: []centers.Major{maths}},
	}
}

func ids(cs []centers.Center) []int {
	out := make([]int, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestFilter_Apply(t *testing.T) {
	tests := []struct {
		name   string
		filter centers.Filter
		want   []int
	}{
		{"zero filter keeps all", centers.Filter{}, []int{1, 2, 3}},
		{"query on name", centers.Filter{Query: "  najot "}, []int{2}},
		{"query on address", centers.Filter{Query: "tashkent"}, []int{1, 2}},
		{"query on major name", centers.Filter{Query: "math"}, []int{2, 3}},
		{"region includes filials", centers.Filter{RegionIDs: []int{20}}, []int{2, 3}},
		{"majors any of", centers.Filter{MajorIDs: []int{1, 3}}, []int{1, 2}},
		{"rating floor inclusive", centers.Filter{MinRating: 4.5}, []int{1, 2}},
		{"combined", centers.Filter{Query: "tashkent", MajorIDs: []int{2}, MinRating: 4}, []int{2}},
		{"nothing matches", centers.Filter{RegionIDs: []int{99}}, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ids(tt.filter.Apply(sample())))
		})
	}
}

func TestCenter_Helpers(t *testing.T) {
	c := sample()[1]
	require.True(t, c.InRegion(10))
	require.True(t, c.InRegion(20))
	require.False(t, c.InRegion(30))
	require.True(t, c.Offers(3))
	require.False(t, c.Offers(1))
}
