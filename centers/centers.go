// Package centers models education centers and filters the listing the way
// the directory search does: text, regions, majors and rating combined.
package centers

import (
	"slices"
	"strings"
)

type Major struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Region struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Filial is a branch location of a center.
type Filial struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Phone    string `json:"phone,omitempty"`
	RegionID int    `json:"regionId"`
}

type Center struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	Phone    string   `json:"phone,omitempty"`
	Image    string   `json:"image,omitempty"`
	RegionID int      `json:"regionId"`
	Rating   float64  `json:"rating"`
	Majors   []Major  `json:"majors,omitempty"`
	Filials  []Filial `json:"filials,omitempty"`
}

// InRegion reports whether the center or any of its filials is in regionID.
func (c Center) InRegion(regionID int) bool {
	if c.RegionID == regionID {
		return true
	}
	for _, f := range c.Filials {
		if f.RegionID == regionID {
			return true
		}
	}
	return false
}

// Offers reports whether the center teaches majorID.
func (c Center) Offers(majorID int) bool {
	for _, m := range c.Majors {
		if m.ID == majorID {
			return true
		}
	}
	return false
}

// Filter combines the search criteria. Zero values match everything.
type Filter struct {
	Query     string  // Case insensitive, matched against name, address and major names
	RegionIDs []int   // Any of
	MajorIDs  []int   // Any of
	MinRating float64 // Inclusive
}

func (f Filter) IsZero() bool {
	return strings.TrimSpace(f.Query) == "" && len(f.RegionIDs) == 0 && len(f.MajorIDs) == 0 && f.MinRating == 0
}

// Match reports whether c satisfies every criterion.
func (f Filter) Match(c Center) bool {
	if c.Rating < f.MinRating {
		return false
	}
	if len(f.RegionIDs) > 0 && !slices.ContainsFunc(f.RegionIDs, c.InRegion) {
		return false
	}
	if len(f.MajorIDs) > 0 && !slices.ContainsFunc(f.MajorIDs, c.Offers) {
		return false
	}
	return f.matchQuery(c)
}

func (f Filter) matchQuery(c Center) bool {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Address), q) {
		return true
	}
	for _, m := range c.Majors {
		if strings.Contains(strings.ToLower(m.Name), q) {
			return true
		}
	}
	return false
}

// Apply returns the matching centers in their original order.
func (f Filter) Apply(all []Center) []Center {
	if f.IsZero() {
		return all
	}
	matched := make([]Center, 0, len(all))
	for _, c := range all {
		if f.Match(c) {
			matched = append(matched, c)
		}
	}
	return matched
}
