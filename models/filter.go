package models

import (
	"sort"
	"strings"

	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

// SSN bucket filters.
const (
	SSNBucketAny     = ""
	SSNBucketExact   = "yes"
	SSNBucketNone    = "no"
	SSNBucketPartial = "partial"
)

// AllRows is the Length sentinel for "no paging".
const AllRows = -1

// QueryParams selects, orders and pages the visible row subset. Zero
// values mean "no constraint"; nil score bounds are unbounded.
type QueryParams struct {
	Recommendations []string
	SSNBucket       string
	MinNameScore    *float64
	MaxNameScore    *float64
	MinAddrScore    *float64
	MaxAddrScore    *float64

	// Search matches any column case-insensitively unless SearchColumn
	// scopes it to one.
	Search       string
	SearchColumn string

	SortField string
	SortDesc  bool

	Start  int
	Length int
}

// QueryResult is one page of the filtered view plus the counts the grid
// shows.
type QueryResult struct {
	Rows     []*Row
	Total    int
	Filtered int
}

// Query recomputes the visible subset from the cache on every call. All
// predicates combine by AND; the recommendation set is an OR within
// itself. No index is kept, so the result can never go stale against the
// cache.
func Query(cache *Cache, params QueryParams) QueryResult {
	result := QueryResult{Total: cache.Len()}

	matched := make([]*Row, 0, cache.Len())
	for _, row := range cache.Rows() {
		if matches(row, params) {
			matched = append(matched, row)
		}
	}
	result.Filtered = len(matched)

	if params.SortField != "" && SortableFields[params.SortField] {
		sortRows(matched, params.SortField, params.SortDesc)
	}

	start := params.Start
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if params.Length != AllRows && params.Length >= 0 && start+params.Length < end {
		end = start + params.Length
	}
	result.Rows = matched[start:end]
	return result
}

func matches(row *Row, params QueryParams) bool {
	if len(params.Recommendations) > 0 {
		found := false
		for _, rec := range params.Recommendations {
			if row.Recommendation == rec {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	switch params.SSNBucket {
	case SSNBucketExact:
		if row.SSNMatch != 100 {
			return false
		}
	case SSNBucketNone:
		if row.SSNMatch != 0 {
			return false
		}
	case SSNBucketPartial:
		if row.SSNMatch <= 0 || row.SSNMatch >= 100 {
			return false
		}
	}

	if params.MinNameScore != nil && row.NameScore < *params.MinNameScore {
		return false
	}
	if params.MaxNameScore != nil && row.NameScore > *params.MaxNameScore {
		return false
	}
	if params.MinAddrScore != nil && row.AddressScore < *params.MinAddrScore {
		return false
	}
	if params.MaxAddrScore != nil && row.AddressScore > *params.MaxAddrScore {
		return false
	}

	if params.Search != "" {
		if params.SearchColumn != "" {
			return utils.ContainsFold(utils.Stringify(row.Get(params.SearchColumn)), params.Search)
		}
		for _, col := range Columns {
			if utils.ContainsFold(utils.Stringify(row.Get(col)), params.Search) {
				return true
			}
		}
		return false
	}
	return true
}

// sortRows orders by one field; blank values sort last regardless of
// direction.
func sortRows(rows []*Row, field string, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Get(field), rows[j].Get(field)
		aBlank, bBlank := isBlank(a), isBlank(b)
		if aBlank != bBlank {
			return bBlank
		}
		if aBlank && bBlank {
			return false
		}
		less := compareValues(a, b)
		if desc {
			return less > 0
		}
		return less < 0
	})
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

func compareValues(a, b any) int {
	af, aNum := toNumber(a)
	bf, bNum := toNumber(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(
		strings.ToLower(utils.Stringify(a)),
		strings.ToLower(utils.Stringify(b)),
	)
}

func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	}
	return 0, false
}
