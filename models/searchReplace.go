package models

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

// TextColumns are the string-valued grid columns eligible for search and
// replace.
var TextColumns = []string{
	"canvas_id", "canvas_ssn", "canvas_name", "canvas_address",
	"canvas_city", "canvas_state", "canvas_zip",
	"dec_hdrcode", "dec_name", "dec_address", "dec_city", "dec_state",
	"dec_zip", "dec_contact", "dec_addrsubcode",
	"recommendation", "memo", "how_to_process", "address_reason",
}

// CellMatch is one matching cell with its occurrence count, ordered by row
// then column; the replace cursor walks this list.
type CellMatch struct {
	RowID int    `json:"row_id"`
	Field string `json:"field"`
	Count int    `json:"count"`
}

type FindResult struct {
	MatchCount int         `json:"match_count"`
	RowIDs     []int       `json:"matching_row_ids"`
	Cells      []CellMatch `json:"cells,omitempty"`
}

// FindMatches scans the given columns (all text columns when empty) of the
// scoped rows for a substring. Scope is the visible row-id set; nil means
// the whole cache.
func FindMatches(cache *Cache, term string, columns []string, caseSensitive bool, scope []int) (FindResult, error) {
	if term == "" {
		return FindResult{}, nil
	}
	cols, err := resolveTextColumns(columns)
	if err != nil {
		return FindResult{}, err
	}

	rowIDs := scope
	if rowIDs == nil {
		rowIDs = make([]int, cache.Len())
		for i := range rowIDs {
			rowIDs[i] = i
		}
	}

	result := FindResult{}
	for _, rowID := range rowIDs {
		row, rowErr := cache.Row(rowID)
		if rowErr != nil {
			continue
		}
		rowMatched := false
		for _, col := range cols {
			count := countOccurrences(utils.Stringify(row.Get(col)), term, caseSensitive)
			if count == 0 {
				continue
			}
			result.Cells = append(result.Cells, CellMatch{RowID: rowID, Field: col, Count: count})
			result.MatchCount += count
			rowMatched = true
		}
		if rowMatched {
			result.RowIDs = append(result.RowIDs, rowID)
		}
	}
	return result, nil
}

func resolveTextColumns(columns []string) ([]string, error) {
	if len(columns) == 0 {
		return TextColumns, nil
	}
	for _, col := range columns {
		if !isTextColumn(col) {
			return nil, fmt.Errorf("column %q is not searchable", col)
		}
	}
	return columns, nil
}

func isTextColumn(col string) bool {
	for _, c := range TextColumns {
		if c == col {
			return true
		}
	}
	return false
}

func countOccurrences(s, term string, caseSensitive bool) int {
	if term == "" {
		return 0
	}
	if caseSensitive {
		return strings.Count(s, term)
	}
	count := 0
	for pos := 0; ; {
		start, end := foldIndex(s, term, pos)
		if start < 0 {
			return count
		}
		count++
		pos = end
	}
}

// replaceSpans substitutes every occurrence of term. Case-insensitive mode
// replaces only the matched spans, leaving the casing of surrounding text
// untouched.
func replaceSpans(s, term, replacement string, caseSensitive bool) (string, int) {
	if term == "" {
		return s, 0
	}
	if caseSensitive {
		n := strings.Count(s, term)
		if n == 0 {
			return s, 0
		}
		return strings.ReplaceAll(s, term, replacement), n
	}

	var b strings.Builder
	replaced := 0
	pos := 0
	for {
		start, end := foldIndex(s, term, pos)
		if start < 0 {
			break
		}
		b.WriteString(s[pos:start])
		b.WriteString(replacement)
		pos = end
		replaced++
	}
	if replaced == 0 {
		return s, 0
	}
	b.WriteString(s[pos:])
	return b.String(), replaced
}

// replaceFirstSpan substitutes only the first occurrence.
func replaceFirstSpan(s, term, replacement string, caseSensitive bool) (string, bool) {
	if term == "" {
		return s, false
	}
	if caseSensitive {
		idx := strings.Index(s, term)
		if idx < 0 {
			return s, false
		}
		return s[:idx] + replacement + s[idx+len(term):], true
	}
	start, end := foldIndex(s, term, 0)
	if start < 0 {
		return s, false
	}
	return s[:start] + replacement + s[end:], true
}

// foldIndex finds the first case-insensitive occurrence of term in s at or
// after byte offset start. Matching walks rune windows of the original
// string, so the returned [start, end) span is in s's own byte offsets even
// when case folding changes a rune's encoded length.
func foldIndex(s, term string, start int) (int, int) {
	termRunes := utf8.RuneCountInString(term)
	for i := start; i < len(s); {
		if end, ok := runeWindowEnd(s, i, termRunes); ok && strings.EqualFold(s[i:end], term) {
			return i, end
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return -1, -1
}

// runeWindowEnd returns the byte offset just past the n-th rune from start,
// or false when fewer than n runes remain.
func runeWindowEnd(s string, start, n int) (int, bool) {
	i := start
	for ; n > 0; n-- {
		if i >= len(s) {
			return 0, false
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i, true
}
