package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

// Row is one canvas-vs-declared comparison record. Canvas fields describe
// the record as canvassed and are read-only in the grid; dec fields describe
// the declared/master record and are editable. RowID is the cache ordinal
// for the current load generation, not a persistent key; the backing store
// addresses rows by (canvas_id, canvas_ssn).
type Row struct {
	RowID int `json:"_row_id"`

	CanvasID      string `json:"canvas_id"`
	CanvasSSN     string `json:"canvas_ssn"`
	CanvasName    string `json:"canvas_name"`
	CanvasAddress string `json:"canvas_address"`
	CanvasCity    string `json:"canvas_city"`
	CanvasState   string `json:"canvas_state"`
	CanvasZip     string `json:"canvas_zip"`

	DecHdrcode     string `json:"dec_hdrcode"`
	DecName        string `json:"dec_name"`
	DecAddress     string `json:"dec_address"`
	DecCity        string `json:"dec_city"`
	DecState       string `json:"dec_state"`
	DecZip         string `json:"dec_zip"`
	DecContact     string `json:"dec_contact"`
	DecAddrsubcode string `json:"dec_addrsubcode"`

	SSNMatch     float64 `json:"ssn_match"`
	NameScore    float64 `json:"name_score"`
	AddressScore float64 `json:"address_score"`

	Recommendation string `json:"recommendation"`

	Jib    int `json:"jib"`
	Rev    int `json:"rev"`
	Vendor int `json:"vendor"`

	Memo          string `json:"memo"`
	HowToProcess  string `json:"how_to_process"`
	AddressReason string `json:"address_reason"`
}

// Columns lists every grid column in display order.
var Columns = []string{
	"canvas_id", "canvas_ssn", "canvas_name", "canvas_address",
	"canvas_city", "canvas_state", "canvas_zip",
	"dec_hdrcode", "dec_name", "dec_address", "dec_city", "dec_state",
	"dec_zip", "dec_contact", "dec_addrsubcode",
	"ssn_match", "name_score", "address_score", "recommendation",
	"jib", "rev", "vendor",
	"memo", "how_to_process", "address_reason",
}

// SortableFields mirrors the grid's sortable column set.
var SortableFields = map[string]bool{
	"ssn_match": true, "name_score": true, "address_score": true,
	"recommendation": true,
	"canvas_name":    true, "canvas_address": true, "canvas_city": true, "canvas_id": true,
	"dec_name": true, "dec_address": true, "dec_city": true, "dec_hdrcode": true,
	"jib": true, "rev": true, "vendor": true,
}

func IsColumn(field string) bool {
	for _, c := range Columns {
		if c == field {
			return true
		}
	}
	return false
}

// Get returns the value of a named column. Unknown columns return nil.
func (r *Row) Get(field string) any {
	switch field {
	case "canvas_id":
		return r.CanvasID
	case "canvas_ssn":
		return r.CanvasSSN
	case "canvas_name":
		return r.CanvasName
	case "canvas_address":
		return r.CanvasAddress
	case "canvas_city":
		return r.CanvasCity
	case "canvas_state":
		return r.CanvasState
	case "canvas_zip":
		return r.CanvasZip
	case "dec_hdrcode":
		return r.DecHdrcode
	case "dec_name":
		return r.DecName
	case "dec_address":
		return r.DecAddress
	case "dec_city":
		return r.DecCity
	case "dec_state":
		return r.DecState
	case "dec_zip":
		return r.DecZip
	case "dec_contact":
		return r.DecContact
	case "dec_addrsubcode":
		return r.DecAddrsubcode
	case "ssn_match":
		return r.SSNMatch
	case "name_score":
		return r.NameScore
	case "address_score":
		return r.AddressScore
	case "recommendation":
		return r.Recommendation
	case "jib":
		return r.Jib
	case "rev":
		return r.Rev
	case "vendor":
		return r.Vendor
	case "memo":
		return r.Memo
	case "how_to_process":
		return r.HowToProcess
	case "address_reason":
		return r.AddressReason
	}
	return nil
}

// Set writes a named column, coercing the incoming JSON value to the
// column's type (flags to 0/1 ints, scores to float64, text to string).
func (r *Row) Set(field string, value any) error {
	switch field {
	case "canvas_id":
		r.CanvasID = utils.Stringify(value)
	case "canvas_ssn":
		r.CanvasSSN = utils.Stringify(value)
	case "canvas_name":
		r.CanvasName = utils.Stringify(value)
	case "canvas_address":
		r.CanvasAddress = utils.Stringify(value)
	case "canvas_city":
		r.CanvasCity = utils.Stringify(value)
	case "canvas_state":
		r.CanvasState = utils.Stringify(value)
	case "canvas_zip":
		r.CanvasZip = utils.Stringify(value)
	case "dec_hdrcode":
		r.DecHdrcode = utils.Stringify(value)
	case "dec_name":
		r.DecName = utils.Stringify(value)
	case "dec_address":
		r.DecAddress = utils.Stringify(value)
	case "dec_city":
		r.DecCity = utils.Stringify(value)
	case "dec_state":
		r.DecState = utils.Stringify(value)
	case "dec_zip":
		r.DecZip = utils.Stringify(value)
	case "dec_contact":
		r.DecContact = utils.Stringify(value)
	case "dec_addrsubcode":
		r.DecAddrsubcode = utils.Stringify(value)
	case "ssn_match":
		r.SSNMatch = toScore(value)
	case "name_score":
		r.NameScore = toScore(value)
	case "address_score":
		r.AddressScore = toScore(value)
	case "recommendation":
		r.Recommendation = utils.Stringify(value)
	case "jib":
		r.Jib = toFlag(value)
	case "rev":
		r.Rev = toFlag(value)
	case "vendor":
		r.Vendor = toFlag(value)
	case "memo":
		r.Memo = utils.Stringify(value)
	case "how_to_process":
		r.HowToProcess = utils.Stringify(value)
	case "address_reason":
		r.AddressReason = utils.Stringify(value)
	default:
		return fmt.Errorf("unknown column %q", field)
	}
	return nil
}

// RawRecord is one unnormalized row from a backing source, keyed by the
// source's own column names.
type RawRecord map[string]any

// legacyColumnMap translates the dec_ba_master schema into the grid schema.
var legacyColumnMap = map[string]string{
	"hdrcode":     "dec_hdrcode",
	"ssn":         "canvas_ssn",
	"hdrname":     "dec_name",
	"addrcontact": "dec_contact",
	"addraddress": "dec_address",
	"addrcity":    "dec_city",
	"addrstate":   "dec_state",
	"addrzipcode": "dec_zip",
	"addrsubcode": "dec_addrsubcode",
}

// NormalizeRecords converts heterogeneous source rows into the canonical
// Row shape. Legacy master-table column names are remapped, missing columns
// default (scores and flags to 0, text to empty) so a partial schema still
// loads as reviewable data.
func NormalizeRecords(records []RawRecord) []*Row {
	rows := make([]*Row, 0, len(records))
	for i, rec := range records {
		normalized := make(RawRecord, len(rec))
		for key, val := range rec {
			key = strings.ToLower(strings.TrimSpace(key))
			if mapped, ok := legacyColumnMap[key]; ok {
				// Only remap when the canonical column is not present itself.
				if _, exists := rec[mapped]; !exists {
					key = mapped
				}
			}
			normalized[key] = val
		}

		row := &Row{RowID: i}
		for _, col := range Columns {
			val, ok := normalized[col]
			if !ok || val == nil {
				continue
			}
			row.Set(col, val)
		}
		rows = append(rows, row)
	}
	return rows
}

func toScore(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return 0
		}
		return f
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

func toFlag(value any) int {
	switch v := value.(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		if v != 0 {
			return 1
		}
		return 0
	case int:
		if v != 0 {
			return 1
		}
		return 0
	case int64:
		if v != 0 {
			return 1
		}
		return 0
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "1" || s == "true" || s == "yes" {
			return 1
		}
		return 0
	}
	return 0
}
