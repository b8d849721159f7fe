package models

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/matchreview_backend/config"
	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

// DatasetWriter receives full-dataset snapshots for background writeback
// after a successful save. The writer owns only the storage write, never
// the cache.
type DatasetWriter interface {
	Submit(rows []*Row)
}

// Session owns one reviewer's state: the dataset cache, the pending-change
// ledger, the undo/redo stack and the persistence gateway. All mutation
// goes through the session mutex, which is the single-writer guarantee:
// handlers serialize here the way the original UI thread did.
type Session struct {
	mu sync.Mutex

	logger   *logrus.Logger
	policies config.FieldPolicies
	dataset  Dataset
	cache    *Cache
	ledger   *Ledger
	undo     *UndoStack
	gateway  *Gateway
	writer   DatasetWriter

	sourceID string
}

func NewSession(dataset Dataset, audit AuditStore, policies config.FieldPolicies, logger *logrus.Logger) *Session {
	cache := NewCache(nil)
	return &Session{
		logger:   logger,
		policies: policies,
		dataset:  dataset,
		cache:    cache,
		ledger:   NewLedger(cache, policies),
		undo:     NewUndoStack(config.IntFromEnv("UNDO_MAX_DEPTH", DefaultUndoDepth)),
		gateway:  NewGateway(dataset, audit, logger),
	}
}

func (s *Session) SetWriter(writer DatasetWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = writer
}

func (s *Session) Dataset() Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset
}

func (s *Session) SourceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceID
}

// Load (re)loads the full row set from the dataset, starting a new cache
// generation. Pending changes and history are tied to ordinals of the old
// generation, so both reset. Refused while a save is draining.
func (s *Session) Load(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Session) loadLocked(ctx context.Context) (int, error) {
	if s.ledger.Frozen() {
		return 0, utils.ErrorSaveInFlight
	}
	rows, err := s.dataset.Load(ctx)
	if err != nil {
		return 0, err
	}
	s.cache = NewCache(rows)
	s.ledger = NewLedger(s.cache, s.policies)
	s.undo.Reset()
	return s.cache.Len(), nil
}

// SwitchDataset points the session at a different backing source and loads
// it. Refused while a save is in flight so a concurrent drain never reads
// a cleared ledger.
func (s *Session) SwitchDataset(ctx context.Context, dataset Dataset, sourceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger.Frozen() {
		return 0, utils.ErrorSaveInFlight
	}
	prev := s.dataset
	s.dataset = dataset
	s.gateway.SetDataset(dataset)
	count, err := s.loadLocked(ctx)
	if err != nil {
		s.dataset = prev
		s.gateway.SetDataset(prev)
		return 0, err
	}
	s.sourceID = sourceID
	return count, nil
}

// EditResult reports one accepted edit.
type EditResult struct {
	Accepted     bool   `json:"accepted"`
	PendingCount int    `json:"pending_count"`
	Deferred     bool   `json:"deferred"`
	Message      string `json:"message,omitempty"`
}

// Edit applies a single-field edit: cache first (optimistic), then either
// the ledger (deferred fields) or a synchronous backend write (immediate
// fields). The edit is pushed as one undoable action.
func (s *Session) Edit(ctx context.Context, rowID int, field string, value any) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.applyEdit(ctx, rowID, field, value)
	if err != nil {
		return EditResult{PendingCount: s.ledger.PendingCount()}, err
	}
	s.undo.Push(Action{Kind: ActionSingleEdit, Changes: []Change{change}})

	result := EditResult{
		Accepted:     true,
		PendingCount: s.ledger.PendingCount(),
		Deferred:     s.policies.Deferred(field),
	}
	if result.Deferred {
		result.Message = "Updated (unsaved)"
	} else {
		result.Message = "Record updated"
	}
	return result, nil
}

// applyEdit is the single mutation path shared by edits, undo, redo and
// replace. Caller holds the session lock. A failed immediate write keeps
// the optimistic cache value and falls back to the ledger so the next save
// retries it; the user gets a dirty badge, never a silent revert.
func (s *Session) applyEdit(ctx context.Context, rowID int, field string, value any) (Change, error) {
	if !s.policies.Editable(field) {
		return Change{}, utils.ErrorInvalidField
	}
	row, err := s.cache.Row(rowID)
	if err != nil {
		return Change{}, err
	}
	if s.ledger.Frozen() {
		return Change{}, utils.ErrorSaveInFlight
	}

	original := row.Get(field)
	if s.policies.Deferred(field) {
		if err := s.ledger.RecordEdit(rowID, field, value); err != nil {
			return Change{}, err
		}
	} else {
		if err := row.Set(field, value); err != nil {
			return Change{}, err
		}
		if writeErr := s.gateway.WriteImmediate(ctx, row, field, original, row.Get(field)); writeErr != nil {
			config.LogError(s.logger, "session.go", "applyEdit", "WriteImmediate", map[string]any{
				"row_id": rowID, "field": field,
			}, writeErr)
			s.ledger.Record(rowID, field, original, row.Get(field))
		}
	}
	return Change{RowID: rowID, Field: field, Old: original, New: row.Get(field)}, nil
}

// BulkEdit sets one field across many rows as a single undoable unit.
func (s *Session) BulkEdit(ctx context.Context, rowIDs []int, field string, value any) (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bulkApply(ctx, rowIDs, field, value, ActionBulkEdit, nil)
}

// BulkApprove sets the recommendation on many rows, recording the old
// recommendations so the approval reverses as one unit.
func (s *Session) BulkApprove(ctx context.Context, rowIDs []int, recommendation string) (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if recommendation == "" {
		recommendation = "APPROVED"
	}
	return s.bulkApply(ctx, rowIDs, "recommendation", recommendation, ActionBulkApprove, nil)
}

// Approve is the single-row approval affordance.
func (s *Session) Approve(ctx context.Context, rowID int, recommendation string) (EditResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if recommendation == "" {
		recommendation = "APPROVED"
	}
	change, err := s.applyEdit(ctx, rowID, "recommendation", recommendation)
	if err != nil {
		return EditResult{PendingCount: s.ledger.PendingCount()}, err
	}
	s.undo.Push(Action{Kind: ActionApprove, Changes: []Change{change}})
	return EditResult{Accepted: true, PendingCount: s.ledger.PendingCount()}, nil
}

// bulkApply is the shared bulk path. Immediate fields become one batched
// merge; deferred fields accumulate in the ledger. Caller holds the lock.
func (s *Session) bulkApply(ctx context.Context, rowIDs []int, field string, value any, kind ActionKind, skip func(*Row) bool) (int, []string) {
	var errs []string
	if !s.policies.Editable(field) {
		return 0, []string{utils.ErrorInvalidField.Error()}
	}
	if s.ledger.Frozen() {
		return 0, []string{utils.ErrorSaveInFlight.Error()}
	}

	var (
		changes   []Change
		rows      []*Row
		originals []any
	)
	for _, rowID := range utils.UniqueSlice(rowIDs) {
		row, err := s.cache.Row(rowID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid row_id: %d", rowID))
			continue
		}
		if skip != nil && skip(row) {
			continue
		}
		original := row.Get(field)
		if err := row.Set(field, value); err != nil {
			errs = append(errs, fmt.Sprintf("row %d: %v", rowID, err))
			continue
		}
		changes = append(changes, Change{RowID: rowID, Field: field, Old: original, New: row.Get(field)})
		rows = append(rows, row)
		originals = append(originals, original)
	}
	if len(changes) == 0 {
		return 0, errs
	}

	if s.policies.Deferred(field) {
		for _, change := range changes {
			s.ledger.Record(change.RowID, change.Field, change.Old, change.New)
		}
	} else {
		if err := s.gateway.WriteImmediateBatch(ctx, rows, field, originals, value); err != nil {
			config.LogError(s.logger, "session.go", "bulkApply", "WriteImmediateBatch", map[string]any{
				"field": field, "rows": len(rows),
			}, err)
			for _, change := range changes {
				s.ledger.Record(change.RowID, change.Field, change.Old, change.New)
			}
			errs = append(errs, fmt.Sprintf("backend write failed, %d change(s) kept pending: %v", len(changes), err))
		}
	}

	s.undo.Push(Action{Kind: kind, Changes: changes})
	return len(changes), errs
}

// ImportResult reports a flag import from an external canvas-id list.
type ImportResult struct {
	Updated      int `json:"updated"`
	TotalInFile  int `json:"total_in_file"`
	PendingCount int `json:"pending_count"`
}

// ImportIDs marks a review flag for every row whose canvas_id appears in
// the provided list, skipping rows already flagged. The whole import is one
// undoable unit and stays pending until Save.
func (s *Session) ImportIDs(ctx context.Context, field string, canvasIDs []string) (ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if field != "jib" && field != "rev" && field != "vendor" {
		return ImportResult{}, utils.ErrorInvalidField
	}

	wanted := map[string]struct{}{}
	for _, id := range canvasIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			wanted[id] = struct{}{}
		}
	}

	var (
		matchIDs []int
		total    int
	)
	for _, row := range s.cache.Rows() {
		if _, ok := wanted[strings.TrimSpace(row.CanvasID)]; !ok {
			continue
		}
		total++
		if row.Get(field) == 1 {
			continue
		}
		matchIDs = append(matchIDs, row.RowID)
	}

	result := ImportResult{TotalInFile: total}
	if len(matchIDs) == 0 {
		result.PendingCount = s.ledger.PendingCount()
		return result, nil
	}
	updated, errs := s.bulkApply(ctx, matchIDs, field, 1, ActionBulkEdit, nil)
	result.Updated = updated
	result.PendingCount = s.ledger.PendingCount()
	if len(errs) > 0 {
		return result, fmt.Errorf("import applied partially: %s", strings.Join(errs, "; "))
	}
	return result, nil
}

// Save drains the ledger through the persistence gateway and, when
// anything committed, hands a snapshot to the background writer for
// full-source writeback.
func (s *Session) Save(ctx context.Context) SaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.gateway.Save(ctx, s.cache, s.ledger)
	result.Pending = s.ledger.PendingCount()
	if result.Saved > 0 && s.writer != nil {
		s.writer.Submit(s.cache.Snapshot())
	}
	return result
}

// Undo reverses the most recent action. Reversal goes through the normal
// edit path, so undoing an already-saved change makes the ledger dirty
// again and the reversal is persisted on the next save.
func (s *Session) Undo(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger.Frozen() {
		return false, utils.ErrorSaveInFlight
	}
	return s.undo.Undo(func(rowID int, field string, value any) error {
		_, err := s.applyEdit(ctx, rowID, field, value)
		return err
	})
}

func (s *Session) Redo(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger.Frozen() {
		return false, utils.ErrorSaveInFlight
	}
	return s.undo.Redo(func(rowID int, field string, value any) error {
		_, err := s.applyEdit(ctx, rowID, field, value)
		return err
	})
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo.CanRedo()
}

func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.IsDirty()
}

func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.PendingCount()
}

func (s *Session) Query(params QueryParams) QueryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Query(s.cache, params)
}

// VisibleRowIDs resolves the row-id set currently passing the given
// filters, unpaged. This is the scope replace-all operates over.
func (s *Session) VisibleRowIDs(params QueryParams) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	params.Start = 0
	params.Length = AllRows
	result := Query(s.cache, params)
	ids := make([]int, len(result.Rows))
	for i, row := range result.Rows {
		ids[i] = row.RowID
	}
	return ids
}

func (s *Session) Find(term string, columns []string, caseSensitive bool, scope []int) (FindResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FindMatches(s.cache, term, columns, caseSensitive, scope)
}

// ReplaceOne substitutes the first occurrence in the matchIndex-th
// matching cell, routed through the normal edit path so it is undoable and
// saved like any manual edit. Returns whether a cell changed.
func (s *Session) ReplaceOne(ctx context.Context, term, replacement, column string, caseSensitive bool, matchIndex int, scope []int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var columns []string
	if column != "" {
		columns = []string{column}
	}
	found, err := FindMatches(s.cache, term, columns, caseSensitive, scope)
	if err != nil {
		return false, err
	}
	if matchIndex < 0 || matchIndex >= len(found.Cells) {
		return false, nil
	}
	cell := found.Cells[matchIndex]
	row, err := s.cache.Row(cell.RowID)
	if err != nil {
		return false, err
	}
	current := utils.Stringify(row.Get(cell.Field))
	next, ok := replaceFirstSpan(current, term, replacement, caseSensitive)
	if !ok {
		return false, nil
	}
	change, err := s.applyEdit(ctx, cell.RowID, cell.Field, next)
	if err != nil {
		return false, err
	}
	s.undo.Push(Action{Kind: ActionSingleEdit, Changes: []Change{change}})
	return true, nil
}

// ReplaceResult reports a replace-all pass.
type ReplaceResult struct {
	Replaced     int `json:"replaced_count"`
	AffectedRows int `json:"affected_row_count"`
	PendingCount int `json:"pending_count"`
}

// ReplaceAll substitutes every occurrence within scope, which is the
// visible row set, never filtered-out rows. Each substitution routes through the edit
// path; the whole pass reverses as one unit.
func (s *Session) ReplaceAll(ctx context.Context, term, replacement string, columns []string, caseSensitive bool, scope []int) (ReplaceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(columns) == 0 {
		for _, col := range TextColumns {
			if s.policies.Editable(col) {
				columns = append(columns, col)
			}
		}
	} else {
		for _, col := range columns {
			if !s.policies.Editable(col) {
				return ReplaceResult{}, utils.ErrorInvalidField
			}
		}
	}

	found, err := FindMatches(s.cache, term, columns, caseSensitive, scope)
	if err != nil {
		return ReplaceResult{}, err
	}

	var (
		changes  []Change
		result   ReplaceResult
		affected = map[int]struct{}{}
	)
	for _, cell := range found.Cells {
		row, rowErr := s.cache.Row(cell.RowID)
		if rowErr != nil {
			continue
		}
		current := utils.Stringify(row.Get(cell.Field))
		next, n := replaceSpans(current, term, replacement, caseSensitive)
		if n == 0 {
			continue
		}
		change, applyErr := s.applyEdit(ctx, cell.RowID, cell.Field, next)
		if applyErr != nil {
			return result, applyErr
		}
		changes = append(changes, change)
		result.Replaced += n
		affected[cell.RowID] = struct{}{}
	}
	result.AffectedRows = len(affected)
	if len(changes) > 0 {
		s.undo.Push(Action{Kind: ActionReplaceAll, Changes: changes})
	}
	result.PendingCount = s.ledger.PendingCount()
	return result, nil
}

func (s *Session) Record(rowID int) (*Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Row(rowID)
}

func (s *Session) RowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

func (s *Session) Generation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Generation()
}

func (s *Session) Snapshot() []*Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Snapshot()
}

// Recommendations returns the distinct recommendation values discovered in
// the data, sorted.
func (s *Session) Recommendations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, row := range s.cache.Rows() {
		if row.Recommendation != "" {
			seen[row.Recommendation] = struct{}{}
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// Stats summarizes the loaded dataset for the header cards.
type Stats struct {
	TotalRecords      int            `json:"total_records"`
	Recommendations   map[string]int `json:"recommendations"`
	AvgNameScore      float64        `json:"avg_name_score"`
	AvgAddressScore   float64        `json:"avg_address_score"`
	SSNPerfectMatches int            `json:"ssn_perfect_matches"`
	SSNPartialMatches int            `json:"ssn_partial_matches"`
	SSNNoMatch        int            `json:"ssn_no_match"`
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		TotalRecords:    s.cache.Len(),
		Recommendations: map[string]int{},
	}
	var nameSum, addrSum float64
	for _, row := range s.cache.Rows() {
		stats.Recommendations[row.Recommendation]++
		nameSum += row.NameScore
		addrSum += row.AddressScore
		switch {
		case row.SSNMatch == 100:
			stats.SSNPerfectMatches++
		case row.SSNMatch > 0 && row.SSNMatch < 100:
			stats.SSNPartialMatches++
		default:
			stats.SSNNoMatch++
		}
	}
	if stats.TotalRecords > 0 {
		stats.AvgNameScore = math.Round(nameSum/float64(stats.TotalRecords)*10) / 10
		stats.AvgAddressScore = math.Round(addrSum/float64(stats.TotalRecords)*10) / 10
	}
	return stats
}
