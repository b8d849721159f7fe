package models

// ActionKind tags one reversible user action.
type ActionKind string

const (
	ActionSingleEdit  ActionKind = "single_edit"
	ActionBulkEdit    ActionKind = "bulk_edit"
	ActionApprove     ActionKind = "approve"
	ActionBulkApprove ActionKind = "bulk_approve"
	ActionReplaceAll  ActionKind = "replace_all"
)

// Change is one field transition inside an action.
type Change struct {
	RowID int
	Field string
	Old   any
	New   any
}

// Action is one undoable unit. Bulk and replace-all actions carry their
// whole change list and reverse together.
type Action struct {
	Kind    ActionKind
	Changes []Change
}

// DefaultUndoDepth matches the grid's history cap.
const DefaultUndoDepth = 50

// UndoStack records committed user actions. Undoing or redoing re-applies
// values through the ledger's edit path, so reversing an already-saved
// change re-dirties the ledger and the reversal itself is persisted on the
// next save. The redo stack is cleared whenever a fresh action is pushed.
type UndoStack struct {
	maxDepth int
	undo     []Action
	redo     []Action

	// busy while an undo/redo is applying; guards against re-entrant
	// pushes from rapid keystrokes.
	busy bool
}

func NewUndoStack(maxDepth int) *UndoStack {
	if maxDepth <= 0 {
		maxDepth = DefaultUndoDepth
	}
	return &UndoStack{maxDepth: maxDepth}
}

func (s *UndoStack) Push(action Action) {
	if s.busy || len(action.Changes) == 0 {
		return
	}
	s.undo = append(s.undo, action)
	if len(s.undo) > s.maxDepth {
		s.undo = s.undo[1:]
	}
	s.redo = s.redo[:0]
}

func (s *UndoStack) CanUndo() bool { return len(s.undo) > 0 }
func (s *UndoStack) CanRedo() bool { return len(s.redo) > 0 }

// Undo pops the top action and applies each change's old value through
// apply. Returns false when there is nothing to undo.
func (s *UndoStack) Undo(apply func(rowID int, field string, value any) error) (bool, error) {
	if s.busy || len(s.undo) == 0 {
		return false, nil
	}
	s.busy = true
	defer func() { s.busy = false }()

	action := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]

	var firstErr error
	for i := len(action.Changes) - 1; i >= 0; i-- {
		change := action.Changes[i]
		if err := apply(change.RowID, change.Field, change.Old); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.redo = append(s.redo, action)
	return true, firstErr
}

// Redo re-applies the most recently undone action's new values.
func (s *UndoStack) Redo(apply func(rowID int, field string, value any) error) (bool, error) {
	if s.busy || len(s.redo) == 0 {
		return false, nil
	}
	s.busy = true
	defer func() { s.busy = false }()

	action := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]

	var firstErr error
	for _, change := range action.Changes {
		if err := apply(change.RowID, change.Field, change.New); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.undo = append(s.undo, action)
	return true, firstErr
}

// Reset drops both stacks. Row ids are not stable across generations, so a
// reload or datasource switch clears history.
func (s *UndoStack) Reset() {
	s.undo = s.undo[:0]
	s.redo = s.redo[:0]
}
