package consultation

import "strings"

// Key is a navigation key pressed in the sheet
type Key string

const (
	KeyEnter Key = "enter"
	KeyTab   Key = "tab"
)

// Focus is the cell holding keyboard focus
type Focus struct {
	Row    int   `json:"row"`
	Column Field `json:"column"`
}

// Action is what the sheet must do in response to a key
type Action string

const (
	ActionNone       Action = "none"
	ActionMoveFocus  Action = "move_focus"
	ActionAppendRow  Action = "append_row"
	ActionSmartEntry Action = "smart_entry"
)

// Transition is the result of a key press
type Transition struct {
	Action Action `json:"action"`
	Focus  Focus  `json:"focus"`
}

// NextFocus decides what a key press does.
//
// Enter or Tab on the medicine column whose text contains a space runs smart
// entry and keeps focus. Otherwise Enter moves to the next column, or on the
// last column appends a row and focuses its medicine cell. Tab moves to the
// next column, wrapping to the next existing row; on the last cell of the
// sheet it does nothing.
func NextFocus(f Focus, key Key, text string, rowCount int) Transition {
	col := columnIndex(f.Column)
	if col < 0 || f.Row < 0 || f.Row >= rowCount {
		return Transition{Action: ActionNone, Focus: f}
	}

	if f.Column == FieldMedicine && (key == KeyEnter || key == KeyTab) && strings.Contains(text, " ") {
		return Transition{Action: ActionSmartEntry, Focus: f}
	}

	last := col == len(Columns)-1
	switch key {
	case KeyEnter:
		if !last {
			return Transition{Action: ActionMoveFocus, Focus: Focus{Row: f.Row, Column: Columns[col+1]}}
		}
		return Transition{Action: ActionAppendRow, Focus: Focus{Row: rowCount, Column: Columns[0]}}
	case KeyTab:
		if !last {
			return Transition{Action: ActionMoveFocus, Focus: Focus{Row: f.Row, Column: Columns[col+1]}}
		}
		if f.Row+1 < rowCount {
			return Transition{Action: ActionMoveFocus, Focus: Focus{Row: f.Row + 1, Column: Columns[0]}}
		}
	}
	return Transition{Action: ActionNone, Focus: f}
}
