package consultation

import "testing"

func TestNextFocus(t *testing.T) {
	tests := []struct {
		name     string
		focus    Focus
		key      Key
		text     string
		rows     int
		want     Action
		wantCell Focus
	}{
		{"enter moves right", Focus{0, FieldPotency}, KeyEnter, "200", 1, ActionMoveFocus, Focus{0, FieldQuantity}},
		{"enter on medicine without space", Focus{0, FieldMedicine}, KeyEnter, "Arnica", 1, ActionMoveFocus, Focus{0, FieldPotency}},
		{"enter on medicine with space", Focus{0, FieldMedicine}, KeyEnter, "Arnica 200 tds", 1, ActionSmartEntry, Focus{0, FieldMedicine}},
		{"tab on medicine with space", Focus{1, FieldMedicine}, KeyTab, "Arnica 200", 2, ActionSmartEntry, Focus{1, FieldMedicine}},
		{"space elsewhere is plain text", Focus{0, FieldDuration}, KeyEnter, "10 days", 1, ActionMoveFocus, Focus{0, FieldBottles}},
		{"enter on last column appends", Focus{0, FieldBottles}, KeyEnter, "1", 1, ActionAppendRow, Focus{1, FieldMedicine}},
		{"enter on last column of middle row appends", Focus{0, FieldBottles}, KeyEnter, "1", 3, ActionAppendRow, Focus{3, FieldMedicine}},
		{"tab on last column wraps", Focus{0, FieldBottles}, KeyTab, "1", 2, ActionMoveFocus, Focus{1, FieldMedicine}},
		{"tab on last cell", Focus{1, FieldBottles}, KeyTab, "1", 2, ActionNone, Focus{1, FieldBottles}},
		{"unknown column", Focus{0, FieldInstructions}, KeyEnter, "", 1, ActionNone, Focus{0, FieldInstructions}},
		{"row out of range", Focus{5, FieldMedicine}, KeyEnter, "", 1, ActionNone, Focus{5, FieldMedicine}},
		{"unknown key", Focus{0, FieldPotency}, "escape", "", 1, ActionNone, Focus{0, FieldPotency}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextFocus(tt.focus, tt.key, tt.text, tt.rows)
			if got.Action != tt.want || got.Focus != tt.wantCell {
				t.Errorf("NextFocus() = %+v, want %s at %+v", got, tt.want, tt.wantCell)
			}
		})
	}
}

func TestNextFocus_WalksEveryColumn(t *testing.T) {
	f := Focus{Row: 0, Column: FieldMedicine}
	var visited []Field
	for {
		visited = append(visited, f.Column)
		tr := NextFocus(f, KeyEnter, "", 1)
		if tr.Action != ActionMoveFocus {
			if tr.Action != ActionAppendRow {
				t.Fatalf("unexpected action %s", tr.Action)
			}
			break
		}
		f = tr.Focus
	}
	if len(visited) != len(Columns) {
		t.Fatalf("visited %v", visited)
	}
	for i := range Columns {
		if visited[i] != Columns[i] {
			t.Errorf("column %d = %s, want %s", i, visited[i], Columns[i])
		}
	}
}
