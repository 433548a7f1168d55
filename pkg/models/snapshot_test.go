package models

import (
	"testing"
)

func TestHashColumnsDeterministic(t *testing.T) {
	columns := []ColumnDef{
		{Name: "id", Type: "INT", Nullable: false, Ordinal: 1},
		{Name: "price", Type: "FLOAT", Nullable: true, Ordinal: 2},
	}

	first := HashColumns(columns)
	second := HashColumns(columns)
	if first != second {
		t.Errorf("hash not deterministic: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}
}

func TestHashColumnsOrderedByOrdinal(t *testing.T) {
	inOrder := []ColumnDef{
		{Name: "id", Type: "INT", Nullable: false, Ordinal: 1},
		{Name: "price", Type: "FLOAT", Nullable: true, Ordinal: 2},
	}
	shuffled := []ColumnDef{
		{Name: "price", Type: "FLOAT", Nullable: true, Ordinal: 2},
		{Name: "id", Type: "INT", Nullable: false, Ordinal: 1},
	}

	if HashColumns(inOrder) != HashColumns(shuffled) {
		t.Error("hash should be invariant under input ordering when ordinals match")
	}
}

func TestHashColumnsSensitivity(t *testing.T) {
	base := []ColumnDef{
		{Name: "id", Type: "INT", Nullable: false, Ordinal: 1},
		{Name: "price", Type: "FLOAT", Nullable: true, Ordinal: 2},
	}

	tests := []struct {
		name    string
		columns []ColumnDef
	}{
		{
			name: "type change",
			columns: []ColumnDef{
				{Name: "id", Type: "INT", Nullable: false, Ordinal: 1},
				{Name: "price", Type: "VARCHAR(255)", Nullable: true, Ordinal: 2},
			},
		},
		{
			name: "nullability change",
			columns: []ColumnDef{
				{Name: "id", Type: "INT", Nullable: false, Ordinal: 1},
				{Name: "price", Type: "FLOAT", Nullable: false, Ordinal: 2},
			},
		},
		{
			name: "rename",
			columns: []ColumnDef{
				{Name: "id", Type: "INT", Nullable: false, Ordinal: 1},
				{Name: "amount", Type: "FLOAT", Nullable: true, Ordinal: 2},
			},
		},
		{
			name: "added column",
			columns: []ColumnDef{
				{Name: "id", Type: "INT", Nullable: false, Ordinal: 1},
				{Name: "price", Type: "FLOAT", Nullable: true, Ordinal: 2},
				{Name: "note", Type: "TEXT", Nullable: true, Ordinal: 3},
			},
		},
	}

	baseHash := HashColumns(base)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if HashColumns(tt.columns) == baseHash {
				t.Error("expected a different hash")
			}
		})
	}
}
