package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ColumnDef is one column of a schema snapshot.
type ColumnDef struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Ordinal  int    `json:"ordinal"`
}

// SchemaSnapshot is an append-only record of a table's column list at a
// point in time. The most recent snapshot per table is the drift baseline.
type SchemaSnapshot struct {
	ID           uuid.UUID   `json:"id"`
	TableID      uuid.UUID   `json:"table_id"`
	Columns      []ColumnDef `json:"columns"`
	SnapshotHash string      `json:"snapshot_hash"`
	CapturedAt   time.Time   `json:"captured_at"`
}

// HashColumns computes the canonical SHA-256 hash over a column list.
// Columns are ordered by ordinal before serialization so that semantically
// equal column lists always produce the same hash.
func HashColumns(columns []ColumnDef) string {
	sorted := make([]ColumnDef, len(columns))
	copy(sorted, columns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Ordinal < sorted[j].Ordinal
	})

	var b strings.Builder
	for _, c := range sorted {
		fmt.Fprintf(&b, "%s|%s|%t|%d\n", c.Name, c.Type, c.Nullable, c.Ordinal)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
