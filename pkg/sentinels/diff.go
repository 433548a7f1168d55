package sentinels

import (
	"strings"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/models"
)

// typeFamilies groups warehouse types for rename-compatibility checks.
var typeFamilies = map[string]string{
	"smallint": "numeric", "integer": "numeric", "int": "numeric", "int4": "numeric",
	"bigint": "numeric", "int8": "numeric", "numeric": "numeric", "decimal": "numeric",
	"real": "numeric", "float": "numeric", "double precision": "numeric", "money": "numeric",
	"character varying": "text", "varchar": "text", "character": "text", "char": "text",
	"text": "text", "nvarchar": "text", "nchar": "text",
	"timestamp without time zone": "temporal", "timestamp with time zone": "temporal",
	"timestamp": "temporal", "timestamptz": "temporal", "date": "temporal",
	"time": "temporal", "datetime": "temporal", "datetime2": "temporal",
	"boolean": "boolean", "bool": "boolean", "bit": "boolean",
}

func typeFamily(dataType string) string {
	t := strings.ToLower(strings.TrimSpace(dataType))
	// Strip length/precision suffixes: varchar(255) -> varchar
	if idx := strings.IndexByte(t, '('); idx > 0 {
		t = t[:idx]
	}
	if family, ok := typeFamilies[t]; ok {
		return family
	}
	return t
}

// typesCompatible reports whether a rename between the two types is
// plausible: identical types, or members of the same family.
func typesCompatible(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	return typeFamily(a) == typeFamily(b)
}

// DiffColumns computes the schema change list between two column lists.
// A delete and an add at the same ordinal with compatible types collapse
// into an inferred rename. Ambiguous multi-rename cases resolve per
// ordinal independently.
func DiffColumns(prior, current []models.ColumnDef) []models.SchemaChange {
	priorByName := make(map[string]models.ColumnDef, len(prior))
	for _, c := range prior {
		priorByName[c.Name] = c
	}
	currentByName := make(map[string]models.ColumnDef, len(current))
	for _, c := range current {
		currentByName[c.Name] = c
	}

	var added, deleted []models.ColumnDef
	var changes []models.SchemaChange

	for _, c := range current {
		if _, ok := priorByName[c.Name]; !ok {
			added = append(added, c)
		}
	}
	for _, c := range prior {
		if _, ok := currentByName[c.Name]; !ok {
			deleted = append(deleted, c)
		}
	}

	// Type changes on surviving columns.
	for _, c := range current {
		if p, ok := priorByName[c.Name]; ok && !strings.EqualFold(p.Type, c.Type) {
			changes = append(changes, models.SchemaChange{
				ChangeType: models.ChangeColumnTypeChanged,
				Column:     c.Name,
				FromType:   p.Type,
				ToType:     c.Type,
			})
		}
	}

	// Rename inference: same ordinal, different name, compatible type.
	renamedAdd := make(map[string]bool)
	renamedDel := make(map[string]bool)
	for _, d := range deleted {
		for _, a := range added {
			if renamedAdd[a.Name] {
				continue
			}
			if d.Ordinal == a.Ordinal && typesCompatible(d.Type, a.Type) {
				changes = append(changes, models.SchemaChange{
					ChangeType: models.ChangeColumnRenamed,
					Column:     a.Name,
					FromName:   d.Name,
					FromType:   d.Type,
					ToType:     a.Type,
				})
				renamedAdd[a.Name] = true
				renamedDel[d.Name] = true
				break
			}
		}
	}

	for _, a := range added {
		if renamedAdd[a.Name] {
			continue
		}
		nullable := a.Nullable
		changes = append(changes, models.SchemaChange{
			ChangeType: models.ChangeColumnAdded,
			Column:     a.Name,
			ToType:     a.Type,
			Nullable:   &nullable,
		})
	}
	for _, d := range deleted {
		if renamedDel[d.Name] {
			continue
		}
		changes = append(changes, models.SchemaChange{
			ChangeType: models.ChangeColumnDeleted,
			Column:     d.Name,
			FromType:   d.Type,
		})
	}

	return changes
}

// ClassifySeverity maps a change list to the anomaly severity: the maximum
// over per-change severities.
func ClassifySeverity(changes []models.SchemaChange) string {
	severity := models.SeverityLow
	for _, change := range changes {
		severity = models.MaxSeverity(severity, changeSeverity(change))
	}
	return severity
}

func changeSeverity(change models.SchemaChange) string {
	switch change.ChangeType {
	case models.ChangeColumnDeleted, models.ChangeColumnTypeChanged:
		return models.SeverityCritical
	case models.ChangeColumnRenamed:
		return models.SeverityHigh
	case models.ChangeColumnAdded:
		if change.Nullable != nil && !*change.Nullable {
			return models.SeverityMedium
		}
		return models.SeverityLow
	default:
		return models.SeverityLow
	}
}
