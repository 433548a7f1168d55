package sqlparse

import (
	"errors"
	"testing"
)

func findSource(sources []SourceRef, table string) (SourceRef, bool) {
	for _, s := range sources {
		if s.Table == table {
			return s, true
		}
	}
	return SourceRef{}, false
}

func TestParseInsertSelect(t *testing.T) {
	parsed, err := Parse(`INSERT INTO analytics.daily_orders SELECT * FROM raw.orders o JOIN raw.customers c ON o.customer_id = c.id`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if parsed.Target != "analytics.daily_orders" {
		t.Errorf("target = %q", parsed.Target)
	}
	for _, want := range []string{"raw.orders", "raw.customers"} {
		src, ok := findSource(parsed.Sources, want)
		if !ok {
			t.Fatalf("missing source %s", want)
		}
		if src.Confidence != ConfidenceDirect {
			t.Errorf("%s confidence = %v, want %v", want, src.Confidence, ConfidenceDirect)
		}
	}
	if parsed.Relationship != "direct" {
		t.Errorf("relationship = %q, want direct", parsed.Relationship)
	}
}

func TestParseCreateTableAs(t *testing.T) {
	parsed, err := Parse(`CREATE TABLE mart.summary AS SELECT region, SUM(total) FROM stg.orders GROUP BY region`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Target != "mart.summary" {
		t.Errorf("target = %q", parsed.Target)
	}
	if _, ok := findSource(parsed.Sources, "stg.orders"); !ok {
		t.Error("missing source stg.orders")
	}
	if parsed.Relationship != "aggregated" {
		t.Errorf("relationship = %q, want aggregated", parsed.Relationship)
	}
}

func TestParseMerge(t *testing.T) {
	parsed, err := Parse(`MERGE INTO dim.customers t USING stg.customers s ON t.id = s.id WHEN MATCHED THEN UPDATE SET name = s.name`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Target != "dim.customers" {
		t.Errorf("target = %q", parsed.Target)
	}
	if _, ok := findSource(parsed.Sources, "stg.customers"); !ok {
		t.Error("missing source stg.customers")
	}
}

func TestParseCTEConfidence(t *testing.T) {
	parsed, err := Parse(`
		INSERT INTO mart.report
		WITH recent AS (SELECT * FROM raw.events WHERE day > current_date - 7)
		SELECT * FROM recent`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	// The CTE name must never appear as a source table.
	if _, ok := findSource(parsed.Sources, "recent"); ok {
		t.Error("CTE name leaked into sources")
	}

	src, ok := findSource(parsed.Sources, "raw.events")
	if !ok {
		t.Fatal("missing source raw.events")
	}
	if src.Confidence != ConfidenceCTE {
		t.Errorf("CTE source confidence = %v, want %v", src.Confidence, ConfidenceCTE)
	}
}

func TestParseSubqueryConfidence(t *testing.T) {
	parsed, err := Parse(`INSERT INTO mart.top SELECT * FROM (SELECT * FROM stg.scores) s`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	src, ok := findSource(parsed.Sources, "stg.scores")
	if !ok {
		t.Fatal("missing source stg.scores")
	}
	if src.Confidence != ConfidenceSubquery {
		t.Errorf("subquery confidence = %v, want %v", src.Confidence, ConfidenceSubquery)
	}
}

func TestParseDeepNesting(t *testing.T) {
	parsed, err := Parse(`INSERT INTO mart.deep SELECT * FROM (SELECT * FROM (SELECT * FROM (SELECT * FROM raw.base) a) b) c`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	src, ok := findSource(parsed.Sources, "raw.base")
	if !ok {
		t.Fatal("missing source raw.base")
	}
	if src.Confidence != ConfidenceDeep {
		t.Errorf("deep confidence = %v, want %v", src.Confidence, ConfidenceDeep)
	}
}

func TestParseNotModifying(t *testing.T) {
	for _, sql := range []string{
		"SELECT * FROM a.b",
		"UPDATE a.b SET x = 1", // no lineage semantics tracked for plain UPDATE
		"",
		"-- just a comment",
	} {
		if _, err := Parse(sql); !errors.Is(err, ErrNotModifying) {
			t.Errorf("Parse(%q) error = %v, want ErrNotModifying", sql, err)
		}
	}
}

func TestParseSelfEdgeExcluded(t *testing.T) {
	parsed, err := Parse(`INSERT INTO a.t SELECT * FROM a.t WHERE false`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed.Sources) != 0 {
		t.Errorf("self reference should be excluded, got %+v", parsed.Sources)
	}
}

func TestQueryHashNormalizes(t *testing.T) {
	a := QueryHash("INSERT INTO a.b  SELECT *\nFROM c.d")
	b := QueryHash("insert into a.b select * from c.d")
	if a != b {
		t.Error("hash should be whitespace and case insensitive")
	}
	if a == QueryHash("insert into a.b select * from c.e") {
		t.Error("different statements should hash differently")
	}
}
