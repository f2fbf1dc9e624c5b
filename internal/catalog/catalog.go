// Package catalog describes the persisted layout of both bounded contexts:
// tables, columns, relationships, indexes and check constraints. It backs the
// schema describe and search commands and the /schema endpoint.
package catalog

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/ehr/claimsdb/internal/platform/apperr"
	"github.com/ehr/claimsdb/migrations"
)

type Column struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	PrimaryKey bool   `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	Nullable   bool   `json:"nullable" yaml:"nullable"`
	Unique     bool   `json:"unique,omitempty" yaml:"unique,omitempty"`
}

type Index struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
	Unique  bool     `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// Relationship is one foreign key column pointing at another table's key.
// Table names are schema qualified.
type Relationship struct {
	SourceTable  string `json:"source_table" yaml:"source_table"`
	SourceColumn string `json:"source_column" yaml:"source_column"`
	TargetTable  string `json:"target_table" yaml:"target_table"`
	TargetColumn string `json:"target_column" yaml:"target_column"`
}

func (r Relationship) String() string {
	return r.SourceTable + "." + r.SourceColumn + " -> " + r.TargetTable + "." + r.TargetColumn
}

type TableSpec struct {
	Schema      string   `json:"schema" yaml:"schema"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Columns     []Column `json:"columns" yaml:"columns"`
	Indexes     []Index  `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	Checks      []string `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// QualifiedName returns schema.name.
func (t TableSpec) QualifiedName() string { return t.Schema + "." + t.Name }

// Column returns the named column.
func (t TableSpec) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Tables returns every table of both schemas in migration order.
func Tables() []TableSpec {
	out := make([]TableSpec, len(tables))
	copy(out, tables)
	return out
}

// Table resolves a table by qualified name, or by bare name when only one
// schema has a table of that name.
func Table(name string) (TableSpec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	var matches []TableSpec
	for _, t := range tables {
		if t.QualifiedName() == name || t.Name == name {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return TableSpec{}, apperr.NotFound("table", name)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.QualifiedName())
		}
		return TableSpec{}, apperr.Invalid("table", "table %q is ambiguous: use one of %s", name, strings.Join(names, ", "))
	}
}

// Relationships returns every foreign key of both schemas.
func Relationships() []Relationship {
	out := make([]Relationship, len(relationships))
	copy(out, relationships)
	return out
}

// Describe returns one table with every relationship it takes part in.
func Describe(name string) (Result, error) {
	t, err := Table(name)
	if err != nil {
		return Result{}, err
	}
	res := Result{Tables: []TableSpec{t}}
	for _, r := range relationships {
		if r.SourceTable == t.QualifiedName() || r.TargetTable == t.QualifiedName() {
			res.Relationships = append(res.Relationships, r)
		}
	}
	return res, nil
}

// Schemas returns the schema names the catalog covers.
func Schemas() []string {
	return append([]string(nil), migrations.Schemas...)
}

// Format writes a plain-text rendering of the whole catalog to w.
func Format(w io.Writer) error {
	return FormatResult(w, Result{Tables: tables, Relationships: relationships})
}

// FormatResult writes the tables and relationships of r to w.
func FormatResult(w io.Writer, r Result) error {
	ew := &errWriter{w: w}
	ew.printf("Database Schema:\n\n")
	for _, t := range r.Tables {
		ew.printf("Table: %s\n", t.QualifiedName())
		if t.Description != "" {
			ew.printf("  %s\n", t.Description)
		}
		for _, c := range t.Columns {
			ew.printf("  - %s (%s)%s\n", c.Name, c.Type, columnFlags(c))
		}
		for _, ix := range t.Indexes {
			kind := "index"
			if ix.Unique {
				kind = "unique"
			}
			ew.printf("  %s %s (%s)\n", kind, ix.Name, strings.Join(ix.Columns, ", "))
		}
		for _, ck := range t.Checks {
			ew.printf("  check %s\n", ck)
		}
		ew.printf("\n")
	}
	if len(r.Relationships) > 0 {
		ew.printf("Relationships:\n")
		for _, rel := range r.Relationships {
			ew.printf("  - %s\n", rel)
		}
	}
	return ew.err
}

func columnFlags(c Column) string {
	var flags []string
	if c.PrimaryKey {
		flags = append(flags, "PK")
	}
	if c.Unique {
		flags = append(flags, "UNIQUE")
	}
	if !c.Nullable && !c.PrimaryKey {
		flags = append(flags, "NOT NULL")
	}
	if len(flags) == 0 {
		return ""
	}
	return " " + strings.Join(flags, ", ")
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// Result is the part of the catalog a search matched.
type Result struct {
	Tables        []TableSpec    `json:"tables"`
	Relationships []Relationship `json:"relationships"`
}

var termPattern = regexp.MustCompile(`\w+`)

// Search matches the words of query against table and column names,
// case-insensitively. A table matched by name keeps all its columns; a table
// matched only through columns keeps just those. Tables linked to a match by
// a foreign key are pulled in whole, together with the linking relationships.
func Search(query string) Result {
	terms := make(map[string]bool)
	for _, t := range termPattern.FindAllString(strings.ToLower(query), -1) {
		terms[t] = true
	}

	matched := make(map[string]TableSpec)
	for _, t := range tables {
		if tableMatches(t, terms) {
			matched[t.QualifiedName()] = t
			continue
		}
		var cols []Column
		for _, c := range t.Columns {
			if terms[c.Name] {
				cols = append(cols, c)
			}
		}
		if len(cols) > 0 {
			narrowed := t
			narrowed.Columns = cols
			narrowed.Indexes = nil
			narrowed.Checks = nil
			matched[t.QualifiedName()] = narrowed
		}
	}

	var rels []Relationship
	direct := make(map[string]bool, len(matched))
	for name := range matched {
		direct[name] = true
	}
	for _, rel := range relationships {
		if !direct[rel.SourceTable] && !direct[rel.TargetTable] {
			continue
		}
		rels = append(rels, rel)
		for _, name := range []string{rel.SourceTable, rel.TargetTable} {
			if _, ok := matched[name]; !ok {
				t, _ := Table(name)
				matched[name] = t
			}
		}
	}

	out := Result{Relationships: rels}
	for _, t := range tables {
		if m, ok := matched[t.QualifiedName()]; ok {
			out.Tables = append(out.Tables, m)
		}
	}
	return out
}

// tableMatches accepts the table name or the singular of a plural table
// name ("claim" finds claims).
func tableMatches(t TableSpec, terms map[string]bool) bool {
	if terms[t.Name] {
		return true
	}
	return strings.HasSuffix(t.Name, "s") && terms[strings.TrimSuffix(t.Name, "s")]
}

// TableNames returns the qualified names of every table, sorted.
func TableNames() []string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.QualifiedName())
	}
	sort.Strings(names)
	return names
}
