package models

import (
	"encoding/json"
	"time"
)

// ColumnDescriptor describes one column of a table as reported by the catalog.
type ColumnDescriptor struct {
	Name             string  `json:"column"`
	DataType         string  `json:"type"`
	IsNullable       bool    `json:"nullable"`
	DefaultValue     *string `json:"default,omitempty"`
	MaxLength        *int32  `json:"maxLength,omitempty"`
	NumericPrecision *int32  `json:"precision,omitempty"`
	NumericScale     *int32  `json:"scale,omitempty"`
	OrdinalPosition  int     `json:"-"`
}

// TableSchema is a table and its columns in declaration order.
type TableSchema struct {
	Name    string
	Columns []ColumnDescriptor
}

// SchemaSnapshot is an immutable view of the target namespace's tables.
// It is replaced wholesale on refresh and never modified after construction.
type SchemaSnapshot struct {
	tables    []TableSchema
	index     map[string]int
	fetchedAt time.Time
}

// NewSchemaSnapshot builds a snapshot from tables in catalog order.
// The slice is copied; later changes by the caller are not observed.
func NewSchemaSnapshot(tables []TableSchema, fetchedAt time.Time) *SchemaSnapshot {
	s := &SchemaSnapshot{
		tables:    make([]TableSchema, len(tables)),
		index:     make(map[string]int, len(tables)),
		fetchedAt: fetchedAt,
	}
	for i, t := range tables {
		cols := make([]ColumnDescriptor, len(t.Columns))
		copy(cols, t.Columns)
		s.tables[i] = TableSchema{Name: t.Name, Columns: cols}
		s.index[t.Name] = i
	}
	return s
}

// EmptySchema returns a snapshot with no tables.
func EmptySchema() *SchemaSnapshot {
	return NewSchemaSnapshot(nil, time.Time{})
}

// Tables returns the tables in catalog order. Callers must not modify the result.
func (s *SchemaSnapshot) Tables() []TableSchema {
	if s == nil {
		return nil
	}
	return s.tables
}

// Table looks up a table by name.
func (s *SchemaSnapshot) Table(name string) (TableSchema, bool) {
	if s == nil {
		return TableSchema{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return TableSchema{}, false
	}
	return s.tables[i], true
}

// TableCount returns the number of tables in the snapshot.
func (s *SchemaSnapshot) TableCount() int {
	if s == nil {
		return 0
	}
	return len(s.tables)
}

// IsEmpty reports whether the snapshot has no tables.
func (s *SchemaSnapshot) IsEmpty() bool {
	return s.TableCount() == 0
}

// FetchedAt is when the catalog was read. Zero for the empty snapshot.
func (s *SchemaSnapshot) FetchedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.fetchedAt
}

// MarshalJSON renders the snapshot as a table name to column list object,
// preserving catalog order of both tables and columns.
func (s *SchemaSnapshot) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, t := range s.Tables() {
		if i > 0 {
			buf = append(buf, ',')
		}
		name, err := json.Marshal(t.Name)
		if err != nil {
			return nil, err
		}
		cols := t.Columns
		if cols == nil {
			cols = []ColumnDescriptor{}
		}
		body, err := json.Marshal(cols)
		if err != nil {
			return nil, err
		}
		buf = append(buf, name...)
		buf = append(buf, ':')
		buf = append(buf, body...)
	}
	return append(buf, '}'), nil
}
