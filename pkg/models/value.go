package models

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ValueKind tags the dynamic type carried by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
)

// Value is a single result cell: null, string, number or bool.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

func NullValue() Value { return Value{Kind: KindNull} }

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue wraps f. NaN and infinities are not representable in JSON and become null.
func NumberValue(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return NullValue()
	}
	return Value{Kind: KindNumber, Num: f}
}

func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsString returns the string payload when the value is a string.
func (v Value) AsString() (string, bool) {
	return v.Str, v.Kind == KindString
}

// AsNumber returns the numeric payload when the value is a number.
func (v Value) AsNumber() (float64, bool) {
	return v.Num, v.Kind == KindNumber
}

// String renders the value for prompts and logs.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return "null"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// FromDriver converts a value produced by pgx rows.Values() into a Value.
// Types without a natural scalar form are rendered as text.
func FromDriver(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return NullValue()
	case string:
		return StringValue(x)
	case bool:
		return BoolValue(x)
	case int:
		return NumberValue(float64(x))
	case int8:
		return NumberValue(float64(x))
	case int16:
		return NumberValue(float64(x))
	case int32:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case uint8:
		return NumberValue(float64(x))
	case uint16:
		return NumberValue(float64(x))
	case uint32:
		return NumberValue(float64(x))
	case uint64:
		return NumberValue(float64(x))
	case float32:
		return NumberValue(float64(x))
	case float64:
		return NumberValue(x)
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return NumberValue(f)
	case pgtype.Numeric:
		return numericValue(x)
	case time.Time:
		return StringValue(formatTime(x))
	case [16]byte:
		return StringValue(uuid.UUID(x).String())
	case []byte:
		if utf8.Valid(x) {
			return StringValue(string(x))
		}
		return StringValue(base64.StdEncoding.EncodeToString(x))
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return StringValue(fmt.Sprint(x))
		}
		return StringValue(string(b))
	case fmt.Stringer:
		return StringValue(x.String())
	default:
		return StringValue(fmt.Sprint(x))
	}
}

func numericValue(n pgtype.Numeric) Value {
	if !n.Valid || n.NaN {
		return NullValue()
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return NullValue()
	}
	return NumberValue(f.Float64)
}

func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 && t.Location() == time.UTC {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339Nano)
}

// Cell is one column/value pair of a Row.
type Cell struct {
	Column string
	Value  Value
}

// Row is an ordered association of column name to value, in driver column order.
// Column names are unique within a row; setting an existing column replaces its value
// but keeps its position.
type Row struct {
	cells []Cell
}

// NewRow builds a row from cells in order.
func NewRow(cells ...Cell) Row {
	var r Row
	for _, c := range cells {
		r.Set(c.Column, c.Value)
	}
	return r
}

// Set assigns a column's value.
func (r *Row) Set(column string, v Value) {
	for i := range r.cells {
		if r.cells[i].Column == column {
			r.cells[i].Value = v
			return
		}
	}
	r.cells = append(r.cells, Cell{Column: column, Value: v})
}

// Get returns a column's value.
func (r Row) Get(column string) (Value, bool) {
	for _, c := range r.cells {
		if c.Column == column {
			return c.Value, true
		}
	}
	return Value{}, false
}

// Cells returns the row's cells in order. Callers must not modify the result.
func (r Row) Cells() []Cell {
	return r.cells
}

// Len returns the number of distinct columns.
func (r Row) Len() int {
	return len(r.cells)
}

// MarshalJSON renders the row as a JSON object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Column)
		if err != nil {
			return nil, err
		}
		val, err := c.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
