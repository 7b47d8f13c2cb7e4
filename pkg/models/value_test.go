package models

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/insights-engine/pkg/apperrors"
)

func TestFromDriver(t *testing.T) {
	id := uuid.MustParse("6f1c2a4e-9e7b-4d2a-8c1f-0a1b2c3d4e5f")

	tests := []struct {
		name string
		in   any
		want Value
	}{
		{name: "nil", in: nil, want: NullValue()},
		{name: "string", in: "Summer Sale", want: StringValue("Summer Sale")},
		{name: "bool", in: true, want: BoolValue(true)},
		{name: "int64", in: int64(5000), want: NumberValue(5000)},
		{name: "int32", in: int32(-7), want: NumberValue(-7)},
		{name: "float64", in: 120.5, want: NumberValue(120.5)},
		{name: "big int", in: big.NewInt(42), want: NumberValue(42)},
		{name: "numeric", in: pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}, want: NumberValue(123.45)},
		{name: "invalid numeric", in: pgtype.Numeric{}, want: NullValue()},
		{name: "date", in: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), want: StringValue("2025-03-01")},
		{name: "timestamp", in: time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC), want: StringValue("2025-03-01T10:30:00Z")},
		{name: "uuid bytes", in: [16]byte(id), want: StringValue(id.String())},
		{name: "utf8 bytes", in: []byte("raw"), want: StringValue("raw")},
		{name: "jsonb object", in: map[string]any{"k": 1.0}, want: StringValue(`{"k":1}`)},
		{name: "NaN", in: math.NaN(), want: NullValue()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromDriver(tt.in))
		})
	}
}

func TestRow_PreservesColumnOrder(t *testing.T) {
	row := NewRow(
		Cell{Column: "thumb", Value: StringValue("https://x/a.mp4")},
		Cell{Column: "spend", Value: NumberValue(120)},
		Cell{Column: "impressions", Value: NumberValue(5000)},
	)

	b, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"thumb":"https://x/a.mp4","spend":120,"impressions":5000}`, string(b))

	v, ok := row.Get("spend")
	require.True(t, ok)
	n, ok := v.AsNumber()
	require.True(t, ok)
	assert.Equal(t, 120.0, n)

	_, ok = row.Get("clicks")
	assert.False(t, ok)
}

func TestRow_DuplicateColumnKeepsFirstPositionLastValue(t *testing.T) {
	var row Row
	row.Set("id", NumberValue(1))
	row.Set("name", StringValue("ad"))
	row.Set("id", NumberValue(2))

	assert.Equal(t, 2, row.Len())
	b, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"id":2,"name":"ad"}`, string(b))
}

func TestSchemaSnapshot_Immutable(t *testing.T) {
	tables := []TableSchema{
		{Name: "t_ad", Columns: []ColumnDescriptor{{Name: "raw_ad_id", DataType: "text"}}},
	}
	snap := NewSchemaSnapshot(tables, time.Now())

	tables[0].Columns[0].Name = "mutated"
	tables[0].Name = "mutated"

	tbl, ok := snap.Table("t_ad")
	require.True(t, ok)
	assert.Equal(t, "raw_ad_id", tbl.Columns[0].Name)
	assert.Equal(t, 1, snap.TableCount())
}

func TestSchemaSnapshot_MarshalJSONKeepsOrder(t *testing.T) {
	snap := NewSchemaSnapshot([]TableSchema{
		{Name: "t_b", Columns: []ColumnDescriptor{{Name: "x", DataType: "integer"}}},
		{Name: "t_a", Columns: nil},
	}, time.Now())

	b, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Equal(t, `{"t_b":[{"column":"x","type":"integer","nullable":false}],"t_a":[]}`, string(b))

	b, err = json.Marshal(EmptySchema())
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))
}

func TestQueryFailure_ErrorKinds(t *testing.T) {
	exec := &QueryFailure{Message: `column "spnd" does not exist`, Code: "42703"}
	assert.True(t, errors.Is(exec, apperrors.ErrExecution))
	assert.Equal(t, `column "spnd" does not exist (SQLSTATE 42703)`, exec.Error())

	gen := &QueryFailure{Message: "oracle unavailable", Code: apperrors.CodeGeneration}
	assert.True(t, errors.Is(gen, apperrors.ErrGeneration))

	val := &QueryFailure{Message: "no SELECT", Code: apperrors.CodeValidation}
	assert.True(t, errors.Is(val, apperrors.ErrValidation))
}

func TestQueryFailure_DetailsOnlyPresentFields(t *testing.T) {
	f := &QueryFailure{Message: "m", Code: "42P01", Hint: "check the table name", Position: 15}
	assert.Equal(t, map[string]any{"hint": "check the table name", "position": int32(15)}, f.Details())
}

func TestChatResult_JSONShapes(t *testing.T) {
	sessionID := uuid.New()

	success := ChatResult{Success: true, Explanation: "CTR is clicks over impressions.", IsGeneralQuestion: true, SessionID: sessionID}
	b, err := json.Marshal(success)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, true, got["success"])
	assert.Nil(t, got["sqlQuery"])
	assert.Contains(t, got, "sqlQuery")
	assert.Equal(t, []any{}, got["data"])
	assert.Equal(t, []any{}, got["assetUrls"])
	assert.Equal(t, true, got["isGeneralQuestion"])
	assert.NotContains(t, got, "error")

	failure := ChatResult{Success: false, Error: "relation does not exist", ErrorCode: "42P01", Message: "try again", SessionID: sessionID}
	b, err = json.Marshal(failure)
	require.NoError(t, err)

	got = map[string]any{}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, false, got["success"])
	assert.Equal(t, "42P01", got["errorCode"])
	assert.NotContains(t, got, "data")
	assert.NotContains(t, got, "errorDetails")
}
