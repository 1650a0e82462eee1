package pgops

import (
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestConvertValue(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "hello", "hello"},
		{"int64", int64(42), int64(42)},
		{"bool", true, true},
		{"timestamp", ts, "2026-03-14T09:26:53Z"},
		{"float", 3.5, 3.5},
		{"nan", math.NaN(), "NaN"},
		{"positive infinity", math.Inf(1), "Infinity"},
		{"negative infinity", math.Inf(-1), "-Infinity"},
		{"float32 nan", float32(math.NaN()), "NaN"},
		{"bytea", []byte{0xde, 0xad}, "3q0="},
		{"uuid", [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}, "12345678-9abc-def0-1234-56789abcdef0"},
		{"null pgtype time", pgtype.Time{}, nil},
		{"pgtype time", pgtype.Time{Microseconds: 3*3_600_000_000 + 25*60_000_000 + 7_000_000, Valid: true}, "03:25:07"},
		{"null numeric", pgtype.Numeric{}, nil},
		{"numeric nan", pgtype.Numeric{Valid: true, NaN: true}, "NaN"},
		{"null range", pgtype.Range[any]{}, nil},
		{
			"int range",
			pgtype.Range[any]{Lower: int64(1), Upper: int64(5), LowerType: pgtype.Inclusive, UpperType: pgtype.Exclusive, Valid: true},
			"[1,5)",
		},
		{
			"unbounded upper range",
			pgtype.Range[any]{Lower: int64(1), LowerType: pgtype.Inclusive, UpperType: pgtype.Unbounded, Valid: true},
			"[1,)",
		},
		{"empty range", pgtype.Range[any]{LowerType: pgtype.Empty, UpperType: pgtype.Empty, Valid: true}, "empty"},
		{"null bits", pgtype.Bits{}, nil},
		{"bit string", pgtype.Bits{Bytes: []byte{0b10110000}, Len: 4, Valid: true}, "1011"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := convertValue(tt.in); got != tt.want {
				t.Errorf("convertValue(%v) = %v (%T), want %v", tt.in, got, got, tt.want)
			}
		})
	}
}

func TestConvertValueRecursesIntoContainers(t *testing.T) {
	in := map[string]any{
		"when": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		"list": []any{math.Inf(1)},
	}
	out, ok := convertValue(in).(map[string]any)
	if !ok {
		t.Fatal("map not preserved")
	}
	if out["when"] != "2026-01-01T00:00:00Z" {
		t.Errorf("nested time = %v", out["when"])
	}
	list := out["list"].([]any)
	if list[0] != "Infinity" {
		t.Errorf("nested infinity = %v", list[0])
	}
}
