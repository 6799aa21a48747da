package storage

import (
	"testing"
	"time"
)

func TestPropertyRoundTripScalars(t *testing.T) {
	props := map[string]any{
		"null":   nil,
		"bool":   true,
		"int":    int64(42),
		"float":  3.5,
		"string": "hello",
		"list":   []any{int64(1), "two", 3.0},
		"map":    map[string]any{"nested": []any{int64(1)}},
	}
	encoded, err := EncodeProperties(props)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeProperties(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !PropertyEqual(map[string]any(props), map[string]any(decoded)) {
		t.Errorf("round trip mismatch: %v != %v", props, decoded)
	}
	if _, ok := decoded["int"].(int64); !ok {
		t.Errorf("integer decoded as %T, want int64", decoded["int"])
	}
	if _, ok := decoded["float"].(float64); !ok {
		t.Errorf("float decoded as %T, want float64", decoded["float"])
	}
}

func TestPropertyRoundTripTemporal(t *testing.T) {
	date := Date{T: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)}
	dur := Duration{Months: 1, Days: 2, Seconds: 3.5}
	point := Point{X: 1.5, Y: 2.5, SRID: SRIDCartesian}
	geo := Point{X: -71.06, Y: 42.35, SRID: SRIDGeographic}

	props := map[string]any{"d": date, "dur": dur, "p": point, "g": geo}
	encoded, err := EncodeProperties(props)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeProperties(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := decoded["d"].(Date)
	if !ok || got.String() != "2020-01-02" {
		t.Errorf("date round trip = %v (%T)", decoded["d"], decoded["d"])
	}
	gotDur, ok := decoded["dur"].(Duration)
	if !ok || gotDur.Months != 1 || gotDur.Days != 2 || gotDur.Seconds != 3.5 {
		t.Errorf("duration round trip = %+v", decoded["dur"])
	}
	gotPoint, ok := decoded["p"].(Point)
	if !ok || gotPoint != point {
		t.Errorf("point round trip = %v", decoded["p"])
	}
	gotGeo, ok := decoded["g"].(Point)
	if !ok || gotGeo.SRID != SRIDGeographic {
		t.Errorf("geographic point round trip = %v", decoded["g"])
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		months  int64
		days    int64
		seconds float64
	}{
		{"P1M", 1, 0, 0},
		{"P2Y3M", 27, 0, 0},
		{"P1W2D", 0, 9, 0},
		{"PT90S", 0, 0, 90},
		{"PT1H30M", 0, 0, 5400},
		{"P1DT0.5S", 0, 1, 0.5},
	}
	for _, tt := range tests {
		d, err := ParseDuration(tt.in)
		if err != nil {
			t.Errorf("ParseDuration(%q): %v", tt.in, err)
			continue
		}
		if d.Months != tt.months || d.Days != tt.days || d.Seconds != tt.seconds {
			t.Errorf("ParseDuration(%q) = %+v, want {%d %d %g}", tt.in, d, tt.months, tt.days, tt.seconds)
		}
	}
	if _, err := ParseDuration("1M"); err == nil {
		t.Error("ParseDuration without leading P should fail")
	}
}

func TestDurationStringRoundTrip(t *testing.T) {
	for _, d := range []Duration{
		{Months: 14, Days: 3, Seconds: 90},
		{Seconds: 0.25},
		{},
	} {
		parsed, err := ParseDuration(d.String())
		if err != nil {
			t.Fatalf("reparse %q: %v", d.String(), err)
		}
		if parsed != d {
			t.Errorf("round trip %q: got %+v want %+v", d.String(), parsed, d)
		}
	}
}

func TestCypherLiteral(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{true, "true"},
		{int64(7), "7"},
		{2.5, "2.5"},
		{"it's", `'it\'s'`},
		{[]any{int64(1), "a"}, "[1, 'a']"},
	}
	for _, tt := range tests {
		if got := CypherLiteral(tt.in); got != tt.want {
			t.Errorf("CypherLiteral(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
