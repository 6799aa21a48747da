package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Property values are persisted as a single JSON object per entity.
// Scalar JSON types map directly; temporal and spatial logical types are
// serialized as tagged objects so they round-trip through the store:
//
//	{"__grafito_type":"date","value":"2020-01-02"}
//	{"__grafito_type":"point","x":1.0,"y":2.0,"srid":7203}
//
// Decoding goes through json.Number so integers survive as int64 rather
// than collapsing to float64.

const typeTag = "__grafito_type"

// Temporal logical types. Values carry a time.Time (or Duration fields)
// in the evaluator and serialize to ISO-8601 text at rest.
type (
	// Date is a calendar date without a time component.
	Date struct{ T time.Time }
	// LocalTime is a wall-clock time without zone.
	LocalTime struct{ T time.Time }
	// ZonedTime is a wall-clock time with a fixed offset.
	ZonedTime struct{ T time.Time }
	// LocalDateTime is a date and time without zone.
	LocalDateTime struct{ T time.Time }
	// DateTime is a date and time with a fixed offset.
	DateTime struct{ T time.Time }
)

// Duration is a Cypher duration: months, days and seconds are carried
// separately because they do not interconvert on a calendar.
type Duration struct {
	Months  int64
	Days    int64
	Seconds float64
}

// Point is a 2D spatial value. SRID 7203 is Cartesian, 4326 geographic
// (x=longitude, y=latitude).
type Point struct {
	X, Y float64
	SRID int
}

const (
	SRIDCartesian  = 7203
	SRIDGeographic = 4326
)

func (d Date) String() string          { return d.T.Format("2006-01-02") }
func (t LocalTime) String() string     { return t.T.Format("15:04:05.999999999") }
func (t ZonedTime) String() string     { return t.T.Format("15:04:05.999999999Z07:00") }
func (t LocalDateTime) String() string { return t.T.Format("2006-01-02T15:04:05.999999999") }
func (t DateTime) String() string      { return t.T.Format("2006-01-02T15:04:05.999999999Z07:00") }

func (d Duration) String() string {
	// ISO-8601 duration, P<months>M<days>DT<seconds>S collapsed to the
	// populated components.
	var buf bytes.Buffer
	buf.WriteByte('P')
	if d.Months != 0 {
		fmt.Fprintf(&buf, "%dM", d.Months)
	}
	if d.Days != 0 {
		fmt.Fprintf(&buf, "%dD", d.Days)
	}
	if d.Seconds != 0 || (d.Months == 0 && d.Days == 0) {
		buf.WriteByte('T')
		if d.Seconds == math.Trunc(d.Seconds) {
			fmt.Fprintf(&buf, "%dS", int64(d.Seconds))
		} else {
			fmt.Fprintf(&buf, "%gS", d.Seconds)
		}
	}
	return buf.String()
}

func (p Point) String() string {
	if p.SRID == SRIDGeographic {
		return fmt.Sprintf("point({longitude: %g, latitude: %g})", p.X, p.Y)
	}
	return fmt.Sprintf("point({x: %g, y: %g})", p.X, p.Y)
}

// EncodeProperties serializes a property map to JSON text. Keys are
// emitted in sorted order so encodings are stable.
func EncodeProperties(props map[string]any) (string, error) {
	if len(props) == 0 {
		return "{}", nil
	}
	enc := make(map[string]json.RawMessage, len(props))
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, err := encodeValue(props[k])
		if err != nil {
			return "", fmt.Errorf("property %q: %w", k, err)
		}
		enc[k] = raw
	}
	out, err := json.Marshal(enc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodeProperties parses JSON property text back into typed values.
func DecodeProperties(text string) (map[string]any, error) {
	if text == "" || text == "{}" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		dv, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		out[k] = dv
	}
	return out, nil
}

func encodeValue(v any) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil, bool, string, float64, int64, int, int32, json.Number:
		return json.Marshal(val)
	case []any:
		parts := make([]json.RawMessage, len(val))
		for i, item := range val {
			raw, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			parts[i] = raw
		}
		return json.Marshal(parts)
	case map[string]any:
		enc := make(map[string]json.RawMessage, len(val))
		for k, item := range val {
			raw, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			enc[k] = raw
		}
		return json.Marshal(enc)
	case Date:
		return tagged("date", val.String())
	case LocalTime:
		return tagged("localtime", val.String())
	case ZonedTime:
		return tagged("time", val.String())
	case LocalDateTime:
		return tagged("localdatetime", val.String())
	case DateTime:
		return tagged("datetime", val.String())
	case Duration:
		return tagged("duration", val.String())
	case Point:
		return json.Marshal(map[string]any{
			typeTag: "point", "x": val.X, "y": val.Y, "srid": val.SRID,
		})
	case []float32:
		parts := make([]json.RawMessage, len(val))
		for i, f := range val {
			raw, err := json.Marshal(f)
			if err != nil {
				return nil, err
			}
			parts[i] = raw
		}
		return json.Marshal(parts)
	default:
		return nil, fmt.Errorf("unsupported property type %T", v)
	}
}

func tagged(kind, value string) (json.RawMessage, error) {
	return json.Marshal(map[string]string{typeTag: kind, "value": value})
}

func decodeValue(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		return val.Float64()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			dv, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	case map[string]any:
		if tag, ok := val[typeTag].(string); ok {
			return decodeTagged(tag, val)
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			dv, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	default:
		return v, nil
	}
}

func decodeTagged(tag string, val map[string]any) (any, error) {
	if tag == "point" {
		x, err := numField(val, "x")
		if err != nil {
			return nil, err
		}
		y, err := numField(val, "y")
		if err != nil {
			return nil, err
		}
		srid := SRIDCartesian
		if s, err := numField(val, "srid"); err == nil {
			srid = int(s)
		}
		return Point{X: x, Y: y, SRID: srid}, nil
	}
	text, _ := val["value"].(string)
	return ParseTemporal(tag, text)
}

func numField(m map[string]any, key string) (float64, error) {
	switch n := m[key].(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("point field %q missing or non-numeric", key)
	}
}

// ParseTemporal parses the at-rest string form of a temporal value.
func ParseTemporal(kind, text string) (any, error) {
	switch kind {
	case "date":
		t, err := time.Parse("2006-01-02", text)
		if err != nil {
			return nil, err
		}
		return Date{T: t}, nil
	case "localtime":
		t, err := parseFirst(text, "15:04:05.999999999", "15:04:05", "15:04")
		if err != nil {
			return nil, err
		}
		return LocalTime{T: t}, nil
	case "time":
		t, err := parseFirst(text, "15:04:05.999999999Z07:00", "15:04:05Z07:00")
		if err != nil {
			return nil, err
		}
		return ZonedTime{T: t}, nil
	case "localdatetime":
		t, err := parseFirst(text, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05")
		if err != nil {
			return nil, err
		}
		return LocalDateTime{T: t}, nil
	case "datetime":
		t, err := parseFirst(text, time.RFC3339Nano, time.RFC3339)
		if err != nil {
			return nil, err
		}
		return DateTime{T: t}, nil
	case "duration":
		return ParseDuration(text)
	default:
		return nil, fmt.Errorf("unknown temporal kind %q", kind)
	}
}

func parseFirst(text string, layouts ...string) (time.Time, error) {
	var last error
	for _, layout := range layouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t, nil
		}
		last = err
	}
	return time.Time{}, last
}

// ParseDuration parses an ISO-8601 duration of the form emitted by
// Duration.String (P[nY][nM][nW][nD][T[nH][nM][n[.n]S]]).
func ParseDuration(text string) (Duration, error) {
	var d Duration
	if len(text) == 0 || text[0] != 'P' {
		return d, fmt.Errorf("invalid duration %q", text)
	}
	rest := text[1:]
	inTime := false
	num := ""
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		switch {
		case c == 'T':
			inTime = true
		case c >= '0' && c <= '9' || c == '.' || c == '-':
			num += string(c)
		default:
			if num == "" {
				return d, fmt.Errorf("invalid duration %q", text)
			}
			var f float64
			if _, err := fmt.Sscanf(num, "%g", &f); err != nil {
				return d, fmt.Errorf("invalid duration %q", text)
			}
			switch {
			case c == 'Y' && !inTime:
				d.Months += int64(f) * 12
			case c == 'M' && !inTime:
				d.Months += int64(f)
			case c == 'W' && !inTime:
				d.Days += int64(f) * 7
			case c == 'D' && !inTime:
				d.Days += int64(f)
			case c == 'H' && inTime:
				d.Seconds += f * 3600
			case c == 'M' && inTime:
				d.Seconds += f * 60
			case c == 'S' && inTime:
				d.Seconds += f
			default:
				return d, fmt.Errorf("invalid duration component %q in %q", string(c), text)
			}
			num = ""
		}
	}
	return d, nil
}
