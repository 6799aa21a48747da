package cypher

import (
	"math"
	"strings"
	"time"

	"github.com/orneryd/grafito/pkg/storage"
)

// Temporal logical types: constructors, component access, arithmetic and
// truncation. Values are the storage package's tagged types so they
// round-trip through properties unchanged.

func timeOf(v any) (time.Time, bool) {
	switch t := v.(type) {
	case storage.Date:
		return t.T, true
	case storage.LocalTime:
		return t.T, true
	case storage.ZonedTime:
		return t.T, true
	case storage.LocalDateTime:
		return t.T, true
	case storage.DateTime:
		return t.T, true
	default:
		return time.Time{}, false
	}
}

func rewrap(template any, t time.Time) any {
	switch template.(type) {
	case storage.Date:
		return storage.Date{T: t}
	case storage.LocalTime:
		return storage.LocalTime{T: t}
	case storage.ZonedTime:
		return storage.ZonedTime{T: t}
	case storage.LocalDateTime:
		return storage.LocalDateTime{T: t}
	default:
		return storage.DateTime{T: t}
	}
}

// temporalComponent resolves component access like d.year, t.minute,
// dur.days.
func temporalComponent(v any, key string) (any, bool) {
	if d, ok := v.(storage.Duration); ok {
		switch key {
		case "months":
			return d.Months, true
		case "days":
			return d.Days, true
		case "seconds":
			return int64(d.Seconds), true
		case "milliseconds":
			return int64(d.Seconds * 1000), true
		case "nanoseconds":
			return int64(d.Seconds * 1e9), true
		}
		return nil, false
	}
	t, ok := timeOf(v)
	if !ok {
		return nil, false
	}
	switch key {
	case "year":
		return int64(t.Year()), true
	case "month":
		return int64(t.Month()), true
	case "day":
		return int64(t.Day()), true
	case "hour":
		return int64(t.Hour()), true
	case "minute":
		return int64(t.Minute()), true
	case "second":
		return int64(t.Second()), true
	case "millisecond":
		return int64(t.Nanosecond() / 1e6), true
	case "microsecond":
		return int64(t.Nanosecond() / 1e3), true
	case "nanosecond":
		return int64(t.Nanosecond()), true
	case "dayOfWeek", "weekday":
		wd := int64(t.Weekday())
		if wd == 0 {
			wd = 7 // ISO: Monday=1 … Sunday=7
		}
		return wd, true
	case "ordinalDay", "dayOfYear":
		return int64(t.YearDay()), true
	case "week":
		_, week := t.ISOWeek()
		return int64(week), true
	case "quarter":
		return int64((int(t.Month())-1)/3 + 1), true
	case "epochSeconds":
		return t.Unix(), true
	case "epochMillis":
		return t.UnixMilli(), true
	case "timezone", "offset":
		return t.Format("Z07:00"), true
	}
	return nil, false
}

// temporalArithmetic handles temporal ± duration, duration ± duration and
// duration scaling. Returns handled=false when neither operand is
// temporal.
func temporalArithmetic(op string, left, right any) (any, bool, error) {
	ld, lIsDur := left.(storage.Duration)
	rd, rIsDur := right.(storage.Duration)
	if _, ok := timeOf(left); ok && rIsDur {
		t, _ := timeOf(left)
		switch op {
		case "+":
			return rewrap(left, addDuration(t, rd)), true, nil
		case "-":
			return rewrap(left, addDuration(t, negateDuration(rd))), true, nil
		}
		return nil, true, execErrorf("cannot apply %q to %s and DURATION", op, valueTypeName(left))
	}
	if lIsDur {
		if _, ok := timeOf(right); ok && op == "+" {
			t, _ := timeOf(right)
			return rewrap(right, addDuration(t, ld)), true, nil
		}
		if rIsDur {
			switch op {
			case "+":
				return storage.Duration{
					Months: ld.Months + rd.Months, Days: ld.Days + rd.Days,
					Seconds: ld.Seconds + rd.Seconds,
				}, true, nil
			case "-":
				return storage.Duration{
					Months: ld.Months - rd.Months, Days: ld.Days - rd.Days,
					Seconds: ld.Seconds - rd.Seconds,
				}, true, nil
			}
			return nil, true, execErrorf("cannot apply %q to two durations", op)
		}
		if f, ok := numeric(right); ok {
			switch op {
			case "*":
				return scaleDuration(ld, f), true, nil
			case "/":
				if f == 0 {
					return nil, true, execErrorf("division by zero")
				}
				return scaleDuration(ld, 1/f), true, nil
			}
			return nil, true, execErrorf("cannot apply %q to DURATION and %s", op, valueTypeName(right))
		}
		return nil, true, execErrorf("cannot apply %q to DURATION and %s", op, valueTypeName(right))
	}
	if rIsDur {
		if f, ok := numeric(left); ok && op == "*" {
			return scaleDuration(rd, f), true, nil
		}
		return nil, true, execErrorf("cannot apply %q to %s and DURATION", op, valueTypeName(left))
	}
	if _, ok := timeOf(left); ok {
		if _, ok := timeOf(right); ok && op == "-" {
			lt, _ := timeOf(left)
			rt, _ := timeOf(right)
			return durationBetween(rt, lt), true, nil
		}
		return nil, true, execErrorf("cannot apply %q to temporal values", op)
	}
	if _, ok := timeOf(right); ok {
		return nil, true, execErrorf("cannot apply %q to %s and %s", op, valueTypeName(left), valueTypeName(right))
	}
	return nil, false, nil
}

func addDuration(t time.Time, d storage.Duration) time.Time {
	t = t.AddDate(0, int(d.Months), int(d.Days))
	return t.Add(time.Duration(d.Seconds * float64(time.Second)))
}

func negateDuration(d storage.Duration) storage.Duration {
	return storage.Duration{Months: -d.Months, Days: -d.Days, Seconds: -d.Seconds}
}

func scaleDuration(d storage.Duration, f float64) storage.Duration {
	return storage.Duration{
		Months:  int64(float64(d.Months) * f),
		Days:    int64(float64(d.Days) * f),
		Seconds: d.Seconds * f,
	}
}

func durationBetween(from, to time.Time) storage.Duration {
	secs := to.Sub(from).Seconds()
	return storage.Duration{Seconds: secs}
}

// callTemporal dispatches the temporal constructor/utility functions.
// Handled names: date, time, localtime, datetime, localdatetime, duration,
// their .truncate forms, and duration.between.
func callTemporal(name string, args []any) (any, bool, error) {
	lower := strings.ToLower(name)
	switch lower {
	case "date", "time", "localtime", "datetime", "localdatetime":
		v, err := temporalConstructor(lower, args)
		return v, true, err
	case "date.truncate", "time.truncate", "localtime.truncate",
		"datetime.truncate", "localdatetime.truncate":
		v, err := temporalTruncate(strings.TrimSuffix(lower, ".truncate"), args)
		return v, true, err
	case "duration":
		v, err := durationConstructor(args)
		return v, true, err
	case "duration.between":
		if len(args) != 2 {
			return nil, true, execErrorf("duration.between() expects 2 arguments")
		}
		if args[0] == nil || args[1] == nil {
			return nil, true, nil
		}
		from, fok := timeOf(args[0])
		to, tok := timeOf(args[1])
		if !fok || !tok {
			return nil, true, execErrorf("duration.between() expects temporal arguments")
		}
		return durationBetween(from, to), true, nil
	}
	return nil, false, nil
}

func temporalConstructor(kind string, args []any) (any, error) {
	if len(args) == 0 {
		now := time.Now()
		switch kind {
		case "date":
			return storage.Date{T: truncateToDay(now)}, nil
		case "time":
			return storage.ZonedTime{T: now}, nil
		case "localtime":
			return storage.LocalTime{T: now}, nil
		case "localdatetime":
			return storage.LocalDateTime{T: now}, nil
		default:
			return storage.DateTime{T: now}, nil
		}
	}
	if len(args) != 1 {
		return nil, execErrorf("%s() expects at most 1 argument", kind)
	}
	switch arg := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		v, err := storage.ParseTemporal(kind, arg)
		if err != nil {
			return nil, execErrorf("invalid %s string %q", kind, arg)
		}
		return v, nil
	case map[string]any:
		return temporalFromMap(kind, arg)
	default:
		if t, ok := timeOf(arg); ok {
			switch kind {
			case "date":
				return storage.Date{T: truncateToDay(t)}, nil
			case "time":
				return storage.ZonedTime{T: t}, nil
			case "localtime":
				return storage.LocalTime{T: t}, nil
			case "localdatetime":
				return storage.LocalDateTime{T: t}, nil
			default:
				return storage.DateTime{T: t}, nil
			}
		}
		return nil, execErrorf("%s() expects a string or map, got %s", kind, valueTypeName(arg))
	}
}

func temporalFromMap(kind string, m map[string]any) (any, error) {
	get := func(key string, def int) int {
		if v, ok := m[key]; ok {
			if i, ok := isInteger(v); ok {
				return int(i)
			}
		}
		return def
	}
	year := get("year", 1970)
	month := get("month", 1)
	day := get("day", 1)
	hour := get("hour", 0)
	minute := get("minute", 0)
	second := get("second", 0)
	nanos := get("nanosecond", get("millisecond", 0)*1e6)
	t := time.Date(year, time.Month(month), day, hour, minute, second, nanos, time.UTC)
	switch kind {
	case "date":
		return storage.Date{T: truncateToDay(t)}, nil
	case "time":
		return storage.ZonedTime{T: t}, nil
	case "localtime":
		return storage.LocalTime{T: t}, nil
	case "localdatetime":
		return storage.LocalDateTime{T: t}, nil
	default:
		return storage.DateTime{T: t}, nil
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func temporalTruncate(kind string, args []any) (any, error) {
	if len(args) != 2 {
		return nil, execErrorf("%s.truncate() expects (unit, temporal)", kind)
	}
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	unit, ok := args[0].(string)
	if !ok {
		return nil, execErrorf("truncate unit must be a string")
	}
	t, ok := timeOf(args[1])
	if !ok {
		return nil, execErrorf("%s.truncate() expects a temporal value", kind)
	}
	var out time.Time
	switch strings.ToLower(unit) {
	case "year":
		out = time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
	case "quarter":
		q := (int(t.Month()) - 1) / 3
		out = time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, t.Location())
	case "month":
		out = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case "week":
		out = truncateToDay(t)
		for out.Weekday() != time.Monday {
			out = out.AddDate(0, 0, -1)
		}
	case "day":
		out = truncateToDay(t)
	case "hour":
		out = t.Truncate(time.Hour)
	case "minute":
		out = t.Truncate(time.Minute)
	case "second":
		out = t.Truncate(time.Second)
	case "millisecond":
		out = t.Truncate(time.Millisecond)
	default:
		return nil, execErrorf("unknown truncation unit %q", unit)
	}
	switch kind {
	case "date":
		return storage.Date{T: out}, nil
	case "time":
		return storage.ZonedTime{T: out}, nil
	case "localtime":
		return storage.LocalTime{T: out}, nil
	case "localdatetime":
		return storage.LocalDateTime{T: out}, nil
	default:
		return storage.DateTime{T: out}, nil
	}
}

func durationConstructor(args []any) (any, error) {
	if len(args) != 1 {
		return nil, execErrorf("duration() expects 1 argument")
	}
	switch arg := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		d, err := storage.ParseDuration(arg)
		if err != nil {
			return nil, execErrorf("invalid duration string %q", arg)
		}
		return d, nil
	case map[string]any:
		var d storage.Duration
		for key, raw := range arg {
			f, ok := numeric(raw)
			if !ok {
				return nil, execErrorf("duration component %q must be numeric", key)
			}
			switch strings.ToLower(key) {
			case "years":
				d.Months += int64(f * 12)
			case "months":
				d.Months += int64(f)
			case "weeks":
				d.Days += int64(f * 7)
			case "days":
				whole, frac := math.Modf(f)
				d.Days += int64(whole)
				d.Seconds += frac * 86400
			case "hours":
				d.Seconds += f * 3600
			case "minutes":
				d.Seconds += f * 60
			case "seconds":
				d.Seconds += f
			case "milliseconds":
				d.Seconds += f / 1000
			case "nanoseconds":
				d.Seconds += f / 1e9
			default:
				return nil, execErrorf("unknown duration component %q", key)
			}
		}
		return d, nil
	default:
		return nil, execErrorf("duration() expects a string or map, got %s", valueTypeName(args[0]))
	}
}
