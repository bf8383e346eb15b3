package field

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Time layouts accepted from drivers that return timestamps as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts a driver or caller value into the canonical Go value for t.
func Coerce(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if p, ok := deref(v); ok {
		if p == nil {
			return nil, nil
		}
		v = p
	}
	switch t {
	case TypeInt, TypeAutoID:
		return toInt(v)
	case TypeFloat:
		return toFloat64(v)
	case TypeString:
		switch v := v.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case fmt.Stringer:
			return v.String(), nil
		}
	case TypeBool:
		switch v := v.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(v))
		case []byte:
			return strconv.ParseBool(strings.TrimSpace(string(v)))
		default:
			if i, err := toInt(v); err == nil {
				return i.(int64) != 0, nil
			}
		}
	case TypeTime:
		switch v := v.(type) {
		case time.Time:
			return v, nil
		case string:
			return parseTime(v)
		case []byte:
			return parseTime(string(v))
		}
	}
	return nil, fmt.Errorf("field: cannot convert %T to %s", v, t)
}

func deref(v any) (any, bool) {
	switch p := v.(type) {
	case *int64:
		if p == nil {
			return nil, true
		}
		return *p, true
	case *string:
		if p == nil {
			return nil, true
		}
		return *p, true
	case *float64:
		if p == nil {
			return nil, true
		}
		return *p, true
	case *bool:
		if p == nil {
			return nil, true
		}
		return *p, true
	case *time.Time:
		if p == nil {
			return nil, true
		}
		return *p, true
	}
	return nil, false
}

func toInt(v any) (any, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, fmt.Errorf("field: %d overflows int64", v)
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("field: %d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	}
	return nil, fmt.Errorf("field: cannot convert %T to int", v)
}

func floatToInt(f float64) (any, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("field: %v is not an integer", f)
	}
	return int64(f), nil
}

func toFloat64(v any) (any, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	}
	i, err := toInt(v)
	if err != nil {
		return nil, fmt.Errorf("field: cannot convert %T to float", v)
	}
	return float64(i.(int64)), nil
}

func parseTime(s string) (any, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("field: cannot parse %q as time", s)
}
