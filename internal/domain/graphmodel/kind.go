package graphmodel

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the closed set of property types a model may declare.
type Kind string

const (
	KindString   Kind = "string"
	KindInteger  Kind = "integer"
	KindFloat    Kind = "float"
	KindBoolean  Kind = "boolean"
	KindDateTime Kind = "datetime"
	KindDate     Kind = "date"
	KindList     Kind = "list"
	KindVector   Kind = "vector"
)

var kindAliases = map[string]Kind{
	"string":    KindString,
	"str":       KindString,
	"text":      KindString,
	"integer":   KindInteger,
	"int":       KindInteger,
	"long":      KindInteger,
	"float":     KindFloat,
	"double":    KindFloat,
	"boolean":   KindBoolean,
	"bool":      KindBoolean,
	"datetime":  KindDateTime,
	"timestamp": KindDateTime,
	"date":      KindDate,
	"list":      KindList,
	"vector":    KindVector,
}

// ParseKind maps a declared type name to a Kind. An empty name means string.
func ParseKind(raw string) (Kind, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return KindString, true
	}
	k, ok := kindAliases[s]
	return k, ok
}

// Coerce converts a source value into the value written to the store for this
// kind. A nil result with a nil error means the value is absent and must be
// omitted from the write.
func (k Kind) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" && k != KindString {
		return nil, nil
	}
	switch k {
	case KindString:
		return coerceString(v), nil
	case KindInteger:
		return coerceInt(v)
	case KindFloat:
		return coerceFloat(v)
	case KindBoolean:
		return coerceBool(v)
	case KindDateTime:
		return coerceTime(v)
	case KindDate:
		t, err := coerceTime(v)
		if err != nil {
			return nil, err
		}
		return t.Format("2006-01-02"), nil
	case KindList:
		return coerceList(v)
	case KindVector:
		return CoerceVector(v)
	default:
		return nil, fmt.Errorf("unsupported kind %q", k)
	}
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

func coerceInt(v any) (any, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, fmt.Errorf("integer overflow: %d", t)
		}
		return int64(t), nil
	case float32:
		return floatToInt(float64(t))
	case float64:
		return floatToInt(t)
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", t)
		}
		return i, nil
	case []byte:
		return coerceInt(string(t))
	default:
		return nil, fmt.Errorf("not an integer: %T", v)
	}
}

func floatToInt(f float64) (any, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("not an integer: %v", f)
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("not a float: %q", t)
		}
		return f, nil
	case []byte:
		return toFloat(string(t))
	default:
		return 0, fmt.Errorf("not a float: %T", v)
	}
}

func coerceFloat(v any) (any, error) {
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func coerceBool(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int, int32, int64:
		i, _ := coerceInt(t)
		return i.(int64) != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %q", t)
		}
		return b, nil
	case []byte:
		return coerceBool(string(t))
	default:
		return nil, fmt.Errorf("not a boolean: %T", v)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func coerceTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return t.UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("not a datetime: %q", t)
	case []byte:
		return coerceTime(string(t))
	default:
		return time.Time{}, fmt.Errorf("not a datetime: %T", v)
	}
}

func coerceList(v any) (any, error) {
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if e == nil {
				continue
			}
			out = append(out, coerceString(e))
		}
		return out, nil
	case string:
		return SplitValues(t, ","), nil
	default:
		return []string{coerceString(v)}, nil
	}
}

// CoerceVector converts numeric slices into []float64, the representation the
// store driver accepts for vector properties.
func CoerceVector(v any) ([]float64, error) {
	switch t := v.(type) {
	case []float64:
		return t, nil
	case []float32:
		out := make([]float64, len(t))
		for i, f := range t {
			out[i] = float64(f)
		}
		return out, nil
	case []any:
		out := make([]float64, len(t))
		for i, e := range t {
			f, err := toFloat(e)
			if err != nil {
				return nil, fmt.Errorf("vector element %d: %w", i, err)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a vector: %T", v)
	}
}

// SplitValues splits a delimited string into trimmed, non-empty values.
func SplitValues(s, delim string) []string {
	if delim == "" {
		delim = ","
	}
	parts := strings.Split(s, delim)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
