// Package coerce turns source documents into trees whose leaves are
// directly loadable: strings, int64, float64, timestamps, or nil.
// Nested records and arrays survive as maps and slices; the loader
// serializes those to JSON text.
package coerce

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/carewell-health/datahub-sync/pkg/apperrors"
	"github.com/carewell-health/datahub-sync/pkg/models"
)

// TimestampLayout is the canonical load format for temporal values:
// microsecond precision, UTC, no zone suffix.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Timestamp is a coerced temporal value, already rendered in
// TimestampLayout. A distinct type so kind inference can tell it apart
// from plain strings.
type Timestamp string

// Document coerces every top-level value of a source document.
func Document(doc map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for name, v := range doc {
		cv, err := Value(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		out[name] = cv
	}
	return out, nil
}

// Value coerces a single value, recursing into records and arrays.
// It accepts both BSON driver types and their extended-JSON shapes
// ({"$oid": ...}, {"$date": ...}), since documents reach the sync both
// straight off a cursor and re-decoded from JSON exports.
func Value(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return stripQuotes(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, &apperrors.UnencodableTypeError{Value: v}
		}
		return f, nil
	case primitive.ObjectID:
		return t.Hex(), nil
	case primitive.DateTime:
		return FromUnixMilli(int64(t)), nil
	case time.Time:
		return Timestamp(t.UTC().Format(TimestampLayout)), nil
	case Timestamp:
		return t, nil
	case map[string]any:
		return coerceMap(t)
	case bson.M:
		return coerceMap(map[string]any(t))
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = e.Value
		}
		return coerceMap(m)
	case bson.A:
		return coerceSlice([]any(t))
	case []any:
		return coerceSlice(t)
	default:
		return nil, &apperrors.UnencodableTypeError{Value: v}
	}
}

// Kind reports the field kind of an already coerced value. Records and
// arrays map to the json kind, everything else to its scalar kind.
func Kind(v any) models.FieldKind {
	switch v.(type) {
	case int64:
		return models.KindInteger
	case float64:
		return models.KindFloat
	case Timestamp:
		return models.KindTimestamp
	case map[string]any, []any:
		return models.KindJSON
	default:
		return models.KindString
	}
}

// FromUnixMilli renders an epoch-millisecond instant in the canonical
// timestamp layout.
func FromUnixMilli(ms int64) Timestamp {
	return Timestamp(time.UnixMilli(ms).UTC().Format(TimestampLayout))
}

func coerceMap(m map[string]any) (any, error) {
	if len(m) == 1 {
		for k, inner := range m {
			if strings.HasPrefix(k, "$") {
				return coerceDollar(k, inner)
			}
		}
	}
	out := make(map[string]any, len(m))
	for k, inner := range m {
		cv, err := Value(inner)
		if err != nil {
			return nil, err
		}
		out[k] = cv
	}
	return out, nil
}

func coerceSlice(s []any) (any, error) {
	out := make([]any, len(s))
	for i, e := range s {
		cv, err := Value(e)
		if err != nil {
			return nil, err
		}
		out[i] = cv
	}
	return out, nil
}

// coerceDollar handles the extended-JSON wrappers the pipeline
// understands. Anything else under a "$" key is a data-model bug.
func coerceDollar(key string, inner any) (any, error) {
	switch key {
	case "$oid":
		s, ok := inner.(string)
		if !ok {
			return nil, &apperrors.UnencodableTypeError{Value: inner}
		}
		return s, nil
	case "$date":
		return coerceDate(inner)
	default:
		return nil, &apperrors.UnrecognizedSourceTypeError{Key: key}
	}
}

func coerceDate(inner any) (any, error) {
	switch d := inner.(type) {
	case float64:
		return FromUnixMilli(int64(d)), nil
	case int:
		return FromUnixMilli(int64(d)), nil
	case int64:
		return FromUnixMilli(d), nil
	case json.Number:
		ms, err := d.Int64()
		if err != nil {
			return nil, &apperrors.UnencodableTypeError{Value: inner}
		}
		return FromUnixMilli(ms), nil
	case string:
		ts, err := time.Parse(time.RFC3339Nano, d)
		if err != nil {
			return nil, &apperrors.UnencodableTypeError{Value: inner}
		}
		return Timestamp(ts.UTC().Format(TimestampLayout)), nil
	case map[string]any:
		// {"$date": {"$numberLong": "1234"}}
		raw, ok := d["$numberLong"]
		if !ok || len(d) != 1 {
			return nil, &apperrors.UnencodableTypeError{Value: inner}
		}
		var ms int64
		switch n := raw.(type) {
		case string:
			parsed, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, &apperrors.UnencodableTypeError{Value: raw}
			}
			ms = parsed
		case float64:
			ms = int64(n)
		case int64:
			ms = n
		case json.Number:
			parsed, err := n.Int64()
			if err != nil {
				return nil, &apperrors.UnencodableTypeError{Value: raw}
			}
			ms = parsed
		default:
			return nil, &apperrors.UnencodableTypeError{Value: raw}
		}
		return FromUnixMilli(ms), nil
	default:
		return nil, &apperrors.UnencodableTypeError{Value: inner}
	}
}

// stripQuotes removes ASCII double quotes. Quotes inside nested string
// values would otherwise survive into the JSON cell text and break the
// round-trip guarantee under the loader's quote-free copy format.
func stripQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}
