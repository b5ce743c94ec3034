package staging

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/carewell-health/datahub-sync/pkg/apperrors"
	"github.com/carewell-health/datahub-sync/pkg/coerce"
	"github.com/carewell-health/datahub-sync/pkg/models"
)

// The copy stream is CSV-shaped but effectively unquoted: tab delimits,
// carriage return is the (never-emitted) quote character, and every
// character that could collide with the framing is stripped from cell
// text before streaming.
func copySQL(collection string, descriptors []models.FieldDescriptor) string {
	cols := make([]string, len(descriptors))
	for i, d := range descriptors {
		cols[i] = pgx.Identifier{d.Name}.Sanitize()
	}
	return fmt.Sprintf(
		`COPY %s (%s) FROM STDIN WITH (FORMAT csv, DELIMITER E'\t', QUOTE E'\r', ESCAPE E'\\')`,
		pgx.Identifier{StagingTable(collection)}.Sanitize(),
		strings.Join(cols, ", "),
	)
}

var cellSanitizer = strings.NewReplacer(
	"\x00", "",
	"\t", "",
	"\n", "",
	"\r", "",
	"\b", "",
	"\\", "",
	"|", "",
)

// renderRow aligns one coerced document to the descriptor order and
// renders it as a single copy line (without the trailing newline).
// An empty cell is NULL in this format.
func renderRow(descriptors []models.FieldDescriptor, row map[string]any) (string, error) {
	cells := make([]string, len(descriptors))
	for i, d := range descriptors {
		v, ok := row[d.Name]
		if !ok {
			if d.Kind == models.KindJSON {
				cells[i] = "[]"
			}
			continue
		}
		cell, err := renderCell(v)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", d.Name, err)
		}
		cells[i] = cell
	}
	return strings.Join(cells, "\t"), nil
}

func renderCell(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return cellSanitizer.Replace(t), nil
	case coerce.Timestamp:
		return string(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		if math.IsNaN(t) {
			return "", nil
		}
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case map[string]any, []any:
		text, err := json.Marshal(sanitizeTree(t))
		if err != nil {
			return "", &apperrors.UnencodableTypeError{Value: v}
		}
		return string(text), nil
	default:
		return "", &apperrors.UnencodableTypeError{Value: v}
	}
}

// sanitizeTree strips framing characters from every string inside a
// record or array before it is serialized to a JSON cell. Stripping
// after serialization would corrupt JSON escapes.
func sanitizeTree(v any) any {
	switch t := v.(type) {
	case string:
		return cellSanitizer.Replace(t)
	case coerce.Timestamp:
		return string(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[cellSanitizer.Replace(k)] = sanitizeTree(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = sanitizeTree(inner)
		}
		return out
	default:
		return t
	}
}
