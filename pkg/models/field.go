package models

// FieldKind is the tagged variant a source field is pinned to for one
// sync cycle. Downstream SQL column types derive from it.
type FieldKind string

const (
	KindString    FieldKind = "string"
	KindInteger   FieldKind = "integer"
	KindFloat     FieldKind = "float"
	KindTimestamp FieldKind = "timestamp"
	KindJSON      FieldKind = "json"
)

// SQLType returns the staging-store column type for the kind.
func (k FieldKind) SQLType() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "double precision"
	case KindTimestamp:
		return "timestamp"
	case KindJSON:
		return "json"
	default:
		return "text"
	}
}

// KindForSQLType maps a staging-store column type back to a kind. Used
// when a run reuses the live table's columns instead of re-discovering.
func KindForSQLType(sqlType string) FieldKind {
	switch sqlType {
	case "integer", "bigint", "smallint":
		return KindInteger
	case "double precision", "real", "numeric":
		return KindFloat
	case "timestamp", "timestamp without time zone", "timestamp with time zone":
		return KindTimestamp
	case "json", "jsonb":
		return KindJSON
	default:
		return KindString
	}
}

// FieldDescriptor names one top-level source field and its inferred
// kind. Descriptor lists are built once per run and passed through the
// call graph unchanged; their order defines staging column order.
type FieldDescriptor struct {
	Name string
	Kind FieldKind
}
