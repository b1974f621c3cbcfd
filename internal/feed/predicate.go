package feed

type Op int

const (
	OpEq Op = iota + 1
	OpNe
	OpIsNull
	OpNotNull
	OpContains
	OpIn
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpIsNull:
		return "is_null"
	case OpNotNull:
		return "not_null"
	case OpContains:
		return "contains"
	case OpIn:
		return "in"
	default:
		return "unknown"
	}
}

// SetRef selects Column from Table rows matching Filters.
type SetRef struct {
	Table   string
	Column  string
	Filters []Predicate
}

// Predicate is one conjunct of a filter set. Values are always bound as
// parameters by backends, never spliced into query text.
type Predicate struct {
	Field string
	Op    Op
	Value any
	Set   *SetRef
}

func Eq(field string, v any) Predicate { return Predicate{Field: field, Op: OpEq, Value: v} }

func Ne(field string, v any) Predicate { return Predicate{Field: field, Op: OpNe, Value: v} }

func IsNull(field string) Predicate { return Predicate{Field: field, Op: OpIsNull} }

func NotNull(field string) Predicate { return Predicate{Field: field, Op: OpNotNull} }

// Contains matches a case-insensitive substring.
func Contains(field, s string) Predicate {
	return Predicate{Field: field, Op: OpContains, Value: s}
}

// InSet matches rows whose field appears in column of the filtered table.
func InSet(field, table, column string, filters ...Predicate) Predicate {
	return Predicate{Field: field, Op: OpIn, Set: &SetRef{Table: table, Column: column, Filters: filters}}
}

// OptionalEq returns Eq when v is non-empty and nothing otherwise, so
// optional query parameters can be appended unconditionally.
func OptionalEq(field, v string) []Predicate {
	if v == "" {
		return nil
	}
	return []Predicate{Eq(field, v)}
}
