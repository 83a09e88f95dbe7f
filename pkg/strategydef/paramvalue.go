package strategydef

// ParamKind is the tagged-sum discriminant for ParamValue.
type ParamKind string

const (
	ParamNumber  ParamKind = "number"
	ParamInteger ParamKind = "integer"
	ParamText    ParamKind = "text"
	ParamFlag    ParamKind = "flag"
	ParamList    ParamKind = "list"
)

// ParamValue is the tagged sum Number(f64) | Integer(i64) | Text(String) |
// Flag(bool) | List(...). Coercions are explicit and return an ok flag
// rather than throwing.
type ParamValue struct {
	Kind    ParamKind
	number  float64
	integer int64
	text    string
	flag    bool
	list    []ParamValue
}

func Number(v float64) ParamValue  { return ParamValue{Kind: ParamNumber, number: v} }
func Integer(v int64) ParamValue   { return ParamValue{Kind: ParamInteger, integer: v} }
func Text(v string) ParamValue     { return ParamValue{Kind: ParamText, text: v} }
func Flag(v bool) ParamValue       { return ParamValue{Kind: ParamFlag, flag: v} }
func List(vs []ParamValue) ParamValue {
	return ParamValue{Kind: ParamList, list: append([]ParamValue(nil), vs...)}
}

// AsF64 coerces to a float64. Integer and Number both succeed; everything
// else fails.
func (v ParamValue) AsF64() (float64, bool) {
	switch v.Kind {
	case ParamNumber:
		return v.number, true
	case ParamInteger:
		return float64(v.integer), true
	default:
		return 0, false
	}
}

// AsInt64 coerces to an int64.
func (v ParamValue) AsInt64() (int64, bool) {
	switch v.Kind {
	case ParamInteger:
		return v.integer, true
	case ParamNumber:
		return int64(v.number), true
	default:
		return 0, false
	}
}

// AsBool coerces to a bool. Only Flag succeeds.
func (v ParamValue) AsBool() (bool, bool) {
	if v.Kind != ParamFlag {
		return false, false
	}
	return v.flag, true
}

// AsString coerces to a string. Only Text succeeds.
func (v ParamValue) AsString() (string, bool) {
	if v.Kind != ParamText {
		return "", false
	}
	return v.text, true
}

// AsList coerces to a []ParamValue. Only List succeeds.
func (v ParamValue) AsList() ([]ParamValue, bool) {
	if v.Kind != ParamList {
		return nil, false
	}
	return v.list, true
}
