package reconcile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPlaces is the number of fractional digits numbers are rounded to
// before comparison.
const DefaultPlaces int32 = 2

var numericPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)

// Kind identifies which representative a normalized value carries.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	default:
		return "string"
	}
}

// Value is a normalized cell value. The zero Value is null.
type Value struct {
	kind   Kind
	num    decimal.Decimal
	str    string
	places int32
}

// Null returns the null representative.
func Null() Value {
	return Value{}
}

// Kind returns the representative kind.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether v is the null representative.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Decimal returns the rounded number and true when v is numeric.
func (v Value) Decimal() (decimal.Decimal, bool) {
	if v.kind != KindNumber {
		return decimal.Zero, false
	}
	return v.num, true
}

// Equal compares two normalized values. Numbers compare by value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num.Equal(o.num)
	case KindString:
		return v.str == o.str
	default:
		return true
	}
}

// Compare orders values: null < number < string. Numbers are ordered by
// value and strings bytewise.
func (v Value) Compare(o Value) int {
	if v.kind != o.kind {
		if v.kind < o.kind {
			return -1
		}
		return 1
	}
	switch v.kind {
	case KindNumber:
		return v.num.Cmp(o.num)
	case KindString:
		return strings.Compare(v.str, o.str)
	default:
		return 0
	}
}

// String renders the normalized display form. Null renders as the empty
// string and numbers with a fixed number of fractional digits, so that
// normalizing the output again yields an equal Value.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return v.num.StringFixed(v.places)
	case KindString:
		return v.str
	default:
		return ""
	}
}

// canonical is an unambiguous encoding used for map keys.
func (v Value) canonical() string {
	switch v.kind {
	case KindNumber:
		// decimal.String trims trailing zeros, so equal numbers share an encoding
		return "n" + v.num.String()
	case KindString:
		return "s" + strconv.Quote(v.str)
	default:
		return "0"
	}
}

// MarshalJSON encodes null as JSON null and everything else as its display form.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNull {
		return []byte("null"), nil
	}
	return json.Marshal(v.String())
}

// Normalizer canonicalizes raw cell values.
type Normalizer struct {
	// Places is the number of fractional digits kept for numbers, rounding
	// half to even.
	Places int32
}

// DefaultNormalizer rounds numbers to two fractional digits.
var DefaultNormalizer = Normalizer{Places: DefaultPlaces}

// Normalize canonicalizes v with the default normalizer.
func Normalize(v any) Value {
	return DefaultNormalizer.Normalize(v)
}

// Normalize maps a raw cell value onto its normalized form. Empty strings and
// nil become null, anything that reads as a base-10 decimal becomes a rounded
// number, and everything else is kept as a trimmed string. It never fails.
func (n Normalizer) Normalize(v any) Value {
	s, ok := rawText(v)
	if !ok {
		return Value{}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}
	}
	if numericPattern.MatchString(s) {
		if d, err := decimal.NewFromString(strings.TrimPrefix(s, "+")); err == nil {
			return Value{kind: KindNumber, num: d.RoundBank(n.Places), places: n.Places}
		}
	}
	return Value{kind: KindString, str: s}
}

// rawText converts a scalar to the text it would have had in the upstream
// store. The second return is false for nil.
func rawText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case Value:
		if t.IsNull() {
			return "", false
		}
		return t.String(), true
	case string:
		return t, true
	case []byte:
		if t == nil {
			return "", false
		}
		return string(t), true
	case *string:
		if t == nil {
			return "", false
		}
		return *t, true
	case int:
		return strconv.FormatInt(int64(t), 10), true
	case int8:
		return strconv.FormatInt(int64(t), 10), true
	case int16:
		return strconv.FormatInt(int64(t), 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint8:
		return strconv.FormatUint(uint64(t), 10), true
	case uint16:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	case decimal.Decimal:
		return t.String(), true
	case time.Time:
		return t.Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}
