package incremental

import (
	"math"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/maruel/natural"
)

// Max returns the greater of two watermark values. Two numeric operands
// (numbers or numeric strings) are compared as numbers, anything else in
// natural string order. On a tie the first operand wins. A nil operand loses.
func Max(current, candidate interface{}) interface{} {
	if current == nil {
		return candidate
	}
	if candidate == nil {
		return current
	}

	a, aNum := numeric(current)
	b, bNum := numeric(candidate)
	if aNum && bNum {
		if compareNumbers(a, b) < 0 {
			return candidate
		}
		return current
	}

	if natural.Less(text(current), text(candidate)) {
		return candidate
	}
	return current
}

func compareNumbers(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}

	af, _ := strconv.ParseFloat(a, 64)
	bf, _ := strconv.ParseFloat(b, 64)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

// numeric returns the decimal text of v when v is a number or a string
// holding a decimal number.
func numeric(v interface{}) (string, bool) {
	var s string
	switch t := v.(type) {
	case gojson.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	default:
		return "", false
	}

	if s == "" || strings.Trim(s, "0123456789+-.eE") != "" {
		return "", false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", false
	}
	return s, true
}

func text(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case gojson.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := gojson.Marshal(t)
		return string(b)
	}
}
