package query

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Equal 比较两个字段值：整数精确比较，涉及浮点时按数值比较，时间按时刻比较
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return na.equal(nb)
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Key 把标识值规范成可做 map 键的字符串，使 int64(5) 与 float64(5) 落到同一键
func Key(v any) string {
	if n, ok := toNumber(v); ok {
		return n.key()
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// CompareNumbers 两个值都是数字时返回 -1/0/1 与 true，整数精确比较
func CompareNumbers(a, b any) (int, bool) {
	na, ok := toNumber(a)
	if !ok {
		return 0, false
	}
	nb, ok := toNumber(b)
	if !ok {
		return 0, false
	}
	if na.exact && nb.exact {
		return cmp.Compare(na.i, nb.i), true
	}
	return cmp.Compare(na.float(), nb.float()), true
}

// number 整数保留精确值，只有非整数或超出 int64 的值才用 float
type number struct {
	i     int64
	f     float64
	exact bool
}

func (n number) equal(o number) bool {
	if n.exact && o.exact {
		return n.i == o.i
	}
	return n.float() == o.float()
}

func (n number) float() float64 {
	if n.exact {
		return float64(n.i)
	}
	return n.f
}

func (n number) key() string {
	if n.exact {
		return strconv.FormatInt(n.i, 10)
	}
	return strconv.FormatFloat(n.f, 'f', -1, 64)
}

func integer(i int64) number { return number{i: i, exact: true} }

func fromUint(u uint64) number {
	if u > math.MaxInt64 {
		return number{f: float64(u)}
	}
	return integer(int64(u))
}

func fromFloat(f float64) number {
	// 2^63 本身超出 int64
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return integer(int64(f))
	}
	return number{f: f}
}

func toNumber(v any) (number, bool) {
	switch n := v.(type) {
	case int:
		return integer(int64(n)), true
	case int8:
		return integer(int64(n)), true
	case int16:
		return integer(int64(n)), true
	case int32:
		return integer(int64(n)), true
	case int64:
		return integer(n), true
	case uint:
		return fromUint(uint64(n)), true
	case uint8:
		return integer(int64(n)), true
	case uint16:
		return integer(int64(n)), true
	case uint32:
		return integer(int64(n)), true
	case uint64:
		return fromUint(n), true
	case float32:
		return fromFloat(float64(n)), true
	case float64:
		return fromFloat(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return integer(i), true
		}
		f, err := n.Float64()
		if err != nil {
			return number{}, false
		}
		return fromFloat(f), true
	}
	return number{}, false
}
