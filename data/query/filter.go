package query

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidWhere 条件结构非法
var ErrInvalidWhere = errors.New("invalid where")

// Order 排序字段
type Order struct {
	Field string
	Desc  bool
}

// Filter 查询参数
type Filter struct {
	Where  Where
	Order  []Order
	Limit  int
	Offset int
	// Deleted 为 true 时包含已软删除的行
	Deleted bool
}

// WhereFilter 只带条件的 Filter
func WhereFilter(w Where) Filter {
	return Filter{Where: w}
}

// Parse 把 JSON 风格的条件对象解析为 Where
//
//	{"id": 5}                    等值
//	{"deletedAt": null}          is null
//	{"deletedAt": {"neq": null}} is not null
//	{"id": {"inq": [1, 2]}}      in
//	{"and": [{...}, {...}]}      合取
//
// 同一对象中的多个键按键名排序后合取。
func Parse(v any) (Where, error) {
	switch t := v.(type) {
	case nil:
		return Where{}, nil
	case Where:
		return t, t.Validate()
	case map[string]any:
		return parseObject(t)
	}
	return Where{}, fmt.Errorf("%w: expected object, got %T", ErrInvalidWhere, v)
}

func parseObject(obj map[string]any) (Where, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]Where, 0, len(keys))
	for _, k := range keys {
		val := obj[k]
		if k == "and" {
			list, ok := val.([]any)
			if !ok {
				return Where{}, fmt.Errorf("%w: and expects a list", ErrInvalidWhere)
			}
			for _, item := range list {
				sub, err := Parse(item)
				if err != nil {
					return Where{}, err
				}
				clauses = append(clauses, sub)
			}
			continue
		}
		if !IsSafeIdentifier(k) {
			return Where{}, fmt.Errorf("%w: unsafe field %q", ErrInvalidWhere, k)
		}
		if ops, ok := val.(map[string]any); ok {
			w, err := parseOperator(k, ops)
			if err != nil {
				return Where{}, err
			}
			clauses = append(clauses, w)
			continue
		}
		clauses = append(clauses, Eq(k, val))
	}
	return And(clauses...), nil
}

func parseOperator(field string, ops map[string]any) (Where, error) {
	if len(ops) != 1 {
		return Where{}, fmt.Errorf("%w: %s expects exactly one operator", ErrInvalidWhere, field)
	}
	for op, arg := range ops {
		switch op {
		case "inq", "in":
			list, ok := arg.([]any)
			if !ok {
				return Where{}, fmt.Errorf("%w: %s.%s expects a list", ErrInvalidWhere, field, op)
			}
			return In(field, list...), nil
		case "eq":
			return Eq(field, arg), nil
		case "neq":
			if arg != nil {
				return Where{}, fmt.Errorf("%w: %s.neq only supports null", ErrInvalidWhere, field)
			}
			return IsNotNull(field), nil
		}
		return Where{}, fmt.Errorf("%w: unsupported operator %q", ErrInvalidWhere, op)
	}
	return Where{}, nil
}

// IsSafeIdentifier 字段名只允许 [A-Za-z_][A-Za-z0-9_]*
func IsSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		letter := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
		if i == 0 && !letter {
			return false
		}
		if !letter && !(ch >= '0' && ch <= '9') {
			return false
		}
	}
	return true
}
