// Package query 行存储使用的过滤条件：等值、in、is null、is not null 与 and
//
// 零值 Where 表示无条件，匹配所有行。
package query

import (
	"fmt"
	"sort"
	"strings"
)

// Op 条件运算
type Op string

const (
	OpEq      Op = "eq"
	OpIn      Op = "inq"
	OpNull    Op = "null"
	OpNotNull Op = "notnull"
	OpAnd     Op = "and"
)

// Where 条件树
type Where struct {
	Op      Op
	Field   string
	Value   any
	Values  []any
	Clauses []Where
}

// Eq field = value；value 为 nil 时等价于 IsNull
func Eq(field string, value any) Where {
	if value == nil {
		return IsNull(field)
	}
	return Where{Op: OpEq, Field: field, Value: value}
}

// In field IN (values...)
func In(field string, values ...any) Where {
	return Where{Op: OpIn, Field: field, Values: values}
}

// IsNull field IS NULL
func IsNull(field string) Where {
	return Where{Op: OpNull, Field: field}
}

// IsNotNull field IS NOT NULL
func IsNotNull(field string) Where {
	return Where{Op: OpNotNull, Field: field}
}

// And 合取，空条件被忽略，只剩一个子句时直接返回该子句
func And(clauses ...Where) Where {
	kept := make([]Where, 0, len(clauses))
	for _, c := range clauses {
		if c.IsEmpty() {
			continue
		}
		if c.Op == OpAnd {
			kept = append(kept, c.Clauses...)
			continue
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return Where{}
	case 1:
		return kept[0]
	}
	return Where{Op: OpAnd, Clauses: kept}
}

// IsEmpty 无条件
func (w Where) IsEmpty() bool {
	if w.Op == "" {
		return true
	}
	if w.Op == OpAnd {
		for _, c := range w.Clauses {
			if !c.IsEmpty() {
				return false
			}
		}
		return true
	}
	return false
}

// Conjoin 空条件直接替换为 extra，否则与 extra 合取
func (w Where) Conjoin(extra Where) Where {
	if w.IsEmpty() {
		return extra
	}
	return And(w, extra)
}

// EqualityValue 返回顶层对 field 的等值条件值
func (w Where) EqualityValue(field string) (any, bool) {
	switch w.Op {
	case OpEq:
		if w.Field == field {
			return w.Value, true
		}
	case OpAnd:
		for _, c := range w.Clauses {
			if c.Op == OpEq && c.Field == field {
				return c.Value, true
			}
		}
	}
	return nil, false
}

// Fields 条件中出现的字段名（去重、排序）
func (w Where) Fields() []string {
	set := map[string]struct{}{}
	w.collect(set)
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (w Where) collect(set map[string]struct{}) {
	if w.Op == OpAnd {
		for _, c := range w.Clauses {
			c.collect(set)
		}
		return
	}
	if w.Field != "" {
		set[w.Field] = struct{}{}
	}
}

// Validate 检查运算符与字段名，非法条件在触达存储前被拒绝
func (w Where) Validate() error {
	switch w.Op {
	case "":
		return nil
	case OpAnd:
		for i, c := range w.Clauses {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("and[%d]: %w", i, err)
			}
		}
		return nil
	case OpEq, OpIn, OpNull, OpNotNull:
		if !IsSafeIdentifier(w.Field) {
			return fmt.Errorf("%w: unsafe field %q", ErrInvalidWhere, w.Field)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown operator %q", ErrInvalidWhere, w.Op)
}

// Match 在内存中求值
func (w Where) Match(row map[string]any) bool {
	switch w.Op {
	case "":
		return true
	case OpEq:
		v, ok := row[w.Field]
		return ok && Equal(v, w.Value)
	case OpNull:
		return row[w.Field] == nil
	case OpNotNull:
		return row[w.Field] != nil
	case OpIn:
		v := row[w.Field]
		for _, candidate := range w.Values {
			if Equal(v, candidate) {
				return true
			}
		}
		return false
	case OpAnd:
		for _, c := range w.Clauses {
			if !c.Match(row) {
				return false
			}
		}
		return true
	}
	return false
}

// SQL 生成 ? 占位的条件片段；column 负责字段名到已转义列名的映射
//
// 空条件返回空字符串，空 IN 列表生成恒假条件。
func (w Where) SQL(column func(field string) string) (string, []any) {
	switch w.Op {
	case OpEq:
		return column(w.Field) + " = ?", []any{w.Value}
	case OpNull:
		return column(w.Field) + " IS NULL", nil
	case OpNotNull:
		return column(w.Field) + " IS NOT NULL", nil
	case OpIn:
		if len(w.Values) == 0 {
			return "1 = 0", nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(w.Values)), ", ")
		args := make([]any, len(w.Values))
		copy(args, w.Values)
		return column(w.Field) + " IN (" + marks + ")", args
	case OpAnd:
		parts := make([]string, 0, len(w.Clauses))
		var args []any
		for _, c := range w.Clauses {
			expr, a := c.SQL(column)
			if expr == "" {
				continue
			}
			if c.Op == OpAnd {
				expr = "(" + expr + ")"
			}
			parts = append(parts, expr)
			args = append(args, a...)
		}
		return strings.Join(parts, " AND "), args
	}
	return "", nil
}

func (w Where) String() string {
	switch w.Op {
	case "":
		return "{}"
	case OpEq:
		return fmt.Sprintf("%s=%v", w.Field, w.Value)
	case OpNull:
		return w.Field + " is null"
	case OpNotNull:
		return w.Field + " is not null"
	case OpIn:
		return fmt.Sprintf("%s in %v", w.Field, w.Values)
	case OpAnd:
		parts := make([]string, len(w.Clauses))
		for i, c := range w.Clauses {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " and ") + ")"
	}
	return string(w.Op)
}
