package sql

import "strings"

// isSafeIdentifier 每段须匹配 [A-Za-z_][A-Za-z0-9_]*，允许 schema.table 形式
func isSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			ch := part[i]
			letter := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
			if i == 0 && !letter {
				return false
			}
			if !letter && !(ch >= '0' && ch <= '9') {
				return false
			}
		}
	}
	return true
}

// COUNT(*) 等表达式列不加引号
func isExpression(col string) bool {
	return col == "*" || strings.ContainsAny(col, "()")
}
