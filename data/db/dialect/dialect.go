package dialect

import (
	"strconv"
	"strings"

	core "auditz/data/db"
	"auditz/data/orm"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// Dialect 当前数据库的方言能力：占位符、标识符转义、列类型
type Dialect struct {
	name Name
}

// New 根据 driver 名构造方言（大小写不敏感）
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return Dialect{name: NameSQLite}
	case "postgres", "postgresql", "pq":
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// FromDatabase 从 IDatabase 推断方言，未实现 IDialectNameProvider 时返回 Unknown
func FromDatabase(db core.IDatabase) Dialect {
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{name: NameUnknown}
}

func (d Dialect) Name() Name {
	return d.name
}

// QuoteIdentifier 对 table、schema.table 逐段加双引号，Unknown 方言原样返回
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" || d.name == NameUnknown {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p != "" {
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 把 ? 占位符改写为 postgres 的 $n，单引号字面量内的 ? 保持不变
func (d Dialect) Rebind(query string) string {
	if d.name != NamePostgres || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 1
	inLiteral := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inLiteral = !inLiteral
			sb.WriteByte(ch)
		case ch == '?' && !inLiteral:
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			n++
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

// ColumnType 字段类型到列类型的映射
func (d Dialect) ColumnType(t orm.FieldType) string {
	switch t {
	case orm.FieldNumber:
		if d.name == NamePostgres {
			return "BIGINT"
		}
		return "INTEGER"
	case orm.FieldFloat:
		if d.name == NamePostgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case orm.FieldBool:
		return "BOOLEAN"
	case orm.FieldDate:
		if d.name == NamePostgres {
			return "TIMESTAMPTZ"
		}
		return "TIMESTAMP"
	case orm.FieldJSON:
		if d.name == NamePostgres {
			return "JSONB"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}

// IsUniqueViolation 按错误消息识别唯一键冲突
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if d.name == NameSQLite {
		return strings.Contains(msg, "unique constraint failed")
	}
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
