package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"auditz/data/orm"
	"auditz/data/query"
	"auditz/errors"
)

// prepareCreate 补齐主键与 DefaultNow 字段并校验必填字段，只保留模型声明的字段
func prepareCreate(meta *orm.ModelMeta, data Row, o options) (Row, error) {
	row := make(Row, len(meta.Fields))
	for _, f := range meta.Fields {
		if v, ok := data[f.Name]; ok {
			row[f.Name] = v
		}
	}

	idName := meta.IDName()
	if row[idName] == nil {
		idField, _ := meta.Field(idName)
		if idField.Type == orm.FieldString {
			row[idName] = uuid.NewString()
		} else {
			id, err := o.ids.NextID()
			if err != nil {
				return nil, err
			}
			row[idName] = id
		}
	}

	for _, f := range meta.Fields {
		if f.DefaultNow && row[f.Name] == nil {
			row[f.Name] = o.now()
		}
	}
	for _, f := range meta.Fields {
		if f.Required && !f.PrimaryKey && row[f.Name] == nil {
			return nil, errors.NewValidationError(fmt.Sprintf("%s.%s 不能为空", meta.Name, f.Name))
		}
	}
	return row, nil
}

// knownFields 过滤掉模型未声明的键与主键
func knownFields(meta *orm.ModelMeta, data Row) Row {
	out := make(Row, len(data))
	idName := meta.IDName()
	for k, v := range data {
		if k == idName || !meta.HasField(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// validateWhere 条件只能引用模型字段
func validateWhere(meta *orm.ModelMeta, w query.Where) error {
	if err := w.Validate(); err != nil {
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "非法查询条件")
	}
	for _, f := range w.Fields() {
		if !meta.HasField(f) {
			return errors.NewInvalidInput("%s 没有字段 %s", meta.Name, f)
		}
	}
	return nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Normalize(err)
	}
	return nil
}

// sortRows 按 Order 排序，未指定时保持原有顺序
func sortRows(rows []Row, order []query.Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			c := compare(rows[i][o.Field], rows[j][o.Field])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if c, ok := query.CompareNumbers(a, b); ok {
		return c
	}
	fa, errA := strconv.ParseFloat(fmt.Sprint(a), 64)
	fb, errB := strconv.ParseFloat(fmt.Sprint(b), 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func paginate(rows []Row, offset, limit int) []Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// toColumnValue 写库前的值转换
func toColumnValue(t orm.FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case orm.FieldJSON:
		if s, ok := v.(string); ok {
			return s, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case orm.FieldDate:
		if tm, ok := v.(time.Time); ok {
			return tm.UTC(), nil
		}
	}
	return v, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// fromColumnValue 把驱动返回的值还原为字段类型
func fromColumnValue(t orm.FieldType, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	switch t {
	case orm.FieldNumber:
		switch n := v.(type) {
		case int64:
			return n
		case float64:
			return int64(n)
		case string:
			if i, err := strconv.ParseInt(n, 10, 64); err == nil {
				return i
			}
		}
	case orm.FieldFloat:
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
	case orm.FieldBool:
		switch b := v.(type) {
		case bool:
			return b
		case int64:
			return b != 0
		case string:
			return b == "1" || strings.EqualFold(b, "true")
		}
	case orm.FieldDate:
		switch tm := v.(type) {
		case time.Time:
			return tm.UTC()
		case string:
			for _, layout := range timeLayouts {
				if parsed, err := time.Parse(layout, tm); err == nil {
					return parsed.UTC()
				}
			}
		}
	case orm.FieldJSON:
		switch raw := v.(type) {
		case string:
			if out, err := DecodeJSON([]byte(raw)); err == nil {
				return out
			}
		case []byte:
			if out, err := DecodeJSON(raw); err == nil {
				return out
			}
		}
	}
	return v
}

// DecodeJSON 解码 JSON，整数还原为 int64（超过 2^53 也不丢精度），其余数字为 float64
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	}
	return v
}
