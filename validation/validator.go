package validation

import (
	"fmt"
	"regexp"
	"strings"

	"auditz/errors"
)

var (
	identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	subjectRegex    = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)
)

// NewValidationError 创建验证错误
func NewValidationError(message string) error {
	return errors.NewValidationError(message)
}

// ValidateRequired 验证必填字段
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s不能为空", fieldName))
	}
	return nil
}

// ValidateIntRange 验证整数范围
func ValidateIntRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s不能小于%d（当前%d）", fieldName, min, value))
	}
	if value > max {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s不能大于%d（当前%d）", fieldName, max, value))
	}
	return nil
}

// ValidateNonNegative 验证非负数，0 通常表示不限制
func ValidateNonNegative(value int64, fieldName string) error {
	if value < 0 {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s不能为负数（当前%d）", fieldName, value))
	}
	return nil
}

// ValidateEnum 验证枚举值，空值视为合法（由默认值兜底）
func ValidateEnum(value, fieldName string, validValues []string) error {
	if value == "" {
		return nil
	}
	for _, valid := range validValues {
		if strings.EqualFold(value, valid) {
			return nil
		}
	}
	return errors.NewError(errors.ErrCodeValidation,
		fmt.Sprintf("%s的值无效，必须是以下之一: %v", fieldName, validValues))
}

// ValidateIdentifier 表名、修订表名：字母数字下划线，可带一级 schema
func ValidateIdentifier(value, fieldName string) error {
	if err := ValidateRequired(value, fieldName); err != nil {
		return err
	}
	if !identifierRegex.MatchString(value) {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s只能包含字母、数字和下划线（当前%q）", fieldName, value))
	}
	return nil
}

// ValidateSubject NATS 主题前缀：点分隔的 token，不允许通配符
func ValidateSubject(value, fieldName string) error {
	if value == "" {
		return nil
	}
	if !subjectRegex.MatchString(value) {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s不是合法的主题（当前%q）", fieldName, value))
	}
	return nil
}

// ValidatePageParams 验证分页参数，limit 为 0 表示使用默认值
func ValidatePageParams(offset, limit int) error {
	if offset < 0 {
		return errors.NewError(errors.ErrCodeValidation, "offset不能为负数")
	}
	if limit < 0 {
		return errors.NewError(errors.ErrCodeValidation, "limit不能为负数")
	}
	if limit > 1000 {
		return errors.NewError(errors.ErrCodeValidation, "limit不能超过1000")
	}
	return nil
}
