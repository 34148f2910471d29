// Package logging 审计层统一使用的日志抽象
//
// 模型配置冲突、审计上下文缺失等诊断信息都经由 Logger 输出，
// 调用方可通过 SetLogger 替换为自己的实现。
package logging

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Level 日志级别
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel 解析配置中的级别名称，无法识别时返回 InfoLevel
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger 日志接口
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields 返回携带附加字段的新 Logger
	WithFields(fields ...Field) Logger
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field           { return Field{Key: key, Value: value} }
func Int(key string, value int) Field          { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field      { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field        { return Field{Key: key, Value: value} }
func Any(key string, value any) Field          { return Field{Key: key, Value: value} }
func Strings(key string, value []string) Field { return Field{Key: key, Value: value} }

func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

// Duration 以 time.Duration 作为字段值
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// StdLogger 基于标准库 log 的实现
type StdLogger struct {
	prefix string
	fields []Field
	min    Level
}

// NewStdLogger 创建标准库 Logger，默认输出 Info 及以上级别
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{prefix: prefix, min: InfoLevel}
}

// SetLevel 设置最低输出级别
func (l *StdLogger) SetLevel(level Level) {
	l.min = level
}

func (l *StdLogger) format(msg string, fields []Field) string {
	var b strings.Builder
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteByte(' ')
	}
	b.WriteString(msg)
	for _, f := range append(append([]Field{}, l.fields...), fields...) {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(formatValue(f.Value))
	}
	return b.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	case []string:
		return strings.Join(val, ",")
	default:
		return fmt.Sprint(val)
	}
}

func (l *StdLogger) output(level Level, msg string, fields []Field) {
	if level < l.min {
		return
	}
	log.Println("["+level.String()+"]", l.format(msg, fields))
}

func (l *StdLogger) Debug(_ context.Context, msg string, fields ...Field) {
	l.output(DebugLevel, msg, fields)
}

func (l *StdLogger) Info(_ context.Context, msg string, fields ...Field) {
	l.output(InfoLevel, msg, fields)
}

func (l *StdLogger) Warn(_ context.Context, msg string, fields ...Field) {
	l.output(WarnLevel, msg, fields)
}

func (l *StdLogger) Error(_ context.Context, msg string, fields ...Field) {
	l.output(ErrorLevel, msg, fields)
}

func (l *StdLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &StdLogger{prefix: l.prefix, fields: merged, min: l.min}
}

// NoopLogger 空日志实现
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (l *NoopLogger) Debug(context.Context, string, ...Field) {}
func (l *NoopLogger) Info(context.Context, string, ...Field)  {}
func (l *NoopLogger) Warn(context.Context, string, ...Field)  {}
func (l *NoopLogger) Error(context.Context, string, ...Field) {}
func (l *NoopLogger) WithFields(...Field) Logger              { return l }

// LevelLogger 丢弃低于 min 的日志后转发给 next
//
// silenceWarnings 打开时模型日志器会被包装为 NewLevelLogger(l, ErrorLevel)。
type LevelLogger struct {
	next Logger
	min  Level
}

func NewLevelLogger(next Logger, min Level) *LevelLogger {
	return &LevelLogger{next: next, min: min}
}

func (l *LevelLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	if l.min <= DebugLevel {
		l.next.Debug(ctx, msg, fields...)
	}
}

func (l *LevelLogger) Info(ctx context.Context, msg string, fields ...Field) {
	if l.min <= InfoLevel {
		l.next.Info(ctx, msg, fields...)
	}
}

func (l *LevelLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	if l.min <= WarnLevel {
		l.next.Warn(ctx, msg, fields...)
	}
}

func (l *LevelLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.next.Error(ctx, msg, fields...)
}

func (l *LevelLogger) WithFields(fields ...Field) Logger {
	return &LevelLogger{next: l.next.WithFields(fields...), min: l.min}
}

// Entry 被 RecordingLogger 记录的一条日志
type Entry struct {
	Level   Level
	Message string
	Fields  []Field
}

// Field 按 key 查找字段值
func (e Entry) Field(key string) (any, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// RecordingLogger 把日志保存在内存中，测试里用来断言告警与诊断
type RecordingLogger struct {
	mu      *sync.Mutex
	entries *[]Entry
	fields  []Field
}

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

func (l *RecordingLogger) record(level Level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)
	*l.entries = append(*l.entries, Entry{Level: level, Message: msg, Fields: all})
}

func (l *RecordingLogger) Debug(_ context.Context, msg string, fields ...Field) {
	l.record(DebugLevel, msg, fields)
}

func (l *RecordingLogger) Info(_ context.Context, msg string, fields ...Field) {
	l.record(InfoLevel, msg, fields)
}

func (l *RecordingLogger) Warn(_ context.Context, msg string, fields ...Field) {
	l.record(WarnLevel, msg, fields)
}

func (l *RecordingLogger) Error(_ context.Context, msg string, fields ...Field) {
	l.record(ErrorLevel, msg, fields)
}

// WithFields 返回共享同一记录缓冲的子 Logger
func (l *RecordingLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &RecordingLogger{mu: l.mu, entries: l.entries, fields: merged}
}

// Entries 返回已记录日志的副本
func (l *RecordingLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(*l.entries))
	copy(out, *l.entries)
	return out
}

// ByLevel 返回指定级别的日志
func (l *RecordingLogger) ByLevel(level Level) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewStdLogger("[auditz]")
)

// SetLogger 设置全局 Logger
func SetLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetLogger 获取全局 Logger
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}
