package audited

import (
	"auditz/di"
	"auditz/httpx"
	"auditz/logging"
)

// Option Model 构造选项
type Option func(*modelOptions)

type modelOptions struct {
	sink        IRevisionSink
	dataSources *di.Container
	logger      logging.Logger
	metrics     IMetrics
	actors      httpx.IActorSource
	clock       Clock
}

// WithSink 直接指定修订写入器，优先于数据源容器
func WithSink(sink IRevisionSink) Option {
	return func(o *modelOptions) { o.sink = sink }
}

// WithDataSources 按 revisions.dataSource 从容器解析写入器
func WithDataSources(c *di.Container) Option {
	return func(o *modelOptions) { o.dataSources = c }
}

func WithLogger(logger logging.Logger) Option {
	return func(o *modelOptions) { o.logger = logger }
}

func WithMetrics(m IMetrics) Option {
	return func(o *modelOptions) { o.metrics = m }
}

// WithActorSource 替换 actor 来源，默认从 context 读取
func WithActorSource(s httpx.IActorSource) Option {
	return func(o *modelOptions) { o.actors = s }
}

// WithClock 替换时间戳时钟
func WithClock(c Clock) Option {
	return func(o *modelOptions) { o.clock = c }
}
