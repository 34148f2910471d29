// Package di 按名称注册的数据源容器
//
// 审计配置中的 revisions.dataSource 通过这里解析为具体的修订写入器，
// CLI 与示例程序在启动时把 "db"、"redis"、"nats" 等数据源注册进来。
package di

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"auditz/errors"
)

// Factory 延迟创建实例，首次 Resolve 时调用一次
type Factory func(ctx context.Context) (any, error)

// Container 名称到实例的容器
type Container struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]any
}

func New() *Container {
	return &Container{
		factories: make(map[string]Factory),
		instances: make(map[string]any),
	}
}

// RegisterInstance 注册已创建的实例
func (c *Container) RegisterInstance(name string, instance any) error {
	if instance == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "instance cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered(name) {
		return errors.Errorf(errors.ErrCodeConflict, "data source %s already registered", name)
	}
	c.instances[name] = instance
	return nil
}

// RegisterFactory 注册延迟创建的实例
func (c *Container) RegisterFactory(name string, factory Factory) error {
	if factory == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "factory cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered(name) {
		return errors.Errorf(errors.ErrCodeConflict, "data source %s already registered", name)
	}
	c.factories[name] = factory
	return nil
}

func (c *Container) registered(name string) bool {
	_, inst := c.instances[name]
	_, fac := c.factories[name]
	return inst || fac
}

// Resolve 返回实例；工厂在锁内执行，保证只创建一次
func (c *Container) Resolve(ctx context.Context, name string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst, ok := c.instances[name]; ok {
		return inst, nil
	}
	factory, ok := c.factories[name]
	if !ok {
		return nil, errors.Errorf(errors.ErrCodeNotFound, "data source %s not registered", name)
	}
	inst, err := factory(ctx)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInternal, fmt.Sprintf("failed to create data source %s", name))
	}
	c.instances[name] = inst
	delete(c.factories, name)
	return inst, nil
}

// IsRegistered 名称是否已注册
func (c *Container) IsRegistered(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered(name)
}

// Names 已注册名称（排序）
func (c *Container) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.instances)+len(c.factories))
	for k := range c.instances {
		names = append(names, k)
	}
	for k := range c.factories {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ResolveAs 解析并断言为 T
func ResolveAs[T any](ctx context.Context, c *Container, name string) (T, error) {
	var zero T
	inst, err := c.Resolve(ctx, name)
	if err != nil {
		return zero, err
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, errors.Errorf(errors.ErrCodeInvalidInput, "data source %s is %T, not %T", name, inst, zero)
	}
	return typed, nil
}
