package orm

import (
	"fmt"
	"sort"
	"sync"
)

// MixinFunc 把一段通用行为挂到模型上，opts 为该模型的 mixin 配置
type MixinFunc func(meta *ModelMeta, opts map[string]any) error

// Registry 模型与 mixin 注册表
type Registry struct {
	mu     sync.RWMutex
	models map[string]*ModelMeta
	mixins map[string]MixinFunc
}

func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*ModelMeta),
		mixins: make(map[string]MixinFunc),
	}
}

// Register 注册模型，同名覆盖
func (r *Registry) Register(meta *ModelMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[meta.Name] = meta
}

// Model 按名称获取模型
func (r *Registry) Model(name string) (*ModelMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Models 返回按名称排序的模型
func (r *Registry) Models() []*ModelMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ModelMeta, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefineMixin 注册 mixin
func (r *Registry) DefineMixin(name string, fn MixinFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mixins[name] = fn
}

// HasMixin 判断 mixin 是否已注册
func (r *Registry) HasMixin(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.mixins[name]
	return ok
}

// Apply 对模型应用已注册的 mixin
func (r *Registry) Apply(name string, meta *ModelMeta, opts map[string]any) error {
	r.mu.RLock()
	fn, ok := r.mixins[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("orm: mixin %q not defined", name)
	}
	return fn(meta, opts)
}
