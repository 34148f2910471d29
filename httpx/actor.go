// Package httpx 请求方身份（actor）与网络来源在 context 中的传递
//
// 审计层在写入前后都通过 IActorSource 读取当前 actor：
// 用户 ID 决定 createdBy/updatedBy/deletedBy，IP 与转发地址写入修订记录。
package httpx

import (
	"context"

	"github.com/go-chi/chi/v5"
)

// LoopbackIP 没有网络上下文（如服务内部写入）时使用的 IP
const LoopbackIP = "127.0.0.1"

type contextKey string

const actorKey contextKey = "auditz.actor"

// Actor 一次调用的发起方
type Actor struct {
	// UserID 已认证用户，nil 表示匿名
	UserID      any
	IP          string
	IPForwarded string

	routeID any
	route   *chi.Context
}

// WithRouteID 显式指定路由参数中的目标行 ID
func (a Actor) WithRouteID(id any) Actor {
	a.routeID = id
	return a
}

// RouteID 目标行 ID：显式值优先，否则读取 chi 路由参数 id
//
// chi 在中间件之后才填充 URL 参数，因此这里保存路由上下文指针并在调用时读取。
func (a Actor) RouteID() any {
	if a.routeID != nil {
		return a.routeID
	}
	if a.route != nil {
		if v := a.route.URLParam("id"); v != "" {
			return v
		}
	}
	return nil
}

// Authenticated 是否带有用户身份
func (a Actor) Authenticated() bool {
	return a.UserID != nil
}

// NetworkIP 未知时返回 LoopbackIP
func (a Actor) NetworkIP() string {
	if a.IP == "" {
		return LoopbackIP
	}
	return a.IP
}

// WithActor 把 actor 放入 context
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext 读取 actor
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

// WithUser 便捷方法：只携带用户 ID 的 actor，常用于后台任务
func WithUser(ctx context.Context, userID any) context.Context {
	a, _ := ActorFromContext(ctx)
	a.UserID = userID
	return WithActor(ctx, a)
}

// IActorSource 写入拦截器获取 actor 的方式
type IActorSource interface {
	Actor(ctx context.Context) (Actor, bool)
}

// ContextActorSource 从 context 读取 actor
type ContextActorSource struct{}

func (ContextActorSource) Actor(ctx context.Context) (Actor, bool) {
	return ActorFromContext(ctx)
}

// StaticActorSource 固定 actor，用于 CLI 与测试
type StaticActorSource struct {
	Value Actor
}

func (s StaticActorSource) Actor(context.Context) (Actor, bool) {
	return s.Value, true
}
