package httpx

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"auditz/logging"
)

// ForwardedForHeader 代理转发地址头
const ForwardedForHeader = "X-Forwarded-For"

// IUserResolver 从请求中解析用户 ID；返回 nil, nil 表示匿名
type IUserResolver interface {
	ResolveUser(r *http.Request) (any, error)
}

// UserResolverFunc 函数适配
type UserResolverFunc func(r *http.Request) (any, error)

func (f UserResolverFunc) ResolveUser(r *http.Request) (any, error) { return f(r) }

// ActorMiddleware 为每个请求构造 Actor 放入 context
//
// 用户解析失败不会拒绝请求，只记录告警并按匿名处理，鉴权由上层中间件负责。
func ActorMiddleware(users IUserResolver, logger logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.GetLogger()
	}
	logger = logger.WithFields(logging.String("component", "httpx.actor"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := Actor{
				IP:          remoteIP(r.RemoteAddr),
				IPForwarded: r.Header.Get(ForwardedForHeader),
				route:       chi.RouteContext(r.Context()),
			}
			if users != nil {
				userID, err := users.ResolveUser(r)
				if err != nil {
					logger.Warn(r.Context(), "resolve user failed", logging.Error(err), logging.String("path", r.URL.Path))
				} else {
					a.UserID = userID
				}
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
		})
	}
}

func remoteIP(addr string) string {
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.TrimSpace(addr)
	}
	return host
}
