package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("httpx: invalid bearer token")

// JWTUserResolver 从 Authorization: Bearer 令牌中读取用户 ID
//
// 用户 ID 取自 claim（默认 sub）；纯数字的值解析为 int64，与 number 型 createdBy 字段一致。
type JWTUserResolver struct {
	key   []byte
	claim string
}

func NewJWTUserResolver(signingKey string, claim string) *JWTUserResolver {
	if claim == "" {
		claim = "sub"
	}
	return &JWTUserResolver{key: []byte(signingKey), claim: claim}
}

func (j *JWTUserResolver) ResolveUser(r *http.Request) (any, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return j.key, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	switch v := claims[j.claim].(type) {
	case nil:
		return nil, nil
	case float64:
		return int64(v), nil
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, nil
		}
		return v, nil
	default:
		return v, nil
	}
}
