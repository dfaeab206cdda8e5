// Package token 提供了用于生成和验证租户会话令牌 (JWT) 的功能。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey []byte
	tokenDur  time.Duration
}

// TenantClaims 定义了租户令牌中携带的自定义数据。
type TenantClaims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
// expireHours 为 0 时默认 7 天，对齐租户凭证的长生命周期。
func NewJWTManager(secret string, expireHours int) *JWTManager {
	dur := time.Duration(expireHours) * time.Hour
	if dur <= 0 {
		dur = 7 * 24 * time.Hour
	}
	return &JWTManager{
		secretKey: []byte(secret),
		tokenDur:  dur,
	}
}

// GenerateToken 为给定租户签发一个新的会话令牌。
func (m *JWTManager) GenerateToken(tenantID string) (string, error) {
	now := time.Now()
	claims := TenantClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secretKey)
}

// VerifyToken 验证给定的令牌字符串，有效时返回其中的租户声明。
func (m *JWTManager) VerifyToken(tokenString string) (*TenantClaims, error) {
	t, err := jwt.ParseWithClaims(tokenString, &TenantClaims{}, func(t *jwt.Token) (interface{}, error) {
		// 只接受 HMAC 签名
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := t.Claims.(*TenantClaims); ok && t.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
