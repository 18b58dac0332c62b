// Package auth 提供握手阶段的 token 验证
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// UserRecord 验证通过后返回的用户记录
type UserRecord struct {
	UserID     string
	PlayerName string
}

// Claims JWT claims
type Claims struct {
	UserID     string `json:"user_id"`
	PlayerName string `json:"player_name,omitempty"`
	jwt.RegisteredClaims
}

// Validator token 验证接口（握手流程只依赖这个接口）
type Validator interface {
	Validate(token string) (*UserRecord, error)
}

// JWTValidator JWT 验证器
type JWTValidator struct {
	secretKey []byte
	allowMock bool
}

// NewJWTValidator 创建 JWT 验证器
// allowMock 为 true 时放行 "dev_" 前缀的 token（开发环境）
func NewJWTValidator(secretKey string, allowMock bool) *JWTValidator {
	return &JWTValidator{
		secretKey: []byte(secretKey),
		allowMock: allowMock,
	}
}

// Validate 验证 token 并返回用户记录
func (v *JWTValidator) Validate(tokenString string) (*UserRecord, error) {
	// 开发环境：允许 mock token
	if v.allowMock && len(tokenString) >= 4 && tokenString[:4] == "dev_" {
		return &UserRecord{UserID: tokenString[4:]}, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return &UserRecord{
		UserID:     claims.UserID,
		PlayerName: claims.PlayerName,
	}, nil
}

// GenerateToken 生成 JWT token（用于测试）
func (v *JWTValidator) GenerateToken(userID, playerName string, expiry time.Duration) (string, error) {
	claims := &Claims{
		UserID:     userID,
		PlayerName: playerName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secretKey)
}
