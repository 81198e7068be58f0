package service

import (
	"errors"
	"time"

	"moonvpn/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

/* ErrInvalidCredentials API 密钥或令牌校验失败 */
var ErrInvalidCredentials = errors.New("invalid credentials")

/*
Claims JWT 载荷
*/
type Claims struct {
	Caller string `json:"caller"` /* 调用方名称：bot / dashboard */
	Role   string `json:"role"`   /* service / admin */
	jwt.RegisteredClaims
}

/*
AuthService 认证服务
功能：服务调用方（机器人/仪表盘）凭 API 密钥换取短期 JWT，
后续请求携带 JWT。API 密钥以 bcrypt 哈希存于配置，明文不落盘。
*/
type AuthService struct {
	secret     []byte
	expiration time.Duration
	keys       []config.APIKeyConfig
}

/*
NewAuthService 创建认证服务
*/
func NewAuthService(cfg config.AuthConfig) *AuthService {
	exp := time.Duration(cfg.JWTExpiration) * time.Hour
	if exp <= 0 {
		exp = 24 * time.Hour
	}
	return &AuthService{
		secret:     []byte(cfg.JWTSecret),
		expiration: exp,
		keys:       cfg.APIKeys,
	}
}

/*
Exchange 用 API 密钥换取 JWT
功能：逐个比对配置中的密钥哈希，命中则签发携带调用方名称
和角色的令牌
*/
func (a *AuthService) Exchange(apiKey string) (string, *Claims, error) {
	for _, k := range a.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(apiKey)) == nil {
			claims := &Claims{
				Caller: k.Name,
				Role:   k.Role,
				RegisteredClaims: jwt.RegisteredClaims{
					IssuedAt:  jwt.NewNumericDate(time.Now()),
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.expiration)),
					Issuer:    "moonvpn",
				},
			}
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
			signed, err := token.SignedString(a.secret)
			if err != nil {
				return "", nil, err
			}
			return signed, claims, nil
		}
	}
	return "", nil, ErrInvalidCredentials
}

/*
Verify 校验 JWT
*/
func (a *AuthService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredentials
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}
