package service

import (
	"errors"
	"testing"

	"moonvpn/internal/config"

	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(t *testing.T, secret string) *AuthService {
	t.Helper()
	botHash, err := bcrypt.GenerateFromPassword([]byte("bot-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("生成密钥哈希失败: %v", err)
	}
	adminHash, err := bcrypt.GenerateFromPassword([]byte("admin-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("生成密钥哈希失败: %v", err)
	}
	return NewAuthService(config.AuthConfig{
		JWTSecret:     secret,
		JWTExpiration: 1,
		APIKeys: []config.APIKeyConfig{
			{Name: "bot", KeyHash: string(botHash), Role: "service"},
			{Name: "dashboard", KeyHash: string(adminHash), Role: "admin"},
		},
	})
}

/*
TestExchangeAndVerify 测试 API 密钥换取并校验 JWT
*/
func TestExchangeAndVerify(t *testing.T) {
	auth := newTestAuth(t, "test-secret")

	token, claims, err := auth.Exchange("bot-key")
	if err != nil {
		t.Fatalf("密钥换取令牌失败: %v", err)
	}
	if claims.Caller != "bot" || claims.Role != "service" {
		t.Errorf("签发载荷不匹配: %+v", claims)
	}

	verified, err := auth.Verify(token)
	if err != nil {
		t.Fatalf("令牌校验失败: %v", err)
	}
	if verified.Caller != "bot" || verified.Role != "service" {
		t.Errorf("校验载荷不匹配: %+v", verified)
	}
}

/*
TestExchangeMatchesCorrectKey 测试多密钥配置下按哈希命中
*/
func TestExchangeMatchesCorrectKey(t *testing.T) {
	auth := newTestAuth(t, "test-secret")

	_, claims, err := auth.Exchange("admin-key")
	if err != nil {
		t.Fatalf("密钥换取令牌失败: %v", err)
	}
	if claims.Caller != "dashboard" || claims.Role != "admin" {
		t.Errorf("应命中 dashboard 密钥: %+v", claims)
	}
}

/*
TestExchangeRejectsUnknownKey 测试未知密钥被拒绝
*/
func TestExchangeRejectsUnknownKey(t *testing.T) {
	auth := newTestAuth(t, "test-secret")

	if _, _, err := auth.Exchange("wrong-key"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("未知密钥应返回 ErrInvalidCredentials, 实际 %v", err)
	}
}

/*
TestVerifyRejectsForeignToken 测试他方密钥签发的令牌被拒绝
*/
func TestVerifyRejectsForeignToken(t *testing.T) {
	issuer := newTestAuth(t, "secret-a")
	verifier := newTestAuth(t, "secret-b")

	token, _, err := issuer.Exchange("bot-key")
	if err != nil {
		t.Fatalf("密钥换取令牌失败: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("跨密钥令牌应返回 ErrInvalidCredentials, 实际 %v", err)
	}
}

/*
TestVerifyRejectsGarbage 测试畸形令牌被拒绝
*/
func TestVerifyRejectsGarbage(t *testing.T) {
	auth := newTestAuth(t, "test-secret")

	if _, err := auth.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("畸形令牌应返回 ErrInvalidCredentials, 实际 %v", err)
	}
}
