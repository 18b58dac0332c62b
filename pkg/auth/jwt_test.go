package auth

import (
	"errors"
	"testing"
	"time"
)

func TestMockToken(t *testing.T) {
	v := NewJWTValidator("secret", true)

	user, err := v.Validate("dev_alice")
	if err != nil {
		t.Fatalf("mock token 验证失败: %v", err)
	}
	if user.UserID != "alice" {
		t.Errorf("user_id = %q", user.UserID)
	}
}

func TestMockTokenDisabled(t *testing.T) {
	v := NewJWTValidator("secret", false)

	if _, err := v.Validate("dev_alice"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("关闭 mock 后应拒绝, err=%v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	v := NewJWTValidator("secret", false)

	token, err := v.GenerateToken("u-1001", "alice", time.Hour)
	if err != nil {
		t.Fatalf("签发失败: %v", err)
	}

	user, err := v.Validate(token)
	if err != nil {
		t.Fatalf("验证失败: %v", err)
	}
	if user.UserID != "u-1001" || user.PlayerName != "alice" {
		t.Errorf("claims = %+v", user)
	}
}

func TestExpiredToken(t *testing.T) {
	v := NewJWTValidator("secret", false)

	token, err := v.GenerateToken("u-1001", "alice", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Validate(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("过期 token err=%v", err)
	}
}

func TestWrongSecret(t *testing.T) {
	issuer := NewJWTValidator("secret-a", false)
	verifier := NewJWTValidator("secret-b", false)

	token, err := issuer.GenerateToken("u-1001", "alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("错误密钥 err=%v", err)
	}
}

func TestGarbageToken(t *testing.T) {
	v := NewJWTValidator("secret", true)

	for _, token := range []string{"", "abc", "a.b.c", "dev"} {
		if _, err := v.Validate(token); err == nil {
			t.Errorf("token %q 不应通过", token)
		}
	}
}
