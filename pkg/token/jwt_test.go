package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 1, 7)

	tokenString, err := manager.GenerateToken("user-1", "alice", "admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := manager.VerifyToken(tokenString)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "alice" || claims.Role != "admin" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	manager := NewJWTManager("secret-a", 1, 7)
	other := NewJWTManager("secret-b", 1, 7)

	tokenString, err := manager.GenerateToken("user-1", "alice", "user")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := other.VerifyToken(tokenString); err == nil {
		t.Fatal("错误密钥签发的 token 应校验失败")
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	// 负的有效期生成一个立即过期的 token
	manager := NewJWTManager("test-secret", -1, 7)

	tokenString, err := manager.GenerateToken("user-1", "alice", "user")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := manager.VerifyToken(tokenString); err == nil {
		t.Fatal("过期 token 应校验失败")
	}
}

func TestVerifyTokenRejectsNonHMAC(t *testing.T) {
	manager := NewJWTManager("test-secret", 1, 7)

	// alg=none 的 token 必须被拒绝
	token := jwt.NewWithClaims(jwt.SigningMethodNone, CustomClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("签发 none token 失败: %v", err)
	}
	if _, err := manager.VerifyToken(tokenString); err == nil {
		t.Fatal("非 HMAC 签名的 token 应校验失败")
	}
}

func TestRefreshTokenIsVerifiable(t *testing.T) {
	manager := NewJWTManager("test-secret", 1, 7)

	tokenString, err := manager.GenerateRefreshToken("user-1", "alice", "user")
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	claims, err := manager.VerifyToken(tokenString)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("claims = %+v", claims)
	}
}
