package security

import (
	"fmt"
	"strings"
	"time"

	"PPGateway/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options 控制签名算法与TTL。
type Options struct {
	Secret []byte        // HMAC 密钥（生产用ENV）
	Alg    string        // HS256/HS384/HS512（默认 HS256）
	TTL    time.Duration // 令牌有效期（默认 2h）
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 2 * time.Hour}
}

// Enabled reports whether token verification is configured at all.
func (o Options) Enabled() bool { return len(o.Secret) > 0 }

// Issue signs a token whose subject is userID. Used by tooling and tests;
// the gateway itself only verifies.
func Issue(opts Options, userID string) (string, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", err
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	now := time.Now()
	claims := jwtlib.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwtlib.NewNumericDate(now),
		NotBefore: jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(opts.TTL)),
	}
	return jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
}

// Subject verifies token and returns its `sub` claim.
func Subject(opts Options, token string) (string, error) {
	if _, err := signingMethod(opts.Alg); err != nil {
		return "", err
	}
	var claims jwtlib.RegisteredClaims
	parsed, err := jwtlib.ParseWithClaims(token, &claims, func(t *jwtlib.Token) (interface{}, error) {
		// 仅允许 HMAC 家族
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	})
	if err != nil {
		return "", errs.ErrArgs.WrapMsg("invalid token", "err", err)
	}
	if !parsed.Valid {
		return "", errs.ErrArgs.WrapMsg("invalid token")
	}
	if claims.Subject == "" {
		return "", errs.ErrArgs.WrapMsg("token has no subject")
	}
	return claims.Subject, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
