package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lms-cloud/gateway/internal/config"
	"github.com/lms-cloud/gateway/internal/errors"
)

// Authenticator verifies bearer tokens and derives the Principal.
// Signature verification, expiry and issuer checks are delegated to
// the configured trust material (shared secret or identity-provider
// public key).
type Authenticator struct {
	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
	audience  []string
	algorithm string
	keyFunc   jwt.Keyfunc
}

// NewAuthenticator creates an authenticator from JWT config.
func NewAuthenticator(cfg config.JWTConfig) (*Authenticator, error) {
	a := &Authenticator{
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		algorithm: cfg.Algorithm,
	}

	if a.algorithm == "" {
		a.algorithm = "HS256"
	}

	if strings.HasPrefix(a.algorithm, "HS") {
		if cfg.Secret == "" {
			return nil, fmt.Errorf("jwt: %s requires a secret", a.algorithm)
		}
		a.secret = []byte(cfg.Secret)
		a.keyFunc = func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		}
	} else if strings.HasPrefix(a.algorithm, "RS") {
		if cfg.PublicKey == "" {
			return nil, fmt.Errorf("jwt: %s requires a public key", a.algorithm)
		}
		block, _ := pem.Decode([]byte(cfg.PublicKey))
		if block == nil {
			return nil, fmt.Errorf("jwt: failed to parse PEM block containing public key")
		}
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwt: failed to parse public key: %w", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("jwt: public key is not an RSA key")
		}
		a.publicKey = rsaPub
		a.keyFunc = func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.publicKey, nil
		}
	} else {
		return nil, fmt.Errorf("jwt: unsupported algorithm %s", a.algorithm)
	}

	return a, nil
}

// Authenticate verifies the request's bearer token and returns the
// Principal. Failures are returned as *errors.GatewayError; a missing
// or invalid token on a protected route is never treated as anonymous.
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	tokenString := extractBearer(r)
	if tokenString == "" {
		return nil, errors.ErrUnauthenticated.WithDetails("Bearer token not provided")
	}

	token, err := jwt.Parse(tokenString, a.keyFunc)
	if err != nil {
		return nil, errors.ErrUnauthenticated.WithDetails(fmt.Sprintf("Invalid token: %v", err))
	}
	if !token.Valid {
		return nil, errors.ErrUnauthenticated.WithDetails("Token is not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.ErrUnauthenticated.WithDetails("Invalid token claims")
	}

	if a.issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != a.issuer {
			return nil, errors.ErrUnauthenticated.WithDetails("Invalid token issuer")
		}
	}

	if len(a.audience) > 0 {
		aud, _ := claims.GetAudience()
		if !a.containsAudience(aud) {
			return nil, errors.ErrUnauthenticated.WithDetails("Invalid token audience")
		}
	}

	subject, _ := claims.GetSubject()
	username, _ := claims["preferred_username"].(string)
	email, _ := claims["email"].(string)

	return &Principal{
		Subject:  subject,
		Username: username,
		Email:    email,
		Roles:    ExtractRoles(claims),
	}, nil
}

// extractBearer extracts the token from the Authorization header.
func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return ""
}

// containsAudience checks if any token audience matches the expected set.
func (a *Authenticator) containsAudience(tokenAud []string) bool {
	for _, ta := range tokenAud {
		for _, ea := range a.audience {
			if ta == ea {
				return true
			}
		}
	}
	return false
}
