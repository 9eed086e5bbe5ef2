/**
 * @description
 * This file contains custom middleware for the HTTP router. Authentication is
 * a single capability: resolve a request into an identity of user id plus
 * role, or reject it. Every authenticated handler reads the identity from the
 * request context; no handler re-implements token handling.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */

package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/proptly/billing-service/internal/domain"
)

// identityContextKey is a custom type for the context key to avoid collisions.
type identityContextKey string

const identityKey identityContextKey = "billingIdentity"

// AuthOptions configures the JWT authentication middleware.
type AuthOptions struct {
	JWKSURL  string
	Issuer   string
	Audience string
}

// AuthMiddleware creates a middleware that validates bearer JWTs against the
// identity provider's JWKS endpoint and resolves them into an Identity.
func AuthMiddleware(opts AuthOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}

				kid, ok := token.Header["kid"].(string)
				if !ok {
					return nil, fmt.Errorf("kid not found in token header")
				}

				publicKey, err := getPublicKeyFromJWKS(opts.JWKSURL, kid)
				if err != nil {
					return nil, fmt.Errorf("failed to get public key: %w", err)
				}
				return publicKey, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			if opts.Audience != "" {
				if aud, ok := claims["aud"].(string); !ok || aud != opts.Audience {
					http.Error(w, "Invalid audience", http.StatusUnauthorized)
					return
				}
			}
			if opts.Issuer != "" {
				if iss, ok := claims["iss"].(string); !ok || iss != opts.Issuer {
					http.Error(w, "Invalid issuer", http.StatusUnauthorized)
					return
				}
			}

			userID, ok := claims["sub"].(string)
			if !ok || userID == "" {
				http.Error(w, "User ID not found in token", http.StatusUnauthorized)
				return
			}

			ident := domain.Identity{
				UserID: userID,
				Role:   resolveRole(claims),
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), ident)))
		})
	}
}

// resolveRole reads the role claim, defaulting to the least-privileged role
// when the token carries none.
func resolveRole(claims jwt.MapClaims) string {
	role, _ := claims["role"].(string)
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case domain.RoleAdmin:
		return domain.RoleAdmin
	case domain.RoleManager:
		return domain.RoleManager
	default:
		return domain.RoleTenant
	}
}

func withIdentity(ctx context.Context, ident domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// IdentityFromContext retrieves the authenticated identity from the request
// context. Handlers should use this to get the caller's user id and role.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(domain.Identity)
	return ident, ok
}

// getPublicKeyFromJWKS fetches the public key from the identity provider's
// JWKS endpoint.
func getPublicKeyFromJWKS(jwksURL, kid string) (interface{}, error) {
	// This is a simplified implementation. In production, you should cache
	// the JWKS and implement proper key rotation.
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(jwksURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, err
	}

	for _, key := range jwks.Keys {
		if key.Kid == kid {
			return parseRSAPublicKey(key.N, key.E)
		}
	}

	return nil, fmt.Errorf("key with kid %s not found", kid)
}

// parseRSAPublicKey parses an RSA public key from modulus and exponent.
func parseRSAPublicKey(n, e string) (interface{}, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}

	pub := &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp),
	}
	return pub, nil
}
