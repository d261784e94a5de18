package baas

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/smis/core/backend"
	"github.com/trezcool/smis/core/user"
)

const audience = "authenticated"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	UserRole string `json:"user_role,omitempty"`
}

func newClaims(usr user.User, issuer string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   usr.ID,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email:    usr.Email,
		Role:     audience,
		UserRole: usr.Role,
	}
}

// generateToken signs the claims with HS256.
func generateToken(claims *Claims, key []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func parseToken(tokenStr string, key []byte, now time.Time) (*Claims, error) {
	claims := new(Claims)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) { return key, nil }); err != nil {
		return nil, errInvalidJWT
	}
	if !claims.VerifyExpiresAt(now, true) {
		return nil, backend.NewError(http.StatusUnauthorized, backend.CodeBadJWT, "invalid JWT: token is expired")
	}
	if !claims.VerifyAudience(audience, true) {
		return nil, errInvalidJWT
	}
	return claims, nil
}
