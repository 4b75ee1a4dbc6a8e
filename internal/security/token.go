package security

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformedToken = errors.New("malformed access token")

// AccessClaims is what the dashboard reads out of a backend token. The
// backend signs the token; the dashboard never verifies it and only uses
// the claims to attribute predictions to their owner.
type AccessClaims struct {
	UserID   any    `json:"user_id,omitempty"`
	UID      any    `json:"uid,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

type Identity struct {
	UserID   string
	Username string
}

// InspectAccessToken decodes the claims of a JWT without checking its
// signature. Opaque (non-JWT) tokens yield ErrMalformedToken.
func InspectAccessToken(tokenStr string) (Identity, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	identity := Identity{
		UserID:   firstNonEmpty(claimString(claims.UserID), claimString(claims.UID), claims.Subject),
		Username: firstNonEmpty(claims.Username, claims.Subject),
	}
	if identity.UserID == "" {
		return Identity{}, fmt.Errorf("%w: no subject", ErrMalformedToken)
	}
	return identity, nil
}

func claimString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
