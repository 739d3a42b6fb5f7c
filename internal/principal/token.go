package principal

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the staff identity reference inside a bearer token.
type Claims struct {
	Position string `json:"position"`
	Admin    bool   `json:"admin"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens issued by the credential service.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier constructs a Verifier.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// IssueToken signs a token for the given staff member. Token issuance belongs
// to the credential service; this helper exists for seeding and tests.
func (v *Verifier) IssueToken(staffID, position string, admin bool, ttl time.Duration) (string, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return "", errors.New("principal: staff id required")
	}
	if ttl <= 0 {
		return "", errors.New("principal: ttl must be greater than zero")
	}
	now := time.Now().UTC()
	claims := Claims{
		Position: position,
		Admin:    admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   staffID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses and validates a bearer token, distinguishing expiry from
// every other failure mode.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoCredential
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if err := v.validateClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *Verifier) validateClaims(claims *Claims) error {
	if v.issuer != "" && claims.Issuer != v.issuer {
		return ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return ErrTokenInvalid
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrTokenInvalid
	}
	now := time.Now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return ErrTokenExpired
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return ErrTokenInvalid
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return ErrTokenInvalid
	}
	return nil
}
