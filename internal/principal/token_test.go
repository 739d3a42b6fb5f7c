package principal

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("supersecret", "meridian")

	raw, err := v.IssueToken("staff-1", "doctor", false, time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "staff-1", claims.Subject)
	require.Equal(t, "doctor", claims.Position)
	require.False(t, claims.Admin)
	require.Equal(t, "meridian", claims.Issuer)
}

func TestVerifyMissingCredential(t *testing.T) {
	v := NewVerifier("supersecret", "meridian")

	_, err := v.Verify("")
	require.ErrorIs(t, err, ErrNoCredential)

	_, err = v.Verify("   ")
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewVerifier("secret-a", "meridian")
	raw, err := issuer.IssueToken("staff-1", "nurse", false, time.Hour)
	require.NoError(t, err)

	v := NewVerifier("secret-b", "meridian")
	_, err = v.Verify(raw)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	other := NewVerifier("supersecret", "someone-else")
	raw, err := other.IssueToken("staff-1", "nurse", false, time.Hour)
	require.NoError(t, err)

	v := NewVerifier("supersecret", "meridian")
	_, err = v.Verify(raw)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("supersecret", "meridian")

	now := time.Now().UTC().Add(-2 * time.Hour)
	claims := Claims{
		Position: "doctor",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "meridian",
			Subject:   "staff-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("supersecret"))
	require.NoError(t, err)

	_, err = v.Verify(raw)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	v := NewVerifier("supersecret", "meridian")

	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "meridian",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("supersecret"))
	require.NoError(t, err)

	_, err = v.Verify(raw)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsUnexpectedSigningMethod(t *testing.T) {
	v := NewVerifier("supersecret", "meridian")

	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "meridian",
			Subject:   "staff-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte("supersecret"))
	require.NoError(t, err)

	_, err = v.Verify(raw)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestIssueTokenValidation(t *testing.T) {
	v := NewVerifier("supersecret", "meridian")

	_, err := v.IssueToken("", "doctor", false, time.Hour)
	require.Error(t, err)

	_, err = v.IssueToken("staff-1", "doctor", false, 0)
	require.Error(t, err)
}
