package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Fallback lifetimes, deliberately shorter than the server's stated
// ones (~20 minutes / ~1 month) so a token is never used right at the
// edge of its real expiry.
const (
	accessFallbackTTL  = 18 * time.Minute
	refreshFallbackTTL = 25 * 24 * time.Hour

	// expirySafetyMargin is subtracted from a server-declared exp claim.
	expirySafetyMargin = 2 * time.Minute
)

// Pair holds one access/refresh token pair with local expiry instants.
// A Pair is never mutated; refresh and login build a replacement.
type Pair struct {
	Access           string    `json:"access"`
	Refresh          string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// NewPair builds a Pair from freshly issued tokens. Expiry comes from
// the token's own exp claim (minus a safety margin) when the token is a
// parseable JWT; opaque tokens fall back to the fixed buffers.
func NewPair(access, refresh string, now time.Time) Pair {
	return Pair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  expiryFor(access, now, accessFallbackTTL),
		RefreshExpiresAt: expiryFor(refresh, now, refreshFallbackTTL),
	}
}

// IsAccessExpired reports whether the access token should no longer be
// presented as of now.
func (p Pair) IsAccessExpired(now time.Time) bool {
	return !now.Before(p.AccessExpiresAt)
}

// IsRefreshExpired reports whether the refresh token should no longer
// be presented as of now.
func (p Pair) IsRefreshExpired(now time.Time) bool {
	return !now.Before(p.RefreshExpiresAt)
}

// expiryFor picks the declared JWT expiry when available and still in
// the future after the safety margin, otherwise now+fallback.
func expiryFor(token string, now time.Time, fallback time.Duration) time.Time {
	if exp, ok := jwtExpiry(token); ok {
		buffered := exp.Add(-expirySafetyMargin)
		if buffered.After(now) {
			return buffered
		}
	}
	return now.Add(fallback)
}

// jwtExpiry extracts the exp claim without verifying the signature.
// The server vouched for the token by issuing it; only the lifetime is
// of interest here.
func jwtExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
