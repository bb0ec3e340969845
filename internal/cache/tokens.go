package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Social provider tokens have fixed lifetimes: the access token can be
// refreshed, the refresh token requires a full re-auth once it runs out.
const (
	AccessTokenLifetimeDays  = 60
	RefreshTokenLifetimeDays = 365

	accessRefreshThresholdDays = 7
	reauthAlertThresholdDays   = 30
)

// Token is a stored provider token pair with its issue time.
type Token struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// TokenStatus is the expiry bookkeeping derived from a stored token.
type TokenStatus struct {
	Provider             string `json:"provider"`
	AccessDaysRemaining  int    `json:"accessDaysRemaining"`
	RefreshDaysRemaining int    `json:"refreshDaysRemaining"`
	NeedsRefresh         bool   `json:"needsRefresh"`
	NeedsReauth          bool   `json:"needsReauth"`
}

func tokenKey(provider string) string {
	return "token:" + provider
}

// SaveToken stores a provider token. Tokens do not expire out of Redis on
// their own; expiry is reported through Status so the operator can act
// before the provider cuts them off.
func (r *Redis) SaveToken(ctx context.Context, provider string, token Token) error {
	if token.IssuedAt.IsZero() {
		token.IssuedAt = time.Now()
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := r.client.Set(ctx, tokenKey(provider), data, 0).Err(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// GetToken returns the stored token for a provider, or ErrMiss.
func (r *Redis) GetToken(ctx context.Context, provider string) (Token, error) {
	data, err := r.client.Get(ctx, tokenKey(provider)).Result()
	if err == redis.Nil {
		return Token{}, ErrMiss
	}
	if err != nil {
		return Token{}, fmt.Errorf("get token: %w", err)
	}
	var token Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return Token{}, fmt.Errorf("decode token: %w", err)
	}
	return token, nil
}

// TokenStatusFor computes expiry bookkeeping for a stored token.
func TokenStatusFor(provider string, token Token, now time.Time) TokenStatus {
	access := daysRemaining(token.IssuedAt, AccessTokenLifetimeDays, now)
	refresh := daysRemaining(token.IssuedAt, RefreshTokenLifetimeDays, now)
	return TokenStatus{
		Provider:             provider,
		AccessDaysRemaining:  access,
		RefreshDaysRemaining: refresh,
		NeedsRefresh:         access <= accessRefreshThresholdDays,
		NeedsReauth:          refresh <= reauthAlertThresholdDays,
	}
}

func daysRemaining(issuedAt time.Time, lifetimeDays int, now time.Time) int {
	expiresAt := issuedAt.Add(time.Duration(lifetimeDays) * 24 * time.Hour)
	return int(expiresAt.Sub(now).Hours() / 24)
}
