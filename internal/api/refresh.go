package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const refreshKey = "refresh"

// maxRefreshFlights bounds how many shared exchanges one caller waits on.
const maxRefreshFlights = 3

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges the stored refresh token for a new pair and keeps the
// stored profile. It reports false, leaving the store untouched, on any
// failure and never retries. Concurrent callers share one in-flight exchange
// so a rotated refresh token is never presented twice.
func (c *Client) Refresh(ctx context.Context) bool {
	return c.sharedRefresh(ctx, "")
}

// sharedRefresh runs at most one exchange at a time. A non-empty rejected
// token is the access token a 401 was answered for: when the store already
// holds a different one the pair was rotated and no exchange is needed. A
// flight may have been started for an older rejected token and skipped the
// exchange, so every caller checks its own token again once the flight ends.
func (c *Client) sharedRefresh(ctx context.Context, rejected string) bool {
	for attempt := 0; attempt < maxRefreshFlights; attempt++ {
		v, _, _ := c.refreshGroup.Do(refreshKey, func() (any, error) {
			// The exchange outlives the caller that started it; others wait on it.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
			defer cancel()
			return c.refresh(ctx, rejected), nil
		})
		if ok, _ := v.(bool); !ok || rejected == "" {
			return ok
		}
		rotated, err := c.rotatedSince(ctx, rejected)
		if err != nil {
			return false
		}
		if rotated {
			return true
		}
		c.logger.Debug().Msg("api: refresh: joined flight left our token in place")
	}
	return false
}

// rotatedSince reports whether the stored access token differs from
// rejected. An anonymous store is never rotated.
func (c *Client) rotatedSince(ctx context.Context, rejected string) (bool, error) {
	creds, err := c.store.Get(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("api: refresh: read session")
		return false, err
	}
	return creds != nil && creds.AccessToken != rejected, nil
}

func (c *Client) refresh(ctx context.Context, rejected string) bool {
	creds, err := c.store.Get(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("api: refresh: read session")
		return false
	}
	if creds == nil || strings.TrimSpace(creds.RefreshToken) == "" {
		c.logger.Debug().Msg("api: refresh: no refresh token")
		return false
	}
	if rejected != "" && creds.AccessToken != rejected {
		c.logger.Debug().Msg("api: refresh: pair already rotated")
		return true
	}
	body, err := json.Marshal(refreshRequest{RefreshToken: creds.RefreshToken})
	if err != nil {
		return false
	}
	res, err := c.Execute(ctx, Request{
		Method:        http.MethodPost,
		Path:          PathRefresh,
		Body:          body,
		SkipAuthRetry: true,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("api: refresh: call failed")
		return false
	}
	env, err := Decode[tokenPair](res)
	if err != nil {
		c.logger.Warn().Err(err).Msg("api: refresh: decode failed")
		return false
	}
	if !env.OK() || env.Data.Token == "" || env.Data.RefreshToken == "" {
		c.logger.Warn().Int("code", env.Code).Str("msg", env.Message).Msg("api: refresh rejected")
		return false
	}
	if err := c.store.Set(ctx, creds.WithTokens(env.Data.Token, env.Data.RefreshToken)); err != nil {
		c.logger.Error().Err(err).Msg("api: refresh: store new tokens")
		return false
	}
	c.logger.Info().Msg("api: session refreshed")
	return true
}
