package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"videoclient/internal/domain"
)

// Service paths.
const (
	PathLogin      = "/user/login"
	PathRefresh    = "/user/refreshToken"
	PathUserInfo   = "/user/getUserInfo"
	PathMembership = "/user/points-and-membership"
	PathVideos     = "/video-ai/videos"
)

// VideoResultPath returns the status path of a generation job.
func VideoResultPath(id string) string {
	return PathVideos + "/" + url.PathEscape(id) + "/result"
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginPayload struct {
	Token        string         `json:"token"`
	RefreshToken string         `json:"refreshToken"`
	UserInfo     domain.Profile `json:"userInfo"`
}

// CreatedVideo is the payload of an accepted generation request.
type CreatedVideo struct {
	ID string `json:"id"`
}

// Login exchanges a username and password for a session. On business
// success the store is fully replaced; otherwise it is left alone.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.Envelope[domain.Credentials], error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("api: login: %w", domain.ErrInvalidCredentials)
	}
	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("api: encode login: %w", err)
	}
	res, err := c.Execute(ctx, Request{Method: http.MethodPost, Path: PathLogin, Body: body, SkipAuthRetry: true})
	if err != nil {
		return nil, err
	}
	payload, err := Decode[loginPayload](res)
	if err != nil {
		return nil, err
	}
	env := &domain.Envelope[domain.Credentials]{Code: payload.Code, Message: payload.Message}
	if !payload.OK() {
		return env, nil
	}
	env.Data = domain.Credentials{
		AccessToken:  payload.Data.Token,
		RefreshToken: payload.Data.RefreshToken,
		Profile:      payload.Data.UserInfo,
	}
	if err := c.store.Set(ctx, env.Data); err != nil {
		return nil, fmt.Errorf("api: store session: %w", err)
	}
	c.logger.Info().Str("username", env.Data.Profile.Username).Msg("api: logged in")
	return env, nil
}

// Logout drops the session. The service keeps no server side session state.
func (c *Client) Logout(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// RequireSession returns the stored credentials or domain.ErrNotAuthenticated.
func (c *Client) RequireSession(ctx context.Context) (*domain.Credentials, error) {
	creds, err := c.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return creds, nil
}

// UserInfo fetches the profile of the logged in user.
func (c *Client) UserInfo(ctx context.Context) (*domain.Envelope[domain.Profile], error) {
	return get[domain.Profile](ctx, c, PathUserInfo)
}

// PointsAndMembership fetches the points balance and membership tier.
func (c *Client) PointsAndMembership(ctx context.Context) (*domain.Envelope[domain.Membership], error) {
	return get[domain.Membership](ctx, c, PathMembership)
}

// CreateVideo submits a generation request after filling defaults.
func (c *Client) CreateVideo(ctx context.Context, req domain.GenerateRequest) (*domain.Envelope[CreatedVideo], error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("api: encode generate request: %w", err)
	}
	res, err := c.Execute(ctx, Request{Method: http.MethodPost, Path: PathVideos, Body: body})
	if err != nil {
		return nil, err
	}
	return Decode[CreatedVideo](res)
}

// VideoResult fetches the current state of a generation job.
func (c *Client) VideoResult(ctx context.Context, id string) (*domain.Envelope[domain.Job], error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("api: job id is required")
	}
	return get[domain.Job](ctx, c, VideoResultPath(id))
}

func get[T any](ctx context.Context, c *Client, path string) (*domain.Envelope[T], error) {
	res, err := c.Execute(ctx, Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	return Decode[T](res)
}
