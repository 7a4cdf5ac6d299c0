package domain

import "errors"

var (
	ErrTransport          = errors.New("transport failure")
	ErrSessionExpired     = errors.New("session expired")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPrompt      = errors.New("invalid prompt")
	ErrJobNotFound        = errors.New("job not found")
	ErrEmptyResult        = errors.New("job succeeded without results")
	ErrJobFailed          = errors.New("job failed")
)
