package domain

import "strings"

// Profile is the user record returned by the remote service at login.
type Profile struct {
	UserID     int64    `json:"userId"`
	Username   string   `json:"username"`
	Nickname   string   `json:"nickname"`
	Avatar     string   `json:"avatar"`
	Roles      []string `json:"roles"`
	Active     int      `json:"active"`
	CreateTime string   `json:"create_time"`
	UpdateTime string   `json:"update_time"`
}

// DisplayName prefers the nickname and falls back to the username.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Nickname); name != "" {
		return name
	}
	return p.Username
}

// Credentials is the authenticated session: one token pair plus the profile
// attached at login time.
type Credentials struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	Profile      Profile `json:"profile"`
}

// Validate enforces that both tokens are present. A session with only one of
// them is never stored.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.AccessToken) == "" || strings.TrimSpace(c.RefreshToken) == "" {
		return ErrInvalidCredentials
	}
	return nil
}

// WithTokens returns a copy carrying a rotated token pair and the same profile.
func (c Credentials) WithTokens(access, refresh string) Credentials {
	c.AccessToken = access
	c.RefreshToken = refresh
	return c
}

// MembershipLevel enumerates the membership tiers reported by the service.
type MembershipLevel string

const (
	MembershipRegular  MembershipLevel = "0"
	MembershipMember   MembershipLevel = "1"
	MembershipPremium  MembershipLevel = "2"
	MembershipLifetime MembershipLevel = "3"
)

// Name returns a human readable label for the level.
func (l MembershipLevel) Name() string {
	switch l {
	case MembershipRegular:
		return "regular"
	case MembershipMember:
		return "member"
	case MembershipPremium:
		return "premium"
	case MembershipLifetime:
		return "lifetime"
	default:
		return "unknown"
	}
}

// Membership carries the points balance and membership tier of a user.
type Membership struct {
	UserID int64           `json:"userId"`
	Points int             `json:"points"`
	Level  MembershipLevel `json:"membership"`
}
