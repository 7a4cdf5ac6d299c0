package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"videoclient/internal/domain"
	"videoclient/internal/infra"
	"videoclient/internal/sqlinline"
)

// Postgres stores named sessions in the client_sessions table.
type Postgres struct {
	sql  infra.SQLExecutor
	name string
}

// NewPostgres returns a store for the session called name.
func NewPostgres(sql infra.SQLExecutor, name string) (*Postgres, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("session: name is required")
	}
	return &Postgres{sql: sql, name: name}, nil
}

// Migrate creates the sessions table when it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.sql.Exec(ctx, sqlinline.QCreateClientSessions)
	return err
}

func (p *Postgres) Get(ctx context.Context) (*domain.Credentials, error) {
	row := p.sql.QueryRow(ctx, sqlinline.QSelectClientSession, p.name)
	var (
		creds   domain.Credentials
		profile []byte
	)
	if err := row.Scan(&creds.AccessToken, &creds.RefreshToken, &profile); err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: load %s: %w", p.name, err)
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &creds.Profile); err != nil {
			return nil, fmt.Errorf("session: decode profile: %w", err)
		}
	}
	if creds.Validate() != nil {
		return nil, nil
	}
	return &creds, nil
}

func (p *Postgres) Set(ctx context.Context, creds domain.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	profile, err := json.Marshal(creds.Profile)
	if err != nil {
		return err
	}
	if _, err := p.sql.Exec(ctx, sqlinline.QUpsertClientSession, p.name, creds.AccessToken, creds.RefreshToken, profile); err != nil {
		return fmt.Errorf("session: save %s: %w", p.name, err)
	}
	return nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.sql.Exec(ctx, sqlinline.QDeleteClientSession, p.name); err != nil {
		return fmt.Errorf("session: clear %s: %w", p.name, err)
	}
	return nil
}

var _ domain.CredentialStore = (*Postgres)(nil)
