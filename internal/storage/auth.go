package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrTokenExpired     = errors.New("token expired")
)

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthState is the session of the logged in user.
type AuthState struct {
	Token           string `json:"token"`
	User            User   `json:"user"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// AuthStore keeps the auth session. It implements api.TokenSource.
type AuthStore struct {
	dbConn *sqlx.DB
	now    func() time.Time
}

type authRow struct {
	Token           string `db:"token"`
	UserID          int64  `db:"user_id"`
	UserName        string `db:"user_name"`
	UserEmail       string `db:"user_email"`
	IsAuthenticated bool   `db:"is_authenticated"`
}

// Get returns the stored session or nil if there is none.
func (as *AuthStore) Get(ctx context.Context) (*AuthState, error) {
	var r authRow
	query := `SELECT token, user_id, user_name, user_email, is_authenticated FROM auth WHERE id = 1`
	err := as.dbConn.GetContext(ctx, &r, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting auth state: %w", err)
	}
	return &AuthState{
		Token:           r.Token,
		User:            User{ID: r.UserID, Name: r.UserName, Email: r.UserEmail},
		IsAuthenticated: r.IsAuthenticated,
	}, nil
}

func (as *AuthStore) Set(ctx context.Context, state AuthState) error {
	row := authRow{
		Token:           state.Token,
		UserID:          state.User.ID,
		UserName:        state.User.Name,
		UserEmail:       state.User.Email,
		IsAuthenticated: state.IsAuthenticated,
	}
	query := `INSERT INTO auth (id, token, user_id, user_name, user_email, is_authenticated, updated_at)
		VALUES (1, :token, :user_id, :user_name, :user_email, :is_authenticated, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			user_name = excluded.user_name,
			user_email = excluded.user_email,
			is_authenticated = excluded.is_authenticated,
			updated_at = excluded.updated_at`
	if _, err := as.dbConn.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("storing auth state: %w", err)
	}
	return nil
}

func (as *AuthStore) Clear(ctx context.Context) error {
	if _, err := as.dbConn.ExecContext(ctx, `DELETE FROM auth`); err != nil {
		return fmt.Errorf("clearing auth state: %w", err)
	}
	return nil
}

// Token returns the stored bearer token. It fails with ErrNotAuthenticated
// if there is no session and with ErrTokenExpired if the token is a jwt
// whose exp claim has passed.
func (as *AuthStore) Token(ctx context.Context) (string, error) {
	state, err := as.Get(ctx)
	if err != nil {
		return "", err
	}
	if state == nil || !state.IsAuthenticated || state.Token == "" {
		return "", ErrNotAuthenticated
	}
	if exp, ok := expiry(state.Token); ok && !as.now().Before(exp) {
		return "", ErrTokenExpired
	}
	return state.Token, nil
}

// IsAuthenticated reports whether a usable token is stored.
func (as *AuthStore) IsAuthenticated(ctx context.Context) (bool, error) {
	_, err := as.Token(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrTokenExpired):
		return false, nil
	}
	return false, err
}

// expiry returns the exp claim of a jwt. The signature is not verified, the
// backend does that. Opaque tokens have no known expiry.
func expiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
