package providers

import (
	"context"
	"errors"
)

// AccessToken returns the current session token, logging in when no usable
// session exists.
func AccessToken(ctx context.Context, sp SessionProvider) (string, error) {
	session, err := sp.Session(ctx)
	if errors.Is(err, ErrNotAuthenticated) {
		session, err = sp.Login(ctx)
	}
	if err != nil {
		return "", err
	}
	return session.AccessToken, nil
}
