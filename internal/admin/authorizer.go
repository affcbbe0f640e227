// Package admin resolves whether a fingerprint carries elevated privilege.
package admin

import (
	"context"
	"errors"
	"fmt"

	"sitekeep/internal/models"
)

// AccountGetter is the read port the authorizer needs.
type AccountGetter interface {
	GetAccount(ctx context.Context, fingerprint string) (*models.Account, error)
}

// Authorizer checks the account's is_admin flag first and falls back to the
// operator allow-list.
type Authorizer struct {
	store     AccountGetter
	allowList map[string]struct{}
}

// NewAuthorizer creates an Authorizer with the configured allow-list.
func NewAuthorizer(store AccountGetter, allowList []string) *Authorizer {
	set := make(map[string]struct{}, len(allowList))
	for _, fp := range allowList {
		if fp != "" {
			set[fp] = struct{}{}
		}
	}
	return &Authorizer{store: store, allowList: set}
}

// IsAdmin reports whether fingerprint is an admin. An unknown account falls
// through to the allow-list. Any other lookup failure is fail-closed: it
// returns false together with the error and the allow-list is not consulted.
func (a *Authorizer) IsAdmin(ctx context.Context, fingerprint string) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}

	acc, err := a.store.GetAccount(ctx, fingerprint)
	switch {
	case err == nil:
		if acc.IsAdmin {
			return true, nil
		}
	case errors.Is(err, models.ErrNotFound):
	default:
		return false, fmt.Errorf("resolve admin %s: %w", fingerprint, err)
	}

	_, ok := a.allowList[fingerprint]
	return ok, nil
}
