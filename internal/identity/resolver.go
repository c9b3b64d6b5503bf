// Package identity answers who a user id belongs to and what role it holds.
package identity

import (
	"context"
	"errors"
	"fmt"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

var ErrUnknownUser = errors.New("unknown user")

type Resolver interface {
	ResolveUser(ctx context.Context, id string) (domain.User, error)
}

// DirectoryResolver reads users straight from the account directory.
type DirectoryResolver struct {
	dir store.UserDirectory
}

func NewDirectoryResolver(dir store.UserDirectory) *DirectoryResolver {
	return &DirectoryResolver{dir: dir}
}

func (r *DirectoryResolver) ResolveUser(ctx context.Context, id string) (domain.User, error) {
	if id == "" {
		return domain.User{}, ErrUnknownUser
	}
	u, err := r.dir.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUnknownUser
		}
		return domain.User{}, fmt.Errorf("resolve user %q: %w", id, err)
	}
	return u, nil
}
