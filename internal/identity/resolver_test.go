package identity

import (
	"context"
	"errors"
	"testing"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type fakeDirectory struct {
	getUserFn func(ctx context.Context, id string) (domain.User, error)
}

func (f *fakeDirectory) GetUser(ctx context.Context, id string) (domain.User, error) {
	if f.getUserFn == nil {
		panic("GetUser not configured")
	}
	return f.getUserFn(ctx, id)
}

func TestDirectoryResolver(t *testing.T) {
	boom := errors.New("boom")
	dir := &fakeDirectory{getUserFn: func(ctx context.Context, id string) (domain.User, error) {
		switch id {
		case "p1":
			return domain.User{ID: "p1", Role: domain.RoleProvider}, nil
		case "down":
			return domain.User{}, boom
		default:
			return domain.User{}, store.ErrNotFound
		}
	}}
	r := NewDirectoryResolver(dir)

	u, err := r.ResolveUser(context.Background(), "p1")
	if err != nil || u.Role != domain.RoleProvider {
		t.Fatalf("ResolveUser(p1) = %+v, %v", u, err)
	}
	if _, err := r.ResolveUser(context.Background(), "ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("ResolveUser(ghost) err = %v, want ErrUnknownUser", err)
	}
	if _, err := r.ResolveUser(context.Background(), ""); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("ResolveUser(\"\") err = %v, want ErrUnknownUser", err)
	}
	if _, err := r.ResolveUser(context.Background(), "down"); !errors.Is(err, boom) {
		t.Fatalf("ResolveUser(down) err = %v, want wrapped boom", err)
	}
}
