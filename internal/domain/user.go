package domain

import (
	"strings"

	"github.com/uptrace/bun"
)

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleClient, RoleProvider, RoleAdmin:
		return r, nil
	}
	return "", Errorf(KindInvalidArgument, "invalid role %q", s)
}

// User is the slice of an account this service reads: who it is and what role it holds.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID   string `bun:"id,pk"`
	Role Role   `bun:"role,notnull"`
}
