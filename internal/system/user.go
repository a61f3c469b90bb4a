// Package system provides the identity and time helpers the protocol layer and
// process engine consume.
package system

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
)

//go:generate mockgen -destination=mocks/mock_resolver.go -package=mocks github.com/mattjoyce/launcher-plugin/internal/system UserResolver

// AllUsersIdentifier is the identifier an admin launcher sends to act on every user.
const AllUsersIdentifier = "*"

// ErrUserNotFound is returned when an identifier does not name a system user.
var ErrUserNotFound = errors.New("user not found")

// User is a resolved system identity. The zero value is the empty user.
type User struct {
	Username string
	UID      int
	GID      int
	HomeDir  string

	allUsers bool
}

// AllUsers returns the wildcard sentinel.
func AllUsers() User {
	return User{allUsers: true}
}

// IsAllUsers reports whether u is the wildcard sentinel.
func (u User) IsAllUsers() bool { return u.allUsers }

// IsEmpty reports whether u names nobody at all.
func (u User) IsEmpty() bool { return !u.allUsers && u.Username == "" }

func (u User) String() string {
	if u.allUsers {
		return AllUsersIdentifier
	}
	return u.Username
}

// UserResolver maps a user identifier (name, numeric uid, or "*") to a User.
type UserResolver interface {
	Resolve(identifier string) (User, error)
}

// OSUserResolver resolves identifiers against the local user database.
type OSUserResolver struct{}

// Resolve implements UserResolver.
func (OSUserResolver) Resolve(identifier string) (User, error) {
	if identifier == AllUsersIdentifier {
		return AllUsers(), nil
	}
	if identifier == "" {
		return User{}, fmt.Errorf("resolve user: empty identifier: %w", ErrUserNotFound)
	}

	var (
		u   *user.User
		err error
	)
	if _, convErr := strconv.Atoi(identifier); convErr == nil {
		u, err = user.LookupId(identifier)
	} else {
		u, err = user.Lookup(identifier)
	}
	if err != nil {
		var unknownUser user.UnknownUserError
		var unknownID user.UnknownUserIdError
		if errors.As(err, &unknownUser) || errors.As(err, &unknownID) {
			return User{}, fmt.Errorf("resolve user %q: %w", identifier, ErrUserNotFound)
		}
		return User{}, fmt.Errorf("resolve user %q: %w", identifier, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return User{}, fmt.Errorf("resolve user %q: non-numeric uid %q", identifier, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return User{}, fmt.Errorf("resolve user %q: non-numeric gid %q", identifier, u.Gid)
	}

	return User{
		Username: u.Username,
		UID:      uid,
		GID:      gid,
		HomeDir:  u.HomeDir,
	}, nil
}
