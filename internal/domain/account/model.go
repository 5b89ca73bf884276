package account

import (
	"slices"
	"time"
)

// AppRole is identified by its name.
type AppRole struct {
	Name string `json:"name"`
}

// AppUser is an account that can sign in. Roles holds AppRole names and is
// only ever edited through the user.
type AppUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Email        string    `json:"email,omitempty"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *AppUser) HasRole(name string) bool {
	return slices.Contains(u.Roles, name)
}

// grant adds name to the role set and reports whether it changed.
func (u *AppUser) grant(name string) bool {
	if u.HasRole(name) {
		return false
	}
	u.Roles = append(u.Roles, name)
	slices.Sort(u.Roles)
	return true
}

// revoke removes name from the role set and reports whether it changed.
func (u *AppUser) revoke(name string) bool {
	i := slices.Index(u.Roles, name)
	if i < 0 {
		return false
	}
	u.Roles = slices.Delete(u.Roles, i, i+1)
	return true
}
