package identity

import "strings"

// Identity is a chat sender in "Name" or "Name@Realm" form.
// Realm is empty when none was given.
type Identity struct {
	Name  string
	Realm string
}

// Parse splits raw on its first '@' and trims both halves.
// Any input is accepted; an empty string yields the zero Identity.
func Parse(raw string) Identity {
	name, realm, found := strings.Cut(strings.TrimSpace(raw), "@")
	if !found {
		return Identity{Name: name}
	}

	return Identity{
		Name:  strings.TrimSpace(name),
		Realm: strings.TrimSpace(realm),
	}
}

// IsZero reports whether the identity has no name. A zero target
// disables matching entirely.
func (id Identity) IsZero() bool {
	return id.Name == ""
}

// String renders the identity back into "Name" or "Name@Realm" form.
func (id Identity) String() string {
	if id.Realm == "" {
		return id.Name
	}
	return id.Name + "@" + id.Realm
}

// Matches reports whether sender is the target. Names compare
// case-insensitively; realms only when the target names one, so a
// name-only target matches that name on every realm.
func Matches(sender, target Identity) bool {
	if !strings.EqualFold(sender.Name, target.Name) {
		return false
	}
	if target.Realm == "" {
		return true
	}
	return strings.EqualFold(sender.Realm, target.Realm)
}
