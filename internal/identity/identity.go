// Package identity draws anonymous display identities for chat sessions.
// An identity is a (name, icon) pair from a fixed catalog; it is assigned
// once when a session starts and held for the session's lifetime. Two
// sessions may draw the same identity, that is accepted.
package identity

import "math/rand/v2"

type Identity struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// The catalogs are parallel: names[i] pairs with icons[i].
var names = []string{
	"Anonymous Fox", "Mysterious Owl", "Silent Wolf", "Hidden Bear",
	"Secret Panda", "Quiet Tiger", "Stealth Cat", "Shadow Hawk",
	"Ghost Rabbit", "Whisper Deer", "Phantom Koala", "Ninja Penguin",
}

var icons = []string{
	"🦊", "🦉", "🐺", "🐻", "🐼", "🐯", "🐱", "🦅", "🐰", "🦌", "🐨", "🐧",
}

// Assign picks an identity uniformly at random from the catalog. Callers
// must assign once per session and reuse the result; re-drawing would
// break self-message recognition, which compares (name, icon) values.
func Assign() Identity {
	i := rand.IntN(len(names))
	return Identity{Name: names[i], Icon: icons[i]}
}

// CatalogSize returns the number of identities in the catalog.
func CatalogSize() int {
	return len(names)
}
