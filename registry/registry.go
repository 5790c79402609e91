// Package registry tracks which usernames have joined the chat server and the
// session each one speaks through.
package registry

import (
	"slices"

	"github.com/samber/lo"

	"github.com/cyberinferno/lanchat/message"
	"github.com/cyberinferno/lanchat/safemap"
)

// Member is the registry's view of a joined session. The registry tracks
// membership only; it never closes a member's stream itself.
type Member interface {
	// ID returns the session's unique identifier.
	ID() string

	// Send writes one message to the member.
	Send(m message.Message) error

	// Close tears the member's connection down.
	Close() error
}

// Registry is the authoritative username to session mapping. A username
// appears at most once. All operations are safe for concurrent use and
// mutually exclusive with each other.
type Registry struct {
	members *safemap.SafeMap[string, Member]
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{members: safemap.NewSafeMap[string, Member]()}
}

// TryAdd registers member under username unless the name is taken. Two
// concurrent calls with the same username never both succeed.
//
// Parameters:
//   - username: The name to claim
//   - member: The session joining under that name
//
// Returns:
//   - true if the member was added, false if username was already present
func (r *Registry) TryAdd(username string, member Member) bool {
	_, loaded := r.members.LoadOrStore(username, member)
	return !loaded
}

// Remove drops username from the registry. Removing an absent name is a no-op.
//
// Returns:
//   - The member that was registered under username, and whether one was
func (r *Registry) Remove(username string) (Member, bool) {
	return r.members.Delete(username)
}

// RemoveBySession drops whatever username the given session is registered
// under. It is used when a connection ends abruptly and only the session is
// known.
//
// Returns:
//   - The username that was removed, and whether the session was registered
func (r *Registry) RemoveBySession(member Member) (string, bool) {
	removed := r.members.DeleteFunc(func(_ string, m Member) bool {
		return m.ID() == member.ID()
	})

	for username := range removed {
		return username, true
	}

	return "", false
}

// Contains reports whether username is registered.
func (r *Registry) Contains(username string) bool {
	return r.members.Has(username)
}

// Lookup returns the member registered under username.
func (r *Registry) Lookup(username string) (Member, bool) {
	return r.members.Load(username)
}

// Len returns the number of joined users.
func (r *Registry) Len() int {
	return r.members.Len()
}

// Snapshot returns a point-in-time copy of the registry. Iterating it never
// observes concurrent joins or leaves.
func (r *Registry) Snapshot() map[string]Member {
	return r.members.Snapshot()
}

// Usernames returns the joined usernames, sorted.
func (r *Registry) Usernames() []string {
	names := lo.Keys(r.members.Snapshot())
	slices.Sort(names)
	return names
}

// Clear removes every entry and returns what was registered.
func (r *Registry) Clear() map[string]Member {
	return r.members.Clear()
}
