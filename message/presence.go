package message

import "strings"

const (
	joinedSuffix = " just joined the server!"
	leftSuffix   = " just left the server."
)

// Reasons carried in Error contents and disconnect notifications.
const (
	ReasonNameInUse      = "name in use"
	ReasonInvalidName    = "invalid name"
	ReasonBufferMismatch = "buffer mismatch"
	ReasonServerStopped  = "server stopped"
	ReasonDisconnected   = "disconnected"
	ReasonConnectionLost = "connection lost"
)

// NewJoined builds the Info announcement for a user that joined.
func NewJoined(serverName, username string) Message {
	return New(TypeInfo, serverName, username+joinedSuffix)
}

// NewLeft builds the Info announcement for a user that left.
func NewLeft(serverName, username string) Message {
	return New(TypeInfo, serverName, username+leftSuffix)
}

// ParsePresence recognizes the join and leave announcements built by
// NewJoined and NewLeft.
//
// Parameters:
//   - m: The message to inspect
//
// Returns:
//   - The username the announcement is about
//   - true for a join, false for a leave
//   - false as the last value if m is not a presence announcement
func ParsePresence(m Message) (username string, joined bool, ok bool) {
	if m.Type != TypeInfo {
		return "", false, false
	}

	if name, found := strings.CutSuffix(m.Content, joinedSuffix); found && name != "" {
		return name, true, true
	}

	if name, found := strings.CutSuffix(m.Content, leftSuffix); found && name != "" {
		return name, false, true
	}

	return "", false, false
}
