/*
Package user contains the core data structures describing a connected participant.

It defines the UserRecord struct, the server-authoritative presence state for one
live connection, used both inside the hub and in WebSocket payloads.
*/
package user

// Status describes the presence state of a participant.
type Status string

const (
	// StatusOnline marks a participant with a live, logged-in connection.
	StatusOnline Status = "online"

	// StatusOffline marks a participant whose connection is gone.
	StatusOffline Status = "offline"

	// StatusAway marks a participant who is connected but inactive.
	StatusAway Status = "away"
)

// Position is a participant's avatar coordinate inside the shared space.
// Bounds clamping is a presentation concern; the server stores whatever it is sent.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// UserRecord represents the presence state of one connected participant.
// Exactly one record exists per live connection; the ID field always equals the
// server-assigned connection id and is never taken from client input.
type UserRecord struct {

	// ID is the server-assigned connection id. Valid only for the lifetime
	// of the underlying connection.
	ID string `json:"id"`

	// Name is the display name announced at login.
	Name string `json:"name"`

	// Status is the participant's presence state.
	Status Status `json:"status"`

	// Position is the last reported avatar position.
	Position Position `json:"position"`

	// Color is the avatar accent color chosen by the client (e.g. an hsl() string).
	Color string `json:"color"`

	// Avatar is the URL of the participant's avatar image.
	Avatar string `json:"avatar"`
}
