/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific request or protocol failures both internally
within the server and in responses sent to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1002

	// ErrOriginNotAllowed indicates that the request Origin header is not in the allow list.
	ErrOriginNotAllowed = 1003
)

// 2xxx: Realtime Protocol Errors
const (
	// ErrNotLoggedIn indicates an event arrived on a connection that has not announced identity.
	ErrNotLoggedIn = 2001

	// ErrMalformedEvent indicates an event frame that could not be decoded or failed validation.
	ErrMalformedEvent = 2002

	// ErrMessageContentTooLong indicates that message content exceeded the size limit.
	ErrMessageContentTooLong = 2003
)

// 3xxx: Signaling Relay Errors
const (
	// ErrPeerNotFound indicates that the target connection of a relayed payload does not exist.
	ErrPeerNotFound = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown indicates an unclassified internal error.
	ErrUnknown = 5000
)
