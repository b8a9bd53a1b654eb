/*
Package errs provides the application error type and its numeric codes.

Codes travel to clients twice: in the JSON body of HTTP responses and in the
payload of "error" websocket events sent by the relay.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON is malformed.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates extra content after the JSON document.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Room and Realtime Event Errors
const (
	// ErrRoomTypeInvalid indicates an unknown room type (lobby, meeting, personal, quest).
	ErrRoomTypeInvalid = 2101

	// ErrRoomCodeExists indicates that the generated meeting room id is already taken.
	ErrRoomCodeExists = 2102

	// ErrRoomNotFound indicates that the room does not exist.
	ErrRoomNotFound = 2103

	// ErrRoomIsFull indicates that the room has reached its capacity.
	ErrRoomIsFull = 2104

	// ErrMessageContentTooLong indicates a chat message over the length limit.
	ErrMessageContentTooLong = 2201

	// ErrEventPayloadInvalid indicates a websocket event that failed to decode.
	ErrEventPayloadInvalid = 2202

	// ErrBoardContentTooLarge indicates a whiteboard edit over the size limit.
	ErrBoardContentTooLarge = 2301

	// ErrBoardNotFound indicates that no whiteboard snapshot exists for the room.
	ErrBoardNotFound = 2302
)

// 3xxx: Session Errors
const (
	// ErrSessionKicked indicates the connection was replaced by a newer one with the same id.
	ErrSessionKicked = 3004
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000

	// ErrStorageFailed indicates the board snapshot store failed.
	ErrStorageFailed = 5001
)
