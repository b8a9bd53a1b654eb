package errs

import "net/http"

// errorMap holds the template for every known code.
// A zero Status is reported as 200 with the code in the body.
var errorMap = map[int]CustomError{
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	ErrRoomTypeInvalid:       {Code: ErrRoomTypeInvalid, Message: "Invalid room type."},
	ErrRoomCodeExists:        {Code: ErrRoomCodeExists, Message: "Room already exists."},
	ErrRoomNotFound:          {Code: ErrRoomNotFound, Message: "Room not found.", Status: http.StatusNotFound},
	ErrRoomIsFull:            {Code: ErrRoomIsFull, Message: "This room is full."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long (max %d bytes)."},
	ErrEventPayloadInvalid:   {Code: ErrEventPayloadInvalid, Message: "Malformed event."},
	ErrBoardContentTooLarge:  {Code: ErrBoardContentTooLarge, Message: "Whiteboard is too large."},
	ErrBoardNotFound:         {Code: ErrBoardNotFound, Message: "No whiteboard saved for this room.", Status: http.StatusNotFound},

	ErrSessionKicked: {Code: ErrSessionKicked, Message: "You joined this room from another window."},

	ErrUnknown:       {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrStorageFailed: {Code: ErrStorageFailed, Message: "Whiteboard storage is unavailable.", Status: http.StatusServiceUnavailable},
}
