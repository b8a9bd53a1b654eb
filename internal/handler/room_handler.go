/*
Package handler provides HTTP handler functions for listing and creating rooms and
reading their whiteboards.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"metaverse/internal/app/relay"
	"metaverse/internal/pkg/req"
	"metaverse/internal/pkg/resp"
)

type CreateRoomInput struct {
	// MaxClients caps the meeting room (optional; defaults to relay.DefaultMeetingClients).
	MaxClients int `json:"maxClients,omitempty"`
}

// HandleListRooms returns the active rooms with their member counts.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"rooms": deps.Manager.Rooms(),
		})
	}
}

// HandleCreateRoom creates a meeting room and returns its id.
func HandleCreateRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CreateRoomInput

		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		room, createErr := deps.Manager.CreateMeeting(input.MaxClients)
		if createErr != nil {
			resp.RespondError(w, r, createErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"roomType":   room.Type,
			"roomId":     room.ID,
			"maxClients": room.MaxClients,
		})
	}
}

// HandleGetBoard returns the latest compressed whiteboard content of a room,
// base64 encoded.
func HandleGetBoard(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomType := relay.RoomType(chi.URLParam(r, "type"))
		roomID := chi.URLParam(r, "id")

		content, customErr := deps.Manager.Board(r.Context(), roomType, roomID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"roomType": roomType,
			"roomId":   roomID,
			"content":  content,
		})
	}
}
