/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting, validating
room and user parameters, upgrading the HTTP connection to WebSocket, and handing it to the relay.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"metaverse/internal/app/relay"
	"metaverse/internal/app/user"
	"metaverse/internal/pkg/errs"
	"metaverse/internal/pkg/limiter"
	"metaverse/internal/pkg/logx"
	"metaverse/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests
// on /ws/{type}/{id}?uid=<uuid>&nn=<nickname>.
func HandleWebSocket(manager *relay.Manager, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.Allow(r) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", limiter.ClientIP(r))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		roomType, ok := relay.ParseRoomType(chi.URLParam(r, "type"))
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomTypeInvalid))
			return
		}
		roomID := chi.URLParam(r, "id")

		query := r.URL.Query()
		currentUser, err := user.New(query.Get("uid"), query.Get("nn"))
		if err != nil {
			logx.Warn("WebSocket request rejected: Invalid uid or nn query parameters", "room", roomID, "error", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		room, customErr := manager.Room(roomType, roomID)
		if customErr != nil {
			logx.Info("WebSocket connection rejected", "room", relay.Key(roomType, roomID), "code", customErr.Code)
			resp.RespondError(w, r, customErr)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		logx.Info("WebSocket connection established", "user_id", currentUser.ID, "room", room.Key())

		if err := relay.NewPeer(conn, room, currentUser).Serve(); err != nil {
			logx.Warn("Peer could not join", "room", room.Key(), "error", err.Error())
		}
	}
}
