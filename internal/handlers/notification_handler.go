package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/engagemarket/backend/internal/notify"
	"github.com/engagemarket/backend/internal/services"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

type NotificationHandler struct {
	feed     notify.Feed
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

func NewNotificationHandler(feed notify.Feed, log *logrus.Entry) *NotificationHandler {
	return &NotificationHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// List returns the stored notifications of the caller, newest first
// @Summary List notifications
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum results" default(50)
// @Success 200 {array} notify.Event
// @Router /notifications [get]
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(r, "limit", 50)
	if !ok {
		services.SendErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest, nil)
		return
	}

	events, err := h.feed.List(r.Context(), userID, int64(limit))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// Stream upgrades to a websocket and pushes live notifications. The token
// may be passed as the access_token query parameter.
// @Summary Live notifications
// @Tags Notifications
// @Security BearerAuth
// @Param access_token query string false "Bearer token for browsers"
// @Success 101
// @Failure 503 {object} services.ErrorResponse
// @Router /ws/notifications [get]
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, stop, err := h.feed.Subscribe(ctx, userID)
	if err != nil {
		cancel()
		if errors.Is(err, notify.ErrNoLiveFeed) {
			services.SendErrorResponse(w, err.Error(), http.StatusServiceUnavailable, nil)
			return
		}
		h.log.WithError(err).WithField("user_id", userID).Error("[WS] subscribe failed")
		services.SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}
	defer stop()
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("[WS] upgrade failed")
		return
	}
	defer conn.Close()

	h.log.WithField("user_id", userID).Debug("[WS] client connected")

	// The read loop only watches for pongs and the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"), time.Now().Add(wsWriteWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.log.WithError(err).WithField("user_id", userID).Debug("[WS] write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-closed:
			h.log.WithField("user_id", userID).Debug("[WS] client disconnected")
			return
		}
	}
}
