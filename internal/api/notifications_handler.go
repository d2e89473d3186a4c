package api

import (
	"net/http"
	"strconv"

	"jobhub/internal/errors"
	"jobhub/internal/lifecycle"
	"jobhub/internal/notify"
	"jobhub/internal/storage"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// UnreadResponse is the caller's unread notification count.
type UnreadResponse struct {
	Unread int `json:"unread"`
}

// ListNotificationsHandler returns the caller's notifications, newest first
// @Summary List notifications
// @Tags notifications
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param limit query int false "Max items (default 20, max 100)"
// @Param unread query bool false "Only unread"
// @Success 200 {array} storage.Notification
// @Router /notifications [get]
func (a *API) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	unreadOnly, _ := strconv.ParseBool(q.Get("unread"))

	items, err := a.store.ListNotifications(r.Context(), UserID(r.Context()), limit, unreadOnly)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []storage.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}

// UnreadCountHandler returns how many notifications the caller has not read
// @Summary Unread notification count
// @Tags notifications
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Success 200 {object} UnreadResponse
// @Router /notifications/unread-count [get]
func (a *API) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.store.CountUnreadNotifications(r.Context(), UserID(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UnreadResponse{Unread: n})
}

// MarkNotificationReadHandler acknowledges one of the caller's notifications
// @Summary Mark notification read
// @Tags notifications
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Param id path int true "Notification id"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} MessageResponse
// @Router /notifications/{id}/read [post]
func (a *API) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.store.MarkNotificationRead(r.Context(), UserID(r.Context()), id, a.now()); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, lifecycle.SeveritySuccess, "ok")
}

// MarkAllNotificationsReadHandler acknowledges every notification of the caller
// @Summary Mark all notifications read
// @Tags notifications
// @Produce json
// @Param X-User-ID header string true "Caller identity"
// @Success 200 {object} CountResponse
// @Router /notifications/read-all [post]
func (a *API) MarkAllNotificationsReadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.store.MarkAllNotificationsRead(r.Context(), UserID(r.Context()), a.now())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// WebSocketHandler subscribes the caller to their presence group.
func (a *API) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		a.writeError(w, r, errors.Wrap(errors.ErrServiceUnavailable, "presence disabled"))
		return
	}
	a.hub.ServeWS(w, r, UserID(r.Context()))
}

// HealthResponse reports liveness and notification delivery counters.
type HealthResponse struct {
	Status string        `json:"status"`
	Notify *notify.Stats `json:"notify,omitempty"`
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	res := HealthResponse{Status: "healthy"}
	if a.dispatcher != nil {
		s := a.dispatcher.Stats()
		res.Notify = &s
	}
	writeJSON(w, http.StatusOK, res)
}
