package handler

import (
	"net/http"

	"postraft-facade/internal/notify"
)

// NotificationSource hands out pending toasts.
type NotificationSource interface {
	Drain() []notify.Notification
}

// NotificationsResponse is the body of GET /v1/notifications.
type NotificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// NotificationHandler serves pending toasts once each.
type NotificationHandler struct {
	source NotificationSource
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(source NotificationSource) *NotificationHandler {
	return &NotificationHandler{source: source}
}

// ServeHTTP drains the pending notifications.
func (h *NotificationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pending := h.source.Drain()
	if pending == nil {
		pending = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, NotificationsResponse{Notifications: pending})
}
