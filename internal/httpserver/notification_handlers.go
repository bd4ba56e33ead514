package httpserver

import (
	"net/http"
	"strconv"

	"leaddesk/internal/domain"
	"leaddesk/internal/service"
)

type notificationsResponse struct {
	Notifications []*domain.Notification `json:"notifications"`
}

type markReadRequest struct {
	IsRead *bool `json:"isRead" validate:"required"`
}

// @Summary      List notifications
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Param        unread  query  bool  false  "Only unread"
// @Param        limit   query  int   false  "Max items (default 50, max 200)"
// @Success      200  {object}  notificationsResponse
// @Router       /notifications [get]
func handleListNotifications(notes *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		unread, _ := strconv.ParseBool(q.Get("unread"))
		limit, _ := strconv.Atoi(q.Get("limit"))

		list, err := notes.List(r.Context(), CurrentUser(r).ID, unread, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []*domain.Notification{}
		}
		writeJSON(w, http.StatusOK, notificationsResponse{Notifications: list})
	}
}

// @Summary      Set notification read state
// @Tags         notifications
// @Security     BearerAuth
// @Accept       json
// @Param        id     path  int              true  "Notification ID"
// @Param        input  body  markReadRequest  true  "Read state"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /notifications/{id}/read [patch]
func handleMarkNotificationRead(notes *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}
		var req markReadRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := notes.MarkRead(r.Context(), CurrentUser(r).ID, id, *req.IsRead); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Mark all notifications read
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]int64
// @Router       /notifications/read-all [post]
func handleMarkAllNotificationsRead(notes *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := notes.MarkAllRead(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
	}
}
