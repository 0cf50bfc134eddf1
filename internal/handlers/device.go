package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	DeviceCookieName = "device_session_id"
	deviceCookieAge  = 365 * 24 * time.Hour
)

type deviceKey struct{}

// DeviceID returns the device session attached by DeviceSession
func DeviceID(ctx context.Context) string {
	id, _ := ctx.Value(deviceKey{}).(string)
	return id
}

// DeviceSession attaches the caller's device session to the request context,
// issuing a new session cookie when the cookie is missing or unknown.
func (h *Handler) DeviceSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if cookie, err := r.Cookie(DeviceCookieName); err == nil {
			if _, err := uuid.Parse(cookie.Value); err == nil {
				exists, err := h.history.DeviceExists(ctx, cookie.Value)
				if err != nil {
					h.writeError(w, "Failed to look up device session", http.StatusInternalServerError)
					return
				}
				if exists {
					next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, deviceKey{}, cookie.Value)))
					return
				}
			}
		}

		session, err := h.history.CreateDevice(ctx)
		if err != nil {
			h.writeError(w, "Failed to create device session", http.StatusInternalServerError)
			return
		}
		slog.Info("Created device session", "device_id", session.ID)

		http.SetCookie(w, &http.Cookie{
			Name:     DeviceCookieName,
			Value:    session.ID,
			Path:     "/",
			MaxAge:   int(deviceCookieAge.Seconds()),
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, deviceKey{}, session.ID)))
	})
}
