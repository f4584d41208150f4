package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/spf13/viper"

	"github.com/consistency-app/consistency-server/internal/models"
	"github.com/consistency-app/consistency-server/internal/services"
)

const sessionName = "consistency-session"

var Store *sessions.CookieStore

var (
	userService *services.UserService
	syncService *services.SyncService
)

// Init wires the cookie store and the services the auth handlers depend on.
func Init(users *services.UserService, sync *services.SyncService) {
	Store = sessions.NewCookieStore([]byte(viper.GetString("auth.session_secret")))
	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   viper.GetInt("auth.session_max_age"),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	userService = users
	syncService = sync
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// RegisterHandler creates an account and signs the new user in.
func RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := userService.CreateUser(&req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrAlreadyExists):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to create account")
		}
		return
	}

	if err := signIn(w, r, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	snap, err := syncService.Hydrate(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session state")
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// LoginHandler validates credentials, starts the session, and returns the
// fully hydrated state snapshot. A failed login applies no partial state.
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := userService.AuthenticateUser(&req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := signIn(w, r, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	snap, err := syncService.Hydrate(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session state")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// LogoutHandler ends the session and clears all cached session state.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if userID := GetUserIDFromSession(r); userID != "" {
		syncService.SignOut(userID)
	}

	session, _ := Store.Get(r, sessionName)
	session.Values["user_id"] = ""
	session.Options.MaxAge = -1
	session.Save(r, w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func signIn(w http.ResponseWriter, r *http.Request, userID string) error {
	session, _ := Store.Get(r, sessionName)
	session.Values["user_id"] = userID
	return session.Save(r, w)
}

// GetUserIDFromSession returns the signed-in user's ID, or "" when anonymous.
func GetUserIDFromSession(r *http.Request) string {
	session, err := Store.Get(r, sessionName)
	if err != nil {
		return ""
	}
	userID, _ := session.Values["user_id"].(string)
	return userID
}

// AuthMiddleware rejects unauthenticated requests.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserIDFromSession(r) == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
