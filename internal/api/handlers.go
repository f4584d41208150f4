// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/consistency-app/consistency-server/internal/auth"
	"github.com/consistency-app/consistency-server/internal/invite"
	"github.com/consistency-app/consistency-server/internal/logger"
	"github.com/consistency-app/consistency-server/internal/models"
	"github.com/consistency-app/consistency-server/internal/services"
	"github.com/consistency-app/consistency-server/internal/state"
)

type Handler struct {
	users        *services.UserService
	habits       *services.HabitService
	social       *services.SocialService
	messages     *services.MessageService
	leaderboard  *services.LeaderboardService
	achievements *services.AchievementService
	sync         *services.SyncService
	store        *state.Store
	log          *logger.Log
}

func NewHandler(users *services.UserService, habits *services.HabitService,
	social *services.SocialService, messages *services.MessageService,
	leaderboard *services.LeaderboardService, achievements *services.AchievementService,
	sync *services.SyncService, store *state.Store) *Handler {
	return &Handler{
		users: users, habits: habits, social: social, messages: messages,
		leaderboard: leaderboard, achievements: achievements, sync: sync,
		store: store, log: logger.New(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError maps service sentinels onto HTTP status codes.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// userID pulls the authenticated user from the session cookie; the auth
// middleware guarantees it is set on these routes.
func (h *Handler) userID(r *http.Request) string {
	return auth.GetUserIDFromSession(r)
}

// GET /api/v1/state - Full session snapshot, re-hydrating if needed
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	userID := h.userID(r)

	if !h.store.HasSession(userID) {
		snap, err := h.sync.Hydrate(userID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}

	var out state.Snapshot
	if err := h.store.View(userID, func(snap state.Snapshot) { out = snap }); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/v1/state/refresh - Force a full re-hydration from store truth
func (h *Handler) RefreshState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sync.Hydrate(h.userID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/v1/habits - List the user's active habits
func (h *Handler) ListHabits(w http.ResponseWriter, r *http.Request) {
	habits, err := h.habits.ListHabits(h.userID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"habits": habits})
}

// POST /api/v1/habits - Create a habit
func (h *Handler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	var req models.CreateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	habit, newly, err := h.habits.CreateHabit(h.userID(r), &req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"habit":            habit,
		"new_achievements": newly,
	})
}

// DELETE /api/v1/habits/{id} - Delete a habit and its completions
func (h *Handler) DeleteHabit(w http.ResponseWriter, r *http.Request) {
	if err := h.habits.DeleteHabit(h.userID(r), mux.Vars(r)["id"]); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// POST /api/v1/habits/{id}/complete - Mark a habit done with photo proof
func (h *Handler) CompleteHabit(w http.ResponseWriter, r *http.Request) {
	var req models.CompleteHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.habits.CompleteHabit(h.userID(r), mux.Vars(r)["id"], &req)
	if err != nil {
		// Completing an already-completed habit is a no-op, not a failure.
		if errors.Is(err, services.ErrAlreadyCompleted) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"completed": false, "reason": "already completed today"})
			return
		}
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"completed": true, "result": result})
}

// GET /api/v1/habits/{id}/completions - A habit's completion history
func (h *Handler) ListCompletions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	completions, err := h.habits.ListCompletions(h.userID(r), mux.Vars(r)["id"], limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"completions": completions})
}

// GET /api/v1/heatmap - Daily completion counts for the heatmap
func (h *Handler) Heatmap(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	heatmap, err := h.habits.Heatmap(h.userID(r), days)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"heatmap": heatmap})
}

// GET /api/v1/feed - Posts by the user and everyone they follow
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	posts, err := h.social.Feed(h.userID(r), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"posts": posts})
}

// POST /api/v1/posts/{id}/like - Toggle the viewer's like on a post
func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	result, err := h.social.ToggleLike(h.userID(r), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /api/v1/posts/{id}/comments - Lazy comment list for a post's panel
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.social.ListComments(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"comments": comments})
}

// POST /api/v1/posts/{id}/comments - Append a comment
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	comment, err := h.social.AddComment(h.userID(r), mux.Vars(r)["id"], req.Content)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// GET /api/v1/friends - Who the user follows
func (h *Handler) ListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.social.Friends(h.userID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"friends": friends})
}

// POST /api/v1/friends/{id} - Follow a user
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	if err := h.social.Follow(h.userID(r), mux.Vars(r)["id"]); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"following": true})
}

// DELETE /api/v1/friends/{id} - Unfollow a user
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	if err := h.social.Unfollow(h.userID(r), mux.Vars(r)["id"]); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"following": false})
}

// GET /api/v1/users/search?q= - Fuzzy user search for the friends page
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	users, err := h.users.SearchUsers(r.URL.Query().Get("q"), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// GET /api/v1/leaderboard - Global top-N by points
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.leaderboard.Top(n)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": entries})
}

// GET /api/v1/leaderboard/friends - The user and their friends, ranked
func (h *Handler) FriendsLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.leaderboard.FriendsTop(h.userID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": entries})
}

// GET /api/v1/leaderboard/rank - The user's global rank
func (h *Handler) Rank(w http.ResponseWriter, r *http.Request) {
	rank, err := h.leaderboard.Rank(h.userID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rank": rank})
}

// GET /api/v1/achievements - Catalog merged with the user's unlocks
func (h *Handler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	views, err := h.achievements.ListForUser(h.userID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"achievements": views})
}

// GET /api/v1/conversations - Per-partner summaries with unread counts
func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.messages.Conversations(h.userID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": conversations})
}

// GET /api/v1/messages/{partnerId} - Full exchange with one partner
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.messages.ListConversation(h.userID(r), mux.Vars(r)["partnerId"], limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// POST /api/v1/messages/{partnerId} - Send a direct message
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	msg, err := h.messages.Send(h.userID(r), mux.Vars(r)["partnerId"], req.Content)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// POST /api/v1/messages/{partnerId}/read - Mark a partner's messages read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.messages.MarkRead(h.userID(r), mux.Vars(r)["partnerId"]); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GET /api/v1/profile - The user plus their scoring snapshot
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := h.userID(r)
	user, err := h.users.GetUserByID(userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	stats, err := h.users.GetUserStats(userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user, "stats": stats})
}

// PUT /api/v1/profile - Update display fields
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.users.UpdateProfile(h.userID(r), &req); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// POST /api/v1/profile/password - Change password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.users.ChangePassword(h.userID(r), req.CurrentPassword, req.NewPassword); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GET /api/v1/profile/stats - Scoring snapshot only
func (h *Handler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.GetUserStats(h.userID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/v1/invite - The user's invite links
func (h *Handler) InviteLinks(w http.ResponseWriter, r *http.Request) {
	origin := r.URL.Query().Get("origin")
	if origin == "" {
		origin = "https://" + r.Host
	}
	userID := h.userID(r)
	writeJSON(w, http.StatusOK, map[string]string{
		"invite_url": invite.Link(origin, userID),
		"signup_url": invite.SignupLink(origin, userID),
	})
}

// GET /api/v1/invite/{ref} - Resolve an invite ref to the inviter's card.
// A missing inviter is a dedicated invalid-invite condition, not a generic
// failure.
func (h *Handler) ResolveInvite(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUserByID(mux.Vars(r)["ref"])
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invalid or expired invite"})
			return
		}
		h.respondError(w, err)
		return
	}
	stats, err := h.users.GetUserStats(user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           user.ID,
		"username":     user.Username,
		"display_name": user.DisplayName,
		"avatar_url":   user.AvatarURL,
		"total_points": stats.TotalPoints,
	})
}

// RegisterRoutes mounts the authenticated API surface.
func RegisterRoutes(r *mux.Router, h *Handler) {
	r.HandleFunc("/state", h.GetState).Methods("GET")
	r.HandleFunc("/state/refresh", h.RefreshState).Methods("POST")

	r.HandleFunc("/habits", h.ListHabits).Methods("GET")
	r.HandleFunc("/habits", h.CreateHabit).Methods("POST")
	r.HandleFunc("/habits/{id}", h.DeleteHabit).Methods("DELETE")
	r.HandleFunc("/habits/{id}/complete", h.CompleteHabit).Methods("POST")
	r.HandleFunc("/habits/{id}/completions", h.ListCompletions).Methods("GET")
	r.HandleFunc("/heatmap", h.Heatmap).Methods("GET")

	r.HandleFunc("/feed", h.Feed).Methods("GET")
	r.HandleFunc("/posts/{id}/like", h.ToggleLike).Methods("POST")
	r.HandleFunc("/posts/{id}/comments", h.ListComments).Methods("GET")
	r.HandleFunc("/posts/{id}/comments", h.AddComment).Methods("POST")

	r.HandleFunc("/friends", h.ListFriends).Methods("GET")
	r.HandleFunc("/friends/{id}", h.Follow).Methods("POST")
	r.HandleFunc("/friends/{id}", h.Unfollow).Methods("DELETE")
	r.HandleFunc("/users/search", h.SearchUsers).Methods("GET")

	r.HandleFunc("/leaderboard", h.Leaderboard).Methods("GET")
	r.HandleFunc("/leaderboard/friends", h.FriendsLeaderboard).Methods("GET")
	r.HandleFunc("/leaderboard/rank", h.Rank).Methods("GET")

	r.HandleFunc("/achievements", h.ListAchievements).Methods("GET")

	r.HandleFunc("/conversations", h.Conversations).Methods("GET")
	r.HandleFunc("/messages/{partnerId}", h.ListMessages).Methods("GET")
	r.HandleFunc("/messages/{partnerId}", h.SendMessage).Methods("POST")
	r.HandleFunc("/messages/{partnerId}/read", h.MarkRead).Methods("POST")

	r.HandleFunc("/profile", h.GetProfile).Methods("GET")
	r.HandleFunc("/profile", h.UpdateProfile).Methods("PUT")
	r.HandleFunc("/profile/password", h.ChangePassword).Methods("POST")
	r.HandleFunc("/profile/stats", h.GetUserStats).Methods("GET")

	r.HandleFunc("/invite", h.InviteLinks).Methods("GET")
}
