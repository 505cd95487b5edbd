package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/parley/chat-server/internal/auth"
	"github.com/parley/chat-server/internal/store"
)

// userView is the user representation returned by the API, annotated with
// live presence.
type userView struct {
	store.User
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	JobTitle string `json:"jobTitle"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  store.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Email == "" || len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "bad_request",
			"username, email and a password of at least 6 characters are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("api: password hash failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "registration failed")
		return
	}

	u := &store.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		JobTitle:     req.JobTitle,
	}

	ctx, cancel := reqCtx(r)
	defer cancel()
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "duplicate", "email or username already in use")
			return
		}
		log.Printf("api: user create failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "registration failed")
		return
	}

	token, err := s.tokens.Issue(auth.Principal{ID: u.ID, Name: u.Username})
	if err != nil {
		log.Printf("api: token issue failed user=%s: %v", u.ID, err)
		writeError(w, http.StatusInternalServerError, "internal", "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: *u})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	u, err := s.users.FindByEmail(ctx, strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		// Same reply for unknown email and wrong password.
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	token, err := s.tokens.Issue(auth.Principal{ID: u.ID, Name: u.Username})
	if err != nil {
		log.Printf("api: token issue failed user=%s: %v", u.ID, err)
		writeError(w, http.StatusInternalServerError, "internal", "login failed")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: *u})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)

	ctx, cancel := reqCtx(r)
	defer cancel()

	users, err := s.users.ListExcept(ctx, p.ID)
	if err != nil {
		log.Printf("api: list users failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not list users")
		return
	}

	writeJSON(w, http.StatusOK, s.annotatePresence(r, users))
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing query parameter q")
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	users, err := s.users.Search(ctx, query, p.ID)
	if err != nil {
		log.Printf("api: user search failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "search failed")
		return
	}

	writeJSON(w, http.StatusOK, s.annotatePresence(r, users))
}

// annotatePresence decorates users with online flags from the presence
// snapshot and, for offline users, last-seen timestamps when available.
func (s *Server) annotatePresence(r *http.Request, users []store.User) []userView {
	online := make(map[string]bool)
	for _, id := range s.presence.Snapshot() {
		online[id] = true
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		v := userView{User: u, Online: online[u.ID]}
		if !v.Online && s.lastSeen != nil {
			ctx, cancel := reqCtx(r)
			if ts, ok, err := s.lastSeen.LastSeen(ctx, u.ID); err == nil && ok {
				v.LastSeen = &ts
			}
			cancel()
		}
		views = append(views, v)
	}
	return views
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// handleSendMessage persists a direct message over REST. Live delivery is
// the WebSocket path's job; messages sent here are picked up from history.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	receiverID := r.PathValue("receiverID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	m := &store.Message{
		Sender:   p.ID,
		Receiver: receiverID,
		Content:  req.Content,
	}
	if err := m.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_message", "message failed validation")
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()
	if err := s.messages.Insert(ctx, m); err != nil {
		log.Printf("api: message insert failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "message could not be stored")
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// handleHistory returns the conversation between the caller and the given
// user, oldest first, and marks the peer's messages as read.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	peerID := r.PathValue("userID")

	ctx, cancel := reqCtx(r)
	defer cancel()

	msgs, err := s.messages.FindBetween(ctx, p.ID, peerID)
	if err != nil {
		log.Printf("api: history lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load history")
		return
	}

	// Fetching history implies the caller has seen the peer's messages.
	if err := s.messages.MarkRead(ctx, peerID, p.ID); err != nil {
		log.Printf("api: mark read failed: %v", err)
	}

	writeJSON(w, http.StatusOK, msgs)
}

type createGroupRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "group name is required")
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	grp, err := s.groups.Create(ctx, strings.TrimSpace(req.Name), p.ID)
	if err != nil {
		log.Printf("api: group create failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "group could not be created")
		return
	}

	writeJSON(w, http.StatusCreated, grp)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)

	ctx, cancel := reqCtx(r)
	defer cancel()

	groups, err := s.groups.ListByMember(ctx, p.ID)
	if err != nil {
		log.Printf("api: group list failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not list groups")
		return
	}

	writeJSON(w, http.StatusOK, groups)
}

type addMemberRequest struct {
	UserID string `json:"userId"`
}

// handleAddMember adds a user to a group. Only the group admin may do this.
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	groupID := r.PathValue("groupID")

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "userId is required")
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	grp, err := s.groups.AddMember(ctx, groupID, p.ID, req.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "group not found")
		return
	case errors.Is(err, store.ErrNotAdmin):
		writeError(w, http.StatusForbidden, "forbidden", "only the group admin can add members")
		return
	case err != nil:
		log.Printf("api: add member failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "member could not be added")
		return
	}

	writeJSON(w, http.StatusOK, grp)
}

// handleGroupHistory returns a group's messages, oldest first. Members only.
func (s *Server) handleGroupHistory(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	groupID := r.PathValue("groupID")

	ctx, cancel := reqCtx(r)
	defer cancel()

	grp, err := s.groups.Get(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "group not found")
		return
	}
	if err != nil {
		log.Printf("api: group lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load group")
		return
	}
	if !grp.IsMember(p.ID) {
		writeError(w, http.StatusForbidden, "forbidden", "not a member of this group")
		return
	}

	msgs, err := s.messages.FindByGroup(ctx, groupID)
	if err != nil {
		log.Printf("api: group history failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load history")
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}
