package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/parley/chat-server/internal/auth"
	"github.com/parley/chat-server/internal/store"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type memUsers struct {
	byID map[string]*store.User
}

func newMemUsers() *memUsers { return &memUsers{byID: make(map[string]*store.User)} }

func (m *memUsers) Create(ctx context.Context, u *store.User) error {
	for _, existing := range m.byID {
		if existing.Email == u.Email || existing.Username == u.Username {
			return store.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = "user-" + u.Username
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memUsers) FindByID(ctx context.Context, id string) (*store.User, error) {
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (m *memUsers) ListExcept(ctx context.Context, excludeID string) ([]store.User, error) {
	var out []store.User
	for _, u := range m.byID {
		if u.ID != excludeID {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memUsers) Search(ctx context.Context, query, excludeID string) ([]store.User, error) {
	var out []store.User
	q := strings.ToLower(query)
	for _, u := range m.byID {
		if u.ID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), q) {
			out = append(out, *u)
		}
	}
	return out, nil
}

type memMessages struct {
	msgs []store.Message
}

func (m *memMessages) Insert(ctx context.Context, msg *store.Message) error {
	msg.ID = "msg-" + msg.Content
	msg.Timestamp = time.Now().UTC()
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memMessages) FindBetween(ctx context.Context, a, b string) ([]store.Message, error) {
	var out []store.Message
	for _, msg := range m.msgs {
		if (msg.Sender == a && msg.Receiver == b) || (msg.Sender == b && msg.Receiver == a) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memMessages) FindByGroup(ctx context.Context, groupID string) ([]store.Message, error) {
	var out []store.Message
	for _, msg := range m.msgs {
		if msg.Group == groupID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memMessages) MarkRead(ctx context.Context, sender, reader string) error {
	for i := range m.msgs {
		if m.msgs[i].Sender == sender && m.msgs[i].Receiver == reader {
			m.msgs[i].Read = true
		}
	}
	return nil
}

type memGroups struct {
	byID map[string]*store.Group
}

func newMemGroups() *memGroups { return &memGroups{byID: make(map[string]*store.Group)} }

func (m *memGroups) Create(ctx context.Context, name, adminID string) (*store.Group, error) {
	g := &store.Group{
		ID:      "group-" + name,
		Name:    name,
		Admin:   adminID,
		Members: []string{adminID},
	}
	m.byID[g.ID] = g
	cp := *g
	return &cp, nil
}

func (m *memGroups) Get(ctx context.Context, groupID string) (*store.Group, error) {
	if g, ok := m.byID[groupID]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (m *memGroups) AddMember(ctx context.Context, groupID, actorID, memberID string) (*store.Group, error) {
	g, ok := m.byID[groupID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if g.Admin != actorID {
		return nil, store.ErrNotAdmin
	}
	if !g.IsMember(memberID) {
		g.Members = append(g.Members, memberID)
	}
	cp := *g
	return &cp, nil
}

func (m *memGroups) ListByMember(ctx context.Context, principalID string) ([]store.Group, error) {
	var out []store.Group
	for _, g := range m.byID {
		if g.IsMember(principalID) {
			out = append(out, *g)
		}
	}
	return out, nil
}

type fixedPresence []string

func (f fixedPresence) Snapshot() []string { return f }

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type apiFixture struct {
	handler  http.Handler
	users    *memUsers
	messages *memMessages
	groups   *memGroups
	tokens   *auth.TokenManager
	online   *fixedPresence
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	users := newMemUsers()
	messages := &memMessages{}
	groups := newMemGroups()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	online := &fixedPresence{}

	srv := New(users, messages, groups, tokens, online, nil)
	return &apiFixture{
		handler:  srv.Handler(),
		users:    users,
		messages: messages,
		groups:   groups,
		tokens:   tokens,
		online:   online,
	}
}

func (f *apiFixture) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

// seedUser registers an account directly in the store and returns its id and
// a valid token.
func (f *apiFixture) seedUser(t *testing.T, username string) (string, string) {
	t.Helper()
	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatal(err)
	}
	u := &store.User{Username: username, Email: username + "@example.com", PasswordHash: hash}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	token, err := f.tokens.Issue(auth.Principal{ID: u.ID, Name: u.Username})
	if err != nil {
		t.Fatal(err)
	}
	return u.ID, token
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("response not JSON: %v\nbody: %s", err, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/auth/register", "", registerRequest{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "secret99",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", w.Code, w.Body.String())
	}

	var reg authResponse
	decodeBody(t, w, &reg)
	if reg.Token == "" || reg.User.ID == "" {
		t.Fatalf("register response incomplete: %+v", reg)
	}
	// Email is normalized to lowercase.
	if reg.User.Email != "alice@example.com" {
		t.Errorf("email = %q, want normalized lowercase", reg.User.Email)
	}

	// The issued token works against a protected endpoint.
	if w := f.do(t, http.MethodGet, "/api/users", reg.Token, nil); w.Code != http.StatusOK {
		t.Errorf("token rejected: status = %d", w.Code)
	}

	// Login with the same credentials.
	w = f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{
		Email:    "alice@example.com",
		Password: "secret99",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}

	// Wrong password gets the same 401 as an unknown email.
	w = f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{
		Email:    "alice@example.com",
		Password: "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", w.Code)
	}
	w = f.do(t, http.MethodPost, "/api/auth/login", "", loginRequest{
		Email:    "nobody@example.com",
		Password: "secret99",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unknown email status = %d, want 401", w.Code)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "alice")

	w := f.do(t, http.MethodPost, "/api/auth/register", "", registerRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret99",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", w.Code)
	}
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)

	cases := []registerRequest{
		{Username: "", Email: "a@b.c", Password: "secret99"},
		{Username: "a", Email: "", Password: "secret99"},
		{Username: "a", Email: "a@b.c", Password: "short"},
	}
	for _, req := range cases {
		if w := f.do(t, http.MethodPost, "/api/auth/register", "", req); w.Code != http.StatusBadRequest {
			t.Errorf("register %+v status = %d, want 400", req, w.Code)
		}
	}
}

func TestProtectedEndpoints_RequireToken(t *testing.T) {
	f := newFixture(t)

	targets := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/users"},
		{http.MethodGet, "/api/users/search?q=x"},
		{http.MethodPost, "/api/messages/bob"},
		{http.MethodGet, "/api/messages/bob"},
		{http.MethodPost, "/api/groups"},
		{http.MethodGet, "/api/groups"},
	}
	for _, tc := range targets {
		if w := f.do(t, tc.method, tc.path, "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want 401", tc.method, tc.path, w.Code)
		}
		if w := f.do(t, tc.method, tc.path, "garbage", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s with bad token: status = %d, want 401", tc.method, tc.path, w.Code)
		}
	}
}

func TestListUsers_AnnotatesPresence(t *testing.T) {
	f := newFixture(t)
	_, aliceToken := f.seedUser(t, "alice")
	bobID, _ := f.seedUser(t, "bob")
	f.seedUser(t, "carol")

	*f.online = fixedPresence{bobID}

	w := f.do(t, http.MethodGet, "/api/users", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var views []userView
	decodeBody(t, w, &views)
	if len(views) != 2 {
		t.Fatalf("got %d users, want 2 (caller excluded)", len(views))
	}
	for _, v := range views {
		wantOnline := v.ID == bobID
		if v.Online != wantOnline {
			t.Errorf("user %s online = %v, want %v", v.Username, v.Online, wantOnline)
		}
	}
}

func TestSearchUsers(t *testing.T) {
	f := newFixture(t)
	_, aliceToken := f.seedUser(t, "alice")
	f.seedUser(t, "bob")
	f.seedUser(t, "bobby")

	w := f.do(t, http.MethodGet, "/api/users/search?q=bob", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var views []userView
	decodeBody(t, w, &views)
	if len(views) != 2 {
		t.Errorf("got %d results, want 2", len(views))
	}

	if w := f.do(t, http.MethodGet, "/api/users/search", aliceToken, nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d, want 400", w.Code)
	}
}

func TestMessageHistoryMarksRead(t *testing.T) {
	f := newFixture(t)
	aliceID, aliceToken := f.seedUser(t, "alice")
	bobID, bobToken := f.seedUser(t, "bob")

	// Bob sends Alice two messages over REST.
	for _, content := range []string{"hey", "you there?"} {
		w := f.do(t, http.MethodPost, "/api/messages/"+aliceID, bobToken, sendMessageRequest{Content: content})
		if w.Code != http.StatusCreated {
			t.Fatalf("send status = %d, body = %s", w.Code, w.Body.String())
		}
	}

	// Alice fetches the conversation.
	w := f.do(t, http.MethodGet, "/api/messages/"+bobID, aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var msgs []store.Message
	decodeBody(t, w, &msgs)
	if len(msgs) != 2 {
		t.Fatalf("history has %d messages, want 2", len(msgs))
	}

	// Fetching history marked Bob's messages read.
	for _, m := range f.messages.msgs {
		if m.Sender == bobID && !m.Read {
			t.Errorf("message %q not marked read", m.Content)
		}
	}
}

func TestSendMessage_EmptyContentRejected(t *testing.T) {
	f := newFixture(t)
	_, aliceToken := f.seedUser(t, "alice")
	bobID, _ := f.seedUser(t, "bob")

	w := f.do(t, http.MethodPost, "/api/messages/"+bobID, aliceToken, sendMessageRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty content status = %d, want 400", w.Code)
	}
}

func TestGroupLifecycle(t *testing.T) {
	f := newFixture(t)
	_, aliceToken := f.seedUser(t, "alice")
	bobID, bobToken := f.seedUser(t, "bob")
	carolID, carolToken := f.seedUser(t, "carol")

	// Alice creates a group; she is admin and sole member.
	w := f.do(t, http.MethodPost, "/api/groups", aliceToken, createGroupRequest{Name: "team"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var grp store.Group
	decodeBody(t, w, &grp)
	if len(grp.Members) != 1 {
		t.Fatalf("new group members = %v, want only the admin", grp.Members)
	}

	// A non-admin cannot add members.
	w = f.do(t, http.MethodPost, "/api/groups/"+grp.ID+"/members", bobToken, addMemberRequest{UserID: carolID})
	if w.Code != http.StatusForbidden {
		t.Errorf("non-admin add status = %d, want 403", w.Code)
	}

	// The admin can.
	w = f.do(t, http.MethodPost, "/api/groups/"+grp.ID+"/members", aliceToken, addMemberRequest{UserID: bobID})
	if w.Code != http.StatusOK {
		t.Fatalf("admin add status = %d, body = %s", w.Code, w.Body.String())
	}

	// Unknown group is 404.
	w = f.do(t, http.MethodPost, "/api/groups/nope/members", aliceToken, addMemberRequest{UserID: bobID})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown group status = %d, want 404", w.Code)
	}

	// Bob now sees the group in his listing.
	w = f.do(t, http.MethodGet, "/api/groups", bobToken, nil)
	var groups []store.Group
	decodeBody(t, w, &groups)
	if len(groups) != 1 {
		t.Errorf("bob's groups = %v, want 1", groups)
	}

	// Group history is members only.
	if w := f.do(t, http.MethodGet, "/api/groups/"+grp.ID+"/messages", carolToken, nil); w.Code != http.StatusForbidden {
		t.Errorf("non-member history status = %d, want 403", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/groups/"+grp.ID+"/messages", bobToken, nil); w.Code != http.StatusOK {
		t.Errorf("member history status = %d, want 200", w.Code)
	}
}
