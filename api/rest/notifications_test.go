package rest_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notificationsOf(t *testing.T, a *testAPI, token string) []map[string]any {
	t.Helper()
	w := getJSON(a.router, "/api/notifications", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Notifications []map[string]any `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Notifications
}

func createDiscussion(t *testing.T, a *testAPI, token, name string) string {
	t.Helper()
	w := postJSON(a.router, "/api/discussions",
		map[string]string{"name": name}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var d map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	return d["id"].(string)
}

func TestInviteAndExecuteJoinsDiscussion(t *testing.T) {
	a := newTestAPI(t)
	aliceTok, _ := a.login(t, "alice")
	bobTok, bobID := a.login(t, "bob")

	discID := createDiscussion(t, a, aliceTok, "thursday-catan")

	// Bob cannot see the discussion yet.
	w := getJSON(a.router, "/api/discussions/"+discID, "Authorization", "Bearer "+bobTok)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Alice invites Bob.
	w = postJSON(a.router, "/api/notifications/invite", map[string]string{
		"receiver_id": bobID,
		"ref_id":      discID,
		"kind":        "discussion",
	}, "Authorization", "Bearer "+aliceTok)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	notifs := notificationsOf(t, a, bobTok)
	require.Len(t, notifs, 1)
	assert.Equal(t, "join_discussion", notifs[0]["type"])
	nid := notifs[0]["id"].(string)

	// Bob executes the invite and becomes a participant.
	w = postJSON(a.router, "/api/notifications/"+nid+"/execute", nil,
		"Authorization", "Bearer "+bobTok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = getJSON(a.router, "/api/discussions/"+discID, "Authorization", "Bearer "+bobTok)
	assert.Equal(t, http.StatusOK, w.Code)

	// Executing again is safe: the join is a set insert.
	w = postJSON(a.router, "/api/notifications/"+nid+"/execute", nil,
		"Authorization", "Bearer "+bobTok)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInviteAndExecuteJoinsSession(t *testing.T) {
	a := newTestAPI(t)
	aliceTok, _ := a.login(t, "alice")
	bobTok, bobID := a.login(t, "bob")

	discID := createDiscussion(t, a, aliceTok, "friday-frosthaven")
	w := postJSON(a.router, "/api/discussions/"+discID+"/sessions", map[string]any{
		"name":      "round one",
		"location":  "cafe",
		"starts_at": "2026-09-01T18:00:00Z",
	}, "Authorization", "Bearer "+aliceTok)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sess map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	sessID := sess["id"].(string)

	w = postJSON(a.router, "/api/notifications/invite", map[string]string{
		"receiver_id": bobID,
		"ref_id":      sessID,
		"kind":        "session",
	}, "Authorization", "Bearer "+aliceTok)
	require.Equal(t, http.StatusCreated, w.Code)

	notifs := notificationsOf(t, a, bobTok)
	require.Len(t, notifs, 1)
	assert.Equal(t, "join_session", notifs[0]["type"])
	nid := notifs[0]["id"].(string)

	w = postJSON(a.router, "/api/notifications/"+nid+"/execute", nil,
		"Authorization", "Bearer "+bobTok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = getJSON(a.router, "/api/sessions/"+sessID, "Authorization", "Bearer "+bobTok)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	participants, _ := sess["participants"].([]any)
	assert.Contains(t, participants, bobID)
}

func TestInviteSelf(t *testing.T) {
	a := newTestAPI(t)
	tok, id := a.login(t, "alice")
	discID := createDiscussion(t, a, tok, "solo")

	w := postJSON(a.router, "/api/notifications/invite", map[string]string{
		"receiver_id": id,
		"ref_id":      discID,
		"kind":        "discussion",
	}, "Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInviteBadKind(t *testing.T) {
	a := newTestAPI(t)
	tok, _ := a.login(t, "alice")
	_, bobID := a.login(t, "bob")

	w := postJSON(a.router, "/api/notifications/invite", map[string]string{
		"receiver_id": bobID,
		"ref_id":      "whatever",
		"kind":        "carrier-pigeon",
	}, "Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkReadMissingNotification(t *testing.T) {
	a := newTestAPI(t)
	tok, _ := a.login(t, "alice")

	w := postJSON(a.router, "/api/notifications/nope/read", nil, "Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteMissingNotificationIsIdempotent(t *testing.T) {
	a := newTestAPI(t)
	tok, _ := a.login(t, "alice")

	w := deleteJSON(a.router, "/api/notifications/nope", "Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExecuteMissingNotification(t *testing.T) {
	a := newTestAPI(t)
	tok, _ := a.login(t, "alice")

	w := postJSON(a.router, "/api/notifications/nope/execute", nil, "Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
