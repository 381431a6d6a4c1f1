package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/admin-auth/internal/model"
)

func TestFormatAuditLine(t *testing.T) {
	ev := model.AuthEvent{
		Type:       model.EventLoginFailed,
		UserID:     "u1",
		DeviceID:   "d1",
		Reason:     "bad_password",
		OccurredAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
	line := FormatAuditLine(ev)
	assert.Equal(t,
		`[2026-02-03T04:05:06Z] auth.login_failed | user_id="u1" | device_id="d1" | reason="bad_password"`+"\n",
		line)
}

func TestHandleMessageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "auth.log")

	for _, typ := range []model.AuthEventType{model.EventLoggedIn, model.EventLoggedOut} {
		body, err := json.Marshal(model.AuthEvent{Type: typ, UserID: "u1", OccurredAt: time.Now()})
		require.NoError(t, err)
		require.NoError(t, handleMessage(path, body))
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "auth.logged_in")
	assert.Contains(t, lines[1], "auth.logged_out")
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	assert.Error(t, handleMessage(path, []byte("{")))
	assert.Error(t, handleMessage(path, []byte(`{"user_id":"u1"}`)))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
