package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() Alert {
	return Alert{
		Type:      AlertTypeUpstreamDown,
		Component: "everclient",
		Network:   "eri01.main.everos.dev",
		Title:     "SDK bridge unavailable",
		Message:   "circuit breaker opened",
		Fields:    map[string]string{"from": "closed", "to": "open"},
	}
}

func countingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &n
}

func captureServer(t *testing.T) (*httptest.Server, *[]byte) {
	t.Helper()
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

func TestMultiAlerter_FansOutToEveryChannel(t *testing.T) {
	slackSrv, slackN := countingServer(t, http.StatusOK)
	hookSrv, hookN := countingServer(t, http.StatusOK)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewSlackAlerter(slackSrv.URL), NewWebhookAlerter(hookSrv.URL))
	require.NoError(t, multi.Send(context.Background(), testAlert()))

	assert.Equal(t, int32(1), slackN.Load())
	assert.Equal(t, int32(1), hookN.Load())
}

func TestMultiAlerter_Cooldown(t *testing.T) {
	srv, n := countingServer(t, http.StatusOK)
	multi := NewMultiAlerter(time.Minute, testLogger(), NewWebhookAlerter(srv.URL))

	now := time.Unix(1700000000, 0)
	multi.nowFunc = func() time.Time { return now }

	a := testAlert()
	require.NoError(t, multi.Send(context.Background(), a))
	require.NoError(t, multi.Send(context.Background(), a))
	assert.Equal(t, int32(1), n.Load(), "repeat inside the window is dropped")

	other := a
	other.Network = "eri01.net.everos.dev"
	require.NoError(t, multi.Send(context.Background(), other))
	assert.Equal(t, int32(2), n.Load(), "another network has its own window")

	now = now.Add(time.Minute)
	require.NoError(t, multi.Send(context.Background(), a))
	assert.Equal(t, int32(3), n.Load(), "window expired")
}

func TestMultiAlerter_PartialFailure(t *testing.T) {
	failSrv, _ := countingServer(t, http.StatusInternalServerError)
	goodSrv, goodN := countingServer(t, http.StatusOK)

	multi := NewMultiAlerter(time.Hour, testLogger(), NewWebhookAlerter(failSrv.URL), NewWebhookAlerter(goodSrv.URL))

	err := multi.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(1), goodN.Load())
}

func TestSlackAlerter_Text(t *testing.T) {
	srv, body := captureServer(t)
	require.NoError(t, NewSlackAlerter(srv.URL).Send(context.Background(), testAlert()))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(*body, &payload))
	text := payload["text"]

	assert.True(t, strings.HasPrefix(text, ":rotating_light: *[UPSTREAM_DOWN]* everclient/eri01.main.everos.dev: SDK bridge unavailable"), text)
	assert.Contains(t, text, "circuit breaker opened")
	assert.Less(t, strings.Index(text, "*from*"), strings.Index(text, "*to*"), "fields are sorted")
}

func TestSlackAlerter_Emoji(t *testing.T) {
	cases := map[AlertType]string{
		AlertTypeWorkerCrashLoop:   ":warning:",
		AlertTypeWorkerRecovered:   ":white_check_mark:",
		AlertTypeUpstreamDown:      ":rotating_light:",
		AlertTypeUpstreamRecovered: ":white_check_mark:",
	}
	for typ, emoji := range cases {
		t.Run(string(typ), func(t *testing.T) {
			srv, body := captureServer(t)
			a := Alert{Type: typ, Component: "cluster", Title: "t", Message: "m"}
			require.NoError(t, NewSlackAlerter(srv.URL).Send(context.Background(), a))

			var payload map[string]string
			require.NoError(t, json.Unmarshal(*body, &payload))
			assert.True(t, strings.HasPrefix(payload["text"], emoji+" *["+string(typ)+"]* cluster: t"), payload["text"])
		})
	}
}

func TestWebhookAlerter_Payload(t *testing.T) {
	srv, body := captureServer(t)

	before := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, NewWebhookAlerter(srv.URL).Send(context.Background(), testAlert()))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(*body, &payload))
	assert.Equal(t, "UPSTREAM_DOWN", payload["type"])
	assert.Equal(t, "everclient", payload["component"])
	assert.Equal(t, "eri01.main.everos.dev", payload["network"])
	assert.Equal(t, "SDK bridge unavailable", payload["title"])
	assert.Equal(t, map[string]any{"from": "closed", "to": "open"}, payload["fields"])

	ts, err := time.Parse(time.RFC3339, payload["time"].(string))
	require.NoError(t, err)
	assert.False(t, ts.Before(before))
}

func TestNew_PicksChannels(t *testing.T) {
	assert.IsType(t, NoopAlerter{}, New("", "", time.Minute, testLogger()))

	a := New("http://slack.local", "http://hook.local", time.Minute, testLogger())
	multi, ok := a.(*MultiAlerter)
	require.True(t, ok)
	require.Len(t, multi.alerters, 2)
	assert.IsType(t, &SlackAlerter{}, multi.alerters[0])
	assert.IsType(t, &WebhookAlerter{}, multi.alerters[1])
}
