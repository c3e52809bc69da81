package notifier

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAlert(t *testing.T) {
	text := formatAlert(Alert{
		DistributionID: "d-1",
		ProjectID:      "p<1>",
		Status:         "failed",
		Completed:      2,
		Failed:         1,
		Detail:         "no eligible holders",
	})
	assert.Contains(t, text, "<b>Distribution failed</b>")
	assert.Contains(t, text, "p&lt;1&gt;")
	assert.Contains(t, text, "2 completed, 1 failed")
	assert.Contains(t, text, "no eligible holders")
}

func TestTelegramNotifier_Notify(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"payout","username":"payout_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			sent = append(sent, string(body))
			mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"group"}}}`)
		default:
			_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
		}
	}))
	defer srv.Close()

	n, err := NewTelegram("123:abc", 42, bot.WithServerURL(srv.URL))
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), Alert{DistributionID: "d-9", Status: "failed", Failed: 3}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "d-9")
	assert.Contains(t, sent[0], "42")
}
