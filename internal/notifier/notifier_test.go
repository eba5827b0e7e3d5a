package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VCPScanner/internal/logger"
	"VCPScanner/internal/model"
)

type fakeBotAPI struct {
	mu        sync.Mutex
	sent      []map[string]string
	failSends int
	polls     int
	onPoll    func(n int) string
}

func (f *fakeBotAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/botTOKEN/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failSends > 0 {
			f.failSends--
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"ok":false,"description":"Too Many Requests"}`)
			return
		}
		f.sent = append(f.sent, body)
		fmt.Fprint(w, `{"ok":true}`)
	})
	mux.HandleFunc("/botTOKEN/getUpdates", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		f.mu.Lock()
		f.polls++
		n := f.polls
		f.mu.Unlock()
		fmt.Fprint(w, f.onPoll(n))
	})
	return mux
}

func (f *fakeBotAPI) sentBodies() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.sent...)
}

func (f *fakeBotAPI) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		out = append(out, s["text"])
	}
	return out
}

func newTestNotifier(t *testing.T, api *fakeBotAPI) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	n := NewTelegramNotifier("TOKEN", "42", "", logger.Nop()).SetAPIBase(srv.URL)
	n.retryBase = time.Millisecond
	n.pollWait = 0
	return n
}

func TestSend(t *testing.T) {
	api := &fakeBotAPI{}
	n := newTestNotifier(t, api)

	require.NoError(t, n.Send(context.Background(), "<b>hi</b>"))
	sent := api.sentBodies()
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0]["chat_id"])
	assert.Equal(t, "HTML", sent[0]["parse_mode"])
	assert.Equal(t, "<b>hi</b>", sent[0]["text"])
}

func TestSendWithRetry(t *testing.T) {
	api := &fakeBotAPI{failSends: 2}
	n := newTestNotifier(t, api)

	require.NoError(t, n.SendWithRetry(context.Background(), "report", 3))
	assert.Equal(t, []string{"report"}, api.sentTexts())
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	api := &fakeBotAPI{failSends: 10}
	n := newTestNotifier(t, api)

	err := n.SendWithRetry(context.Background(), "report", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 attempts exhausted")
	assert.Empty(t, api.sentTexts())
}

func TestStartPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &fakeBotAPI{onPoll: func(n int) string {
		if n == 1 {
			return `{"ok":true,"result":[
				{"update_id":10,"message":{"text":" /last ","chat":{"id":42}}},
				{"update_id":11,"message":{"text":"/scan","chat":{"id":7}}},
				{"update_id":12}]}`
		}
		cancel()
		return `{"ok":true,"result":[]}`
	}}
	n := newTestNotifier(t, api)

	var got []string
	done := make(chan struct{})
	go func() {
		n.StartPolling(ctx, func(_ context.Context, cmd string) string {
			got = append(got, cmd)
			return "reply to " + cmd
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop after cancel")
	}
	assert.Equal(t, []string{"/last"}, got, "commands from other chats are ignored")
	assert.Equal(t, []string{"reply to /last"}, api.sentTexts())
}

func TestFormatScanReport(t *testing.T) {
	res := model.ScanResult{
		Tier:      model.TierPrimary,
		StartedAt: time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC),
		Duration:  95 * time.Second,
		Candidates: []model.Candidate{
			{Code: "300750", Name: "宁德时代", Indicators: model.Indicators{Close: 196, EMA: 180, ATR: 4.4, MinATR: 4, PivotHigh: 200}},
			{Code: "000001", Name: "A&B"},
		},
	}

	msg := FormatScanReport(res)
	assert.Contains(t, msg, "VCP 扫描结果")
	assert.Contains(t, msg, "2024-06-03 15:30")
	assert.Contains(t, msg, "全市场扫描 (PRIMARY)")
	assert.Contains(t, msg, "1. <b>宁德时代</b> (300750)")
	assert.Contains(t, msg, "收盘 196.00 | EMA 180.00")
	assert.Contains(t, msg, "×1.10")
	assert.Contains(t, msg, "距离 -2.0%")
	assert.Contains(t, msg, "2. <b>A&amp;B</b> (000001)", "names are HTML-escaped")
	assert.NotContains(t, msg, "默认标的")
}

func TestFormatScanReport_Default(t *testing.T) {
	msg := FormatScanReport(model.ScanResult{
		Tier:       model.TierDefault,
		Candidates: []model.Candidate{{Code: "600519"}},
	})
	assert.Contains(t, msg, "默认标的 (DEFAULT)")
	assert.Contains(t, msg, "1. <b>600519</b> (600519)")
	assert.NotContains(t, msg, "收盘")
}
