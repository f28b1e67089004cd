package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dmflow/internal/automation"
	"dmflow/internal/dispatch"
	"dmflow/internal/eventbus"
	"dmflow/internal/outreach"
	"dmflow/internal/schedule"
	"dmflow/pkg/logx"
)

type senderFunc func(ctx context.Context, req dispatch.SendRequest) (dispatch.SendResult, error)

func (f senderFunc) Send(ctx context.Context, req dispatch.SendRequest) (dispatch.SendResult, error) {
	return f(ctx, req)
}

func okSender(ctx context.Context, req dispatch.SendRequest) (dispatch.SendResult, error) {
	return dispatch.SendResult{MessageID: "mid_1"}, nil
}

func newTestServer(t *testing.T, sender dispatch.Sender) (*httptest.Server, *automation.Service) {
	t.Helper()
	bus := eventbus.New()
	roster := outreach.NewRoster(logx.Nop())
	timeline := outreach.NewTimeline(outreach.DefaultRetention)
	d := dispatch.New(roster, timeline, sender, bus, logx.Nop())
	sched, err := schedule.New(schedule.Config{Tick: time.Hour}, roster, timeline, d.Dispatch, bus, logx.Nop())
	if err != nil {
		t.Fatalf("schedule.New: %v", err)
	}
	svc := automation.New(roster, timeline, sched, d, nil, bus, logx.Nop())

	srv := NewServer(Config{}, svc, bus, logx.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sched.Stop(ctx)
		srv.Stop(ctx)
	})
	return ts, svc
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, senderFunc(okSender))
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRecipientLifecycle(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, senderFunc(okSender))

	// Invalid payload gets a field-level error.
	resp := doJSON(t, http.MethodPost, ts.URL+"/recipients", map[string]string{"handle": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body := decode[map[string]string](t, resp); body["field"] == "" {
		t.Fatalf("error body = %v, want a field", body)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/recipients", outreach.NewRecipient{
		Handle: "@creatorlife", ProviderUserID: "123", Name: "Jamie Rivera",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	rec := decode[outreach.Recipient](t, resp)
	if rec.Handle != "creatorlife" || rec.ID == "" {
		t.Fatalf("recipient = %+v", rec)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/recipients/"+rec.ID+"/select", nil)
	if got := decode[map[string]bool](t, resp); !got["selected"] {
		t.Fatalf("select = %v", got)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/recipients/"+rec.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodDelete, ts.URL+"/recipients/"+rec.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestTemplateAndPreview(t *testing.T) {
	t.Parallel()
	ts, svc := newTestServer(t, senderFunc(okSender))

	resp := doJSON(t, http.MethodPut, ts.URL+"/template", map[string]string{"template": "Hi {{first_name}}, re {{topic}}"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put template status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodPut, ts.URL+"/variables", map[string]string{"topic": "surf"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put variables status = %d", resp.StatusCode)
	}

	rec, err := svc.AddRecipient(outreach.NewRecipient{Handle: "h", ProviderUserID: "1", Name: "Sam Lee"})
	if err != nil {
		t.Fatalf("AddRecipient: %v", err)
	}
	resp, err2 := http.Get(ts.URL + "/preview/" + rec.ID)
	if err2 != nil {
		t.Fatalf("GET /preview: %v", err2)
	}
	if got := decode[map[string]string](t, resp); got["preview"] != "Hi Sam, re surf" {
		t.Fatalf("preview = %v", got)
	}

	resp, err = http.Get(ts.URL + "/preview/ghost")
	if err != nil {
		t.Fatalf("GET /preview/ghost: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("preview ghost status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/variables/catalog")
	if err != nil {
		t.Fatalf("GET /variables/catalog: %v", err)
	}
	if got := decode[[]map[string]string](t, resp); len(got) == 0 {
		t.Fatal("catalog is empty")
	}
}

func TestSendNowAndTimeline(t *testing.T) {
	t.Parallel()
	ts, svc := newTestServer(t, senderFunc(okSender))

	rec, _ := svc.AddRecipient(outreach.NewRecipient{Handle: "h", ProviderUserID: "1", Name: "Sam Lee"})
	svc.ToggleSelect(rec.ID)

	resp := doJSON(t, http.MethodPost, ts.URL+"/send-now", nil)
	if got := decode[map[string]int](t, resp); got["attempted"] != 1 {
		t.Fatalf("send-now = %v", got)
	}

	resp, err := http.Get(ts.URL + "/timeline")
	if err != nil {
		t.Fatalf("GET /timeline: %v", err)
	}
	entries := decode[[]outreach.Entry](t, resp)
	if len(entries) == 0 || entries[0].Status != outreach.EntrySent {
		t.Fatalf("timeline = %+v", entries)
	}

	resp, err = http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	if got := decode[outreach.Stats](t, resp); got.Sent != 1 {
		t.Fatalf("stats = %+v", got)
	}
}

func TestScheduleEndpoint(t *testing.T) {
	t.Parallel()
	ts, svc := newTestServer(t, senderFunc(okSender))

	rec, _ := svc.AddRecipient(outreach.NewRecipient{Handle: "h", ProviderUserID: "1", Name: "Sam Lee"})
	svc.ToggleSelect(rec.ID)

	resp := doJSON(t, http.MethodPost, ts.URL+"/schedule", map[string]string{"run_at": "not-a-time"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad run_at status = %d", resp.StatusCode)
	}

	runAt := time.Now().Add(time.Hour).Format(time.RFC3339)
	resp = doJSON(t, http.MethodPost, ts.URL+"/schedule", map[string]string{"run_at": runAt})
	got := decode[map[string]any](t, resp)
	if got["scheduled"].(float64) != 1 || got["immediate"].(bool) {
		t.Fatalf("schedule = %v", got)
	}
}
