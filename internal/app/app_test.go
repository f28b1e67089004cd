package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dmflow/internal/outreach"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := `
logging:
  level: error
  console: false
storage:
  driver: file
  path: ` + filepath.Join(dir, "state") + `
api:
  enabled: false
provider: {}
scheduler:
  tick: 1s
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppBootsAndSendsDryRun(t *testing.T) {
	t.Parallel()
	a, err := New(writeConfig(t, t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(ctx)

	ws := a.Workspace()
	rec, err := ws.AddRecipient(outreach.NewRecipient{Handle: "creatorlife", ProviderUserID: "123", Name: "Jamie Rivera"})
	if err != nil {
		t.Fatalf("AddRecipient: %v", err)
	}
	if _, ok := ws.ToggleSelect(rec.ID); !ok {
		t.Fatal("ToggleSelect failed")
	}

	// No credentials configured: the dry-run boundary accepts the send.
	if got := ws.SendNow(ctx); got != 1 {
		t.Fatalf("SendNow = %d, want 1", got)
	}
	recs := ws.Recipients()
	if len(recs) != 1 || recs[0].Status != outreach.StatusSent {
		t.Fatalf("recipients = %+v", recs)
	}
}

func TestAppRestartRestoresState(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeConfig(t, dir)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a1, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a1.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec, err := a1.Workspace().AddRecipient(outreach.NewRecipient{Handle: "h", ProviderUserID: "1", Name: "Sam Lee"})
	if err != nil {
		t.Fatalf("AddRecipient: %v", err)
	}
	a1.Stop(ctx)

	a2, err := New(path)
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	if err := a2.Start(ctx); err != nil {
		t.Fatalf("Start after restart: %v", err)
	}
	defer a2.Stop(ctx)

	recs := a2.Workspace().Recipients()
	if len(recs) != 1 || recs[0].ID != rec.ID {
		t.Fatalf("restored recipients = %+v", recs)
	}
}
