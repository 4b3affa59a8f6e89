package supervisor

import (
	"errors"
	"testing"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		id   string
		want Action
	}{
		{"start:ssh", Start{"ssh"}},
		{"stop:web", Stop{"web"}},
		{"start:wake-lock", Start{"wake-lock"}},
		{"restart-all", RestartAll{}},
		{"start_pm2", Start{"pm2"}},
		{"stop_pm2", Stop{"pm2"}},
		{"wake_lock", Start{"wake-lock"}},
		{"wake_unlock", Stop{"wake-lock"}},
		{"restart_all", RestartAll{}},
		{" stop_ssh ", Stop{"ssh"}},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.id)
		if err != nil {
			t.Fatalf("ParseAction(%q): %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("ParseAction(%q) = %#v, want %#v", tt.id, got, tt.want)
		}
	}
}

func TestParseActionUnknown(t *testing.T) {
	for _, id := range []string{"", "unknown:thing", "start:", "start:nginx", "reboot:ssh", "restart", "start_nginx"} {
		if _, err := ParseAction(id); !errors.Is(err, ErrUnknownAction) {
			t.Errorf("ParseAction(%q) err = %v, want ErrUnknownAction", id, err)
		}
	}
}

func TestCanonicalIDsRoundTrip(t *testing.T) {
	ids := CanonicalIDs()
	if len(ids) != 9 {
		t.Fatalf("expected 9 canonical ids, got %d: %v", len(ids), ids)
	}
	for _, id := range ids {
		a, err := ParseAction(id)
		if err != nil {
			t.Fatalf("ParseAction(%q): %v", id, err)
		}
		if a.ID() != id {
			t.Errorf("ID() = %q, want %q", a.ID(), id)
		}
	}
}

func TestBoundaryIDs(t *testing.T) {
	want := []string{"start_ssh", "stop_ssh", "start_web", "stop_web", "start_pm2", "stop_pm2", "wake_lock", "wake_unlock", "restart_all"}
	got := BoundaryIDs()
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("BoundaryIDs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
