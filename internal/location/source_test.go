package location

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStaticSource(t *testing.T) {
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	s := &StaticSource{Coords: Coords{Latitude: -6.2, Longitude: 106.8}, Now: func() time.Time { return at }}

	fix, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if fix.Coords.Latitude != -6.2 || !fix.Timestamp.Equal(at) {
		t.Errorf("unexpected fix %+v", fix)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func writeRoute(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "route.jsonl")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write route: %v", err)
	}
	return path
}

func TestReplaySource(t *testing.T) {
	path := writeRoute(t, `{"latitude": 1, "longitude": 1}

{"latitude": 2, "longitude": 2, "speed": 1.5}
`)

	tests := []struct {
		name string
		loop bool
		want []float64
		err  error
	}{
		{name: "once", loop: false, want: []float64{1, 2}, err: ErrSourceExhausted},
		{name: "loop", loop: true, want: []float64{1, 2, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewReplaySource(path, tt.loop)
			if err != nil {
				t.Fatalf("NewReplaySource: %v", err)
			}
			if s.Len() != 2 {
				t.Fatalf("expected 2 fixes, got %d", s.Len())
			}
			for i, lat := range tt.want {
				fix, err := s.Next(context.Background())
				if err != nil {
					t.Fatalf("Next %d: %v", i, err)
				}
				if fix.Coords.Latitude != lat {
					t.Errorf("fix %d: expected latitude %v, got %v", i, lat, fix.Coords.Latitude)
				}
			}
			if tt.err != nil {
				if _, err := s.Next(context.Background()); !errors.Is(err, tt.err) {
					t.Errorf("expected %v, got %v", tt.err, err)
				}
			}
		})
	}
}

func TestReplaySourceRejectsBadFiles(t *testing.T) {
	if _, err := NewReplaySource(writeRoute(t, "\n\n"), false); err == nil {
		t.Error("expected error for empty route")
	}
	if _, err := NewReplaySource(writeRoute(t, "{not json}\n"), false); err == nil {
		t.Error("expected error for malformed line")
	}
	if _, err := NewReplaySource(filepath.Join(t.TempDir(), "missing.jsonl"), false); err == nil {
		t.Error("expected error for missing file")
	}
}
