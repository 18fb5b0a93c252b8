package location

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// StaticSource reports the same position on every read.
type StaticSource struct {
	Coords Coords
	Now    func() time.Time
}

// Next returns the configured position stamped with the current time.
func (s *StaticSource) Next(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return Fix{Coords: s.Coords, Timestamp: now()}, nil
}

// ReplaySource replays a recorded route from a JSON-lines file, one Coords
// object per line.
type ReplaySource struct {
	fixes []Coords
	loop  bool
	now   func() time.Time

	mu  sync.Mutex
	pos int
}

// NewReplaySource loads a route file. Blank lines are skipped.
func NewReplaySource(path string, loop bool) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	var fixes []Coords
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var c Coords
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("replay file line %d: %w", line, err)
		}
		fixes = append(fixes, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	if len(fixes) == 0 {
		return nil, fmt.Errorf("replay file %s has no fixes", path)
	}

	return &ReplaySource{fixes: fixes, loop: loop, now: time.Now}, nil
}

// Next returns the next recorded position stamped with the current time.
func (s *ReplaySource) Next(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.fixes) {
		if !s.loop {
			return Fix{}, ErrSourceExhausted
		}
		s.pos = 0
	}
	c := s.fixes[s.pos]
	s.pos++

	return Fix{Coords: c, Timestamp: s.now()}, nil
}

// Len returns the number of recorded fixes.
func (s *ReplaySource) Len() int {
	return len(s.fixes)
}
