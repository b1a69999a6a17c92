package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tollgate/tollgate/internal/domain"
)

// JournalSink appends every event as one JSON line to a local file.
type JournalSink struct {
	name string
	path string
	mu   sync.Mutex
}

func NewJournalSink(name, path string) *JournalSink {
	return &JournalSink{name: name, path: path}
}

func (s *JournalSink) Name() string { return s.name }

func (s *JournalSink) Deliver(_ context.Context, e domain.Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadJournal loads the events in a journal file, oldest first. A missing
// file is an empty journal.
func ReadJournal(path string) ([]domain.Event, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []domain.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e domain.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, n, err)
		}
		events = append(events, e)
	}
	return events, sc.Err()
}
