// Package badger persists governance state in an embedded BadgerDB.
// Records are JSON values under per-kind key prefixes; an index key per
// open evaluation enforces the one-open-evaluation-per-change rule inside
// the same transaction that writes the evaluation.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tollgate/tollgate/internal/domain"
)

const (
	prefixComponent  = "component/"
	prefixEvaluation = "evaluation/"
	prefixOpenIndex  = "evalopen/"
	prefixDecision   = "decision/"
	prefixArchive    = "archive/"
	prefixReminder   = "reminder/"
	prefixExecution  = "execution/"

	conflictRetries = 3
)

// Config selects where the database lives.
type Config struct {
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

// Store implements domain.Store on BadgerDB.
type Store struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens or creates the database.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// CollectGarbage runs one value-log GC pass. Nothing to collect is not an error.
func (s *Store) CollectGarbage() error {
	err := s.db.RunValueLogGC(0.5)
	switch {
	case err == nil, errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected), errors.Is(err, badger.ErrGCInMemoryMode):
		return nil
	default:
		return err
	}
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func setJSON(txn *badger.Txn, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return txn.Set([]byte(key), raw)
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// scan decodes every value under prefix and hands it to visit.
func scan[T any](txn *badger.Txn, prefix string, reverse bool, visit func(T)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	defer it.Close()

	start := []byte(prefix)
	if reverse {
		start = append([]byte(prefix), 0xFF)
	}
	for it.Seek(start); it.ValidForPrefix([]byte(prefix)); it.Next() {
		var v T
		err := it.Item().Value(func(raw []byte) error { return json.Unmarshal(raw, &v) })
		if err != nil {
			return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
		}
		visit(v)
	}
	return nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.NotFoundError(kind, id)
	}
	return err
}

// --- components ---

func (s *Store) CreateComponent(_ context.Context, c domain.Component) error {
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, prefixComponent+c.ID)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("component %q: %w", c.ID, domain.ErrDuplicateComponent)
		}
		return setJSON(txn, prefixComponent+c.ID, c)
	})
}

func (s *Store) GetComponent(_ context.Context, id string) (domain.Component, error) {
	var c domain.Component
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixComponent+id, &c)
	})
	return c, notFound(err, "component", id)
}

func (s *Store) ListComponents(_ context.Context, filter domain.ComponentFilter) ([]domain.Component, error) {
	var out []domain.Component
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixComponent, false, func(c domain.Component) {
			if filter.Matches(c) {
				out = append(out, c)
			}
		})
	})
	return out, err
}

func (s *Store) UpdateComponent(_ context.Context, c domain.Component) error {
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, prefixComponent+c.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError("component", c.ID)
		}
		return setJSON(txn, prefixComponent+c.ID, c)
	})
}

// --- evaluations ---

func openIndexKey(e domain.Evaluation) string {
	return prefixOpenIndex + e.ComponentID + "/" + e.Key()
}

func (s *Store) CreateEvaluation(_ context.Context, e domain.Evaluation) error {
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, prefixEvaluation+e.ID)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("evaluation id %q already used", e.ID)
		}
		if e.Status == domain.EvaluationOpen {
			if err := claimOpenIndex(txn, e); err != nil {
				return err
			}
		}
		return setJSON(txn, prefixEvaluation+e.ID, e)
	})
}

func claimOpenIndex(txn *badger.Txn, e domain.Evaluation) error {
	taken, err := exists(txn, openIndexKey(e))
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("component %s change %s: %w", e.ComponentID, e.Key(), domain.ErrDuplicateEvaluation)
	}
	return txn.Set([]byte(openIndexKey(e)), []byte(e.ID))
}

func (s *Store) GetEvaluation(_ context.Context, id string) (domain.Evaluation, error) {
	var e domain.Evaluation
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixEvaluation+id, &e)
	})
	return e, notFound(err, "evaluation", id)
}

func (s *Store) UpdateEvaluation(_ context.Context, e domain.Evaluation) error {
	return s.update(func(txn *badger.Txn) error {
		var prev domain.Evaluation
		if err := getJSON(txn, prefixEvaluation+e.ID, &prev); err != nil {
			return notFound(err, "evaluation", e.ID)
		}
		wasOpen := prev.Status == domain.EvaluationOpen
		isOpen := e.Status == domain.EvaluationOpen
		switch {
		case wasOpen && !isOpen:
			if err := txn.Delete([]byte(openIndexKey(prev))); err != nil {
				return err
			}
		case !wasOpen && isOpen:
			if err := claimOpenIndex(txn, e); err != nil {
				return err
			}
		}
		return setJSON(txn, prefixEvaluation+e.ID, e)
	})
}

func (s *Store) ListEvaluations(_ context.Context, filter domain.EvaluationFilter) ([]domain.Evaluation, error) {
	var out []domain.Evaluation
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixEvaluation, false, func(e domain.Evaluation) {
			if filter.Matches(e) {
				out = append(out, e)
			}
		})
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// --- decisions ---

func (s *Store) CreateDecision(_ context.Context, d domain.Decision) error {
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, prefixDecision+d.ID)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("decision id %q already used", d.ID)
		}
		return setJSON(txn, prefixDecision+d.ID, d)
	})
}

func (s *Store) GetDecision(_ context.Context, id string) (domain.Decision, error) {
	var d domain.Decision
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixDecision+id, &d)
	})
	return d, notFound(err, "decision", id)
}

func (s *Store) ListDecisions(_ context.Context, filter domain.DecisionFilter) ([]domain.Decision, error) {
	var out []domain.Decision
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixDecision, false, func(d domain.Decision) {
			if filter.Matches(d) {
				out = append(out, d)
			}
		})
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// loadMutable reads a decision that may still transition.
func loadMutable(txn *badger.Txn, id string) error {
	var cur domain.Decision
	if err := getJSON(txn, prefixDecision+id, &cur); err != nil {
		return notFound(err, "decision", id)
	}
	if cur.Status.IsTerminal() {
		return fmt.Errorf("decision %s is %s: %w", id, cur.Status, domain.ErrAlreadyResolved)
	}
	return nil
}

func (s *Store) UpdateDecision(_ context.Context, d domain.Decision) error {
	return s.update(func(txn *badger.Txn) error {
		if err := loadMutable(txn, d.ID); err != nil {
			return err
		}
		return setJSON(txn, prefixDecision+d.ID, d)
	})
}

func (s *Store) ResolveDecision(_ context.Context, d domain.Decision, archivedAt time.Time) error {
	return s.update(func(txn *badger.Txn) error {
		if err := loadMutable(txn, d.ID); err != nil {
			return err
		}
		if err := setJSON(txn, prefixDecision+d.ID, d); err != nil {
			return err
		}
		key := fmt.Sprintf("%s%020d/%s", prefixArchive, archivedAt.UnixNano(), d.ID)
		return setJSON(txn, key, domain.ArchiveEntry{Decision: d, ArchivedAt: archivedAt})
	})
}

func (s *Store) History(_ context.Context, componentID string) ([]domain.ArchiveEntry, error) {
	var out []domain.ArchiveEntry
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixArchive, true, func(e domain.ArchiveEntry) {
			if componentID == "" || e.Decision.ComponentID == componentID {
				out = append(out, e)
			}
		})
	})
	return out, err
}

// --- reminders ---

func (s *Store) CreateReminder(_ context.Context, r domain.Reminder) error {
	return s.update(func(txn *badger.Txn) error {
		return setJSON(txn, prefixReminder+r.ID, r)
	})
}

func (s *Store) DueReminders(_ context.Context, now time.Time) ([]domain.Reminder, error) {
	var out []domain.Reminder
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixReminder, false, func(r domain.Reminder) {
			if r.FiredAt == nil && !r.DueAt.After(now) {
				out = append(out, r)
			}
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, err
}

func (s *Store) MarkReminderFired(_ context.Context, id string, at time.Time) error {
	return s.update(func(txn *badger.Txn) error {
		var r domain.Reminder
		if err := getJSON(txn, prefixReminder+id, &r); err != nil {
			return notFound(err, "reminder", id)
		}
		r.FiredAt = &at
		return setJSON(txn, prefixReminder+id, r)
	})
}

// --- pipeline executions ---

func (s *Store) CreateExecution(_ context.Context, p domain.PipelineExecution) error {
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, prefixExecution+p.ID)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("execution id %q already used", p.ID)
		}
		return setJSON(txn, prefixExecution+p.ID, p)
	})
}

func (s *Store) GetExecution(_ context.Context, id string) (domain.PipelineExecution, error) {
	var p domain.PipelineExecution
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixExecution+id, &p)
	})
	return p, notFound(err, "pipeline execution", id)
}

func (s *Store) UpdateExecution(_ context.Context, p domain.PipelineExecution) error {
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, prefixExecution+p.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NotFoundError("pipeline execution", p.ID)
		}
		return setJSON(txn, prefixExecution+p.ID, p)
	})
}

func (s *Store) ListExecutions(_ context.Context, filter domain.PipelineFilter) ([]domain.PipelineExecution, error) {
	var out []domain.PipelineExecution
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefixExecution, false, func(p domain.PipelineExecution) {
			if filter.Matches(p) {
				out = append(out, p)
			}
		})
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}
