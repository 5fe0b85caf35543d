// Package repository owns the in-memory habit collection. Every mutation is
// serialized, published to subscribers and written through to storage.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/julianstephens/habitual/internal/clock"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/lifecycle"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/scheduler"
	"github.com/julianstephens/habitual/internal/storage"
	"github.com/julianstephens/habitual/internal/validation"
)

// Listener receives a private copy of the collection after each change.
// It runs with the repository's notification lock held and must not call
// back into mutating repository methods synchronously.
type Listener func(habits []models.Habit)

type subscription struct {
	id int
	fn Listener
}

type Repository struct {
	provider  storage.Provider
	clock     clock.Clock
	ids       IDGenerator
	key       string
	attempts  int
	delay     time.Duration
	onCorrupt func([]byte)

	// mu guards the collection and serializes every mutation, polls included.
	mu     sync.Mutex
	habits []models.Habit
	loaded bool
	closed bool
	report validation.Result

	// notifyMu is taken before mu is released so notifications are
	// delivered in mutation order.
	notifyMu sync.Mutex

	subMu   sync.Mutex
	subs    []subscription
	nextSub int

	writer *writer

	pollMu sync.Mutex
	poller *scheduler.Poller
}

// New creates an empty, unloaded repository persisting through provider.
func New(provider storage.Provider, opts ...Option) *Repository {
	r := &Repository{
		provider: provider,
		clock:    clock.System{},
		ids:      UUIDv7Generator{},
		key:      constants.StorageKey,
		attempts: constants.WriteMaxRetries,
		delay:    constants.WriteRetryDelay,
		habits:   []models.Habit{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.writer = newWriter(provider, r.key, r.attempts, r.delay)
	return r
}

// Load reads the persisted collection, sanitizes it and applies any resets
// that came due while the app was not running.
//
// A missing or unparseable blob yields an empty collection. A read failure
// also yields an empty collection but is returned so the caller can decide
// whether to continue; nothing is written back in that case.
func (r *Repository) Load(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}

	raw, err := r.provider.Get(ctx, r.key)
	var readErr error
	habits := []models.Habit{}
	persist := false

	if err != nil {
		logger.Error("Failed to read habits, starting empty", "key", r.key, "error", err)
		readErr = fmt.Errorf("failed to read habits: %w", err)
		r.report = validation.Result{}
	} else {
		r.writer.observe(raw)
		var corrupt bool
		habits, r.report, corrupt = Decode(raw)
		if corrupt {
			logger.Error("Stored habits are not valid JSON, starting empty", "key", r.key, "bytes", len(raw))
			if r.onCorrupt != nil {
				r.onCorrupt(raw)
			}
		}
		for _, issue := range r.report.Issues {
			logger.Warn("Stored habit issue", "kind", issue.Kind, "habit", issue.HabitID, "detail", issue.Description, "dropped", issue.Dropped)
		}
		persist = needsRewrite(r.report)
	}

	evaluated, changed := lifecycle.EvaluateAll(habits, r.clock.Now())
	r.habits = evaluated
	r.loaded = true
	logger.Debug("Habits loaded", "count", len(evaluated), "reset", changed)

	if err := r.commit(readErr == nil && (persist || changed)); err != nil {
		return err
	}
	return readErr
}

// Decode parses a stored collection record by record and sanitizes it.
// corrupt is set when raw is not a JSON array at all.
func Decode(raw []byte) (habits []models.Habit, result validation.Result, corrupt bool) {
	if len(raw) == 0 {
		return []models.Habit{}, result, false
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return []models.Habit{}, result, true
	}

	decoded := make([]models.Habit, 0, len(records))
	for i, rec := range records {
		var h models.Habit
		if err := json.Unmarshal(rec, &h); err != nil {
			result.Add(validation.Issue{
				Kind:        validation.IssueUndecodable,
				Description: fmt.Sprintf("Record %d could not be decoded: %v", i, err),
				Dropped:     true,
			})
			continue
		}
		decoded = append(decoded, h)
	}

	habits, sanitized := validation.Sanitize(decoded)
	result.Issues = append(result.Issues, sanitized.Issues...)
	return habits, result, false
}

func needsRewrite(r validation.Result) bool {
	for _, issue := range r.Issues {
		if issue.Kind != validation.IssueDuplicateTitle {
			return true
		}
	}
	return false
}

// LoadReport returns the problems found in the stored data by the last Load.
func (r *Repository) LoadReport() validation.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return validation.Result{Issues: slices.Clone(r.report.Issues)}
}

// commit publishes the current collection and optionally queues it for
// persistence. It must be called with r.mu held and releases it.
func (r *Repository) commit(persist bool) error {
	var err error
	if persist {
		var data []byte
		data, err = json.Marshal(r.habits)
		if err == nil {
			err = r.writer.submit(data)
		}
		if err != nil {
			logger.Error("Failed to queue habits for persistence", "error", err)
		}
	}
	snapshot := models.CloneAll(r.habits)

	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	r.notify(snapshot)
	return err
}

func (r *Repository) notify(snapshot []models.Habit) {
	r.subMu.Lock()
	subs := slices.Clone(r.subs)
	r.subMu.Unlock()

	for i, sub := range subs {
		habits := snapshot
		if i > 0 {
			habits = models.CloneAll(snapshot)
		}
		sub.fn(habits)
	}
}

// Subscribe registers fn for change notifications. The returned function
// removes it and may be called more than once.
func (r *Repository) Subscribe(fn Listener) (cancel func()) {
	r.subMu.Lock()
	r.nextSub++
	id := r.nextSub
	r.subs = append(r.subs, subscription{id: id, fn: fn})
	r.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.subMu.Lock()
			defer r.subMu.Unlock()
			r.subs = slices.DeleteFunc(r.subs, func(s subscription) bool { return s.id == id })
		})
	}
}

// lock takes r.mu for a mutation, failing when the repository cannot accept one.
func (r *Repository) lock() error {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return ErrClosed
	case !r.loaded:
		r.mu.Unlock()
		return ErrNotLoaded
	}
	return nil
}

// external describes what reconcile found in the store.
type external struct {
	// adopted is set when memory was replaced by another process's data.
	adopted bool
	// dirty is set when the store needs rewriting from memory.
	dirty bool
}

// lockFresh is lock followed by reconcile, for calls that read-modify-write
// the collection.
func (r *Repository) lockFresh() (external, error) {
	if err := r.lock(); err != nil {
		return external{}, err
	}
	return r.reconcile(), nil
}

// reconcile adopts the stored collection when another process has written it
// since this repository last read or wrote it, so a long-running session
// never overwrites a change made by a one-shot command. It runs with r.mu
// held. While a write of ours is pending the store is expected to lag, and
// an unreadable store leaves memory as it is.
func (r *Repository) reconcile() external {
	known, ok := r.writer.idle()
	if !ok {
		return external{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.ReadTimeout)
	raw, err := r.provider.Get(ctx, r.key)
	cancel()
	if err != nil {
		logger.Warn("Failed to check stored habits, keeping memory", "key", r.key, "error", err)
		return external{}
	}
	if bytes.Equal(raw, known) {
		return external{}
	}
	r.writer.observe(raw)

	habits, report, corrupt := Decode(raw)
	if corrupt {
		logger.Error("Stored habits were replaced with invalid JSON, keeping memory", "key", r.key, "bytes", len(raw))
		if r.onCorrupt != nil {
			r.onCorrupt(raw)
		}
		return external{dirty: true}
	}
	for _, issue := range report.Issues {
		logger.Warn("Stored habit issue", "kind", issue.Kind, "habit", issue.HabitID, "detail", issue.Description, "dropped", issue.Dropped)
	}

	evaluated, changed := lifecycle.EvaluateAll(habits, r.clock.Now())
	r.habits = evaluated
	r.report = report
	logger.Info("Picked up habits changed by another process", "count", len(evaluated))
	return external{adopted: true, dirty: changed || needsRewrite(report)}
}

// unlock releases r.mu after a call that changed nothing itself, still
// publishing whatever reconcile brought in.
func (r *Repository) unlock(ext external) {
	if !ext.adopted && !ext.dirty {
		r.mu.Unlock()
		return
	}
	_ = r.commit(ext.dirty)
}

func (r *Repository) indexOf(id string) int {
	return slices.IndexFunc(r.habits, func(h models.Habit) bool { return h.ID == id })
}

// List returns a copy of the collection in insertion order.
func (r *Repository) List() []models.Habit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.CloneAll(r.habits)
}

// Get returns a copy of the habit with the given id.
func (r *Repository) Get(id string) (models.Habit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(id); i >= 0 {
		return r.habits[i].Clone(), true
	}
	return models.Habit{}, false
}

// Find resolves a user-supplied reference: an exact id, a unique id prefix,
// or a case-insensitive title.
func (r *Repository) Find(ref string) (models.Habit, error) {
	ref = norm.NFC.String(strings.TrimSpace(ref))
	if ref == "" {
		return models.Habit{}, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(ref); i >= 0 {
		return r.habits[i].Clone(), nil
	}

	for _, match := range []func(models.Habit) bool{
		func(h models.Habit) bool { return strings.HasPrefix(h.ID, ref) },
		func(h models.Habit) bool { return strings.EqualFold(norm.NFC.String(h.Title), ref) },
	} {
		var found []models.Habit
		for _, h := range r.habits {
			if match(h) {
				found = append(found, h)
			}
		}
		switch len(found) {
		case 0:
			continue
		case 1:
			return found[0].Clone(), nil
		default:
			return models.Habit{}, fmt.Errorf("%w: %q matches %d habits", ErrAmbiguous, ref, len(found))
		}
	}
	return models.Habit{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
}

// validateTitle trims and NFC-normalizes a title so visually identical
// titles compare equal.
func validateTitle(title string) (string, error) {
	title = norm.NFC.String(strings.TrimSpace(title))
	if title == "" {
		return "", ErrEmptyTitle
	}
	return title, nil
}

func validateFrequency(f models.Frequency) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, f)
	}
	return nil
}

// Create appends a new, never-completed habit. An empty color falls back to
// the default accent.
func (r *Repository) Create(title, description string, frequency models.Frequency, color string) (models.Habit, error) {
	title, err := validateTitle(title)
	if err != nil {
		return models.Habit{}, err
	}
	if err := validateFrequency(frequency); err != nil {
		return models.Habit{}, err
	}
	if color == "" {
		color = constants.DefaultColor
	}

	if _, err := r.lockFresh(); err != nil {
		return models.Habit{}, err
	}

	h := models.Habit{
		ID:             r.ids.Generate(),
		Title:          title,
		Description:    description,
		Color:          color,
		Frequency:      frequency,
		CompletedDates: []string{},
		CreatedAt:      r.clock.Now().Truncate(time.Millisecond),
	}
	r.habits = append(r.habits, h)
	logger.Info("Habit created", "id", h.ID, "title", h.Title, "frequency", h.Frequency)

	return h.Clone(), r.commit(true)
}

// Update merges the patch into the habit. Changing the frequency re-evaluates
// the habit against its new cadence.
func (r *Repository) Update(id string, patch models.HabitPatch) (models.Habit, error) {
	if patch.Title != nil {
		title, err := validateTitle(*patch.Title)
		if err != nil {
			return models.Habit{}, err
		}
		patch.Title = &title
	}
	if patch.Frequency != nil {
		if err := validateFrequency(*patch.Frequency); err != nil {
			return models.Habit{}, err
		}
	}

	ext, err := r.lockFresh()
	if err != nil {
		return models.Habit{}, err
	}

	i := r.indexOf(id)
	if i < 0 {
		r.unlock(ext)
		return models.Habit{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	current := r.habits[i]
	updated := lifecycle.Evaluate(patch.Apply(current), r.clock.Now())
	if updated.Equal(current) {
		r.unlock(ext)
		return updated, nil
	}

	r.habits[i] = updated
	logger.Info("Habit updated", "id", id)
	return updated.Clone(), r.commit(true)
}

// Delete removes the habit and reports whether it existed. Deleting an
// unknown id is a no-op.
func (r *Repository) Delete(id string) (bool, error) {
	ext, err := r.lockFresh()
	if err != nil {
		return false, err
	}

	i := r.indexOf(id)
	if i < 0 {
		r.unlock(ext)
		return false, nil
	}

	r.habits = slices.Delete(r.habits, i, i+1)
	logger.Info("Habit deleted", "id", id)
	return true, r.commit(true)
}

// Toggle flips the habit's completion at the current time. Expired state is
// cleared first, so a habit left completed from an earlier window is
// completed again rather than undone.
func (r *Repository) Toggle(id string) (models.Habit, error) {
	ext, err := r.lockFresh()
	if err != nil {
		return models.Habit{}, err
	}

	i := r.indexOf(id)
	if i < 0 {
		r.unlock(ext)
		return models.Habit{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	now := r.clock.Now()
	toggled := lifecycle.Toggle(lifecycle.Evaluate(r.habits[i], now), now)
	r.habits[i] = toggled
	logger.Info("Habit toggled", "id", id, "completed", toggled.Completed, "streak", toggled.Streak)

	return toggled.Clone(), r.commit(true)
}

// Replace swaps in a whole collection, as when restoring a backup. The
// habits are sanitized and evaluated like a Load.
func (r *Repository) Replace(habits []models.Habit) (validation.Result, error) {
	if err := r.lock(); err != nil {
		return validation.Result{}, err
	}

	sanitized, result := validation.Sanitize(habits)
	evaluated, _ := lifecycle.EvaluateAll(sanitized, r.clock.Now())
	r.habits = evaluated
	logger.Info("Habits replaced", "count", len(evaluated), "issues", len(result.Issues))

	return result, r.commit(true)
}

// Refresh picks up changes written by other processes, applies any resets
// that are due and reports whether the collection changed. An unchanged
// collection is neither persisted nor published.
func (r *Repository) Refresh() bool {
	ext, err := r.lockFresh()
	if err != nil {
		return false
	}

	evaluated, changed := lifecycle.EvaluateAll(r.habits, r.clock.Now())
	if !changed {
		r.unlock(ext)
		return ext.adopted
	}

	r.habits = evaluated
	logger.Debug("Habits reset by refresh")
	_ = r.commit(true)
	return true
}

// StartPolling refreshes the collection every interval until ctx is done,
// StopPolling is called or the repository is closed.
func (r *Repository) StartPolling(ctx context.Context, interval time.Duration) error {
	r.pollMu.Lock()
	defer r.pollMu.Unlock()

	if r.poller == nil {
		r.poller = scheduler.NewPoller(interval, func() { r.Refresh() })
	}
	return r.poller.Start(ctx)
}

// Resume requests an immediate refresh from the poller, e.g. when the
// terminal regains focus. Without a running poller it refreshes inline.
func (r *Repository) Resume() {
	r.pollMu.Lock()
	p := r.poller
	r.pollMu.Unlock()

	if p != nil && p.Running() {
		p.Resume()
		return
	}
	r.Refresh()
}

func (r *Repository) StopPolling() {
	r.pollMu.Lock()
	p := r.poller
	r.pollMu.Unlock()

	if p != nil {
		p.Stop()
	}
}

// Flush waits for queued writes and returns the result of the latest one.
func (r *Repository) Flush() error {
	return r.writer.flush()
}

// Close stops polling, drains pending writes and rejects further mutations.
func (r *Repository) Close() error {
	r.StopPolling()

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	return r.writer.close()
}
