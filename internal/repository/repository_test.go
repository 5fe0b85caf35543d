package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/habitual/internal/clock"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/storage"
	"github.com/julianstephens/habitual/internal/validation"
)

// 2024-06-12 is a Wednesday.
var wednesdayNoon = time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *storage.MemoryStore
	clock *clock.Manual
	repo  *Repository
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: storage.NewMemoryStore(),
		clock: clock.NewManual(wednesdayNoon),
	}
	f.repo = f.open(t, opts...)
	return f
}

// open builds a repository over the fixture's store and loads it.
func (f *fixture) open(t *testing.T, opts ...Option) *Repository {
	t.Helper()
	opts = append([]Option{
		WithClock(f.clock),
		WithIDGenerator(NewSequenceGenerator("habit")),
		WithRetry(3, time.Millisecond),
	}, opts...)
	repo := New(f.store, opts...)
	require.NoError(t, repo.Load(context.Background()))
	t.Cleanup(func() { repo.Close() })
	return repo
}

func (f *fixture) persisted(t *testing.T) []models.Habit {
	t.Helper()
	require.NoError(t, f.repo.Flush())
	raw, err := f.store.Get(context.Background(), constants.StorageKey)
	require.NoError(t, err)
	var habits []models.Habit
	require.NoError(t, json.Unmarshal(raw, &habits))
	return habits
}

func seed(t *testing.T, store *storage.MemoryStore, habits ...models.Habit) {
	t.Helper()
	data, err := json.Marshal(habits)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), constants.StorageKey, data))
}

func stamp(t time.Time) *time.Time { return &t }

func TestCreate(t *testing.T) {
	f := newFixture(t)

	h, err := f.repo.Create("Drink water", "8 glasses", models.FrequencyDaily, "#4F46E5")
	require.NoError(t, err)

	assert.Equal(t, "habit-1", h.ID)
	assert.Equal(t, "Drink water", h.Title)
	assert.Equal(t, "8 glasses", h.Description)
	assert.Equal(t, models.FrequencyDaily, h.Frequency)
	assert.Equal(t, "#4F46E5", h.Color)
	assert.Equal(t, 0, h.Streak)
	assert.False(t, h.Completed)
	assert.Nil(t, h.LastCompleted)
	assert.Equal(t, []string{}, h.CompletedDates)
	assert.True(t, h.CreatedAt.Equal(wednesdayNoon))

	persisted := f.persisted(t)
	require.Len(t, persisted, 1)
	assert.True(t, persisted[0].Equal(h))
}

func TestCreateDefaultsAndTrims(t *testing.T) {
	f := newFixture(t)

	h, err := f.repo.Create("  Read  ", "", models.FrequencyWeekly, "")
	require.NoError(t, err)
	assert.Equal(t, "Read", h.Title)
	assert.Equal(t, constants.DefaultColor, h.Color)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		frequency models.Frequency
		want      error
	}{
		{"empty title", "", models.FrequencyDaily, ErrEmptyTitle},
		{"blank title", "   ", models.FrequencyDaily, ErrEmptyTitle},
		{"unknown frequency", "Read", "yearly", ErrInvalidFrequency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.repo.Create(tt.title, "", tt.frequency, "")

			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.repo.List())
			require.NoError(t, f.repo.Flush())
			assert.Zero(t, f.store.Writes())
		})
	}
}

func TestCreateAssignsUniqueIDsUnderRapidCalls(t *testing.T) {
	f := &fixture{store: storage.NewMemoryStore(), clock: clock.NewManual(wednesdayNoon)}
	repo := New(f.store, WithClock(f.clock))
	require.NoError(t, repo.Load(context.Background()))
	defer repo.Close()

	seen := make(map[string]bool)
	for range 500 {
		h, err := repo.Create("Same", "", models.FrequencyDaily, "")
		require.NoError(t, err)
		require.False(t, seen[h.ID], "duplicate id %s", h.ID)
		seen[h.ID] = true
	}
}

func TestListInsertionOrderAndIsolation(t *testing.T) {
	f := newFixture(t)
	for _, title := range []string{"A", "B", "C"} {
		_, err := f.repo.Create(title, "", models.FrequencyDaily, "")
		require.NoError(t, err)
	}

	list := f.repo.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{list[0].Title, list[1].Title, list[2].Title})

	list[0].Title = "mutated"
	list[0].CompletedDates = append(list[0].CompletedDates, "2024-01-01")
	again := f.repo.List()
	assert.Equal(t, "A", again[0].Title)
	assert.Empty(t, again[0].CompletedDates)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	h, err := f.repo.Create("Read", "a chapter", models.FrequencyDaily, "#10B981")
	require.NoError(t, err)
	_, err = f.repo.Toggle(h.ID)
	require.NoError(t, err)

	title := "Read more"
	updated, err := f.repo.Update(h.ID, models.HabitPatch{Title: &title})
	require.NoError(t, err)

	assert.Equal(t, "Read more", updated.Title)
	assert.Equal(t, "a chapter", updated.Description)
	assert.Equal(t, "#10B981", updated.Color)
	assert.True(t, updated.Completed, "edit must not touch completion")
	assert.Equal(t, 1, updated.Streak, "edit must not touch streak")

	persisted := f.persisted(t)
	assert.Equal(t, "Read more", persisted[0].Title)
}

func TestUpdateErrors(t *testing.T) {
	f := newFixture(t)
	h, err := f.repo.Create("Read", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	require.NoError(t, f.repo.Flush())
	writes := f.store.Writes()

	blank := " "
	_, err = f.repo.Update(h.ID, models.HabitPatch{Title: &blank})
	assert.ErrorIs(t, err, ErrEmptyTitle)

	bad := models.Frequency("yearly")
	_, err = f.repo.Update(h.ID, models.HabitPatch{Frequency: &bad})
	assert.ErrorIs(t, err, ErrInvalidFrequency)

	title := "x"
	_, err = f.repo.Update("missing", models.HabitPatch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)

	got, ok := f.repo.Get(h.ID)
	require.True(t, ok)
	assert.Equal(t, "Read", got.Title)

	require.NoError(t, f.repo.Flush())
	assert.Equal(t, writes, f.store.Writes())
}

func TestUpdateUnchangedSkipsWrite(t *testing.T) {
	f := newFixture(t)
	h, err := f.repo.Create("Read", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	require.NoError(t, f.repo.Flush())
	writes := f.store.Writes()

	same := "Read"
	_, err = f.repo.Update(h.ID, models.HabitPatch{Title: &same})
	require.NoError(t, err)

	require.NoError(t, f.repo.Flush())
	assert.Equal(t, writes, f.store.Writes())
}

func TestUpdateFrequencyReevaluates(t *testing.T) {
	f := newFixture(t)
	h, err := f.repo.Create("Stretch", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	_, err = f.repo.Toggle(h.ID)
	require.NoError(t, err)

	// 90 minutes later the daily completion still holds, an hourly one would not.
	f.clock.Advance(90 * time.Minute)
	hourly := models.FrequencyHourly
	updated, err := f.repo.Update(h.ID, models.HabitPatch{Frequency: &hourly})
	require.NoError(t, err)

	assert.False(t, updated.Completed)
	assert.Equal(t, 1, updated.Streak)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	a, _ := f.repo.Create("A", "", models.FrequencyDaily, "")
	b, _ := f.repo.Create("B", "", models.FrequencyDaily, "")

	removed, err := f.repo.Delete(a.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	list := f.repo.List()
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	require.NoError(t, f.repo.Flush())
	writes := f.store.Writes()

	removed, err = f.repo.Delete(a.ID)
	require.NoError(t, err)
	assert.False(t, removed)
	require.NoError(t, f.repo.Flush())
	assert.Equal(t, writes, f.store.Writes(), "deleting an absent id must not write")

	assert.Len(t, f.persisted(t), 1)
}

func TestFind(t *testing.T) {
	f := newFixture(t, WithIDGenerator(NewSequenceGenerator("x")))
	for _, title := range []string{"Read", "Run", "Meditate"} {
		_, err := f.repo.Create(title, "", models.FrequencyDaily, "")
		require.NoError(t, err)
	}
	// Titles alone can collide.
	_, err := f.repo.Create("read", "", models.FrequencyWeekly, "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		ref     string
		wantID  string
		wantErr error
	}{
		{"exact id", "x-2", "x-2", nil},
		{"title case-insensitive", "MEDITATE", "x-3", nil},
		{"ambiguous prefix", "x-", "", ErrAmbiguous},
		{"ambiguous title", "read", "", ErrAmbiguous},
		{"unknown", "swim", "", ErrNotFound},
		{"blank", "  ", "", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := f.repo.Find(tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, h.ID)
		})
	}
}

func TestFindUniquePrefix(t *testing.T) {
	f := newFixture(t, WithIDGenerator(NewSequenceGenerator("abc")))
	h, err := f.repo.Create("Read", "", models.FrequencyDaily, "")
	require.NoError(t, err)

	got, err := f.repo.Find("ab")
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
}

func TestToggleCompleteThenUndo(t *testing.T) {
	f := newFixture(t)
	h, err := f.repo.Create("Read", "", models.FrequencyDaily, "")
	require.NoError(t, err)

	done, err := f.repo.Toggle(h.ID)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.Equal(t, 1, done.Streak)
	require.NotNil(t, done.LastCompleted)
	assert.True(t, done.LastCompleted.Equal(wednesdayNoon))
	assert.Equal(t, []string{"2024-06-12"}, done.CompletedDates)

	f.clock.Advance(time.Minute)
	undone, err := f.repo.Toggle(h.ID)
	require.NoError(t, err)
	assert.False(t, undone.Completed)
	assert.Equal(t, 0, undone.Streak)
	assert.Empty(t, undone.CompletedDates)
	require.NotNil(t, undone.LastCompleted)
	assert.True(t, undone.LastCompleted.Equal(wednesdayNoon), "undo keeps lastCompleted")

	persisted := f.persisted(t)
	assert.True(t, persisted[0].Equal(undone))
}

func TestToggleUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.Toggle("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleStaleCompletionCompletesAgain(t *testing.T) {
	f := newFixture(t)
	h, err := f.repo.Create("Read", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	_, err = f.repo.Toggle(h.ID)
	require.NoError(t, err)

	// Next day, before any refresh has run.
	f.clock.Advance(24 * time.Hour)
	next, err := f.repo.Toggle(h.ID)
	require.NoError(t, err)

	assert.True(t, next.Completed)
	assert.Equal(t, 2, next.Streak)
	assert.Equal(t, []string{"2024-06-12", "2024-06-13"}, next.CompletedDates)
}

func TestLoadMissingBlob(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.repo.List())
	require.NoError(t, f.repo.Flush())
	assert.Zero(t, f.store.Writes())
}

func TestLoadAppliesDueResets(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store,
		models.Habit{
			ID: "daily", Title: "Read", Color: "#fff", Frequency: models.FrequencyDaily,
			Streak: 4, Completed: true, LastCompleted: stamp(wednesdayNoon.AddDate(0, 0, -1)),
			CompletedDates: []string{"2024-06-11"},
		},
		models.Habit{
			ID: "hourly", Title: "Water", Color: "#fff", Frequency: models.FrequencyHourly,
			Streak: 5, Completed: true, LastCompleted: stamp(wednesdayNoon.Add(-90 * time.Minute)),
			CompletedDates: []string{"2024-06-12"},
		},
		models.Habit{
			ID: "weekly", Title: "Review", Color: "#fff", Frequency: models.FrequencyWeekly,
			Streak: 2, Completed: true, LastCompleted: stamp(wednesdayNoon.AddDate(0, 0, -14)),
			CompletedDates: []string{"2024-05-29"},
		},
	)
	writesBefore := store.Writes()

	f := &fixture{store: store, clock: clock.NewManual(wednesdayNoon)}
	f.repo = f.open(t)

	list := f.repo.List()
	require.Len(t, list, 3)

	assert.False(t, list[0].Completed)
	assert.Equal(t, 4, list[0].Streak, "yesterday keeps the streak")

	assert.False(t, list[1].Completed)
	assert.Equal(t, 5, list[1].Streak, "90 minutes is inside the hourly grace")

	assert.False(t, list[2].Completed)
	assert.Equal(t, 0, list[2].Streak, "two weeks ago zeroes the streak")
	assert.Equal(t, []string{"2024-05-29"}, list[2].CompletedDates, "history is preserved")

	persisted := f.persisted(t)
	assert.Greater(t, store.Writes(), writesBefore)
	assert.False(t, persisted[0].Completed)
}

func TestLoadUnchangedSkipsWrite(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, models.Habit{
		ID: "a", Title: "Read", Color: "#fff", Frequency: models.FrequencyDaily,
		Streak: 1, Completed: true, LastCompleted: stamp(wednesdayNoon.Add(-time.Hour)),
		CompletedDates: []string{"2024-06-12"},
	})
	writesBefore := store.Writes()

	f := &fixture{store: store, clock: clock.NewManual(wednesdayNoon)}
	f.repo = f.open(t)

	require.NoError(t, f.repo.Flush())
	assert.Equal(t, writesBefore, store.Writes())
	assert.True(t, f.repo.List()[0].Completed)
}

func TestLoadCorruptBlob(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), constants.StorageKey, []byte("{definitely not json")))

	var saved []byte
	f := &fixture{store: store, clock: clock.NewManual(wednesdayNoon)}
	f.repo = f.open(t, WithCorruptHandler(func(raw []byte) { saved = raw }))

	assert.Empty(t, f.repo.List())
	assert.Equal(t, "{definitely not json", string(saved))

	// The corrupt blob stays in place until the next mutation.
	require.NoError(t, f.repo.Flush())
	raw, _ := store.Get(context.Background(), constants.StorageKey)
	assert.Equal(t, "{definitely not json", string(raw))
}

func TestLoadDropsAndRepairsRecords(t *testing.T) {
	store := storage.NewMemoryStore()
	blob := `[
		{"id":"a","title":"Read","color":"#fff","frequency":"daily","streak":-2,"completed":true,"lastCompleted":null,"completedDates":["2024-06-12","bad"],"createdAt":0},
		{"id":"","title":"No id","color":"#fff","frequency":"daily","streak":0,"completed":false,"lastCompleted":null,"completedDates":[],"createdAt":0},
		{"id":"c","title":"Yearly","color":"#fff","frequency":"yearly","streak":0,"completed":false,"lastCompleted":null,"completedDates":[],"createdAt":0},
		{"id":"d","title":"Bad stamp","color":"#fff","frequency":"daily","streak":0,"completed":true,"lastCompleted":"yesterday","completedDates":[],"createdAt":0},
		42
	]`
	require.NoError(t, store.Set(context.Background(), constants.StorageKey, []byte(blob)))

	f := &fixture{store: store, clock: clock.NewManual(wednesdayNoon)}
	f.repo = f.open(t)

	list := f.repo.List()
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, 0, list[0].Streak)
	assert.False(t, list[0].Completed)
	assert.Equal(t, []string{"2024-06-12"}, list[0].CompletedDates)

	report := f.repo.LoadReport()
	assert.Equal(t, 4, report.Dropped())
	kinds := map[validation.IssueKind]int{}
	for _, issue := range report.Issues {
		kinds[issue.Kind]++
	}
	assert.Equal(t, 2, kinds[validation.IssueUndecodable])
	assert.Equal(t, 1, kinds[validation.IssueMissingID])
	assert.Equal(t, 1, kinds[validation.IssueInvalidFrequency])

	persisted := f.persisted(t)
	require.Len(t, persisted, 1, "repaired collection is written back")
}

func TestLoadReadError(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, models.Habit{ID: "a", Title: "Read", Color: "#fff", Frequency: models.FrequencyDaily})
	boom := errors.New("disk unplugged")
	store.SetReadFailure(boom)
	writesBefore := store.Writes()

	repo := New(store, WithClock(clock.NewManual(wednesdayNoon)))
	defer repo.Close()

	err := repo.Load(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, repo.List())

	require.NoError(t, repo.Flush())
	assert.Equal(t, writesBefore, store.Writes(), "a failed read must not overwrite storage")
}

func TestMutationsBeforeLoad(t *testing.T) {
	repo := New(storage.NewMemoryStore())
	defer repo.Close()

	_, err := repo.Create("Read", "", models.FrequencyDaily, "")
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = repo.Toggle("x")
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = repo.Delete("x")
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.False(t, repo.Refresh())
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	h, err := f.repo.Create("Read", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	_, err = f.repo.Toggle(h.ID)
	require.NoError(t, err)
	require.NoError(t, f.repo.Flush())

	var notified int
	cancel := f.repo.Subscribe(func([]models.Habit) { notified++ })
	defer cancel()
	writes := f.store.Writes()

	// Same day: nothing to do.
	f.clock.Advance(6 * time.Hour)
	assert.False(t, f.repo.Refresh())
	require.NoError(t, f.repo.Flush())
	assert.Equal(t, writes, f.store.Writes())
	assert.Zero(t, notified)

	// Past midnight: completion clears, streak survives the grace day.
	f.clock.Set(time.Date(2024, 6, 13, 0, 0, 1, 0, time.UTC))
	assert.True(t, f.repo.Refresh())
	assert.Equal(t, 1, notified)

	got, _ := f.repo.Get(h.ID)
	assert.False(t, got.Completed)
	assert.Equal(t, 1, got.Streak)
	assert.False(t, f.persisted(t)[0].Completed)

	// Idempotent at the same instant.
	assert.False(t, f.repo.Refresh())
	assert.Equal(t, 1, notified)
}

func TestSubscribeOrderAndCancel(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var events []string
	record := func(name string) Listener {
		return func(habits []models.Habit) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, name)
			habits[0].Title = "scribbled by " + name
		}
	}

	cancelFirst := f.repo.Subscribe(record("first"))
	cancelSecond := f.repo.Subscribe(record("second"))
	defer cancelSecond()

	_, err := f.repo.Create("Read", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, events)
	assert.Equal(t, "Read", f.repo.List()[0].Title, "listeners get private copies")

	cancelFirst()
	cancelFirst()
	_, err = f.repo.Create("Run", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "second"}, events)
}

func TestSubscribersSeeMutationsInOrder(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var sizes []int
	cancel := f.repo.Subscribe(func(habits []models.Habit) {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(habits))
	})
	defer cancel()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.repo.Create("Parallel", "", models.FrequencyDaily, "")
		}()
	}
	wg.Wait()

	require.Len(t, sizes, 20)
	for i, n := range sizes {
		assert.Equal(t, i+1, n)
	}
}

func TestWriteFailureKeepsMemoryAuthoritative(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("quota exceeded")
	f.store.SetFailure(boom)

	h, err := f.repo.Create("Read", "", models.FrequencyDaily, "")
	require.NoError(t, err, "persistence failures are not surfaced by mutations")

	assert.ErrorIs(t, f.repo.Flush(), boom)
	assert.Equal(t, 3, f.store.Writes(), "write is attempted three times")

	got, ok := f.repo.Get(h.ID)
	require.True(t, ok)
	assert.Equal(t, "Read", got.Title)

	// The next mutation persists the whole collection once storage recovers.
	f.store.SetFailure(nil)
	_, err = f.repo.Toggle(h.ID)
	require.NoError(t, err)
	persisted := f.persisted(t)
	require.Len(t, persisted, 1)
	assert.True(t, persisted[0].Completed)
}

func TestReplace(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.Create("Old", "", models.FrequencyDaily, "")
	require.NoError(t, err)

	result, err := f.repo.Replace([]models.Habit{
		{ID: "r1", Title: "Restored", Color: "#fff", Frequency: models.FrequencyDaily,
			Streak: 3, Completed: true, LastCompleted: stamp(wednesdayNoon.AddDate(0, 0, -3))},
		{ID: "", Title: "Broken", Frequency: models.FrequencyDaily},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dropped())

	list := f.repo.List()
	require.Len(t, list, 1)
	assert.Equal(t, "r1", list[0].ID)
	assert.False(t, list[0].Completed)
	assert.Equal(t, 0, list[0].Streak)
	assert.Equal(t, "r1", f.persisted(t)[0].ID)
}

func TestCloseRejectsMutationsAndDrains(t *testing.T) {
	store := storage.NewMemoryStore()
	repo := New(store, WithClock(clock.NewManual(wednesdayNoon)))
	require.NoError(t, repo.Load(context.Background()))

	_, err := repo.Create("Read", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close())

	raw, err := store.Get(context.Background(), constants.StorageKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"title":"Read"`)

	_, err = repo.Create("Run", "", models.FrequencyDaily, "")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, repo.Load(context.Background()), ErrClosed)
}

func TestPollingPublishesResets(t *testing.T) {
	f := newFixture(t)
	h, err := f.repo.Create("Stretch", "", models.FrequencyMinutely, "")
	require.NoError(t, err)
	_, err = f.repo.Toggle(h.ID)
	require.NoError(t, err)

	updates := make(chan []models.Habit, 4)
	cancel := f.repo.Subscribe(func(habits []models.Habit) { updates <- habits })
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	require.NoError(t, f.repo.StartPolling(ctx, constants.MinPollInterval))

	f.clock.Advance(61 * time.Second)
	f.repo.Resume()

	select {
	case habits := <-updates:
		require.Len(t, habits, 1)
		assert.False(t, habits[0].Completed)
		assert.Equal(t, 1, habits[0].Streak)
	case <-time.After(2 * time.Second):
		t.Fatal("no reset published")
	}

	f.repo.StopPolling()
	f.repo.StopPolling()
}

func TestResumeWithoutPollerRefreshesInline(t *testing.T) {
	f := newFixture(t)
	h, err := f.repo.Create("Stretch", "", models.FrequencyMinutely, "")
	require.NoError(t, err)
	_, err = f.repo.Toggle(h.ID)
	require.NoError(t, err)

	f.clock.Advance(3 * time.Minute)
	f.repo.Resume()

	got, _ := f.repo.Get(h.ID)
	assert.False(t, got.Completed)
	assert.Equal(t, 0, got.Streak)
}

func TestTitlesAreNormalized(t *testing.T) {
	f := newFixture(t)

	h, err := f.repo.Create("Cafe\u0301", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9", h.Title)

	got, err := f.repo.Find("CAF\u00c9")
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
}

// twoSessions loads a long-running repository and a one-shot one over the
// same store, both seeing Stretch (minutely, completed) and Water (daily).
func twoSessions(t *testing.T) (f *fixture, oneShot *Repository) {
	t.Helper()
	f = newFixture(t)
	stretch, err := f.repo.Create("Stretch", "", models.FrequencyMinutely, "")
	require.NoError(t, err)
	_, err = f.repo.Create("Water", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	_, err = f.repo.Toggle(stretch.ID)
	require.NoError(t, err)
	require.NoError(t, f.repo.Flush())

	return f, f.open(t)
}

func TestRefreshKeepsChangesFromAnotherProcess(t *testing.T) {
	f, oneShot := twoSessions(t)

	water, err := oneShot.Toggle("habit-2")
	require.NoError(t, err)
	require.True(t, water.Completed)
	require.NoError(t, oneShot.Close())

	var published [][]models.Habit
	cancel := f.repo.Subscribe(func(habits []models.Habit) { published = append(published, habits) })
	defer cancel()

	f.clock.Advance(61 * time.Second)
	assert.True(t, f.repo.Refresh())

	stored := f.persisted(t)
	require.Len(t, stored, 2)
	assert.False(t, stored[0].Completed, "Stretch window expired")
	assert.Equal(t, 1, stored[0].Streak)
	assert.True(t, stored[1].Completed, "Water completion must survive the reset write")
	assert.Equal(t, 1, stored[1].Streak)
	assert.Equal(t, []string{"2024-06-12"}, stored[1].CompletedDates)

	require.Len(t, published, 1)
	assert.True(t, published[0][1].Completed)
}

func TestRefreshPublishesAdoptedChangesWithoutResets(t *testing.T) {
	f, oneShot := twoSessions(t)

	_, err := oneShot.Toggle("habit-2")
	require.NoError(t, err)
	require.NoError(t, oneShot.Close())
	writes := f.store.Writes()

	var published int
	cancel := f.repo.Subscribe(func([]models.Habit) { published++ })
	defer cancel()

	assert.True(t, f.repo.Refresh())
	assert.Equal(t, 1, published)
	got, _ := f.repo.Get("habit-2")
	assert.True(t, got.Completed)

	require.NoError(t, f.repo.Flush())
	assert.Equal(t, writes, f.store.Writes(), "adopting clean data must not rewrite it")

	assert.False(t, f.repo.Refresh(), "nothing new the second time")
}

func TestMutationKeepsChangesFromAnotherProcess(t *testing.T) {
	f, oneShot := twoSessions(t)

	_, err := oneShot.Toggle("habit-2")
	require.NoError(t, err)
	require.NoError(t, oneShot.Close())

	// Undo Stretch in the long-running session without a refresh first.
	stretch, err := f.repo.Toggle("habit-1")
	require.NoError(t, err)
	assert.False(t, stretch.Completed)

	stored := f.persisted(t)
	require.Len(t, stored, 2)
	assert.False(t, stored[0].Completed)
	assert.True(t, stored[1].Completed)
}

func TestMissedMutationStillPublishesAdoptedChanges(t *testing.T) {
	f, oneShot := twoSessions(t)

	deleted, err := oneShot.Delete("habit-2")
	require.NoError(t, err)
	require.True(t, deleted)
	require.NoError(t, oneShot.Close())

	var published [][]models.Habit
	cancel := f.repo.Subscribe(func(habits []models.Habit) { published = append(published, habits) })
	defer cancel()

	title := "Drink water"
	_, err = f.repo.Update("habit-2", models.HabitPatch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)

	require.Len(t, published, 1)
	assert.Len(t, published[0], 1)
	assert.Len(t, f.repo.List(), 1)
}

func TestCorruptExternalWriteKeepsMemory(t *testing.T) {
	var saved []byte
	f := newFixture(t, WithCorruptHandler(func(raw []byte) { saved = raw }))
	_, err := f.repo.Create("Read", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	require.NoError(t, f.repo.Flush())

	require.NoError(t, f.store.Set(context.Background(), constants.StorageKey, []byte("{not json")))

	_, err = f.repo.Create("Run", "", models.FrequencyDaily, "")
	require.NoError(t, err)

	assert.Equal(t, "{not json", string(saved))
	stored := f.persisted(t)
	require.Len(t, stored, 2)
	assert.Equal(t, "Read", stored[0].Title)
}

func TestUnreadableStoreKeepsMemory(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.Create("Read", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	require.NoError(t, f.repo.Flush())

	f.store.SetReadFailure(errors.New("disk busy"))
	_, err = f.repo.Create("Run", "", models.FrequencyDaily, "")
	require.NoError(t, err)
	f.store.SetReadFailure(nil)

	assert.Len(t, f.persisted(t), 2)
}

func TestResumeAfterPollingContextEnds(t *testing.T) {
	f := newFixture(t)
	h, err := f.repo.Create("Stretch", "", models.FrequencyMinutely, "")
	require.NoError(t, err)
	_, err = f.repo.Toggle(h.ID)
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	require.NoError(t, f.repo.StartPolling(ctx, time.Hour))
	stop()
	require.Eventually(t, func() bool { return !f.repo.poller.Running() }, 2*time.Second, 5*time.Millisecond)

	f.clock.Advance(3 * time.Minute)
	f.repo.Resume()

	got, _ := f.repo.Get(h.ID)
	assert.False(t, got.Completed, "Resume must refresh inline once the poller is gone")
	assert.Equal(t, 0, got.Streak)
}
