package engine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/streaklog/internal/streak"
)

// memStore 为引擎测试提供的内存实现，覆盖 LogStore/AggregateStore/Catalog/Invalidator
type memStore struct {
	mu         sync.Mutex
	nextLogID  uint
	logs       map[uint]LogEntry
	habits     map[uint]Habit
	categories map[uint]Category
	users      map[uint]User
	dirty      map[Level]map[uint]bool

	saveHabitErr     error
	habitConflicts   int
	habitSaves       int
	categorySaveErr  error
	concurrentWriter func()
}

func newMemStore() *memStore {
	return &memStore{
		logs:       make(map[uint]LogEntry),
		habits:     make(map[uint]Habit),
		categories: make(map[uint]Category),
		users:      make(map[uint]User),
		dirty:      map[Level]map[uint]bool{LevelCategory: {}, LevelUser: {}},
	}
}

func (m *memStore) addUser(id uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = User{ID: id}
}

func (m *memStore) addCategory(id, userID uint, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[id] = Category{ID: id, UserID: userID, Name: name}
}

func (m *memStore) addHabit(h Habit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.TargetType == "" {
		h.TargetType = TargetBoolean
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, int(h.ID), time.UTC)
	}
	m.habits[h.ID] = h
}

func (m *memStore) FindLogsForHabit(_ context.Context, habitID uint) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LogEntry
	for _, entry := range m.logs {
		if entry.HabitID == habitID {
			out = append(out, entry)
		}
	}
	slices.SortFunc(out, func(a, b LogEntry) int { return b.Date.Compare(a.Date) })
	return out, nil
}

func (m *memStore) FindLogsInRange(_ context.Context, userID uint, start, end time.Time, habitIDs ...uint) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LogEntry
	for _, entry := range m.logs {
		if entry.UserID != userID || entry.Date.Before(start) || entry.Date.After(end) {
			continue
		}
		if len(habitIDs) > 0 && !slices.Contains(habitIDs, entry.HabitID) {
			continue
		}
		out = append(out, entry)
	}
	slices.SortFunc(out, func(a, b LogEntry) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return int(a.HabitID) - int(b.HabitID)
	})
	return out, nil
}

func (m *memStore) UpsertLog(_ context.Context, entry LogEntry) (LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	habit, ok := m.habits[entry.HabitID]
	if !ok {
		return LogEntry{}, ErrHabitNotFound
	}
	entry.UserID = habit.UserID
	entry.Date = streak.Normalize(entry.Date)
	for id, existing := range m.logs {
		if existing.HabitID == entry.HabitID && existing.Date.Equal(entry.Date) {
			entry.ID = id
		}
	}
	if entry.ID == 0 {
		m.nextLogID++
		entry.ID = m.nextLogID
	}
	m.logs[entry.ID] = entry
	habit.Version++
	m.habits[habit.ID] = habit
	return entry, nil
}

func (m *memStore) DeleteLog(_ context.Context, habitID, id uint) (LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.logs[id]
	if !ok || entry.HabitID != habitID {
		return LogEntry{}, ErrLogNotFound
	}
	delete(m.logs, id)
	habit := m.habits[entry.HabitID]
	habit.Version++
	m.habits[habit.ID] = habit
	return entry, nil
}

func (m *memStore) SaveHabitStats(_ context.Context, habitID uint, stats HabitStats, result streak.Result, expectedVersion int) (int, error) {
	if m.concurrentWriter != nil {
		m.concurrentWriter()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveHabitErr != nil {
		return 0, m.saveHabitErr
	}
	habit, ok := m.habits[habitID]
	if !ok {
		return 0, ErrHabitNotFound
	}
	if m.habitConflicts > 0 {
		m.habitConflicts--
		return 0, ErrConcurrentModification
	}
	if habit.Version != expectedVersion {
		return 0, ErrConcurrentModification
	}
	habit.Stats = stats
	habit.Streak = result
	habit.Version++
	m.habits[habitID] = habit
	m.habitSaves++
	return habit.Version, nil
}

func (m *memStore) SaveCategoryStats(_ context.Context, categoryID uint, stats CategoryStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.categorySaveErr != nil {
		return m.categorySaveErr
	}
	category, ok := m.categories[categoryID]
	if !ok {
		return ErrCategoryNotFound
	}
	category.Stats = stats
	m.categories[categoryID] = category
	return nil
}

func (m *memStore) SaveUserStats(_ context.Context, userID uint, stats UserStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.Stats = stats
	m.users[userID] = user
	return nil
}

func (m *memStore) Habit(_ context.Context, id uint) (Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	habit, ok := m.habits[id]
	if !ok {
		return Habit{}, ErrHabitNotFound
	}
	return habit, nil
}

func (m *memStore) Category(_ context.Context, id uint) (Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	category, ok := m.categories[id]
	if !ok {
		return Category{}, ErrCategoryNotFound
	}
	return category, nil
}

func (m *memStore) User(_ context.Context, id uint) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *memStore) HabitsByCategory(_ context.Context, categoryID uint) ([]Habit, error) {
	return m.filterHabits(func(h Habit) bool { return h.CategoryID == categoryID }), nil
}

func (m *memStore) HabitsByUser(_ context.Context, userID uint) ([]Habit, error) {
	return m.filterHabits(func(h Habit) bool { return h.UserID == userID }), nil
}

func (m *memStore) filterHabits(keep func(Habit) bool) []Habit {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Habit
	for _, habit := range m.habits {
		if keep(habit) {
			out = append(out, habit)
		}
	}
	slices.SortFunc(out, func(a, b Habit) int { return int(a.ID) - int(b.ID) })
	return out
}

func (m *memStore) CategoriesByUser(_ context.Context, userID uint) ([]Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Category
	for _, category := range m.categories {
		if category.UserID == userID {
			out = append(out, category)
		}
	}
	slices.SortFunc(out, func(a, b Category) int { return int(a.ID) - int(b.ID) })
	return out, nil
}

func (m *memStore) MarkDirty(_ context.Context, level Level, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty[level][id] = true
	return nil
}

func (m *memStore) IsDirty(_ context.Context, level Level, id uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty[level][id], nil
}

func (m *memStore) ClearDirty(_ context.Context, level Level, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dirty[level], id)
	return nil
}

var errDiskFull = errors.New("disk full")

func newTestEngine(store *memStore, today time.Time) *Engine {
	return New(store, store, store, store).WithClock(func() time.Time { return today })
}

func floatPtr(v float64) *float64 {
	return &v
}
