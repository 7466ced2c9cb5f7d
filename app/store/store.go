// Package store provides SQLite persistence for exercises and their workout
// sets. All timestamps are stored as unix seconds in UTC.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sentinel errors, checked by callers with errors.Is
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Exercise is a named activity sets are logged against
type Exercise struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Set is one recorded performance of an exercise
type Set struct {
	ID          int64
	ExerciseID  int64
	Weight      float64
	Reps        int
	PerformedAt time.Time
}

// setRow is the raw sets table row, performed_at kept as unix seconds
type setRow struct {
	ID          int64   `db:"id"`
	ExerciseID  int64   `db:"exercise_id"`
	Weight      float64 `db:"weight"`
	Reps        int     `db:"reps"`
	PerformedAt int64   `db:"performed_at"`
}

func (r setRow) toSet() Set {
	return Set{
		ID:          r.ID,
		ExerciseID:  r.ExerciseID,
		Weight:      r.Weight,
		Reps:        r.Reps,
		PerformedAt: time.Unix(r.PerformedAt, 0).UTC(),
	}
}

const schema = `
	CREATE TABLE IF NOT EXISTS exercises (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE CHECK(length(name) <= 120)
	);
	CREATE TABLE IF NOT EXISTS sets (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		exercise_id  INTEGER NOT NULL REFERENCES exercises(id) ON DELETE CASCADE,
		weight       REAL NOT NULL,
		reps         INTEGER NOT NULL,
		performed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sets_exercise_performed ON sets(exercise_id, performed_at);
`

// Store implements persistence using SQLite
type Store struct {
	db   *sqlx.DB
	rptr *repeater.Repeater
}

// New opens the SQLite database at path and ensures the schema is in place.
// WAL mode and foreign key enforcement are set via DSN pragmas so every
// pooled connection gets them.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %q: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to apply schema: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	rptr := repeater.New(&strategy.Backoff{Repeats: 3, Duration: 50 * time.Millisecond, Factor: 2})
	return &Store{db: db, rptr: rptr}, nil
}

// CreateExercise inserts a new exercise, returns ErrConflict if the name is taken.
// Uniqueness is enforced by the store, not the caller.
func (s *Store) CreateExercise(ctx context.Context, name string) (Exercise, error) {
	var id int64
	err := s.rptr.Do(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `INSERT INTO exercises (name) VALUES (?)`, name)
		if err != nil {
			return classify(err)
		}
		id, err = res.LastInsertId()
		return err
	}, ErrConflict)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return Exercise{}, fmt.Errorf("exercise %q: %w", name, ErrConflict)
		}
		return Exercise{}, fmt.Errorf("failed to insert exercise %q: %w", name, err)
	}
	return Exercise{ID: id, Name: name}, nil
}

// GetExercise retrieves an exercise by id, returns ErrNotFound if absent
func (s *Store) GetExercise(ctx context.Context, id int64) (Exercise, error) {
	var ex Exercise
	err := s.db.GetContext(ctx, &ex, `SELECT id, name FROM exercises WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Exercise{}, fmt.Errorf("exercise %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Exercise{}, fmt.Errorf("failed to get exercise %d: %w", id, err)
	}
	return ex, nil
}

// ListExercises retrieves all exercises ordered by name ascending
func (s *Store) ListExercises(ctx context.Context) ([]Exercise, error) {
	exercises := []Exercise{}
	err := s.db.SelectContext(ctx, &exercises, `SELECT id, name FROM exercises ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list exercises: %w", err)
	}
	return exercises, nil
}

// DeleteExercise removes an exercise and all its sets in one transaction.
// Returns ErrNotFound if the exercise does not exist.
func (s *Store) DeleteExercise(ctx context.Context, id int64) error {
	err := s.rptr.Do(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback() // no-op after commit

		if _, err := tx.ExecContext(ctx, `DELETE FROM sets WHERE exercise_id = ?`, id); err != nil {
			return classify(err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM exercises WHERE id = ?`, id)
		if err != nil {
			return classify(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return tx.Commit()
	}, ErrNotFound)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("exercise %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete exercise %d: %w", id, err)
	}
	return nil
}

// AddSet inserts a workout set for an existing exercise. The foreign key
// rejects unknown exercise ids, reported as ErrNotFound. performedAt is
// truncated to seconds and stored as a UTC instant.
func (s *Store) AddSet(ctx context.Context, exerciseID int64, weight float64, reps int, performedAt time.Time) (Set, error) {
	ts := performedAt.Unix()
	var id int64
	err := s.rptr.Do(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO sets (exercise_id, weight, reps, performed_at) VALUES (?, ?, ?, ?)`,
			exerciseID, weight, reps, ts)
		if err != nil {
			return classify(err)
		}
		id, err = res.LastInsertId()
		return err
	}, ErrNotFound)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Set{}, fmt.Errorf("exercise %d: %w", exerciseID, ErrNotFound)
		}
		return Set{}, fmt.Errorf("failed to insert set for exercise %d: %w", exerciseID, err)
	}
	return Set{ID: id, ExerciseID: exerciseID, Weight: weight, Reps: reps, PerformedAt: time.Unix(ts, 0).UTC()}, nil
}

// ListSets retrieves all sets for an exercise, newest first. Ties on
// performed_at are broken by id descending for a stable order.
func (s *Store) ListSets(ctx context.Context, exerciseID int64) ([]Set, error) {
	rows := []setRow{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, exercise_id, weight, reps, performed_at FROM sets
		WHERE exercise_id = ? ORDER BY performed_at DESC, id DESC`, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sets for exercise %d: %w", exerciseID, err)
	}

	sets := make([]Set, 0, len(rows))
	for _, r := range rows {
		sets = append(sets, r.toSet())
	}
	return sets, nil
}

// MaxWeight returns the personal record (max weight) for an exercise.
// The second return value is false when the exercise has no sets.
func (s *Store) MaxWeight(ctx context.Context, exerciseID int64) (float64, bool, error) {
	var pr sql.NullFloat64
	err := s.db.GetContext(ctx, &pr, `SELECT MAX(weight) FROM sets WHERE exercise_id = ?`, exerciseID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get max weight for exercise %d: %w", exerciseID, err)
	}
	if !pr.Valid {
		return 0, false, nil
	}
	return pr.Float64, true, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// classify maps sqlite constraint failures to sentinel errors so the
// repeater treats them as terminal instead of retrying
func classify(err error) error {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return ErrConflict
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ErrNotFound
		}
	}
	return err
}
