package web

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/pkondratev/gymlog/app/store"
)

// exerciseForm is the create-exercise input after trimming
type exerciseForm struct {
	Name string `validate:"required,max=120"`
}

// setForm is the add-set input after numeric parsing
type setForm struct {
	Weight float64 `validate:"gt=0"`
	Reps   int     `validate:"gt=0"`
}

// handleIndex renders the exercise list page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	exercises, err := s.store.ListExercises(r.Context())
	if err != nil {
		log.Printf("[ERROR] failed to list exercises: %v", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	data := TemplateData{
		Flash:       s.popFlash(w, r),
		Exercises:   exercises,
		CurrentYear: time.Now().Year(),
		Version:     s.version,
	}
	s.render(w, "index", "base", data)
}

// handleCreateExercise creates a new exercise from the submitted form.
// Every outcome logs one event and redirects back to the index with a flash.
func (s *Server) handleCreateExercise(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))

	if err := s.validate.Struct(&exerciseForm{Name: name}); err != nil {
		if name == "" {
			s.events.Log("CREATE_EXERCISE rejected: empty name")
			s.redirectWithFlash(w, r, "/", flashError, "Exercise name cannot be empty.")
			return
		}
		s.events.Log(fmt.Sprintf("CREATE_EXERCISE rejected: name too long (%d chars)", len(name)))
		s.redirectWithFlash(w, r, "/", flashError, "Exercise name must be at most 120 characters.")
		return
	}

	ex, err := s.store.CreateExercise(r.Context(), name)
	switch {
	case errors.Is(err, store.ErrConflict):
		s.events.Log(fmt.Sprintf("CREATE_EXERCISE duplicate name=%q", name))
		s.redirectWithFlash(w, r, "/", flashError, "Exercise already exists.")
	case err != nil:
		log.Printf("[WARN] failed to create exercise %q: %v", name, err)
		s.events.Log(fmt.Sprintf("CREATE_EXERCISE db_error name=%q err=%v", name, err))
		s.redirectWithFlash(w, r, "/", flashError, "Server error while adding the exercise.")
	default:
		s.events.Log(fmt.Sprintf("CREATE_EXERCISE success id=%d name=%q", ex.ID, name))
		s.redirectWithFlash(w, r, "/", flashSuccess, "Exercise added.")
	}
}

// handleExercise renders the detail page: exercise, set history newest
// first, and the personal record
func (s *Server) handleExercise(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	ex, err := s.store.GetExercise(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Printf("[ERROR] failed to get exercise %d: %v", id, err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	sets, err := s.store.ListSets(r.Context(), id)
	if err != nil {
		log.Printf("[ERROR] failed to list sets for exercise %d: %v", id, err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	pr, hasPR, err := s.store.MaxWeight(r.Context(), id)
	if err != nil {
		log.Printf("[ERROR] failed to get personal record for exercise %d: %v", id, err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	data := TemplateData{
		Flash:          s.popFlash(w, r),
		Exercise:       ex,
		Sets:           sets,
		PersonalRecord: pr,
		HasRecord:      hasPR,
		CurrentYear:    time.Now().Year(),
		Version:        s.version,
	}
	s.render(w, "exercise", "base", data)
}

// handleAddSet records a workout set for an existing exercise. Unknown ids
// fail with 404 before any parsing, all other outcomes redirect to the
// detail page with a flash.
func (s *Server) handleAddSet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if _, err := s.store.GetExercise(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		log.Printf("[ERROR] failed to get exercise %d: %v", id, err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	detailURL := fmt.Sprintf("/exercise/%d", id)

	rawWeight := strings.TrimSpace(r.FormValue("weight"))
	rawReps := strings.TrimSpace(r.FormValue("reps"))
	rawPerformed := strings.TrimSpace(r.FormValue("performed_at"))

	weight, werr := strconv.ParseFloat(rawWeight, 64)
	reps, rerr := strconv.Atoi(rawReps)
	if werr != nil || rerr != nil {
		s.events.Log(fmt.Sprintf("ADD_SET invalid_number ex_id=%d weight=%q reps=%q", id, rawWeight, rawReps))
		s.redirectWithFlash(w, r, detailURL, flashError, "Weight and reps must be numbers.")
		return
	}

	// ParseFloat accepts "Inf" and "NaN", gt=0 rejects NaN but not +Inf
	if err := s.validate.Struct(&setForm{Weight: weight, Reps: reps}); err != nil || math.IsInf(weight, 0) {
		s.events.Log(fmt.Sprintf("ADD_SET non_positive ex_id=%d weight=%v reps=%d", id, weight, reps))
		s.redirectWithFlash(w, r, detailURL, flashError, "Weight and reps must be greater than zero.")
		return
	}

	// performed_at is optional, defaults to now (UTC); explicit values come
	// from a datetime-local field and are interpreted in server-local time
	performedAt := time.Now().UTC()
	autoNow := true
	if rawPerformed != "" {
		parsed, err := parseLocalDateTime(rawPerformed)
		if err != nil {
			s.events.Log(fmt.Sprintf("ADD_SET invalid_datetime ex_id=%d performed_at=%q err=%v", id, rawPerformed, err))
			s.redirectWithFlash(w, r, detailURL, flashError, "Invalid date/time.")
			return
		}
		performedAt = parsed.UTC()
		autoNow = false
	}

	set, err := s.store.AddSet(r.Context(), id, weight, reps, performedAt)
	if err != nil {
		log.Printf("[WARN] failed to add set for exercise %d: %v", id, err)
		s.events.Log(fmt.Sprintf("ADD_SET db_error ex_id=%d err=%v", id, err))
		s.redirectWithFlash(w, r, detailURL, flashError, "Server error while saving the set.")
		return
	}

	when := set.PerformedAt.Format(time.RFC3339)
	if autoNow {
		when = "auto_now"
	}
	s.events.Log(fmt.Sprintf("ADD_SET success ex_id=%d weight=%v reps=%d performed_at=%s", id, weight, reps, when))
	s.redirectWithFlash(w, r, detailURL, flashSuccess, "Set added.")
}

// parseLocalDateTime parses a datetime-local form value, with or without seconds
func parseLocalDateTime(v string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date/time format %q", v)
}
