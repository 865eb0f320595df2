package web

import (
	"net/http"
	"strconv"

	"github.com/conorfennell/leafcare/internal/care"
	"github.com/conorfennell/leafcare/internal/domain"
)

const maxActivityDays = 366

func (s *Server) handleGetProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.garden.Profile())
	}
}

func (s *Server) handlePutProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p domain.UserProfile
		if !decode(w, r, &p) {
			return
		}
		saved, err := s.garden.SaveProfile(r.Context(), p)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func (s *Server) handleListPlants() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.garden.Plants())
	}
}

func (s *Server) handleAddPlant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var np domain.NewPlant
		if !decode(w, r, &np) {
			return
		}
		p, err := s.garden.AddPlant(r.Context(), np)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func (s *Server) handleGetPlant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.garden.Plant(r.PathValue("id"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// handleRemovePlant deletes a plant and its reminders. Its completion
// history stays unless the garden is configured to purge it.
func (s *Server) handleRemovePlant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.garden.RemovePlant(r.Context(), r.PathValue("id")); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.garden.History(r.PathValue("id")))
	}
}

func (s *Server) handleActivity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := care.ActivityWindowDays
		if raw := r.URL.Query().Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxActivityDays {
				writeError(w, http.StatusBadRequest, "days must be between 1 and "+strconv.Itoa(maxActivityDays))
				return
			}
			days = n
		}
		writeJSON(w, http.StatusOK, s.garden.Activity(r.PathValue("id"), days, s.clock()))
	}
}

func (s *Server) handleCareLabels() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		labels, err := s.garden.CareLabels(r.PathValue("id"), s.clock())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, labels)
	}
}

func (s *Server) handleListReminders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.garden.Reminders())
	}
}

func (s *Server) handleAddReminder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var nr domain.NewReminder
		if !decode(w, r, &nr) {
			return
		}
		rem, err := s.garden.AddReminder(r.Context(), nr)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rem)
	}
}

func (s *Server) handleDeleteReminder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.garden.DeleteReminder(r.Context(), r.PathValue("id")); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleDueTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		due := s.garden.DueTasks(s.clock())
		s.metrics.SetDueTasks(len(due))
		writeJSON(w, http.StatusOK, due)
	}
}

type completeRequest struct {
	PlantID string          `json:"plantId"`
	Type    domain.TaskType `json:"type"`
}

// handleCompleteTask logs a completion. A stale plant id is accepted: the
// record is kept even though no plant carries it.
func (s *Server) handleCompleteTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req completeRequest
		if !decode(w, r, &req) {
			return
		}
		if err := s.garden.CompleteTask(r.Context(), req.PlantID, req.Type, s.clock()); err != nil {
			s.fail(w, r, err)
			return
		}
		s.metrics.TaskCompleted(string(req.Type))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListFavorites() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.garden.Favorites())
	}
}

func (s *Server) handleAddFavorite() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f domain.Favorite
		if !decode(w, r, &f) {
			return
		}
		saved, err := s.garden.AddFavorite(r.Context(), f)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

func (s *Server) handleRemoveFavorite() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.garden.RemoveFavorite(r.Context(), r.PathValue("id")); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
