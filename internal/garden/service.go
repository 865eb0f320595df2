// Package garden holds the application's authoritative state: the user
// profile, plants, reminders, completion history and favorites.
//
// All mutations are serialized behind one mutex and flushed to the backing
// store in the order they complete. Scheduling rules live in package care;
// this package only applies them and persists the result.
package garden

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/conorfennell/leafcare/internal/care"
	"github.com/conorfennell/leafcare/internal/domain"
	"github.com/conorfennell/leafcare/internal/storage"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
)

// Options configures a Service.
type Options struct {
	Logger *slog.Logger
	// Clock returns the current instant in the user's time zone.
	Clock func() time.Time
	// PurgeHistoryOnRemove deletes a plant's completion log along with it.
	PurgeHistoryOnRemove bool
}

// Service is the top-level state container.
type Service struct {
	mu       sync.Mutex
	store    storage.Store
	log      *slog.Logger
	clock    func() time.Time
	validate *validator.Validate
	purge    bool

	profile     domain.UserProfile
	plants      []domain.Plant
	reminders   []domain.Reminder
	completions domain.Completions
	favorites   []domain.Favorite
}

// New creates an empty Service over store. Call Load to read persisted state.
func New(store storage.Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		store:       store,
		log:         opts.Logger,
		clock:       opts.Clock,
		validate:    newValidator(),
		purge:       opts.PurgeHistoryOnRemove,
		plants:      []domain.Plant{},
		reminders:   []domain.Reminder{},
		completions: domain.Completions{},
		favorites:   []domain.Favorite{},
	}
}

// Load replaces the in-memory state with what the store holds.
// Missing or malformed documents load as empty collections.
func (s *Service) Load(ctx context.Context) error {
	profile, err := decode[domain.UserProfile](ctx, s, KeyProfile)
	if err != nil {
		return err
	}
	plants, err := decode[[]domain.Plant](ctx, s, KeyGarden)
	if err != nil {
		return err
	}
	reminders, err := decode[[]domain.Reminder](ctx, s, KeyReminders)
	if err != nil {
		return err
	}
	completions, err := decode[domain.Completions](ctx, s, KeyCompletions)
	if err != nil {
		return err
	}
	favorites, err := decode[[]domain.Favorite](ctx, s, KeyFavorites)
	if err != nil {
		return err
	}

	if plants == nil {
		plants = []domain.Plant{}
	}
	if completions == nil {
		completions = domain.Completions{}
	}
	if favorites == nil {
		favorites = []domain.Favorite{}
	}
	deduped := care.DedupeReminders(reminders)
	if len(deduped) != len(reminders) {
		s.log.Warn("Dropped duplicate reminders", "count", len(reminders)-len(deduped))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
	s.plants = plants
	s.reminders = deduped
	s.completions = completions
	s.favorites = favorites

	s.log.Info("Garden loaded",
		"plants", len(plants),
		"reminders", len(deduped),
		"favorites", len(favorites),
	)
	return nil
}

// Profile returns the user profile.
func (s *Service) Profile() domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// SaveProfile replaces the user profile. CreatedAt is set once.
func (s *Service) SaveProfile(ctx context.Context, p domain.UserProfile) (domain.UserProfile, error) {
	if err := s.check(p); err != nil {
		return domain.UserProfile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p.CreatedAt = s.profile.CreatedAt
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.clock()
	}
	if err := s.flush(ctx, doc{KeyProfile, p}); err != nil {
		return domain.UserProfile{}, err
	}
	s.profile = p
	return p, nil
}

// Plants returns every plant in the garden.
func (s *Service) Plants() []domain.Plant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePlants(s.plants)
}

// Plant returns one plant by id.
func (s *Service) Plant(id string) (domain.Plant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.plantIndex(id)
	if i < 0 {
		return domain.Plant{}, ErrNotFound
	}
	return clonePlants(s.plants[i : i+1])[0], nil
}

// AddPlant commits a new plant to the garden.
func (s *Service) AddPlant(ctx context.Context, np domain.NewPlant) (domain.Plant, error) {
	if err := s.check(np); err != nil {
		return domain.Plant{}, err
	}
	p := domain.Plant{
		ID:             uuid.NewString(),
		Name:           np.Name,
		Species:        np.Species,
		Image:          np.Image,
		AddedAt:        s.clock(),
		LastCare:       map[domain.TaskType]time.Time{},
		Identification: np.Identification,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	plants := append(slices.Clone(s.plants), p)
	if err := s.flush(ctx, doc{KeyGarden, plants}); err != nil {
		return domain.Plant{}, err
	}
	s.plants = plants
	s.log.Info("Plant added", "plant_id", p.ID, "name", p.Name)
	return p, nil
}

// RemovePlant deletes a plant and every reminder attached to it.
// It returns ErrNotFound only when neither existed.
func (s *Service) RemovePlant(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plants := make([]domain.Plant, 0, len(s.plants))
	for _, p := range s.plants {
		if p.ID != id {
			plants = append(plants, p)
		}
	}
	reminders := care.RemovePlant(s.reminders, id)
	if len(plants) == len(s.plants) && len(reminders) == len(s.reminders) {
		return ErrNotFound
	}

	completions := care.HistoryAfterPlantRemoval(s.completions, id, s.purge)
	if err := s.flush(ctx,
		doc{KeyGarden, plants},
		doc{KeyReminders, reminders},
		doc{KeyCompletions, completions},
	); err != nil {
		return err
	}
	s.plants, s.reminders, s.completions = plants, reminders, completions
	s.log.Info("Plant removed", "plant_id", id, "purged_history", s.purge)
	return nil
}

// Reminders returns every reminder.
func (s *Service) Reminders() []domain.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.reminders)
}

// AddReminder creates a reminder, or updates the existing one for the same
// plant and task type so that at most one exists per pair.
func (s *Service) AddReminder(ctx context.Context, nr domain.NewReminder) (domain.Reminder, error) {
	if err := s.check(nr); err != nil {
		return domain.Reminder{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plantIndex(nr.PlantID) < 0 {
		return domain.Reminder{}, ErrNotFound
	}

	reminders := slices.Clone(s.reminders)
	var saved domain.Reminder
	i := slices.IndexFunc(reminders, func(r domain.Reminder) bool {
		return r.PlantID == nr.PlantID && r.Type == nr.Type
	})
	if i >= 0 {
		reminders[i].Frequency = nr.Frequency
		reminders[i].Time = nr.Time
		saved = reminders[i]
	} else {
		saved = domain.Reminder{
			ID:        uuid.NewString(),
			PlantID:   nr.PlantID,
			Type:      nr.Type,
			Frequency: nr.Frequency,
			Time:      nr.Time,
		}
		reminders = append(reminders, saved)
	}

	if err := s.flush(ctx, doc{KeyReminders, reminders}); err != nil {
		return domain.Reminder{}, err
	}
	s.reminders = reminders
	return saved, nil
}

// DeleteReminder removes one reminder by id.
func (s *Service) DeleteReminder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.reminders, func(r domain.Reminder) bool { return r.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	reminders := slices.Delete(slices.Clone(s.reminders), i, i+1)
	if err := s.flush(ctx, doc{KeyReminders, reminders}); err != nil {
		return err
	}
	s.reminders = reminders
	return nil
}

// DueTasks lists reminders not yet handled on now's calendar date.
// It never mutates state, so it is safe to poll.
func (s *Service) DueTasks(now time.Time) []domain.DueTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return care.ListDueTasks(s.reminders, s.plants, care.CalendarDate(now))
}

// CompleteTask records that task was done on plantID at now.
func (s *Service) CompleteTask(ctx context.Context, plantID string, task domain.TaskType, now time.Time) error {
	if plantID == "" || !task.Valid() {
		return ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	completions, reminders, plants := care.CompleteTask(s.completions, s.reminders, s.plants, plantID, task, now)
	if err := s.flush(ctx,
		doc{KeyCompletions, completions},
		doc{KeyReminders, reminders},
		doc{KeyGarden, plants},
	); err != nil {
		return err
	}
	s.completions, s.reminders, s.plants = completions, reminders, plants
	s.log.Debug("Task completed", "plant_id", plantID, "task", task)
	return nil
}

// History returns plantID's completion log, most recent first.
func (s *Service) History(plantID string) []domain.CompletionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.completions[plantID]
	if history == nil {
		return []domain.CompletionRecord{}
	}
	return slices.Clone(history)
}

// Activity returns the activity grid for the last days calendar days.
func (s *Service) Activity(plantID string, days int, now time.Time) []domain.DaySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return care.ComputeActivityGrid(plantID, s.completions, days, now)
}

// CareLabels returns a relative "last done" label for each task type the
// plant has a record for.
func (s *Service) CareLabels(plantID string, now time.Time) (map[domain.TaskType]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.plantIndex(plantID)
	if i < 0 {
		return nil, ErrNotFound
	}
	labels := make(map[domain.TaskType]string, len(s.plants[i].LastCare))
	for task, last := range s.plants[i].LastCare {
		if label, ok := care.RelativeCareLabel(last, now); ok {
			labels[task] = label
		}
	}
	return labels, nil
}

// Favorites returns every bookmarked identification.
func (s *Service) Favorites() []domain.Favorite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.favorites)
}

// AddFavorite bookmarks an identification.
func (s *Service) AddFavorite(ctx context.Context, f domain.Favorite) (domain.Favorite, error) {
	if err := s.check(f); err != nil {
		return domain.Favorite{}, err
	}
	f.ID = uuid.NewString()
	f.SavedAt = s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()
	favorites := append(slices.Clone(s.favorites), f)
	if err := s.flush(ctx, doc{KeyFavorites, favorites}); err != nil {
		return domain.Favorite{}, err
	}
	s.favorites = favorites
	return f, nil
}

// RemoveFavorite deletes a bookmark by id.
func (s *Service) RemoveFavorite(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.favorites, func(f domain.Favorite) bool { return f.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	favorites := slices.Delete(slices.Clone(s.favorites), i, i+1)
	if err := s.flush(ctx, doc{KeyFavorites, favorites}); err != nil {
		return err
	}
	s.favorites = favorites
	return nil
}

func (s *Service) plantIndex(id string) int {
	return slices.IndexFunc(s.plants, func(p domain.Plant) bool { return p.ID == id })
}

func clonePlants(in []domain.Plant) []domain.Plant {
	out := slices.Clone(in)
	for i := range out {
		out[i].LastCare = maps.Clone(out[i].LastCare)
	}
	return out
}
