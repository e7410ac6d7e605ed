package notestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2beens/notesapp/internal/auth"
	"github.com/2beens/notesapp/internal/notes"

	"github.com/google/uuid"
)

var _ notes.NoteStore = (*MemoryStore)(nil)

// MemoryStore keeps notes in process memory, per owner. Used in development and tests.
type MemoryStore struct {
	mutex   sync.RWMutex
	byOwner map[string]map[string]notes.Note

	nowFunc func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byOwner: make(map[string]map[string]notes.Note),
		nowFunc: time.Now,
	}
}

func (s *MemoryStore) List(_ context.Context, session *auth.Session) ([]notes.Note, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	list := make([]notes.Note, 0, len(s.byOwner[session.Owner]))
	for _, n := range s.byOwner[session.Owner] {
		list = append(list, n)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	return list, nil
}

func (s *MemoryStore) Create(_ context.Context, session *auth.Session, newNote notes.NewNote) (*notes.Note, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	name, description, owner := newNote.Name, newNote.Description, session.Owner
	var image *string
	if newNote.Image != nil {
		img := *newNote.Image
		image = &img
	}

	now := s.nowFunc()
	note := notes.Note{
		ID:          uuid.NewString(),
		Name:        &name,
		Description: &description,
		Image:       image,
		Owner:       &owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if s.byOwner[owner] == nil {
		s.byOwner[owner] = make(map[string]notes.Note)
	}
	s.byOwner[owner][note.ID] = note

	return &note, nil
}

func (s *MemoryStore) Delete(_ context.Context, session *auth.Session, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.byOwner[session.Owner][id]; !ok {
		return ErrNoteNotFound
	}
	delete(s.byOwner[session.Owner], id)

	return nil
}
