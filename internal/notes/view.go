package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/notesapp/internal/auth"
	"github.com/2beens/notesapp/internal/telemetry/metrics"
	"github.com/2beens/notesapp/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ErrNotRefreshed marks a mutation that went through, while the list refresh after it failed.
var ErrNotRefreshed = errors.New("notes list not refreshed")

// View holds the notes list snapshot and the draft of one signed in session,
// and turns user actions into note store and object store calls.
//
// Create and Delete on the same View run one at a time. Refresh may run next
// to them; the last finished refresh replaces the snapshot.
type View struct {
	session     *auth.Session
	noteStore   NoteStore
	objectStore ObjectStore
	metrics     *metrics.Manager

	mountOnce  sync.Once
	mutationMu sync.Mutex

	stateMu sync.RWMutex
	notes   []Note
	draft   Draft
	// bumped on every draft change, so a finished submit clears only its own draft
	draftSeq uint64
}

func NewView(
	session *auth.Session,
	noteStore NoteStore,
	objectStore ObjectStore,
	metrics *metrics.Manager,
) *View {
	return &View{
		session:     session,
		noteStore:   noteStore,
		objectStore: objectStore,
		metrics:     metrics,
	}
}

func (v *View) Session() *auth.Session {
	return v.session
}

// Mount refreshes the list the first time it is called, later calls do nothing.
func (v *View) Mount(ctx context.Context) error {
	var err error
	v.mountOnce.Do(func() {
		err = v.Refresh(ctx)
	})
	return err
}

// Refresh fetches all notes and resolves the display URL of each attached image.
// Any failure leaves the previous snapshot in place.
func (v *View) Refresh(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notesView.refresh")
	span.SetAttributes(attribute.String("notes.owner", v.session.Owner))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	start := time.Now()
	defer func() {
		v.metrics.HistRefreshDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			v.metrics.CounterRefreshFailures.Inc()
		}
	}()

	list, err := v.noteStore.List(ctx, v.session)
	if err != nil {
		return fmt.Errorf("list notes: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	for i := range list {
		list[i].ImageURL = ""
		if !list[i].HasImage() {
			continue
		}

		note := &list[i]
		g.Go(func() error {
			url, err := v.objectStore.ResolveURL(gCtx, v.session, *note.Image)
			if err != nil {
				return fmt.Errorf("resolve image url of note %s: %w", note.ID, err)
			}
			note.ImageURL = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	span.SetAttributes(attribute.Int("notes.count", len(list)))

	v.stateMu.Lock()
	v.notes = list
	v.stateMu.Unlock()

	return nil
}

// Notes returns a copy of the current snapshot, in store order.
func (v *View) Notes() []Note {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()

	notes := make([]Note, len(v.notes))
	copy(notes, v.notes)
	return notes
}

// Note returns the note with the given id from the current snapshot.
func (v *View) Note(id string) (Note, bool) {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()

	for _, n := range v.notes {
		if n.ID == id {
			return n, true
		}
	}
	return Note{}, false
}

func (v *View) SetDraft(d Draft) {
	v.setDraft(d)
}

func (v *View) setDraft(d Draft) uint64 {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	v.draft = d
	v.draftSeq++
	return v.draftSeq
}

func (v *View) currentDraft() (Draft, uint64) {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return v.draft, v.draftSeq
}

// clearDraft clears the draft unless it changed after seq was taken.
func (v *View) clearDraft(seq uint64) {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	if v.draftSeq != seq {
		return
	}
	v.draft = Draft{}
	v.draftSeq++
}

func (v *View) Draft() Draft {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return v.draft
}

// Create submits the current draft. An attached file is uploaded first and the
// note references the key returned by the object store. On success the draft
// is cleared and the list refreshed, on any failure the draft stays as it was.
func (v *View) Create(ctx context.Context) (*Note, error) {
	v.mutationMu.Lock()
	defer v.mutationMu.Unlock()

	draft, seq := v.currentDraft()
	return v.create(ctx, draft, seq)
}

// Submit stores d as the draft and creates a note from it in one step, so that
// overlapping submits on the same view each create the note they were given.
func (v *View) Submit(ctx context.Context, d Draft) (*Note, error) {
	v.mutationMu.Lock()
	defer v.mutationMu.Unlock()

	seq := v.setDraft(d)
	return v.create(ctx, d, seq)
}

// create must be called with mutationMu held. When only the refresh fails the
// created note is returned together with an error wrapping ErrNotRefreshed.
func (v *View) create(ctx context.Context, draft Draft, draftSeq uint64) (_ *Note, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notesView.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := draft.Validate(); err != nil {
		return nil, err
	}

	var imageKey *string
	if draft.File != nil {
		key, err := v.objectStore.Upload(ctx, v.session, draft.File.Name, draft.File.ContentType, draft.File.Data)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", draft.File.Name, err)
		}
		imageKey = &key
		span.SetAttributes(attribute.String("notes.image", key))
	}

	created, err := v.noteStore.Create(ctx, v.session, NewNote{
		Name:        draft.Title,
		Description: draft.Description,
		Image:       imageKey,
	})
	if err != nil {
		if imageKey != nil {
			v.orphaned(*imageKey, metrics.OrphanCauseCreateFailed, err)
		}
		return nil, fmt.Errorf("create note: %w", err)
	}

	v.metrics.CounterNotesCreated.Inc()
	log.Debugf("notes view [%s]: note created: %s", v.session.Owner, created.ID)

	v.clearDraft(draftSeq)

	if err := v.Refresh(ctx); err != nil {
		return created, fmt.Errorf("%w: %w", ErrNotRefreshed, err)
	}

	return created, nil
}

// Delete removes the note record and then its image, if any. A failed image
// removal does not fail the operation, the list is refreshed either way. A
// failed refresh is reported wrapped in ErrNotRefreshed.
func (v *View) Delete(ctx context.Context, id string, image *string) (err error) {
	v.mutationMu.Lock()
	defer v.mutationMu.Unlock()

	ctx, span := tracing.GlobalTracer.Start(ctx, "notesView.delete")
	span.SetAttributes(attribute.String("notes.id", id))
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := v.noteStore.Delete(ctx, v.session, id); err != nil {
		return fmt.Errorf("delete note %s: %w", id, err)
	}

	v.metrics.CounterNotesDeleted.Inc()
	log.Debugf("notes view [%s]: note deleted: %s", v.session.Owner, id)

	if image != nil && *image != "" {
		if err := v.objectStore.Remove(ctx, v.session, *image); err != nil {
			v.orphaned(*image, metrics.OrphanCauseRemoveFailed, err)
		}
	}

	if err := v.Refresh(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotRefreshed, err)
	}

	return nil
}

func (v *View) orphaned(key, cause string, err error) {
	v.metrics.CounterOrphanedObjects.WithLabelValues(cause).Inc()
	log.WithFields(log.Fields{
		"owner": v.session.Owner,
		"key":   key,
		"cause": cause,
	}).Errorf("notes view: object orphaned: %s", err)
}
