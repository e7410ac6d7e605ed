package notestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2beens/notesapp/internal/auth"
	"github.com/2beens/notesapp/internal/notes"
	"github.com/2beens/notesapp/internal/telemetry/tracing"
	"github.com/2beens/notesapp/pkg"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ notes.NoteStore = (*PostgresStore)(nil)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var noteColumns = []string{"id", "owner", "name", "description", "image", "created_at", "updated_at"}

type PostgresStore struct {
	db *pgxpool.Pool

	newID   func() string
	nowFunc func() time.Time
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		db:      db,
		newID:   uuid.NewString,
		nowFunc: time.Now,
	}
}

func (s *PostgresStore) List(ctx context.Context, session *auth.Session) (_ []notes.Note, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postgresStore.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	query, args, err := psql.
		Select(noteColumns...).
		From("note").
		Where(squirrel.Eq{"owner": session.Owner}).
		OrderBy("created_at DESC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	list := []notes.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read notes: %w", err)
	}

	return list, nil
}

func (s *PostgresStore) Create(ctx context.Context, session *auth.Session, newNote notes.NewNote) (_ *notes.Note, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postgresStore.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	now := s.nowFunc().UTC()
	query, args, err := psql.
		Insert("note").
		Columns(noteColumns...).
		Values(s.newID(), session.Owner, newNote.Name, newNote.Description, newNote.Image, now, now).
		Suffix("RETURNING " + strings.Join(noteColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	note, err := scanNote(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, fmt.Errorf("insert note: %w", ErrNoteExists)
		}
		return nil, fmt.Errorf("insert note: %w", err)
	}

	return note, nil
}

func (s *PostgresStore) Delete(ctx context.Context, session *auth.Session, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postgresStore.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if _, err := uuid.Parse(id); err != nil {
		// never stored, so not found
		return ErrNoteNotFound
	}

	query, args, err := psql.
		Delete("note").
		Where(squirrel.Eq{"id": id, "owner": session.Owner}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoteNotFound
	}

	return nil
}

func scanNote(row pgx.Row) (*notes.Note, error) {
	var note notes.Note
	var owner string
	if err := row.Scan(
		&note.ID,
		&owner,
		&note.Name,
		&note.Description,
		&note.Image,
		&note.CreatedAt,
		&note.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("scan note: %w", err)
	}
	note.Owner = &owner
	return &note, nil
}
