package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/2beens/notesapp/internal/auth"
	"github.com/2beens/notesapp/internal/middleware"
	"github.com/2beens/notesapp/internal/notes"
	"github.com/2beens/notesapp/internal/notestore"
	"github.com/2beens/notesapp/internal/objectstore"
	"github.com/2beens/notesapp/internal/telemetry/tracing"
	"github.com/2beens/notesapp/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type listResponse struct {
	Notes []notes.Note `json:"notes"`
	Total int          `json:"total"`
}

type Handler struct {
	provider       auth.Provider
	views          *Views
	maxUploadBytes int64
	sessionTTL     time.Duration
	secureCookies  bool
}

func NewHandler(
	provider auth.Provider,
	views *Views,
	maxUploadBytes int64,
	sessionTTL time.Duration,
	secureCookies bool,
) *Handler {
	return &Handler{
		provider:       provider,
		views:          views,
		maxUploadBytes: maxUploadBytes,
		sessionTTL:     sessionTTL,
		secureCookies:  secureCookies,
	}
}

// SetupRoutes registers the pages and the JSON API. loginLimiter wraps the sign in form submit.
func (handler *Handler) SetupRoutes(
	router *mux.Router,
	loginLimiter func(http.Handler) http.Handler,
	apiMiddleware ...mux.MiddlewareFunc,
) {
	router.HandleFunc("/login", handler.HandleLoginPage).Methods("GET").Name("login-page")
	router.Handle("/login", loginLimiter(http.HandlerFunc(handler.HandleLogin))).Methods("POST").Name("login")
	router.HandleFunc("/logout", handler.HandleLogout).Methods("POST").Name("logout")

	router.HandleFunc("/", handler.HandleIndex).Methods("GET").Name("index")
	router.HandleFunc("/notes", handler.HandleCreate).Methods("POST").Name("create-note")
	router.HandleFunc("/notes/{id}/delete", handler.HandleDelete).Methods("POST").Name("delete-note")

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/notes", handler.HandleListAPI).Methods("GET", "OPTIONS").Name("api-notes")
	apiRouter.Use(apiMiddleware...)
}

func (handler *Handler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, loginTemplate, http.StatusOK, loginPage{})
}

func (handler *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "webHandler.login")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		log.Errorf("login failed, parse form error: %s", err)
		http.Error(w, "parse form error", http.StatusBadRequest)
		return
	}

	credentials := auth.Credentials{
		Handle:   strings.TrimSpace(r.PostForm.Get("handle")),
		Password: r.PostForm.Get("password"),
	}
	if credentials.Handle == "" || credentials.Password == "" {
		render(w, loginTemplate, http.StatusBadRequest, loginPage{
			Handle: credentials.Handle,
			Error:  "username and password are required",
		})
		return
	}

	session, err := handler.provider.SignIn(ctx, credentials, time.Now())
	if err != nil {
		if errors.Is(err, auth.ErrWrongCredentials) {
			render(w, loginTemplate, http.StatusUnauthorized, loginPage{
				Handle: credentials.Handle,
				Error:  "wrong username or password",
			})
			return
		}
		log.Errorf("login [%s]: %s", credentials.Handle, err)
		render(w, loginTemplate, http.StatusBadGateway, loginPage{
			Handle: credentials.Handle,
			Error:  "sign in is not available right now, try again",
		})
		return
	}

	span.SetAttributes(attribute.String("user.handle", session.Owner))
	log.Printf("user [%s] signed in", session.Owner)

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   int(handler.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   handler.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (handler *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "webHandler.logout")
	defer span.End()

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := handler.provider.SignOut(ctx, session.Token); err != nil && !errors.Is(err, auth.ErrSessionNotFound) {
		log.Errorf("logout [%s]: %s", session.Owner, err)
	}
	handler.views.Drop(session.Token)

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   handler.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	log.Printf("user [%s] signed out", session.Owner)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleIndex renders the notes page. The first visit loads the list, ?refresh=1 reloads it.
func (handler *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "webHandler.index")
	defer span.End()

	view, session, ok := handler.sessionView(w, r)
	if !ok {
		return
	}

	var err error
	if r.URL.Query().Get("refresh") == "1" {
		err = view.Refresh(ctx)
	} else {
		err = view.Mount(ctx)
	}
	if err != nil {
		log.Errorf("index [%s], load notes: %s", session.Owner, err)
		handler.renderNotes(w, view, http.StatusBadGateway, "Could not load notes, try refreshing.")
		return
	}

	handler.renderNotes(w, view, http.StatusOK, "")
}

func (handler *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "webHandler.createNote")
	defer span.End()

	view, session, ok := handler.sessionView(w, r)
	if !ok {
		return
	}

	draft, err := handler.readDraft(r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			handler.renderNotes(w, view, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("The file is too large, the limit is %d MB.", handler.maxUploadBytes>>20))
			return
		}
		log.Errorf("create note [%s], read form: %s", session.Owner, err)
		http.Error(w, "parse form error", http.StatusBadRequest)
		return
	}

	created, err := view.Submit(ctx, draft)
	switch {
	case err == nil:
		log.Printf("new note added: [%s] [%s]", session.Owner, created.ID)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case created != nil:
		// stored, only the refresh after it failed
		log.Warnf("new note added: [%s] [%s], but refresh failed: %s", session.Owner, created.ID, err)
		http.Redirect(w, r, "/?refresh=1", http.StatusSeeOther)
	case errors.Is(err, notes.ErrInvalidDraft):
		handler.renderDraft(w, view, draft, http.StatusUnprocessableEntity, validationMessage(err))
	case errors.Is(err, objectstore.ErrInvalidName):
		handler.renderDraft(w, view, draft, http.StatusUnprocessableEntity, "The file name is not valid.")
	default:
		log.Errorf("failed to add new note [%s]: %s", session.Owner, err)
		handler.renderDraft(w, view, draft, http.StatusBadGateway, "Could not create the note, try again.")
	}
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "webHandler.deleteNote")
	defer span.End()

	view, session, ok := handler.sessionView(w, r)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	span.SetAttributes(attribute.String("notes.id", id))

	// the image key is taken from the loaded list, never from the request
	note, found := view.Note(id)
	if !found {
		if err := view.Mount(ctx); err != nil {
			log.Errorf("delete note [%s] [%s], load notes: %s", session.Owner, id, err)
			handler.renderNotes(w, view, http.StatusBadGateway, "Could not load notes, try refreshing.")
			return
		}
		note, _ = view.Note(id)
	}

	err := view.Delete(ctx, id, note.Image)
	switch {
	case err == nil:
		log.Printf("note deleted: [%s] [%s]", session.Owner, id)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, notes.ErrNotRefreshed):
		log.Warnf("note deleted: [%s] [%s], but refresh failed: %s", session.Owner, id, err)
		http.Redirect(w, r, "/?refresh=1", http.StatusSeeOther)
	case errors.Is(err, notestore.ErrNoteNotFound):
		handler.renderNotes(w, view, http.StatusNotFound, "The note does not exist anymore.")
	default:
		log.Errorf("failed to delete note [%s] [%s]: %s", session.Owner, id, err)
		handler.renderNotes(w, view, http.StatusBadGateway, "Could not delete the note, try again.")
	}
}

func (handler *Handler) HandleListAPI(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "webHandler.listAPI")
	defer span.End()

	view, session, ok := handler.sessionView(w, r)
	if !ok {
		return
	}

	if err := view.Refresh(ctx); err != nil {
		log.Errorf("list notes [%s]: %s", session.Owner, err)
		http.Error(w, "error, failed to get notes", http.StatusBadGateway)
		return
	}

	list := view.Notes()
	resJson, err := json.Marshal(listResponse{
		Notes: list,
		Total: len(list),
	})
	if err != nil {
		log.Errorf("marshal notes error: %s", err)
		http.Error(w, "marshal notes error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, resJson)
}

func (handler *Handler) sessionView(w http.ResponseWriter, r *http.Request) (*notes.View, *auth.Session, bool) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return nil, nil, false
	}
	return handler.views.Get(session), session, true
}

func (handler *Handler) renderNotes(w http.ResponseWriter, view *notes.View, statusCode int, errMessage string) {
	handler.renderDraft(w, view, view.Draft(), statusCode, errMessage)
}

// renderDraft shows the page with the given draft in the form, as submitted by this request.
func (handler *Handler) renderDraft(w http.ResponseWriter, view *notes.View, draft notes.Draft, statusCode int, errMessage string) {
	render(w, notesTemplate, statusCode, notesPage{
		DisplayName: view.Session().Profile.DisplayName(),
		Notes:       view.Notes(),
		Draft:       draft,
		Error:       errMessage,
	})
}

func (handler *Handler) readDraft(r *http.Request) (notes.Draft, error) {
	if err := r.ParseMultipartForm(handler.maxUploadBytes); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return notes.Draft{}, err
		}
		if err := r.ParseForm(); err != nil {
			return notes.Draft{}, err
		}
	}

	draft := notes.Draft{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return draft, nil
	}
	if err != nil {
		return notes.Draft{}, err
	}
	defer file.Close()

	draft.File, err = readFile(file, header)
	if err != nil {
		return notes.Draft{}, err
	}
	// an empty file input still posts a part without a name
	if draft.File.Name == "" && len(draft.File.Data) == 0 {
		draft.File = nil
	}

	return draft, nil
}

func readFile(file multipart.File, header *multipart.FileHeader) (*notes.File, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read uploaded file: %w", err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	return &notes.File{
		Name:        header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), notes.ErrInvalidDraft.Error()+": ")
	if msg == "" {
		return "The note is not valid."
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}
