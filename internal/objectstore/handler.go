package objectstore

import (
	"errors"
	"net/http"
	"path"

	"github.com/2beens/notesapp/internal/telemetry/tracing"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Handler serves disk store objects behind signed links: GET /objects/{token}.
type Handler struct {
	store  *DiskStore
	signer *LinkSigner
}

func NewHandler(store *DiskStore, signer *LinkSigner) *Handler {
	return &Handler{
		store:  store,
		signer: signer,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/objects/{token}", handler.HandleGet).Methods("GET", "HEAD").Name("get-object")
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "objectHandler.get")
	defer span.End()

	token := mux.Vars(r)["token"]
	key, err := handler.signer.Verify(token)
	if err != nil {
		log.Tracef("object handler: %s", err)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("object.key", key))

	file, obj, err := handler.store.Open(key)
	if err != nil {
		if !errors.Is(err, ErrObjectNotFound) {
			log.Errorf("object handler, open [%s]: %s", key, err)
		}
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=60")
	http.ServeContent(w, r, path.Base(key), obj.CreatedAt, file)
}
