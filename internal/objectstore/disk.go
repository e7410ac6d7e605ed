package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/2beens/notesapp/internal/auth"
	"github.com/2beens/notesapp/internal/notes"
	"github.com/2beens/notesapp/internal/telemetry/tracing"
	"github.com/2beens/notesapp/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// json file with all stored objects metadata, kept within the root path
	indexFileName = "objects-index.json"
)

var _ notes.ObjectStore = (*DiskStore)(nil)

// StoredObject is the index entry of one object kept by the DiskStore.
type StoredObject struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// DiskStore keeps objects as files under a root directory, one subdirectory per owner.
// Display URLs point back to this service and carry a signed, expiring token.
type DiskStore struct {
	rootPath      string
	publicBaseURL string
	signer        *LinkSigner

	mutex sync.RWMutex
	index map[string]*StoredObject
}

func NewDiskStore(rootPath, publicBaseURL string, signer *LinkSigner) (*DiskStore, error) {
	if rootPath == "" {
		return nil, errors.New("root path cannot be empty")
	}
	if signer == nil {
		return nil, errors.New("link signer cannot be nil")
	}

	exists, err := pkg.PathExists(rootPath, true)
	if err != nil {
		return nil, fmt.Errorf("check root path %s: %w", rootPath, err)
	}
	if !exists {
		if err := os.MkdirAll(rootPath, 0755); err != nil {
			return nil, fmt.Errorf("create root path %s: %w", rootPath, err)
		}
		log.Debugf("disk store: root path created: %s", rootPath)
	}

	index, err := loadIndex(rootPath)
	if err != nil {
		return nil, err
	}

	log.Debugf("disk store: loaded %d objects from %s", len(index), rootPath)

	return &DiskStore{
		rootPath:      rootPath,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		signer:        signer,
		index:         index,
	}, nil
}

func (ds *DiskStore) Upload(
	ctx context.Context,
	session *auth.Session,
	name, contentType string,
	data []byte,
) (_ string, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "diskStore.upload")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	key, err := ObjectKey(session, name)
	if err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String("object.key", key))
	span.SetAttributes(attribute.Int("object.size", len(data)))

	filePath := ds.filePath(key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("create owner dir: %w", err)
	}

	if err := writeFileAtomic(filePath, data); err != nil {
		return "", err
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	ds.index[key] = &StoredObject{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   time.Now(),
	}
	if err := ds.saveIndex(); err != nil {
		return "", fmt.Errorf("object stored, but failed to save index: %w", err)
	}

	log.Debugf("disk store: object [%s] stored", key)

	return key, nil
}

func (ds *DiskStore) ResolveURL(ctx context.Context, session *auth.Session, key string) (_ string, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "diskStore.resolveURL")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := checkOwner(session, key); err != nil {
		return "", err
	}

	// the link is signed even when the object is gone, the handler answers 404 for it
	token, err := ds.signer.Sign(key)
	if err != nil {
		return "", err
	}

	return ds.publicBaseURL + "/objects/" + token, nil
}

// Remove deletes the object. Removing a missing key is not an error.
func (ds *DiskStore) Remove(ctx context.Context, session *auth.Session, key string) (err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "diskStore.remove")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := checkOwner(session, key); err != nil {
		return err
	}

	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if _, ok := ds.index[key]; !ok {
		log.Debugf("disk store: remove [%s], not stored", key)
		return nil
	}

	if err := os.Remove(ds.filePath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove object: %w", err)
	}

	delete(ds.index, key)
	if err := ds.saveIndex(); err != nil {
		return fmt.Errorf("object removed, but failed to save index: %w", err)
	}

	log.Debugf("disk store: object [%s] removed", key)

	return nil
}

// Open returns the stored object, for serving it. The caller closes the file.
func (ds *DiskStore) Open(key string) (*os.File, *StoredObject, error) {
	ds.mutex.RLock()
	obj, ok := ds.index[key]
	ds.mutex.RUnlock()
	if !ok {
		return nil, nil, ErrObjectNotFound
	}

	f, err := os.Open(ds.filePath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, err
	}

	return f, obj, nil
}

func (ds *DiskStore) filePath(key string) string {
	return filepath.Join(ds.rootPath, filepath.FromSlash(key))
}

// writeFileAtomic writes into a unique temp file next to path and renames it in place,
// so readers never see a partial file and concurrent writers never share one.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move %s in place: %w", path, err)
	}

	return nil
}

// saveIndex must be called with the write lock held.
func (ds *DiskStore) saveIndex() error {
	indexJson, err := json.Marshal(ds.index)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	return writeFileAtomic(filepath.Join(ds.rootPath, indexFileName), indexJson)
}

func loadIndex(rootPath string) (map[string]*StoredObject, error) {
	index := make(map[string]*StoredObject)

	indexJson, err := os.ReadFile(filepath.Join(rootPath, indexFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return index, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if len(bytes.TrimSpace(indexJson)) == 0 {
		return index, nil
	}

	if err := json.Unmarshal(indexJson, &index); err != nil {
		return nil, fmt.Errorf("unmarshal index: %w", err)
	}

	return index, nil
}
