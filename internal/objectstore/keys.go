package objectstore

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/2beens/notesapp/internal/auth"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrForbiddenKey   = errors.New("object key outside of caller's space")
	ErrInvalidName    = errors.New("invalid object name")
)

// ObjectKey returns the key an object named name is stored under for the session's owner.
// Re-uploading the same name yields the same key, and overwrites the object.
func ObjectKey(session *auth.Session, name string) (string, error) {
	if session == nil || session.Owner == "" || strings.ContainsAny(session.Owner, "/\\") {
		return "", fmt.Errorf("%w: no owner", ErrForbiddenKey)
	}

	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", ErrInvalidName
	}

	return session.Owner + "/" + name, nil
}

func checkOwner(session *auth.Session, key string) error {
	if session == nil || session.Owner == "" {
		return ErrForbiddenKey
	}
	prefix := session.Owner + "/"
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return fmt.Errorf("%w: %s", ErrForbiddenKey, key)
	}
	name := key[len(prefix):]
	if name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: %s", ErrForbiddenKey, key)
	}
	return nil
}
