package notes

import "time"

// Note is a single note record as returned by a NoteStore.
// ImageURL is never persisted, the View resolves it from Image on every refresh.
type Note struct {
	ID          string    `json:"id"`
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Image       *string   `json:"image,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Owner       *string   `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (n Note) HasImage() bool {
	return n.Image != nil && *n.Image != ""
}

// NewNote is the input of NoteStore.Create.
type NewNote struct {
	Name        string
	Description string
	Image       *string
}
