package notes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDraft_Validate(t *testing.T) {
	testCases := []struct {
		name        string
		draft       Draft
		expectedErr string
	}{
		{
			name:  "valid without file",
			draft: Draft{Title: "Groceries", Description: "Milk, eggs"},
		},
		{
			name:  "valid with file",
			draft: Draft{Title: "Trip", Description: "Paris", File: &File{Name: "photo.jpg", Data: []byte("jpg")}},
		},
		{
			name:        "missing title",
			draft:       Draft{Description: "Paris"},
			expectedErr: "title is required",
		},
		{
			name:        "missing both",
			draft:       Draft{},
			expectedErr: "title is required; description is required",
		},
		{
			name:        "file without name",
			draft:       Draft{Title: "Trip", Description: "Paris", File: &File{Data: []byte("jpg")}},
			expectedErr: "file is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.draft.Validate()
			if tc.expectedErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidDraft)
			assert.Contains(t, err.Error(), tc.expectedErr)
		})
	}
}

func TestDraft_IsEmpty(t *testing.T) {
	assert.True(t, Draft{}.IsEmpty())
	assert.False(t, Draft{Title: "t"}.IsEmpty())
	assert.False(t, Draft{File: &File{Name: "a.png"}}.IsEmpty())
}
