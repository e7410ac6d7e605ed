package notes

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidDraft = errors.New("invalid draft")

// File is an attachment picked in the note form.
type File struct {
	Name        string `form:"file" validate:"required"`
	ContentType string
	Data        []byte
}

// Draft is the not yet submitted note input.
type Draft struct {
	Title       string `form:"title" validate:"required"`
	Description string `form:"description" validate:"required"`
	File        *File  `form:"file"`
}

func (d Draft) IsEmpty() bool {
	return d.Title == "" && d.Description == "" && d.File == nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields the way they are named in the form
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get("form")
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	return v
}

// Validate checks the draft can be submitted. The returned error wraps ErrInvalidDraft.
func (d Draft) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %s", ErrInvalidDraft, err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatFieldError(e))
	}
	return fmt.Errorf("%w: %s", ErrInvalidDraft, strings.Join(messages, "; "))
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	default:
		return fmt.Sprintf("%s is invalid", e.Field())
	}
}
