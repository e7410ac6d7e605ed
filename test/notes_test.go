//go:build integration_test || all_tests

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"testing"

	"github.com/2beens/notesapp/internal/notes"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notesListResponse struct {
	Notes []notes.Note `json:"notes"`
	Total int          `json:"total"`
}

func getPage(ctx context.Context, t *testing.T, client *http.Client, path string) (string, int) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, "GET", serverEndpoint+path, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(respBytes), resp.StatusCode
}

func listNotes(ctx context.Context, t *testing.T, client *http.Client) notesListResponse {
	t.Helper()
	body, status := getPage(ctx, t, client, "/api/notes")
	require.Equal(t, http.StatusOK, status)

	var notesResp notesListResponse
	require.NoError(t, json.Unmarshal([]byte(body), &notesResp))
	return notesResp
}

func createNote(ctx context.Context, t *testing.T, client *http.Client, title, description string, fileName string, fileData []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", title))
	require.NoError(t, mw.WriteField("description", description))
	if fileName != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(fileData)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequestWithContext(ctx, "POST", serverEndpoint+"/notes", &body)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func (s *IntegrationTestSuite) TestNotes_NotSignedIn() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, status := getPage(ctx, t, newClient(), "/api/notes")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func (s *IntegrationTestSuite) TestNotes_CreateListDelete() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newClient()
	doLogin(ctx, t, client)
	before := listNotes(ctx, t, client).Total

	// plain note
	title := gofakeit.Sentence(3)
	description := gofakeit.Sentence(8)
	resp := createNote(ctx, t, client, title, description, "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	// note with an image
	png := gofakeit.ImagePng(8, 8)
	resp = createNote(ctx, t, client, "With image", "look at this", "pic.png", png)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	list := listNotes(ctx, t, client)
	require.Equal(t, before+2, list.Total)
	withImage := list.Notes[0]
	plain := list.Notes[1]

	assert.Equal(t, "With image", *withImage.Name)
	require.NotNil(t, withImage.Image)
	assert.Equal(t, testUsername+"/pic.png", *withImage.Image)
	require.NotEmpty(t, withImage.ImageURL)
	assert.Equal(t, title, *plain.Name)
	assert.Equal(t, description, *plain.Description)
	assert.Nil(t, plain.Image)
	assert.Empty(t, plain.ImageURL)

	// the display link serves the image without a session
	imageResp, err := newClient().Get(withImage.ImageURL)
	require.NoError(t, err)
	imageBytes, err := io.ReadAll(imageResp.Body)
	imageResp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, imageResp.StatusCode)
	assert.Equal(t, png, imageBytes)

	indexBody, status := getPage(ctx, t, client, "/")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, indexBody, "With image")
	assert.Contains(t, indexBody, "<img")

	// delete the image note, its object goes with it
	resp = postForm(ctx, t, client, "/notes/"+withImage.ID+"/delete", url.Values{})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	imageResp, err = newClient().Get(withImage.ImageURL)
	require.NoError(t, err)
	imageResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, imageResp.StatusCode)

	resp = postForm(ctx, t, client, "/notes/"+plain.ID+"/delete", url.Values{})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	assert.Equal(t, before, listNotes(ctx, t, client).Total)

	// deleting again finds nothing
	resp = postForm(ctx, t, client, "/notes/"+plain.ID+"/delete", url.Values{})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func (s *IntegrationTestSuite) TestNotes_CreateInvalid() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newClient()
	doLogin(ctx, t, client)
	before := listNotes(ctx, t, client).Total

	resp := createNote(ctx, t, client, "only a title", "", "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(respBytes), "Description is required.")
	assert.Contains(t, string(respBytes), `value="only a title"`)

	assert.Equal(t, before, listNotes(ctx, t, client).Total)
}
