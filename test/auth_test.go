//go:build integration_test || all_tests

package test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func postForm(ctx context.Context, t *testing.T, client *http.Client, path string, values url.Values) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, "POST", serverEndpoint+path, strings.NewReader(values.Encode()))
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// doLogin signs the client in, the session cookie ends up in its jar.
func doLogin(ctx context.Context, t *testing.T, client *http.Client) {
	t.Helper()
	resp := postForm(ctx, t, client, "/login", url.Values{
		"handle":   {testUsername},
		"password": {testPassword},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}
