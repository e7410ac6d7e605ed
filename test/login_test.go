//go:build integration_test || all_tests

package test

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) TestLogin() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cases := map[string]struct {
		handle             string
		password           string
		expectedStatusCode int
		expectedBody       string
	}{
		"good creds": {
			handle:             testUsername,
			password:           testPassword,
			expectedStatusCode: http.StatusSeeOther,
		},
		"bad password": {
			handle:             testUsername,
			password:           "bad-password",
			expectedStatusCode: http.StatusUnauthorized,
			expectedBody:       "wrong username or password",
		},
		"unknown user": {
			handle:             "nobody",
			password:           testPassword,
			expectedStatusCode: http.StatusUnauthorized,
			expectedBody:       "wrong username or password",
		},
		"missing password": {
			handle:             testUsername,
			expectedStatusCode: http.StatusBadRequest,
			expectedBody:       "username and password are required",
		},
	}

	for name, tc := range cases {
		s.Run(name, func() {
			resp := postForm(ctx, t, newClient(), "/login", url.Values{
				"handle":   {tc.handle},
				"password": {tc.password},
			})
			defer resp.Body.Close()

			require.Equal(t, tc.expectedStatusCode, resp.StatusCode)
			if tc.expectedBody != "" {
				respBytes, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Contains(t, string(respBytes), tc.expectedBody)
			}
		})
	}
}

func (s *IntegrationTestSuite) TestLoginThenLogout() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newClient()
	doLogin(ctx, t, client)

	indexBody, status := getPage(ctx, t, client, "/")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, indexBody, "Hello, Test User")

	resp := postForm(ctx, t, client, "/logout", url.Values{})
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	// the cookie is gone and the session with it
	req, err := http.NewRequestWithContext(ctx, "GET", serverEndpoint+"/", nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}
