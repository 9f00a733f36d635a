/*
 * Copyright 2025 NVIDIA CORPORATION
 * SPDX-License-Identifier: Apache-2.0
 */

package httpreq

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetURL(t *testing.T) {
	testCases := []struct {
		name    string
		baseURL string
		paths   []string
		query   map[string]string
		url     string
		err     string
	}{
		{
			name:    "Case 1: bad base URL",
			baseURL: "123:",
			err:     `parse "123:": first path segment in URL cannot contain colon`,
		},
		{
			name:    "Case 2: single base URL",
			baseURL: "http://localhost",
			url:     "http://localhost",
		},
		{
			name:    "Case 3: GraphQL branch path",
			baseURL: "http://localhost:8000/",
			paths:   []string{"graphql", "main"},
			url:     "http://localhost:8000/graphql/main",
		},
		{
			name:    "Case 4: base URL with path and query",
			baseURL: "http://localhost/",
			paths:   []string{"a", "b/", "/c", "d/"},
			query:   map[string]string{"key1": "val1", "key2": "val2"},
			url:     "http://localhost/a/b/c/d?key1=val1&key2=val2",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := GetURL(tc.baseURL, tc.query, tc.paths...)
			if len(tc.err) != 0 {
				require.EqualError(t, err, tc.err)
			} else {
				require.Nil(t, err)
				require.Equal(t, tc.url, u)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		delay time.Duration
		ok    bool
	}{
		{
			name: "Case 1: no header",
		},
		{
			name:  "Case 2: seconds",
			value: "3",
			delay: 3 * time.Second,
			ok:    true,
		},
		{
			name:  "Case 3: capped",
			value: "86400",
			delay: maxRetryAfter,
			ok:    true,
		},
		{
			name:  "Case 4: garbage",
			value: "soon",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if len(tc.value) != 0 {
				resp.Header.Set("Retry-After", tc.value)
			}
			delay, ok := ParseRetryAfter(resp)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.delay, delay)
		})
	}
}

func TestDoWithRetries(t *testing.T) {
	backOff = 10 * time.Millisecond
	defer func() { backOff = defaultBackOff }()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()

	ctx := context.TODO()
	client := NewClient(time.Second, false, 0)
	body, err := client.DoWithRetries(ctx, GetRequestFunc(ctx, http.MethodGet, nil, nil, nil, server.URL))
	require.Nil(t, err)
	require.Equal(t, "done", string(body))
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoNoRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "denied", http.StatusUnauthorized)
	}))
	defer server.Close()

	ctx := context.TODO()
	client := NewClient(time.Second, false, 100)
	_, err := client.DoWithRetries(ctx, GetRequestFunc(ctx, http.MethodPost, nil, nil, []byte("{}"), server.URL))
	require.NotNil(t, err)
	require.Equal(t, http.StatusUnauthorized, err.Code())
	require.Equal(t, "denied\n", err.Error())
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDoTransportError(t *testing.T) {
	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer redirect.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closed.Close()

	testCases := []struct {
		name     string
		url      string
		redirect bool
		code     int
	}{
		{
			name: "Case 1: connection refused",
			url:  closed.URL,
			code: http.StatusBadGateway,
		},
		{
			name:     "Case 2: rejected redirect keeps the response status",
			url:      redirect.URL,
			redirect: true,
			code:     http.StatusFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.TODO()
			client := NewClient(time.Second, false, 0)
			if tc.redirect {
				client.client.CheckRedirect = func(*http.Request, []*http.Request) error { return errors.New("redirects are not followed") }
			}
			_, _, err := client.Do(ctx, GetRequestFunc(ctx, http.MethodGet, nil, nil, nil, tc.url))
			require.NotNil(t, err)
			require.Equal(t, tc.code, err.Code())
		})
	}
}
