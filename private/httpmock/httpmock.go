// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package httpmock implements an http.RoundTripper returning canned responses.
package httpmock

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// Response represents a mocked HTTP response.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// Transport is a custom HTTP transport for handling mocked responses.
type Transport struct {
	mutex     sync.Mutex
	responses map[string][]Response
	requests  []*http.Request
}

// NewTransport creates a new instance of Transport.
func NewTransport() *Transport {
	return &Transport{
		responses: make(map[string][]Response),
	}
}

// AddResponse registers a response for a given URL or URL path.
// Multiple responses for the same key are returned in sequence.
func (t *Transport) AddResponse(url string, response Response) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.responses[url] = append(t.responses[url], response)
}

// Requests returns every request seen so far, in order.
func (t *Transport) Requests() []*http.Request {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return append([]*http.Request{}, t.requests...)
}

// RoundTrip implements the http.RoundTripper interface.
//
// Responses are matched by the full URL first and by the bare path second, so
// tests do not have to spell out query strings unless they care about them.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.requests = append(t.requests, req)

	for _, key := range []string{req.URL.String(), req.URL.Path} {
		responses, ok := t.responses[key]
		if !ok || len(responses) == 0 {
			continue
		}
		response := responses[0]
		t.responses[key] = responses[1:]

		headers := make(http.Header)
		for name, value := range response.Headers {
			headers.Set(name, value)
		}

		return &http.Response{
			StatusCode: response.StatusCode,
			Header:     headers,
			Body:       io.NopCloser(strings.NewReader(response.Body)),
			Request:    req,
		}, nil
	}

	return &http.Response{
		StatusCode: http.StatusNotFound,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("Not Found")),
		Request:    req,
	}, nil
}

// NewClient creates an *http.Client configured to use the Transport.
func NewClient() (*http.Client, *Transport) {
	transport := NewTransport()
	client := &http.Client{Transport: transport}
	return client, transport
}
