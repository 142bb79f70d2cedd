// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package collector

import (
	"encoding/json"
	"os"

	"github.com/go-rod/rod/lib/proto"
)

// sessionCookie matches the JSON devtools cookie exporters produce, one
// object per cookie.
type sessionCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// loadCookies reads a captured session cookie file and converts it into
// browser cookie parameters.
func loadCookies(path string) ([]*proto.NetworkCookieParam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Error.New("reading session cookies %q: %v", path, err)
	}
	var cookies []sessionCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, Error.New("unparseable session cookies %q: %v", path, err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for i, cookie := range cookies {
		if cookie.Name == "" {
			return nil, Error.New("session cookie %d in %q has no name", i, path)
		}
		param := &proto.NetworkCookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			HTTPOnly: cookie.HTTPOnly,
			Secure:   cookie.Secure,
		}
		if cookie.Expires > 0 {
			param.Expires = proto.TimeSinceEpoch(cookie.Expires)
		}
		params = append(params, param)
	}
	return params, nil
}
