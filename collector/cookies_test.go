// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package collector

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
)

func TestLoadCookies(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"name": "auth_token", "value": "deadbeef", "domain": ".x.com", "path": "/", "expires": 1893456000, "httpOnly": true, "secure": true},
		{"name": "ct0", "value": "cafe", "domain": ".x.com", "path": "/", "expires": 0}
	]`), 0o600))

	cookies, err := loadCookies(path)
	require.NoError(t, err)
	require.Len(t, cookies, 2)

	require.Equal(t, "auth_token", cookies[0].Name)
	require.Equal(t, "deadbeef", cookies[0].Value)
	require.Equal(t, ".x.com", cookies[0].Domain)
	require.Equal(t, "/", cookies[0].Path)
	require.True(t, cookies[0].HTTPOnly)
	require.True(t, cookies[0].Secure)
	require.EqualValues(t, 1893456000, cookies[0].Expires)

	require.Equal(t, "ct0", cookies[1].Name)
	require.Zero(t, cookies[1].Expires)
	require.False(t, cookies[1].HTTPOnly)
}

func TestLoadCookiesMissingFile(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	_, err := loadCookies(ctx.File("nope.json"))
	require.True(t, Error.Has(err))
}

func TestLoadCookiesRejectsCorrupt(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not": "an array"}`), 0o600))

	_, err := loadCookies(path)
	require.True(t, Error.Has(err))
}

func TestLoadCookiesRejectsNameless(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"value": "orphan"}]`), 0o600))

	_, err := loadCookies(path)
	require.True(t, Error.Has(err))
}
