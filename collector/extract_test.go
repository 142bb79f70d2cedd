// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package collector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const profilePayload = `{
	"@context": "https://schema.org",
	"@type": "ProfilePage",
	"mainEntity": {
		"@type": "Person",
		"additionalName": "naval",
		"description": "How to get rich without getting lucky.",
		"homeLocation": {"@type": "Place", "name": "Valhalla"},
		"identifier": "745273",
		"image": {"@type": "ImageObject", "contentUrl": "https://pbs.example.com/profile_images/745273/photo.jpg"},
		"interactionStatistic": [
			{"@type": "InteractionCounter", "interactionType": "https://schema.org/FollowAction", "name": "Follows", "userInteractionCount": 2100000},
			{"@type": "InteractionCounter", "interactionType": "https://schema.org/SubscribeAction", "name": "Friends", "userInteractionCount": 600},
			{"@type": "InteractionCounter", "interactionType": "https://schema.org/WriteAction", "name": "Tweets", "userInteractionCount": 41000}
		],
		"name": "Naval",
		"url": "https://nav.al"
	}
}`

func TestParseProfilePayload(t *testing.T) {
	profile, err := parseProfilePayload(profilePayload, "fallback", "https://x.com")
	require.NoError(t, err)

	require.Equal(t, "745273", profile.AccountID)
	require.Equal(t, "naval", profile.Username)
	require.Equal(t, "Naval", *profile.DisplayName)
	require.Equal(t, "How to get rich without getting lucky.", *profile.Bio)
	require.Equal(t, "Valhalla", *profile.Location)
	require.Equal(t, "https://nav.al", *profile.Website)
	require.Equal(t, "https://pbs.example.com/profile_images/745273/photo.jpg", *profile.ProfileImageURL)
	require.Equal(t, int64(2100000), *profile.ClaimedFollowers)
	require.Equal(t, int64(600), *profile.ClaimedFollowing)
	require.Equal(t, int64(41000), *profile.ClaimedTweets)
}

func TestParseProfilePayloadPlatformURL(t *testing.T) {
	payload := `{"mainEntity": {"identifier": "42", "url": "https://x.com/somebody"}}`

	profile, err := parseProfilePayload(payload, "somebody", "https://x.com")
	require.NoError(t, err)
	require.Equal(t, "42", profile.AccountID)
	require.Equal(t, "somebody", profile.Username)
	require.Nil(t, profile.Website)
	require.Nil(t, profile.ClaimedFollowers)
}

func TestParseProfilePayloadArray(t *testing.T) {
	payload := `[{"@type": "BreadcrumbList"}, ` + profilePayload + `]`

	profile, err := parseProfilePayload(payload, "fallback", "https://x.com")
	require.NoError(t, err)
	require.Equal(t, "745273", profile.AccountID)
	require.Equal(t, "naval", profile.Username)
}

func TestParseProfilePayloadMalformed(t *testing.T) {
	_, err := parseProfilePayload(`{`, "x", "https://x.com")
	require.True(t, ErrParse.Has(err))

	_, err = parseProfilePayload(`{"mainEntity": {"name": "No ID"}}`, "x", "https://x.com")
	require.True(t, ErrParse.Has(err))

	_, err = parseProfilePayload(`[{"mainEntity": {"name": "No ID"}}]`, "x", "https://x.com")
	require.True(t, ErrParse.Has(err))
}

func TestParseCount(t *testing.T) {
	for _, tt := range []struct {
		text  string
		value int64
		ok    bool
	}{
		{"1,234", 1234, true},
		{"600", 600, true},
		{" 600 ", 600, true},
		{"0", 0, true},
		{"1.2K", 1200, true},
		{"12k", 12000, true},
		{"3.4M", 3400000, true},
		{"1.5B", 1500000000, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-5", 0, false},
		{"1.2.3K", 0, false},
	} {
		value, ok := parseCount(tt.text)
		require.Equal(t, tt.ok, ok, tt.text)
		if tt.ok {
			require.Equal(t, tt.value, value, tt.text)
		}
	}
}

func TestUsernameFromHref(t *testing.T) {
	for _, tt := range []struct {
		href     string
		username string
		ok       bool
	}{
		{"/naval", "naval", true},
		{"/NavalBot", "NavalBot", true},
		{"https://x.com/naval?lang=en", "naval", true},
		{"/naval/status/123", "naval", true},
		{"/search?q=naval", "", false},
		{"/i/lists/123", "", false},
		{"/settings", "", false},
		{"/na-val", "", false},
		{"/", "", false},
		{"", "", false},
	} {
		username, ok := usernameFromHref(tt.href)
		require.Equal(t, tt.ok, ok, tt.href)
		require.Equal(t, tt.username, username, tt.href)
	}
}

func TestExternalURL(t *testing.T) {
	external, ok := externalURL("https://nav.al", "https://x.com")
	require.True(t, ok)
	require.Equal(t, "https://nav.al", external)

	_, ok = externalURL("https://x.com/naval", "https://x.com")
	require.False(t, ok)

	_, ok = externalURL("https://www.x.com/naval", "https://x.com")
	require.False(t, ok)

	_, ok = externalURL("nav.al", "https://x.com")
	require.False(t, ok)

	_, ok = externalURL("", "https://x.com")
	require.False(t, ok)
}

func TestMemberSetDedup(t *testing.T) {
	set := newMemberSet()
	set.add(Member{AccountID: "1", Username: "alpha", DisplayName: optional("Alpha")})
	set.add(Member{AccountID: "2", Username: "beta"})
	set.add(Member{AccountID: "1", Username: "alpha", DisplayName: optional("Renamed"), Bio: optional("later sighting")})

	require.Equal(t, 2, set.len())

	members := set.ordered()
	require.Equal(t, "1", members[0].AccountID)
	require.Equal(t, "2", members[1].AccountID)
	require.Equal(t, "Alpha", *members[0].DisplayName)
	require.Equal(t, "later sighting", *members[0].Bio)
}

func TestDomCellMember(t *testing.T) {
	member, ok := domCell{UserID: "99", Href: "/gamma", Name: "Gamma", Bio: ""}.member()
	require.True(t, ok)
	require.Equal(t, "99", member.AccountID)
	require.Equal(t, "gamma", member.Username)
	require.Equal(t, "Gamma", *member.DisplayName)
	require.Nil(t, member.Bio)

	_, ok = domCell{UserID: "", Href: "/gamma"}.member()
	require.False(t, ok)

	_, ok = domCell{UserID: "99", Href: "/i/topics"}.member()
	require.False(t, ok)
}
