// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package collector

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-rod/rod"
)

// The selector set the frontend is scraped with. The platform renames
// its testids rarely, but when it does, this block is the one place to
// update.
const (
	selectorProfilePayload = `script[type="application/ld+json"]`
	selectorUserName       = `[data-testid="UserName"]`
	selectorUserBio        = `[data-testid="UserDescription"]`
	selectorUserLocation   = `[data-testid="UserLocation"]`
	selectorUserWebsite    = `[data-testid="UserUrl"]`
	selectorAvatar         = `img[src*="profile_images"]`
	selectorFollowingCount = `a[href$="/following"] span`
	selectorFollowersCount = `a[href$="/verified_followers"] span`
	selectorUserCell       = `[data-testid="UserCell"]`
	selectorLoginForm      = `input[autocomplete="username"]`
	selectorErrorDetail    = `[data-testid="error-detail"]`
	selectorEmptyState     = `[data-testid="emptyState"]`
)

// cellExtractionJS walks every rendered user cell in one evaluation and
// returns a JSON array, so a capture round costs a single protocol call.
const cellExtractionJS = `() => {
	const cells = document.querySelectorAll('[data-testid="UserCell"]');
	const out = [];
	for (const cell of cells) {
		const link = cell.querySelector('a[role="link"][href^="/"]');
		const spans = cell.querySelectorAll('span');
		out.push({
			userId: cell.getAttribute('data-user-id') || '',
			href: link ? link.getAttribute('href') : '',
			name: spans.length > 0 ? spans[0].textContent : '',
			bio: cell.querySelector('[data-testid="UserDescription"]')
				? cell.querySelector('[data-testid="UserDescription"]').textContent
				: '',
		});
	}
	return JSON.stringify(out);
}`

// domCell is one raw extracted user cell, before validation.
type domCell struct {
	UserID string `json:"userId"`
	Href   string `json:"href"`
	Name   string `json:"name"`
	Bio    string `json:"bio"`
}

// member validates the cell. Cells without an account id or a usable
// profile link cannot be stored and are dropped by the caller.
func (cell domCell) member() (Member, bool) {
	if cell.UserID == "" {
		return Member{}, false
	}
	username, ok := usernameFromHref(cell.Href)
	if !ok {
		return Member{}, false
	}
	return Member{
		AccountID:   cell.UserID,
		Username:    username,
		DisplayName: optional(cell.Name),
		Bio:         optional(cell.Bio),
	}, true
}

// memberSet deduplicates members by account id while keeping discovery
// order. Re-discovered members fill in fields the first sighting lacked.
type memberSet struct {
	order   []string
	members map[string]Member
}

func newMemberSet() *memberSet {
	return &memberSet{members: make(map[string]Member)}
}

func (set *memberSet) add(member Member) {
	existing, ok := set.members[member.AccountID]
	if !ok {
		set.order = append(set.order, member.AccountID)
		set.members[member.AccountID] = member
		return
	}
	if existing.DisplayName == nil {
		existing.DisplayName = member.DisplayName
	}
	if existing.Bio == nil {
		existing.Bio = member.Bio
	}
	set.members[member.AccountID] = existing
}

func (set *memberSet) len() int { return len(set.order) }

func (set *memberSet) ordered() []Member {
	members := make([]Member, 0, len(set.order))
	for _, id := range set.order {
		members = append(members, set.members[id])
	}
	return members
}

func extractCells(page *rod.Page) ([]domCell, error) {
	result, err := page.Eval(cellExtractionJS)
	if err != nil {
		return nil, ErrParse.Wrap(err)
	}
	var cells []domCell
	if err := json.Unmarshal([]byte(result.Value.Str()), &cells); err != nil {
		return nil, ErrParse.Wrap(err)
	}
	return cells, nil
}

func pageHeight(page *rod.Page) (int, error) {
	result, err := page.Eval(`() => document.body ? document.body.scrollHeight : 0`)
	if err != nil {
		return 0, err
	}
	return result.Value.Int(), nil
}

func scrollBy(page *rod.Page, offset int) error {
	_, err := page.Eval(`(offset) => window.scrollBy(0, offset)`, offset)
	return err
}

// ldPerson mirrors the structured payload the platform embeds on
// profile pages. Only the fields we read are declared.
type ldPerson struct {
	MainEntity struct {
		Identifier     string `json:"identifier"`
		Name           string `json:"name"`
		AdditionalName string `json:"additionalName"`
		Description    string `json:"description"`
		URL            string `json:"url"`
		HomeLocation   struct {
			Name string `json:"name"`
		} `json:"homeLocation"`
		Image struct {
			ContentURL string `json:"contentUrl"`
		} `json:"image"`
		InteractionStatistic []ldInteraction `json:"interactionStatistic"`
	} `json:"mainEntity"`
}

type ldInteraction struct {
	InteractionType string `json:"interactionType"`
	Name            string `json:"name"`
	Count           int64  `json:"userInteractionCount"`
}

// parseProfilePayload decodes the structured payload into a Profile.
// Without an account id the payload is useless and the caller falls
// back to DOM extraction.
func parseProfilePayload(payload, fallbackUsername, baseURL string) (Profile, error) {
	person, err := decodeProfilePayload(payload)
	if err != nil {
		return Profile{}, err
	}
	entity := person.MainEntity
	if entity.Identifier == "" {
		return Profile{}, ErrParse.New("profile payload without account id")
	}

	profile := Profile{
		AccountID:       entity.Identifier,
		Username:        fallbackUsername,
		DisplayName:     optional(entity.Name),
		Bio:             optional(entity.Description),
		Location:        optional(entity.HomeLocation.Name),
		ProfileImageURL: optional(entity.Image.ContentURL),
	}
	if entity.AdditionalName != "" {
		profile.Username = entity.AdditionalName
	}
	if external, ok := externalURL(entity.URL, baseURL); ok {
		profile.Website = &external
	}

	for _, stat := range entity.InteractionStatistic {
		count := stat.Count
		switch {
		case matchesInteraction(stat, "FollowAction", "Follows"):
			profile.ClaimedFollowers = &count
		case matchesInteraction(stat, "SubscribeAction", "Friends"):
			profile.ClaimedFollowing = &count
		case matchesInteraction(stat, "WriteAction", "Tweets"):
			profile.ClaimedTweets = &count
		}
	}
	return profile, nil
}

// decodeProfilePayload tolerates both a single object and an array of
// objects, picking the first entry that carries a main entity.
func decodeProfilePayload(payload string) (ldPerson, error) {
	var person ldPerson
	if err := json.Unmarshal([]byte(payload), &person); err == nil {
		return person, nil
	}
	var people []ldPerson
	if err := json.Unmarshal([]byte(payload), &people); err != nil {
		return ldPerson{}, ErrParse.Wrap(err)
	}
	for _, person := range people {
		if person.MainEntity.Identifier != "" {
			return person, nil
		}
	}
	return ldPerson{}, ErrParse.New("no usable entry in profile payload array")
}

func matchesInteraction(stat ldInteraction, interactionType, name string) bool {
	if strings.Contains(stat.InteractionType, interactionType) {
		return true
	}
	return strings.EqualFold(stat.Name, name)
}

// externalURL reports whether raw points outside the platform itself.
// Profile pages link back to the platform when no website is set.
func externalURL(raw, baseURL string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	baseHost := strings.TrimPrefix(strings.ToLower(base.Host), "www.")
	if host == baseHost {
		return "", false
	}
	return raw, true
}

// reservedPaths are top level frontend routes that look like profile
// links but are not.
var reservedPaths = map[string]bool{
	"home": true, "explore": true, "notifications": true, "messages": true,
	"search": true, "settings": true, "login": true, "logout": true,
	"signup": true, "i": true, "intent": true, "hashtag": true,
	"compose": true, "about": true, "tos": true, "privacy": true,
}

// usernameFromHref extracts the username from a profile link, either
// relative or absolute.
func usernameFromHref(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	if parsed, err := url.Parse(href); err == nil && parsed.Path != "" {
		href = parsed.Path
	}
	href = strings.TrimPrefix(href, "/")
	username, _, _ := strings.Cut(href, "/")
	if username == "" || reservedPaths[strings.ToLower(username)] {
		return "", false
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return "", false
		}
	}
	return username, true
}

// parseCount turns a rendered count like "1,234" or "3.4M" into an
// exact integer.
func parseCount(text string) (int64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(text, "K"), strings.HasSuffix(text, "k"):
		multiplier = 1_000
		text = text[:len(text)-1]
	case strings.HasSuffix(text, "M"), strings.HasSuffix(text, "m"):
		multiplier = 1_000_000
		text = text[:len(text)-1]
	case strings.HasSuffix(text, "B"), strings.HasSuffix(text, "b"):
		multiplier = 1_000_000_000
		text = text[:len(text)-1]
	}
	text = strings.ReplaceAll(text, ",", "")
	text = strings.TrimSpace(text)

	if multiplier == 1 {
		value, err := strconv.ParseInt(text, 10, 64)
		if err != nil || value < 0 {
			return 0, false
		}
		return value, true
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return int64(math.Round(value * float64(multiplier))), true
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
