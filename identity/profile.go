package identity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-connections/core"
)

// Profile is the provider-independent view of a provider user document.
type Profile struct {
	ProviderID string
	Subject    string
	Name       string
	Login      string
	Email      string
	ProfileURL string
	ImageURL   string
	Raw        map[string]any
}

// DisplayName prefers the full name and falls back to the login handle.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return strings.TrimSpace(p.Login)
}

// NormalizeProfile maps the claim names used by common providers onto
// Profile. Unknown providers go through the same lookups.
func NormalizeProfile(providerID string, payload map[string]any) Profile {
	profile := Profile{
		ProviderID: normalizeProviderID(providerID),
		Subject:    firstString(payload, "sub", "id_str", "id", "node_id"),
		Name:       firstString(payload, "name", "formattedName"),
		Login:      firstString(payload, "login", "screen_name", "username", "vanityName"),
		Email:      firstString(payload, "email", "emailAddress"),
		ProfileURL: firstString(payload, "html_url", "profile", "link", "publicProfileUrl", "url"),
		ImageURL:   pictureURL(payload),
		Raw:        copyMap(payload),
	}
	if profile.Name == "" {
		profile.Name = strings.TrimSpace(strings.Join([]string{
			firstString(payload, "given_name", "first_name", "localizedFirstName"),
			firstString(payload, "family_name", "last_name", "localizedLastName"),
		}, " "))
	}
	if profile.ProfileURL == "" && profile.Login != "" {
		profile.ProfileURL = defaultProfileURL(profile.ProviderID, profile.Login)
	}
	return profile
}

// ApplyProfile fills the display fields of data from profile. Empty profile
// values leave the existing fields alone; identity and token fields are
// never touched.
func ApplyProfile(data core.ConnectionData, profile Profile) core.ConnectionData {
	out := data.Clone()
	if name := profile.DisplayName(); name != "" {
		out.DisplayName = core.StringPtr(name)
	}
	if url := strings.TrimSpace(profile.ProfileURL); url != "" {
		out.ProfileURL = core.StringPtr(url)
	}
	if url := strings.TrimSpace(profile.ImageURL); url != "" {
		out.ImageURL = core.StringPtr(url)
	}
	return out
}

func pictureURL(payload map[string]any) string {
	if url := firstString(payload, "avatar_url", "profile_image_url_https", "profile_image_url", "pictureUrl"); url != "" {
		return url
	}
	switch typed := payload["picture"].(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]any:
		// graph api shape: {"picture": {"data": {"url": "..."}}}
		if data, ok := typed["data"].(map[string]any); ok {
			return readString(data["url"])
		}
		return readString(typed["url"])
	}
	return ""
}

func defaultProfileURL(providerID string, login string) string {
	switch providerID {
	case "github":
		return "https://github.com/" + login
	case "twitter":
		return "https://twitter.com/" + login
	case "linkedin":
		return "https://www.linkedin.com/in/" + login
	default:
		return ""
	}
}

func firstString(payload map[string]any, names ...string) string {
	for _, name := range names {
		if value := readString(payload[name]); value != "" {
			return value
		}
	}
	return ""
}

func normalizeProviderID(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

func readString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}
