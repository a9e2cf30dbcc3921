package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/goliatone/go-connections/core"
)

func TestNormalizeProfile_CommonClaims(t *testing.T) {
	cases := []struct {
		name     string
		provider string
		payload  map[string]any
		want     Profile
	}{
		{
			name:     "github",
			provider: "GitHub",
			payload: map[string]any{
				"id":         json.Number("583231"),
				"login":      "octocat",
				"avatar_url": "https://avatars.example.com/u/583231",
				"html_url":   "https://github.com/octocat",
			},
			want: Profile{ProviderID: "github", Subject: "583231", Login: "octocat",
				ProfileURL: "https://github.com/octocat", ImageURL: "https://avatars.example.com/u/583231"},
		},
		{
			name:     "facebook graph picture",
			provider: "facebook",
			payload: map[string]any{
				"id":      "10001",
				"name":    "Mark",
				"link":    "https://facebook.com/mark",
				"picture": map[string]any{"data": map[string]any{"url": "https://fb.example.com/p.jpg"}},
			},
			want: Profile{ProviderID: "facebook", Subject: "10001", Name: "Mark",
				ProfileURL: "https://facebook.com/mark", ImageURL: "https://fb.example.com/p.jpg"},
		},
		{
			name:     "twitter screen name",
			provider: "twitter",
			payload: map[string]any{
				"id_str":                  "12",
				"screen_name":             "jack",
				"profile_image_url_https": "https://pbs.example.com/jack.png",
			},
			want: Profile{ProviderID: "twitter", Subject: "12", Login: "jack",
				ProfileURL: "https://twitter.com/jack", ImageURL: "https://pbs.example.com/jack.png"},
		},
		{
			name:     "oidc given and family name",
			provider: "google",
			payload: map[string]any{
				"sub":         "g-1",
				"given_name":  "Ada",
				"family_name": "Lovelace",
				"picture":     "https://lh.example.com/ada",
				"profile":     "https://plus.example.com/ada",
			},
			want: Profile{ProviderID: "google", Subject: "g-1", Name: "Ada Lovelace",
				ProfileURL: "https://plus.example.com/ada", ImageURL: "https://lh.example.com/ada"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeProfile(tc.provider, tc.payload)
			got.Raw = nil
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("unexpected profile\n got: %#v\nwant: %#v", got, tc.want)
			}
		})
	}
}

func TestApplyProfile_FillsDisplayFieldsOnly(t *testing.T) {
	data := core.ConnectionData{
		ProviderID:     "github",
		ProviderUserID: "583231",
		DisplayName:    core.StringPtr("old name"),
		ImageURL:       core.StringPtr("https://old.example.com/img"),
		AccessToken:    core.StringPtr("token"),
	}
	updated := ApplyProfile(data, Profile{Login: "octocat", ProfileURL: "https://github.com/octocat"})

	if *updated.DisplayName != "octocat" {
		t.Fatalf("expected login fallback display name, got %q", *updated.DisplayName)
	}
	if *updated.ProfileURL != "https://github.com/octocat" {
		t.Fatalf("expected profile url, got %v", updated.ProfileURL)
	}
	if *updated.ImageURL != "https://old.example.com/img" {
		t.Fatalf("expected empty image to keep existing value, got %q", *updated.ImageURL)
	}
	if updated.Key() != data.Key() || *updated.AccessToken != "token" {
		t.Fatalf("expected identity and tokens to be untouched")
	}
	if *data.DisplayName != "old name" {
		t.Fatalf("expected input data to stay unchanged")
	}
}

func TestResolver_Resolve_FromUserInfoEndpoint(t *testing.T) {
	var authorizationHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorizationHeader = strings.TrimSpace(r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         583231,
			"login":      "octocat",
			"name":       "The Octocat",
			"avatar_url": "https://avatars.example.com/u/583231",
		})
	}))
	defer server.Close()

	resolver := NewResolver(Config{
		Endpoints: map[string]UserInfoEndpoint{"github": {URL: server.URL}},
	})
	profile, err := resolver.Resolve(context.Background(), core.ConnectionData{
		ProviderID:     "github",
		ProviderUserID: "583231",
		AccessToken:    core.StringPtr("gho_1"),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if authorizationHeader != "Bearer gho_1" {
		t.Fatalf("expected bearer token header, got %q", authorizationHeader)
	}
	if profile.Name != "The Octocat" || profile.Subject != "583231" {
		t.Fatalf("unexpected profile %#v", profile)
	}
}

func TestResolver_Resolve_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer denied" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "someone-else"})
	}))
	defer server.Close()
	resolver := NewResolver(Config{Endpoints: map[string]UserInfoEndpoint{"github": {URL: server.URL}}})

	cases := map[string]core.ConnectionData{
		"unknown provider": {ProviderID: "myspace", ProviderUserID: "1", AccessToken: core.StringPtr("t")},
		"missing token":    {ProviderID: "github", ProviderUserID: "1"},
		"http status":      {ProviderID: "github", ProviderUserID: "1", AccessToken: core.StringPtr("denied")},
		"subject mismatch": {ProviderID: "github", ProviderUserID: "1", AccessToken: core.StringPtr("t")},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), data)
			if !errors.Is(err, ErrProfileNotFound) {
				t.Fatalf("expected profile not found, got %v", err)
			}
		})
	}
}
