package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultRequestTimeout   = 10 * time.Second
	maxProfileResponseBytes = 1 << 20 // 1 MiB
)

var ErrProfileNotFound = errors.New("identity: profile not found")

type ProfileNotFoundError struct {
	ProviderID string
	Cause      error
}

func (e *ProfileNotFoundError) Error() string {
	if e == nil || e.Cause == nil {
		return ErrProfileNotFound.Error()
	}
	return ErrProfileNotFound.Error() + ": " + e.Cause.Error()
}

func (e *ProfileNotFoundError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return ErrProfileNotFound
	}
	return errors.Join(ErrProfileNotFound, e.Cause)
}

func (e *ProfileNotFoundError) ToServiceError() *goerrors.Error {
	message := ErrProfileNotFound.Error()
	var providerID string
	if e != nil {
		message = e.Error()
		providerID = e.ProviderID
	}
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(core.ErrorCodeProfileNotFound).
		WithMetadata(map[string]any{"provider_id": providerID})
}

func profileNotFound(providerID string, cause error) error {
	return &ProfileNotFoundError{ProviderID: providerID, Cause: cause}
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// UserInfoEndpoint describes where a provider serves the current user's
// profile for a bearer access token.
type UserInfoEndpoint struct {
	URL        string
	Normalizer func(providerID string, payload map[string]any) Profile
}

type Config struct {
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
	Endpoints      map[string]UserInfoEndpoint
}

type Resolver struct {
	httpClient     HTTPDoer
	requestTimeout time.Duration
	endpoints      map[string]UserInfoEndpoint
}

func NewResolver(cfg Config) *Resolver {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	endpoints := DefaultEndpoints()
	for providerID, endpoint := range cfg.Endpoints {
		normalized := normalizeProviderID(providerID)
		if normalized == "" {
			continue
		}
		endpoint.URL = strings.TrimSpace(endpoint.URL)
		endpoints[normalized] = endpoint
	}
	return &Resolver{
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		endpoints:      endpoints,
	}
}

func DefaultResolver() *Resolver {
	return NewResolver(Config{})
}

func DefaultEndpoints() map[string]UserInfoEndpoint {
	return map[string]UserInfoEndpoint{
		"facebook": {URL: "https://graph.facebook.com/me?fields=id,name,link,picture"},
		"github":   {URL: "https://api.github.com/user"},
		"google":   {URL: "https://openidconnect.googleapis.com/v1/userinfo"},
		"linkedin": {URL: "https://api.linkedin.com/v2/userinfo"},
		"twitter":  {URL: "https://api.twitter.com/1.1/account/verify_credentials.json"},
	}
}

// Resolve fetches the profile of the user behind data's access token.
func (r *Resolver) Resolve(ctx context.Context, data core.ConnectionData) (Profile, error) {
	providerID := normalizeProviderID(data.ProviderID)
	if r == nil {
		return Profile{}, profileNotFound(providerID, nil)
	}
	endpoint, ok := r.endpoints[providerID]
	if !ok || endpoint.URL == "" {
		return Profile{}, profileNotFound(providerID, fmt.Errorf("identity: no userinfo endpoint for %q", providerID))
	}
	if data.AccessToken == nil || strings.TrimSpace(*data.AccessToken) == "" {
		return Profile{}, profileNotFound(providerID, fmt.Errorf("identity: access token is required"))
	}
	payload, err := r.fetchUserInfo(ctx, endpoint.URL, strings.TrimSpace(*data.AccessToken))
	if err != nil {
		return Profile{}, profileNotFound(providerID, err)
	}
	normalizer := endpoint.Normalizer
	if normalizer == nil {
		normalizer = NormalizeProfile
	}
	profile := normalizer(providerID, payload)
	if profile.Subject != "" && profile.Subject != data.ProviderUserID {
		return Profile{}, profileNotFound(providerID, fmt.Errorf(
			"identity: token belongs to %q, not %q", profile.Subject, data.ProviderUserID,
		))
	}
	return profile, nil
}

func (r *Resolver) fetchUserInfo(ctx context.Context, endpoint string, accessToken string) (map[string]any, error) {
	requestCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, maxProfileResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("identity: read profile response: %w", err)
	}
	if int64(len(body)) > maxProfileResponseBytes {
		return nil, fmt.Errorf("identity: profile response exceeds %d bytes", maxProfileResponseBytes)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("identity: profile endpoint returned status %d", res.StatusCode)
	}
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.UseNumber()
	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("identity: decode profile response: %w", err)
	}
	return payload, nil
}
