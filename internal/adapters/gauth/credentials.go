// Package gauth loads Google service account credentials and builds
// authorized HTTP clients for Earth Engine and Drive.
package gauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jobrunner/geefetch/internal/domain"
)

// OAuth2 scopes requested for the service account.
const (
	ScopeEarthEngine   = "https://www.googleapis.com/auth/earthengine"
	ScopeCloudPlatform = "https://www.googleapis.com/auth/cloud-platform"
	ScopeDrive         = "https://www.googleapis.com/auth/drive"
)

// DefaultScopes covers every API the pipeline calls.
var DefaultScopes = []string{ScopeEarthEngine, ScopeCloudPlatform, ScopeDrive}

// Credentials is a loaded service account key.
type Credentials struct {
	ClientEmail string
	ProjectID   string
	TokenSource oauth2.TokenSource
}

// Load reads a service account JSON key file.
func Load(ctx context.Context, path string, scopes ...string) (*Credentials, error) {
	if path == "" {
		return nil, &domain.ConfigError{Field: "earthengine.credentials", Message: "is required"}
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("credentials %s: %w", path, domain.ErrMissingFile)
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	var key struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
		ProjectID   string `json:"project_id"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, &domain.ConfigError{Field: "earthengine.credentials", Message: "invalid JSON: " + err.Error()}
	}
	if key.Type != "service_account" || key.ClientEmail == "" {
		return nil, &domain.ConfigError{Field: "earthengine.credentials", Message: "not a service account key"}
	}

	jwtConfig, err := google.JWTConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, &domain.ConfigError{Field: "earthengine.credentials", Message: err.Error()}
	}

	return &Credentials{
		ClientEmail: key.ClientEmail,
		ProjectID:   key.ProjectID,
		TokenSource: jwtConfig.TokenSource(ctx),
	}, nil
}

// HTTPClient returns a client that authorizes every request.
func (c *Credentials) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c.TokenSource)
}
