package gphotos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ccfrost/albumsync/internal/config"
)

const (
	photosScope   = "https://www.googleapis.com/auth/photoslibrary.appendonly"
	tokenFileName = "google_photos_token.json"
)

// AuthenticatedHTTPClient builds an OAuth2-authenticated http.Client for
// the Cloud API Client, handling token load/refresh/save under cacheDir.
func AuthenticatedHTTPClient(ctx context.Context, cfg config.GooglePhotosConfig, cacheDir string) (*http.Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("google photos client_id or client_secret not configured")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       []string{photosScope},
		Endpoint:     google.Endpoint,
	}

	tokenPath := filepath.Join(cacheDir, tokenFileName)
	token, err := loadToken(tokenPath)
	if err != nil {
		return nil, err
	}

	if token == nil || !token.Valid() {
		token, err = tokenFromWeb(ctx, oauthCfg)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenPath, token); err != nil {
			return nil, fmt.Errorf("failed to save oauth token to %s: %w", tokenPath, err)
		}
	}

	return oauthCfg.Client(ctx, token), nil
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open oauth token file %s: %w", path, err)
	}
	defer f.Close()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, nil // treat a corrupt token file as "no token", forcing re-auth
	}
	return &token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

func tokenFromWeb(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Go to the following link in your browser then type the authorization code:\n%v\n", authURL)

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	token, err := cfg.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return token, nil
}
