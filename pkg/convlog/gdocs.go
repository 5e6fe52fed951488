package convlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"

	"github.com/teslashibe/go-intent/internal/httpc"
)

// GoogleDocsConfig configures the Docs exporter.
type GoogleDocsConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g. "http://localhost:8080/api/gdocs/callback"
	TokenPath    string // where the OAuth token is cached
}

// GoogleDocsStatus is the connection state shown on the dashboard.
type GoogleDocsStatus struct {
	Connected bool   `json:"connected"`
	AuthURL   string `json:"auth_url,omitempty"`
}

// GoogleDocs exports conversation logs as new Google Docs.
type GoogleDocs struct {
	config    *oauth2.Config
	tokenPath string
	state     string
	logger    *slog.Logger
	client    *http.Client

	mu      sync.RWMutex
	token   *oauth2.Token
	service *docs.Service
}

// NewGoogleDocs creates the exporter and restores a cached token if one
// exists.
func NewGoogleDocs(cfg GoogleDocsConfig, logger *slog.Logger) (*GoogleDocs, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrNoCredentials
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8080/api/gdocs/callback"
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = filepath.Join("data", "google_token.json")
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &GoogleDocs{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/documents",
				"https://www.googleapis.com/auth/drive.file",
			},
			Endpoint: google.Endpoint,
		},
		tokenPath: cfg.TokenPath,
		client:    httpc.NewClient(httpc.DefaultTimeout),
		state:     "intent-export",
		logger:    logger.With("component", "convlog.gdocs"),
	}

	if err := g.loadToken(); err == nil {
		if err := g.initService(); err != nil {
			g.logger.Warn("cached token unusable", "error", err)
			g.token = nil
		}
	}
	return g, nil
}

// Connected reports whether a usable token is present. Expired access
// tokens with a refresh token still count.
func (g *GoogleDocs) Connected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token != nil && (g.token.Valid() || g.token.RefreshToken != "")
}

// AuthURL returns the consent URL.
func (g *GoogleDocs) AuthURL() string {
	return g.config.AuthCodeURL(g.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Status returns the connection state.
func (g *GoogleDocs) Status() GoogleDocsStatus {
	s := GoogleDocsStatus{Connected: g.Connected()}
	if !s.Connected {
		s.AuthURL = g.AuthURL()
	}
	return s
}

// HandleCallback exchanges the OAuth code and caches the token.
func (g *GoogleDocs) HandleCallback(ctx context.Context, state, code string) error {
	if state != g.state {
		return fmt.Errorf("convlog: oauth state mismatch")
	}
	if code == "" {
		return fmt.Errorf("convlog: missing authorization code")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	token, err := g.config.Exchange(httpc.OAuthContext(ctx, g.client), code)
	if err != nil {
		return fmt.Errorf("exchange code for token: %w", err)
	}

	g.mu.Lock()
	g.token = token
	g.mu.Unlock()

	if err := g.saveToken(); err != nil {
		g.logger.Warn("failed to cache token", "error", err)
	}
	return g.initService()
}

// Disconnect forgets the token.
func (g *GoogleDocs) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.token = nil
	g.service = nil
	if err := os.Remove(g.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// Export creates a new document holding x and returns its ID.
func (g *GoogleDocs) Export(ctx context.Context, x Export) (string, error) {
	g.mu.RLock()
	service := g.service
	g.mu.RUnlock()
	if service == nil {
		return "", ErrNotAuthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	title := fmt.Sprintf("Conversation log - %s - %s", x.Patient, x.ExportedAt)
	created, err := service.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}

	_, err = service.Documents.BatchUpdate(created.DocumentId, &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: 1},
				Text:     x.Text(),
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return created.DocumentId, fmt.Errorf("created doc but failed to add content: %w", err)
	}

	g.logger.Info("exported to google docs", "patient", x.Patient, "doc_id", created.DocumentId, "entries", len(x.Entries))
	return created.DocumentId, nil
}

// DocURL returns the edit URL of a document.
func DocURL(docID string) string {
	return fmt.Sprintf("https://docs.google.com/document/d/%s/edit", docID)
}

func (g *GoogleDocs) initService() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token == nil {
		return ErrNotAuthenticated
	}
	ctx := httpc.OAuthContext(context.Background(), g.client)
	service, err := docs.NewService(ctx, option.WithHTTPClient(g.config.Client(ctx, g.token)))
	if err != nil {
		return fmt.Errorf("create docs service: %w", err)
	}
	g.service = service
	return nil
}

func (g *GoogleDocs) loadToken() error {
	data, err := os.ReadFile(g.tokenPath)
	if err != nil {
		return err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}
	g.mu.Lock()
	g.token = &token
	g.mu.Unlock()
	return nil
}

func (g *GoogleDocs) saveToken() error {
	g.mu.RLock()
	token := g.token
	g.mu.RUnlock()
	if token == nil {
		return ErrNotAuthenticated
	}

	if err := os.MkdirAll(filepath.Dir(g.tokenPath), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(g.tokenPath, data, 0600)
}
