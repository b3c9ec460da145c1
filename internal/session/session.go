// Package session is the host side of the sync engine: it applies the
// operator's commands to the engine, persists them, restores them at
// startup, and publishes the derived values UI clients display.
package session

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/alexjbarnes/scout-sync/internal/errors"
	"github.com/alexjbarnes/scout-sync/internal/scout"
	"github.com/alexjbarnes/scout-sync/internal/settings"
)

// Event names published to UI clients.
const (
	EventStatus      = "scout_file_status"
	EventLiveDataURL = "set_live_data_url"
	EventScoutFile   = "set_scout_file"
	EventB64         = "set_b64"
)

// Publisher delivers named events to UI clients.
type Publisher interface {
	Publish(event string, message any)
}

// Config holds the host-side options.
type Config struct {
	// LiveAppURL prefixes the query-escaped live-data URL to build the
	// shareable link. Empty disables the link.
	LiveAppURL string

	// AllowFile filters paths accepted by SetFile. Nil accepts all.
	AllowFile func(path string) bool
}

// Overrides are startup values that take precedence over persisted
// settings. Zero fields leave the persisted value in place.
type Overrides struct {
	ScoutFile string
	PantryID  string
	B64       *bool
}

// State is the current host view of the engine.
type State struct {
	Status      string `json:"status"`
	Path        string `json:"path"`
	PantryID    string `json:"pantry_id"`
	B64         bool   `json:"b64"`
	LiveDataURL string `json:"live_data_url"`
	LiveAppURL  string `json:"live_app_url"`
}

// Session serializes operator commands against one engine.
type Session struct {
	mu     sync.Mutex
	cfg    Config
	engine *scout.Engine
	store  *settings.Store
	pub    Publisher
	logger *slog.Logger
}

// New creates a session. pub may be nil.
func New(cfg Config, engine *scout.Engine, store *settings.Store, pub Publisher, logger *slog.Logger) *Session {
	return &Session{
		cfg:    cfg,
		engine: engine,
		store:  store,
		pub:    pub,
		logger: logger,
	}
}

// Restore loads the persisted settings, applies overrides on top, and
// hands the result to the engine. Encoding defaults to base64 when
// nothing was saved. Overrides are persisted so they stick. A restored
// file that fails the filter is logged and skipped.
func (s *Session) Restore(o Overrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pantryID, err := s.store.PantryID()
	if err != nil {
		return fmt.Errorf("restoring destination: %w", err)
	}

	if o.PantryID != "" && o.PantryID != pantryID {
		pantryID = o.PantryID
		if err := s.store.SetPantryID(pantryID); err != nil {
			return fmt.Errorf("saving destination: %w", err)
		}
	}

	b64, ok, err := s.store.B64()
	if err != nil {
		return fmt.Errorf("restoring encoding: %w", err)
	}

	if !ok {
		b64 = true
	}

	if o.B64 != nil && (*o.B64 != b64 || !ok) {
		b64 = *o.B64
		if err := s.store.SetB64(b64); err != nil {
			return fmt.Errorf("saving encoding: %w", err)
		}
	}

	path := o.ScoutFile
	if path == "" {
		if path, err = s.store.ScoutFile(); err != nil {
			return fmt.Errorf("restoring scout file: %w", err)
		}
	}

	s.engine.SetEncoding(scout.EncodingFromBool(b64))
	s.engine.SetDestination(pantryID)

	if path != "" {
		if err := s.setFileLocked(path); err != nil {
			s.logger.Warn("restored scout file rejected",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}

	s.publish(EventB64, b64)
	s.publishLiveURL()

	s.logger.Info("session restored",
		slog.Bool("destination", pantryID != ""),
		slog.Bool("b64", b64),
		slog.String("path", s.engine.Snapshot().Path),
	)

	return nil
}

// SetFile starts watching path. The path is made absolute and must pass
// the configured filter. An empty path stops watching.
func (s *Session) SetFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setFileLocked(path)
}

func (s *Session) setFileLocked(path string) error {
	path = strings.TrimSpace(path)

	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", path, err)
		}

		path = abs

		if s.cfg.AllowFile != nil && !s.cfg.AllowFile(path) {
			return fmt.Errorf("%w: unsupported file type %q", apperrors.ErrInvalidSetting, filepath.Ext(path))
		}
	}

	s.engine.SetFile(path)

	if err := s.store.SetScoutFile(path); err != nil {
		return fmt.Errorf("saving scout file: %w", err)
	}

	s.publish(EventScoutFile, path)
	s.publishLiveURL()

	return nil
}

// SetDestination replaces and persists the destination id.
func (s *Session) SetDestination(pantryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pantryID = strings.TrimSpace(pantryID)

	s.engine.SetDestination(pantryID)

	if err := s.store.SetPantryID(pantryID); err != nil {
		return fmt.Errorf("saving destination: %w", err)
	}

	s.publishLiveURL()

	return nil
}

// SetEncoding switches and persists the payload encoding.
func (s *Session) SetEncoding(b64 bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine.SetEncoding(scout.EncodingFromBool(b64))

	if err := s.store.SetB64(b64); err != nil {
		return fmt.Errorf("saving encoding: %w", err)
	}

	s.publish(EventB64, b64)

	return nil
}

// State returns the current host view.
func (s *Session) State() State {
	snap := s.engine.Snapshot()
	dataURL := s.engine.LiveDataURL()

	return State{
		Status:      s.engine.Status().String(),
		Path:        snap.Path,
		PantryID:    snap.PantryID,
		B64:         snap.Encoding == scout.EncodingBase64,
		LiveDataURL: dataURL,
		LiveAppURL:  s.liveAppURL(dataURL),
	}
}

func (s *Session) liveAppURL(dataURL string) string {
	if dataURL == "" || s.cfg.LiveAppURL == "" {
		return ""
	}

	return s.cfg.LiveAppURL + url.QueryEscape(dataURL)
}

func (s *Session) publishLiveURL() {
	s.publish(EventLiveDataURL, s.engine.LiveDataURL())
}

func (s *Session) publish(event string, message any) {
	if s.pub != nil {
		s.pub.Publish(event, message)
	}
}
