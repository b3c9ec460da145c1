// Package settings persists the operator's choices (destination id and
// payload encoding) across sessions in a bbolt database.
package settings

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// settingsDirPerm is the permission mode for the settings directory.
	settingsDirPerm = fs.FileMode(0o700)

	// settingsFilePerm is the permission mode for the settings database.
	settingsFilePerm = fs.FileMode(0o600)

	// settingsOpenTimeout is the maximum time to wait for the bolt file lock.
	settingsOpenTimeout = 5 * time.Second
)

var (
	settingsBucket = []byte("settings")
	pantryIDKey    = []byte("pantry_id")
	b64Key         = []byte("b64_encoding")
	scoutFileKey   = []byte("scout_file")
)

// Store wraps a bbolt database holding the persisted settings. Values
// are stored JSON-encoded.
type Store struct {
	db *bolt.DB
}

// OpenAt opens a settings database at path, creating it and its parent
// directory if needed.
func OpenAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), settingsDirPerm); err != nil {
		return nil, fmt.Errorf("creating settings directory: %w", err)
	}

	db, err := bolt.Open(path, settingsFilePerm, &bolt.Options{Timeout: settingsOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening settings db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing settings db: %w", err)
	}

	return &Store{db: db}, nil
}

// DefaultPath returns ~/.scout-sync/settings.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".scout-sync", "settings.db"), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PantryID returns the saved destination id, or "" if none was saved.
func (s *Store) PantryID() (string, error) {
	var id string

	_, err := s.get(pantryIDKey, &id)

	return id, err
}

// SetPantryID saves the destination id.
func (s *Store) SetPantryID(id string) error {
	return s.put(pantryIDKey, id)
}

// B64 returns the saved encoding flag. ok is false when nothing was
// saved yet.
func (s *Store) B64() (b64 bool, ok bool, err error) {
	ok, err = s.get(b64Key, &b64)
	return b64, ok, err
}

// SetB64 saves the encoding flag.
func (s *Store) SetB64(b64 bool) error {
	return s.put(b64Key, b64)
}

// ScoutFile returns the last watched file path, or "".
func (s *Store) ScoutFile() (string, error) {
	var path string

	_, err := s.get(scoutFileKey, &path)

	return path, err
}

// SetScoutFile saves the watched file path.
func (s *Store) SetScoutFile(path string) error {
	return s.put(scoutFileKey, path)
}

func (s *Store) get(key []byte, dst any) (bool, error) {
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(settingsBucket).Get(key)
		if v == nil {
			return nil
		}

		found = true

		return json.Unmarshal(v, dst)
	})
	if err != nil {
		return found, fmt.Errorf("reading setting %s: %w", key, err)
	}

	return found, nil
}

func (s *Store) put(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", key, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(settingsBucket).Put(key, data)
	})
}
