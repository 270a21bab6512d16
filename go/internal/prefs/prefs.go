package prefs

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
	ThemeAuto  = "auto"

	DefaultTheme       = ThemeAuto
	DefaultLanguage    = "en"
	DefaultAccentColor = "#3d8361"
)

var (
	ErrInvalidTheme    = errors.New("invalid theme")
	ErrInvalidLanguage = errors.New("invalid language")

	bucketName = []byte("preferences")

	keyAccentColor = []byte("accentColor")
	keyTheme       = []byte("theme")
	keyLanguage    = []byte("language")

	validThemes    = map[string]bool{ThemeLight: true, ThemeDark: true, ThemeAuto: true}
	validLanguages = map[string]bool{"en": true, "de": true}
)

// Preferences are the panel's local display settings. They never leave
// the machine the panel runs on.
type Preferences struct {
	AccentColor string `json:"accentColor"`
	Theme       string `json:"theme"`
	Language    string `json:"language"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		AccentColor: DefaultAccentColor,
		Theme:       DefaultTheme,
		Language:    DefaultLanguage,
	}
}

// Store persists preferences in a bolt file next to the panel binary.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create preferences bucket: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored preferences, falling back to defaults for
// keys that have never been written.
func (s *Store) Load() (Preferences, error) {
	prefs := DefaultPreferences()
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if v := b.Get(keyAccentColor); v != nil {
			prefs.AccentColor = string(v)
		}
		if v := b.Get(keyTheme); v != nil {
			prefs.Theme = string(v)
		}
		if v := b.Get(keyLanguage); v != nil {
			prefs.Language = string(v)
		}
		return nil
	})
	return prefs, err
}

func (s *Store) SetAccentColor(color string) error {
	return s.put(keyAccentColor, color)
}

func (s *Store) SetTheme(theme string) error {
	if !validThemes[theme] {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, theme)
	}
	return s.put(keyTheme, theme)
}

func (s *Store) SetLanguage(language string) error {
	if !validLanguages[language] {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, language)
	}
	return s.put(keyLanguage, language)
}

func (s *Store) put(key []byte, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, []byte(value))
	})
}
