package capstan

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings holds the host-side playback preferences the library consults:
// whether media-key transport intents are accepted, where companion sound
// banks live, and the rate new transports start at. An instance is injected
// into each transport; there is no process-wide shared settings object.
//
// Settings persist as YAML and are safe for concurrent use.
type Settings struct {
	mu   sync.RWMutex
	data settingsData
}

type settingsData struct {
	MediaKeys     bool    `yaml:"media_keys"`
	SoundBankDir  string  `yaml:"sound_bank_dir"`
	PreferredRate float64 `yaml:"preferred_rate"`
}

// DefaultSettings accepts media keys and plays at normal speed.
func DefaultSettings() *Settings {
	return &Settings{
		data: settingsData{
			MediaKeys:     true,
			PreferredRate: 1.0,
		},
	}
}

// LoadSettings reads settings from a YAML file. Missing fields keep their
// defaults.
func LoadSettings(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	s := DefaultSettings()
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if s.data.PreferredRate <= 0 {
		s.data.PreferredRate = 1.0
	}
	return s, nil
}

// Save writes the settings to a YAML file.
func (s *Settings) Save(path string) error {
	s.mu.RLock()
	raw, err := yaml.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// MediaKeysEnabled reports whether transport intents are accepted. This is
// the policy gate the transport controller consults; it satisfies the
// TransportPolicy contract.
func (s *Settings) MediaKeysEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.MediaKeys
}

// SetMediaKeys enables or disables media-key acceptance.
func (s *Settings) SetMediaKeys(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.MediaKeys = enabled
}

// SoundBankDir returns the directory sound-bank resolvers search.
func (s *Settings) SoundBankDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.SoundBankDir
}

// SetSoundBankDir sets the directory sound-bank resolvers search.
func (s *Settings) SetSoundBankDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.SoundBankDir = dir
}

// PreferredRate returns the rate applied to newly loaded transports.
func (s *Settings) PreferredRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.PreferredRate
}

// SetPreferredRate stores the startup rate. Non-positive rates are ignored;
// the transport would reject them anyway.
func (s *Settings) SetPreferredRate(rate float64) {
	if rate <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.PreferredRate = rate
}
