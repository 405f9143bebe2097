package models

import (
	"errors"
	"strings"
	"time"
)

// DefaultMarkets is the default set of tracked raw-material markets.
var DefaultMarkets = []string{"Copper", "Nickel", "Cobalt", "Lithium", "Magnesium", "Aluminium"}

// Settings is the process-wide alerting configuration. It is a singleton
// owned by the persisted store and mutated by partial merge via Apply.
type Settings struct {
	WarnThreshold     float64       `json:"warn_threshold"`
	CriticalThreshold float64       `json:"critical_threshold"`
	RefreshInterval   time.Duration `json:"refresh_interval"`
	Markets           []string      `json:"markets"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		WarnThreshold:     1.5,
		CriticalThreshold: 2.0,
		RefreshInterval:   5 * time.Minute,
		Markets:           append([]string(nil), DefaultMarkets...),
	}
}

// Validate checks settings field constraints. A warn threshold at or above
// the critical threshold is rejected here so that the classifier never sees
// a configuration under which it could not return warn.
func (s *Settings) Validate() error {
	if s.WarnThreshold <= 0 {
		return errors.New("warn threshold must be positive")
	}
	if s.CriticalThreshold <= s.WarnThreshold {
		return errors.New("critical threshold must be greater than warn threshold")
	}
	if s.RefreshInterval <= 0 {
		return errors.New("refresh interval must be positive")
	}
	if len(s.Markets) == 0 {
		return errors.New("at least one market must be tracked")
	}
	for _, m := range s.Markets {
		if strings.TrimSpace(m) == "" {
			return errors.New("market names must not be blank")
		}
	}
	return nil
}

// TracksMarket reports whether name is in the tracked set. Lookups are
// case-insensitive.
func (s *Settings) TracksMarket(name string) bool {
	for _, m := range s.Markets {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}

// SettingsPatch is a partial settings update. Nil fields keep the
// current value.
type SettingsPatch struct {
	WarnThreshold     *float64
	CriticalThreshold *float64
	RefreshInterval   *time.Duration
	Markets           []string
}

// Apply merges patch into a copy of s and returns it. The result is not
// validated; callers decide whether to persist.
func (s Settings) Apply(patch SettingsPatch) Settings {
	if patch.WarnThreshold != nil {
		s.WarnThreshold = *patch.WarnThreshold
	}
	if patch.CriticalThreshold != nil {
		s.CriticalThreshold = *patch.CriticalThreshold
	}
	if patch.RefreshInterval != nil {
		s.RefreshInterval = *patch.RefreshInterval
	}
	if patch.Markets != nil {
		s.Markets = append([]string(nil), patch.Markets...)
	}
	return s
}
