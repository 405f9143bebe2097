// Package monitor holds the mismatch classifier and the alert decision
// policy. Classification is a pure function; the policy's only state is the
// persisted alert log, which makes duplicate suppression survive restarts.
package monitor

import (
	"fmt"
	"math"
	"time"

	"github.com/rewired-gh/matoracle/internal/logger"
	"github.com/rewired-gh/matoracle/internal/models"
	"github.com/rewired-gh/matoracle/internal/storage"
)

type Config struct {
	SuppressionWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		SuppressionWindow: time.Hour,
	}
}

// Mismatch combines demand and supply into a single signed indicator.
// Positive means demand exceeds supply.
func Mismatch(demand, supply float64) float64 {
	return demand - supply
}

// Classify maps the mismatch magnitude onto a severity. Both comparisons are
// inclusive, so the more severe level wins when the thresholds coincide.
func Classify(mismatch, warnThreshold, criticalThreshold float64) models.AlertLevel {
	abs := math.Abs(mismatch)
	if abs >= criticalThreshold {
		return models.LevelCritical
	}
	if abs >= warnThreshold {
		return models.LevelWarn
	}
	return models.LevelNormal
}

// Monitor decides whether a snapshot raises a new alert.
type Monitor struct {
	storage *storage.Storage
	config  Config
}

func New(s *storage.Storage, config Config) *Monitor {
	return &Monitor{storage: s, config: config}
}

// Evaluate classifies snapshot against settings and appends a new alert to
// the log unless an alert with the same market and level was raised within
// the suppression window. It returns the appended alert, or nil when the
// level is normal or the candidate was suppressed as a duplicate.
func (m *Monitor) Evaluate(snapshot models.MarketSnapshot, settings models.Settings, now time.Time) (*models.Alert, error) {
	level := Classify(snapshot.MismatchScore, settings.WarnThreshold, settings.CriticalThreshold)
	if level == models.LevelNormal {
		return nil, nil
	}

	candidate := models.Alert{
		ID:        fmt.Sprintf("%s-%d", snapshot.Symbol, now.UnixMilli()),
		Market:    snapshot.Name,
		Level:     level,
		Message:   alertMessage(snapshot),
		Timestamp: now,
	}

	recent, err := m.storage.HasRecentAlert(snapshot.Name, level, now.Add(-m.config.SuppressionWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to check for recent alert: %w", err)
	}
	if recent {
		logger.Debug("Suppressed duplicate %s alert for %s", level, snapshot.Name)
		return nil, nil
	}

	if err := m.storage.AddAlert(&candidate); err != nil {
		return nil, fmt.Errorf("failed to append alert: %w", err)
	}
	logger.Info("Raised %s alert for %s: %s", level, snapshot.Name, candidate.Message)
	return &candidate, nil
}

// EvaluateAll runs the decision policy for every snapshot and returns the
// alerts that were actually appended.
func (m *Monitor) EvaluateAll(snapshots []models.MarketSnapshot, settings models.Settings, now time.Time) ([]models.Alert, error) {
	var raised []models.Alert
	for _, snap := range snapshots {
		alert, err := m.Evaluate(snap, settings, now)
		if err != nil {
			return raised, err
		}
		if alert != nil {
			raised = append(raised, *alert)
		}
	}
	return raised, nil
}

func alertMessage(snapshot models.MarketSnapshot) string {
	magnitude := math.Abs(snapshot.MismatchScore)
	if snapshot.MismatchScore > 0 {
		return fmt.Sprintf("%s: demand exceeds supply by %.2f", snapshot.Name, magnitude)
	}
	return fmt.Sprintf("%s: supply exceeds demand by %.2f", snapshot.Name, magnitude)
}
