// Package models defines the core domain entities: market snapshots, alerts, and settings.
package models

import (
	"errors"
	"time"
)

// DateLayout is the calendar-date format used for history points.
const DateLayout = "2006-01-02"

// AlertLevel classifies the severity of a demand/supply mismatch.
type AlertLevel string

const (
	LevelNormal   AlertLevel = "normal"
	LevelWarn     AlertLevel = "warn"
	LevelCritical AlertLevel = "critical"
)

// Valid reports whether l is one of the three known levels.
func (l AlertLevel) Valid() bool {
	return l == LevelNormal || l == LevelWarn || l == LevelCritical
}

// PricePoint is one day's synthetic observation for a market.
// Mismatch is demand minus supply, stored redundantly for display.
// Points are immutable once generated.
type PricePoint struct {
	Date     string  `json:"date"`
	Price    float64 `json:"price"`
	Demand   float64 `json:"demand"`
	Supply   float64 `json:"supply"`
	Mismatch float64 `json:"mismatch"`
}

// MarketSnapshot is the current state of one tracked market.
// All summary fields are derived from History; AlertLevel in particular
// always equals the classifier's output for MismatchScore and the
// thresholds in effect at generation time.
type MarketSnapshot struct {
	Name          string       `json:"name"`
	Symbol        string       `json:"symbol"`
	Price         float64      `json:"price"`
	Change24h     float64      `json:"change_24h"`
	DemandIndex   float64      `json:"demand_index"`
	SupplyIndex   float64      `json:"supply_index"`
	MismatchScore float64      `json:"mismatch_score"`
	ZScore        float64      `json:"z_score"`
	EMA20         float64      `json:"ema_20"`
	EMA50         float64      `json:"ema_50"`
	History       []PricePoint `json:"history"`
	AlertLevel    AlertLevel   `json:"alert_level"`
	LastUpdate    time.Time    `json:"last_update"`
}

// Validate checks snapshot field constraints.
func (s *MarketSnapshot) Validate() error {
	if s.Name == "" {
		return errors.New("market name must not be empty")
	}
	if s.Symbol == "" {
		return errors.New("market symbol must not be empty")
	}
	if s.Price <= 0 {
		return errors.New("price must be positive")
	}
	if !s.AlertLevel.Valid() {
		return errors.New("alert level must be normal, warn, or critical")
	}
	if len(s.History) == 0 {
		return errors.New("history must not be empty")
	}
	for i := 1; i < len(s.History); i++ {
		if s.History[i].Date <= s.History[i-1].Date {
			return errors.New("history dates must be strictly ascending")
		}
	}
	if s.LastUpdate.IsZero() {
		return errors.New("last update must be set")
	}
	return nil
}

// Alert is a single raised notification. Alerts are append-only; only
// the Read flag is mutable after creation.
type Alert struct {
	ID        string     `json:"id"`
	Market    string     `json:"market"`
	Level     AlertLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Read      bool       `json:"read"`
}

// Validate checks alert field constraints. Normal never produces an alert.
func (a *Alert) Validate() error {
	if a.ID == "" {
		return errors.New("alert ID must not be empty")
	}
	if a.Market == "" {
		return errors.New("alert market must not be empty")
	}
	if a.Level != LevelWarn && a.Level != LevelCritical {
		return errors.New("alert level must be warn or critical")
	}
	if a.Message == "" {
		return errors.New("alert message must not be empty")
	}
	if a.Timestamp.IsZero() {
		return errors.New("alert timestamp must be set")
	}
	return nil
}
