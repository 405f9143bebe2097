package monitor

import (
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/matoracle/internal/models"
	"github.com/rewired-gh/matoracle/internal/storage"
)

func newTestMonitor(t *testing.T) (*Monitor, *storage.Storage) {
	t.Helper()
	s, err := storage.New(100, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return New(s, DefaultConfig()), s
}

func testSnapshot(name string, mismatch float64) models.MarketSnapshot {
	return models.MarketSnapshot{
		Name:          name,
		Symbol:        strings.ToUpper(name[:3]),
		Price:         100,
		DemandIndex:   55,
		SupplyIndex:   55 - mismatch,
		MismatchScore: mismatch,
		AlertLevel:    models.LevelNormal,
		History: []models.PricePoint{
			{Date: "2026-08-31", Price: 100, Demand: 55, Supply: 55 - mismatch, Mismatch: mismatch},
		},
		LastUpdate: time.Now(),
	}
}

func TestMismatch(t *testing.T) {
	if got := Mismatch(50.0, 62.5); got != -12.5 {
		t.Errorf("Mismatch(50, 62.5) = %v, want -12.5", got)
	}
	if got := Mismatch(62.5, 50.0); got != 12.5 {
		t.Errorf("Mismatch(62.5, 50) = %v, want 12.5", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		mismatch       float64
		warn, critical float64
		want           models.AlertLevel
	}{
		{"well below warn", 0.3, 1.5, 2.0, models.LevelNormal},
		{"just below warn", 1.49, 1.5, 2.0, models.LevelNormal},
		{"exactly warn (inclusive)", 1.5, 1.5, 2.0, models.LevelWarn},
		{"between thresholds", 1.8, 1.5, 2.0, models.LevelWarn},
		{"exactly critical (inclusive)", 2.0, 1.5, 2.0, models.LevelCritical},
		{"above critical", 2.3, 1.5, 2.0, models.LevelCritical},
		{"negative magnitude counts", -12.5, 1.5, 2.0, models.LevelCritical},
		{"negative warn", -1.6, 1.5, 2.0, models.LevelWarn},
		{"coinciding thresholds favor critical", 1.5, 1.5, 1.5, models.LevelCritical},
		{"zero mismatch", 0, 1.5, 2.0, models.LevelNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.mismatch, tt.warn, tt.critical); got != tt.want {
				t.Errorf("Classify(%v, %v, %v) = %v, want %v",
					tt.mismatch, tt.warn, tt.critical, got, tt.want)
			}
		})
	}
}

func TestEvaluateNormalProducesNoAlert(t *testing.T) {
	m, s := newTestMonitor(t)
	alert, err := m.Evaluate(testSnapshot("Copper", 0.5), models.DefaultSettings(), time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if alert != nil {
		t.Errorf("expected no alert for normal level, got %+v", alert)
	}
	logged, _ := s.RecentAlerts(10)
	if len(logged) != 0 {
		t.Errorf("alert log should be empty, has %d entries", len(logged))
	}
}

func TestEvaluateRaisesCriticalAlert(t *testing.T) {
	m, _ := newTestMonitor(t)
	now := time.Now()
	alert, err := m.Evaluate(testSnapshot("Copper", 2.3), models.DefaultSettings(), now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if alert == nil {
		t.Fatal("expected an alert for mismatch 2.3 with thresholds 1.5/2.0")
	}
	if alert.Level != models.LevelCritical {
		t.Errorf("level = %v, want critical", alert.Level)
	}
	if !strings.Contains(alert.Message, "demand exceeds supply by 2.30") {
		t.Errorf("message should state demand-led direction with magnitude, got %q", alert.Message)
	}
	if !strings.HasPrefix(alert.ID, "COP-") {
		t.Errorf("alert ID should derive from the symbol, got %q", alert.ID)
	}
	if alert.Read {
		t.Error("new alerts must start unread")
	}
}

func TestEvaluateSupplyLedDirection(t *testing.T) {
	m, _ := newTestMonitor(t)
	alert, err := m.Evaluate(testSnapshot("Nickel", -12.5), models.DefaultSettings(), time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if alert == nil {
		t.Fatal("expected a critical alert for mismatch -12.5")
	}
	if alert.Level != models.LevelCritical {
		t.Errorf("level = %v, want critical", alert.Level)
	}
	if !strings.Contains(alert.Message, "supply exceeds demand by 12.50") {
		t.Errorf("message should state supply-led direction, got %q", alert.Message)
	}
}

func TestEvaluateDuplicateSuppression(t *testing.T) {
	m, s := newTestMonitor(t)
	settings := models.DefaultSettings()
	snap := testSnapshot("Copper", 2.3)
	base := time.Now()

	first, err := m.Evaluate(snap, settings, base)
	if err != nil || first == nil {
		t.Fatalf("first Evaluate: alert=%v err=%v", first, err)
	}

	// Second occurrence 30 minutes later: same market, same level → suppressed.
	second, err := m.Evaluate(snap, settings, base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if second != nil {
		t.Error("expected duplicate within the suppression window to be suppressed")
	}

	// Third occurrence past the window → raised again.
	third, err := m.Evaluate(snap, settings, base.Add(61*time.Minute))
	if err != nil {
		t.Fatalf("third Evaluate: %v", err)
	}
	if third == nil {
		t.Error("expected alert past the suppression window to be raised")
	}

	logged, _ := s.RecentAlerts(10)
	if len(logged) != 2 {
		t.Errorf("alert log has %d entries, want 2", len(logged))
	}
}

func TestEvaluateSuppressionIsCaseInsensitive(t *testing.T) {
	m, _ := newTestMonitor(t)
	settings := models.DefaultSettings()
	base := time.Now()

	if alert, err := m.Evaluate(testSnapshot("Copper", 2.3), settings, base); err != nil || alert == nil {
		t.Fatalf("first Evaluate: alert=%v err=%v", alert, err)
	}
	snap := testSnapshot("Copper", 2.3)
	snap.Name = "copper"
	dup, err := m.Evaluate(snap, settings, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if dup != nil {
		t.Error("market lookup for suppression should be case-insensitive")
	}
}

func TestEvaluateDifferentLevelNotSuppressed(t *testing.T) {
	m, _ := newTestMonitor(t)
	settings := models.DefaultSettings()
	base := time.Now()

	warnAlert, err := m.Evaluate(testSnapshot("Copper", 1.8), settings, base)
	if err != nil || warnAlert == nil {
		t.Fatalf("warn Evaluate: alert=%v err=%v", warnAlert, err)
	}
	critAlert, err := m.Evaluate(testSnapshot("Copper", 2.5), settings, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("critical Evaluate: %v", err)
	}
	if critAlert == nil {
		t.Error("a different severity for the same market must not be suppressed")
	}
}

func TestEvaluateAll(t *testing.T) {
	m, _ := newTestMonitor(t)
	settings := models.DefaultSettings()
	snapshots := []models.MarketSnapshot{
		testSnapshot("Copper", 0.2),
		testSnapshot("Nickel", 1.7),
		testSnapshot("Cobalt", -3.0),
	}

	raised, err := m.EvaluateAll(snapshots, settings, time.Now())
	if err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	if len(raised) != 2 {
		t.Fatalf("raised %d alerts, want 2", len(raised))
	}
	if raised[0].Market != "Nickel" || raised[0].Level != models.LevelWarn {
		t.Errorf("unexpected first alert: %+v", raised[0])
	}
	if raised[1].Market != "Cobalt" || raised[1].Level != models.LevelCritical {
		t.Errorf("unexpected second alert: %+v", raised[1])
	}
}
