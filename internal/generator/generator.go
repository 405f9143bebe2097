// Package generator produces synthetic price/demand/supply series and
// assembles market snapshots from them. It is a randomized stand-in for a
// live feed: the walk is seedable so tests can pin the series, and every
// snapshot summary field is derived from the generated history alone.
package generator

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rewired-gh/matoracle/internal/models"
	"github.com/rewired-gh/matoracle/internal/monitor"
	"github.com/rewired-gh/matoracle/internal/stats"
)

type Config struct {
	HistoryDays    int     // points per freshly generated series
	BasePrice      float64 // lower bound of the starting price
	PriceSpan      float64 // random spread above BasePrice at the start
	StepFraction   float64 // 0.05 → multiplicative steps in ±2.5%
	IndexBase      float64 // demand/supply baseline
	IndexSpan      float64 // random spread above the baseline
	DriftAmplitude float64 // sinusoidal drift on demand/supply
	DriftPeriod    float64 // days per radian of drift phase
	RetainPrior    int     // prior-history points kept on refresh
	RetainNew      int     // fresh-history points appended on refresh
}

func DefaultConfig() Config {
	return Config{
		HistoryDays:    91,
		BasePrice:      100,
		PriceSpan:      50,
		StepFraction:   0.05,
		IndexBase:      50,
		IndexSpan:      30,
		DriftAmplitude: 10,
		DriftPeriod:    10,
		RetainPrior:    60,
		RetainNew:      30,
	}
}

// Generator builds snapshots for named markets.
type Generator struct {
	config Config
	rng    *rand.Rand
	now    func() time.Time
}

// New creates a generator. A zero seed draws one from the clock.
func New(config Config, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
		now:    time.Now,
	}
}

// Symbol derives the short display code for a market name.
func Symbol(name string) string {
	if len(name) > 3 {
		name = name[:3]
	}
	return strings.ToUpper(name)
}

// Generate builds a from-scratch snapshot for name: a random-walk price
// series and sine/cosine-phased demand/supply series over HistoryDays
// calendar days, oldest first. The opposed drift phases make demand and
// supply diverge and converge cyclically instead of moving in lockstep.
func (g *Generator) Generate(name string, settings models.Settings) models.MarketSnapshot {
	now := g.now()
	history := make([]models.PricePoint, 0, g.config.HistoryDays)
	price := g.config.BasePrice + g.rng.Float64()*g.config.PriceSpan

	for i := g.config.HistoryDays - 1; i >= 0; i-- {
		price *= 1 + (g.rng.Float64()-0.5)*g.config.StepFraction
		demand := g.config.IndexBase + g.rng.Float64()*g.config.IndexSpan +
			math.Sin(float64(i)/g.config.DriftPeriod)*g.config.DriftAmplitude
		supply := g.config.IndexBase + g.rng.Float64()*g.config.IndexSpan +
			math.Cos(float64(i)/g.config.DriftPeriod)*g.config.DriftAmplitude

		history = append(history, models.PricePoint{
			Date:     now.AddDate(0, 0, -i).Format(models.DateLayout),
			Price:    stats.Round2(price),
			Demand:   stats.Round2(demand),
			Supply:   stats.Round2(supply),
			Mismatch: stats.Round2(monitor.Mismatch(demand, supply)),
		})
	}

	return BuildSnapshot(name, history, settings, now)
}

// Refresh generates a fresh series for the market and splices it onto the
// prior history: the most recent RetainPrior prior points followed by the
// most recent RetainNew fresh points. The spliced series is re-dated to end
// at the generation date so dates stay unique and ascending, and all summary
// fields are recomputed from it.
func (g *Generator) Refresh(prev models.MarketSnapshot, settings models.Settings) models.MarketSnapshot {
	fresh := g.Generate(prev.Name, settings)

	prior := lastN(prev.History, g.config.RetainPrior)
	tail := lastN(fresh.History, g.config.RetainNew)

	history := make([]models.PricePoint, 0, len(prior)+len(tail))
	history = append(history, prior...)
	history = append(history, tail...)

	now := fresh.LastUpdate
	for i := range history {
		history[i].Date = now.AddDate(0, 0, i-(len(history)-1)).Format(models.DateLayout)
	}

	return BuildSnapshot(prev.Name, history, settings, now)
}

// BuildSnapshot derives every summary field of a snapshot from history.
// The history must not be empty.
func BuildSnapshot(name string, history []models.PricePoint, settings models.Settings, now time.Time) models.MarketSnapshot {
	prices := make([]float64, len(history))
	for i, p := range history {
		prices[i] = p.Price
	}

	latest := history[len(history)-1]
	mismatchScore := latest.Mismatch

	return models.MarketSnapshot{
		Name:          name,
		Symbol:        Symbol(name),
		Price:         latest.Price,
		Change24h:     change24h(prices),
		DemandIndex:   latest.Demand,
		SupplyIndex:   latest.Supply,
		MismatchScore: mismatchScore,
		ZScore:        stats.ZScore(latest.Price, stats.Mean(prices), stats.StdDev(prices)),
		EMA20:         stats.EMA(prices, 20),
		EMA50:         stats.EMA(prices, 50),
		History:       history,
		AlertLevel:    monitor.Classify(mismatchScore, settings.WarnThreshold, settings.CriticalThreshold),
		LastUpdate:    now,
	}
}

// change24h is the percent change between the last two points, rounded to
// two decimals. Fewer than two points yield 0.
func change24h(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	last, prev := prices[len(prices)-1], prices[len(prices)-2]
	return stats.Round2((last - prev) / prev * 100)
}

func lastN(points []models.PricePoint, n int) []models.PricePoint {
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}
