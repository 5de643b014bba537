package detector

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"nse-monitor/internal/models"
)

func countKind(alerts []models.Alert, kind models.AlertKind) int {
	n := 0
	for _, a := range alerts {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// Property: above, back at or below, above again fires exactly two upper
// alerts, at the first and third price.
func TestProperty_UpperHysteresis(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("upper fires at p1 and p3 only", prop.ForAll(
		func(limit, d1, d2, d3 float64) bool {
			rec := &models.ThresholdRecord{Symbol: "X", UpperLimit: models.Float(limit), UpperArmed: true, LowerArmed: true}
			a1 := Evaluate(rec, limit+d1, t0)
			a2 := Evaluate(rec, limit-d2, t0)
			a3 := Evaluate(rec, limit+d3, t0)
			return countKind(a1, models.AlertUpper) == 1 &&
				len(a2) == 0 &&
				countKind(a3, models.AlertUpper) == 1
		},
		gen.Float64Range(1, 10000),
		gen.Float64Range(0.01, 500),
		gen.Float64Range(0, 500),
		gen.Float64Range(0.01, 500),
	))

	properties.TestingRun(t)
}

// Property: the lower boundary mirrors the upper one with < and >=.
func TestProperty_LowerHysteresis(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("lower fires at p1 and p3 only", prop.ForAll(
		func(limit, d1, d2, d3 float64) bool {
			rec := &models.ThresholdRecord{Symbol: "X", LowerLimit: models.Float(limit), UpperArmed: true, LowerArmed: true}
			a1 := Evaluate(rec, limit-d1, t0)
			a2 := Evaluate(rec, limit+d2, t0)
			a3 := Evaluate(rec, limit-d3, t0)
			return countKind(a1, models.AlertLower) == 1 &&
				len(a2) == 0 &&
				countKind(a3, models.AlertLower) == 1
		},
		gen.Float64Range(1000, 10000),
		gen.Float64Range(0.01, 500),
		gen.Float64Range(0, 500),
		gen.Float64Range(0.01, 500),
	))

	properties.TestingRun(t)
}

// Property: a price path that stays within [lower, upper] never alerts.
func TestProperty_NoCrossingNoAlerts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("in-band prices are silent", prop.ForAll(
		func(fractions []float64) bool {
			lower, upper := 100.0, 200.0
			rec := &models.ThresholdRecord{
				Symbol:     "X",
				UpperLimit: models.Float(upper),
				LowerLimit: models.Float(lower),
				UpperArmed: true,
				LowerArmed: true,
			}
			for _, f := range fractions {
				if len(Evaluate(rec, lower+f*(upper-lower), t0)) != 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 1)),
	))

	properties.TestingRun(t)
}

// Property: a price continuously past the boundary alerts once in total.
func TestProperty_SustainedBreachAlertsOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("one alert per excursion", prop.ForAll(
		func(excess []float64) bool {
			rec := &models.ThresholdRecord{Symbol: "X", UpperLimit: models.Float(100), UpperArmed: true, LowerArmed: true}
			total := 0
			for _, e := range excess {
				total += len(Evaluate(rec, 100+e, t0))
			}
			if len(excess) == 0 {
				return total == 0
			}
			return total == 1
		},
		gen.SliceOf(gen.Float64Range(0.01, 1000)),
	))

	properties.TestingRun(t)
}
