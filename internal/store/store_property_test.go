package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"nse-monitor/internal/models"
)

// Property: any sequence of adds and removes leaves the reloaded store with
// exactly the symbols a plain set model predicts.
func TestProperty_AddRemoveMatchesSetModel(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"RELIANCE", "TCS", "INFY", "HDFCBANK", "SBIN", "ITC"}

	opGen := gen.SliceOf(gen.IntRange(0, 2*len(symbols)-1))

	properties.Property("persisted symbols match set model", prop.ForAll(
		func(ops []int) bool {
			path := filepath.Join(t.TempDir(), "state.json")
			s := New(NewJSONPersister(path), zerolog.Nop())
			model := make(map[string]bool)

			for _, op := range ops {
				sym := symbols[op%len(symbols)]
				if op < len(symbols) {
					if err := s.Add(sym, models.Float(200), models.Float(100)); err != nil {
						return false
					}
					model[sym] = true
				} else {
					existed := model[sym]
					if s.Remove(sym) != existed {
						return false
					}
					delete(model, sym)
				}
			}

			reloaded := New(NewJSONPersister(path), zerolog.Nop())
			got := reloaded.Symbols()
			if len(got) != len(model) {
				return false
			}
			for _, sym := range got {
				if !model[sym] {
					return false
				}
			}
			return true
		},
		opGen,
	))

	properties.TestingRun(t)
}

// Property: whitespace-only symbols are always rejected without mutation.
func TestProperty_BlankSymbolRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	blankGen := gen.SliceOf(gen.OneConstOf(" ", "\t", "\n")).Map(func(parts []string) string {
		out := ""
		for _, p := range parts {
			out += p
		}
		return out
	})

	properties.Property("blank symbol add fails", prop.ForAll(
		func(sym string) bool {
			s := New(nil, zerolog.Nop())
			return s.Add(sym, models.Float(10), nil) != nil && s.Len() == 0
		},
		blankGen,
	))

	properties.TestingRun(t)
}
