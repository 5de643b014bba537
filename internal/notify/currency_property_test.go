package notify

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var indianGrouping = regexp.MustCompile(`^(\d{1,2},)*\d{1,3}$`)

func parseCurrency(s string) float64 {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "₹")
	v, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if neg {
		return -v
	}
	return v
}

func TestProperty_CurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("uses rupee sign, two decimals and lakh grouping", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatCurrency(amount)
			body := formatted
			if strings.HasPrefix(body, "-") {
				body = body[1:]
			}
			if !strings.HasPrefix(body, "₹") {
				return false
			}
			parts := strings.Split(strings.TrimPrefix(body, "₹"), ".")
			return len(parts) == 2 && len(parts[1]) == 2 && indianGrouping.MatchString(parts[0])
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("preserves the value to the paisa", prop.ForAll(
		func(amount float64) bool {
			parsed := parseCurrency(FormatCurrency(amount))
			return math.Abs(parsed-math.Round(amount*100)/100) <= 0.01
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}
