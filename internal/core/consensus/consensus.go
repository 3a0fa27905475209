// Package consensus implements the vote-evaluation rules for an estimation
// round. Evaluation is a pure function of the submitted votes, the configured
// mode, and the round number.
package consensus

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Mode selects the agreement rule applied after the first round.
type Mode int

const (
	// ModeUnspecified represents an invalid consensus mode.
	ModeUnspecified Mode = iota
	// ModeStrict requires every vote to match exactly.
	ModeStrict
	// ModeMean agrees on the arithmetic mean of the numeric votes.
	ModeMean
	// ModeMedian agrees on the median of the numeric votes.
	ModeMedian
	// ModeMajority agrees on a value backed by more than half the numeric votes.
	ModeMajority
)

// Label returns the wire label for a mode.
func (m Mode) Label() string {
	switch m {
	case ModeStrict:
		return "strict"
	case ModeMean:
		return "mean"
	case ModeMedian:
		return "median"
	case ModeMajority:
		return "majority"
	default:
		return "unspecified"
	}
}

// ModeFromLabel converts a wire label to a Mode value.
func ModeFromLabel(label string) Mode {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "strict":
		return ModeStrict
	case "mean":
		return ModeMean
	case "median":
		return ModeMedian
	case "majority":
		return ModeMajority
	default:
		return ModeUnspecified
	}
}

// Result is the verdict for one evaluation of a round.
type Result struct {
	// Agreed reports whether the round reached agreement.
	Agreed bool
	// Value is the agreed estimate. It is meaningful only when Agreed is
	// true and AllCoffee is false.
	Value string
	// AllCoffee reports that every player voted for a coffee break. The
	// verdict then carries no estimate value.
	AllCoffee bool
}

// IsCoffee reports whether a vote token is a coffee break request.
// Matching is case-insensitive and accent-insensitive: "Café", "cafe" and
// "café" are all coffee votes.
func IsCoffee(vote string) bool {
	folded := foldAccents(strings.TrimSpace(vote))
	return strings.EqualFold(folded, "cafe") || strings.EqualFold(folded, "coffee")
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// Evaluate decides whether the given ordered votes reach agreement.
//
// Callers must only invoke Evaluate once every player has voted. The first
// round is always evaluated under strict unanimity regardless of mode; a
// unanimous coffee vote short-circuits everything and carries no value.
func Evaluate(votes []string, mode Mode, round int) Result {
	if len(votes) == 0 {
		return Result{}
	}

	allCoffee := true
	for _, vote := range votes {
		if !IsCoffee(vote) {
			allCoffee = false
			break
		}
	}
	if allCoffee {
		return Result{Agreed: true, AllCoffee: true}
	}

	if round <= 1 || mode == ModeStrict || mode == ModeUnspecified {
		return evaluateStrict(votes)
	}

	numbers := numericPool(votes)
	switch mode {
	case ModeMean:
		if len(numbers) == 0 {
			return Result{}
		}
		sum := 0.0
		for _, n := range numbers {
			sum += n
		}
		return Result{Agreed: true, Value: formatEstimate(sum / float64(len(numbers)))}
	case ModeMedian:
		if len(numbers) == 0 {
			return Result{}
		}
		return Result{Agreed: true, Value: formatEstimate(median(numbers))}
	case ModeMajority:
		return evaluateMajority(numbers)
	default:
		return Result{}
	}
}

func evaluateStrict(votes []string) Result {
	first := votes[0]
	for _, vote := range votes[1:] {
		if vote != first {
			return Result{}
		}
	}
	return Result{Agreed: true, Value: first}
}

// numericPool converts the non-coffee votes to numbers, dropping any token
// that fails to parse. The "1/2" card maps to 0.5.
func numericPool(votes []string) []float64 {
	numbers := make([]float64, 0, len(votes))
	for _, vote := range votes {
		if IsCoffee(vote) {
			continue
		}
		if n, ok := parseVote(vote); ok {
			numbers = append(numbers, n)
		}
	}
	return numbers
}

func parseVote(vote string) (float64, bool) {
	trimmed := strings.TrimSpace(vote)
	if trimmed == "1/2" {
		return 0.5, true
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func median(numbers []float64) float64 {
	sorted := append([]float64(nil), numbers...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// evaluateMajority tallies exact numeric values and agrees when one value's
// count strictly exceeds half the numeric pool. At most one value can clear
// that bar, so first-seen order only decides which key surfaces when float
// formatting collapses distinct tokens onto the same value.
func evaluateMajority(numbers []float64) Result {
	if len(numbers) == 0 {
		return Result{}
	}
	counts := make(map[float64]int, len(numbers))
	order := make([]float64, 0, len(numbers))
	for _, n := range numbers {
		if _, seen := counts[n]; !seen {
			order = append(order, n)
		}
		counts[n]++
	}
	for _, n := range order {
		if counts[n]*2 > len(numbers) {
			return Result{Agreed: true, Value: strconv.FormatFloat(n, 'f', -1, 64)}
		}
	}
	return Result{}
}

// formatEstimate renders a computed estimate with exactly one decimal digit.
func formatEstimate(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
