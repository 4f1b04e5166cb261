package escrow

import (
	"regexp"
	"strconv"
)

var leadingQuantity = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)`)

// ParseDurationQuantity pulls the leading number out of free-text rental
// durations such as "3 days" or "2.5 hrs". Anything unusable counts as one unit.
func ParseDurationQuantity(s string) float64 {
	m := leadingQuantity.FindStringSubmatch(s)
	if m == nil {
		return 1
	}
	q, err := strconv.ParseFloat(m[1], 64)
	if err != nil || q <= 0 {
		return 1
	}
	return q
}
