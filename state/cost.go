package state

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cost is a link or path metric. INF marks an unreachable destination.
type Cost float64

var INF = Cost(math.Inf(1))

func (c Cost) IsInf() bool {
	return math.IsInf(float64(c), 1)
}

func (c Cost) String() string {
	if c.IsInf() {
		return "inf"
	}
	return strconv.FormatFloat(float64(c), 'f', -1, 64)
}

// ParseCost accepts "inf" and any float literal, so peers that render costs
// as "1.0" interoperate with ones that render "1".
func ParseCost(s string) (Cost, error) {
	if strings.EqualFold(s, "inf") {
		return INF, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || f < 0 {
		return 0, fmt.Errorf("invalid cost %q", s)
	}
	return Cost(f), nil
}

func (c Cost) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Cost) UnmarshalText(text []byte) error {
	v, err := ParseCost(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
