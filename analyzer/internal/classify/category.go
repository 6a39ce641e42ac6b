package classify

import (
	"fmt"

	"github.com/pinglog/pinglog/analyzer/internal/compute"
)

// Category is the closed set of line classifications.
type Category int

const (
	Comment Category = iota
	Initialization
	Timestamp
	Normal
	NegativeRTT
	RTTTooLong
	Timeout
	Down
	Route
	GWFailure
	Unexpected

	numCategories
)

var categoryNames = [numCategories]string{
	Comment:        "Comment",
	Initialization: "Initialization",
	Timestamp:      "Timestamp",
	Normal:         "Normal",
	NegativeRTT:    "NegativeRTT",
	RTTTooLong:     "RTTTooLong",
	Timeout:        "Timeout",
	Down:           "Down",
	Route:          "Route",
	GWFailure:      "GWFailure",
	Unexpected:     "Unexpected",
}

// All returns every category in declaration order.
func All() []Category {
	out := make([]Category, numCategories)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// MarshalText renders the category by name so it can key JSON and YAML maps.
func (c Category) MarshalText() ([]byte, error) {
	if c < 0 || c >= numCategories {
		return nil, fmt.Errorf("classify: unknown category %d", int(c))
	}
	return []byte(categoryNames[c]), nil
}

// UnmarshalText parses a category name as written by MarshalText.
func (c *Category) UnmarshalText(b []byte) error {
	cat, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = cat
	return nil
}

// ParseCategory looks a category up by name.
func ParseCategory(name string) (Category, error) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("classify: unknown category %q", name)
}

// SequenceBearing reports whether events of this category carry evidence
// about the network state at some probe sequence number.
func (c Category) SequenceBearing() bool {
	return c.Evidence() != compute.None
}

// Evidence maps a category to the network state it implies. Replies are up
// evidence, including the anomalous ones; timeouts and send failures are down
// evidence.
func (c Category) Evidence() compute.Evidence {
	switch c {
	case Normal, NegativeRTT, RTTTooLong:
		return compute.Up
	case Timeout, Down, Route, GWFailure:
		return compute.Down
	case Comment, Initialization, Timestamp, Unexpected:
		return compute.None
	default:
		return compute.None
	}
}

// Anomalous reports whether the category is a reply whose round-trip time was
// out of range.
func (c Category) Anomalous() bool {
	return c == NegativeRTT || c == RTTTooLong
}
