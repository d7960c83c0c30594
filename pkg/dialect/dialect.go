// Package dialect enumerates the JavaScript feature tiers the serializer
// can target.
package dialect

import (
	"errors"
	"fmt"
)

// ESLevel is a target-language feature tier.
type ESLevel int

// Supported tiers. Higher tiers include everything below them.
const (
	ES5 ESLevel = iota
	ES2015
	ES2020
)

var errUnknownLevel = errors.New("unknown ES level")

// Parse maps a configuration string to an ESLevel.
func Parse(s string) (ESLevel, error) {
	switch s {
	case "", "default", "es2015", "2015", "es6":
		return ES2015, nil
	case "es5", "5":
		return ES5, nil
	case "es2020", "2020":
		return ES2020, nil
	default:
		return ES2015, fmt.Errorf("%w: %q", errUnknownLevel, s)
	}
}

func (l ESLevel) String() string {
	switch l {
	case ES5:
		return "es5"
	case ES2020:
		return "es2020"
	default:
		return "es2015"
	}
}

// AtLeast reports whether the level includes the features of min.
func (l ESLevel) AtLeast(min ESLevel) bool {
	return l >= min
}
