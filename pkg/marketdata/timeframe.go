package marketdata

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
)

// Timeframe is a bar interval such as "15m", "4h" or "1d".
// Units: s (second), m (minute), h (hour), d (day), w (week), M (month).
type Timeframe struct {
	multiplier int
	unit       byte
}

var timeframePattern = regexp.MustCompile(`^([1-9][0-9]*)([smhdwM])$`)

// ParseTimeframe parses a timeframe string. An unsupported string is a configuration error.
func ParseTimeframe(s string) (Timeframe, error) {
	matches := timeframePattern.FindStringSubmatch(s)
	if len(matches) != 3 {
		return Timeframe{}, errors.Newf(errors.ErrCodeInvalidTimeframe, "unsupported timeframe %q", s)
	}

	multiplier, err := strconv.Atoi(matches[1])
	if err != nil {
		return Timeframe{}, errors.Wrapf(errors.ErrCodeInvalidTimeframe, err, "unsupported timeframe %q", s)
	}

	return Timeframe{multiplier: multiplier, unit: matches[2][0]}, nil
}

// MustParseTimeframe is ParseTimeframe for constants and tests.
func MustParseTimeframe(s string) Timeframe {
	tf, err := ParseTimeframe(s)
	if err != nil {
		panic(err)
	}

	return tf
}

func (t Timeframe) Multiplier() int {
	return t.multiplier
}

func (t Timeframe) Unit() string {
	return string(t.unit)
}

func (t Timeframe) String() string {
	if t.multiplier == 0 {
		return ""
	}

	return fmt.Sprintf("%d%c", t.multiplier, t.unit)
}

// IsZero reports whether t was never parsed.
func (t Timeframe) IsZero() bool {
	return t.multiplier == 0
}

// UnitDuration is the length of one unit. Months are approximated as 30 days.
func (t Timeframe) UnitDuration() time.Duration {
	switch t.unit {
	case 's':
		return time.Second
	case 'm':
		return time.Minute
	case 'h':
		return time.Hour
	case 'd':
		return 24 * time.Hour
	case 'w':
		return 7 * 24 * time.Hour
	case 'M':
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Duration is the nominal length of one bar.
func (t Timeframe) Duration() time.Duration {
	return time.Duration(t.multiplier) * t.UnitDuration()
}

// IsIntraday reports whether bars are shorter than a day.
func (t Timeframe) IsIntraday() bool {
	return t.Duration() < 24*time.Hour
}

// Timespan maps the unit to the polygon aggregate timespan.
func (t Timeframe) Timespan() models.Timespan {
	switch t.unit {
	case 's':
		return models.Second
	case 'm':
		return models.Minute
	case 'h':
		return models.Hour
	case 'd':
		return models.Day
	case 'w':
		return models.Week
	case 'M':
		return models.Month
	default:
		return models.Day
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Timeframe) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Timeframe) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeframe(string(text))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}
