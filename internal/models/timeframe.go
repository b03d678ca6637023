package models

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is the fixed duration of one candle.
type Timeframe string

// Supported timeframes.
const (
	Timeframe5m  Timeframe = "5m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe6h  Timeframe = "6h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
)

// Provenance classifies how a timeframe's data is obtained.
type Provenance int

const (
	// ProvenanceDirect timeframes are fetched from the public Exchange API.
	ProvenanceDirect Provenance = iota
	// ProvenanceAuthenticated timeframes require the Advanced Trade API
	// with a signed request.
	ProvenanceAuthenticated
	// ProvenanceDerived timeframes have no fetchable source and are
	// resampled from a finer direct timeframe.
	ProvenanceDerived
)

// String returns the provenance name for logging.
func (p Provenance) String() string {
	switch p {
	case ProvenanceDirect:
		return "direct"
	case ProvenanceAuthenticated:
		return "authenticated"
	case ProvenanceDerived:
		return "derived"
	default:
		return "unknown"
	}
}

// timeframeSpec holds the static properties of one timeframe.
type timeframeSpec struct {
	duration   time.Duration
	provenance Provenance
	source     Timeframe // finer timeframe a derived one resamples from
	sheetName  string
}

var timeframeTable = map[Timeframe]timeframeSpec{
	Timeframe5m:  {duration: 5 * time.Minute, provenance: ProvenanceDirect, sheetName: "M5"},
	Timeframe30m: {duration: 30 * time.Minute, provenance: ProvenanceAuthenticated, sheetName: "M30"},
	Timeframe1h:  {duration: time.Hour, provenance: ProvenanceDirect, sheetName: "H1"},
	Timeframe4h:  {duration: 4 * time.Hour, provenance: ProvenanceDerived, source: Timeframe1h, sheetName: "H4"},
	Timeframe6h:  {duration: 6 * time.Hour, provenance: ProvenanceDirect, sheetName: "H6"},
	Timeframe1d:  {duration: 24 * time.Hour, provenance: ProvenanceDirect, sheetName: "D1"},
	Timeframe1w:  {duration: 7 * 24 * time.Hour, provenance: ProvenanceDerived, source: Timeframe1d, sheetName: "W1"},
}

// ParseTimeframe converts a user-supplied string such as "1h" into a
// Timeframe. The match is case-insensitive.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := timeframeTable[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q (supported: %s)", s, strings.Join(TimeframeNames(), ", "))
	}
	return tf, nil
}

// ParseTimeframes converts a comma-separated list such as "1h,4h,1d".
func ParseTimeframes(s string) ([]Timeframe, error) {
	parts := strings.Split(s, ",")
	tfs := make([]Timeframe, 0, len(parts))
	for _, p := range parts {
		tf, err := ParseTimeframe(p)
		if err != nil {
			return nil, err
		}
		tfs = append(tfs, tf)
	}
	if len(tfs) == 0 {
		return nil, fmt.Errorf("at least one timeframe is required")
	}
	return tfs, nil
}

// Valid reports whether the timeframe is one of the supported values.
func (tf Timeframe) Valid() bool {
	_, ok := timeframeTable[tf]
	return ok
}

// Duration returns the wall-clock length of one bar.
func (tf Timeframe) Duration() time.Duration {
	return timeframeTable[tf].duration
}

// Seconds returns the bar length in whole seconds, the unit the exchange
// API uses for granularity parameters.
func (tf Timeframe) Seconds() int {
	return int(timeframeTable[tf].duration / time.Second)
}

// Provenance returns how data for this timeframe is obtained.
func (tf Timeframe) Provenance() Provenance {
	return timeframeTable[tf].provenance
}

// Source returns the finer timeframe a derived timeframe is resampled
// from. The second return value is false for non-derived timeframes.
func (tf Timeframe) Source() (Timeframe, bool) {
	spec := timeframeTable[tf]
	if spec.provenance != ProvenanceDerived {
		return "", false
	}
	return spec.source, true
}

// SheetName returns the worksheet tab name used by the spreadsheet sync.
func (tf Timeframe) SheetName() string {
	return timeframeTable[tf].sheetName
}

// String implements fmt.Stringer.
func (tf Timeframe) String() string {
	return string(tf)
}

// TimeframeNames returns the supported timeframe strings ordered from
// finest to coarsest, for help text and error messages.
func TimeframeNames() []string {
	return []string{"5m", "30m", "1h", "4h", "6h", "1d", "1w"}
}

// AllTimeframes returns the supported timeframes ordered from finest to
// coarsest.
func AllTimeframes() []Timeframe {
	return []Timeframe{Timeframe5m, Timeframe30m, Timeframe1h, Timeframe4h, Timeframe6h, Timeframe1d, Timeframe1w}
}
