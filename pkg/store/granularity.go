package store

import (
	"fmt"

	"github.com/veiloq/exchange-bridge/pkg/exchange"
)

// Timeframe is the engine's bar interval unit.
type Timeframe int

const (
	Ticks Timeframe = iota
	Minutes
	Days
	Weeks
	Months
	Years
)

func (t Timeframe) String() string {
	switch t {
	case Ticks:
		return "ticks"
	case Minutes:
		return "minutes"
	case Days:
		return "days"
	case Weeks:
		return "weeks"
	case Months:
		return "months"
	case Years:
		return "years"
	default:
		return "unknown"
	}
}

type granularityKey struct {
	timeframe   Timeframe
	compression int
}

// Supported (unit, multiplier) pairs and their exchange granularity codes.
var granularities = map[granularityKey]string{
	{Minutes, 1}:   "1m",
	{Minutes, 3}:   "3m",
	{Minutes, 5}:   "5m",
	{Minutes, 15}:  "15m",
	{Minutes, 30}:  "30m",
	{Minutes, 60}:  "1h",
	{Minutes, 90}:  "90m",
	{Minutes, 120}: "2h",
	{Minutes, 180}: "3h",
	{Minutes, 240}: "4h",
	{Minutes, 360}: "6h",
	{Minutes, 480}: "8h",
	{Minutes, 720}: "12h",
	{Days, 1}:      "1d",
	{Days, 3}:      "3d",
	{Weeks, 1}:     "1w",
	{Weeks, 2}:     "2w",
	{Months, 1}:    "1M",
	{Months, 3}:    "3M",
	{Months, 6}:    "6M",
	{Years, 1}:     "1y",
}

// Granularity resolves a (timeframe, compression) pair to the exchange's
// granularity code. It fails before any network call when the pair is
// not in the supported table, when the exchange cannot fetch OHLCV at
// all, or when the exchange's published timeframe list does not include
// the code.
func (s *Store) Granularity(timeframe Timeframe, compression int) (string, error) {
	if !s.client.Has(exchange.FeatureFetchOHLCV) {
		return "", fmt.Errorf("%q exchange doesn't support fetching OHLCV data: %w",
			s.client.Name(), exchange.ErrUnsupportedFeature)
	}

	code, ok := granularities[granularityKey{timeframe, compression}]
	if !ok {
		return "", fmt.Errorf("fetching OHLCV data is not supported for time frame %s, compression %d",
			timeframe, compression)
	}

	if published := s.client.Timeframes(); len(published) > 0 {
		supported := false
		for _, tf := range published {
			if tf == code {
				supported = true
				break
			}
		}
		if !supported {
			return "", fmt.Errorf("%q exchange doesn't support fetching OHLCV data for %s time frame",
				s.client.Name(), code)
		}
	}

	return code, nil
}
