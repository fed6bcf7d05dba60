package models

import "time"

// Column names of a bar when it is flattened into an Observation.
const (
	ColumnOpen         = "open"
	ColumnHigh         = "high"
	ColumnLow          = "low"
	ColumnClose        = "close"
	ColumnVolume       = "volume"
	ColumnVWAP         = "vwap"
	ColumnTransactions = "transactions"
)

// Bar is one aggregated price interval of an instrument (10-minute bars in
// the default configuration).
type Bar struct {
	Symbol       string    `json:"symbol"`
	Timestamp    time.Time `json:"t"`
	Open         float64   `json:"o"`
	High         float64   `json:"h"`
	Low          float64   `json:"l"`
	Close        float64   `json:"c"`
	Volume       float64   `json:"v"`
	VWAP         float64   `json:"vw"`
	Transactions int64     `json:"n"`
}

// Observation maps column name to value for one point in time.
type Observation map[string]float64

// Observation flattens the bar into named columns.
func (b Bar) Observation() Observation {
	return Observation{
		ColumnOpen:         b.Open,
		ColumnHigh:         b.High,
		ColumnLow:          b.Low,
		ColumnClose:        b.Close,
		ColumnVolume:       b.Volume,
		ColumnVWAP:         b.VWAP,
		ColumnTransactions: float64(b.Transactions),
	}
}

// Series is the chronologically ordered history of one instrument.
// Gaps are not detected; callers supply contiguous data.
type Series struct {
	Symbol       string
	Timestamps   []time.Time // optional, parallel to Observations
	Observations []Observation
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Observations) }

// Column extracts one column. ok is false if any observation lacks it.
func (s Series) Column(name string) (values []float64, ok bool) {
	values = make([]float64, len(s.Observations))
	for i, o := range s.Observations {
		v, found := o[name]
		if !found {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// Tail returns the last n observations (all of them if n >= Len).
func (s Series) Tail(n int) Series {
	if n >= len(s.Observations) {
		return s
	}
	start := len(s.Observations) - n
	out := Series{Symbol: s.Symbol, Observations: s.Observations[start:]}
	if len(s.Timestamps) == len(s.Observations) {
		out.Timestamps = s.Timestamps[start:]
	}
	return out
}

// SeriesFromBars builds a Series from ascending bars.
func SeriesFromBars(symbol string, bars []Bar) Series {
	s := Series{
		Symbol:       symbol,
		Timestamps:   make([]time.Time, len(bars)),
		Observations: make([]Observation, len(bars)),
	}
	for i, b := range bars {
		s.Timestamps[i] = b.Timestamp
		s.Observations[i] = b.Observation()
	}
	return s
}
