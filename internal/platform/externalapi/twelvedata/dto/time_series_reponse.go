// Package dto defines data transfer objects for the Twelve Data API responses.
package dto

// TimeSeriesResponse represents the JSON response from the Twelve Data time_series endpoint.
// Error responses carry Status "error" with Code and Message instead of Values.
type TimeSeriesResponse struct {
	Status  string           `json:"status"`
	Code    int              `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
	Meta    TimeSeriesMeta   `json:"meta"`
	Values  []TimeSeriesItem `json:"values"`
}

// TimeSeriesMeta describes the returned series.
type TimeSeriesMeta struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Type     string `json:"type,omitempty"`
}

// TimeSeriesItem is one bar. Forex bars usually omit volume.
type TimeSeriesItem struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume,omitempty"`
}
