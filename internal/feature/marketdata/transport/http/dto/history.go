// Package dto はmarketdataフィーチャーのHTTP・WebSocket用DTOを提供します。
package dto

import "market_backend/internal/feature/marketdata/domain/entity"

// HistoryRequest は履歴ローソク足取得のクエリパラメータです。
type HistoryRequest struct {
	Symbol    string `form:"symbol" binding:"required"`
	Interval  string `form:"interval" binding:"required"`
	StartTime *int64 `form:"start_time"`
	EndTime   *int64 `form:"end_time"`
	Limit     int    `form:"limit,default=500" binding:"min=1,max=5000"`
}

// Query converts the request into a domain query.
func (r HistoryRequest) Query() entity.HistoryQuery {
	return entity.HistoryQuery{
		Symbol:   r.Symbol,
		Interval: entity.Interval(r.Interval),
		Start:    r.StartTime,
		End:      r.EndTime,
		Limit:    r.Limit,
	}
}

// CandleDTO はロウソク足1本分のレスポンスDTOです。
type CandleDTO struct {
	Time   int64   `json:"time"`   // Unix秒
	Open   float64 `json:"open"`   // 始値
	High   float64 `json:"high"`   // 高値
	Low    float64 `json:"low"`    // 安値
	Close  float64 `json:"close"`  // 終値
	Volume float64 `json:"volume"` // 出来高
}

// NewCandleDTO maps a domain candle to its wire form.
func NewCandleDTO(c entity.Candle) CandleDTO {
	return CandleDTO{
		Time:   c.Time,
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
	}
}

// HistoryResponse は履歴ローソク足のレスポンスDTOです。
type HistoryResponse struct {
	Symbol   string      `json:"symbol"`
	Interval string      `json:"interval"`
	Candles  []CandleDTO `json:"candles"`
}

// NewHistoryResponse builds a response. Candles is never null on the wire.
func NewHistoryResponse(symbol, interval string, candles []entity.Candle) HistoryResponse {
	out := make([]CandleDTO, 0, len(candles))
	for _, c := range candles {
		out = append(out, NewCandleDTO(c))
	}
	return HistoryResponse{Symbol: symbol, Interval: interval, Candles: out}
}

// SymbolsRequest は銘柄一覧取得のクエリパラメータです。
type SymbolsRequest struct {
	AssetClass string `form:"asset_class" binding:"required"`
}

// ErrorResponse はエラーレスポンスDTOです。
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
