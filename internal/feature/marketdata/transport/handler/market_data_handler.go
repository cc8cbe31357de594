// Package handler はmarketdataフィーチャーのHTTP・WebSocketハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"market_backend/internal/feature/marketdata/domain"
	"market_backend/internal/feature/marketdata/domain/entity"
	"market_backend/internal/feature/marketdata/transport/http/dto"

	"github.com/gin-gonic/gin"
)

// MarketDataUsecase は履歴データ・銘柄一覧のユースケースインターフェースです。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type MarketDataUsecase interface {
	GetHistorical(ctx context.Context, q entity.HistoryQuery) ([]entity.Candle, error)
	AvailableSymbols(ctx context.Context, class entity.AssetClass) ([]string, error)
}

// MarketDataHandler は履歴ローソク足と銘柄一覧のHTTPリクエストを処理します。
type MarketDataHandler struct {
	uc MarketDataUsecase
}

// NewMarketDataHandler は新しい MarketDataHandler を作成します。
func NewMarketDataHandler(uc MarketDataUsecase) *MarketDataHandler {
	return &MarketDataHandler{uc: uc}
}

// History は銘柄と時間足を受け取り、ローソク足データを時系列昇順で返します。
//
// エンドポイント例:
// GET /api/v1/market-data/history?symbol=BTCUSDT&interval=1H&limit=200
func (h *MarketDataHandler) History(c *gin.Context) {
	var req dto.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request", Detail: err.Error()})
		return
	}

	candles, err := h.uc.GetHistorical(c.Request.Context(), req.Query())
	if err != nil {
		writeError(c, err, "symbol", req.Symbol, "interval", req.Interval)
		return
	}

	c.JSON(http.StatusOK, dto.NewHistoryResponse(req.Symbol, req.Interval, candles))
}

// Symbols はアセットクラスごとの取引可能銘柄一覧を返します。
//
// エンドポイント例:
// GET /api/v1/market-data/symbols?asset_class=forex
func (h *MarketDataHandler) Symbols(c *gin.Context) {
	var req dto.SymbolsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request", Detail: err.Error()})
		return
	}
	class := entity.AssetClass(req.AssetClass)
	if !class.Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: domain.ErrUnknownAssetClass.Error(), Detail: req.AssetClass})
		return
	}

	symbols, err := h.uc.AvailableSymbols(c.Request.Context(), class)
	if err != nil {
		writeError(c, err, "asset_class", req.AssetClass)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	c.JSON(http.StatusOK, symbols)
}

// writeError はドメインエラーをHTTPステータスに変換します。
func writeError(c *gin.Context, err error, attrs ...any) {
	switch {
	case errors.Is(err, domain.ErrInvalidInterval),
		errors.Is(err, domain.ErrInvalidTimeRange),
		errors.Is(err, domain.ErrUnknownAssetClass):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request", Detail: err.Error()})
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		slog.Error("market data provider failed", append(attrs, "error", err)...)
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: domain.ErrUpstreamUnavailable.Error(), Detail: err.Error()})
	default:
		slog.Error("market data request failed", append(attrs, "error", err)...)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
}
