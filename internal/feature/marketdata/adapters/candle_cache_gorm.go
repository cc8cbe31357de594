// Package adapters implements persistence for the market data feature.
package adapters

import (
	"context"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"market_backend/internal/feature/marketdata/domain/entity"
	"market_backend/internal/feature/marketdata/usecase"
)

// upsertBatchSize keeps each INSERT under the bind-parameter limits of sqlite and postgres.
const upsertBatchSize = 500

type candleCache struct {
	db *gorm.DB
}

var _ usecase.CandleCache = (*candleCache)(nil)

// NewCandleCache returns the gorm-backed cache store.
func NewCandleCache(db *gorm.DB) *candleCache {
	return &candleCache{db: db}
}

// CandleModel is one cached OHLCV row. (symbol, interval, open_time) is unique.
type CandleModel struct {
	ID       uint   `gorm:"primaryKey"`
	Symbol   string `gorm:"size:30;not null;uniqueIndex:uq_ohlcv_candle,priority:1"`
	Interval string `gorm:"size:10;not null;uniqueIndex:uq_ohlcv_candle,priority:2"`
	Provider string `gorm:"size:20;not null"`
	OpenTime int64  `gorm:"not null;uniqueIndex:uq_ohlcv_candle,priority:3"`

	Open   float64 `gorm:"not null"`
	High   float64 `gorm:"not null"`
	Low    float64 `gorm:"not null"`
	Close  float64 `gorm:"not null"`
	Volume float64 `gorm:"not null;default:0"`
}

func (CandleModel) TableName() string {
	return "ohlcv_cache"
}

func toModel(symbol string, interval entity.Interval, provider string, e entity.Candle) CandleModel {
	return CandleModel{
		Symbol:   symbol,
		Interval: string(interval),
		Provider: provider,
		OpenTime: e.Time,
		Open:     e.Open,
		High:     e.High,
		Low:      e.Low,
		Close:    e.Close,
		Volume:   e.Volume,
	}
}

func toEntities(rows []CandleModel) []entity.Candle {
	out := make([]entity.Candle, 0, len(rows))
	for _, m := range rows {
		out = append(out, entity.Candle{
			Time:   m.OpenTime,
			Open:   m.Open,
			High:   m.High,
			Low:    m.Low,
			Close:  m.Close,
			Volume: m.Volume,
		})
	}
	return out
}

// UpsertBatch inserts candles, overwriting OHLCV and provider on key conflicts.
func (r *candleCache) UpsertBatch(ctx context.Context, symbol string, interval entity.Interval, provider string, candles []entity.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	ms := make([]CandleModel, 0, len(candles))
	for _, e := range candles {
		ms = append(ms, toModel(symbol, interval, provider, e))
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "interval"}, {Name: "open_time"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider", "open", "high", "low", "close", "volume"}),
	}).CreateInBatches(&ms, upsertBatchSize).Error
}

// FindLatest returns the newest limit rows in ascending time order.
func (r *candleCache) FindLatest(ctx context.Context, symbol string, interval entity.Interval, limit int) ([]entity.Candle, error) {
	var rows []CandleModel
	q := r.db.WithContext(ctx).
		Where(`symbol = ? AND "interval" = ?`, symbol, string(interval)).
		Order("open_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	slices.Reverse(rows)
	return toEntities(rows), nil
}

// FindRange returns rows inside the query bounds, oldest first, capped at q.Limit.
func (r *candleCache) FindRange(ctx context.Context, q entity.HistoryQuery) ([]entity.Candle, error) {
	var rows []CandleModel
	tx := r.db.WithContext(ctx).
		Where(`symbol = ? AND "interval" = ?`, q.Symbol, string(q.Interval))
	if q.Start != nil {
		tx = tx.Where("open_time >= ?", *q.Start)
	}
	if q.End != nil {
		tx = tx.Where("open_time <= ?", *q.End)
	}
	tx = tx.Order("open_time ASC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}
