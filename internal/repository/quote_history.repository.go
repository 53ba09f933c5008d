package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/nepselabs/feed-service/internal/entity"
)

type QuoteHistoryRepository struct {
	db *sqlx.DB
}

func NewQuoteHistoryRepository(db *sqlx.DB) *QuoteHistoryRepository {
	return &QuoteHistoryRepository{db: db}
}

func (r *QuoteHistoryRepository) Create(ctx context.Context, data *entity.QuoteHistory) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(data.TableName()).
		Columns(
			"symbol",
			"price",
			"change",
			"change_percent",
			"volume",
			"open",
			"high",
			"low",
			"previous_close",
			"market_status",
			"captured_at",
			"created_at",
			"updated_at",
		).
		Values(
			data.Symbol,
			data.Price,
			data.Change,
			data.ChangePercent,
			data.Volume,
			data.Open,
			data.High,
			data.Low,
			data.PreviousClose,
			data.MarketStatus,
			data.CapturedAt,
			data.CreatedAt,
			data.UpdatedAt,
		).
		Suffix(`ON CONFLICT (symbol, captured_at)
DO UPDATE SET
	price = EXCLUDED.price,
	change = EXCLUDED.change,
	change_percent = EXCLUDED.change_percent,
	volume = EXCLUDED.volume,
	open = EXCLUDED.open,
	high = EXCLUDED.high,
	low = EXCLUDED.low,
	previous_close = EXCLUDED.previous_close,
	market_status = EXCLUDED.market_status,
	updated_at = EXCLUDED.updated_at`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}
