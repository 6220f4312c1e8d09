package postgres

import (
	"context"
	"fmt"
	"strings"

	"morpho-risk-lab/internal/domain"
	"morpho-risk-lab/internal/storage"
)

// PriceStore implements storage.PriceStore using PostgreSQL.
// One row per token; the latest observation wins.
type PriceStore struct {
	pool *Pool
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(pool *Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// Upsert stores a quote, replacing any earlier quote for the same token.
func (s *PriceStore) Upsert(ctx context.Context, q *domain.PriceQuote) error {
	if q == nil || q.Token == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO token_prices (token, price_usd, decimals, observed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO UPDATE SET
			price_usd = EXCLUDED.price_usd,
			decimals = EXCLUDED.decimals,
			observed_at = EXCLUDED.observed_at
		WHERE token_prices.observed_at <= EXCLUDED.observed_at
	`

	_, err := s.pool.Exec(ctx, query,
		strings.ToLower(q.Token),
		q.PriceUSD,
		q.Decimals,
		q.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert token price: %w", err)
	}
	return nil
}

// GetByToken retrieves the latest quote for a token address. Returns
// ErrNotFound if no quote exists.
func (s *PriceStore) GetByToken(ctx context.Context, token string) (*domain.PriceQuote, error) {
	query := `
		SELECT token, price_usd, decimals, observed_at
		FROM token_prices
		WHERE token = $1
	`

	var q domain.PriceQuote
	err := s.pool.QueryRow(ctx, query, strings.ToLower(token)).Scan(
		&q.Token,
		&q.PriceUSD,
		&q.Decimals,
		&q.ObservedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token price: %w", err)
	}
	return &q, nil
}

// GetAll retrieves the latest quote per token, ordered by token ASC.
func (s *PriceStore) GetAll(ctx context.Context) ([]*domain.PriceQuote, error) {
	query := `
		SELECT token, price_usd, decimals, observed_at
		FROM token_prices
		ORDER BY token ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all token prices: %w", err)
	}
	defer rows.Close()

	var quotes []*domain.PriceQuote
	for rows.Next() {
		var q domain.PriceQuote
		if err := rows.Scan(&q.Token, &q.PriceUSD, &q.Decimals, &q.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan token price row: %w", err)
		}
		quotes = append(quotes, &q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token price rows: %w", err)
	}

	return quotes, nil
}
