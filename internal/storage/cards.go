package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/collectorstream/internal/common"
	"github.com/Veraticus/collectorstream/internal/model"
	"github.com/Veraticus/collectorstream/internal/service"
)

// Compile-time interface check.
var _ service.CardStore = (*SQLiteStorage)(nil)

const cardColumns = `id, player_name, team, year, set_name, card_number, manufacturer,
	sport, sport_provenance, condition, grading_company, grading_grade, grading_cert,
	front_image_ref, back_image_ref, estimated_value, purchase_price, notes, provider,
	confidence, created_at, market_value, market_low, market_high, market_sample_size,
	market_confidence, market_source, valued_at`

// SaveCard inserts a new card and returns its ID.
func (s *SQLiteStorage) SaveCard(ctx context.Context, card model.CardUpload) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateUpload(&card); err != nil {
		return 0, err
	}

	grading := card.Grading
	if grading == nil {
		grading = &model.Grading{}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (
			player_name, team, year, set_name, card_number, manufacturer,
			sport, sport_provenance, condition, grading_company, grading_grade, grading_cert,
			front_image_ref, back_image_ref, estimated_value, purchase_price, notes, provider,
			confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(card.PlayerName),
		nullString(card.Team),
		nullString(card.Year),
		nullString(card.Set),
		nullString(card.CardNumber),
		nullString(card.Manufacturer),
		nullString(card.Sport),
		nullString(card.SportProvenance),
		nullString(card.Condition),
		nullString(grading.Company),
		nullString(grading.Grade),
		nullString(grading.CertNumber),
		card.FrontImageRef,
		nullString(card.BackImageRef),
		nullFloat(card.EstimatedValue),
		nullFloat(card.PurchasePrice),
		nullString(card.Notes),
		nullString(card.Provider),
		card.Confidence,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert card: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get card ID: %w", err)
	}
	return id, nil
}

// GetCard retrieves a card by ID.
func (s *SQLiteStorage) GetCard(ctx context.Context, id int64) (*model.Card, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("card %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return card, nil
}

// ListCards returns cards newest first.
func (s *SQLiteStorage) ListCards(ctx context.Context, filter service.CardFilter) ([]model.Card, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Sport != nil {
		where = append(where, "sport = ?")
		args = append(args, string(*filter.Sport))
	}
	if filter.StaleBefore != nil {
		where = append(where, "(valued_at IS NULL OR valued_at < ?)")
		args = append(args, filter.StaleBefore.UTC())
	}

	query := `SELECT ` + cardColumns + ` FROM cards`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cards []model.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}
	return cards, nil
}

// CountCards returns the number of stored cards.
func (s *SQLiteStorage) CountCards(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return count, nil
}

// UpdateMarketValue records a market estimate. A valuation without a price
// still stamps valued_at so the card is not retried immediately.
func (s *SQLiteStorage) UpdateMarketValue(ctx context.Context, id int64, valuation model.Valuation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateValuation(&valuation); err != nil {
		return err
	}

	fetched := valuation.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE cards SET
			market_value = ?, market_low = ?, market_high = ?,
			market_sample_size = ?, market_confidence = ?, market_source = ?, valued_at = ?
		WHERE id = ?`,
		nullFloat(valuation.Price),
		nullFloat(valuation.Low),
		nullFloat(valuation.High),
		valuation.SampleSize,
		valuation.Confidence,
		nullString(model.SomeString(valuation.Source)),
		fetched.UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update market value: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("card %d: %w", id, common.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*model.Card, error) {
	var (
		card model.Card

		playerName, team, year, set, cardNumber, manufacturer sql.NullString
		sport, provenance, condition                          sql.NullString
		gradingCompany, gradingGrade, gradingCert             sql.NullString
		backRef, notes, provider, marketSource                sql.NullString
		estimated, purchase                                   sql.NullFloat64
		marketValue, marketLow, marketHigh                    sql.NullFloat64
		marketConfidence                                      float64
		sampleSize                                            int
		valuedAt                                              sql.NullTime
	)

	err := row.Scan(
		&card.ID, &playerName, &team, &year, &set, &cardNumber, &manufacturer,
		&sport, &provenance, &condition, &gradingCompany, &gradingGrade, &gradingCert,
		&card.FrontImageRef, &backRef, &estimated, &purchase, &notes, &provider,
		&card.Confidence, &card.CreatedAt, &marketValue, &marketLow, &marketHigh, &sampleSize,
		&marketConfidence, &marketSource, &valuedAt,
	)
	if err != nil {
		return nil, err
	}

	card.PlayerName = optString[string](playerName)
	card.Team = optString[string](team)
	card.Year = optString[string](year)
	card.Set = optString[string](set)
	card.CardNumber = optString[string](cardNumber)
	card.Manufacturer = optString[string](manufacturer)
	card.Sport = optString[model.Sport](sport)
	card.SportProvenance = optString[string](provenance)
	card.Condition = optString[model.Condition](condition)
	card.BackImageRef = optString[string](backRef)
	card.EstimatedValue = optFloat(estimated)
	card.PurchasePrice = optFloat(purchase)
	card.Notes = optString[string](notes)
	card.Provider = optString[string](provider)

	grading := &model.Grading{
		Company:    optString[string](gradingCompany),
		Grade:      optString[string](gradingGrade),
		CertNumber: optString[string](gradingCert),
	}
	if !grading.Empty() {
		card.Grading = grading
	}

	if valuedAt.Valid {
		card.Market = &model.Valuation{
			FetchedAt:  valuedAt.Time,
			Price:      optFloat(marketValue),
			Low:        optFloat(marketLow),
			High:       optFloat(marketHigh),
			Source:     marketSource.String,
			SampleSize: sampleSize,
			Confidence: marketConfidence,
		}
	}
	return &card, nil
}

// nullString maps None and blank strings to NULL.
func nullString[T ~string](o model.Optional[T]) sql.NullString {
	v, ok := o.Get()
	if !ok || strings.TrimSpace(string(v)) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(v), Valid: true}
}

func optString[T ~string](n sql.NullString) model.Optional[T] {
	if !n.Valid || strings.TrimSpace(n.String) == "" {
		return model.None[T]()
	}
	return model.Some(T(n.String))
}

func nullFloat(o model.Optional[float64]) sql.NullFloat64 {
	v, ok := o.Get()
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func optFloat(n sql.NullFloat64) model.Optional[float64] {
	if !n.Valid {
		return model.None[float64]()
	}
	return model.Some(n.Float64)
}
