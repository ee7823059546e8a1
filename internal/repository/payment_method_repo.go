package repository

import (
	"context"
	"errors"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"

	"github.com/jackc/pgx/v5"
)

// PaymentMethodRepository reads the per-country payment configuration.
type PaymentMethodRepository struct{}

func NewPaymentMethodRepository() *PaymentMethodRepository {
	return &PaymentMethodRepository{}
}

// GetCountryPaymentMethodDetail returns nil when the method is not configured
// for the country.
func (r *PaymentMethodRepository) GetCountryPaymentMethodDetail(ctx context.Context, q db.Querier, countryID, paymentMethodID int64) (*domain.PaymentMethodDetail, error) {
	var d domain.PaymentMethodDetail
	var config []byte
	err := q.QueryRow(ctx, `
		SELECT cpm.country_id, cpm.payment_method_id, pm.name, cpm.is_active,
		       cpm.user_instructions, cpm.configuration_details
		FROM country_payment_methods cpm
		JOIN payment_methods pm ON pm.id = cpm.payment_method_id
		WHERE cpm.country_id = $1 AND cpm.payment_method_id = $2
	`, countryID, paymentMethodID).Scan(&d.CountryID, &d.PaymentMethodID, &d.PaymentMethodName, &d.IsActive,
		&d.UserInstructions, &config)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	d.ConfigurationDetails = config
	return &d, nil
}

// GetPaymentMethodName returns the display name of a payment method, empty if unknown.
func (r *PaymentMethodRepository) GetPaymentMethodName(ctx context.Context, q db.Querier, paymentMethodID int64) (string, error) {
	var name string
	err := q.QueryRow(ctx, `SELECT name FROM payment_methods WHERE id = $1`, paymentMethodID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return name, err
}
