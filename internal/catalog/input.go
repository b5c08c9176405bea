package catalog

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/apperr"
)

var maxPrice = decimal.New(1, 8) // NUMERIC(10,2)

type CategoryInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	ParentID *int64 `json:"parent_id"`
}

func (in CategoryInput) Validate() error { return apperr.Struct(in) }

// ProductInput is the staff-editable part of a product.
type ProductInput struct {
	Name          string           `json:"name" validate:"required,max=200"`
	Slug          string           `json:"slug" validate:"max=200"`
	Description   string           `json:"description"`
	ImageURL      string           `json:"image_url"`
	CategoryID    int64            `json:"category_id" validate:"required,gt=0"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price"`
	Stock         int              `json:"stock" validate:"gte=0"`
	IsActive      bool             `json:"is_active"`
	// Attributes is either a JSON object or a string holding one.
	Attributes json.RawMessage `json:"attributes"`
}

// Validate checks the input and returns the parsed attribute document.
func (in ProductInput) Validate() (Attributes, error) {
	var ve *apperr.ValidationError
	if err := apperr.Struct(in); err != nil {
		if !apperr.IsValidation(err) {
			return nil, err
		}
		ve = err.(*apperr.ValidationError)
	}
	ve = apperr.Merge(ve, checkMoney("price", in.Price))
	if in.DiscountPrice != nil {
		ve = apperr.Merge(ve, checkMoney("discount_price", *in.DiscountPrice))
	}

	attrs, err := parseRawAttributes(in.Attributes)
	if err != nil {
		ve = apperr.Merge(ve, err.(*apperr.ValidationError))
	}
	if ve != nil {
		return nil, ve
	}
	return attrs, nil
}

func checkMoney(field string, d decimal.Decimal) *apperr.ValidationError {
	switch {
	case d.IsNegative():
		return apperr.Invalid(field, "Ensure this value is greater than or equal to 0.")
	case !d.Equal(d.Round(2)):
		return apperr.Invalid(field, "Ensure that there are no more than 2 decimal places.")
	case d.GreaterThanOrEqual(maxPrice):
		return apperr.Invalid(field, "Ensure that there are no more than 10 digits in total.")
	}
	return nil
}

func parseRawAttributes(raw json.RawMessage) (Attributes, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Attributes{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, apperr.Invalid("attributes", "Enter a valid JSON object.")
		}
		return ParseAttributes(s)
	}
	return ParseAttributes(string(raw))
}
