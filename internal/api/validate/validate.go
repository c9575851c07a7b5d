package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

const (
	maxCodeBytes     = 1 << 20
	maxQueryLen      = 2000
	maxDescriptionLen = 500
)

func NonEmpty(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return model.NewValidationError(field, "is required")
	}
	return nil
}

func MaxLen(field, v string, limit int) error {
	if len(v) > limit {
		return model.NewValidationError(field, fmt.Sprintf("exceeds %d characters", limit))
	}
	return nil
}

// PositiveAmount rejects zero and negative credit amounts.
func PositiveAmount(v int64) error {
	if v <= 0 {
		return model.NewValidationError("amount", "must be a positive integer")
	}
	return nil
}

// -------- Request specific helpers ----------

func IndexCode(code, language string) error {
	if err := NonEmpty("code", code); err != nil {
		return err
	}
	if err := MaxLen("code", code, maxCodeBytes); err != nil {
		return err
	}
	return NonEmpty("language", language)
}

func SearchCode(query string, limit int) error {
	if err := NonEmpty("query", query); err != nil {
		return err
	}
	if err := MaxLen("query", query, maxQueryLen); err != nil {
		return err
	}
	if limit < 0 || limit > 100 {
		return model.NewValidationError("limit", "must be between 1 and 100")
	}
	return nil
}

func Purchase(amount int64, paymentMethod string) error {
	if err := PositiveAmount(amount); err != nil {
		return err
	}
	return NonEmpty("paymentMethod", paymentMethod)
}

func Bonus(userID string, amount int64, description string) error {
	if err := NonEmpty("userId", userID); err != nil {
		return err
	}
	if err := PositiveAmount(amount); err != nil {
		return err
	}
	if err := NonEmpty("description", description); err != nil {
		return err
	}
	return MaxLen("description", description, maxDescriptionLen)
}

func Refund(userID string, amount int64, reason string) error {
	if err := NonEmpty("userId", userID); err != nil {
		return err
	}
	if err := PositiveAmount(amount); err != nil {
		return err
	}
	if err := NonEmpty("reason", reason); err != nil {
		return err
	}
	return MaxLen("reason", reason, maxDescriptionLen)
}

// Page parses the page and limit query values. Missing values take the defaults.
func Page(page, limit string) (model.PageRequest, error) {
	var req model.PageRequest
	var err error
	if page != "" {
		if req.Page, err = strconv.Atoi(page); err != nil {
			return req, model.NewValidationError("page", "must be an integer")
		}
		if req.Page < 1 {
			return req, model.NewValidationError("page", "must be >= 1")
		}
	}
	if limit != "" {
		if req.Limit, err = strconv.Atoi(limit); err != nil {
			return req, model.NewValidationError("limit", "must be an integer")
		}
		if req.Limit < 1 {
			return req, model.NewValidationError("limit", "must be between 1 and 100")
		}
	}
	return req.Normalize()
}
