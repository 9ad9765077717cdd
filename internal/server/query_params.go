package server

import (
	"strconv"
	"strings"

	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
)

func parseOptionalInt64(value string) (*int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseMode reads a classification mode; empty means routine.
func parseMode(value string) (discountdomain.Mode, error) {
	mode, ok := discountdomain.ParseMode(strings.ToLower(strings.TrimSpace(value)))
	if !ok {
		return discountdomain.Mode{}, newValidationError("mode", "invalid_mode", "mode must be routine or force_recompute")
	}
	return mode, nil
}
