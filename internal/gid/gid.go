// Package gid handles upstream global identifiers of the form
// gid://shopify/<Type>/<numeric>.
package gid

import (
	"errors"
	"strings"
)

const (
	scheme   = "gid://"
	Platform = "shopify"
)

const (
	TypeProduct            = "Product"
	TypeProductVariant     = "ProductVariant"
	TypeCollection         = "Collection"
	TypeDiscountAutomatic  = "DiscountAutomaticNode"
	TypeDiscountCode       = "DiscountCodeNode"
	TypeAppSubscription    = "AppSubscription"
	typeDiscountCodePrefix = "DiscountCode"
)

var ErrInvalid = errors.New("invalid_global_id")

type ID struct {
	Platform string
	Type     string
	Numeric  string
}

func (id ID) String() string {
	return scheme + id.Platform + "/" + id.Type + "/" + id.Numeric
}

// Parse splits a global id. Query strings such as ?inventory_item=1 are dropped.
func Parse(raw string) (ID, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, scheme) {
		return ID{}, ErrInvalid
	}
	rest := strings.TrimPrefix(raw, scheme)
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || !isDigits(parts[2]) {
		return ID{}, ErrInvalid
	}
	return ID{Platform: parts[0], Type: parts[1], Numeric: parts[2]}, nil
}

func Build(typ, numeric string) string {
	return ID{Platform: Platform, Type: typ, Numeric: strings.TrimSpace(numeric)}.String()
}

// NumericSuffix returns the trailing run of digits. Plain numeric input is returned as is.
func NumericSuffix(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	end := len(raw)
	start := end
	for start > 0 && raw[start-1] >= '0' && raw[start-1] <= '9' {
		start--
	}
	return raw[start:end]
}

// Normalize returns a global id of the given type for either a global or a numeric id.
func Normalize(typ, raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, scheme) {
		return raw
	}
	if n := NumericSuffix(raw); n != "" {
		return Build(typ, n)
	}
	return raw
}

// IsCodeDiscount reports whether the id literally names a code (coupon) discount node.
func IsCodeDiscount(raw string) bool {
	id, err := Parse(raw)
	if err != nil {
		return strings.Contains(raw, "/"+typeDiscountCodePrefix)
	}
	return strings.HasPrefix(id.Type, typeDiscountCodePrefix)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
