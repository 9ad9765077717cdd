package domain

import "sort"

// Targets is the resolved concrete product and variant id sets of a discount.
// WholeProductIDs holds the products targeted as a whole, directly or through
// a collection. A product in ProductIDs but not here was reached only through
// one of its variants.
type Targets struct {
	ProductIDs      map[string]struct{}
	WholeProductIDs map[string]struct{}
	VariantIDs      map[string]struct{}
	Truncated       bool
}

func NewTargets() *Targets {
	return &Targets{
		ProductIDs:      make(map[string]struct{}),
		WholeProductIDs: make(map[string]struct{}),
		VariantIDs:      make(map[string]struct{}),
	}
}

func (t *Targets) AddProduct(ids ...string) {
	for _, id := range ids {
		if id != "" {
			t.ProductIDs[id] = struct{}{}
			t.WholeProductIDs[id] = struct{}{}
		}
	}
}

// AddVariantProduct records the owning product of a targeted variant.
func (t *Targets) AddVariantProduct(id string) {
	if id != "" {
		t.ProductIDs[id] = struct{}{}
	}
}

// VariantScoped reports whether the product is covered only through variants.
func (t *Targets) VariantScoped(productID string) bool {
	if t == nil {
		return false
	}
	_, whole := t.WholeProductIDs[productID]
	return !whole
}

func (t *Targets) AddVariant(ids ...string) {
	for _, id := range ids {
		if id != "" {
			t.VariantIDs[id] = struct{}{}
		}
	}
}

func (t *Targets) Products() []string {
	if t == nil {
		return nil
	}
	return sortedKeys(t.ProductIDs)
}

func (t *Targets) Variants() []string {
	if t == nil {
		return nil
	}
	return sortedKeys(t.VariantIDs)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
