package domain

// Value is the discount value shape. It is one of Percentage or FixedAmount.
type Value interface {
	ValueType() ValueType
}

type ValueType string

const (
	ValueTypePercentage  ValueType = "percentage"
	ValueTypeFixedAmount ValueType = "fixed_amount"
)

// Percentage holds a rate in percent, e.g. 20 for 20% off.
type Percentage struct {
	Rate float64
}

func (Percentage) ValueType() ValueType { return ValueTypePercentage }

// FixedAmount holds an amount in minor currency units.
type FixedAmount struct {
	AmountMinor int64
	Currency    string
}

func (FixedAmount) ValueType() ValueType { return ValueTypeFixedAmount }

// ScopeEntry is one item-scope reference set. It is one of AllItems, Products,
// Variants or Collections.
type ScopeEntry interface {
	ScopeKind() ScopeKind
}

type ScopeKind string

const (
	ScopeAll         ScopeKind = "ALL"
	ScopeProducts    ScopeKind = "PRODUCT"
	ScopeVariants    ScopeKind = "VARIANT"
	ScopeCollections ScopeKind = "COLLECTION"
)

type AllItems struct{}

func (AllItems) ScopeKind() ScopeKind { return ScopeAll }

type Products struct {
	IDs []string
}

func (Products) ScopeKind() ScopeKind { return ScopeProducts }

type Variants struct {
	IDs []string
}

func (Variants) ScopeKind() ScopeKind { return ScopeVariants }

type Collections struct {
	IDs []string
}

func (Collections) ScopeKind() ScopeKind { return ScopeCollections }

// Scope is the full item scope of a discount. A nil Scope means the discount
// carries no item scope at all.
type Scope []ScopeEntry

func (s Scope) IsEmpty() bool {
	for _, entry := range s {
		switch e := entry.(type) {
		case AllItems:
			return false
		case Products:
			if len(e.IDs) > 0 {
				return false
			}
		case Variants:
			if len(e.IDs) > 0 {
				return false
			}
		case Collections:
			if len(e.IDs) > 0 {
				return false
			}
		}
	}
	return true
}

func (s Scope) AppliesToAll() bool {
	for _, entry := range s {
		if _, ok := entry.(AllItems); ok {
			return true
		}
	}
	return false
}

func (s Scope) HasVariantTargets() bool {
	for _, entry := range s {
		if v, ok := entry.(Variants); ok && len(v.IDs) > 0 {
			return true
		}
	}
	return false
}

// TargetType classifies the scope by the most specific reference shape present.
func (s Scope) TargetType() TargetType {
	var hasProducts, hasVariants, hasCollections, hasAll bool
	for _, entry := range s {
		switch e := entry.(type) {
		case AllItems:
			hasAll = true
		case Products:
			hasProducts = hasProducts || len(e.IDs) > 0
		case Variants:
			hasVariants = hasVariants || len(e.IDs) > 0
		case Collections:
			hasCollections = hasCollections || len(e.IDs) > 0
		}
	}
	switch {
	case hasCollections:
		return TargetTypeCollection
	case hasVariants:
		return TargetTypeVariant
	case hasProducts:
		return TargetTypeProduct
	case hasAll:
		return TargetTypeAll
	default:
		return TargetTypeUnknown
	}
}

type TargetType string

const (
	TargetTypeCollection TargetType = "COLLECTION"
	TargetTypeProduct    TargetType = "PRODUCT"
	TargetTypeVariant    TargetType = "VARIANT"
	TargetTypeAll        TargetType = "ALL"
	TargetTypeUnknown    TargetType = "UNKNOWN"
)
