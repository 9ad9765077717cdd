package domain

import "context"

// Gateway fetches discounts from the upstream platform.
type Gateway interface {
	FetchDiscount(ctx context.Context, shop, id string) (*RemoteDiscount, error)
	ListDiscountIDs(ctx context.Context, shop string) ([]string, bool, error)
}

type ResolveOptions struct {
	ForceRefresh bool
}

// TargetResolver expands a discount scope into concrete product and variant ids.
// A nil result with a nil error means the discount has nothing to resolve.
type TargetResolver interface {
	Resolve(ctx context.Context, shop string, d *RemoteDiscount, opts ResolveOptions) (*Targets, error)
}

// TierEvaluation is the plan-tier view of one discount.
type TierEvaluation struct {
	Tier                  string
	IsAdvanced            bool
	IsBasicOrHigher       bool
	HasVariantTargets     bool
	AppliesOnSubscription bool
}

type TierGate interface {
	Evaluate(ctx context.Context, shop string, d *RemoteDiscount) (TierEvaluation, error)
	CanCreateLive(ctx context.Context, shop string) (bool, error)
}

type SyncResult struct {
	Stored  bool
	Outcome Outcome
	Existed bool
}

// Outcome is the result of one classification.
type Outcome struct {
	Status    LiveStatus
	Reason    *ExclusionReason
	Deleted   bool
	Persisted bool
	Swept     SweepResult
}

type SweepResult struct {
	Cleaned int `json:"cleaned"`
	Total   int `json:"total"`
}

type ReconcileResult struct {
	Backfilled int `json:"backfilled"`
}

type ReprocessResult struct {
	Total      int `json:"total"`
	Processed  int `json:"processed"`
	Updated    int `json:"updated"`
	Added      int `json:"added"`
	Deleted    int `json:"deleted"`
	Backfilled int `json:"backfilled"`
	Failed     int `json:"failed"`
}

// Service is the entry point used by the HTTP, webhook and scheduler layers.
type Service interface {
	SyncOne(ctx context.Context, shop, id string, mode Mode) (SyncResult, error)
	Remove(ctx context.Context, shop, id string) (int64, error)
	ReprocessAll(ctx context.Context, shop string, mode Mode) (ReprocessResult, error)
	ReprocessProduct(ctx context.Context, shop, productID string) (ReprocessResult, error)
	ReprocessCollection(ctx context.Context, shop, collectionID string) (ReprocessResult, error)
	Reconcile(ctx context.Context, shop string) (ReconcileResult, error)
	HasDrift(ctx context.Context, shop string) (bool, error)
	Sweep(ctx context.Context, shop string) SweepResult
	SetLiveStatus(ctx context.Context, shop, id string, status LiveStatus) (*LiveDiscount, error)
	ListShops(ctx context.Context) ([]string, error)
}
