package service

import (
	"context"

	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/tier/domain"
)

// Gate adapts the tier service to the classifier's TierGate port.
type Gate struct {
	svc domain.Service
}

func NewGate(svc domain.Service) *Gate {
	return &Gate{svc: svc}
}

func (g *Gate) Evaluate(ctx context.Context, shop string, d *discountdomain.RemoteDiscount) (discountdomain.TierEvaluation, error) {
	snapshot, err := g.svc.GetTier(ctx, shop)
	if err != nil {
		return discountdomain.TierEvaluation{}, err
	}
	return discountdomain.TierEvaluation{
		Tier:                  string(snapshot.Tier),
		IsAdvanced:            snapshot.Tier.Rank() >= domain.TierAdvanced.Rank(),
		IsBasicOrHigher:       snapshot.Tier.Rank() >= domain.TierBasic.Rank(),
		HasVariantTargets:     d.Scope.HasVariantTargets(),
		AppliesOnSubscription: d.AppliesOnSubscription,
	}, nil
}

func (g *Gate) CanCreateLive(ctx context.Context, shop string) (bool, error) {
	return g.svc.CanCreateLive(ctx, shop)
}
