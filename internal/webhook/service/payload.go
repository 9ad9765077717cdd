package service

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/smallbiznis/promosync/internal/gid"
	tierdomain "github.com/smallbiznis/promosync/internal/tier/domain"
	"github.com/smallbiznis/promosync/internal/webhook/domain"
)

type resourcePayload struct {
	ID                json.Number `json:"id"`
	AdminGraphQLAPIID string      `json:"admin_graphql_api_id"`
}

// globalID prefers the payload's global id and falls back to the numeric id.
func (p resourcePayload) globalID(typ string) string {
	if id := strings.TrimSpace(p.AdminGraphQLAPIID); id != "" {
		return id
	}
	if n := strings.TrimSpace(p.ID.String()); n != "" {
		return gid.Build(typ, n)
	}
	return ""
}

type subscriptionPayload struct {
	AppSubscription struct {
		AdminGraphQLAPIID string `json:"admin_graphql_api_id"`
		Name              string `json:"name"`
		Status            string `json:"status"`
	} `json:"app_subscription"`
}

func decodeResource(raw json.RawMessage) (resourcePayload, error) {
	var p resourcePayload
	if len(raw) == 0 || !json.Valid(raw) {
		return p, domain.ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, domain.ErrInvalidPayload
	}
	if _, err := strconv.ParseInt(p.ID.String(), 10, 64); p.ID != "" && err != nil {
		return p, domain.ErrInvalidPayload
	}
	return p, nil
}

// tierForSubscription maps a subscription update to a plan. ok is false when
// the update does not change the plan, such as a pending charge.
func tierForSubscription(name, status string) (tierdomain.Tier, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "ACTIVE":
	case "CANCELLED", "DECLINED", "EXPIRED", "FROZEN":
		return tierdomain.TierFree, true
	default:
		return "", false
	}

	if t, err := tierdomain.ParseTier(name); err == nil {
		return t, true
	}
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "advanced"):
		return tierdomain.TierAdvanced, true
	case strings.Contains(lower, "basic"):
		return tierdomain.TierBasic, true
	case strings.Contains(lower, "free"):
		return tierdomain.TierFree, true
	}
	return "", false
}
