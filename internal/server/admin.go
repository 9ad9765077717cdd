package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	discountdomain "github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/gid"
	"github.com/smallbiznis/promosync/internal/observability/logger"
	tierdomain "github.com/smallbiznis/promosync/internal/tier/domain"
	"go.uber.org/zap"
)

type setTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

type setLiveStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=LIVE HIDDEN SCHEDULED"`
}

func shopParam(c *gin.Context) string {
	return strings.ToLower(strings.TrimSpace(c.Param("shop")))
}

// Reprocess re-syncs every discount of the shop. The mode query parameter
// selects routine or force_recompute classification.
func (s *Server) Reprocess(c *gin.Context) {
	mode, err := parseMode(c.Query("mode"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.discounts.ReprocessAll(c.Request.Context(), shopParam(c), mode)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) Reconcile(c *gin.Context) {
	res, err := s.discounts.Reconcile(c.Request.Context(), shopParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) Sweep(c *gin.Context) {
	shop := shopParam(c)
	if shop == "" {
		AbortWithError(c, discountdomain.ErrInvalidShop)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.discounts.Sweep(c.Request.Context(), shop)})
}

func (s *Server) GetTier(c *gin.Context) {
	snapshot, err := s.tiers.GetTier(c.Request.Context(), shopParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

// SetTier records a plan change. A changed tier triggers a full reprocess so
// exclusions follow the new plan.
func (s *Server) SetTier(c *gin.Context) {
	var req setTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	tier, err := tierdomain.ParseTier(req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	shop := shopParam(c)
	changed, err := s.tiers.SetTier(ctx, shop, tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{"changed": changed}
	if changed {
		res, err := s.discounts.ReprocessAll(ctx, shop, discountdomain.Routine)
		switch {
		case errors.Is(err, discountdomain.ErrReprocessRunning):
			logger.FromContext(ctx).Info("tier change reprocess skipped, already running", zap.String("shop", shop))
		case err != nil:
			AbortWithError(c, err)
			return
		default:
			resp["reprocess"] = res
		}
	}

	snapshot, err := s.tiers.GetTier(ctx, shop)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp["tier"] = snapshot

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// SetLiveStatus is the manual LIVE/HIDDEN/SCHEDULED toggle. A bare numeric id
// is tried as an automatic discount first, then as a code discount.
func (s *Server) SetLiveStatus(c *gin.Context) {
	var req setLiveStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	ctx := c.Request.Context()
	shop := shopParam(c)
	status := discountdomain.LiveStatus(req.Status)
	raw := strings.TrimSpace(c.Param("id"))

	candidates := []string{raw}
	if raw != "" && gid.NumericSuffix(raw) == raw {
		candidates = []string{
			gid.Build(gid.TypeDiscountAutomatic, raw),
			gid.Build(gid.TypeDiscountCode, raw),
		}
	}

	var (
		live *discountdomain.LiveDiscount
		err  error
	)
	for _, id := range candidates {
		live, err = s.discounts.SetLiveStatus(ctx, shop, id, status)
		if !errors.Is(err, discountdomain.ErrNotFound) {
			break
		}
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": live})
}
