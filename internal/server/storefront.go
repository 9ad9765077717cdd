package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/promosync/internal/storefront"
)

// GetBestDiscount returns the best automatic and coupon discount for one
// product at the given price in minor units.
func (s *Server) GetBestDiscount(c *gin.Context) {
	price, err := parseOptionalInt64(c.Query("price"))
	if err != nil || price == nil {
		AbortWithError(c, storefront.ErrInvalidPrice)
		return
	}

	var variantID any
	if raw := strings.TrimSpace(c.Query("variant")); raw != "" {
		variantID = raw
	}

	best, err := s.storefront.BestForProduct(c.Request.Context(), c.Param("shop"), c.Param("productID"), variantID, *price)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "public, max-age=30")
	c.JSON(http.StatusOK, gin.H{"data": best})
}
