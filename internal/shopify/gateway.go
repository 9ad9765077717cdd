package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/promosync/internal/config"
	"github.com/smallbiznis/promosync/internal/discount/domain"
	"github.com/smallbiznis/promosync/internal/observability/metrics"
	"go.uber.org/zap"
)

type pageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

type connection struct {
	Nodes []struct {
		ID string `json:"id"`
	} `json:"nodes"`
	PageInfo pageInfo `json:"pageInfo"`
}

func (c *connection) ids() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.ID != "" {
			out = append(out, n.ID)
		}
	}
	return out
}

type discountItems struct {
	Typename        string      `json:"__typename"`
	AllItems        bool        `json:"allItems"`
	Products        *connection `json:"products"`
	ProductVariants *connection `json:"productVariants"`
	Collections     *connection `json:"collections"`
}

type discountPayload struct {
	Typename      string     `json:"__typename"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	Summary       string     `json:"summary"`
	StartsAt      *time.Time `json:"startsAt"`
	EndsAt        *time.Time `json:"endsAt"`
	UpdatedAt     *time.Time `json:"updatedAt"`
	DiscountClass string     `json:"discountClass"`
	CustomerGets  *struct {
		Value *struct {
			Typename   string   `json:"__typename"`
			Percentage *float64 `json:"percentage"`
			Amount     *struct {
				Amount       string `json:"amount"`
				CurrencyCode string `json:"currencyCode"`
			} `json:"amount"`
		} `json:"value"`
		Items                    *discountItems `json:"items"`
		AppliesOnOneTimePurchase *bool          `json:"appliesOnOneTimePurchase"`
		AppliesOnSubscription    *bool          `json:"appliesOnSubscription"`
	} `json:"customerGets"`
	MinimumRequirement *struct {
		Typename string `json:"__typename"`
	} `json:"minimumRequirement"`
	CustomerSelection *struct {
		Typename string `json:"__typename"`
	} `json:"customerSelection"`
	Codes *struct {
		Nodes []struct {
			Code string `json:"code"`
		} `json:"nodes"`
	} `json:"codes"`
}

// Gateway exposes the typed upstream fetchers used by the pipeline.
type Gateway struct {
	q       Querier
	limits  config.LimitsSource
	log     *zap.Logger
	metrics *metrics.SyncMetrics
}

func NewGateway(q Querier, limits config.LimitsSource, log *zap.Logger, m *metrics.SyncMetrics) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{q: q, limits: limits, log: log.Named("shopify.gateway"), metrics: m}
}

// FetchDiscount returns nil, nil when the discount no longer exists upstream.
func (g *Gateway) FetchDiscount(ctx context.Context, shop, id string) (*domain.RemoteDiscount, error) {
	resp, err := g.q.Query(ctx, shop, Request{
		Query:     discountNodeQuery,
		Variables: map[string]any{"id": id},
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		DiscountNode *struct {
			ID       string           `json:"id"`
			Discount *discountPayload `json:"discount"`
		} `json:"discountNode"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.DiscountNode == nil || out.DiscountNode.Discount == nil {
		return nil, nil
	}

	nodeID := out.DiscountNode.ID
	if nodeID == "" {
		nodeID = id
	}
	payload := out.DiscountNode.Discount
	if err := g.completeScope(ctx, shop, nodeID, payload); err != nil {
		return nil, err
	}
	return decodeDiscount(nodeID, payload)
}

// completeScope pages item-scope connections that did not fit the first page.
func (g *Gateway) completeScope(ctx context.Context, shop, id string, p *discountPayload) error {
	if p.CustomerGets == nil || p.CustomerGets.Items == nil {
		return nil
	}
	items := p.CustomerGets.Items
	for _, page := range []struct {
		itemsType string
		name      string
		conn      *connection
	}{
		{"DiscountProducts", "products", items.Products},
		{"DiscountProducts", "productVariants", items.ProductVariants},
		{"DiscountCollections", "collections", items.Collections},
	} {
		if page.conn == nil || !page.conn.PageInfo.HasNextPage {
			continue
		}
		query := scopePageQuery(page.itemsType, page.name)
		first := page.conn
		ids, _, err := g.paginate(ctx, shop, "discount_"+page.name, func(after *string) (*connection, error) {
			if after == nil {
				return first, nil
			}
			return g.fetchScopePage(ctx, shop, id, query, page.name, *after)
		})
		if err != nil {
			return err
		}
		full := &connection{}
		for _, nodeID := range ids {
			full.Nodes = append(full.Nodes, struct {
				ID string `json:"id"`
			}{ID: nodeID})
		}
		switch page.name {
		case "products":
			items.Products = full
		case "productVariants":
			items.ProductVariants = full
		case "collections":
			items.Collections = full
		}
	}
	return nil
}

func (g *Gateway) fetchScopePage(ctx context.Context, shop, id, query, name, after string) (*connection, error) {
	resp, err := g.q.Query(ctx, shop, Request{
		Query:     query,
		Variables: map[string]any{"id": id, "after": after},
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		DiscountNode *struct {
			Discount *struct {
				CustomerGets *struct {
					Items map[string]*connection `json:"items"`
				} `json:"customerGets"`
			} `json:"discount"`
		} `json:"discountNode"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.DiscountNode == nil || out.DiscountNode.Discount == nil || out.DiscountNode.Discount.CustomerGets == nil {
		return nil, nil
	}
	return out.DiscountNode.Discount.CustomerGets.Items[name], nil
}

// ListDiscountIDs lists every discount id of the shop, capped by PaginationCap.
func (g *Gateway) ListDiscountIDs(ctx context.Context, shop string) ([]string, bool, error) {
	pageSize := g.limits.Limits().PageSize
	return g.paginate(ctx, shop, "discounts", func(after *string) (*connection, error) {
		vars := map[string]any{"first": pageSize}
		if after != nil {
			vars["after"] = *after
		}
		resp, err := g.q.Query(ctx, shop, Request{Query: discountIDsQuery, Variables: vars})
		if err != nil {
			return nil, err
		}
		var out struct {
			DiscountNodes *connection `json:"discountNodes"`
		}
		if err := json.Unmarshal(resp.Data, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		return out.DiscountNodes, nil
	})
}

// CollectionProducts lists the member product ids of a collection.
func (g *Gateway) CollectionProducts(ctx context.Context, shop, collectionID string) ([]string, bool, error) {
	pageSize := g.limits.Limits().PageSize
	return g.paginate(ctx, shop, "collection_products", func(after *string) (*connection, error) {
		vars := map[string]any{"id": collectionID, "first": pageSize}
		if after != nil {
			vars["after"] = *after
		}
		resp, err := g.q.Query(ctx, shop, Request{Query: collectionProductsQuery, Variables: vars})
		if err != nil {
			return nil, err
		}
		var out struct {
			Collection *struct {
				Products *connection `json:"products"`
			} `json:"collection"`
		}
		if err := json.Unmarshal(resp.Data, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		if out.Collection == nil {
			return nil, nil
		}
		return out.Collection.Products, nil
	})
}

// VariantProduct returns the owning product id, or "" when the variant is gone.
func (g *Gateway) VariantProduct(ctx context.Context, shop, variantID string) (string, error) {
	resp, err := g.q.Query(ctx, shop, Request{
		Query:     variantProductQuery,
		Variables: map[string]any{"id": variantID},
	})
	if err != nil {
		return "", err
	}
	var out struct {
		ProductVariant *struct {
			Product *struct {
				ID string `json:"id"`
			} `json:"product"`
		} `json:"productVariant"`
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.ProductVariant == nil || out.ProductVariant.Product == nil {
		return "", nil
	}
	return out.ProductVariant.Product.ID, nil
}

// ProductVariants lists every variant id of a product.
func (g *Gateway) ProductVariants(ctx context.Context, shop, productID string) ([]string, bool, error) {
	pageSize := g.limits.Limits().PageSize
	return g.paginate(ctx, shop, "product_variants", func(after *string) (*connection, error) {
		vars := map[string]any{"id": productID, "first": pageSize}
		if after != nil {
			vars["after"] = *after
		}
		resp, err := g.q.Query(ctx, shop, Request{Query: productVariantsQuery, Variables: vars})
		if err != nil {
			return nil, err
		}
		var out struct {
			Product *struct {
				Variants *connection `json:"variants"`
			} `json:"product"`
		}
		if err := json.Unmarshal(resp.Data, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		if out.Product == nil {
			return nil, nil
		}
		return out.Product.Variants, nil
	})
}

// paginate follows cursors until the connection ends or PaginationCap ids
// were collected. Hitting the cap truncates and reports it.
func (g *Gateway) paginate(ctx context.Context, shop, resource string, fetch func(after *string) (*connection, error)) ([]string, bool, error) {
	limit := g.limits.Limits().PaginationCap
	var (
		ids       []string
		after     *string
		truncated bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		conn, err := fetch(after)
		if err != nil {
			return nil, false, err
		}
		if conn == nil {
			break
		}
		ids = append(ids, conn.ids()...)
		if len(ids) >= limit {
			if len(ids) > limit || conn.PageInfo.HasNextPage {
				truncated = true
			}
			ids = ids[:limit]
			break
		}
		if !conn.PageInfo.HasNextPage || conn.PageInfo.EndCursor == nil {
			break
		}
		after = conn.PageInfo.EndCursor
	}

	if truncated {
		g.metrics.IncPaginationTruncated(resource)
		g.log.Warn("pagination cap reached, result truncated",
			zap.String("shop", shop),
			zap.String("resource", resource),
			zap.Int("cap", limit),
		)
	}
	return ids, truncated, nil
}

func decodeDiscount(id string, p *discountPayload) (*domain.RemoteDiscount, error) {
	d := &domain.RemoteDiscount{
		ID:                       id,
		Title:                    p.Title,
		Status:                   strings.ToUpper(p.Status),
		Summary:                  p.Summary,
		Class:                    decodeClass(p.DiscountClass),
		Method:                   decodeMethod(p.Typename),
		EndsAt:                   p.EndsAt,
		AppliesOnOneTimePurchase: true,
		AllCustomers:             true,
	}
	if p.StartsAt != nil {
		d.StartsAt = p.StartsAt.UTC()
	}
	if p.UpdatedAt != nil {
		d.UpdatedAt = p.UpdatedAt.UTC()
	}
	if p.MinimumRequirement != nil && p.MinimumRequirement.Typename != "" {
		d.HasMinimumRequirement = true
	}
	if p.CustomerSelection != nil && p.CustomerSelection.Typename != "" && p.CustomerSelection.Typename != "DiscountCustomerAll" {
		d.AllCustomers = false
	}
	if p.Codes != nil {
		for _, c := range p.Codes.Nodes {
			if c.Code != "" {
				d.Codes = append(d.Codes, c.Code)
			}
		}
	}

	gets := p.CustomerGets
	if gets == nil {
		return d, nil
	}
	if gets.AppliesOnOneTimePurchase != nil {
		d.AppliesOnOneTimePurchase = *gets.AppliesOnOneTimePurchase
	}
	if gets.AppliesOnSubscription != nil {
		d.AppliesOnSubscription = *gets.AppliesOnSubscription
	}

	if v := gets.Value; v != nil {
		switch {
		case v.Percentage != nil:
			// upstream reports a fraction, 0.2 for 20%
			rate := decimal.NewFromFloat(*v.Percentage).Shift(2)
			d.Value = domain.Percentage{Rate: rate.InexactFloat64()}
		case v.Amount != nil:
			amount, err := decimal.NewFromString(v.Amount.Amount)
			if err != nil {
				return nil, fmt.Errorf("%w: amount %q", ErrInvalidResponse, v.Amount.Amount)
			}
			d.Value = domain.FixedAmount{
				AmountMinor: amount.Shift(2).Round(0).IntPart(),
				Currency:    v.Amount.CurrencyCode,
			}
		}
	}

	if items := gets.Items; items != nil {
		if items.AllItems || items.Typename == "AllDiscountItems" {
			d.Scope = append(d.Scope, domain.AllItems{})
		}
		if ids := items.Products.ids(); len(ids) > 0 {
			d.Scope = append(d.Scope, domain.Products{IDs: ids})
		}
		if ids := items.ProductVariants.ids(); len(ids) > 0 {
			d.Scope = append(d.Scope, domain.Variants{IDs: ids})
		}
		if ids := items.Collections.ids(); len(ids) > 0 {
			d.Scope = append(d.Scope, domain.Collections{IDs: ids})
		}
	}
	return d, nil
}

func decodeClass(raw string) domain.Class {
	switch strings.ToUpper(raw) {
	case "PRODUCT":
		return domain.ClassProduct
	case "ORDER":
		return domain.ClassOrder
	case "SHIPPING":
		return domain.ClassShipping
	}
	return domain.ClassUnknown
}

func decodeMethod(typename string) domain.Method {
	switch {
	case strings.HasSuffix(typename, "Bxgy"):
		return domain.MethodBuyXGetY
	case strings.HasSuffix(typename, "FreeShipping"):
		return domain.MethodFreeShipping
	case strings.HasSuffix(typename, "App"):
		return domain.MethodApp
	}
	return domain.MethodBasic
}
