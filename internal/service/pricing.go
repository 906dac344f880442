package service

import (
	"github.com/EisukeHirata/profile-nanobanana/internal/config"
	"github.com/EisukeHirata/profile-nanobanana/internal/model"

	"github.com/samber/lo"
)

// PriceCatalog maps payment-provider price identifiers to credits and tiers.
type PriceCatalog struct {
	packCredits    map[string]int
	amountCredits  map[int64]int
	tierByPrice    map[string]model.SubscriptionTier
	monthlyCredits map[model.SubscriptionTier]int
}

// PackPrice is a one-time credit pack offering.
type PackPrice struct {
	PriceID     string
	Credits     int
	AmountCents int64
}

// TierPrice is a recurring subscription offering.
type TierPrice struct {
	PriceID        string
	Tier           model.SubscriptionTier
	MonthlyCredits int
}

// NewPriceCatalog builds a catalog. Entries with an empty price id are kept only
// for the charged-amount fallback and monthly allotments.
func NewPriceCatalog(packs []PackPrice, tiers []TierPrice) *PriceCatalog {
	c := &PriceCatalog{
		packCredits:    map[string]int{},
		amountCredits:  map[int64]int{},
		tierByPrice:    map[string]model.SubscriptionTier{},
		monthlyCredits: map[model.SubscriptionTier]int{},
	}
	for _, p := range packs {
		if p.PriceID != "" {
			c.packCredits[p.PriceID] = p.Credits
		}
		if p.AmountCents > 0 {
			c.amountCredits[p.AmountCents] = p.Credits
		}
	}
	for _, t := range tiers {
		if t.PriceID != "" {
			c.tierByPrice[t.PriceID] = t.Tier
		}
		c.monthlyCredits[t.Tier] = t.MonthlyCredits
	}
	return c
}

// NewPriceCatalogFromConfig builds the catalog from environment configuration.
func NewPriceCatalogFromConfig(cfg *config.Config) *PriceCatalog {
	return NewPriceCatalog(
		[]PackPrice{
			{PriceID: cfg.StripePriceCreditSmall, Credits: cfg.CreditsSmall, AmountCents: cfg.AmountCentsSmall},
			{PriceID: cfg.StripePriceCreditLarge, Credits: cfg.CreditsLarge, AmountCents: cfg.AmountCentsLarge},
			{PriceID: cfg.StripePriceCreditXLarge, Credits: cfg.CreditsXLarge, AmountCents: cfg.AmountCentsXLarge},
		},
		[]TierPrice{
			{PriceID: cfg.StripePriceSubBasic, Tier: model.TierBasic, MonthlyCredits: cfg.MonthlyCreditsBasic},
			{PriceID: cfg.StripePriceSubPro, Tier: model.TierPro, MonthlyCredits: cfg.MonthlyCreditsPro},
			{PriceID: cfg.StripePriceSubPremium, Tier: model.TierPremium, MonthlyCredits: cfg.MonthlyCreditsPremium},
		},
	)
}

// PackCredits resolves a one-time purchase: exact price id first, then the
// charged amount. ok is false when neither matches.
func (c *PriceCatalog) PackCredits(priceID string, amountCents int64) (credits int, ok bool) {
	if priceID != "" {
		if n, found := c.packCredits[priceID]; found {
			return n, true
		}
	}
	if n, found := c.amountCredits[amountCents]; found {
		return n, true
	}
	return 0, false
}

// PackCreditsByPrice resolves a pack by price id only.
func (c *PriceCatalog) PackCreditsByPrice(priceID string) (int, bool) {
	n, ok := c.packCredits[priceID]
	return n, ok
}

// Tier resolves a subscription price id. Unknown ids map to the free tier.
func (c *PriceCatalog) Tier(priceID string) (model.SubscriptionTier, bool) {
	t, ok := c.tierByPrice[priceID]
	if !ok {
		return model.TierFree, false
	}
	return t, true
}

// MonthlyCredits is the renewal allotment of a tier; zero for free or unknown tiers.
func (c *PriceCatalog) MonthlyCredits(tier model.SubscriptionTier) int {
	return c.monthlyCredits[tier]
}

// IsSubscriptionPrice reports whether priceID belongs to a subscription tier.
func (c *PriceCatalog) IsSubscriptionPrice(priceID string) bool {
	return lo.HasKey(c.tierByPrice, priceID)
}

// IsPackPrice reports whether priceID belongs to a one-time credit pack.
func (c *PriceCatalog) IsPackPrice(priceID string) bool {
	return lo.HasKey(c.packCredits, priceID)
}

// PriceIDs lists every configured price id.
func (c *PriceCatalog) PriceIDs() []string {
	return lo.Union(lo.Keys(c.packCredits), lo.Keys(c.tierByPrice))
}
