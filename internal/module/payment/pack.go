package payment

import "github.com/shopspring/decimal"

// CreditPack is a one-time purchasable credit bundle. The catalog is static;
// the webhook grants the credits from the session metadata, so a pack edit
// never breaks in-flight checkouts.
type CreditPack struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Credits       decimal.Decimal `json:"credits"`
	Price         decimal.Decimal `json:"price"`
	StripePriceID string          `json:"-"`
}

// CreditPacks returns the purchasable packs.
func CreditPacks() []*CreditPack {
	return []*CreditPack{
		{
			ID:      "pack_small",
			Name:    "Top-up 25",
			Credits: decimal.RequireFromString("25.00"),
			Price:   decimal.RequireFromString("5.90"),
		},
		{
			ID:      "pack_medium",
			Name:    "Top-up 60",
			Credits: decimal.RequireFromString("60.00"),
			Price:   decimal.RequireFromString("12.90"),
		},
		{
			ID:      "pack_large",
			Name:    "Top-up 150",
			Credits: decimal.RequireFromString("150.00"),
			Price:   decimal.RequireFromString("27.90"),
		},
	}
}

// PackByID returns the pack with the given id, or nil.
func PackByID(id string) *CreditPack {
	for _, p := range CreditPacks() {
		if p.ID == id {
			return p
		}
	}
	return nil
}
