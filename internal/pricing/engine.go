// Package pricing derives the money figures of a sale from a priced cart.
// It is pure: callers load products, member state and stale flags first.
package pricing

import "farmtech/backend/internal/domain"

const (
	TaxPercent             = 12
	LoyaltyDiscountPercent = 10
	LoyaltyEvery           = 10
)

type Line struct {
	ProductID string
	Qty       int
	ListPrice int64
}

// MemberState is the loyalty state read before the sale is applied.
type MemberState struct {
	TxCount int
}

type PricedLine struct {
	ProductID       string
	Qty             int
	ListPrice       int64
	UnitPrice       int64
	DiscountPercent int
	LineTotal       int64
}

type Result struct {
	Subtotal       int64
	Tax            int64
	MemberDiscount int64
	Total          int64
	Lines          []PricedLine
}

// Price computes subtotal, tax, member discount and total.
//
// Tax is taken on the stale-adjusted subtotal, and the member discount is
// taken on that same subtotal, not on subtotal+tax. Downstream reports rely
// on these exact figures.
func Price(cart []Line, member *MemberState, flags map[string]domain.StaleFlag) Result {
	res := Result{Lines: make([]PricedLine, 0, len(cart))}

	for _, line := range cart {
		priced := PricedLine{
			ProductID: line.ProductID,
			Qty:       line.Qty,
			ListPrice: line.ListPrice,
			UnitPrice: line.ListPrice,
		}
		if flag, ok := flags[line.ProductID]; ok {
			priced.DiscountPercent = flag.DiscountPercent
			priced.UnitPrice = DiscountedPrice(line.ListPrice, flag.DiscountPercent)
		}
		priced.LineTotal = priced.UnitPrice * int64(line.Qty)
		res.Subtotal += priced.LineTotal
		res.Lines = append(res.Lines, priced)
	}

	res.Tax = percentOf(res.Subtotal, TaxPercent)
	if member != nil && LoyaltyEligible(member.TxCount) {
		res.MemberDiscount = percentOf(res.Subtotal, LoyaltyDiscountPercent)
	}
	res.Total = res.Subtotal + res.Tax - res.MemberDiscount
	return res
}

// DiscountedPrice applies a percentage markdown, flooring to a whole unit.
func DiscountedPrice(listPrice int64, discountPercent int) int64 {
	if discountPercent <= 0 {
		return listPrice
	}
	if discountPercent >= 100 {
		return 0
	}
	return percentOf(listPrice, 100-discountPercent)
}

// LoyaltyEligible reports whether a member with txCount completed sales
// earns the loyalty discount on this one (the 10th, 20th, ... visit).
func LoyaltyEligible(txCount int) bool {
	return txCount > 0 && txCount%LoyaltyEvery == 0
}

func percentOf(amount int64, percent int) int64 {
	if amount <= 0 {
		return 0
	}
	return amount * int64(percent) / 100
}
