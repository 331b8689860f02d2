// Package sizing converts a budget and a unit price into a lot-aligned
// order.
package sizing

import "github.com/rkulagin/autolot/money"

// LimitPrice derives the limit-order price from the current quote. A fixed
// price, when set (> 0), wins over the discount.
func LimitPrice(quote, discountPercent, fixedPrice float64) float64 {
	if fixedPrice > 0 {
		return fixedPrice
	}
	return money.Round2(quote * (1 - discountPercent/100))
}

// LotsAffordable returns the largest whole number of lots whose total cost
// stays within amount. Zero means the budget does not cover a single lot;
// callers treat that as "skip", not as an error.
func LotsAffordable(amount, unitPrice float64, lotSize int) int {
	if unitPrice <= 0 || lotSize <= 0 {
		return 0
	}
	lots := int(amount / (unitPrice * float64(lotSize)))
	if lots < 0 {
		return 0
	}
	return lots
}
