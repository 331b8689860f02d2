package dispatch

// Status classifies the outcome of one allocation entry. Only Failed is an
// error; the rest are normal branches of the batch.
type Status string

const (
	// StatusPlaced: the order went in (and, for market orders, the
	// execution price is known).
	StatusPlaced Status = "placed"
	// StatusInsufficientFunds: the budget does not cover one lot.
	StatusInsufficientFunds Status = "insufficient_funds"
	// StatusUnconfirmed: a market order went in but the execution price
	// never showed up within the poll budget. Degraded, not failed.
	StatusUnconfirmed Status = "price_unconfirmed"
	// StatusFailed: lookup, pricing, or submission failed.
	StatusFailed Status = "failed"
)

// EntryResult is the outcome of one allocation entry. Prices are currency
// amounts; for bonds they are clean prices, with AccruedInterest carried
// separately as an informational field.
type EntryResult struct {
	Ticker string
	Status Status

	Lots     int
	Quantity int // Lots × lot size

	Price       float64 // limit price, or realized price for market buys
	MarketPrice float64 // quote at decision time
	Spent       float64 // Quantity × Price

	AccruedInterest float64 // bonds only

	Err error
}

// BatchReport collects per-entry outcomes for one run. Individual failures
// never abort the batch; they land here instead.
type BatchReport struct {
	RunID   string
	Results []EntryResult
}

func (r *BatchReport) add(res EntryResult) {
	r.Results = append(r.Results, res)
}

// Placed counts entries whose order went in, including unconfirmed ones.
func (r BatchReport) Placed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusPlaced || res.Status == StatusUnconfirmed {
			n++
		}
	}
	return n
}

// Failed counts entries that errored.
func (r BatchReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			n++
		}
	}
	return n
}

// TotalSpent sums the spend across placed entries.
func (r BatchReport) TotalSpent() float64 {
	total := 0.0
	for _, res := range r.Results {
		if res.Status == StatusPlaced || res.Status == StatusUnconfirmed {
			total += res.Spent
		}
	}
	return total
}

// CancelReport summarizes a cancel-all run.
type CancelReport struct {
	Total     int
	Cancelled int
	Failed    int
}
