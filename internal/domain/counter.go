package domain

// ClickTotals carries the pair of counts produced by a committed increment.
// Both values come from the same transaction and are consistent with each other.
type ClickTotals struct {
	Total      int64
	UserClicks int64
}
