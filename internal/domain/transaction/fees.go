package transaction

// Fee schedule, all values in minor currency units (cents). Delivery is free
// when the subtotal strictly exceeds the threshold.
const (
	BaseFee               int64 = 500
	DeliveryFee           int64 = 800
	FreeDeliveryThreshold int64 = 5_000_000
)

// Quote is the fee breakdown for a purchase. Total is what gets charged and
// persisted as the transaction amount.
type Quote struct {
	Subtotal    int64
	BaseFee     int64
	DeliveryFee int64
	Total       int64
}

// QuoteSubtotal computes the fee breakdown for a subtotal. Pure: no clock, no
// I/O, no configuration lookup.
func QuoteSubtotal(subtotal int64) Quote {
	delivery := DeliveryFee
	if subtotal > FreeDeliveryThreshold {
		delivery = 0
	}
	return Quote{
		Subtotal:    subtotal,
		BaseFee:     BaseFee,
		DeliveryFee: delivery,
		Total:       subtotal + BaseFee + delivery,
	}
}

// QuoteFromTotal re-derives the breakdown from a persisted total, for display
// on the status endpoint. Totals within DeliveryFee above threshold+BaseFee
// admit both readings; the free-delivery one is preferred.
func QuoteFromTotal(total int64) Quote {
	delivery := DeliveryFee
	if total > FreeDeliveryThreshold+BaseFee {
		delivery = 0
	}
	return Quote{
		Subtotal:    total - BaseFee - delivery,
		BaseFee:     BaseFee,
		DeliveryFee: delivery,
		Total:       total,
	}
}

// MajorUnits converts a minor-unit amount to whole major units, rounding to
// the nearest unit. 499_999_900 minor becomes 4_999_999 major.
func MajorUnits(minor int64) int64 {
	if minor >= 0 {
		return (minor + 50) / 100
	}
	return -((-minor + 50) / 100)
}
