package model

// CartItem is one product line in a session's cart. Amounts are whole
// FCFA units. A quantity of zero is never stored; the line is removed
// instead.
type CartItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// LineTotal returns quantity * unit price.
func (i CartItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

// Cart holds the selected products for one session. It is keyed by
// session ID and survives session resets triggered by navigation.
type Cart struct {
	SessionID    string     `json:"session_id"`
	Items        []CartItem `json:"items"`
	DeliveryCost int64      `json:"delivery_cost"`
	Total        int64      `json:"total"`
}

// Recompute rebuilds the derived total from line totals plus delivery.
func (c *Cart) Recompute() {
	var total int64
	for _, item := range c.Items {
		total += item.LineTotal()
	}
	c.Total = total + c.DeliveryCost
}

// CartSummary is the read model returned to callers.
type CartSummary struct {
	SessionID    string     `json:"session_id"`
	Items        []CartItem `json:"items"`
	DeliveryCost int64      `json:"delivery_cost"`
	Total        int64      `json:"total"`
}
