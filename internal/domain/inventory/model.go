package inventory

// StockItem is an inventory item whose unit price is used for material costing.
type StockItem struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	UnitPrice float64 `json:"unitPrice"`
}

// PriceList maps stock item id to unit price.
type PriceList map[int64]float64

// NewPriceList indexes items by id.
func NewPriceList(items []StockItem) PriceList {
	out := make(PriceList, len(items))
	for _, it := range items {
		out[it.ID] = it.UnitPrice
	}
	return out
}

// Price returns the unit price for id and whether the item is known.
func (p PriceList) Price(id int64) (float64, bool) {
	v, ok := p[id]
	return v, ok
}
