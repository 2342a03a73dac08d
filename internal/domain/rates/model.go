package rates

// Config is the shop-wide rate card used for quoting.
type Config struct {
	LaborRate          float64 `json:"laborRate"`
	CNCRate            float64 `json:"cncRate"`
	PrinterRate        float64 `json:"printerRate"`
	MaterialMultiplier float64 `json:"materialMultiplier"`
	MarkupPercent      float64 `json:"markupPercent"`
	Currency           string  `json:"currency"`
}
