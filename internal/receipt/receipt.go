package receipt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ReceiptItem is one purchased line on a receipt. Every field is text as
// produced by the extraction model; a nil pointer means the model did not
// produce the field. Numeric interpretation happens only at aggregation time.
type ReceiptItem struct {
	Name       *string `json:"name,omitempty"`
	Quantity   *string `json:"quantity,omitempty"`
	Unit       *string `json:"unit,omitempty"`
	UnitPrice  *string `json:"unit_price,omitempty"`
	TotalPrice *string `json:"total_price,omitempty"`
}

// Receipt is the canonical structured form of one scanned receipt. Items
// keep extraction order, which is also display order.
type Receipt struct {
	StoreName *string       `json:"store_name,omitempty"`
	Date      *string       `json:"date,omitempty"`
	Time      *string       `json:"time,omitempty"`
	TotalSum  *string       `json:"total_sum,omitempty"`
	Items     []ReceiptItem `json:"items"`
}

// ParseAmount interprets a price field captured as text and returns the
// value in øre (hundredths). Receipts in the wild write both "10.50" and
// "10,50", sometimes with currency noise around the number. Anything that
// does not parse counts as zero so one bad extraction never blocks the
// running total.
func ParseAmount(s string) int64 {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == '.' || r == ',':
			b.WriteByte('.')
		}
	}
	cleaned := b.String()

	// With several separators ("1.234,50") only the last one is decimal
	if n := strings.Count(cleaned, "."); n > 1 {
		last := strings.LastIndex(cleaned, ".")
		cleaned = strings.ReplaceAll(cleaned[:last], ".", "") + cleaned[last:]
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

// FormatAmount renders øre as decimal text with two fractional digits.
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
