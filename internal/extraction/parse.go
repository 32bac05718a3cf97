package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"kvittering/internal/receipt"
)

// replyPayload defers decoding of every field so wrong JSON kinds surface
// as a SchemaMismatchError instead of a blind unmarshal failure.
type replyPayload struct {
	StoreName json.RawMessage `json:"store_name"`
	Date      json.RawMessage `json:"date"`
	Time      json.RawMessage `json:"time"`
	TotalSum  json.RawMessage `json:"total_sum"`
	Items     json.RawMessage `json:"items"`
}

type itemPayload struct {
	Name       json.RawMessage `json:"name"`
	Quantity   json.RawMessage `json:"quantity"`
	Unit       json.RawMessage `json:"unit"`
	UnitPrice  json.RawMessage `json:"unit_price"`
	TotalPrice json.RawMessage `json:"total_price"`
}

// parseReply turns the model's reply text into a Receipt. The prompt asks
// for JSON only, but replies regularly arrive wrapped in markdown fences
// or prose, so the JSON object is sliced out before decoding.
func parseReply(text string) (*receipt.Receipt, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx < startIdx {
		return nil, &receipt.MalformedReplyError{
			Err: fmt.Errorf("no JSON object found in reply"),
		}
	}
	text = text[startIdx : endIdx+1]

	var payload replyPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, &receipt.MalformedReplyError{Err: err}
	}

	rec := &receipt.Receipt{}
	var err error
	if rec.StoreName, err = textField(payload.StoreName, "store_name"); err != nil {
		return nil, err
	}
	if rec.Date, err = textField(payload.Date, "date"); err != nil {
		return nil, err
	}
	if rec.Time, err = textField(payload.Time, "time"); err != nil {
		return nil, err
	}
	if rec.TotalSum, err = textField(payload.TotalSum, "total_sum"); err != nil {
		return nil, err
	}
	if rec.Items, err = itemsField(payload.Items); err != nil {
		return nil, err
	}
	return rec, nil
}

// textField decodes an optional scalar. Absent and null map to nil, never
// to an empty string. Numbers are tolerated (models emit prices as
// numbers now and then) and kept as their literal text.
func textField(raw json.RawMessage, name string) (*string, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		s = n.String()
		return &s, nil
	}
	return nil, &receipt.SchemaMismatchError{Field: name, Reason: "expected a string"}
}

// itemsField decodes the item list. A missing or null list is an empty
// sequence, not an error.
func itemsField(raw json.RawMessage) ([]receipt.ReceiptItem, error) {
	if isAbsent(raw) {
		return []receipt.ReceiptItem{}, nil
	}

	var rawItems []json.RawMessage
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return nil, &receipt.SchemaMismatchError{Field: "items", Reason: "expected an array"}
	}

	items := make([]receipt.ReceiptItem, 0, len(rawItems))
	for i, rawItem := range rawItems {
		var payload itemPayload
		if err := json.Unmarshal(rawItem, &payload); err != nil {
			return nil, &receipt.SchemaMismatchError{
				Field:  fmt.Sprintf("items[%d]", i),
				Reason: "expected an object",
			}
		}

		var item receipt.ReceiptItem
		var err error
		prefix := fmt.Sprintf("items[%d].", i)
		if item.Name, err = textField(payload.Name, prefix+"name"); err != nil {
			return nil, err
		}
		if item.Quantity, err = textField(payload.Quantity, prefix+"quantity"); err != nil {
			return nil, err
		}
		if item.Unit, err = textField(payload.Unit, prefix+"unit"); err != nil {
			return nil, err
		}
		if item.UnitPrice, err = textField(payload.UnitPrice, prefix+"unit_price"); err != nil {
			return nil, err
		}
		if item.TotalPrice, err = textField(payload.TotalPrice, prefix+"total_price"); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
