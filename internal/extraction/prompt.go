package extraction

import "fmt"

// promptTemplate is the shared instruction used by all completion
// providers. It frames the domain, enumerates the fields the reply must
// carry, and demands a JSON-only answer. Models still wrap the JSON in
// prose or fences often enough that parseReply guards against it.
const promptTemplate = `You are an assistant that parses OCR text from receipts.
Given the following text from a Norwegian food receipt, extract the store name, date, time, and total sum.
Then extract all purchased items into a structured JSON array.
Each item should include name, quantity, unit, unit price if available, and total price if available.
Use exactly these JSON keys: "store_name", "date", "time", "total_sum" and "items", where each item has "name", "quantity", "unit", "unit_price" and "total_price". All values are strings.
RECEIPT TEXT: %s
Return ONLY JSON.`

// BuildPrompt embeds the raw OCR text verbatim into the instruction
// template. Pure; no failure modes for text input.
func BuildPrompt(rawText string) string {
	return fmt.Sprintf(promptTemplate, rawText)
}
