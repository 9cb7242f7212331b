package llm

import "strings"

// SystemPrompt is sent as the system message by chat-style clients.
const SystemPrompt = "You are a helpful assistant."

const instructions = `You are a helpful assistant that extracts structured data from invoices.

I will provide you with raw text of an invoice. You will respond ONLY with JSON containing the following fields:
- supplier: The supplier's name (string)
- date: The invoice date in YYYY-MM-DD format if possible, or raw date if can't parse
- total: The total amount (float or string if can't parse as float)
- vat: The VAT amount (float or string if can't parse as float)

Do not include any extra text outside the JSON and do not use code blocks. Here is the invoice text:
`

// BuildPrompt embeds the OCR text verbatim after the extraction instructions.
func BuildPrompt(text string) string {
	var b strings.Builder
	b.Grow(len(instructions) + len(text) + 1)
	b.WriteString(instructions)
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}
