// Package naming derives the canonical stored filename of an invoice.
package naming

import (
	"strings"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/llm"
)

var (
	underscoreSeparators = strings.NewReplacer("/", "_", `\`, "_")
	dashSeparators       = strings.NewReplacer("/", "-", `\`, "-")
)

// Canonical builds "{supplier} - {date} - {total}{ext}". Path separators
// become "_" in supplier and total and "-" in date; ext is ".pdf" for
// paginated input and ".jpg" otherwise.
func Canonical(rec llm.InvoiceRecord, kind constants.DocumentKind) string {
	supplier := underscoreSeparators.Replace(rec.Supplier)
	date := dashSeparators.Replace(rec.Date)
	total := underscoreSeparators.Replace(rec.Total.String())
	return supplier + " - " + date + " - " + total + kind.Extension()
}
