// Package document renders bills for printing and sharing.
package document

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"billdesk/internal/domain"
)

var billFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"qty":   func(d decimal.Decimal) string { return d.String() },
}

var billHTMLTmpl = template.Must(template.New("bill").Funcs(billFuncs).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.BillID}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>{{.Business.Name}}</h2>
  {{if .Business.Address}}<p>{{.Business.Address}}</p>{{end}}
  {{if .Business.Phone}}<p>Phone: {{.Business.Phone}}</p>{{end}}

  <h3>Invoice {{.BillID}}</h3>
  <p>Date: {{.DateTime.Format "02-01-2006 15:04"}}</p>
  <p>Customer: {{.CustomerName}} {{if .MobileNumber}}({{.MobileNumber}}){{end}}</p>
  <p>Car: {{.CarModel}} {{if .CarKM}}({{.CarKM}} KM){{end}} | Number: {{.CarNumber}}</p>

  <table>
    <thead><tr><th>Sr</th><th>Item</th><th>Qty</th><th>Rate</th><th>Amount</th></tr></thead>
    <tbody>{{range .Lines}}<tr><td>{{.SrNo}}</td><td>{{.ItemName}}</td><td class="num">{{qty .Quantity}}</td><td class="num">{{money .Rate}}</td><td class="num">{{money .Amount}}</td></tr>{{end}}</tbody>
  </table>

  <p>Subtotal: {{money .Subtotal}}</p>
  <p>Discount: {{qty .DiscountPercent}}%</p>
  <p><strong>Total: {{money .NetTotal}}</strong></p>
  <p>Status: {{if .Paid}}PAID{{else}}UNPAID{{end}}</p>
</body>
</html>
`))

// Renderer writes bill documents under dir. PDFs are produced only when a
// PDF client is configured.
type Renderer struct {
	dir string
	pdf *PDFClient
}

func NewRenderer(dir string, pdf *PDFClient) *Renderer {
	return &Renderer{dir: dir, pdf: pdf}
}

func (r *Renderer) RenderHTML(doc domain.BillDocument) ([]byte, error) {
	var buf bytes.Buffer
	if err := billHTMLTmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render bill %s: %w", doc.BillID, err)
	}
	return buf.Bytes(), nil
}

// Generate writes <dir>/<bill id>.html, plus a .pdf when possible, and
// returns the path best suited for sharing.
func (r *Renderer) Generate(ctx context.Context, doc domain.BillDocument) (string, error) {
	html, err := r.RenderHTML(doc)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}

	base := filepath.Join(r.dir, fileStem(doc.BillID))
	htmlPath := base + ".html"
	if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
		return "", fmt.Errorf("write bill html: %w", err)
	}
	if r.pdf == nil {
		return htmlPath, nil
	}

	pdf, err := r.pdf.Convert(ctx, html)
	if err != nil {
		return htmlPath, fmt.Errorf("convert bill %s: %w", doc.BillID, err)
	}
	pdfPath := base + ".pdf"
	if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
		return htmlPath, fmt.Errorf("write bill pdf: %w", err)
	}
	return pdfPath, nil
}

func fileStem(billID string) string {
	stem := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, billID)
	if stem == "" {
		return "bill"
	}
	return stem
}
