package invoice

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/pricing"
)

// Issuer is the marketplace operator printed on every invoice.
type Issuer struct {
	Name      string
	Address   string
	VATNumber string
	Website   string
}

// Renderer turns invoice snapshots into PDF documents. Output depends only on
// the invoice and the issuer: the same snapshot always yields the same bytes.
type Renderer struct {
	issuer Issuer
}

func NewRenderer(issuer Issuer) *Renderer {
	return &Renderer{issuer: issuer}
}

type line struct {
	label  string
	amount int64
	bold   bool
}

func lines(inv *models.Invoice) []line {
	switch inv.Kind {
	case models.InvoiceWithdrawal:
		return []line{
			{label: "Gross earnings withdrawn", amount: inv.AmountTTC},
			{label: "Platform commission", amount: -inv.Commission},
			{label: "Net amount paid out", amount: inv.AmountHT, bold: true},
			{label: "of which VAT (informational)", amount: inv.VAT},
		}
	default:
		return []line{
			{label: "Wallet credit (excl. VAT)", amount: inv.AmountHT},
			{label: "VAT", amount: inv.VAT},
			{label: "Total paid (incl. VAT)", amount: inv.AmountTTC, bold: true},
		}
	}
}

func money(cents int64) string {
	return pricing.FromCents(cents).StringFixed(2) + " EUR"
}

func title(kind models.InvoiceKind) string {
	if kind == models.InvoiceWithdrawal {
		return "WITHDRAWAL STATEMENT"
	}
	return "INVOICE"
}

// Render produces the PDF for inv.
func (r *Renderer) Render(inv *models.Invoice) ([]byte, error) {
	qr, err := qrcode.Encode(inv.Number, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode invoice qr: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(inv.IssuedAt)
	pdf.SetModificationDate(inv.IssuedAt)
	pdf.SetTitle(title(inv.Kind)+" "+inv.Number, true)
	pdf.SetAuthor(r.issuer.Name, true)
	pdf.SetCreator(r.issuer.Name, true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// header
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(120, 10, tr(title(inv.Kind)), "", 0, "L", false, 0, "")
	pdf.RegisterImageOptionsReader("qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
	pdf.ImageOptions("qr", 160, 15, 30, 30, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(120, 6, tr("No. "+inv.Number), "", 1, "L", false, 0, "")
	pdf.CellFormat(120, 6, tr("Date: "+inv.IssuedAt.UTC().Format("2006-01-02")), "", 1, "L", false, 0, "")
	pdf.Ln(8)

	// parties
	top := pdf.GetY()
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(85, 6, tr(r.issuer.Name), "", 2, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(85, 5, tr(r.issuer.Address), "", "L", false)
	if r.issuer.VATNumber != "" {
		pdf.CellFormat(85, 5, tr("VAT: "+r.issuer.VATNumber), "", 1, "L", false, 0, "")
	}

	b := inv.Billing
	pdf.SetXY(110, top)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(80, 6, tr(b.CompanyName), "", 2, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetX(110)
	pdf.CellFormat(80, 5, tr(b.Street), "", 2, "L", false, 0, "")
	pdf.SetX(110)
	pdf.CellFormat(80, 5, tr(b.Postcode+" "+b.City+" "+b.Country), "", 2, "L", false, 0, "")
	if b.VATNumber != "" {
		pdf.SetX(110)
		pdf.CellFormat(80, 5, tr("VAT: "+b.VATNumber), "", 2, "L", false, 0, "")
	}
	pdf.SetY(top + 35)

	// amounts
	pdf.SetFillColor(235, 235, 240)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(120, 8, tr("Description"), "1", 0, "L", true, 0, "")
	pdf.CellFormat(50, 8, tr("Amount"), "1", 1, "R", true, 0, "")
	for _, l := range lines(inv) {
		style := ""
		if l.bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(120, 8, tr(l.label), "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 8, money(l.amount), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 9)
	method := "Payment method: "
	if inv.Kind == models.InvoiceWithdrawal {
		method = "Paid out to: "
	}
	pdf.CellFormat(170, 5, tr(method+inv.PaymentMethodLabel), "", 1, "L", false, 0, "")
	if r.issuer.Website != "" {
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(170, 5, tr(r.issuer.Website), "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.Number, err)
	}
	return buf.Bytes(), nil
}
