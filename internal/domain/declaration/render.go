package declaration

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"

	"github.com/go-pdf/fpdf"
)

const (
	heading       = "Declaração"
	signatureLine = "______________________________________"
	crpLine       = "____________"
)

var pageTemplate = htmltemplate.Must(htmltemplate.New("page").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
  <head><meta charset="utf-8"><title>{{.Title}}</title></head>
  <body style="padding: 40px; font-family: Arial, sans-serif;">
    <h2 style="text-align: center; color: #f43f5e;">{{.Heading}}</h2>
    <p style="text-align: justify; line-height: 1.6;">{{.Body}}</p>
    <br><br>
    <p style="text-align: right;">{{.Issued}}</p>
    <br><br>
    <p>Psicólogo(a): {{.Psychologist}}</p>
    <p>CRP: {{.CRP}}</p>
  </body>
</html>
`))

// document is everything printed on a declaration.
type document struct {
	Title        string
	Heading      string
	Body         htmltemplate.HTML
	Text         string
	Issued       string
	Psychologist string
	CRP          string
}

func orLine(s, line string) string {
	if s == "" {
		return line
	}
	return s
}

func renderHTML(d document) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

// renderPDF lays the declaration out on one A4 page.
func renderPDF(d document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(d.Title, true)
	pdf.SetCreator("teleconsulta", true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(244, 63, 94)
	pdf.CellFormat(0, 12, tr(d.Heading), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 7, tr(d.Text), "", "J", false)
	pdf.Ln(16)
	pdf.CellFormat(0, 7, d.Issued, "", 1, "R", false, 0, "")
	pdf.Ln(24)
	pdf.CellFormat(0, 7, tr("Psicólogo(a): "+d.Psychologist), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, tr("CRP: "+d.CRP), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
