package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/jung-kurt/gofpdf"
	"github.com/tealeg/xlsx"
)

// Format selects a statement encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

const (
	statementTitle  = "Account Statement"
	statementSheet  = "Statement"
	pdfFontFamily   = "Arial"
	pdfCellHeight   = 7
	pdfBorderAll    = "1"
	pdfAlignRight   = "R"
	contentTypeCSV  = "text/csv"
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var statementColumns = []string{"Timestamp", "Type", "Amount", "Balance Before", "Balance After", "Note"}

var pdfColumnWidths = []float64{38, 28, 26, 28, 28, 42}

// ErrUnsupportedFormat is returned for formats other than csv, pdf and xlsx.
var ErrUnsupportedFormat = fmt.Errorf("%w: unsupported statement format", ledger.ErrValidation)

// ParseFormat validates a statement format name.
func ParseFormat(raw string) (Format, error) {
	switch format := Format(strings.ToLower(strings.TrimSpace(raw))); format {
	case FormatCSV, FormatPDF, FormatXLSX:
		return format, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// ContentType returns the MIME type of the format.
func (format Format) ContentType() string {
	switch format {
	case FormatPDF:
		return contentTypePDF
	case FormatXLSX:
		return contentTypeXLSX
	default:
		return contentTypeCSV
	}
}

// FileName returns the conventional download name for an account statement.
func (format Format) FileName(accountID ledger.AccountID) string {
	return "statement_" + accountID.String() + "." + string(format)
}

// WriteStatement renders an account's history to writer.
func (view *View) WriteStatement(ctx context.Context, writer io.Writer, accountID ledger.AccountID, format Format) error {
	account, found := view.directory.FindByID(accountID)
	if !found {
		return ledger.ErrAccountNotFound
	}
	entries, err := view.History(ctx, accountID)
	if err != nil {
		return err
	}
	switch format {
	case FormatCSV:
		return writeCSV(writer, entries)
	case FormatPDF:
		return writePDF(writer, account, entries)
	case FormatXLSX:
		return writeXLSX(writer, entries)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func statementRow(entry ledger.Entry) []string {
	return []string{
		ledger.FormatTimestamp(entry.CreatedUnixUTC),
		entry.Kind.String(),
		entry.AmountCents.String(),
		entry.BeforeCents.String(),
		entry.AfterCents.String(),
		entry.Note,
	}
}

func writeCSV(writer io.Writer, entries []ledger.Entry) error {
	csvWriter := csv.NewWriter(writer)
	if err := csvWriter.Write(statementColumns); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := csvWriter.Write(statementRow(entry)); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func writePDF(writer io.Writer, account ledger.Account, entries []ledger.Entry) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont(pdfFontFamily, "B", 16)
	pdf.Cell(40, 10, statementTitle)
	pdf.Ln(12)

	pdf.SetFont(pdfFontFamily, "", 11)
	pdf.Cell(0, 6, "Account: "+account.ID.String()+"  ("+account.Category.String()+")")
	pdf.Ln(6)
	pdf.Cell(0, 6, "Holder: "+account.HolderName)
	pdf.Ln(6)
	pdf.Cell(0, 6, "Balance: "+account.BalanceCents.String())
	pdf.Ln(10)

	pdf.SetFont(pdfFontFamily, "B", 10)
	for index, column := range statementColumns {
		pdf.CellFormat(pdfColumnWidths[index], pdfCellHeight, column, pdfBorderAll, 0, "", false, 0, "")
	}
	pdf.Ln(pdfCellHeight)

	pdf.SetFont(pdfFontFamily, "", 9)
	for _, entry := range entries {
		for index, value := range statementRow(entry) {
			align := ""
			if index >= 2 && index <= 4 {
				align = pdfAlignRight
			}
			pdf.CellFormat(pdfColumnWidths[index], pdfCellHeight, value, pdfBorderAll, 0, align, false, 0, "")
		}
		pdf.Ln(pdfCellHeight)
	}
	return pdf.Output(writer)
}

func writeXLSX(writer io.Writer, entries []ledger.Entry) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(statementSheet)
	if err != nil {
		return err
	}
	header := sheet.AddRow()
	for _, column := range statementColumns {
		header.AddCell().SetValue(column)
	}
	for _, entry := range entries {
		row := sheet.AddRow()
		for _, value := range statementRow(entry) {
			row.AddCell().SetValue(value)
		}
	}
	return file.Write(writer)
}
