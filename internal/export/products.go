package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/tealeg/xlsx"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	sheetName   = "Products"
	timeLayout  = "2006-01-02 15:04:05"
)

var productHeaders = []string{
	"ID", "Name", "Description", "Category", "Price", "Stock",
	"Images", "Sizes", "Colors", "AverageRating", "NumReviews",
	"CreatedAt", "UpdatedAt",
}

// WriteProducts writes an xlsx workbook with a header row and one row per
// product to w
func WriteProducts(w io.Writer, products []*product.Product) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range productHeaders {
		header.AddCell().SetString(h)
	}

	for _, p := range products {
		row := sheet.AddRow()
		row.AddCell().SetString(p.ID)
		row.AddCell().SetString(p.Name)
		row.AddCell().SetString(p.Description)
		row.AddCell().SetString(p.Category)
		row.AddCell().SetFloat(p.Price.InexactFloat64())
		row.AddCell().SetInt(p.Stock)
		row.AddCell().SetString(strings.Join(p.Images, ","))
		row.AddCell().SetString(strings.Join(p.Sizes, ","))
		row.AddCell().SetString(strings.Join(p.Colors, ","))
		row.AddCell().SetFloat(p.AverageRating)
		row.AddCell().SetInt(p.NumReviews)
		row.AddCell().SetString(p.CreatedAt.Format(timeLayout))
		row.AddCell().SetString(p.UpdatedAt.Format(timeLayout))
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
