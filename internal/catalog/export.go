package catalog

import (
	"io"

	"github.com/tealeg/xlsx"
)

var exportHeader = []string{"ID", "Name", "Slug", "Category", "Price", "Discount price", "Stock", "Active", "Rating", "Reviews"}

// ExportProducts writes products as a single-sheet workbook.
func ExportProducts(w io.Writer, products []Product, categories *Tree) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Products")
	if err != nil {
		return err
	}

	head := sheet.AddRow()
	for _, h := range exportHeader {
		head.AddCell().SetString(h)
	}

	for _, p := range products {
		row := sheet.AddRow()
		row.AddCell().SetValue(p.ID)
		row.AddCell().SetString(p.Name)
		row.AddCell().SetString(p.Slug)

		category := ""
		if categories != nil {
			if c, ok := categories.Get(p.CategoryID); ok {
				category = c.Name
			}
		}
		row.AddCell().SetString(category)
		row.AddCell().SetString(p.Price.StringFixed(2))
		if p.DiscountPrice != nil {
			row.AddCell().SetString(p.DiscountPrice.StringFixed(2))
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetValue(p.Stock)
		row.AddCell().SetValue(p.IsActive)
		row.AddCell().SetValue(p.AverageRating)
		row.AddCell().SetValue(p.ReviewCount)
	}
	return file.Write(w)
}
