// Package catalog defines the product record served by both search engines
// and loads product snapshots from CSV or Parquet files.
package catalog

import (
	"github.com/Rifat977/search-bench/internal/indexer/index"
	"github.com/Rifat977/search-bench/internal/indexer/schema"
)

// Product is a single catalog entry. Text fields default to "" and numeric
// fields are nil when the source has no value.
type Product struct {
	Title        string   `json:"title" parquet:"title"`
	Brand        string   `json:"brand" parquet:"brand"`
	Description  string   `json:"description" parquet:"description"`
	Price        *float64 `json:"price" parquet:"price"`
	Currency     string   `json:"currency" parquet:"currency"`
	Availability string   `json:"availability" parquet:"availability"`
	ReviewsCount *int64   `json:"reviews_count" parquet:"reviews_count"`
	Rating       *float64 `json:"rating" parquet:"rating"`
	Discount     string   `json:"discount" parquet:"discount"`
	Manufacturer string   `json:"manufacturer" parquet:"manufacturer"`
	Category     string   `json:"category" parquet:"category"`
}

// Document flattens p into stored values ordered by s.
func (p Product) Document(s *schema.Schema) index.Document {
	doc := make(index.Document, s.NumFields())
	for i, f := range s.Fields() {
		doc[i] = p.value(f.Name)
	}
	return doc
}

// FromDocument rebuilds a Product from stored values ordered by s. Missing
// or nil values become the field's zero value.
func FromDocument(s *schema.Schema, doc index.Document) Product {
	var p Product
	for i, f := range s.Fields() {
		if i >= len(doc) || doc[i] == nil {
			continue
		}
		p.set(f.Name, doc[i])
	}
	return p
}

func (p Product) value(field string) any {
	switch field {
	case schema.FieldTitle:
		return p.Title
	case schema.FieldBrand:
		return p.Brand
	case schema.FieldDescription:
		return p.Description
	case schema.FieldPrice:
		return derefFloat(p.Price)
	case schema.FieldCurrency:
		return p.Currency
	case schema.FieldAvailability:
		return p.Availability
	case schema.FieldReviewsCount:
		if p.ReviewsCount == nil {
			return nil
		}
		return *p.ReviewsCount
	case schema.FieldRating:
		return derefFloat(p.Rating)
	case schema.FieldDiscount:
		return p.Discount
	case schema.FieldManufacturer:
		return p.Manufacturer
	case schema.FieldCategory:
		return p.Category
	default:
		return nil
	}
}

func (p *Product) set(field string, v any) {
	switch field {
	case schema.FieldTitle:
		p.Title, _ = v.(string)
	case schema.FieldBrand:
		p.Brand, _ = v.(string)
	case schema.FieldDescription:
		p.Description, _ = v.(string)
	case schema.FieldPrice:
		p.Price = floatPtr(v)
	case schema.FieldCurrency:
		p.Currency, _ = v.(string)
	case schema.FieldAvailability:
		p.Availability, _ = v.(string)
	case schema.FieldReviewsCount:
		if n, ok := v.(int64); ok {
			p.ReviewsCount = &n
		}
	case schema.FieldRating:
		p.Rating = floatPtr(v)
	case schema.FieldDiscount:
		p.Discount, _ = v.(string)
	case schema.FieldManufacturer:
		p.Manufacturer, _ = v.(string)
	case schema.FieldCategory:
		p.Category, _ = v.(string)
	}
}

func derefFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(v any) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}
