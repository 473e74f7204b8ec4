package schema

// Product field names.
const (
	FieldTitle        = "title"
	FieldBrand        = "brand"
	FieldDescription  = "description"
	FieldPrice        = "price"
	FieldCurrency     = "currency"
	FieldAvailability = "availability"
	FieldReviewsCount = "reviews_count"
	FieldRating       = "rating"
	FieldDiscount     = "discount"
	FieldManufacturer = "manufacturer"
	FieldCategory     = "category"
)

// Products returns the catalog schema. Title, brand and description are
// searchable; everything else is kept for display.
func Products() *Schema {
	return MustNew(
		Field{Name: FieldTitle, Type: Text, Role: TokenizedStored},
		Field{Name: FieldBrand, Type: Text, Role: TokenizedStored},
		Field{Name: FieldDescription, Type: Text, Role: TokenizedStored},
		Field{Name: FieldPrice, Type: Float, Role: StoredOnly},
		Field{Name: FieldCurrency, Type: Text, Role: StoredOnly},
		Field{Name: FieldAvailability, Type: Text, Role: StoredOnly},
		Field{Name: FieldReviewsCount, Type: Int, Role: StoredOnly},
		Field{Name: FieldRating, Type: Float, Role: StoredOnly},
		Field{Name: FieldDiscount, Type: Text, Role: StoredOnly},
		Field{Name: FieldManufacturer, Type: Text, Role: StoredOnly},
		Field{Name: FieldCategory, Type: Text, Role: StoredOnly},
	)
}
