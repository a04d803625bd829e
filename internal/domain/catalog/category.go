package catalog

import "strings"

// Category is the storefront's category taxonomy. The ERP's free-text
// category names are mapped onto it; the mapping is a pure function and
// unmapped names land in the default bucket rather than erroring.
type Category string

const (
	CategoryFasteners   Category = "FASTENERS"
	CategoryTools       Category = "TOOLS"
	CategoryElectrical  Category = "ELECTRICAL"
	CategoryPlumbing    Category = "PLUMBING"
	CategorySafety      Category = "SAFETY"
	CategoryConsumables Category = "CONSUMABLES"
	CategoryGeneral     Category = "GENERAL"
)

// categoryAliases maps normalized ERP category names to local categories
var categoryAliases = map[string]Category{
	"fasteners":        CategoryFasteners,
	"bolts & nuts":     CategoryFasteners,
	"screws":           CategoryFasteners,
	"tools":            CategoryTools,
	"hand tools":       CategoryTools,
	"power tools":      CategoryTools,
	"electrical":       CategoryElectrical,
	"cable & wire":     CategoryElectrical,
	"plumbing":         CategoryPlumbing,
	"pipes":            CategoryPlumbing,
	"safety":           CategorySafety,
	"ppe":              CategorySafety,
	"workwear":         CategorySafety,
	"consumables":      CategoryConsumables,
	"adhesives":        CategoryConsumables,
	"abrasives":        CategoryConsumables,
	"general":          CategoryGeneral,
	"uncategorised":    CategoryGeneral,
	"uncategorized":    CategoryGeneral,
	"miscellaneous":    CategoryGeneral,
	"misc":             CategoryGeneral,
	"general hardware": CategoryGeneral,
}

// MapCategory maps an ERP category name to the local taxonomy. Unknown names
// fall into CategoryGeneral.
func MapCategory(external string) Category {
	normalized := strings.ToLower(strings.TrimSpace(external))
	if c, ok := categoryAliases[normalized]; ok {
		return c
	}
	return CategoryGeneral
}

// IsValid returns true if the category is part of the local taxonomy
func (c Category) IsValid() bool {
	switch c {
	case CategoryFasteners, CategoryTools, CategoryElectrical,
		CategoryPlumbing, CategorySafety, CategoryConsumables, CategoryGeneral:
		return true
	default:
		return false
	}
}

// String returns the string representation of Category
func (c Category) String() string {
	return string(c)
}
