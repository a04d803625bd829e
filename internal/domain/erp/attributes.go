package erp

// AttributeSpec describes where a canonical attribute lives on a remote
// record: a custom field identified by label, with a conventionally-named
// standard field as fallback.
type AttributeSpec struct {
	CustomLabel   string
	FallbackField string
}

// AttributeTable maps canonical attribute names to their remote locations.
// It replaces per-call-site string transforms with one lookup evaluated per
// record.
type AttributeTable map[string]AttributeSpec

// DefaultAttributeTable covers the attributes the ERP exposes as custom
// fields on items and contacts.
func DefaultAttributeTable() AttributeTable {
	return AttributeTable{
		"category":      {CustomLabel: "Webshop Category", FallbackField: "item_group"},
		"price_list":    {CustomLabel: "Price List", FallbackField: "price_list_id"},
		"minimum_order": {CustomLabel: "Minimum Order Qty", FallbackField: "min_order_qty"},
	}
}

// Resolve looks up the canonical attribute on a record's custom fields,
// falling back to the standard field. The second return is false when the
// attribute is absent in both locations.
func (t AttributeTable) Resolve(name string, custom map[string]string, fields map[string]string) (string, bool) {
	spec, ok := t[name]
	if !ok {
		return "", false
	}
	if v, ok := custom[spec.CustomLabel]; ok && v != "" {
		return v, true
	}
	if v, ok := fields[spec.FallbackField]; ok && v != "" {
		return v, true
	}
	return "", false
}
