package rules

import "strings"

// Render substitutes {name} placeholders in template with values from
// bindings. Unknown placeholders are left verbatim so templates may reference
// fields a caller did not compute. The scan is a single left-to-right pass
// and substituted values are never re-scanned, so a binding value containing
// placeholder syntax cannot trigger further expansion.
func Render(template string, bindings map[string]string) string {
	var b strings.Builder
	b.Grow(len(template))

	for {
		open := strings.IndexByte(template, '{')
		if open < 0 {
			b.WriteString(template)
			return b.String()
		}

		close := strings.IndexByte(template[open:], '}')
		if close < 0 {
			b.WriteString(template)
			return b.String()
		}
		close += open

		name := template[open+1 : close]
		value, ok := bindings[name]
		if ok {
			b.WriteString(template[:open])
			b.WriteString(value)
		} else {
			b.WriteString(template[:close+1])
		}
		template = template[close+1:]
	}
}

// TierBindings assembles the standard binding set for tier notifications.
// An empty tier falls back to "Classic" so templates never render a blank
// tier name.
func TierBindings(customerName, tier string, discountValue, validityDays string) map[string]string {
	if tier == "" {
		tier = "Classic"
	}
	return map[string]string{
		"customer_name":  customerName,
		"loyalty_tier":   tier,
		"discount_value": discountValue,
		"validity_days":  validityDays,
	}
}
