package rules

import "testing"

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		bindings map[string]string
		want     string
	}{
		{
			name:     "basic_substitution",
			template: "Hi {customer_name}, you get {discount_value}% off!",
			bindings: map[string]string{"customer_name": "Ana", "discount_value": "20"},
			want:     "Hi Ana, you get 20% off!",
		},
		{
			name:     "unknown_placeholder_left_verbatim",
			template: "Hi {customer_name}, code {unknown}",
			bindings: map[string]string{"customer_name": "Ana"},
			want:     "Hi Ana, code {unknown}",
		},
		{
			name:     "no_placeholders",
			template: "plain text",
			bindings: map[string]string{"customer_name": "Ana"},
			want:     "plain text",
		},
		{
			name:     "empty_template",
			template: "",
			bindings: map[string]string{"customer_name": "Ana"},
			want:     "",
		},
		{
			name:     "unclosed_brace",
			template: "Hi {customer_name",
			bindings: map[string]string{"customer_name": "Ana"},
			want:     "Hi {customer_name",
		},
		{
			name:     "substituted_value_not_rescanned",
			template: "Hi {a}!",
			bindings: map[string]string{"a": "{b}", "b": "nope"},
			want:     "Hi {b}!",
		},
		{
			name:     "repeated_placeholder",
			template: "{tier} and {tier} again",
			bindings: map[string]string{"tier": "Gold"},
			want:     "Gold and Gold again",
		},
		{
			name:     "nil_bindings",
			template: "Hi {customer_name}",
			bindings: nil,
			want:     "Hi {customer_name}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.template, tt.bindings); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTierBindings(t *testing.T) {
	b := TierBindings("Ana", "", "15", "30")
	if b["loyalty_tier"] != "Classic" {
		t.Errorf("empty tier should fall back to Classic, got %q", b["loyalty_tier"])
	}

	b = TierBindings("Ana", "Gold", "15", "30")
	if b["loyalty_tier"] != "Gold" {
		t.Errorf("loyalty_tier = %q, want Gold", b["loyalty_tier"])
	}
	if b["customer_name"] != "Ana" || b["discount_value"] != "15" || b["validity_days"] != "30" {
		t.Errorf("unexpected bindings: %+v", b)
	}
}
