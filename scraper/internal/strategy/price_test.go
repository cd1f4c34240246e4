package strategy

import "testing"

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"12.50", 12.50},
		{"12,50", 12.50},
		{"€ 1.234,56", 1234.56},
		{"$1,234.56", 1234.56},
		{"1,234", 1234},
		{"1.234.567", 1234567},
		{"1,234,567.89", 1234567.89},
		{"CHF 1'234.50", 1234.50},
		{"1 234,00 EUR", 1234},
		{"1 234,00 €", 1234},
		{"Price: 99", 99},
		{"10,00 € - 12,00 €", 10},
		{"19.90.", 19.90},
	}
	for _, tc := range cases {
		got := ParsePrice(tc.in)
		if got == nil {
			t.Errorf("ParsePrice(%q) = nil, want %v", tc.in, tc.want)
			continue
		}
		if *got != tc.want {
			t.Errorf("ParsePrice(%q) = %v, want %v", tc.in, *got, tc.want)
		}
	}
}

func TestParsePrice_Unparsable(t *testing.T) {
	for _, in := range []string{"", "   ", "n/a", "on request", "€"} {
		if got := ParsePrice(in); got != nil {
			t.Errorf("ParsePrice(%q) = %v, want nil", in, *got)
		}
	}
}

func TestResolveURL(t *testing.T) {
	cases := []struct{ base, href, want string }{
		{"https://a.test/x/y", "/p/1", "https://a.test/p/1"},
		{"https://a.test/x/y", "z", "https://a.test/x/z"},
		{"https://a.test/", "https://b.test/q", "https://b.test/q"},
		{"", "https://b.test/q", "https://b.test/q"},
		{"", "/rel", ""},
		{"https://a.test/", "#top", ""},
		{"https://a.test/", "javascript:void(0)", ""},
		{"https://a.test/", "  ", ""},
	}
	for _, tc := range cases {
		if got := resolveURL(tc.base, tc.href); got != tc.want {
			t.Errorf("resolveURL(%q, %q) = %q, want %q", tc.base, tc.href, got, tc.want)
		}
	}
}
