package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCanonicalStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Direct", StrategyDirect, true},
		{"DirectProductStrategy", StrategyDirect, true},
		{"product-list", StrategyList, true},
		{"ProductListStrategy", StrategyList, true},
		{"FAMILIES", StrategyFamilies, true},
		{"family", StrategyFamilies, true},
		{"sitemap", "", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalStrategy(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CanonicalStrategy(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSelectorsGet(t *testing.T) {
	s := Selectors{"productName": ".title", "productSku": "  "}
	if v, ok := s.Get("productName"); !ok || v != ".title" {
		t.Errorf("Get(productName) = (%q, %v)", v, ok)
	}
	if _, ok := s.Get("productSku"); ok {
		t.Error("blank selector should be reported as missing")
	}
	if _, ok := s.Get("productPrice"); ok {
		t.Error("missing key should be reported as missing")
	}
	var nilSel Selectors
	if _, ok := nilSel.Get("x"); ok {
		t.Error("nil selectors should report missing")
	}
}

func TestValidate(t *testing.T) {
	s := &Site{
		ID:      "s1",
		BaseURL: "https://example.test/catalog",
		Strategies: []StrategyDef{
			{Name: "ProductListStrategy", Priority: 1, Enabled: true},
		},
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if s.Strategies[0].Name != StrategyList {
		t.Errorf("strategy name = %q, want canonical %q", s.Strategies[0].Name, StrategyList)
	}

	bad := []*Site{
		{ID: "", BaseURL: "https://example.test"},
		{ID: "../x", BaseURL: "https://example.test"},
		{ID: "x", BaseURL: "/relative"},
		{ID: "x", BaseURL: "https://example.test", MaxProducts: -1},
		{ID: "x", BaseURL: "https://example.test", Strategies: []StrategyDef{{Name: "magic"}}},
	}
	for i, b := range bad {
		if err := b.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestOrderedStrategies(t *testing.T) {
	s := &Site{Strategies: []StrategyDef{
		{Name: "families", Priority: 3, Enabled: true},
		{Name: "direct", Priority: 1, Enabled: false},
		{Name: "list", Priority: 2, Enabled: true},
		{Name: "direct", Priority: 2, Enabled: true},
	}}
	var got []string
	for _, d := range s.OrderedStrategies() {
		got = append(got, d.Name)
	}
	want := []string{"list", "direct", "families"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestClone(t *testing.T) {
	s := &Site{
		ID:         "s1",
		Selectors:  Selectors{"a": "b"},
		Strategies: []StrategyDef{{Name: "list", Enabled: true}},
	}
	c := s.Clone()
	c.Selectors["a"] = "changed"
	c.Strategies[0].Enabled = false
	if s.Selectors["a"] != "b" {
		t.Error("clone shares selectors map")
	}
	if !s.Strategies[0].Enabled {
		t.Error("clone shares strategies slice")
	}
}

func TestRunStateActive(t *testing.T) {
	for _, st := range []RunState{StateRunning, StatePaused} {
		if !st.Active() {
			t.Errorf("%s should be active", st)
		}
	}
	for _, st := range []RunState{StateIdle, StateStopped, StateCompleted, StateError} {
		if st.Active() {
			t.Errorf("%s should not be active", st)
		}
	}
}
