package main

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseItems(t *testing.T) {
	items, err := parseItems(" ITEM-A:10, ITEM-B:2.5 ,")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(items) != 2 || items[0].number != "ITEM-A" || items[1].ordered.String() != "2.5" {
		t.Fatalf("items=%+v", items)
	}

	for _, bad := range []string{"", "ITEM-A", "ITEM-A:0", ":5", "ITEM-A:x"} {
		if _, err := parseItems(bad); err == nil {
			t.Fatalf("%q should be rejected", bad)
		}
	}
}

func TestNewTagCode(t *testing.T) {
	a, b := newTagCode(), newTagCode()
	if a == b {
		t.Fatalf("codes collide")
	}
	if len(a) != 24 || !strings.HasPrefix(a, "E2") {
		t.Fatalf("code=%q", a)
	}
}

func TestSplitQuantityKeepsTotal(t *testing.T) {
	cases := []struct {
		total string
		n     int
		last  string
	}{
		{"10", 3, "3.3334"},
		{"4", 2, "2"},
		{"2.5", 1, "2.5"},
		{"1", 7, "0.1432"},
	}
	for _, tc := range cases {
		total := decimal.RequireFromString(tc.total)
		parts := splitQuantity(total, tc.n)
		if len(parts) != tc.n {
			t.Fatalf("%s/%d: parts=%d", tc.total, tc.n, len(parts))
		}
		sum := decimal.Zero
		for _, p := range parts {
			sum = sum.Add(p)
		}
		if !sum.Equal(total) {
			t.Fatalf("%s/%d: sum=%s", tc.total, tc.n, sum)
		}
		if !parts[tc.n-1].Equal(decimal.RequireFromString(tc.last)) {
			t.Fatalf("%s/%d: last=%s want %s", tc.total, tc.n, parts[tc.n-1], tc.last)
		}
	}
}
