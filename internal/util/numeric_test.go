package util

import "testing"

func TestLargestDecimal(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{name: "plain", input: "12.50", want: 12.5},
		{name: "currency prefix", input: "$118.20", want: 118.2},
		{name: "repeated values", input: "12.50, 118.20, 9.99", want: 118.2},
		{name: "thousands separator", input: "1,204.75 USD", want: 1204.75},
		{name: "parentheses noise", input: "(12.00) 45.10", want: 45.1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := LargestDecimal(tc.input)
			if !ok {
				t.Fatalf("no decimal found")
			}
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestLargestDecimalNoMatch(t *testing.T) {
	if _, ok := LargestDecimal("no numbers here"); ok {
		t.Fatal("expected no match")
	}
	got, ok := LargestDecimal("42")
	if !ok || got != 42 {
		t.Fatalf("integer fallback got %v ok=%v", got, ok)
	}
}

func TestParseNumeric(t *testing.T) {
	got, ok := ParseNumeric(" $1,250.40 ")
	if !ok || got != 1250.40 {
		t.Fatalf("got %v ok=%v", got, ok)
	}
	if _, ok := ParseNumeric(""); ok {
		t.Fatal("empty input should not parse")
	}
}

func TestStringify(t *testing.T) {
	if Stringify(float64(10)) != "10" {
		t.Fatalf("whole float should render without decimals")
	}
	if Stringify(2.5) != "2.5" {
		t.Fatalf("fractional float mangled")
	}
	if Stringify(nil) != "" {
		t.Fatalf("nil should render empty")
	}
}

func TestIsEmptyValue(t *testing.T) {
	for _, v := range []any{nil, "", float64(0), 0, false} {
		if !IsEmptyValue(v) {
			t.Fatalf("%v should be empty", v)
		}
	}
	for _, v := range []any{"0", "x", float64(1), true} {
		if IsEmptyValue(v) {
			t.Fatalf("%v should not be empty", v)
		}
	}
}
