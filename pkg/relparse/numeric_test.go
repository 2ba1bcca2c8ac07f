package relparse

import "testing"

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{name: "dollar with M suffix", input: "$75M", want: 75e6, ok: true},
		{name: "spelled out million", input: "75 million", want: 75e6, ok: true},
		{name: "decimal billion", input: "USD 1.2bn", want: 1.2e9, ok: true},
		{name: "comma separated", input: "$1,250,000", want: 1250000, ok: true},
		{name: "thousand suffix", input: "500k", want: 500000, ok: true},
		{name: "prose only", input: "tiered based on sales milestones", ok: false},
		{name: "empty", input: "", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, text := ParseMoney(tc.input)
			if tc.ok {
				if got == nil {
					t.Fatalf("ParseMoney(%q) = nil, want %v", tc.input, tc.want)
				}
				if *got != tc.want {
					t.Fatalf("ParseMoney(%q) = %v, want %v", tc.input, *got, tc.want)
				}
			} else if got != nil {
				t.Fatalf("ParseMoney(%q) = %v, want nil", tc.input, *got)
			}
			if tc.input != "" && text == "" {
				t.Fatalf("ParseMoney(%q) lost the original text", tc.input)
			}
		})
	}
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{name: "percent sign", input: "12.5%", want: 12.5, ok: true},
		{name: "spelled out", input: "8 percent", want: 8, ok: true},
		{name: "bare number", input: "12.5", want: 12.5, ok: true},
		{name: "bare number above 100", input: "250", ok: false},
		{name: "prose", input: "mid-single-digit royalties", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, text := ParsePercent(tc.input)
			if tc.ok {
				if got == nil || *got != tc.want {
					t.Fatalf("ParsePercent(%q) = %v, want %v", tc.input, got, tc.want)
				}
			} else if got != nil {
				t.Fatalf("ParsePercent(%q) = %v, want nil", tc.input, *got)
			}
			if text != tc.input {
				t.Fatalf("ParsePercent(%q) text = %q, want original kept", tc.input, text)
			}
		})
	}
}

func TestParseDurationMonths(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
		ok    bool
	}{
		{name: "year term", input: "10-year term", want: 120, ok: true},
		{name: "months", input: "18 months", want: 18, ok: true},
		{name: "bare integer is months", input: "24", want: 24, ok: true},
		{name: "weeks round to months", input: "26 weeks", want: 6, ok: true},
		{name: "prose", input: "until the last patent expires", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := ParseDurationMonths(tc.input)
			if tc.ok {
				if got == nil || *got != tc.want {
					t.Fatalf("ParseDurationMonths(%q) = %v, want %d", tc.input, got, tc.want)
				}
			} else if got != nil {
				t.Fatalf("ParseDurationMonths(%q) = %v, want nil", tc.input, *got)
			}
		})
	}
}
