package normalizer

import "testing"

func TestCompileWidensDigitsAndSpaces(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{`^\d+$`, "123", true},
		{`^\d+$`, "１２３", true},
		{`^a\sb$`, "a b", true},
		{`^a\sb$`, "a　b", true},
		{`^[\s]+$`, "　 ", true},
		{`^[^\s]+$`, "a　b", false},
		{`^\w+$`, "abc", true},
		{`^\.$`, ".", true},
		{`^\.$`, "a", false},
	}

	for _, tt := range tests {
		if got := compile(tt.pattern).MatchString(tt.input); got != tt.want {
			t.Errorf("compile(%q).MatchString(%q) = %v, want %v", tt.pattern, tt.input, got, tt.want)
		}
	}
}
