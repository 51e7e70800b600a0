package node

import "testing"

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"object with prose around", "Sure, here it is:\n{\"a\":1}\nHope that helps.", `{"a":1}`},
		{"markdown fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"array", `noise [1,2,3] tail`, `[1,2,3]`},
		{"object before array", `{"a":[1,2]} trailing`, `{"a":[1,2]}`},
		{"empty input", "", ""},
		{"whitespace only", "   \n ", ""},
		{"plain prose stays intact", "no json here", "no json here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSONObject(tt.in); got != tt.want {
				t.Fatalf("ExtractJSONObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncateByRunes(t *testing.T) {
	tests := []struct {
		in       string
		maxRunes int
		want     string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"hello", -1, ""},
		{"héllo", 2, "hé"},
		{"", 4, ""},
	}
	for _, tt := range tests {
		if got := TruncateByRunes(tt.in, tt.maxRunes); got != tt.want {
			t.Fatalf("TruncateByRunes(%q, %d) = %q, want %q", tt.in, tt.maxRunes, got, tt.want)
		}
	}
}
