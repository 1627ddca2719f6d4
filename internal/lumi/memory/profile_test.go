package memory

import "testing"

func TestPrefixDetector(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
		wantOK  bool
	}{
		{"chinese full", "我的名字是莫莫", "莫莫", true},
		{"chinese short", "我叫小美", "小美", true},
		{"chinese identity", "我是一個工程師", "一個工程師", true},
		{"english name", "My name is Alice", "Alice", true},
		{"english identity", "I am Alice", "Alice", true},
		{"english contraction", "I'm Bob", "Bob", true},
		{"lowercase english", "i am carol", "carol", true},
		{"leading whitespace", "  我叫小美  ", "小美", true},
		{"no declaration", "今天天氣真好", "", false},
		{"prefix only", "我叫", "", false},
		{"prefix then spaces", "I am   ", "", false},
		{"empty", "", "", false},
		{"whitespace only", "   ", "", false},
		{"mid-sentence mention", "其實我叫什麼不重要", "", false},
	}

	var d PrefixDetector
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Detect(tt.message)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Detect(%q) = (%q, %v), want (%q, %v)",
					tt.message, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPrefixDetectorLongestPrefixWins(t *testing.T) {
	// "我的名字是X" also starts with "我" variants; the longest listed
	// prefix must be the one stripped.
	var d PrefixDetector
	got, ok := d.Detect("我的名字是露露")
	if !ok || got != "露露" {
		t.Fatalf("Detect() = (%q, %v), want (%q, true)", got, ok, "露露")
	}
}
