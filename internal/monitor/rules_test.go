package monitor

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kstaniek/go-lin-monitor/internal/lin"
)

func TestDefaultRuleMatch(t *testing.T) {
	r := DefaultRules()[0]
	cases := []struct {
		name   string
		bytes  []byte
		wantOn bool
		wantOK bool
	}{
		{"bit set", []byte{0x39, 0x02, 0, 0, 0, 0, 0, 0xC4}, true, true},
		{"bit 2 only", []byte{0x39, 0x04, 0, 0, 0, 0, 0, 0xC2}, false, true},
		{"clear", []byte{0x39, 0x00, 0, 0, 0, 0, 0, 0xC6}, false, true},
		{"wrong id", []byte{0x3A, 0x02, 0, 0, 0, 0, 0, 0xC4}, false, false},
		{"five data bytes", []byte{0x39, 0x02, 0, 0, 0, 0, 0xC4}, false, false},
		{"identifier only", []byte{0x39}, false, false},
	}
	for _, tc := range cases {
		var f lin.Frame
		f.Len = uint8(copy(f.Data[:], tc.bytes))
		on, ok := r.Match(&f)
		if on != tc.wantOn || ok != tc.wantOK {
			t.Errorf("%s: on=%v ok=%v want %v %v", tc.name, on, ok, tc.wantOn, tc.wantOK)
		}
	}
}

func TestParseRules(t *testing.T) {
	doc := []byte(`
rules:
  - name: reverse_gear
    id: 0x39
    payload_len: 6
    byte: 0
    mask: 0x02
    action: buzzer
  - name: hazard
    id: 0x1A
    payload_len: 4
    byte: 3
    mask: 0x80
    action: buzzer
`)
	rules, err := ParseRules(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []Rule{
		DefaultRules()[0],
		{Name: "hazard", ID: 0x1A, PayloadLen: 4, Byte: 3, Mask: 0x80, Action: "buzzer"},
	}
	if !reflect.DeepEqual(rules, want) {
		t.Fatalf("rules=%+v\nwant %+v", rules, want)
	}
}

func TestParseRulesErrors(t *testing.T) {
	cases := map[string]string{
		"empty":        "rules: []\n",
		"no name":      "rules:\n  - {id: 1, payload_len: 2, byte: 0, mask: 1, action: buzzer}\n",
		"byte outside": "rules:\n  - {name: a, id: 1, payload_len: 2, byte: 2, mask: 1, action: buzzer}\n",
		"zero mask":    "rules:\n  - {name: a, id: 1, payload_len: 2, byte: 0, mask: 0, action: buzzer}\n",
		"payload":      "rules:\n  - {name: a, id: 1, payload_len: 9, byte: 0, mask: 1, action: buzzer}\n",
		"no action":    "rules:\n  - {name: a, id: 1, payload_len: 2, byte: 0, mask: 1}\n",
		"duplicate": "rules:\n  - {name: a, id: 1, payload_len: 2, byte: 0, mask: 1, action: buzzer}\n" +
			"  - {name: a, id: 2, payload_len: 2, byte: 0, mask: 1, action: buzzer}\n",
	}
	for name, doc := range cases {
		if _, err := ParseRules([]byte(doc)); !errors.Is(err, ErrInvalidRule) {
			t.Errorf("%s: err=%v want ErrInvalidRule", name, err)
		}
	}
	if _, err := ParseRules([]byte("rules: [")); err == nil || errors.Is(err, ErrInvalidRule) {
		t.Errorf("syntax error not reported as parse error: %v", err)
	}
	if _, err := ParseRules([]byte("rules:\n  - {name: a, id: 300, payload_len: 2, byte: 0, mask: 1, action: buzzer}\n")); err == nil {
		t.Error("identifier out of byte range accepted")
	}
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil || !reflect.DeepEqual(rules, DefaultRules()) {
		t.Fatalf("default: %+v %v", rules, err)
	}
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - {name: door, id: 0x20, payload_len: 1, byte: 0, mask: 0x01, action: buzzer}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err = LoadRules(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rules) != 1 || rules[0].Name != "door" || rules[0].ID != 0x20 {
		t.Fatalf("rules=%+v", rules)
	}
	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}
