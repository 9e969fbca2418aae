package monitor

import (
	"errors"
	"fmt"
	"os"

	"github.com/kstaniek/go-lin-monitor/internal/lin"
	"gopkg.in/yaml.v3"
)

// ActionBuzzer is the actuator name the default rule drives.
const ActionBuzzer = "buzzer"

// Rule extracts one boolean signal from frames carrying a given identifier
// byte and payload size: on = payload[Byte] & Mask != 0.
type Rule struct {
	Name       string `yaml:"name"`
	ID         byte   `yaml:"id"`
	PayloadLen int    `yaml:"payload_len"`
	Byte       int    `yaml:"byte"`
	Mask       byte   `yaml:"mask"`
	Action     string `yaml:"action"`
}

// DefaultRules holds the reverse gear signal: identifier 0x39, six data
// bytes, bit mask 0b10 of the first data byte, forwarded to the buzzer.
func DefaultRules() []Rule {
	return []Rule{{
		Name:       "reverse_gear",
		ID:         0x39,
		PayloadLen: 6,
		Byte:       0,
		Mask:       0b00000010,
		Action:     ActionBuzzer,
	}}
}

// Match reports whether f is addressed by the rule and, if so, the signal
// state it carries. Frames too short to hold identifier and checksum never
// match.
func (r *Rule) Match(f *lin.Frame) (on, ok bool) {
	n, ok := f.PayloadLen()
	if !ok || n != r.PayloadLen || f.PID() != r.ID {
		return false, false
	}
	return f.Payload()[r.Byte]&r.Mask != 0, true
}

// ErrInvalidRule is wrapped by every rule validation failure.
var ErrInvalidRule = errors.New("invalid rule")

// Validate checks that the rule can ever match and names an action.
func (r *Rule) Validate() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidRule)
	case r.PayloadLen < 1 || r.PayloadLen > lin.MaxPayload:
		return fmt.Errorf("%w %q: payload_len %d out of range 1..%d", ErrInvalidRule, r.Name, r.PayloadLen, lin.MaxPayload)
	case r.Byte < 0 || r.Byte >= r.PayloadLen:
		return fmt.Errorf("%w %q: byte %d outside payload of %d", ErrInvalidRule, r.Name, r.Byte, r.PayloadLen)
	case r.Mask == 0:
		return fmt.Errorf("%w %q: mask must not be zero", ErrInvalidRule, r.Name)
	case r.Action == "":
		return fmt.Errorf("%w %q: missing action", ErrInvalidRule, r.Name)
	}
	return nil
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules decodes a YAML document with a top-level "rules" list.
func ParseRules(data []byte) ([]Rule, error) {
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("%w: no rules defined", ErrInvalidRule)
	}
	seen := make(map[string]struct{}, len(rf.Rules))
	for i := range rf.Rules {
		r := &rf.Rules[i]
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("%w %q: duplicate name", ErrInvalidRule, r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return rf.Rules, nil
}

// LoadRules reads a rules file. An empty path returns DefaultRules.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}
