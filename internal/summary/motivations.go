package summary

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// FallbackMotivation is used when no message set is available.
const FallbackMotivation = "All tasks are done. Well done for seeing the day through."

//go:embed motivations.yaml
var defaultMotivations []byte

// Motivations is an immutable set of all-done messages. It is loaded once
// at startup and safe for concurrent use.
type Motivations struct {
	messages []string
	pick     func(n int) int
}

type motivationFile struct {
	Messages []string `yaml:"messages"`
}

// LoadMotivations reads the set from path, or the built-in set when path is
// empty.
func LoadMotivations(path string) (*Motivations, error) {
	b := defaultMotivations
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("motivations: %w", err)
		}
		b = raw
	}
	return parseMotivations(b)
}

func parseMotivations(b []byte) (*Motivations, error) {
	var f motivationFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("motivations: %w", err)
	}
	out := make([]string, 0, len(f.Messages))
	for _, m := range f.Messages {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("motivations: no messages")
	}
	return &Motivations{messages: out, pick: rand.IntN}, nil
}

// Pick returns a random message. A nil or empty set yields the fallback.
func (m *Motivations) Pick() string {
	if m == nil || len(m.messages) == 0 {
		return FallbackMotivation
	}
	return m.messages[m.pick(len(m.messages))]
}

func (m *Motivations) Len() int {
	if m == nil {
		return 0
	}
	return len(m.messages)
}
