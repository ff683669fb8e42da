package tokens

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// Pair is a single key/value property in source order.
type Pair struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Props is the ordered property map of a token. Setting an existing key keeps
// its original position.
type Props struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewProps builds a property map from pairs, in order.
func NewProps(pairs ...Pair) *Props {
	p := &Props{m: orderedmap.New[string, string]()}
	for _, kv := range pairs {
		p.Set(kv.Key, kv.Value)
	}
	return p
}

// Get returns the value for key, or "" when absent.
func (p *Props) Get(key string) string {
	v, _ := p.Lookup(key)
	return v
}

// Lookup returns the value for key and whether it is present.
func (p *Props) Lookup(key string) (string, bool) {
	if p == nil || p.m == nil {
		return "", false
	}
	return p.m.Get(key)
}

// First returns the first non-empty value among keys.
func (p *Props) First(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(p.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func (p *Props) Set(key, value string) {
	if p.m == nil {
		p.m = orderedmap.New[string, string]()
	}
	p.m.Set(key, value)
}

func (p *Props) Len() int {
	if p == nil || p.m == nil {
		return 0
	}
	return p.m.Len()
}

func (p *Props) Keys() []string {
	out := make([]string, 0, p.Len())
	for _, kv := range p.Pairs() {
		out = append(out, kv.Key)
	}
	return out
}

// Pairs returns the properties in insertion order.
func (p *Props) Pairs() []Pair {
	if p == nil || p.m == nil {
		return nil
	}
	out := make([]Pair, 0, p.m.Len())
	for el := p.m.Oldest(); el != nil; el = el.Next() {
		out = append(out, Pair{Key: el.Key, Value: el.Value})
	}
	return out
}

func (p *Props) Clone() *Props {
	return NewProps(p.Pairs()...)
}

// Encode serializes the properties as key="value" joined by commas.
func (p *Props) Encode() string {
	var b strings.Builder
	for i, kv := range p.Pairs() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(kv.Key)
		b.WriteString(`="`)
		b.WriteString(cleanValue(kv.Value))
		b.WriteByte('"')
	}
	return b.String()
}

func (p *Props) MarshalJSON() ([]byte, error) {
	if p == nil || p.m == nil {
		return []byte("{}"), nil
	}
	return p.m.MarshalJSON()
}

// MarshalYAML emits a mapping in insertion order.
func (p *Props) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, kv := range p.Pairs() {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: kv.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: kv.Value, Style: yaml.DoubleQuotedStyle})
	}
	return node, nil
}

// cleanValue replaces double quotes, which the grammar cannot carry inside a value.
func cleanValue(v string) string {
	return strings.ReplaceAll(v, `"`, `'`)
}
