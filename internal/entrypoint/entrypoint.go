// Package entrypoint converts the command and args machine attributes into
// a container entry point and back.
//
// Both attributes hold a string list in YAML flow syntax, for example
// `["/bin/sh", "-c"]`. JSON arrays are valid YAML flow sequences, so
// documents written either way are accepted.
package entrypoint

import (
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"wsruntime/internal/model"
)

// EntryPoint is a container command plus its arguments. Both lists are
// never nil.
type EntryPoint struct {
	command   []string
	arguments []string
}

// New returns an EntryPoint holding copies of command and arguments.
func New(command, arguments []string) EntryPoint {
	return EntryPoint{
		command:   append([]string{}, command...),
		arguments: append([]string{}, arguments...),
	}
}

// Command returns a copy of the command tokens.
func (e EntryPoint) Command() []string {
	return append([]string{}, e.command...)
}

// Arguments returns a copy of the argument tokens.
func (e EntryPoint) Arguments() []string {
	return append([]string{}, e.arguments...)
}

// Equal reports whether both entry points have the same command and
// arguments in the same order.
func (e EntryPoint) Equal(other EntryPoint) bool {
	return slices.Equal(e.command, other.command) && slices.Equal(e.arguments, other.arguments)
}

func (e EntryPoint) String() string {
	return fmt.Sprintf("EntryPoint{command=[%s], arguments=[%s]}",
		strings.Join(e.command, ", "), strings.Join(e.arguments, ", "))
}

// ParseError reports a command or args attribute that is not a valid string
// list. It is a configuration error: retrying with the same input cannot
// succeed.
type ParseError struct {
	Attribute string
	Value     string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("attribute %q has malformed value %q: %v", e.Attribute, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse reads the command and args attributes. A missing attribute yields an
// empty list.
func Parse(attributes map[string]string) (EntryPoint, error) {
	command, err := parseAttribute(attributes, model.AttrCommand)
	if err != nil {
		return EntryPoint{}, err
	}
	arguments, err := parseAttribute(attributes, model.AttrArgs)
	if err != nil {
		return EntryPoint{}, err
	}
	return EntryPoint{command: command, arguments: arguments}, nil
}

// ParseList decodes one attribute value into a string list.
func ParseList(value string) ([]string, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(value), &node); err != nil {
		return nil, err
	}
	// An empty document decodes to a zero node.
	if node.Kind == 0 {
		return nil, fmt.Errorf("expected a list of strings, got an empty document")
	}
	doc := &node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a list of strings, got %s", describe(doc))
	}

	out := make([]string, 0, len(doc.Content))
	for i, item := range doc.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("item %d: expected a string, got %s", i, describe(item))
		}
		out = append(out, item.Value)
	}
	return out, nil
}

// Serialize encodes a string list in the attribute format. Marshalling plain
// strings cannot fail; if it does, the YAML library is broken and we panic.
func Serialize(list []string) string {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, s := range list {
		seq.Content = append(seq.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!!str",
			Value: s,
			Style: yaml.DoubleQuotedStyle,
		})
	}
	out, err := yaml.Marshal(seq)
	if err != nil {
		panic(fmt.Sprintf("entrypoint: cannot serialize %q: %v", list, err))
	}
	return strings.TrimSpace(string(out))
}

// Apply writes the entry point back into machine attributes, e.g. after it
// has been merged with defaults. Empty lists remove the attribute.
func Apply(attributes map[string]string, e EntryPoint) {
	set := func(key string, list []string) {
		if len(list) == 0 {
			delete(attributes, key)
			return
		}
		attributes[key] = Serialize(list)
	}
	set(model.AttrCommand, e.command)
	set(model.AttrArgs, e.arguments)
}

func parseAttribute(attributes map[string]string, name string) ([]string, error) {
	value, ok := attributes[name]
	if !ok {
		return []string{}, nil
	}
	list, err := ParseList(value)
	if err != nil {
		return nil, &ParseError{Attribute: name, Value: value, Err: err}
	}
	return list, nil
}

func describe(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "a mapping"
	case yaml.ScalarNode:
		return fmt.Sprintf("scalar %q", n.Value)
	case yaml.AliasNode:
		return "an alias"
	default:
		return "an unsupported node"
	}
}
