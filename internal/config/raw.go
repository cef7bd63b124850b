package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

var (
	// ErrValidation is returned when the settings file fails the schema.
	ErrValidation = errors.New("config validation failed")

	// ErrInvalidKey is returned by Set for a key absent from the file.
	ErrInvalidKey = errors.New("invalid config key")

	// ErrInvalidValue is returned by Set when the value cannot be cast to
	// the key's current type.
	ErrInvalidValue = errors.New("invalid config value")
)

// Kind is a primitive value type as written in the settings file.
type Kind string

const (
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "str"
	KindBool   Kind = "bool"
)

// Field is one schema entry.
type Field struct {
	Key  string
	Kind Kind
}

// Schema lists the keys every settings file must carry.
var Schema = []Field{
	{"num_users", KindInt},
	{"months", KindInt},
	{"batch_size", KindInt},
	{"output_dir", KindString},
	{"model", KindString},
	{"temperature", KindFloat},
	{"max_tokens", KindInt},
}

// Violation is one schema failure.
type Violation struct {
	Key      string
	Expected Kind
	Got      string // empty when the key is missing
}

func (v Violation) String() string {
	if v.Got == "" {
		return fmt.Sprintf("missing key: %s", v.Key)
	}
	return fmt.Sprintf("invalid type for %s: expected %s, got %s", v.Key, v.Expected, v.Got)
}

// Report is the outcome of Validate.
type Report struct {
	Violations []Violation
}

// OK reports whether every key is present with the expected type.
func (r Report) OK() bool { return len(r.Violations) == 0 }

// Validate checks the raw settings file at path against schema without
// applying defaults or environment overrides. The file is never modified.
func Validate(path string, schema []Field) (Report, error) {
	doc, err := readDocument(path)
	if err != nil {
		return Report{}, err
	}
	return check(rootMapping(doc), schema), nil
}

func check(root *yaml.Node, schema []Field) Report {
	var rep Report
	for _, f := range schema {
		node := lookupKey(root, f.Key)
		if node == nil {
			rep.Violations = append(rep.Violations, Violation{Key: f.Key, Expected: f.Kind})
			continue
		}
		got := kindOf(node)
		if !accepts(f.Kind, got) {
			rep.Violations = append(rep.Violations, Violation{Key: f.Key, Expected: f.Kind, Got: got})
		}
	}
	return rep
}

// accepts allows an integer literal in a float slot.
func accepts(want Kind, got string) bool {
	if string(want) == got {
		return true
	}
	return want == KindFloat && got == string(KindInt)
}

func kindOf(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "map"
	case yaml.SequenceNode:
		return "list"
	case yaml.AliasNode:
		return kindOf(n.Alias)
	}
	switch n.ShortTag() {
	case "!!int":
		return string(KindInt)
	case "!!float":
		return string(KindFloat)
	case "!!str":
		return string(KindString)
	case "!!bool":
		return string(KindBool)
	case "!!null":
		return "null"
	default:
		return strings.TrimPrefix(n.ShortTag(), "!!")
	}
}

// Set updates one top-level key in the settings file, casting value to the
// type the key currently holds, and rewrites the file with key order and
// comments preserved. It returns the value as stored.
func Set(path, key, value string) (any, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	root := rootMapping(doc)

	node := lookupKey(root, key)
	if node == nil {
		return nil, eris.Wrapf(ErrInvalidKey, "config: %q (valid keys: %s)", key, strings.Join(Keys(root), ", "))
	}

	stored, err := assign(node, value)
	if err != nil {
		return nil, eris.Wrapf(err, "config: %s", key)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, eris.Wrap(err, "config: encode")
	}
	if err := enc.Close(); err != nil {
		return nil, eris.Wrap(err, "config: encode")
	}

	mode := os.FileMode(0o644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
	}
	if err := os.WriteFile(path, buf.Bytes(), mode); err != nil {
		return nil, eris.Wrapf(err, "config: write %s", path)
	}
	return stored, nil
}

func assign(node *yaml.Node, value string) (any, error) {
	raw := strings.TrimSpace(value)
	kind := kindOf(node)

	switch kind {
	case string(KindInt):
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidValue, "%q is not an int", value)
		}
		setScalar(node, "!!int", strconv.Itoa(n), 0)
		return n, nil
	case string(KindFloat):
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidValue, "%q is not a float", value)
		}
		setScalar(node, "!!float", formatFloat(f), 0)
		return f, nil
	case string(KindBool):
		switch strings.ToLower(raw) {
		case "true", "1", "yes", "y":
			setScalar(node, "!!bool", "true", 0)
			return true, nil
		case "false", "0", "no", "n":
			setScalar(node, "!!bool", "false", 0)
			return false, nil
		}
		return nil, eris.Wrapf(ErrInvalidValue, "%q is not a bool", value)
	case string(KindString):
		setScalar(node, "!!str", value, yaml.DoubleQuotedStyle)
		return value, nil
	default:
		return nil, eris.Wrapf(ErrInvalidValue, "cannot set a %s value from the command line", kind)
	}
}

func setScalar(n *yaml.Node, tag, value string, style yaml.Style) {
	n.Kind = yaml.ScalarNode
	n.Tag = tag
	n.Value = value
	n.Style = style
}

// formatFloat keeps a decimal point so the value reads back as a float.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// Keys returns the top-level keys of root in file order.
func Keys(root *yaml.Node) []string {
	if root == nil {
		return nil
	}
	keys := make([]string, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keys = append(keys, root.Content[i].Value)
	}
	return keys
}

func readDocument(path string) (*yaml.Node, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read %s", path)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, eris.Wrapf(err, "config: parse %s", path)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	return &doc, nil
}

func rootMapping(doc *yaml.Node) *yaml.Node {
	if doc == nil || doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	if root := doc.Content[0]; root.Kind == yaml.MappingNode {
		return root
	}
	return nil
}

func lookupKey(root *yaml.Node, key string) *yaml.Node {
	if root == nil {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			return root.Content[i+1]
		}
	}
	return nil
}
