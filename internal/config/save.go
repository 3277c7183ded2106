package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveValue sets the dotted key (for example "boards.default_size") to
// value in the config file, creating intermediate mappings as needed.
// Comments and formatting elsewhere in the file are preserved.
func SaveValue(configPath, key, value string) error {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid key %q", key)
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: user-chosen config path
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// yaml.Node keeps comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config root is not a mapping")
	}

	if err := setPath(doc.Content[0], parts, scalarNode(value)); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// setPath walks mapping along parts, creating mappings for missing keys,
// and replaces the final value.
func setPath(mapping *yaml.Node, parts []string, value *yaml.Node) error {
	for i := 0; i < len(mapping.Content)-1; i += 2 {
		if mapping.Content[i].Value != parts[0] {
			continue
		}
		if len(parts) == 1 {
			// keep any comment attached to the old value
			value.LineComment = mapping.Content[i+1].LineComment
			mapping.Content[i+1] = value
			return nil
		}
		child := mapping.Content[i+1]
		if child.Kind != yaml.MappingNode {
			if child.Kind == yaml.ScalarNode && (child.Tag == "!!null" || child.Value == "") {
				child = &yaml.Node{Kind: yaml.MappingNode}
				mapping.Content[i+1] = child
			} else {
				return fmt.Errorf("%s is not a section", parts[0])
			}
		}
		return setPath(child, parts[1:], value)
	}

	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: parts[0]}
	if len(parts) == 1 {
		mapping.Content = append(mapping.Content, keyNode, value)
		return nil
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	mapping.Content = append(mapping.Content, keyNode, child)
	return setPath(child, parts[1:], value)
}

// scalarNode lets YAML infer the tag, so "400" stays an int and "true" a bool.
func scalarNode(value string) *yaml.Node {
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(value), &n); err == nil &&
		n.Kind == yaml.DocumentNode && len(n.Content) == 1 && n.Content[0].Kind == yaml.ScalarNode {
		out := n.Content[0]
		out.HeadComment, out.LineComment, out.FootComment = "", "", ""
		return out
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// writeAtomic writes to a temp file in the same directory, then renames it.
func writeAtomic(configPath string, data []byte) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".boardwalk.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
