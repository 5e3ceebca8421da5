package fs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/canopy/pkg/core"
)

// Serializer converts between a page file and its page record.
type Serializer interface {
	Parse(data []byte) (core.Page, error)
	Serialize(p core.Page) ([]byte, error)
}

// DefaultSerializers maps file extensions to serializers.
func DefaultSerializers() map[string]Serializer {
	return map[string]Serializer{
		".md":   MarkdownSerializer{},
		".json": JSONSerializer{},
		".yaml": YAMLSerializer{},
		".yml":  YAMLSerializer{},
	}
}

// --- JSON Serializer ---

type JSONSerializer struct{}

func (JSONSerializer) Parse(data []byte) (core.Page, error) {
	var p core.Page
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("invalid json: %w", err)
	}
	return p, nil
}

func (JSONSerializer) Serialize(p core.Page) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// --- YAML Serializer ---

type YAMLSerializer struct{}

func (YAMLSerializer) Parse(data []byte) (core.Page, error) {
	var p core.Page
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("invalid yaml: %w", err)
	}
	return p, nil
}

func (YAMLSerializer) Serialize(p core.Page) ([]byte, error) {
	return yaml.Marshal(p)
}

// --- Markdown Serializer ---

// MarkdownSerializer reads the page from YAML frontmatter. Without a title
// in the frontmatter, the first level-one heading of the body is used.
type MarkdownSerializer struct{}

func (MarkdownSerializer) Parse(data []byte) (core.Page, error) {
	var p core.Page
	if !bytes.HasPrefix(data, []byte("---\n")) && !bytes.HasPrefix(data, []byte("---\r\n")) {
		return p, errors.New("missing frontmatter")
	}

	rest := data[3:]
	parts := bytes.SplitN(rest, []byte("---"), 2)
	if len(parts) == 1 {
		return p, errors.New("frontmatter started but no closing delimiter found")
	}

	if err := yaml.Unmarshal(parts[0], &p); err != nil {
		return p, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	if p.Title == "" {
		p.Title = heading(string(parts[1]))
	}
	return p, nil
}

func (MarkdownSerializer) Serialize(p core.Page) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(p); err != nil {
		return nil, err
	}
	encoder.Close()
	buf.WriteString("---\n")
	if p.Title != "" {
		fmt.Fprintf(&buf, "\n# %s\n", p.Title)
	}
	return buf.Bytes(), nil
}

func heading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}
