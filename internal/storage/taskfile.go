// Package storage provides the file-backed task record codec, the
// optimistic-concurrency task store, and the checksummed task index
// snapshot.
package storage

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/valter-silva-au/agent-task-flow/pkg/models"
	"gopkg.in/yaml.v3"
)

// frontmatterDelim separates the YAML frontmatter block from the markdown
// body.
const frontmatterDelim = "---"

// Record is a parsed task file: the raw frontmatter mapping plus the
// markdown body. Keeping the frontmatter as a yaml.Node preserves unknown
// keys and their order across read-modify-write cycles; the typed
// models.Task view is layered on top.
type Record struct {
	frontmatter *yaml.Node
	Body        string
}

// ParseRecord splits a task file into frontmatter and body. The file must
// open with a `---` line; the frontmatter runs to the next `---` line.
func ParseRecord(text string) (*Record, error) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterDelim {
		return nil, fmt.Errorf("task record missing frontmatter delimiter")
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelim {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, fmt.Errorf("task record frontmatter is unterminated")
	}

	raw := strings.Join(lines[1:end], "\n")
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parsing frontmatter: %w", err)
	}

	mapping := mappingOf(&doc)
	if mapping == nil {
		mapping = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}

	body := ""
	if end+1 < len(lines) {
		body = strings.Join(lines[end+1:], "\n")
		body = strings.TrimPrefix(body, "\n")
	}

	return &Record{frontmatter: mapping, Body: body}, nil
}

// NewRecord builds a record for a brand-new task.
func NewRecord(task *models.Task) (*Record, error) {
	rec := &Record{
		frontmatter: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"},
		Body:        task.Doc,
	}
	if err := rec.SetTask(task); err != nil {
		return nil, err
	}
	return rec, nil
}

// mappingOf unwraps a document node down to its mapping, or nil.
func mappingOf(doc *yaml.Node) *yaml.Node {
	if doc == nil {
		return nil
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	return doc
}

// Task decodes the frontmatter into the typed task view and attaches the
// body as Doc.
func (r *Record) Task() (*models.Task, error) {
	var task models.Task
	if err := r.frontmatter.Decode(&task); err != nil {
		return nil, fmt.Errorf("decoding task frontmatter: %w", err)
	}
	task.Doc = r.Body
	return &task, nil
}

// knownKeys are the frontmatter keys owned by the typed task view. A known
// key absent from the freshly encoded task was cleared by the mutation and
// is removed from the mapping; keys outside this list pass through
// untouched.
var knownKeys = []string{
	"id", "title", "description", "status", "priority", "owner",
	"tags", "depends_on", "verify", "comments", "events",
	"plan_approval", "verification", "commit",
	"doc_version", "doc_updated_at", "doc_updated_by",
}

// SetTask merges the typed task fields over the existing frontmatter,
// preserving any unknown keys. The body is not touched; callers merge the
// document separately.
func (r *Record) SetTask(task *models.Task) error {
	var proposed yaml.Node
	if err := proposed.Encode(task); err != nil {
		return fmt.Errorf("encoding task frontmatter: %w", err)
	}
	if proposed.Kind != yaml.MappingNode {
		return fmt.Errorf("encoded task is not a mapping")
	}

	for i := 0; i+1 < len(proposed.Content); i += 2 {
		key := proposed.Content[i].Value
		setMappingKey(r.frontmatter, key, proposed.Content[i+1])
	}

	for _, key := range knownKeys {
		if !hasMappingKey(&proposed, key) {
			deleteMappingKey(r.frontmatter, key)
		}
	}
	return nil
}

func setMappingKey(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

func hasMappingKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}

func deleteMappingKey(mapping *yaml.Node, key string) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
			return
		}
	}
}

// Render serializes the record back to task file text.
func (r *Record) Render() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r.frontmatter); err != nil {
		return "", fmt.Errorf("rendering frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("rendering frontmatter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(frontmatterDelim + "\n")
	sb.Write(buf.Bytes())
	sb.WriteString(frontmatterDelim + "\n")
	if r.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(r.Body)
		if !strings.HasSuffix(r.Body, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
