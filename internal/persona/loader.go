// Package persona reads persona definitions from YAML and markdown files and
// ships a built-in set of persona templates.
package persona

import (
	"bufio"
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/simonyos/roundtable/internal/llm"
	"github.com/simonyos/roundtable/internal/orchestrator"
)

//go:embed defaults/*.md
var embeddedDefaults embed.FS

var ErrInvalidPersona = errors.New("invalid persona definition")

// fileEntry is a persona as written in a YAML file. Omitted numbers take defaults.
type fileEntry struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Avatar       string   `yaml:"avatar"`
	SystemPrompt string   `yaml:"system_prompt"`
	Position     string   `yaml:"position"`
	Temperature  *float64 `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	Backend      string   `yaml:"backend"`
	Model        string   `yaml:"model"`
}

func (f fileEntry) persona() orchestrator.Persona {
	p := orchestrator.Persona{
		ID:           f.ID,
		Name:         f.Name,
		Avatar:       f.Avatar,
		SystemPrompt: strings.TrimSpace(f.SystemPrompt),
		Position:     f.Position,
		Temperature:  llm.DefaultTemperature,
		MaxTokens:    f.MaxTokens,
		Backend:      f.Backend,
		Model:        f.Model,
	}
	if f.Temperature != nil {
		p.Temperature = *f.Temperature
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = llm.DefaultMaxTokens
	}
	return p
}

// Validate checks the fields every persona needs.
func Validate(p orchestrator.Persona) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidPersona)
	case p.Backend == "" || p.Model == "":
		return fmt.Errorf("%w: %q needs a backend and a model", ErrInvalidPersona, p.Name)
	case strings.TrimSpace(p.SystemPrompt) == "":
		return fmt.Errorf("%w: %q has no system prompt", ErrInvalidPersona, p.Name)
	case p.Temperature < 0 || p.Temperature > 2:
		return fmt.Errorf("%w: %q temperature %.2f is outside 0.0-2.0", ErrInvalidPersona, p.Name, p.Temperature)
	}
	return nil
}

// ParseYAML decodes one or more personas. Each YAML document may hold a single
// persona, a list of personas, or a mapping with a "personas" list.
func ParseYAML(data []byte) ([]orchestrator.Persona, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var personas []orchestrator.Persona
	for {
		var doc yaml.Node
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse persona YAML: %w", err)
		}
		if len(doc.Content) == 0 {
			continue
		}

		entries, err := decodeEntries(doc.Content[0])
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			p := e.persona()
			if err := Validate(p); err != nil {
				return nil, err
			}
			personas = append(personas, p)
		}
	}

	if len(personas) == 0 {
		return nil, fmt.Errorf("%w: no personas found", ErrInvalidPersona)
	}
	return personas, nil
}

func decodeEntries(node *yaml.Node) ([]fileEntry, error) {
	var entries []fileEntry
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&entries); err != nil {
			return nil, fmt.Errorf("failed to parse persona list: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			Personas []fileEntry `yaml:"personas"`
		}
		if err := node.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse persona file: %w", err)
		}
		if len(wrapped.Personas) > 0 {
			return wrapped.Personas, nil
		}
		var single fileEntry
		if err := node.Decode(&single); err != nil {
			return nil, fmt.Errorf("failed to parse persona: %w", err)
		}
		entries = append(entries, single)
	default:
		return nil, fmt.Errorf("%w: expected a mapping or a list", ErrInvalidPersona)
	}
	return entries, nil
}

var (
	titleRegex   = regexp.MustCompile(`^#\s+(.+?)(?:\s+\(([a-z0-9][a-z0-9_-]*)\))?\s*$`)
	fieldRegex   = regexp.MustCompile(`^\*\*([A-Za-z ]+):\*\*\s*(.*)$`)
	sectionRegex = regexp.MustCompile(`^##\s+(.+)`)
)

// ParseMarkdown decodes a persona written as
//
//	# Name (id)
//	**Backend:** anthropic
//	**Model:** claude-3-5-sonnet-20241022
//	## System Prompt
//	...
//
// Avatar, Position, Temperature and Max Tokens fields are optional.
func ParseMarkdown(content string) (orchestrator.Persona, error) {
	var entry fileEntry
	var promptLines []string
	inSystemPrompt := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()

		if matches := sectionRegex.FindStringSubmatch(line); matches != nil {
			inSystemPrompt = strings.EqualFold(strings.TrimSpace(matches[1]), "system prompt")
			continue
		}

		if inSystemPrompt {
			promptLines = append(promptLines, line)
			continue
		}

		if matches := titleRegex.FindStringSubmatch(line); matches != nil && entry.Name == "" {
			entry.Name = strings.TrimSpace(matches[1])
			entry.ID = matches[2]
			continue
		}

		matches := fieldRegex.FindStringSubmatch(line)
		if matches == nil {
			continue
		}
		value := strings.TrimSpace(matches[2])
		switch strings.ToLower(strings.TrimSpace(matches[1])) {
		case "avatar":
			entry.Avatar = value
		case "backend", "provider":
			entry.Backend = value
		case "model":
			entry.Model = value
		case "position":
			entry.Position = value
		case "temperature":
			t, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return orchestrator.Persona{}, fmt.Errorf("%w: temperature %q", ErrInvalidPersona, value)
			}
			entry.Temperature = &t
		case "max tokens":
			n, err := strconv.Atoi(value)
			if err != nil {
				return orchestrator.Persona{}, fmt.Errorf("%w: max tokens %q", ErrInvalidPersona, value)
			}
			entry.MaxTokens = n
		}
	}
	if err := scanner.Err(); err != nil {
		return orchestrator.Persona{}, fmt.Errorf("failed to read persona markdown: %w", err)
	}

	entry.SystemPrompt = strings.Join(promptLines, "\n")
	p := entry.persona()
	if err := Validate(p); err != nil {
		return orchestrator.Persona{}, err
	}
	return p, nil
}

// LoadFile reads the personas in a .yaml, .yml or .md file.
func LoadFile(path string) ([]orchestrator.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		personas, err := ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return personas, nil
	case ".md", ".markdown":
		p, err := ParseMarkdown(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return []orchestrator.Persona{p}, nil
	default:
		return nil, fmt.Errorf("%s: unsupported persona file type", path)
	}
}

// LoadDir reads every persona file in dir. Files that fail to parse are returned
// as a joined error alongside the personas that loaded.
func LoadDir(dir string) ([]orchestrator.Persona, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var personas []orchestrator.Persona
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !isPersonaFile(entry.Name()) {
			continue
		}
		loaded, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		personas = append(personas, loaded...)
	}
	return personas, errors.Join(errs...)
}

func isPersonaFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".md", ".markdown":
		return true
	}
	return false
}

// Defaults returns the built-in persona templates sorted by name.
func Defaults() ([]orchestrator.Persona, error) {
	entries, err := embeddedDefaults.ReadDir("defaults")
	if err != nil {
		return nil, err
	}

	personas := make([]orchestrator.Persona, 0, len(entries))
	for _, entry := range entries {
		content, err := embeddedDefaults.ReadFile("defaults/" + entry.Name())
		if err != nil {
			return nil, err
		}
		p, err := ParseMarkdown(string(content))
		if err != nil {
			return nil, fmt.Errorf("built-in persona %s: %w", entry.Name(), err)
		}
		personas = append(personas, p)
	}

	sort.Slice(personas, func(i, j int) bool { return personas[i].Name < personas[j].Name })
	return personas, nil
}

// LoadAll returns the built-in templates overridden by persona files found in dirs,
// matched by id. Missing directories are skipped. Later directories win.
func LoadAll(dirs ...string) ([]orchestrator.Persona, error) {
	personas, err := Defaults()
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in personas: %w", err)
	}

	index := make(map[string]int, len(personas))
	for i, p := range personas {
		index[p.ID] = i
	}

	var errs []error
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		loaded, err := LoadDir(dir)
		if err != nil {
			errs = append(errs, err)
		}
		for _, p := range loaded {
			if i, ok := index[p.ID]; ok && p.ID != "" {
				personas[i] = p
				continue
			}
			if p.ID != "" {
				index[p.ID] = len(personas)
			}
			personas = append(personas, p)
		}
	}
	return personas, errors.Join(errs...)
}
