// Package locale serves the user-facing message catalogue.
package locale

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/m3rciful/streambot/core/logger"
)

//go:embed en.yaml
var defaultCatalogue []byte

// Locale maps message keys to texts with {placeholder} slots.
type Locale struct {
	messages map[string]string
}

// Default returns the built-in English catalogue.
func Default() *Locale {
	l, err := parse(defaultCatalogue)
	if err != nil {
		panic(fmt.Sprintf("locale: built-in catalogue: %v", err))
	}
	return l
}

// Load reads a YAML catalogue from path and overlays it on the built-in one,
// so partial translations fall back to English.
func Load(path string) (*Locale, error) {
	base := Default()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("locale: read %s: %w", path, err)
	}
	l, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("locale: parse %s: %w", path, err)
	}
	for k, v := range l.messages {
		base.messages[k] = v
	}
	return base, nil
}

func parse(raw []byte) (*Locale, error) {
	// Values may be a string or a list of lines.
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	messages := make(map[string]string, len(doc))
	for key, node := range doc {
		switch node.Kind {
		case yaml.ScalarNode:
			messages[key] = node.Value
		case yaml.SequenceNode:
			var lines []string
			if err := node.Decode(&lines); err != nil {
				return nil, fmt.Errorf("key %s: %w", key, err)
			}
			messages[key] = strings.Join(lines, "\n")
		default:
			return nil, fmt.Errorf("key %s: unsupported value", key)
		}
	}
	return &Locale{messages: messages}, nil
}

// GetMessage returns the text for key, or the key itself when unknown.
func (l *Locale) GetMessage(key string) string {
	if msg, ok := l.messages[key]; ok {
		return msg
	}
	logger.Warn(context.Background(), "locale", "message.missing", slog.String("key", key))
	return key
}

// Format returns the text for key with {name} slots replaced. kv holds
// name/value pairs.
func (l *Locale) Format(key string, kv ...string) string {
	return Replace(l.GetMessage(key), kv...)
}

// Replace substitutes {name} slots in text. Every occurrence is replaced.
func Replace(text string, kv ...string) string {
	if len(kv) < 2 {
		return text
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
