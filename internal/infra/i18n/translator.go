package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"math/rand"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Translator serves the persona text, canned replies and user-facing
// strings of one locale.
type Translator struct {
	lang         string
	translations map[string]string
	lists        map[string][]string
}

func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := filepath.Join("locales", fmt.Sprintf("%s.yaml", langCode))

	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = langCode
	return t, nil
}

// newTranslatorFromBytes accepts a YAML mapping whose values are either
// strings or lists of strings.
func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	t := &Translator{translations: map[string]string{}, lists: map[string][]string{}}
	for k, n := range raw {
		switch n.Kind {
		case yaml.ScalarNode:
			t.translations[k] = n.Value
		case yaml.SequenceNode:
			var items []string
			if err := n.Decode(&items); err != nil {
				return nil, fmt.Errorf("translation key %s: %w", k, err)
			}
			t.lists[k] = items
		default:
			return nil, fmt.Errorf("translation key %s: unsupported value", k)
		}
	}
	return t, nil
}

func (t *Translator) Lang() string { return t.lang }

// T returns the formatted string for key, or key itself when missing.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

func (t *Translator) List(key string) []string {
	return append([]string(nil), t.lists[key]...)
}

// Pick returns a random entry of the list under key, or "" if empty.
func (t *Translator) Pick(key string) string {
	l := t.lists[key]
	if len(l) == 0 {
		return ""
	}
	return l[rand.Intn(len(l))]
}

func (t *Translator) Persona() string {
	return t.T("persona")
}
