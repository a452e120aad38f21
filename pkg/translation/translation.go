// Package translation defines the translation capability used to turn
// recognized text into overlay labels, with a bounded cache in front of it.
package translation

import (
	"context"
	"strings"
)

// Translator translates short text fragments. source may be empty to let
// the provider detect the language.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Func adapts a function to Translator.
type Func func(ctx context.Context, text, source, target string) (string, error)

// Translate implements Translator.
func (f Func) Translate(ctx context.Context, text, source, target string) (string, error) {
	return f(ctx, text, source, target)
}

// SameLanguage reports whether translating from source to target is a
// no-op. Only the primary subtag is compared, so "es-MX" matches "es".
func SameLanguage(source, target string) bool {
	if source == "" || target == "" {
		return false
	}
	return primary(source) == primary(target)
}

func primary(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return tag
}
