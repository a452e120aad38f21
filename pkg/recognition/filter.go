package recognition

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// FilterConfig bounds what the recognizer output may contain.
type FilterConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
	MinTextRunes  int     `yaml:"min_text_runes"`
	MaxFragments  int     `yaml:"max_fragments"` // Highest-confidence fragments win
}

// DefaultFilterConfig keeps fragments of at least two characters at 40%
// confidence or better.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinConfidence: 0.4,
		MinTextRunes:  2,
		MaxFragments:  40,
	}
}

// Validate reports out-of-range values.
func (c FilterConfig) Validate() error {
	var errs []error
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("filter.min_confidence %.2f is out of range [0, 1]", c.MinConfidence))
	}
	if c.MinTextRunes < 1 {
		errs = append(errs, fmt.Errorf("filter.min_text_runes must be at least 1, got %d", c.MinTextRunes))
	}
	if c.MaxFragments < 1 {
		errs = append(errs, fmt.Errorf("filter.max_fragments must be at least 1, got %d", c.MaxFragments))
	}
	return errors.Join(errs...)
}

// Filter trims fragment text and drops fragments that are empty, too short,
// below the confidence floor, or carry an unusable box. The survivors keep
// their input order.
func Filter(frags []Fragment, cfg FilterConfig) []Fragment {
	out := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		f.Text = strings.TrimSpace(f.Text)
		if utf8.RuneCountInString(f.Text) < cfg.MinTextRunes {
			continue
		}
		if f.Confidence < cfg.MinConfidence {
			continue
		}
		if !f.Box.IsNormalized() || f.Box.Area() <= 0 {
			continue
		}
		out = append(out, f)
	}

	if cfg.MaxFragments > 0 && len(out) > cfg.MaxFragments {
		idx := make([]int, len(out))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return out[idx[a]].Confidence > out[idx[b]].Confidence
		})
		keep := idx[:cfg.MaxFragments]
		sort.Ints(keep)

		kept := make([]Fragment, 0, cfg.MaxFragments)
		for _, i := range keep {
			kept = append(kept, out[i])
		}
		out = kept
	}
	return out
}
