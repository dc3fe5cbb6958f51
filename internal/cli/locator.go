package cli

import (
	"fmt"
	"strings"

	"github.com/ArcanaFramework/frametree-flywheel/internal/dataset"
)

// Locator addresses a dataset as <store-nickname>//<dataset-id>[@<dataset-name>].
type Locator struct {
	Store string
	ID    string
	Name  string
}

// ParseLocator splits a dataset locator into its fields. The dataset id may itself
// contain slashes; the name is whatever follows the last '@'.
func ParseLocator(s string) (Locator, error) {
	nick, rest, ok := strings.Cut(s, "//")
	if !ok {
		return Locator{}, fmt.Errorf("invalid dataset locator %q: expected <store>//<dataset-id>[@<name>]", s)
	}
	if nick == "" {
		return Locator{}, fmt.Errorf("invalid dataset locator %q: missing store nickname", s)
	}
	loc := Locator{Store: nick, ID: rest}
	if i := strings.LastIndex(rest, dataset.DerivativeSep); i >= 0 {
		loc.ID, loc.Name = rest[:i], rest[i+1:]
		if loc.Name == "" {
			return Locator{}, fmt.Errorf("invalid dataset locator %q: empty dataset name", s)
		}
	}
	if loc.ID == "" {
		return Locator{}, fmt.Errorf("invalid dataset locator %q: missing dataset id", s)
	}
	return loc, nil
}

// String formats the locator back to its textual form.
func (l Locator) String() string {
	s := l.Store + "//" + l.ID
	if l.Name != "" {
		s += dataset.DerivativeSep + l.Name
	}
	return s
}
