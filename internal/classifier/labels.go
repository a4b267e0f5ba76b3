package classifier

import (
	"slices"
	"strings"

	"github.com/ycry/ycry-go/internal/errors"
)

// LabelSet is the ordered, versioned list of classes a model was trained on.
// Output index i of a model corresponds to Labels[i].
type LabelSet struct {
	Version string   `json:"version" yaml:"version" msgpack:"version"`
	Labels  []string `json:"labels" yaml:"labels" msgpack:"labels"`
}

// Len returns the number of classes.
func (ls LabelSet) Len() int {
	return len(ls.Labels)
}

// Index returns the position of label, or -1.
func (ls LabelSet) Index(label string) int {
	return slices.Index(ls.Labels, label)
}

// Validate checks that the set has a version and at least two unique,
// non-blank labels in sorted order. Training assigns class indices by sorted
// folder name, so any other order would silently permute predictions.
func (ls LabelSet) Validate() error {
	var problem string
	switch {
	case strings.TrimSpace(ls.Version) == "":
		problem = "label set has no version"
	case len(ls.Labels) < 2:
		problem = "label set needs at least two labels"
	case !slices.IsSorted(ls.Labels):
		problem = "labels must be sorted"
	}
	if problem == "" {
		for i, l := range ls.Labels {
			if strings.TrimSpace(l) == "" {
				problem = "labels must not be blank"
				break
			}
			if i > 0 && ls.Labels[i-1] == l {
				problem = "duplicate label " + l
				break
			}
		}
	}
	if problem == "" {
		return nil
	}
	return errors.Newf("invalid label set: %s", problem).
		Component("classifier").
		Category(errors.CategoryLabelLoad).
		Context("label_set_version", ls.Version).
		Context("label_count", len(ls.Labels)).
		Build()
}

// Equal reports whether both sets have the same version and the same labels
// in the same order.
func (ls LabelSet) Equal(other LabelSet) bool {
	return ls.Version == other.Version && slices.Equal(ls.Labels, other.Labels)
}

// String formats the set as version:[a b c].
func (ls LabelSet) String() string {
	return ls.Version + ":[" + strings.Join(ls.Labels, " ") + "]"
}
