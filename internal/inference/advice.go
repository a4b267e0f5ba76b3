package inference

import "fmt"

// DefaultAdvice is returned for labels without specific guidance.
const DefaultAdvice = "Check baby"

var adviceByLabel = map[string]string{
	"Hunger":     "Feed baby",
	"Pain":       "Check injury",
	"Burping":    "Burp baby",
	"Discomfort": "Check diaper",
	"Tired":      "Sleep time",
}

// Advice returns the caregiver hint for label. It is defined for every
// string; unknown labels get DefaultAdvice.
func Advice(label string) string {
	if a, ok := adviceByLabel[label]; ok {
		return a
	}
	return DefaultAdvice
}

// FormatConfidence renders a probability as a percentage with one decimal,
// e.g. 0.8734 -> "87.3".
func FormatConfidence(confidence float64) string {
	return fmt.Sprintf("%.1f", confidence*100)
}
