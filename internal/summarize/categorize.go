package summarize

import "strings"

// Rule assigns Category when any keyword occurs in the summary, or in the
// file path too when MatchName is set.
type Rule struct {
	Category  string   `yaml:"category"`
	Keywords  []string `yaml:"keywords"`
	MatchName bool     `yaml:"match_name"`
}

// Categorizer applies the first matching rule.
type Categorizer struct {
	Rules   []Rule
	Default string
}

// DefaultRules is the built-in keyword table.
func DefaultRules() []Rule {
	return []Rule{
		{Category: "Guides", Keywords: []string{"setup", "install", "guide", "howto", "tutorial"}},
		{Category: "Models", Keywords: []string{"model", "training", "weight", "lora"}},
		{Category: "Scripts", Keywords: []string{"script", "code", "command", "bash", "python"}},
		{Category: "Workflows", Keywords: []string{"workflow", "process", "procedure", "optimization"}},
		{Category: "QuickRefs", Keywords: []string{"quick", "reference", "cheat", "faq", "tip"}, MatchName: true},
	}
}

// Categorize picks a category for a summarized file.
func (c Categorizer) Categorize(path, summary string) string {
	name := strings.ToLower(path)
	text := strings.ToLower(summary)
	for _, r := range c.Rules {
		for _, k := range r.Keywords {
			k = strings.ToLower(k)
			if strings.Contains(text, k) || (r.MatchName && strings.Contains(name, k)) {
				return r.Category
			}
		}
	}
	if c.Default != "" {
		return c.Default
	}
	return "Guides"
}
