package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ResearchQuery is one entry of the research query battery. Template
// supports the {company} and {goals} placeholders; Label is the
// human-readable progress line shown before the search runs, and
// Warning the line recorded when that search fails.
type ResearchQuery struct {
	Template string `yaml:"template"`
	Label    string `yaml:"label"`
	Warning  string `yaml:"warning"`
}

// QueryBattery is the ordered set of research queries for one pass.
type QueryBattery struct {
	Queries []ResearchQuery `yaml:"queries"`
}

var (
	queryBattery     *QueryBattery
	queryBatteryOnce sync.Once
)

// defaultQueryBattery covers the four research aspects: overview,
// products/revenue, competitors, and recent news with the user's goals.
func defaultQueryBattery() *QueryBattery {
	return &QueryBattery{
		Queries: []ResearchQuery{
			{
				Template: "{company} company overview and business model",
				Label:    "📊 Researching company overview and business model...",
				Warning:  "⚠️ Had trouble finding data for: 📊 Researching company overview and business model",
			},
			{
				Template: "{company} key products services and revenue streams",
				Label:    "🛍️ Analyzing products, services, and revenue streams...",
				Warning:  "⚠️ Had trouble finding data for: 🛍️ Analyzing products, services, and revenue streams",
			},
			{
				Template: "{company} major competitors and market share",
				Label:    "🏆 Investigating competitors and market position...",
				Warning:  "⚠️ Had trouble finding data for: 🏆 Investigating competitors and market position",
			},
			{
				Template: "{company} recent strategic partnerships and news {goals}",
				Label:    "📰 Gathering recent news and strategic partnerships...",
				Warning:  "⚠️ Had trouble finding data for: 📰 Gathering recent news and strategic partnerships",
			},
		},
	}
}

// LoadQueryBattery returns the research query battery, reading
// QUERY_BATTERY_PATH once if set and falling back to the built-in
// battery otherwise. The result is cached for the process lifetime.
func LoadQueryBattery() *QueryBattery {
	queryBatteryOnce.Do(func() {
		queryBattery = loadQueryBattery()
	})
	return queryBattery
}

func loadQueryBattery() *QueryBattery {
	path := os.Getenv("QUERY_BATTERY_PATH")
	if path == "" {
		return defaultQueryBattery()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultQueryBattery()
	}
	qb, err := ParseQueryBattery(data)
	if err != nil || len(qb.Queries) == 0 {
		return defaultQueryBattery()
	}
	return qb
}

// ParseQueryBattery parses a YAML battery definition, validating that
// every entry carries a template.
func ParseQueryBattery(data []byte) (*QueryBattery, error) {
	var qb QueryBattery
	if err := yaml.Unmarshal(data, &qb); err != nil {
		return nil, fmt.Errorf("parse query battery: %w", err)
	}
	for i, q := range qb.Queries {
		if q.Template == "" {
			return nil, fmt.Errorf("query %d: template is required", i)
		}
	}
	return &qb, nil
}
