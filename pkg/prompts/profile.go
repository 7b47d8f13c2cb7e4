package prompts

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed profile.yaml
var defaultProfileYAML []byte

// Profile holds the domain knowledge rendered into the SQL generation prompt.
type Profile struct {
	Dialect         string         `yaml:"dialect"`
	ColumnBudget    int            `yaml:"column_budget"`
	ImportantTables []string       `yaml:"important_tables"`
	FeatureTables   []FeatureTable `yaml:"feature_tables"`
	TableGuide      []TableTopic   `yaml:"table_guide"`
	JoinKeys        []string       `yaml:"join_keys"`
}

// FeatureTable is a wide, sparse creative-feature table that is always shown in full.
// FanOut marks tables with several rows per ad.
type FeatureTable struct {
	Name   string `yaml:"name"`
	Note   string `yaml:"note"`
	FanOut bool   `yaml:"fan_out"`
}

// TableTopic maps a kind of question to the table that answers it.
type TableTopic struct {
	Topic string `yaml:"topic"`
	Table string `yaml:"table"`
}

// DefaultProfile returns the embedded marketing profile.
func DefaultProfile() *Profile {
	p, err := ParseProfile(defaultProfileYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt profile is invalid: %v", err))
	}
	return p
}

// LoadProfile reads a profile from path, or returns the embedded default when path is empty.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompt profile: %w", err)
	}
	if len(p.ImportantTables) == 0 {
		return nil, fmt.Errorf("prompt profile lists no important_tables")
	}
	if p.ColumnBudget <= 0 {
		p.ColumnBudget = 30
	}
	if p.Dialect == "" {
		p.Dialect = "PostgreSQL"
	}
	return &p, nil
}

// IsImportant reports whether a table is on the allow-list.
func (p *Profile) IsImportant(table string) bool {
	for _, t := range p.ImportantTables {
		if t == table {
			return true
		}
	}
	return false
}

// FeatureTable returns the feature table entry for name, if any.
func (p *Profile) FeatureTable(name string) (FeatureTable, bool) {
	for _, f := range p.FeatureTables {
		if f.Name == name {
			return f, true
		}
	}
	return FeatureTable{}, false
}
