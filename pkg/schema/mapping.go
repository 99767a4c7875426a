// Package schema holds the upstream-label to canonical-field mapping as
// data, loaded once at startup and validated against the full set of
// columns the export is expected to carry.
package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Mapping struct {
	Columns map[string]string `yaml:"columns" json:"columns"`
}

// requiredLabels is the header contract of the upstream export. A mapping
// that does not cover every one of these cannot produce complete records.
var requiredLabels = []string{
	"Store",
	"Customer",
	"Contact Number",
	"Address",
	"Email",
	"Date of Birth",
	"Date Joined",
	"Available Credit",
	"Available Point",
	"Source",
	"SMS PDPA",
	"Email PDPA",
}

func Load(path string) (Mapping, error) {
	if path == "" {
		return DefaultMapping(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultMapping(), err
	}

	var m Mapping
	if err := yaml.Unmarshal(content, &m); err != nil {
		return Mapping{}, err
	}
	if len(m.Columns) == 0 {
		return Mapping{}, fmt.Errorf("schema file %s defines no columns", path)
	}
	return m, nil
}

func DefaultMapping() Mapping {
	return Mapping{Columns: map[string]string{
		"Store":            "store",
		"Customer":         "customer_name",
		"Contact Number":   "contact_number",
		"Address":          "address",
		"Email":            "email",
		"Date of Birth":    "date_of_birth",
		"Date Joined":      "date_joined",
		"Available Credit": "available_credit",
		"Available Point":  "available_point",
		"Source":           "source",
		"SMS PDPA":         "sms_pdpa",
		"Email PDPA":       "email_pdpa",
	}}
}

// Validate checks the mapping covers every expected upstream column.
func (m Mapping) Validate() error {
	for _, label := range requiredLabels {
		if _, ok := m.Columns[label]; !ok {
			return fmt.Errorf("schema mapping missing upstream column %q", label)
		}
	}
	return nil
}

// Field returns the canonical field name for an upstream label.
func (m Mapping) Field(label string) (string, bool) {
	field, ok := m.Columns[label]
	return field, ok
}

// Labels returns the upstream labels the mapping covers.
func (m Mapping) Labels() []string {
	labels := make([]string, 0, len(m.Columns))
	for label := range m.Columns {
		labels = append(labels, label)
	}
	return labels
}
