// Package transformer turns a raw export file into canonical customer
// records: schema mapping, duplicate-name disambiguation, and date, numeric
// and consent-flag normalization.
package transformer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
	"github.com/courtside-labs/crm-sync/pkg/common/models"
	"github.com/courtside-labs/crm-sync/pkg/schema"
)

const upstreamDateLayout = "02/01/2006"

type Transformer struct {
	mapping schema.Mapping
	loc     *time.Location
}

func New(mapping schema.Mapping, loc *time.Location) *Transformer {
	if loc == nil {
		loc = time.UTC
	}
	return &Transformer{mapping: mapping, loc: loc}
}

// Transform parses one export file into canonical records. Every record of
// a call shares the same update_time, taken once at transform start.
func (t *Transformer) Transform(path string) ([]models.CanonicalCustomerRecord, error) {
	logger.Log.WithField("file", path).Info("Transforming export file")
	updateTime := time.Now().In(t.loc)

	f, err := os.Open(path)
	if err != nil {
		return nil, MalformedInputError{File: path, Reason: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	// Short rows degrade to empty fields per-record instead of failing
	// the whole file.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, MalformedInputError{File: path, Reason: fmt.Errorf("reading header row: %w", err)}
	}

	index := make(map[string]int, len(header))
	for i, label := range header {
		index[strings.TrimSpace(label)] = i
	}
	// column maps canonical field names to header positions via the
	// label→field table, so record building below never mentions an
	// upstream label.
	column := make(map[string]int, len(index))
	for _, label := range t.mapping.Labels() {
		col, ok := index[label]
		if !ok {
			return nil, MalformedInputError{File: path, Reason: fmt.Errorf("missing required column %q", label)}
		}
		if field, ok := t.mapping.Field(label); ok {
			column[field] = col
		}
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, MalformedInputError{File: path, Reason: fmt.Errorf("reading rows: %w", err)}
		}
		rows = append(rows, row)
	}

	names := t.disambiguateNames(rows, column["customer_name"])

	records := make([]models.CanonicalCustomerRecord, 0, len(rows))
	for i, row := range rows {
		raw := func(field string) string {
			col := column[field]
			if col >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[col])
		}

		records = append(records, models.CanonicalCustomerRecord{
			Store:           raw("store"),
			CustomerName:    names[i],
			ContactNumber:   raw("contact_number"),
			Address:         raw("address"),
			Email:           raw("email"),
			DateOfBirth:     parseDate(raw("date_of_birth")),
			DateJoined:      parseDate(raw("date_joined")),
			AvailableCredit: cleanNumeric(raw("available_credit")),
			AvailablePoint:  cleanNumeric(raw("available_point")),
			Source:          raw("source"),
			SMSPDPA:         parseConsent(raw("sms_pdpa")),
			EmailPDPA:       parseConsent(raw("email_pdpa")),
			UpdateTime:      updateTime,
		})
	}

	logger.Log.WithFields(map[string]interface{}{
		"file":    path,
		"records": len(records),
	}).Info("Transform complete")
	return records, nil
}

// disambiguateNames appends a 1-based occurrence suffix, in file order, to
// every occurrence of a raw name that appears more than once. Singletons
// keep their name unchanged.
func (t *Transformer) disambiguateNames(rows [][]string, col int) []string {
	rawName := func(row []string) string {
		if col >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[col])
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[rawName(row)]++
	}

	seen := make(map[string]int, len(counts))
	names := make([]string, len(rows))
	for i, row := range rows {
		name := rawName(row)
		if counts[name] > 1 {
			seen[name]++
			names[i] = fmt.Sprintf("%s_%d", name, seen[name])
		} else {
			names[i] = name
		}
	}
	return names
}

func parseDate(value string) *datatypes.Date {
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(upstreamDateLayout, value)
	if err != nil {
		logger.Log.WithField("value", value).Debug("Unparsable date, keeping null")
		return nil
	}
	d := datatypes.Date(parsed)
	return &d
}

// cleanNumeric strips thousands separators and parses a non-negative
// decimal. Empty, unparsable and negative values become zero; negative
// values are logged since credits and points can never be owed.
func cleanNumeric(value string) float64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
	if err != nil {
		logger.Log.WithField("value", value).Debug("Unparsable numeric, keeping zero")
		return 0
	}
	if parsed < 0 {
		logger.Log.WithField("value", value).Warn("Negative balance in export, keeping zero")
		return 0
	}
	return parsed
}

func parseConsent(value string) *bool {
	switch value {
	case "Yes":
		v := true
		return &v
	case "No":
		v := false
		return &v
	}
	return nil
}
