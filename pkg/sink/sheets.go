package sink

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"gorm.io/datatypes"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
	"github.com/courtside-labs/crm-sync/pkg/common/models"
)

// sheetHeader is the row written above the records; UpdateTime is carried
// as an explicit column since a sheet has no schema of its own.
var sheetHeader = []interface{}{
	"Store", "CustomerName", "ContactNumber", "Address", "Email",
	"DateOfBirth", "DateJoined", "AvailableCredit", "AvailablePoint",
	"Source", "SMSPDPA", "EmailPDPA", "BatchID", "UpdateTime",
}

// SheetsSink replaces the contents of one sheet of a Google spreadsheet.
type SheetsSink struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetRange    string
	loc           *time.Location
}

func NewSheetsSink(ctx context.Context, credentialsFile, spreadsheetID, sheetRange string, loc *time.Location) (*SheetsSink, error) {
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	jwt, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SheetsSink{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetRange:    sheetRange,
		loc:           loc,
	}, nil
}

func (s *SheetsSink) Name() string {
	return "sheets"
}

func (s *SheetsSink) Load(ctx context.Context, records []models.CanonicalCustomerRecord) (string, error) {
	batchID := NewBatchID(s.loc)
	stampBatch(records, batchID)

	current, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetRange).Context(ctx).Do()
	if err != nil {
		return "", SinkWriteError{Sink: s.Name(), Op: "read current values", Err: err}
	}

	if len(current.Values) > 0 {
		logger.Log.WithField("rows", len(current.Values)).Info("Clearing existing sheet rows")
		_, err = s.svc.Spreadsheets.Values.
			Clear(s.spreadsheetID, s.sheetRange, &sheets.ClearValuesRequest{}).
			Context(ctx).Do()
		if err != nil {
			return "", SinkWriteError{Sink: s.Name(), Op: "clear sheet", Err: err}
		}
	}

	values := make([][]interface{}, 0, len(records)+1)
	values = append(values, sheetHeader)
	for _, r := range records {
		values = append(values, sheetRow(r))
	}

	_, err = s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, s.sheetRange, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return "", SinkWriteError{Sink: s.Name(), Op: "write rows", Err: err}
	}

	logger.Log.WithFields(map[string]interface{}{
		"records":  len(records),
		"batch_id": batchID,
	}).Info("Loaded batch into sheet")
	return batchID, nil
}

// sheetRow canonicalizes every scalar to its sheet wire value in one place:
// dates as ISO strings, nullable bools as TRUE/FALSE/blank, numbers as
// numbers, timestamps at second precision.
func sheetRow(r models.CanonicalCustomerRecord) []interface{} {
	return []interface{}{
		r.Store,
		r.CustomerName,
		r.ContactNumber,
		r.Address,
		r.Email,
		dateCell(r.DateOfBirth),
		dateCell(r.DateJoined),
		r.AvailableCredit,
		r.AvailablePoint,
		r.Source,
		boolCell(r.SMSPDPA),
		boolCell(r.EmailPDPA),
		r.BatchID,
		r.UpdateTime.Format("2006-01-02 15:04:05"),
	}
}

func dateCell(d *datatypes.Date) interface{} {
	if d == nil {
		return ""
	}
	return time.Time(*d).Format("2006-01-02")
}

func boolCell(b *bool) interface{} {
	if b == nil {
		return ""
	}
	if *b {
		return "TRUE"
	}
	return "FALSE"
}
