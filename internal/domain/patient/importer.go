package patient

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ehr/tracker/internal/platform/apperr"
	"github.com/ehr/tracker/internal/platform/metrics"
)

// ImportColumns is the header of a bulk import document. Columns may appear
// in any order; unknown columns are ignored.
var ImportColumns = []string{"first_name", "last_name", "national_id", "date_of_birth", "phone", "email", "address"}

var requiredImportColumns = []string{"first_name", "last_name", "national_id"}

// ImportRow is one parsed data row. Line is the row's line in the document.
type ImportRow struct {
	Line    int
	Patient PatientCreate
}

// ImportResult lists the patients an import created, in creation order.
type ImportResult struct {
	Created []*Patient
	Skipped int
}

// ParseCSV reads an import document. Empty cells are treated as absent and
// date_of_birth must be YYYY-MM-DD; bad values surface from Validate. Short
// rows leave trailing columns absent; rows wider than the header are rejected.
func ParseCSV(r io.Reader) ([]ImportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, csvError(err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	for _, col := range requiredImportColumns {
		if _, ok := index[col]; !ok {
			return nil, apperr.Invalid("file", "missing column "+col)
		}
	}

	var rows []ImportRow
	extra := fieldErrors{}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		line, _ := cr.FieldPos(0)
		if blankRecord(record) {
			continue
		}
		if len(record) > len(header) {
			extra.add(fmt.Sprintf("line %d: columns", line),
				fmt.Sprintf("has %d fields, header has %d", len(record), len(header)))
			continue
		}

		cell := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		in := PatientCreate{
			FirstName:  cell("first_name"),
			LastName:   cell("last_name"),
			NationalID: cell("national_id"),
			Phone:      optional(cell("phone")),
			Email:      optional(cell("email")),
			Address:    optional(cell("address")),
		}
		if raw := cell("date_of_birth"); raw != "" {
			d, err := ParseDate(raw)
			if err != nil {
				d = Date{bad: true}
			}
			in.DateOfBirth = &d
		}
		rows = append(rows, ImportRow{Line: line, Patient: in})
	}
	if err := extra.err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// ImportPatients validates every row before writing any. One bad row rejects
// the whole document. Rows whose national_id is already on file, including
// ones created earlier in the same document, are skipped. All writes share a
// single transaction.
func (s *Service) ImportPatients(ctx context.Context, rows []ImportRow) (*ImportResult, error) {
	problems := fieldErrors{}
	for _, row := range rows {
		err := row.Patient.Validate()
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			for field, problem := range appErr.Fields {
				problems.add(fmt.Sprintf("line %d: %s", row.Line, field), problem)
			}
		}
	}
	if err := problems.err(); err != nil {
		return nil, err
	}

	res := &ImportResult{Created: []*Patient{}}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		for i := range rows {
			p, err := s.createPatient(ctx, &rows[i].Patient)
			if errors.Is(err, apperr.ErrDuplicateKey) {
				res.Skipped++
				continue
			}
			if err != nil {
				return err
			}
			res.Created = append(res.Created, p)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Store("import patients", err)
	}

	for range res.Created {
		metrics.RecordCreated("patient")
	}
	metrics.RecordImport(len(res.Created), res.Skipped)
	s.logger.Info().
		Int("rows", len(rows)).
		Int("created", len(res.Created)).
		Int("skipped", res.Skipped).
		Msg("patient import finished")
	return res, nil
}

// csvError reports syntax problems as a validation failure and passes read
// errors (such as an exceeded body limit) through.
func csvError(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return apperr.Invalid("file", fmt.Sprintf("malformed csv: %v", parseErr))
	}
	return fmt.Errorf("read csv: %w", err)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
