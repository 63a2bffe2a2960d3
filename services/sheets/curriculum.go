package sheetsvc

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/jazzedge/academy/core/curriculum"
)

// Sheet names of a curriculum workbook. The first row of each sheet is a header.
const (
	UnitsSheet = "Units"
	StepsSheet = "Steps"
)

var (
	// column order of each sheet
	UnitsHeader = []string{"id", "focus_title", "focus_order", "tempo", "resource_pdf", "resource_ireal", "resource_mp3"}
	StepsHeader = []string{"step_id", "curriculum_id", "key_sig", "key_sig_name", "vimeo_id"}
)

// RowError reports an invalid row of a sheet.
type RowError struct {
	Sheet string
	Row   int // 1-based, as displayed by spreadsheet apps
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Sheet, e.Row, e.Err)
}

// Workbook is a parsed curriculum workbook.
type Workbook struct {
	Units []curriculum.Unit
	Steps []curriculum.Step
}

// ParseCurriculum reads the units and steps of a curriculum workbook (xlsx).
func ParseCurriculum(r io.Reader) (Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Workbook{}, errors.Wrap(err, "opening workbook")
	}
	defer func() { _ = f.Close() }()

	var wb Workbook
	rows, err := f.GetRows(UnitsSheet)
	if err != nil {
		return Workbook{}, errors.Wrapf(err, "reading %s sheet", UnitsSheet)
	}
	unitIDs := make(map[int]bool)
	for i, row := range rows {
		if i == 0 || blank(row) {
			continue
		}
		u, err := parseUnit(row)
		if err != nil {
			return Workbook{}, &RowError{Sheet: UnitsSheet, Row: i + 1, Err: err}
		}
		if unitIDs[u.ID] {
			return Workbook{}, &RowError{Sheet: UnitsSheet, Row: i + 1, Err: errors.Errorf("duplicate unit %d", u.ID)}
		}
		unitIDs[u.ID] = true
		wb.Units = append(wb.Units, u)
	}

	rows, err = f.GetRows(StepsSheet)
	if err != nil {
		return Workbook{}, errors.Wrapf(err, "reading %s sheet", StepsSheet)
	}
	stepIDs := make(map[int]bool)
	for i, row := range rows {
		if i == 0 || blank(row) {
			continue
		}
		s, err := parseStep(row)
		if err != nil {
			return Workbook{}, &RowError{Sheet: StepsSheet, Row: i + 1, Err: err}
		}
		if !unitIDs[s.CurriculumID] {
			return Workbook{}, &RowError{Sheet: StepsSheet, Row: i + 1, Err: errors.Errorf("unknown unit %d", s.CurriculumID)}
		}
		if stepIDs[s.ID] {
			return Workbook{}, &RowError{Sheet: StepsSheet, Row: i + 1, Err: errors.Errorf("duplicate step %d", s.ID)}
		}
		stepIDs[s.ID] = true
		wb.Steps = append(wb.Steps, s)
	}
	return wb, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// cell returns the trimmed i-th cell; GetRows drops trailing empty cells.
func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func intCell(row []string, i int, name string, required bool) (int, error) {
	v := cell(row, i)
	if v == "" {
		if required {
			return 0, errors.Errorf("%s is required", name)
		}
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Errorf("%s must be an integer, got %q", name, v)
	}
	return n, nil
}

func parseUnit(row []string) (curriculum.Unit, error) {
	id, err := intCell(row, 0, "id", true)
	if err != nil {
		return curriculum.Unit{}, err
	}
	if id < 1 {
		return curriculum.Unit{}, errors.Errorf("id must be positive, got %d", id)
	}
	title := cell(row, 1)
	if title == "" {
		return curriculum.Unit{}, errors.New("focus_title is required")
	}
	order, err := intCell(row, 2, "focus_order", false)
	if err != nil {
		return curriculum.Unit{}, err
	}
	if order == 0 {
		order = id
	}
	return curriculum.Unit{
		ID:            id,
		FocusTitle:    title,
		FocusOrder:    order,
		Tempo:         cell(row, 3),
		ResourcePDF:   cell(row, 4),
		ResourceIReal: cell(row, 5),
		ResourceMP3:   cell(row, 6),
	}, nil
}

func parseStep(row []string) (curriculum.Step, error) {
	id, err := intCell(row, 0, "step_id", true)
	if err != nil {
		return curriculum.Step{}, err
	}
	unitID, err := intCell(row, 1, "curriculum_id", true)
	if err != nil {
		return curriculum.Step{}, err
	}
	keySig, err := intCell(row, 2, "key_sig", true)
	if err != nil {
		return curriculum.Step{}, err
	}
	if keySig < 1 || keySig > curriculum.NumKeys {
		return curriculum.Step{}, errors.Errorf("key_sig must be between 1 and %d, got %d", curriculum.NumKeys, keySig)
	}
	name := cell(row, 3)
	if name == "" {
		name = curriculum.KeySigNames[keySig-1]
	}
	return curriculum.Step{
		ID:           id,
		CurriculumID: unitID,
		KeySig:       keySig,
		KeySigName:   name,
		VimeoID:      cell(row, 4),
	}, nil
}

// WriteCurriculum writes units and steps as a workbook ParseCurriculum can read back.
func WriteCurriculum(w io.Writer, wb Workbook) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := writeSheet(f, UnitsSheet, UnitsHeader, len(wb.Units), func(i int) []interface{} {
		u := wb.Units[i]
		return []interface{}{u.ID, u.FocusTitle, u.FocusOrder, u.Tempo, u.ResourcePDF, u.ResourceIReal, u.ResourceMP3}
	}); err != nil {
		return err
	}
	if err := writeSheet(f, StepsSheet, StepsHeader, len(wb.Steps), func(i int) []interface{} {
		s := wb.Steps[i]
		return []interface{}{s.ID, s.CurriculumID, s.KeySig, s.KeySigName, s.VimeoID}
	}); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return errors.Wrap(err, "writing workbook")
}

func writeSheet(f *excelize.File, sheet string, header []string, n int, row func(i int) []interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return errors.Wrapf(err, "creating %s sheet", sheet)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrapf(err, "writing %s header", sheet)
	}
	for i := 0; i < n; i++ {
		values := row(i)
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "computing cell name")
		}
		if err = f.SetSheetRow(sheet, cellName, &values); err != nil {
			return errors.Wrapf(err, "writing %s row %d", sheet, i+2)
		}
	}
	return nil
}
