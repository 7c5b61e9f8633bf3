package intake

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// ErrUnreadableWorkbook is returned when the workbook cannot be opened or its
// format is not supported.
var ErrUnreadableWorkbook = errors.New("unreadable workbook")

var workbookExts = map[string]bool{".xlsx": true, ".xlsm": true, ".xltx": true, ".xltm": true, ".csv": true}

// ReadRows returns the cell text of every row of the named sheet, or of the
// active sheet when sheet is empty or absent.
func ReadRows(path, sheet string) ([][]string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".csv":
		return readCSV(path)
	case workbookExts[ext]:
		return readXLSX(path, sheet)
	default:
		return nil, fmt.Errorf("%w: %s: unsupported format %q", ErrUnreadableWorkbook, path, ext)
	}
}

func readXLSX(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadableWorkbook, path, err)
	}
	defer f.Close()

	name := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet != "" {
		if idx, err := f.GetSheetIndex(sheet); err == nil && idx >= 0 {
			name = sheet
		} else {
			log.Warn().Str("sheet", sheet).Str("using", name).Msg("Sheet not found, falling back to active sheet")
		}
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadableWorkbook, path, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadableWorkbook, path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadableWorkbook, path, err)
	}
	return rows, nil
}

// Workbooks lists the intake workbooks in dir in name order.
func Workbooks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
			continue
		}
		if workbookExts[strings.ToLower(filepath.Ext(name))] {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}
