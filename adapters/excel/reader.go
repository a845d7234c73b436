package excel

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"permtest/internal"
	"permtest/internal/errors"
	"permtest/ports"

	"github.com/xuri/excelize/v2"
)

// missingMarkers are cell values read as missing observations
var missingMarkers = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"-":    true,
}

// DataReader reads sample columns from Excel and CSV files
type DataReader struct {
	logger *internal.Logger
}

// NewDataReader creates a reader that handles both .xlsx and .csv files
func NewDataReader(logger *internal.Logger) *DataReader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &DataReader{logger: logger}
}

var _ ports.SampleReader = (*DataReader)(nil)

// ReadSamples loads src.Column1 and src.Column2 as two samples. Trailing
// missing cells are dropped so columns of different lengths read naturally.
func (r *DataReader) ReadSamples(src ports.SampleSource) ([]float64, []float64, error) {
	if src.Column1 == "" || src.Column2 == "" {
		return nil, nil, errors.InvalidArgument("two column names are required")
	}
	if _, err := os.Stat(src.Path); err != nil {
		return nil, nil, errors.Wrapf(errors.InvalidInput(err.Error()), "data file %s not readable", src.Path)
	}

	start := time.Now()
	rows, err := r.readRows(src)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) < 2 {
		return nil, nil, errors.InvalidInput(fmt.Sprintf("%s must have a header row and at least one data row", src.Path))
	}

	header := rows[0]
	idx1, err := columnIndex(header, src.Column1)
	if err != nil {
		return nil, nil, err
	}
	idx2, err := columnIndex(header, src.Column2)
	if err != nil {
		return nil, nil, err
	}

	sample1, err := parseColumn(rows[1:], idx1, src.Column1)
	if err != nil {
		return nil, nil, err
	}
	sample2, err := parseColumn(rows[1:], idx2, src.Column2)
	if err != nil {
		return nil, nil, err
	}

	r.logger.Debug("[DataReader] %s read in %.2fms (%s: %d values, %s: %d values)",
		src.Path, float64(time.Since(start).Nanoseconds())/1e6, src.Column1, len(sample1), src.Column2, len(sample2))

	return sample1, sample2, nil
}

func (r *DataReader) readRows(src ports.SampleSource) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(src.Path)) {
	case ".csv":
		return readCSV(src.Path)
	case ".xlsx", ".xlsm":
		return readExcel(src.Path, src.Sheet)
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported file type: %s", filepath.Ext(src.Path)))
	}
}

func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "failed to open Excel file")
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(errors.InvalidInput(err.Error()), "failed to read sheet %q", sheet)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "failed to open CSV file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "failed to read CSV file")
	}
	return rows, nil
}

func columnIndex(header []string, name string) (int, error) {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, nil
		}
	}
	return -1, errors.InvalidInput(fmt.Sprintf("column %q not found", name))
}

// parseColumn converts one column to floats, NaN for missing cells
func parseColumn(rows [][]string, col int, name string) ([]float64, error) {
	values := make([]float64, 0, len(rows))
	for i, row := range rows {
		cell := ""
		if col < len(row) {
			cell = strings.TrimSpace(row[col])
		}
		if missingMarkers[strings.ToLower(cell)] {
			values = append(values, math.NaN())
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("column %q row %d: %q is not a number", name, i+2, cell))
		}
		values = append(values, v)
	}

	// drop trailing missing cells left by a shorter column
	end := len(values)
	for end > 0 && math.IsNaN(values[end-1]) {
		end--
	}
	if end == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("column %q has no values", name))
	}
	return values[:end], nil
}
