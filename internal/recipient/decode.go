package recipient

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoRows is returned when an upload has a header but no data
var ErrNoRows = errors.New("contact file has no data rows")

// maxUploadBytes bounds a single contact upload
const maxUploadBytes = 32 << 20

var phoneHeaderPattern = regexp.MustCompile(`(?i)phone|tel|cel|whatsapp`)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Sheet is a decoded contact upload
type Sheet struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// PhoneColumn returns the auto-detected phone column
func (s *Sheet) PhoneColumn() string {
	return DetectPhoneColumn(s.Headers)
}

// DetectPhoneColumn picks the first header that looks like a phone field,
// defaulting to the first column.
func DetectPhoneColumn(headers []string) string {
	for _, h := range headers {
		if phoneHeaderPattern.MatchString(h) {
			return h
		}
	}
	if len(headers) > 0 {
		return headers[0]
	}
	return ""
}

// Decode reads a contact upload. Files named *.xlsx are read as
// spreadsheets; anything else as delimited text.
func Decode(r io.Reader, filename string) (*Sheet, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("upload exceeds %d bytes", maxUploadBytes)
	}

	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return DecodeXLSX(bytes.NewReader(data))
	}
	return DecodeCSV(bytes.NewReader(data))
}

// DecodeCSV reads delimited text with a header row. The delimiter is
// detected from the header line.
func DecodeCSV(r io.Reader) (*Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	csvReader := csv.NewReader(bytes.NewReader(data))
	csvReader.Comma = detectDelimiter(data)
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	return sheetFromRecords(records)
}

// DecodeXLSX reads the first worksheet of a workbook
func DecodeXLSX(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	name := f.GetSheetName(0)
	if name == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	records, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
	}
	return sheetFromRecords(records)
}

func sheetFromRecords(records [][]string) (*Sheet, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("contact file is empty")
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	sheet := &Sheet{Headers: headers}
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make(Row, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, row)
	}

	if len(sheet.Rows) == 0 {
		return sheet, ErrNoRows
	}
	return sheet, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// detectDelimiter counts candidate delimiters on the first line;
// ties resolve to comma.
func detectDelimiter(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte{byte(d)}); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
