package validator

import (
    "bytes"
    "encoding/csv"
    "fmt"
    "strings"

    "github.com/xuri/excelize/v2"

    "github.com/feichai0017/plc-program-processor/internal/utils/textenc"
)

// Declaration 分类表中声明的一个逻辑文件
type Declaration struct {
    Ordinal   int               `json:"ordinal"`
    FileName  string            `json:"fileName"`
    LogicName string            `json:"logicName"`
    Category  string            `json:"category"`
    Extra     map[string]string `json:"extra,omitempty"`
}

// CommentTable maps device addresses to their comments.
type CommentTable struct {
    Encoding textenc.Encoding
    Comments map[string]string
    Rows     int
}

func normalizeHeader(h string) string {
    h = strings.ToLower(strings.TrimSpace(h))
    h = strings.ReplaceAll(h, " ", "_")
    return strings.ReplaceAll(h, "-", "_")
}

// columnIndex maps each wanted column to its position, listing any missing.
func columnIndex(header []string, wanted []string) (map[string]int, []string) {
    pos := make(map[string]int, len(header))
    for i, h := range header {
        n := normalizeHeader(h)
        if _, ok := pos[n]; !ok {
            pos[n] = i
        }
    }

    idx := make(map[string]int, len(wanted))
    var missing []string
    for _, w := range wanted {
        n := normalizeHeader(w)
        i, ok := pos[n]
        if !ok {
            missing = append(missing, w)
            continue
        }
        idx[n] = i
    }
    return idx, missing
}

func cell(row []string, i int) string {
    if i < 0 || i >= len(row) {
        return ""
    }
    return strings.TrimSpace(row[i])
}

// ParseClassification reads the first sheet of the spreadsheet. The first
// three required columns are taken as file name, logic name and category.
func ParseClassification(data []byte, required []string) ([]Declaration, error) {
    f, err := excelize.OpenReader(bytes.NewReader(data))
    if err != nil {
        return nil, fmt.Errorf("classification spreadsheet is not readable: %w", err)
    }
    defer f.Close()

    sheets := f.GetSheetList()
    if len(sheets) == 0 {
        return nil, fmt.Errorf("classification spreadsheet has no sheets")
    }
    rows, err := f.GetRows(sheets[0])
    if err != nil {
        return nil, fmt.Errorf("classification spreadsheet is not readable: %w", err)
    }
    if len(rows) == 0 {
        return nil, fmt.Errorf("classification spreadsheet is empty")
    }

    header := rows[0]
    idx, missing := columnIndex(header, required)
    if len(missing) > 0 {
        return nil, fmt.Errorf("classification spreadsheet is missing required columns: %s", strings.Join(missing, ", "))
    }

    col := func(n int) int {
        if n >= len(required) {
            return -1
        }
        return idx[normalizeHeader(required[n])]
    }
    fileCol, nameCol, categoryCol := col(0), col(1), col(2)

    var decls []Declaration
    for _, row := range rows[1:] {
        fileName := cell(row, fileCol)
        if fileName == "" {
            continue
        }
        d := Declaration{
            Ordinal:   len(decls),
            FileName:  fileName,
            LogicName: cell(row, nameCol),
            Category:  cell(row, categoryCol),
        }
        for i, h := range header {
            if i == fileCol || i == nameCol || i == categoryCol || strings.TrimSpace(h) == "" {
                continue
            }
            if v := cell(row, i); v != "" {
                if d.Extra == nil {
                    d.Extra = make(map[string]string)
                }
                d.Extra[normalizeHeader(h)] = v
            }
        }
        decls = append(decls, d)
    }
    return decls, nil
}

// ParseComments decodes the comment table and checks its required columns.
// The first two required columns are taken as device and comment.
func ParseComments(data []byte, required []string) (*CommentTable, error) {
    text, enc, err := textenc.Decode(data)
    if err != nil {
        return nil, fmt.Errorf("comment file is not readable: %w", err)
    }

    r := csv.NewReader(strings.NewReader(text))
    r.FieldsPerRecord = -1
    r.LazyQuotes = true
    records, err := r.ReadAll()
    if err != nil {
        return nil, fmt.Errorf("comment file is not readable: %w", err)
    }
    if len(records) == 0 {
        return nil, fmt.Errorf("comment file is empty")
    }

    idx, missing := columnIndex(records[0], required)
    if len(missing) > 0 {
        return nil, fmt.Errorf("comment file is missing required columns: %s", strings.Join(missing, ", "))
    }

    table := &CommentTable{Encoding: enc, Comments: make(map[string]string)}
    deviceCol, commentCol := -1, -1
    if len(required) > 0 {
        deviceCol = idx[normalizeHeader(required[0])]
    }
    if len(required) > 1 {
        commentCol = idx[normalizeHeader(required[1])]
    }
    for _, rec := range records[1:] {
        device := cell(rec, deviceCol)
        if device == "" {
            continue
        }
        table.Comments[device] = cell(rec, commentCol)
        table.Rows++
    }
    return table, nil
}
