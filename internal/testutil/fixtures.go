// Package testutil builds upload fixtures for tests.
package testutil

import (
    "archive/zip"
    "bytes"
    "fmt"
    "testing"

    "github.com/xuri/excelize/v2"
)

// ZipEntry is one file written into a fixture archive.
type ZipEntry struct {
    Name    string
    Content string
}

// BuildZip writes entries into an in-memory archive.
func BuildZip(t testing.TB, entries ...ZipEntry) []byte {
    t.Helper()
    var buf bytes.Buffer
    w := zip.NewWriter(&buf)
    for _, e := range entries {
        f, err := w.Create(e.Name)
        if err != nil {
            t.Fatalf("create zip entry %s: %v", e.Name, err)
        }
        if _, err := f.Write([]byte(e.Content)); err != nil {
            t.Fatalf("write zip entry %s: %v", e.Name, err)
        }
    }
    if err := w.Close(); err != nil {
        t.Fatalf("close zip: %v", err)
    }
    return buf.Bytes()
}

// BuildSheet writes header and rows into the first sheet of a workbook.
func BuildSheet(t testing.TB, header []string, rows ...[]string) []byte {
    t.Helper()
    f := excelize.NewFile()
    defer f.Close()

    sheet := f.GetSheetName(0)
    write := func(r int, values []string) {
        for c, v := range values {
            name, err := excelize.CoordinatesToCellName(c+1, r)
            if err != nil {
                t.Fatalf("cell name: %v", err)
            }
            if err := f.SetCellValue(sheet, name, v); err != nil {
                t.Fatalf("set cell %s: %v", name, err)
            }
        }
    }
    write(1, header)
    for i, row := range rows {
        write(i+2, row)
    }

    buf, err := f.WriteToBuffer()
    if err != nil {
        t.Fatalf("write workbook: %v", err)
    }
    return buf.Bytes()
}

// Classification declares the given ladder files with the default columns.
func Classification(t testing.TB, files ...string) []byte {
    t.Helper()
    rows := make([][]string, 0, len(files))
    for i, f := range files {
        rows = append(rows, []string{f, fmt.Sprintf("Logic %d", i+1), "sequence"})
    }
    return BuildSheet(t, []string{"File Name", "Logic Name", "Category"}, rows...)
}

// CommentCSV is a small valid comment table.
func CommentCSV() []byte {
    return []byte("device,comment\nX0,Start button\nY0,Conveyor motor\nM100,Auto mode\n")
}

// LadderCSV is a minimal ladder export with a title line before the header.
func LadderCSV(program string) string {
    return fmt.Sprintf("%s\nStep No.,Instruction,Device\n0,LD,X0\n1,AND,M100\n2,OUT,Y0\n3,END,\n", program)
}

// LadderFiles builds n ladder entries named L1.csv ... Ln.csv.
func LadderFiles(n int) ([]ZipEntry, []string) {
    entries := make([]ZipEntry, 0, n)
    names := make([]string, 0, n)
    for i := 1; i <= n; i++ {
        name := fmt.Sprintf("L%d.csv", i)
        entries = append(entries, ZipEntry{Name: name, Content: LadderCSV(fmt.Sprintf("MAIN%d", i))})
        names = append(names, name)
    }
    return entries, names
}
