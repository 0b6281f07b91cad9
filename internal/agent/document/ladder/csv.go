package ladder

import (
    "context"
    "encoding/csv"
    "fmt"
    "path"
    "strconv"
    "strings"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/utils/textenc"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

// 表头最多向下查找的行数 (导出文件开头可能有程序名等信息行)
const headerSearchRows = 10

var (
    instructionHeaders = []string{"instruction", "inst", "命令"}
    stepHeaders        = []string{"step", "step_no.", "step_no", "ステップ", "ステップ番号"}
    deviceHeaders      = []string{"device", "i/o(device)", "i/o_(device)", "operand", "デバイス"}
    noteHeaders        = []string{"note", "line_statement", "statement", "ノート", "ステートメント"}
)

// CSVProcessor parses tabular ladder exports (CSV or tab separated), as
// written by common PLC engineering tools.
type CSVProcessor struct {
    logger logger.Logger
}

func NewCSVProcessor(logger logger.Logger) *CSVProcessor {
    return &CSVProcessor{logger: logger}
}

func (p *CSVProcessor) CanProcess(ext string) bool {
    switch strings.ToLower(ext) {
    case ".csv", ".tsv":
        return true
    }
    return false
}

func (p *CSVProcessor) Process(ctx context.Context, name string, data []byte) (*models.LadderProgram, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }

    text, enc, err := textenc.Decode(data)
    if err != nil {
        return nil, err
    }
    if strings.TrimSpace(text) == "" {
        return nil, fmt.Errorf("ladder file %s is empty", name)
    }

    r := csv.NewReader(strings.NewReader(text))
    r.Comma = sniffDelimiter(text)
    r.FieldsPerRecord = -1
    r.LazyQuotes = true
    records, err := r.ReadAll()
    if err != nil {
        return nil, fmt.Errorf("failed to parse ladder file %s: %w", name, err)
    }

    headerRow := -1
    for i := 0; i < len(records) && i < headerSearchRows; i++ {
        if findColumn(records[i], instructionHeaders) >= 0 {
            headerRow = i
            break
        }
    }
    if headerRow < 0 {
        return nil, fmt.Errorf("ladder file %s has no instruction column", name)
    }

    header := records[headerRow]
    instCol := findColumn(header, instructionHeaders)
    stepCol := findColumn(header, stepHeaders)
    deviceCol := findColumn(header, deviceHeaders)
    noteCol := findColumn(header, noteHeaders)

    prog := &models.LadderProgram{
        Name:         programName(records[:headerRow], name),
        SourceFormat: "csv",
    }

    next := 0
    for _, rec := range records[headerRow+1:] {
        inst := field(rec, instCol)
        device := field(rec, deviceCol)
        note := field(rec, noteCol)

        if inst == "" {
            // 多操作数指令的后续行只有 device
            if device != "" && len(prog.Steps) > 0 {
                last := &prog.Steps[len(prog.Steps)-1]
                last.Operands = append(last.Operands, device)
            }
            continue
        }

        num := next
        if s := field(rec, stepCol); s != "" {
            if n, err := strconv.Atoi(s); err == nil {
                num = n
            }
        }
        step := models.LadderStep{Number: num, Instruction: inst, Note: note}
        if device != "" {
            step.Operands = append(step.Operands, device)
        }
        prog.Steps = append(prog.Steps, step)
        next = num + 1
    }

    if len(prog.Steps) == 0 {
        return nil, fmt.Errorf("ladder file %s contains no steps", name)
    }

    p.logger.Debug("Parsed ladder csv",
        logger.String("file", name),
        logger.String("encoding", string(enc)),
        logger.Int("steps", len(prog.Steps)),
    )
    return prog, nil
}

func sniffDelimiter(text string) rune {
    sample := text
    if len(sample) > 2048 {
        sample = sample[:2048]
    }
    if strings.Count(sample, "\t") > strings.Count(sample, ",") {
        return '\t'
    }
    return ','
}

func normalize(h string) string {
    h = strings.ToLower(strings.TrimSpace(h))
    return strings.ReplaceAll(h, " ", "_")
}

func findColumn(row []string, aliases []string) int {
    for i, cell := range row {
        n := normalize(cell)
        for _, a := range aliases {
            if n == a {
                return i
            }
        }
    }
    return -1
}

func field(rec []string, i int) string {
    if i < 0 || i >= len(rec) {
        return ""
    }
    return strings.TrimSpace(rec[i])
}

// programName takes the first non-empty cell above the header, or the file
// name without extension.
func programName(preamble [][]string, fileName string) string {
    for _, rec := range preamble {
        for _, c := range rec {
            if c = strings.TrimSpace(c); c != "" {
                return c
            }
        }
    }
    base := path.Base(fileName)
    return strings.TrimSuffix(base, path.Ext(base))
}
