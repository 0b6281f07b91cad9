package ladder

import (
    "bufio"
    "context"
    "fmt"
    "path"
    "strconv"
    "strings"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/utils/textenc"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

// ILProcessor parses instruction-list text, one instruction per line:
//
//    [step] INSTRUCTION [operand ...] [; note]
type ILProcessor struct {
    logger logger.Logger
}

func NewILProcessor(logger logger.Logger) *ILProcessor {
    return &ILProcessor{logger: logger}
}

func (p *ILProcessor) CanProcess(ext string) bool {
    switch strings.ToLower(ext) {
    case ".il", ".txt", ".awl":
        return true
    }
    return false
}

func (p *ILProcessor) Process(ctx context.Context, name string, data []byte) (*models.LadderProgram, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }

    text, _, err := textenc.Decode(data)
    if err != nil {
        return nil, err
    }

    base := path.Base(name)
    prog := &models.LadderProgram{
        Name:         strings.TrimSuffix(base, path.Ext(base)),
        SourceFormat: "il",
    }

    next := 0
    sc := bufio.NewScanner(strings.NewReader(text))
    for sc.Scan() {
        line, note := splitNote(sc.Text())
        fields := strings.Fields(line)
        if len(fields) == 0 {
            continue
        }

        num := next
        if n, err := strconv.Atoi(fields[0]); err == nil {
            num = n
            fields = fields[1:]
            if len(fields) == 0 {
                continue
            }
        }

        prog.Steps = append(prog.Steps, models.LadderStep{
            Number:      num,
            Instruction: strings.ToUpper(fields[0]),
            Operands:    fields[1:],
            Note:        note,
        })
        next = num + 1
    }
    if err := sc.Err(); err != nil {
        return nil, fmt.Errorf("failed to read ladder file %s: %w", name, err)
    }
    if len(prog.Steps) == 0 {
        return nil, fmt.Errorf("ladder file %s contains no steps", name)
    }

    p.logger.Debug("Parsed instruction list",
        logger.String("file", name),
        logger.Int("steps", len(prog.Steps)),
    )
    return prog, nil
}

func splitNote(line string) (string, string) {
    for _, sep := range []string{";", "//"} {
        if i := strings.Index(line, sep); i >= 0 {
            return line[:i], strings.TrimSpace(line[i+len(sep):])
        }
    }
    return line, ""
}
