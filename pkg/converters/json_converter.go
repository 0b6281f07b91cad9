package converters

import (
    "fmt"
    "sort"
    "strings"
    "time"

    "github.com/goccy/go-json"

    "github.com/feichai0017/plc-program-processor/internal/models"
)

// LogicMeta 分类表中的逻辑文件信息
type LogicMeta struct {
    ProgramID  string
    FileName   string
    LogicKey   string
    LogicName  string
    Category   string
    Attributes map[string]string
}

// LogicDocument 定义处理后的单个逻辑文档结构
type LogicDocument struct {
    ProgramID     string            `json:"programId"`
    LogicName     string            `json:"logicName"`
    FileName      string            `json:"fileName"`
    LogicKey      string            `json:"logicKey"`
    Category      string            `json:"category"`
    Attributes    map[string]string `json:"attributes,omitempty"`
    SourceProgram string            `json:"sourceProgram"`
    SourceFormat  string            `json:"sourceFormat"`
    Steps         []StepContent     `json:"steps"`
    Devices       []DeviceContent   `json:"devices"`
    Stats         LogicStats        `json:"stats"`
    Content       string            `json:"content"`
    ProcessedAt   time.Time         `json:"processedAt"`
}

// StepContent 定义单条指令
type StepContent struct {
    Step        int       `json:"step"`
    Instruction string    `json:"instruction"`
    Operands    []Operand `json:"operands,omitempty"`
    Note        string    `json:"note,omitempty"`
}

type Operand struct {
    Value   string `json:"value"`
    Comment string `json:"comment,omitempty"`
}

type DeviceContent struct {
    Device     string `json:"device"`
    Comment    string `json:"comment,omitempty"`
    References int    `json:"references"`
}

type LogicStats struct {
    StepCount        int `json:"stepCount"`
    DeviceCount      int `json:"deviceCount"`
    CommentedDevices int `json:"commentedDevices"`
}

// JSONConverter 把解析后的梯形图与注释合并为逻辑 JSON
type JSONConverter struct {
    now func() time.Time
}

func NewJSONConverter() *JSONConverter {
    return &JSONConverter{now: time.Now}
}

// WithClock overrides the processed-at timestamp source.
func (c *JSONConverter) WithClock(now func() time.Time) *JSONConverter {
    c.now = now
    return c
}

func (c *JSONConverter) Convert(prog *models.LadderProgram, meta LogicMeta, comments map[string]string) (*LogicDocument, error) {
    if prog == nil || len(prog.Steps) == 0 {
        return nil, fmt.Errorf("no steps to convert")
    }

    doc := &LogicDocument{
        ProgramID:     meta.ProgramID,
        LogicName:     meta.LogicName,
        FileName:      meta.FileName,
        LogicKey:      meta.LogicKey,
        Category:      meta.Category,
        Attributes:    meta.Attributes,
        SourceProgram: prog.Name,
        SourceFormat:  prog.SourceFormat,
        Steps:         make([]StepContent, 0, len(prog.Steps)),
        ProcessedAt:   c.now().UTC(),
    }
    if doc.LogicName == "" {
        doc.LogicName = prog.Name
    }

    var text strings.Builder
    for _, s := range prog.Steps {
        step := StepContent{Step: s.Number, Instruction: s.Instruction, Note: s.Note}
        fmt.Fprintf(&text, "%d %s", s.Number, s.Instruction)
        for _, op := range s.Operands {
            step.Operands = append(step.Operands, Operand{Value: op, Comment: comments[op]})
            text.WriteString(" " + op)
            if cm := comments[op]; cm != "" {
                fmt.Fprintf(&text, "(%s)", cm)
            }
        }
        if s.Note != "" {
            text.WriteString(" ; " + s.Note)
        }
        text.WriteByte('\n')
        doc.Steps = append(doc.Steps, step)
    }
    doc.Content = text.String()

    order, refs := prog.Devices()
    doc.Devices = make([]DeviceContent, 0, len(order))
    for _, d := range order {
        dc := DeviceContent{Device: d, Comment: comments[d], References: refs[d]}
        if dc.Comment != "" {
            doc.Stats.CommentedDevices++
        }
        doc.Devices = append(doc.Devices, dc)
    }
    sort.SliceStable(doc.Devices, func(i, j int) bool {
        return doc.Devices[i].References > doc.Devices[j].References
    })

    doc.Stats.StepCount = len(doc.Steps)
    doc.Stats.DeviceCount = len(doc.Devices)
    return doc, nil
}

// Marshal encodes doc as the stored artifact body.
func (c *JSONConverter) Marshal(doc *LogicDocument) ([]byte, error) {
    data, err := json.Marshal(doc)
    if err != nil {
        return nil, fmt.Errorf("failed to marshal logic document %s: %w", doc.LogicKey, err)
    }
    return data, nil
}
