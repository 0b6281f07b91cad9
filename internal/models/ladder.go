package models

import "unicode"

// LadderStep 梯形图中的一条指令
type LadderStep struct {
    Number      int      `json:"step"`
    Instruction string   `json:"instruction"`
    Operands    []string `json:"operands,omitempty"`
    Note        string   `json:"note,omitempty"`
}

// LadderProgram is one parsed ladder-logic file.
type LadderProgram struct {
    Name         string       `json:"name"`
    SourceFormat string       `json:"sourceFormat"`
    Steps        []LadderStep `json:"steps"`
}

// Devices returns the device operands in order of first reference, with
// reference counts. Constants such as K10 or H0FF are included since they
// cannot be told apart from devices without a PLC model.
func (p *LadderProgram) Devices() ([]string, map[string]int) {
    var order []string
    refs := make(map[string]int)
    for _, s := range p.Steps {
        for _, op := range s.Operands {
            if op == "" || !unicode.IsLetter([]rune(op)[0]) {
                continue
            }
            if refs[op] == 0 {
                order = append(order, op)
            }
            refs[op]++
        }
    }
    return order, refs
}
