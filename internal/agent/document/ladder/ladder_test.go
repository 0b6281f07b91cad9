package ladder

import (
    "context"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "golang.org/x/text/encoding/japanese"

    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

func TestCSVProcessorParsesExport(t *testing.T) {
    p := NewCSVProcessor(logger.NewNop())
    data := "MAIN\n" +
        "Step No.,Line Statement,Instruction,I/O(Device)\n" +
        "0,start,LD,X0\n" +
        "1,,AND,M100\n" +
        "2,,MOV,K10\n" +
        ",,,D0\n" +
        "5,,OUT,Y0\n"

    prog, err := p.Process(context.Background(), "logic/L1.csv", []byte(data))
    require.NoError(t, err)

    assert.Equal(t, "MAIN", prog.Name)
    require.Len(t, prog.Steps, 4)
    assert.Equal(t, "start", prog.Steps[0].Note)
    assert.Equal(t, []string{"K10", "D0"}, prog.Steps[2].Operands)
    assert.Equal(t, 5, prog.Steps[3].Number)

    devices, refs := prog.Devices()
    assert.Equal(t, []string{"X0", "M100", "K10", "D0", "Y0"}, devices)
    assert.Equal(t, 1, refs["Y0"])
}

func TestCSVProcessorTabSeparatedShiftJIS(t *testing.T) {
    raw, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte("ステップ\t命令\tデバイス\n0\tLD\tX1\n1\tOUT\tY1\n"))
    require.NoError(t, err)

    prog, err := NewCSVProcessor(logger.NewNop()).Process(context.Background(), "L2.csv", raw)
    require.NoError(t, err)
    assert.Equal(t, "L2", prog.Name)
    require.Len(t, prog.Steps, 2)
    assert.Equal(t, "OUT", prog.Steps[1].Instruction)
}

func TestCSVProcessorRejectsBadInput(t *testing.T) {
    p := NewCSVProcessor(logger.NewNop())

    _, err := p.Process(context.Background(), "empty.csv", nil)
    assert.ErrorContains(t, err, "empty")

    _, err = p.Process(context.Background(), "nohdr.csv", []byte("a,b\n1,2\n"))
    assert.ErrorContains(t, err, "no instruction column")

    _, err = p.Process(context.Background(), "nosteps.csv", []byte("Step,Instruction,Device\n"))
    assert.ErrorContains(t, err, "contains no steps")
}

func TestILProcessor(t *testing.T) {
    p := NewILProcessor(logger.NewNop())
    prog, err := p.Process(context.Background(), "MAIN.il", []byte("; header\n0 LD X0\nand m1 // interlock\n\n10 OUT Y0\n"))
    require.NoError(t, err)

    assert.Equal(t, "MAIN", prog.Name)
    require.Len(t, prog.Steps, 3)
    assert.Equal(t, 1, prog.Steps[1].Number)
    assert.Equal(t, "AND", prog.Steps[1].Instruction)
    assert.Equal(t, "interlock", prog.Steps[1].Note)
    assert.Equal(t, 10, prog.Steps[2].Number)

    _, err = p.Process(context.Background(), "blank.il", []byte("; only a comment\n"))
    assert.Error(t, err)
}

func TestCanProcess(t *testing.T) {
    assert.True(t, NewCSVProcessor(logger.NewNop()).CanProcess(".CSV"))
    assert.False(t, NewCSVProcessor(logger.NewNop()).CanProcess(".il"))
    assert.True(t, NewILProcessor(logger.NewNop()).CanProcess(".txt"))
}
