package document

import (
    "context"

    "github.com/feichai0017/plc-program-processor/internal/models"
)

// Processor 梯形图文件解析器接口
type Processor interface {
    // CanProcess 检查是否可以处理指定扩展名的文件
    CanProcess(ext string) bool

    // Process 解析单个梯形图文件
    Process(ctx context.Context, name string, data []byte) (*models.LadderProgram, error)
}
