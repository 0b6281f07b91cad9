package agent

import (
    "fmt"
    "path"
    "strings"

    "github.com/feichai0017/plc-program-processor/internal/agent/document"
    "github.com/feichai0017/plc-program-processor/internal/agent/document/ladder"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

// 扩展名到解析格式的映射
var extToFormat = map[string]string{
    ".csv": "csv",
    ".tsv": "csv",
    ".il":  "il",
    ".txt": "il",
    ".awl": "il",
}

type ProcessorFactory struct {
    processors map[string]document.Processor
    logger     logger.Logger
}

func NewProcessorFactory(logger logger.Logger) *ProcessorFactory {
    factory := &ProcessorFactory{
        processors: make(map[string]document.Processor),
        logger:     logger,
    }

    factory.processors["csv"] = ladder.NewCSVProcessor(logger)
    factory.processors["il"] = ladder.NewILProcessor(logger)

    return factory
}

// GetProcessor 根据文件名选择解析器
func (f *ProcessorFactory) GetProcessor(fileName string) (document.Processor, error) {
    ext := strings.ToLower(path.Ext(fileName))
    format, ok := extToFormat[ext]
    if !ok {
        f.logger.Warn("Unsupported ladder file type",
            logger.String("file", fileName),
            logger.String("ext", ext),
        )
        return nil, fmt.Errorf("unsupported ladder file type: %q", ext)
    }

    processor, ok := f.processors[format]
    if !ok || !processor.CanProcess(ext) {
        return nil, fmt.Errorf("no processor found for format: %s", format)
    }
    return processor, nil
}
