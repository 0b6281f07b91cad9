// internal/utils/validator/validator.go
package validator

import (
    "fmt"
    "path"
    "sort"
    "strings"

    "github.com/feichai0017/plc-program-processor/internal/utils/textenc"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

// maxMissingListed 交叉校验错误中最多列出的缺失文件数
const maxMissingListed = 10

// File 上传的文件
type File struct {
    Name string
    Data []byte
}

// Config 验证器配置
type Config struct {
    ClassificationColumns []string // 分类表必需列
    CommentColumns        []string // 注释表必需列
}

// Result 验证结果
type Result struct {
    IsValid      bool     `json:"is_valid"`
    Errors       []string `json:"errors"`
    Warnings     []string `json:"warnings"`
    CheckedFiles []string `json:"checked_files"`

    // 校验通过时供后续流程复用
    Declarations []Declaration `json:"-"`
    Comments     *CommentTable `json:"-"`
}

// ProgramValidator 校验梯形图 ZIP / 分类表 / 注释表三件套
type ProgramValidator struct {
    logger logger.Logger
    config Config
}

// NewProgramValidator 创建验证器
func NewProgramValidator(log logger.Logger, cfg *Config) *ProgramValidator {
    c := Config{
        ClassificationColumns: []string{"file_name", "logic_name", "category"},
        CommentColumns:        []string{"device", "comment"},
    }
    if cfg != nil {
        if len(cfg.ClassificationColumns) > 0 {
            c.ClassificationColumns = cfg.ClassificationColumns
        }
        if len(cfg.CommentColumns) > 0 {
            c.CommentColumns = cfg.CommentColumns
        }
    }
    return &ProgramValidator{logger: log, config: c}
}

// Validate 按顺序校验三个文件, 前三步都无错误时才做交叉校验
func (v *ProgramValidator) Validate(ladderZip, classification, comment File) *Result {
    result := &Result{
        Errors:       make([]string, 0),
        Warnings:     make([]string, 0),
        CheckedFiles: make([]string, 0, 3),
    }

    // 1. ZIP
    var archive *Archive
    result.CheckedFiles = append(result.CheckedFiles, ladderZip.Name)
    if len(ladderZip.Data) == 0 {
        result.Errors = append(result.Errors, fmt.Sprintf("ladder ZIP %s is empty", ladderZip.Name))
    } else if a, err := OpenArchive(ladderZip.Data); err != nil {
        result.Errors = append(result.Errors, fmt.Sprintf("ladder ZIP %s is not a readable archive: %v", ladderZip.Name, err))
    } else if a.Len() == 0 {
        result.Errors = append(result.Errors, fmt.Sprintf("ladder ZIP %s contains no files", ladderZip.Name))
    } else {
        archive = a
    }

    // 2. 分类表
    result.CheckedFiles = append(result.CheckedFiles, classification.Name)
    decls, err := ParseClassification(classification.Data, v.config.ClassificationColumns)
    if err != nil {
        result.Errors = append(result.Errors, err.Error())
    } else if len(decls) == 0 {
        result.Errors = append(result.Errors, "classification spreadsheet declares no logic files")
    } else {
        result.Declarations = decls
        result.Warnings = append(result.Warnings, duplicateWarnings(decls)...)
    }

    // 3. 注释表
    result.CheckedFiles = append(result.CheckedFiles, comment.Name)
    table, err := ParseComments(comment.Data, v.config.CommentColumns)
    if err != nil {
        result.Errors = append(result.Errors, err.Error())
    } else {
        result.Comments = table
        if table.Encoding != textenc.UTF8 {
            result.Warnings = append(result.Warnings, fmt.Sprintf("comment file %s is not UTF-8, decoded as %s", comment.Name, table.Encoding))
        }
        if table.Rows == 0 {
            result.Warnings = append(result.Warnings, fmt.Sprintf("comment file %s has no data rows", comment.Name))
        }
    }

    // 4. 交叉校验
    if len(result.Errors) == 0 {
        if msg := crossReference(archive, decls); msg != "" {
            result.Errors = append(result.Errors, msg)
        } else {
            result.Warnings = append(result.Warnings, undeclaredWarnings(archive, decls)...)
        }
    }

    result.IsValid = len(result.Errors) == 0
    if !result.IsValid {
        result.Declarations = nil
        result.Comments = nil
    }

    v.logger.Debug("Validated program files",
        logger.Strings("files", result.CheckedFiles),
        logger.Bool("valid", result.IsValid),
        logger.Int("errors", len(result.Errors)),
        logger.Int("warnings", len(result.Warnings)),
    )
    return result
}

func crossReference(archive *Archive, decls []Declaration) string {
    var missing []string
    for _, d := range decls {
        if _, ok := archive.Resolve(d.FileName); !ok {
            missing = append(missing, d.FileName)
        }
    }
    if len(missing) == 0 {
        return ""
    }

    listed := missing
    if len(listed) > maxMissingListed {
        listed = listed[:maxMissingListed]
    }
    msg := fmt.Sprintf("ladder files declared in classification spreadsheet are missing from ZIP (%d): %s",
        len(missing), strings.Join(listed, ", "))
    if n := len(missing) - len(listed); n > 0 {
        msg += fmt.Sprintf(" and %d more", n)
    }
    return msg
}

func duplicateWarnings(decls []Declaration) []string {
    seen := make(map[string]int, len(decls))
    var dups []string
    for _, d := range decls {
        key := NormalizePath(d.FileName)
        seen[key]++
        if seen[key] == 2 {
            dups = append(dups, d.FileName)
        }
    }
    if len(dups) == 0 {
        return nil
    }
    return []string{fmt.Sprintf("classification spreadsheet declares duplicate files: %s", strings.Join(dups, ", "))}
}

func undeclaredWarnings(archive *Archive, decls []Declaration) []string {
    declared := make(map[string]bool, len(decls))
    for _, d := range decls {
        if p, ok := archive.Resolve(d.FileName); ok {
            declared[p] = true
        }
    }

    var extra []string
    for _, name := range archive.Names() {
        if !declared[name] {
            extra = append(extra, path.Base(name))
        }
    }
    if len(extra) == 0 {
        return nil
    }
    sort.Strings(extra)
    return []string{fmt.Sprintf("ZIP contains %d files not declared in classification spreadsheet: %s", len(extra), strings.Join(extra, ", "))}
}
