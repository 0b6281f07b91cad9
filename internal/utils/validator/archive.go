package validator

import (
    "archive/zip"
    "bytes"
    "fmt"
    "io"
    "path"
    "strings"
)

// Archive 梯形图 ZIP 的只读视图, 按规范化路径和文件名索引
type Archive struct {
    files  []*zip.File
    byPath map[string]*zip.File
    byBase map[string]*zip.File
}

// NormalizePath converts separators to '/' and strips leading "./" and "/".
func NormalizePath(p string) string {
    p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
    for strings.HasPrefix(p, "./") {
        p = p[2:]
    }
    return strings.TrimLeft(p, "/")
}

// OpenArchive reads the ZIP directory. Directories, macOS resource forks and
// dot files are skipped.
func OpenArchive(data []byte) (*Archive, error) {
    r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
    if err != nil {
        return nil, fmt.Errorf("failed to read zip: %w", err)
    }

    a := &Archive{
        byPath: make(map[string]*zip.File),
        byBase: make(map[string]*zip.File),
    }
    for _, f := range r.File {
        name := NormalizePath(f.Name)
        if f.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
            continue
        }
        if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), ".") {
            continue
        }
        a.files = append(a.files, f)
        a.byPath[name] = f
        base := path.Base(name)
        if _, ok := a.byBase[base]; !ok {
            a.byBase[base] = f
        }
    }
    return a, nil
}

func (a *Archive) Len() int {
    return len(a.files)
}

// Names returns the normalized entry paths in archive order.
func (a *Archive) Names() []string {
    names := make([]string, 0, len(a.files))
    for _, f := range a.files {
        names = append(names, NormalizePath(f.Name))
    }
    return names
}

// Resolve finds name by exact normalized path, then by basename. It
// returns the normalized path of the matched entry.
func (a *Archive) Resolve(name string) (string, bool) {
    n := NormalizePath(name)
    if f, ok := a.byPath[n]; ok {
        return NormalizePath(f.Name), true
    }
    if f, ok := a.byBase[path.Base(n)]; ok {
        return NormalizePath(f.Name), true
    }
    return "", false
}

// Read returns the content of the entry matching name.
func (a *Archive) Read(name string) ([]byte, error) {
    resolved, ok := a.Resolve(name)
    if !ok {
        return nil, fmt.Errorf("file %s not found in archive", name)
    }
    rc, err := a.byPath[resolved].Open()
    if err != nil {
        return nil, fmt.Errorf("failed to open %s: %w", resolved, err)
    }
    defer rc.Close()

    data, err := io.ReadAll(rc)
    if err != nil {
        return nil, fmt.Errorf("failed to read %s: %w", resolved, err)
    }
    return data, nil
}
