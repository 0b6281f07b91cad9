package validator

import "strings"

const (
    SectionLadder         = "ladder"
    SectionClassification = "classification"
    SectionOther          = "other"
)

// ErrorGroup 展示用的错误分组
type ErrorGroup struct {
    Section string   `json:"section"`
    Title   string   `json:"title"`
    Errors  []string `json:"errors"`
}

var sections = []struct {
    name     string
    title    string
    keywords []string
}{
    {SectionLadder, "Ladder file errors", []string{"ladder", "zip", "archive"}},
    {SectionClassification, "Classification data errors", []string{"classification", "spreadsheet", "xlsx"}},
}

// GroupErrors buckets errors by keyword. Anything unmatched goes to "other".
// Empty groups are omitted.
func GroupErrors(errs []string) []ErrorGroup {
    buckets := make(map[string][]string)
    for _, e := range errs {
        buckets[sectionOf(e)] = append(buckets[sectionOf(e)], e)
    }

    var groups []ErrorGroup
    for _, s := range sections {
        if len(buckets[s.name]) > 0 {
            groups = append(groups, ErrorGroup{Section: s.name, Title: s.title, Errors: buckets[s.name]})
        }
    }
    if len(buckets[SectionOther]) > 0 {
        groups = append(groups, ErrorGroup{Section: SectionOther, Title: "Other errors", Errors: buckets[SectionOther]})
    }
    return groups
}

func sectionOf(e string) string {
    lower := strings.ToLower(e)
    for _, s := range sections {
        for _, k := range s.keywords {
            if strings.Contains(lower, k) {
                return s.name
            }
        }
    }
    return SectionOther
}
