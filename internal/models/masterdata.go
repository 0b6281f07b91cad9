package models

// Plant / Process / Line 主数据层级

type Plant struct {
    ID        string    `gorm:"primaryKey;size:64" json:"id"`
    Name      string    `gorm:"size:255;not null" json:"name"`
    SortOrder int       `json:"sortOrder"`
    Processes []Process `gorm:"foreignKey:PlantID" json:"processes,omitempty"`
}

func (Plant) TableName() string { return "plants" }

type Process struct {
    ID        string `gorm:"primaryKey;size:64" json:"id"`
    PlantID   string `gorm:"size:64;not null;index" json:"plantId"`
    Name      string `gorm:"size:255;not null" json:"name"`
    SortOrder int    `json:"sortOrder"`
    Lines     []Line `gorm:"foreignKey:ProcessID" json:"lines,omitempty"`
}

func (Process) TableName() string { return "processes" }

type Line struct {
    ID        string `gorm:"primaryKey;size:64" json:"id"`
    ProcessID string `gorm:"size:64;not null;index" json:"processId"`
    Name      string `gorm:"size:255;not null" json:"name"`
    SortOrder int    `json:"sortOrder"`
}

func (Line) TableName() string { return "lines" }
