// Package masterdata serves the plant / process / line hierarchy.
package masterdata

import (
    "context"
    "fmt"
    "os"

    "gopkg.in/yaml.v3"

    "github.com/feichai0017/plc-program-processor/internal/models"
    "github.com/feichai0017/plc-program-processor/internal/repository"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

type Service struct {
    repo   repository.MasterDataRepository
    logger logger.Logger
}

func NewService(repo repository.MasterDataRepository, log logger.Logger) *Service {
    return &Service{repo: repo, logger: log}
}

// Hierarchy 返回完整的层级树, 没有数据时返回空切片
func (s *Service) Hierarchy(ctx context.Context) ([]models.Plant, error) {
    plants, err := s.repo.Hierarchy(ctx)
    if err != nil {
        return nil, err
    }
    if plants == nil {
        plants = []models.Plant{}
    }
    return plants, nil
}

// seed file layout
type seedFile struct {
    Plants []seedPlant `yaml:"plants"`
}

type seedPlant struct {
    ID        string        `yaml:"id"`
    Name      string        `yaml:"name"`
    Processes []seedProcess `yaml:"processes"`
}

type seedProcess struct {
    ID    string     `yaml:"id"`
    Name  string     `yaml:"name"`
    Lines []seedLine `yaml:"lines"`
}

type seedLine struct {
    ID   string `yaml:"id"`
    Name string `yaml:"name"`
}

// SeedFile loads a YAML seed from path, see Seed.
func (s *Service) SeedFile(ctx context.Context, path string) (int, error) {
    data, err := os.ReadFile(path)
    if err != nil {
        return 0, fmt.Errorf("failed to read master data %s: %w", path, err)
    }
    return s.Seed(ctx, data)
}

// Seed creates the plants in data that do not exist yet. Existing plants
// are left untouched. Sort order follows the file order.
func (s *Service) Seed(ctx context.Context, data []byte) (int, error) {
    var file seedFile
    if err := yaml.Unmarshal(data, &file); err != nil {
        return 0, fmt.Errorf("failed to parse master data: %w", err)
    }

    existing, err := s.repo.Hierarchy(ctx)
    if err != nil {
        return 0, err
    }
    known := make(map[string]bool, len(existing))
    for _, p := range existing {
        known[p.ID] = true
    }

    created := 0
    for i, sp := range file.Plants {
        if sp.ID == "" {
            return created, fmt.Errorf("plant #%d has no id", i+1)
        }
        if known[sp.ID] {
            continue
        }
        if err := s.repo.CreatePlant(ctx, toPlant(sp, i)); err != nil {
            return created, err
        }
        known[sp.ID] = true
        created++
    }

    s.logger.Info("Master data seeded", logger.Int("plants", created), logger.Int("skipped", len(file.Plants)-created))
    return created, nil
}

func toPlant(sp seedPlant, order int) *models.Plant {
    plant := &models.Plant{ID: sp.ID, Name: sp.Name, SortOrder: order}
    for j, pr := range sp.Processes {
        proc := models.Process{ID: pr.ID, PlantID: sp.ID, Name: pr.Name, SortOrder: j}
        for k, ln := range pr.Lines {
            proc.Lines = append(proc.Lines, models.Line{ID: ln.ID, ProcessID: pr.ID, Name: ln.Name, SortOrder: k})
        }
        plant.Processes = append(plant.Processes, proc)
    }
    return plant
}
