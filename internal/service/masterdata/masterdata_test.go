package masterdata

import (
    "context"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/plc-program-processor/internal/testutil"
    "github.com/feichai0017/plc-program-processor/pkg/logger"
)

const seed = `
plants:
  - id: KYOTO
    name: Kyoto plant
    processes:
      - id: P01
        name: Press
        lines:
          - id: L01
            name: Press line 1
          - id: L02
            name: Press line 2
      - id: P02
        name: Paint
  - id: OSAKA
    name: Osaka plant
`

func TestHierarchyEmpty(t *testing.T) {
    store := testutil.NewStore(t)
    svc := NewService(store.MasterData, logger.NewNop())

    plants, err := svc.Hierarchy(context.Background())
    require.NoError(t, err)
    assert.NotNil(t, plants)
    assert.Empty(t, plants)
}

func TestSeedAndHierarchy(t *testing.T) {
    store := testutil.NewStore(t)
    svc := NewService(store.MasterData, logger.NewNop())
    ctx := context.Background()

    n, err := svc.Seed(ctx, []byte(seed))
    require.NoError(t, err)
    assert.Equal(t, 2, n)

    plants, err := svc.Hierarchy(ctx)
    require.NoError(t, err)
    require.Len(t, plants, 2)
    assert.Equal(t, "KYOTO", plants[0].ID)
    require.Len(t, plants[0].Processes, 2)
    assert.Equal(t, "P01", plants[0].Processes[0].ID)
    require.Len(t, plants[0].Processes[0].Lines, 2)
    assert.Equal(t, "L02", plants[0].Processes[0].Lines[1].ID)
    assert.Empty(t, plants[1].Processes)

    ok, err := store.MasterData.ProcessExists(ctx, "P02")
    require.NoError(t, err)
    assert.True(t, ok)

    // 再次导入跳过已存在的工厂
    n, err = svc.Seed(ctx, []byte(seed))
    require.NoError(t, err)
    assert.Zero(t, n)
}

func TestSeedRejectsBadInput(t *testing.T) {
    store := testutil.NewStore(t)
    svc := NewService(store.MasterData, logger.NewNop())

    _, err := svc.Seed(context.Background(), []byte("plants: [oops"))
    assert.Error(t, err)

    _, err = svc.Seed(context.Background(), []byte("plants:\n  - name: nameless\n"))
    assert.ErrorContains(t, err, "no id")
}
