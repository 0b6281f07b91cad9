package memory

import (
    "context"
    "errors"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/plc-program-processor/pkg/storage/errdefs"
)

func TestUploadDownloadDeletePrefix(t *testing.T) {
    ctx := context.Background()
    s := New()

    loc, err := s.Upload(ctx, []byte("a"), "programs/P1/a.zip", "application/zip")
    require.NoError(t, err)
    assert.Equal(t, "memory://programs/P1/a.zip", loc)
    _, err = s.Upload(ctx, []byte("b"), "programs/P1/logic/b.json", "application/json")
    require.NoError(t, err)
    _, err = s.Upload(ctx, []byte("c"), "programs/P2/c.zip", "application/zip")
    require.NoError(t, err)

    data, err := s.Download(ctx, "programs/P1/a.zip")
    require.NoError(t, err)
    assert.Equal(t, "a", string(data))
    assert.Equal(t, "application/json", s.ContentType("programs/P1/logic/b.json"))

    n, err := s.DeletePrefix(ctx, "programs/P1/")
    require.NoError(t, err)
    assert.Equal(t, 2, n)
    assert.Equal(t, []string{"programs/P2/c.zip"}, s.Keys())

    _, err = s.Download(ctx, "programs/P1/a.zip")
    assert.ErrorIs(t, err, ErrNotFound)
    assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestUploadHookRejects(t *testing.T) {
    s := New()
    s.SetUploadHook(func(key string) error {
        if key == "bad" {
            return errors.New("disk full")
        }
        return nil
    })

    _, err := s.Upload(context.Background(), []byte("x"), "bad", "")
    assert.ErrorContains(t, err, "disk full")
    _, err = s.Upload(context.Background(), []byte("x"), "good", "")
    assert.NoError(t, err)
    assert.Equal(t, 2, s.Uploads())
    assert.Equal(t, []string{"good"}, s.Keys())
}
