package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.log")

	logger, err := NewFileLogger(FileLoggerConfig{Path: path})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	event := NewEvent(ctx, EventTypeAdminPermissionCreate, EventStatusSuccess)
	event.ResourceType = ResourceTypePermission
	event.ResourceName = "posts.edit"
	require.NoError(t, logger.Log(ctx, event))

	assert.FileExists(t, path)

	events, err := logger.ReadLogs(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeAdminPermissionCreate, events[0].EventType)
	assert.Equal(t, "posts.edit", events[0].ResourceName)
	assert.Equal(t, event.ID, events[0].ID)
}

func TestFileLogger_MultipleEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewFileLogger(FileLoggerConfig{Path: path})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log(ctx, NewEvent(ctx, EventTypeGrantRoleAssign, EventStatusSuccess)))
	}

	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	assert.Len(t, events, 5)

	limited, err := logger.ReadLogs(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	logger, err := NewFileLogger(FileLoggerConfig{
		Path:     path,
		Rotate:   true,
		MaxSize:  200,
		MaxFiles: 2,
	})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		event := NewEvent(ctx, EventTypeAdminRoleUpdate, EventStatusSuccess)
		event.ResourceName = "a-role-with-a-reasonably-long-name"
		require.NoError(t, logger.Log(ctx, event))
	}

	rotated, err := filepath.Glob(filepath.Join(dir, "audit-*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, rotated)
	assert.LessOrEqual(t, len(rotated), 2)
	assert.FileExists(t, path)
}

func TestFileLogger_Closed(t *testing.T) {
	logger, err := NewFileLogger(FileLoggerConfig{Path: filepath.Join(t.TempDir(), "audit.log")})
	require.NoError(t, err)
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	err = logger.Log(context.Background(), NewEvent(context.Background(), EventTypeAdminRoleDelete, EventStatusSuccess))
	assert.ErrorContains(t, err, "closed")
}

func TestNewFileLogger_RequiresPath(t *testing.T) {
	_, err := NewFileLogger(FileLoggerConfig{})
	assert.Error(t, err)
}
