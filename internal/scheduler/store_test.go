package scheduler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Store_SaveLoad_RoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	ts, err := CronTime("@hourly")
	require.NoError(t, err)

	task := &Task{
		ClientID:    "client-a",
		TaskID:      uuid.New(),
		Description: "periodic sweep",
		TimeSpec:    ts,
		Persist:     true,
		Enabled:     true,
		Payload:     []byte(`{"cmd":"sweep"}`),
	}

	require.NoError(t, store.Save(task))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, task.TaskID, loaded[0].TaskID)
	assert.Equal(t, task.ClientID, loaded[0].ClientID)
	assert.Equal(t, TimeCron, loaded[0].TimeSpec.Kind)
}

func Test_Store_Save_SkipsNonPersistTasks(t *testing.T) {
	store := NewStore(t.TempDir())

	task := &Task{
		ClientID: "client-a",
		TaskID:   uuid.New(),
		TimeSpec: PeriodicTime(time.Minute),
		Persist:  false,
		Enabled:  true,
	}
	require.NoError(t, store.Save(task))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func Test_Store_Load_MigratesLegacyIntegerID(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	wire := wireTask{
		ClientID:    "client-a",
		TaskID:      "unused-for-legacy-files",
		Description: "legacy",
		Task:        []byte(`{}`),
		TimeSpec:    wireTimeSpec{Kind: "periodic", Period: strPtr("1m0s")},
		Persist:     true,
		Enabled:     true,
	}
	buf, err := json.MarshalIndent(wire, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "7.json"), buf, 0o644))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	expected := legacyTaskUUID("client-a", 7)
	assert.Equal(t, expected, loaded[0].TaskID)

	// The legacy-named file must be gone, replaced by the UUID-named one.
	_, err = os.Stat(filepath.Join(dir, "7.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, expected.String()+".json"))
	assert.NoError(t, err)
}

func Test_Store_RemoveAll(t *testing.T) {
	store := NewStore(t.TempDir())

	for i := 0; i < 3; i++ {
		task := &Task{
			ClientID: "client-a",
			TaskID:   uuid.New(),
			TimeSpec: PeriodicTime(time.Minute),
			Persist:  true,
			Enabled:  true,
		}
		require.NoError(t, store.Save(task))
	}

	require.NoError(t, store.RemoveAll())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func strPtr(s string) *string { return &s }
