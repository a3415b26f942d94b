package commandqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommandLifecycleHappyPath(t *testing.T) {
	q := New(t.TempDir(), nil)

	cmd, err := q.SendCommand(CommandStart, nil, 60)
	require.NoError(t, err)
	require.Equal(t, StatusPending, cmd.Status)

	pending, err := q.GetPendingCommands()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = q.MarkProcessing(cmd.CommandID)
	require.NoError(t, err)

	pending, err = q.GetPendingCommands()
	require.NoError(t, err)
	require.Empty(t, pending)

	require.NoError(t, q.MarkCompleted(cmd.CommandID, map[string]any{"status": "already_running"}))

	got, err := q.GetCommandStatus(cmd.CommandID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "already_running", got.Result["status"])
}

func TestExpiredPendingCommandTransitionsToFailed(t *testing.T) {
	q := New(t.TempDir(), nil)
	cmd, err := q.SendCommand(CommandExecuteAction, map[string]any{"action": "noop"}, 1)
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	cmd.ExpiresAt = &past
	require.NoError(t, q.writeCommand(q.pendingDir, cmd))

	pending, err := q.GetPendingCommands()
	require.NoError(t, err)
	require.Empty(t, pending)

	got, err := q.GetCommandStatus(cmd.CommandID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, got.Status)
	require.Equal(t, "Command expired", got.Error)
}

func TestMarkProcessingCannotRevertToPending(t *testing.T) {
	q := New(t.TempDir(), nil)
	cmd, err := q.SendCommand(CommandPause, nil, 0)
	require.NoError(t, err)

	_, err = q.MarkProcessing(cmd.CommandID)
	require.NoError(t, err)

	_, err = q.MarkProcessing(cmd.CommandID)
	require.Error(t, err)
}

func TestCommandIDExistsInExactlyOneDirectory(t *testing.T) {
	q := New(t.TempDir(), nil)
	cmd, err := q.SendCommand(CommandResume, nil, 0)
	require.NoError(t, err)

	_, err = q.MarkProcessing(cmd.CommandID)
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(cmd.CommandID, "boom"))

	count := 0
	for _, dir := range q.dirs() {
		if _, err := q.readCommand(dir, cmd.CommandID); err == nil {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestCleanupOldCommandsDeletesAgedTerminalFiles(t *testing.T) {
	q := New(t.TempDir(), nil)
	cmd, err := q.SendCommand(CommandStop, nil, 0)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(cmd.CommandID, nil))

	old, err := q.readCommand(q.completedDir, cmd.CommandID)
	require.NoError(t, err)
	aged := old.CompletedAt.Add(-48 * time.Hour)
	old.CompletedAt = &aged
	require.NoError(t, q.writeCommand(q.completedDir, old))

	removed, err := q.CleanupOldCommands(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = q.GetCommandStatus(cmd.CommandID)
	require.Error(t, err)
}
