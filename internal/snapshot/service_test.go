package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reedfamily/reedcraft/internal/interact"
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

type fakeServer struct {
	mu      sync.Mutex
	running bool
}

func (f *fakeServer) Running(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, nil
}

// fakeCollector answers prompts in order; a nil answer simulates a timeout.
type fakeCollector struct {
	mu      sync.Mutex
	answers []*string
	prompts []interact.Prompt
}

func answer(s string) *string { return &s }

func (f *fakeCollector) CollectText(_ context.Context, _ interact.Requester, p interact.Prompt, _ time.Duration, fallback string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	if len(f.answers) == 0 {
		return fallback, nil
	}
	a := f.answers[0]
	f.answers = f.answers[1:]
	if a == nil {
		return fallback, nil
	}
	return *a, nil
}

type fakeGate struct {
	mu       sync.Mutex
	decision interact.Decision
	prompts  []interact.Prompt
}

func (f *fakeGate) Confirm(_ context.Context, _ interact.Requester, p interact.Prompt, _ time.Duration) (interact.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	return f.decision, nil
}

type fakeUploader struct {
	got      bytes.Buffer
	filename string
	err      error
}

func (f *fakeUploader) Upload(_ context.Context, _ interact.Requester, a Attachment) error {
	if f.err != nil {
		return f.err
	}
	f.filename = a.Filename
	_, err := f.got.ReadFrom(a.Body)
	return err
}

type testEnv struct {
	svc       *Service
	store     Store
	server    *fakeServer
	collector *fakeCollector
	gate      *fakeGate
	serverDir string
	snapDir   string
}

var alice = interact.Requester{UserID: 42, ChannelID: 7, Username: "alice"}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		store:     NewMemoryStore(),
		server:    &fakeServer{},
		collector: &fakeCollector{},
		gate:      &fakeGate{decision: interact.Confirmed},
		serverDir: filepath.Join(root, "server"),
		snapDir:   filepath.Join(root, "snapshots"),
	}
	archiver, err := NewArchiver(filepath.Join(root, "staging"), DefaultExclude)
	require.NoError(t, err)
	env.svc = NewService(Options{
		ServerDir:      env.serverDir,
		WorldDirs:      []string{"world", "world_nether", "world_the_end"},
		SnapshotDir:    env.snapDir,
		PromptTimeout:  time.Second,
		ConfirmTimeout: time.Second,
	}, env.store, archiver, env.server, env.collector, env.gate, WithClock(func() time.Time { return fixedNow }))
	writeFile(t, filepath.Join(env.serverDir, "world", "level.dat"), "X")
	return env
}

func (e *testEnv) create(t *testing.T, args ...string) Record {
	t.Helper()
	res := e.svc.Create(context.Background(), alice, args)
	require.Equal(t, StatusSucceeded, res.Status, res.Message)
	require.Len(t, res.Snapshots, 1)
	return res.Snapshots[0]
}

func (e *testEnv) records(t *testing.T) []Record {
	t.Helper()
	list, err := e.store.List(context.Background())
	require.NoError(t, err)
	return list
}

func TestParseCreateArgs(t *testing.T) {
	cases := []struct {
		args     []string
		name     string
		notes    string
		hasNotes bool
	}{
		{nil, "", "", false},
		{[]string{"Base", "build"}, "Base build", "", false},
		{[]string{"Base", "|", "before", "the", "update"}, "Base", "before the update", true},
		{[]string{"Base|"}, "Base", "", true},
		{[]string{"|", "only", "notes"}, "", "only notes", true},
	}
	for _, c := range cases {
		name, notes, hasNotes := ParseCreateArgs(c.args)
		assert.Equal(t, c.name, name)
		assert.Equal(t, c.notes, notes)
		assert.Equal(t, c.hasNotes, hasNotes)
	}
}

func TestCreateWithInlineArgs(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, "Alpha", "|", "first", "snapshot")

	assert.Equal(t, "Alpha", rec.Name)
	assert.Equal(t, "first snapshot", rec.Notes)
	assert.Regexp(t, `^snapshot-20260504-103000-[0-9a-f]{8}\.zip$`, rec.Filename)
	assert.FileExists(t, rec.Path)
	assert.Empty(t, env.collector.prompts)

	stored, err := env.store.FindByName(context.Background(), "Alpha")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)
	assert.Equal(t, rec.SizeBytes, stored.SizeBytes)
}

func TestCreateReportsSkippedDirs(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, filepath.Join(env.serverDir, "world_nether", "level.dat"), "nether")

	res := env.svc.Create(context.Background(), alice, []string{"Alpha|"})
	require.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, []string{`Skipped folder "world_the_end" as it does not exist.`}, res.Warnings)
}

func TestCreatePromptsAndFallsBack(t *testing.T) {
	env := newTestEnv(t)
	env.collector.answers = []*string{nil, nil}

	res := env.svc.Create(context.Background(), alice, nil)
	require.Equal(t, StatusSucceeded, res.Status)
	rec := res.Snapshots[0]
	assert.Equal(t, "Snapshot 1777890600", rec.Name)
	assert.Empty(t, rec.Notes)
	assert.Len(t, env.collector.prompts, 2)
	assert.Equal(t, []State{
		StateIdle, StateAwaitingName, StateAwaitingDescription, StateInProgress, StateSucceeded,
	}, res.Trail)
}

func TestCreatePromptedAnswers(t *testing.T) {
	env := newTestEnv(t)
	env.collector.answers = []*string{answer("  Castle  "), answer("before the siege")}

	rec := env.create(t)
	assert.Equal(t, "Castle", rec.Name)
	assert.Equal(t, "before the siege", rec.Notes)
}

func TestCreateRejectsDuplicateBeforeArchiving(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "Alpha|")
	before := dirEntries(t, env.snapDir)

	env.collector.answers = []*string{answer("Alpha")}
	res := env.svc.Create(context.Background(), alice, nil)
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrDuplicateName)
	assert.Len(t, env.collector.prompts, 1, "description is never asked for")
	assert.Equal(t, before, dirEntries(t, env.snapDir))
	assert.Len(t, env.records(t), 1)
}

func TestCreateRequiresStoppedServer(t *testing.T) {
	env := newTestEnv(t)
	env.server.running = true

	res := env.svc.Create(context.Background(), alice, nil)
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrServerBusy)
	assert.Empty(t, env.collector.prompts)
	assert.Empty(t, dirEntries(t, env.snapDir))
}

func TestCreateRequiresPrimaryWorld(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.RemoveAll(filepath.Join(env.serverDir, "world")))
	writeFile(t, filepath.Join(env.serverDir, "world_nether", "level.dat"), "nether")

	res := env.svc.Create(context.Background(), alice, []string{"Alpha|"})
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrNoWorldData)
	assert.Empty(t, dirEntries(t, env.snapDir))
	assert.Empty(t, env.records(t))
}

func TestConcurrentCreatesAreSerialized(t *testing.T) {
	env := newTestEnv(t)
	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = env.svc.Create(context.Background(), alice, []string{string(rune('A'+i)) + "|"})
		}(i)
	}
	wg.Wait()
	for _, res := range results {
		assert.Equal(t, StatusSucceeded, res.Status, res.Message)
	}
	assert.Len(t, env.records(t), 4)
	assert.Len(t, dirEntries(t, env.snapDir), 4)
}

func TestListPrunesMissingArchives(t *testing.T) {
	env := newTestEnv(t)
	keep := env.create(t, "Keep|")
	gone := env.create(t, "Gone|")
	require.NoError(t, os.Remove(gone.Path))

	res := env.svc.List(context.Background(), alice)
	require.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, 1, res.Pruned)
	require.Len(t, res.Snapshots, 1)
	assert.Equal(t, keep.ID, res.Snapshots[0].ID)

	res = env.svc.List(context.Background(), alice)
	assert.Equal(t, 0, res.Pruned)
	assert.Len(t, res.Snapshots, 1)
}

func TestListEmpty(t *testing.T) {
	env := newTestEnv(t)
	res := env.svc.List(context.Background(), alice)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Empty(t, res.Snapshots)
	assert.Equal(t, "No snapshots available.", res.Message)
}

func TestDeleteRemovesFileAndRecord(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, "Alpha|")

	res := env.svc.Delete(context.Background(), alice, "Alpha")
	require.Equal(t, StatusSucceeded, res.Status, res.Message)
	assert.NoFileExists(t, rec.Path)
	assert.Empty(t, env.records(t))
	require.Len(t, env.gate.prompts, 1)
	assert.Contains(t, env.gate.prompts[0].Body, `"Alpha"`)
}

func TestDeleteDeclinedOrTimedOutMutatesNothing(t *testing.T) {
	cases := map[interact.Decision]string{
		interact.Declined: "aborted",
		interact.TimedOut: "timed out",
	}
	for decision, word := range cases {
		t.Run(decision.String(), func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.create(t, "Alpha|")
			env.gate.decision = decision

			res := env.svc.Delete(context.Background(), alice, "Alpha")
			assert.Equal(t, StatusAborted, res.Status)
			assert.Contains(t, res.Message, word)
			assert.FileExists(t, rec.Path)
			assert.Len(t, env.records(t), 1)
			assert.Equal(t, StateAborted, res.Trail[len(res.Trail)-1])
		})
	}
}

func TestDeleteUnknownName(t *testing.T) {
	env := newTestEnv(t)
	res := env.svc.Delete(context.Background(), alice, "Nope")
	assert.ErrorIs(t, res.Err, ErrNotFound)
	assert.Empty(t, env.gate.prompts)

	res = env.svc.Delete(context.Background(), alice, "  ")
	assert.ErrorIs(t, res.Err, ErrNameRequired)
}

func TestDeleteKeepsRecordWhenFileRemovalFails(t *testing.T) {
	env := newTestEnv(t)
	// A non-empty directory cannot be removed with os.Remove.
	blocker := filepath.Join(env.snapDir, "stuck.zip")
	writeFile(t, filepath.Join(blocker, "inner"), "x")
	_, err := env.store.Insert(context.Background(), Record{Name: "Stuck", Filename: "stuck.zip", Path: blocker, CreatedAt: fixedNow})
	require.NoError(t, err)

	res := env.svc.Delete(context.Background(), alice, "Stuck")
	assert.Equal(t, StatusFailed, res.Status)
	var aerr *ArchiveError
	assert.ErrorAs(t, res.Err, &aerr)
	assert.Len(t, env.records(t), 1)
}

func TestDeleteWithMissingFileStillRemovesRecord(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, "Alpha|")
	require.NoError(t, os.Remove(rec.Path))

	res := env.svc.Delete(context.Background(), alice, "Alpha")
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Empty(t, env.records(t))
}

func TestRestoreTakesSafetySnapshotFirst(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "A|")
	world := filepath.Join(env.serverDir, "world")
	require.NoError(t, os.RemoveAll(world))
	writeFile(t, filepath.Join(world, "y.dat"), "Y")

	res := env.svc.Restore(context.Background(), alice, "A")
	require.Equal(t, StatusSucceeded, res.Status, res.Message)
	assert.Equal(t, "X", readFile(t, filepath.Join(world, "level.dat")))
	assert.NoFileExists(t, filepath.Join(world, "y.dat"))
	assert.Len(t, env.records(t), 2)

	safety, err := env.store.FindByName(context.Background(), "Pre-restore A 1777890600")
	require.NoError(t, err)
	entries := zipEntries(t, safety.Path)
	assert.Equal(t, "Y", entries["world/y.dat"])
	assert.NotContains(t, entries, "world/level.dat")
	assert.Contains(t, res.Message, "Pre-restore A")
	assert.Contains(t, res.Warnings, `Skipped folder "world_nether" as it was not found in the snapshot.`)
}

func TestRestoreReportsPartialSwap(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, filepath.Join(env.serverDir, "world_nether", "level.dat"), "X-nether")
	env.create(t, "A|")
	writeFile(t, filepath.Join(env.serverDir, "world_nether", "level.dat"), "Y-nether")
	env.svc.archiver.move = failMoveInto("world_nether")

	res := env.svc.Restore(context.Background(), alice, "A")
	assert.Equal(t, StatusFailed, res.Status)
	var aerr *ArchiveError
	require.ErrorAs(t, res.Err, &aerr)
	assert.Contains(t, res.Message, "Already replaced: world")
	assert.Equal(t, "Y-nether", readFile(t, filepath.Join(env.serverDir, "world_nether", "level.dat")))
	assert.Len(t, env.records(t), 2, "safety snapshot kept")
}

func TestRestoreWithoutLiveWorldSkipsSafetySnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "A|")
	require.NoError(t, os.RemoveAll(filepath.Join(env.serverDir, "world")))

	res := env.svc.Restore(context.Background(), alice, "A")
	require.Equal(t, StatusSucceeded, res.Status, res.Message)
	assert.Equal(t, "X", readFile(t, filepath.Join(env.serverDir, "world", "level.dat")))
	assert.Len(t, env.records(t), 1)
	assert.NotEmpty(t, res.Warnings)
}

func TestRestoreDeclinedMutatesNothing(t *testing.T) {
	for _, decision := range []interact.Decision{interact.Declined, interact.TimedOut} {
		t.Run(decision.String(), func(t *testing.T) {
			env := newTestEnv(t)
			env.create(t, "A|")
			writeFile(t, filepath.Join(env.serverDir, "world", "level.dat"), "Y")
			env.gate.decision = decision
			before := dirEntries(t, env.snapDir)

			res := env.svc.Restore(context.Background(), alice, "A")
			assert.Equal(t, StatusAborted, res.Status)
			assert.Equal(t, "Y", readFile(t, filepath.Join(env.serverDir, "world", "level.dat")))
			assert.Len(t, env.records(t), 1)
			assert.Equal(t, before, dirEntries(t, env.snapDir))
		})
	}
}

func TestRestoreRequiresStoppedServer(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "A|")
	env.server.running = true

	res := env.svc.Restore(context.Background(), alice, "A")
	assert.ErrorIs(t, res.Err, ErrServerBusy)
	assert.Empty(t, env.gate.prompts)
}

func TestRestoreMissingArchive(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, "A|")
	require.NoError(t, os.Remove(rec.Path))

	res := env.svc.Restore(context.Background(), alice, "A")
	assert.ErrorIs(t, res.Err, ErrFileMissing)
	assert.Len(t, env.records(t), 1, "no safety snapshot taken")
}

func TestDownloadStreamsArchive(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, "A|")
	up := &fakeUploader{}

	res := env.svc.Download(context.Background(), alice, "A", up)
	require.Equal(t, StatusSucceeded, res.Status)
	want, err := os.ReadFile(rec.Path)
	require.NoError(t, err)
	assert.Equal(t, want, up.got.Bytes())
	assert.Equal(t, rec.Filename, up.filename)
}

type blockingUploader struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingUploader) Upload(ctx context.Context, _ interact.Requester, a Attachment) error {
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	_, err := io.Copy(io.Discard, a.Body)
	return err
}

func TestStalledDownloadDoesNotBlockOtherOperations(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, "A|")
	up := &blockingUploader{started: make(chan struct{}), release: make(chan struct{})}

	done := make(chan Result, 1)
	go func() { done <- env.svc.Download(context.Background(), alice, "A", up) }()
	select {
	case <-up.started:
	case <-time.After(2 * time.Second):
		t.Fatal("upload never started")
	}

	listed := make(chan Result, 1)
	go func() { listed <- env.svc.List(context.Background(), alice) }()
	select {
	case res := <-listed:
		assert.Equal(t, StatusSucceeded, res.Status)
		assert.Len(t, res.Snapshots, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("list blocked behind an upload in progress")
	}

	// the open handle outlives the unlink
	res := env.svc.Delete(context.Background(), alice, "A")
	require.Equal(t, StatusSucceeded, res.Status, res.Message)
	assert.NoFileExists(t, rec.Path)

	close(up.release)
	select {
	case res := <-done:
		assert.Equal(t, StatusSucceeded, res.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("download did not finish")
	}
}

func TestDownloadMissingFileDoesNotPrune(t *testing.T) {
	env := newTestEnv(t)
	rec := env.create(t, "A|")
	require.NoError(t, os.Remove(rec.Path))

	res := env.svc.Download(context.Background(), alice, "A", &fakeUploader{})
	assert.ErrorIs(t, res.Err, ErrFileMissing)
	assert.Len(t, env.records(t), 1)
}

func TestDownloadUploadFailure(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "A|")

	res := env.svc.Download(context.Background(), alice, "A", &fakeUploader{err: errors.New("too large")})
	var uerr *UploadError
	require.ErrorAs(t, res.Err, &uerr)
	assert.Equal(t, "A", uerr.Name)
	assert.NotErrorIs(t, res.Err, ErrNotFound)

	res = env.svc.Download(context.Background(), alice, "B", &fakeUploader{})
	assert.ErrorIs(t, res.Err, ErrNotFound)
	assert.False(t, errors.As(res.Err, &uerr))
}

func TestHandleRoutesInvocations(t *testing.T) {
	env := newTestEnv(t)
	res := env.svc.Handle(context.Background(), Invocation{Action: ActionCreate, Requester: alice, Args: []string{"A|"}})
	require.Equal(t, StatusSucceeded, res.Status)

	res = env.svc.Handle(context.Background(), Invocation{Action: ActionList, Requester: alice})
	assert.Equal(t, ActionList, res.Action)
	assert.Len(t, res.Snapshots, 1)

	res = env.svc.Handle(context.Background(), Invocation{Action: "rename", Requester: alice})
	assert.Equal(t, StatusFailed, res.Status)

	_, err := ParseAction("RESTORE")
	assert.NoError(t, err)
	_, err = ParseAction("rename")
	assert.Error(t, err)
}

type recordingRecorder struct {
	mu   sync.Mutex
	ops  []string
	size []int64
}

func (r *recordingRecorder) ObserveOperation(action, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, action+":"+status)
}

func (r *recordingRecorder) ObserveArchiveSize(b int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.size = append(r.size, b)
}

func (r *recordingRecorder) AddPruned(int) {}

func TestServiceRecordsMetrics(t *testing.T) {
	env := newTestEnv(t)
	rec := &recordingRecorder{}
	WithRecorder(rec)(env.svc)

	env.create(t, "A|")
	env.svc.Delete(context.Background(), alice, "missing")
	assert.Equal(t, []string{"create:succeeded", "delete:failed"}, rec.ops)
	require.Len(t, rec.size, 1)
	assert.Positive(t, rec.size[0])
}
