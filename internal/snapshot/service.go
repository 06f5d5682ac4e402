package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/reedfamily/reedcraft/internal/interact"
)

type Action string

const (
	ActionList     Action = "list"
	ActionCreate   Action = "create"
	ActionDelete   Action = "delete"
	ActionRestore  Action = "restore"
	ActionDownload Action = "download"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(s)); a {
	case ActionList, ActionCreate, ActionDelete, ActionRestore, ActionDownload:
		return a, nil
	}
	return "", fmt.Errorf("unknown snapshot action %q", s)
}

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Result is what an operation reports back to the command router.
type Result struct {
	Action    Action
	Status    Status
	Title     string
	Message   string
	Warnings  []string
	Snapshots []Record
	Pruned    int
	// Silent marks a success the router should not announce.
	Silent bool
	Err    error
	Trail  []State
}

// Invocation is one routed snapshot command.
type Invocation struct {
	Action    Action
	Requester interact.Requester
	Args      []string
	Uploader  Uploader
}

// ServerState reports whether the game server is running.
type ServerState interface {
	Running(ctx context.Context) (bool, error)
}

type Collector interface {
	CollectText(ctx context.Context, who interact.Requester, p interact.Prompt, timeout time.Duration, fallback string) (string, error)
}

type Gate interface {
	Confirm(ctx context.Context, who interact.Requester, p interact.Prompt, timeout time.Duration) (interact.Decision, error)
}

// Attachment is an archive handed to an Uploader.
type Attachment struct {
	Name     string
	Filename string
	Size     int64
	Body     io.Reader
}

type Uploader interface {
	Upload(ctx context.Context, who interact.Requester, a Attachment) error
}

// Recorder receives operation metrics.
type Recorder interface {
	ObserveOperation(action, status string, elapsed time.Duration)
	ObserveArchiveSize(bytes int64)
	AddPruned(n int)
}

// Publisher receives operation events.
type Publisher interface {
	Publish(kind string, payload any)
}

type Options struct {
	// ServerDir holds the world directories.
	ServerDir string
	// WorldDirs are directory names under ServerDir; the first is the primary world.
	WorldDirs      []string
	SnapshotDir    string
	PromptTimeout  time.Duration
	ConfirmTimeout time.Duration
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service runs snapshot operations. Mutating phases are serialized; prompts
// and confirmations happen before the lock is taken.
type Service struct {
	opts      Options
	store     Store
	archiver  *Archiver
	server    ServerState
	collector Collector
	gate      Gate
	metrics   Recorder
	events    Publisher
	now       func() time.Time
	sem       *semaphore.Weighted
}

func NewService(opts Options, store Store, archiver *Archiver, server ServerState, collector Collector, gate Gate, options ...Option) *Service {
	if opts.PromptTimeout <= 0 {
		opts.PromptTimeout = 120 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 120 * time.Second
	}
	s := &Service{
		opts:      opts,
		store:     store,
		archiver:  archiver,
		server:    server,
		collector: collector,
		gate:      gate,
		metrics:   nopRecorder{},
		events:    nopPublisher{},
		now:       time.Now,
		sem:       semaphore.NewWeighted(1),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Handle routes an invocation to its operation.
func (s *Service) Handle(ctx context.Context, inv Invocation) Result {
	name := strings.TrimSpace(strings.Join(inv.Args, " "))
	switch inv.Action {
	case ActionList:
		return s.List(ctx, inv.Requester)
	case ActionCreate:
		return s.Create(ctx, inv.Requester, inv.Args)
	case ActionDelete:
		return s.Delete(ctx, inv.Requester, name)
	case ActionRestore:
		return s.Restore(ctx, inv.Requester, name)
	case ActionDownload:
		return s.Download(ctx, inv.Requester, name, inv.Uploader)
	}
	r := newRun(inv.Action, inv.Requester)
	return s.fail(r, fmt.Errorf("unknown snapshot action %q", inv.Action), "❓ Unknown Action", "Use list, create, delete, restore or download.")
}

func (s *Service) worldPaths() []string {
	paths := make([]string, len(s.opts.WorldDirs))
	for i, d := range s.opts.WorldDirs {
		paths[i] = filepath.Join(s.opts.ServerDir, d)
	}
	return paths
}

func (s *Service) primaryWorld() string {
	if len(s.opts.WorldDirs) == 0 {
		return ""
	}
	return filepath.Join(s.opts.ServerDir, s.opts.WorldDirs[0])
}

func (s *Service) archiveFilename() string {
	return fmt.Sprintf("snapshot-%s-%s.zip", s.now().Format("20060102-150405"), uuid.New().String()[:8])
}

// ParseCreateArgs splits "name | description". hasNotes reports whether a
// separator was present, in which case an empty description is deliberate.
func ParseCreateArgs(args []string) (name, notes string, hasNotes bool) {
	joined := strings.Join(args, " ")
	if before, after, found := strings.Cut(joined, "|"); found {
		return strings.TrimSpace(before), strings.TrimSpace(after), true
	}
	return strings.TrimSpace(joined), "", false
}

func (s *Service) List(ctx context.Context, who interact.Requester) Result {
	r := newRun(ActionList, who)
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return s.fail(r, err, "❌ Listing Failed", "The request was cancelled.")
	}
	defer s.sem.Release(1)
	r.advance(StateInProgress)

	records, err := s.store.List(ctx)
	if err != nil {
		return s.fail(r, err, "❌ Listing Failed", "Could not read the snapshot catalog.")
	}

	live := make([]Record, 0, len(records))
	var stale []int64
	for _, rec := range records {
		if fileExists(rec.Path) {
			live = append(live, rec)
			continue
		}
		r.logger.Warn().Str("snapshot", rec.Name).Str("path", rec.Path).Msg("archive missing, pruning record")
		stale = append(stale, rec.ID)
	}

	res := Result{Title: "📸 World Snapshots", Snapshots: live}
	if len(stale) > 0 {
		if err := s.store.Prune(ctx, stale); err != nil {
			r.logger.Error().Err(err).Msg("failed to prune stale records")
			res.Warnings = append(res.Warnings, "Some snapshot files are missing but their entries could not be removed.")
		} else {
			res.Pruned = len(stale)
			s.metrics.AddPruned(len(stale))
		}
	}
	if len(live) == 0 {
		res.Message = "No snapshots available."
	}
	return s.succeed(r, res)
}

func (s *Service) Create(ctx context.Context, who interact.Requester, args []string) Result {
	r := newRun(ActionCreate, who)
	if res, ok := s.checkCreatePreconditions(ctx, r); !ok {
		return res
	}

	name, notes, hasNotes := ParseCreateArgs(args)
	if name == "" {
		r.advance(StateAwaitingName)
		fallback := fmt.Sprintf("Snapshot %d", s.now().Unix())
		answer, err := s.collector.CollectText(ctx, who, interact.Prompt{
			Title: "📝 Snapshot Creation",
			Body:  "Please provide a name for this snapshot.",
		}, s.opts.PromptTimeout, fallback)
		if err != nil {
			return s.fail(r, err, "❌ Snapshot Failed!", "Could not collect a snapshot name.")
		}
		if name = strings.TrimSpace(answer); name == "" {
			name = fallback
		}
	}
	r.withSnapshot(name)

	if res, ok := s.checkNameFree(ctx, r, name); !ok {
		return res
	}

	if !hasNotes {
		r.advance(StateAwaitingDescription)
		answer, err := s.collector.CollectText(ctx, who, interact.Prompt{
			Title: "📝 Snapshot Creation",
			Body:  "Please provide a description for this snapshot.",
		}, s.opts.PromptTimeout, "")
		if err != nil {
			return s.fail(r, err, "❌ Snapshot Failed!", "Could not collect a snapshot description.")
		}
		notes = answer
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return s.fail(r, err, "❌ Snapshot Failed!", "The request was cancelled.")
	}
	defer s.sem.Release(1)
	return s.createLocked(ctx, r, name, notes, false)
}

// createLocked archives the world and records it. The caller holds the lock.
func (s *Service) createLocked(ctx context.Context, r *run, name, notes string, silent bool) Result {
	r.advance(StateInProgress)
	if res, ok := s.checkCreatePreconditions(ctx, r); !ok {
		return res
	}
	if res, ok := s.checkNameFree(ctx, r, name); !ok {
		return res
	}

	filename := s.archiveFilename()
	archived, err := s.archiver.CreateArchive(ctx, s.worldPaths(), filepath.Join(s.opts.SnapshotDir, filename))
	if err != nil {
		if errors.Is(err, ErrNoWorldData) {
			return s.fail(r, err, "🌍 Out of this world!", "The main world folder does not exist. Aborting snapshot creation.")
		}
		return s.fail(r, err, "❌ Snapshot Failed!", fmt.Sprintf("Failed to create snapshot: %v", err))
	}

	rec := Record{
		Filename:  filename,
		Name:      name,
		Path:      archived.FinalPath,
		SizeBytes: archived.SizeBytes,
		CreatedAt: s.now().UTC(),
		Notes:     notes,
	}
	id, err := s.store.Insert(ctx, rec)
	if err != nil {
		if rerr := os.Remove(archived.FinalPath); rerr != nil {
			r.logger.Error().Err(rerr).Str("path", archived.FinalPath).Msg("failed to remove orphaned archive")
		}
		if errors.Is(err, ErrDuplicateName) {
			return s.fail(r, err, "❌ Name Taken", fmt.Sprintf(`A snapshot with the name "%s" already exists.`, name))
		}
		return s.fail(r, err, "❌ Snapshot Failed!", "The archive was written but could not be recorded.")
	}
	rec.ID = id
	s.metrics.ObserveArchiveSize(rec.SizeBytes)

	res := Result{
		Title:     "✅ Snapshot Created!",
		Message:   fmt.Sprintf(`Snapshot "%s" created successfully.`, name),
		Snapshots: []Record{rec},
		Silent:    silent,
	}
	for _, dir := range archived.SkippedDirs {
		res.Warnings = append(res.Warnings, fmt.Sprintf(`Skipped folder "%s" as it does not exist.`, dir))
	}
	return s.succeed(r, res)
}

func (s *Service) Delete(ctx context.Context, who interact.Requester, name string) Result {
	r := newRun(ActionDelete, who)
	rec, res, ok := s.resolve(ctx, r, name)
	if !ok {
		return res
	}

	r.advance(StateAwaitingConfirmation)
	decision, err := s.gate.Confirm(ctx, who, interact.Prompt{
		Title: "⚠️ Snapshot Deletion",
		Body:  fmt.Sprintf(`Are you sure you want to delete the snapshot "%s"?`, rec.Name),
	}, s.opts.ConfirmTimeout)
	if err != nil {
		return s.fail(r, err, "❌ Deletion Failed", "Could not ask for confirmation.")
	}
	switch decision {
	case interact.TimedOut:
		return s.abort(r, fmt.Sprintf(`Snapshot deletion process timed out for "%s".`, rec.Name))
	case interact.Declined:
		return s.abort(r, fmt.Sprintf(`Snapshot deletion process aborted for "%s".`, rec.Name))
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return s.fail(r, err, "❌ Deletion Failed", "The request was cancelled.")
	}
	defer s.sem.Release(1)
	r.advance(StateInProgress)

	current, res, ok := s.resolve(ctx, r, rec.Name)
	if !ok {
		return res
	}
	if current.ID != rec.ID {
		return s.fail(r, ErrNotFound, "❌ Not Found", fmt.Sprintf(`Snapshot "%s" changed while waiting for confirmation.`, rec.Name))
	}

	if err := os.Remove(current.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		aerr := &ArchiveError{Op: "delete", Path: current.Path, Err: err}
		return s.fail(r, aerr, "❌ Deletion Failed", fmt.Sprintf(`Could not delete the archive for "%s"; the snapshot was kept.`, rec.Name))
	}
	if err := s.store.Delete(ctx, current.ID); err != nil {
		return s.fail(r, err, "❌ Deletion Failed", fmt.Sprintf(`The archive for "%s" was removed but its entry could not be deleted.`, rec.Name))
	}

	return s.succeed(r, Result{
		Title:   "🗑️ Snapshot Deleted",
		Message: fmt.Sprintf(`Snapshot "%s" has been deleted.`, rec.Name),
	})
}

func (s *Service) Restore(ctx context.Context, who interact.Requester, name string) Result {
	r := newRun(ActionRestore, who)
	if res, ok := s.checkStopped(ctx, r); !ok {
		return res
	}
	rec, res, ok := s.resolve(ctx, r, name)
	if !ok {
		return res
	}

	r.advance(StateAwaitingConfirmation)
	decision, err := s.gate.Confirm(ctx, who, interact.Prompt{
		Title: "🛠️ Restore Snapshot",
		Body: fmt.Sprintf("Are you sure you want to restore the snapshot \"%s\"?\n"+
			"This will create a new snapshot before restoring and overwrite the current world data.", rec.Name),
	}, s.opts.ConfirmTimeout)
	if err != nil {
		return s.fail(r, err, "❌ Restore Failed", "Could not ask for confirmation.")
	}
	switch decision {
	case interact.TimedOut:
		return s.abort(r, fmt.Sprintf(`Snapshot restore process timed out for "%s".`, rec.Name))
	case interact.Declined:
		return s.abort(r, fmt.Sprintf(`Snapshot restore process aborted for "%s".`, rec.Name))
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return s.fail(r, err, "❌ Restore Failed", "The request was cancelled.")
	}
	defer s.sem.Release(1)
	r.advance(StateInProgress)

	if res, ok := s.checkStopped(ctx, r); !ok {
		return res
	}
	rec, res, ok = s.resolve(ctx, r, rec.Name)
	if !ok {
		return res
	}
	if !fileExists(rec.Path) {
		return s.fail(r, ErrFileMissing, "❌ Restore Failed", fmt.Sprintf(`The archive for "%s" is missing.`, rec.Name))
	}

	var warnings []string
	safetyNote := ""
	if dirExists(s.primaryWorld()) {
		safetyName := fmt.Sprintf("Pre-restore %s %d", rec.Name, s.now().Unix())
		safety := s.createLocked(ctx, newRun(ActionCreate, who), safetyName,
			fmt.Sprintf(`Automatic snapshot taken before restoring "%s".`, rec.Name), true)
		if safety.Status != StatusSucceeded {
			return s.fail(r, safety.Err, "❌ Restore Aborted",
				fmt.Sprintf("Could not create a safety snapshot, nothing was restored: %s", safety.Message))
		}
		warnings = append(warnings, safety.Warnings...)
		safetyNote = fmt.Sprintf("\nThe previous world was saved as \"%s\".", safetyName)
	} else {
		warnings = append(warnings, "No live world data was found, so no safety snapshot was taken.")
	}

	restored, err := s.archiver.RestoreArchive(ctx, rec.Path, s.worldPaths())
	if err != nil {
		if errors.Is(err, ErrCorruptArchive) {
			return s.fail(r, err, "🌍 Out of this world!", "The main world folder is missing from the snapshot. Aborting restore.")
		}
		msg := fmt.Sprintf("Failed to restore snapshot: %v", err)
		if restored != nil && len(restored.Replaced) > 0 {
			msg += fmt.Sprintf("\nAlready replaced: %s", strings.Join(restored.Replaced, ", "))
		}
		return s.fail(r, err, "❌ Restore Failed", msg)
	}
	for _, dir := range restored.SkippedDirs {
		warnings = append(warnings, fmt.Sprintf(`Skipped folder "%s" as it was not found in the snapshot.`, dir))
	}

	return s.succeed(r, Result{
		Title:    "✅ Snapshot Restored!",
		Message:  fmt.Sprintf(`Snapshot "%s" has been successfully restored.`, rec.Name) + safetyNote,
		Warnings: warnings,
	})
}

// Download streams the archive to up. It never touches the catalog. The lock
// covers opening the archive only; the upload reads from the open handle.
func (s *Service) Download(ctx context.Context, who interact.Requester, name string, up Uploader) Result {
	r := newRun(ActionDownload, who)
	if up == nil {
		return s.fail(r, errors.New("no uploader"), "❌ Snapshot Upload Failed!", "Downloads are not available here.")
	}
	rec, res, ok := s.resolve(ctx, r, name)
	if !ok {
		return res
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return s.fail(r, err, "❌ Snapshot Upload Failed!", "The request was cancelled.")
	}
	r.advance(StateInProgress)
	f, err := os.Open(rec.Path)
	s.sem.Release(1)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.fail(r, ErrFileMissing, "❌ File Not Found", fmt.Sprintf(`Snapshot file for "%s" not found.`, rec.Name))
		}
		return s.fail(r, &ArchiveError{Op: "open", Path: rec.Path, Err: err}, "❌ Snapshot Upload Failed!", "Could not open the snapshot archive.")
	}
	defer f.Close()

	size := rec.SizeBytes
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	err = up.Upload(ctx, who, Attachment{Name: rec.Name, Filename: rec.Filename, Size: size, Body: f})
	if err != nil {
		uerr := &UploadError{Name: rec.Name, Err: err}
		return s.fail(r, uerr, "❌ Snapshot Upload Failed!", fmt.Sprintf(`Failed to upload snapshot "%s": %v`, rec.Name, err))
	}
	return s.succeed(r, Result{
		Title:   "☁️ Snapshot Uploaded",
		Message: fmt.Sprintf(`Snapshot "%s" has been successfully uploaded.`, rec.Name),
	})
}

func (s *Service) resolve(ctx context.Context, r *run, name string) (Record, Result, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Record{}, s.fail(r, ErrNameRequired, "❓ Missing Name", "You must provide a snapshot name."), false
	}
	r.withSnapshot(name)
	rec, err := s.store.FindByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return Record{}, s.fail(r, err, "❌ Not Found", fmt.Sprintf(`Snapshot with the name "%s" not found.`, name)), false
	}
	if err != nil {
		return Record{}, s.fail(r, err, "❌ Catalog Error", "Could not read the snapshot catalog."), false
	}
	return rec, Result{}, true
}

func (s *Service) checkStopped(ctx context.Context, r *run) (Result, bool) {
	running, err := s.server.Running(ctx)
	if err != nil {
		return s.fail(r, err, "❌ Server State Unknown", "Could not determine whether the server is running."), false
	}
	if running {
		return s.fail(r, ErrServerBusy, "⚠️ Server Running", "The server must be stopped first."), false
	}
	return Result{}, true
}

func (s *Service) checkCreatePreconditions(ctx context.Context, r *run) (Result, bool) {
	if res, ok := s.checkStopped(ctx, r); !ok {
		return res, false
	}
	if !dirExists(s.primaryWorld()) {
		return s.fail(r, ErrNoWorldData, "🌍 Out of this world!", "The main world folder does not exist. Aborting snapshot creation."), false
	}
	return Result{}, true
}

func (s *Service) checkNameFree(ctx context.Context, r *run, name string) (Result, bool) {
	_, err := s.store.FindByName(ctx, name)
	switch {
	case err == nil:
		return s.fail(r, ErrDuplicateName, "❌ Name Taken", fmt.Sprintf(`A snapshot with the name "%s" already exists.`, name)), false
	case !errors.Is(err, ErrNotFound):
		return s.fail(r, err, "❌ Catalog Error", "Could not read the snapshot catalog."), false
	}
	return Result{}, true
}

func (s *Service) succeed(r *run, res Result) Result {
	r.advance(StateSucceeded)
	res.Status = StatusSucceeded
	return s.finish(r, res)
}

func (s *Service) fail(r *run, err error, title, msg string) Result {
	r.advance(StateFailed)
	return s.finish(r, Result{Status: StatusFailed, Title: title, Message: msg, Err: err})
}

func (s *Service) abort(r *run, msg string) Result {
	r.advance(StateAborted)
	return s.finish(r, Result{Status: StatusAborted, Title: "🚫 Aborted", Message: msg})
}

func (s *Service) finish(r *run, res Result) Result {
	res.Action = r.action
	res.Trail = r.trail
	elapsed := time.Since(r.started)
	s.metrics.ObserveOperation(string(r.action), string(res.Status), elapsed)

	switch res.Status {
	case StatusSucceeded:
		r.logger.Info().Dur("elapsed", elapsed).Int("warnings", len(res.Warnings)).Msg("snapshot operation succeeded")
	case StatusAborted:
		r.logger.Info().Str("reason", res.Message).Msg("snapshot operation aborted")
	default:
		ev := r.logger.Warn()
		var aerr *ArchiveError
		var serr *StoreError
		var uerr *UploadError
		if errors.As(res.Err, &aerr) || errors.As(res.Err, &serr) || errors.As(res.Err, &uerr) {
			ev = r.logger.Error()
		}
		ev.Err(res.Err).Msg("snapshot operation failed")
	}
	if res.Status != StatusSucceeded || r.action != ActionList {
		s.events.Publish("snapshot."+string(r.action), map[string]any{
			"status":    res.Status,
			"title":     res.Title,
			"message":   res.Message,
			"snapshots": res.Snapshots,
		})
	}
	return res
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration) {}
func (nopRecorder) ObserveArchiveSize(int64)                       {}
func (nopRecorder) AddPruned(int)                                  {}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}
