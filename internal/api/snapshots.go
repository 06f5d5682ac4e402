package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/reedfamily/reedcraft/internal/interact"
	"github.com/reedfamily/reedcraft/internal/snapshot"
)

type SnapshotService interface {
	List(ctx context.Context, who interact.Requester) snapshot.Result
	Download(ctx context.Context, who interact.Requester, name string, up snapshot.Uploader) snapshot.Result
}

var apiRequester = interact.Requester{Username: "api"}

type SnapshotHandler struct {
	snapshots SnapshotService
}

func NewSnapshotHandler(s SnapshotService) *SnapshotHandler {
	return &SnapshotHandler{snapshots: s}
}

type snapshotView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	SizeMB    float64   `json:"size_mb"`
	CreatedAt time.Time `json:"created_at"`
	Notes     string    `json:"notes"`
}

type listResponse struct {
	Snapshots []snapshotView `json:"snapshots"`
	Pruned    int            `json:"pruned"`
}

// List returns the catalog, pruning entries whose archive is gone.
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	res := h.snapshots.List(r.Context(), apiRequester)
	if res.Status != snapshot.StatusSucceeded {
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	out := listResponse{Snapshots: make([]snapshotView, 0, len(res.Snapshots)), Pruned: res.Pruned}
	for _, rec := range res.Snapshots {
		out.Snapshots = append(out.Snapshots, snapshotView{
			ID:        rec.ID,
			Name:      rec.Name,
			Filename:  rec.Filename,
			SizeBytes: rec.SizeBytes,
			SizeMB:    rec.SizeMB(),
			CreatedAt: rec.CreatedAt,
			Notes:     rec.Notes,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Download streams a snapshot archive by display name.
func (h *SnapshotHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	up := &responseUploader{w: w}
	res := h.snapshots.Download(r.Context(), apiRequester, name, up)
	if res.Status == snapshot.StatusSucceeded {
		return
	}
	if up.started {
		log.Warn().Err(res.Err).Str("snapshot", name).Msg("download interrupted")
		return
	}
	switch {
	case errors.Is(res.Err, snapshot.ErrNotFound):
		writeError(w, http.StatusNotFound, "snapshot not found")
	case errors.Is(res.Err, snapshot.ErrFileMissing):
		writeError(w, http.StatusGone, "snapshot archive is missing")
	case errors.Is(res.Err, snapshot.ErrNameRequired):
		writeError(w, http.StatusBadRequest, "snapshot name required")
	default:
		writeError(w, http.StatusInternalServerError, "failed to read snapshot")
	}
}

// responseUploader writes the archive as the HTTP response body.
type responseUploader struct {
	w       http.ResponseWriter
	started bool
}

func (u *responseUploader) Upload(_ context.Context, _ interact.Requester, a snapshot.Attachment) error {
	u.started = true
	h := u.w.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	h.Set("Content-Length", strconv.FormatInt(a.Size, 10))
	u.w.WriteHeader(http.StatusOK)
	_, err := io.Copy(u.w, a.Body)
	return err
}
