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
	"syscall"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"
)

// DefaultExclude lists files the server holds open while running.
var DefaultExclude = []string{"session.lock"}

type ArchiveResult struct {
	FinalPath   string
	SizeBytes   int64
	SkippedDirs []string
}

type RestoreResult struct {
	// Replaced holds the target directories already swapped in, in order.
	Replaced    []string
	SkippedDirs []string
}

// Archiver packs world directories into zip archives and unpacks them back.
// Every call works inside its own directory under the staging root.
type Archiver struct {
	stagingRoot string
	exclude     []glob.Glob
	move        func(src, dst string) error
}

func NewArchiver(stagingRoot string, exclude []string) (*Archiver, error) {
	a := &Archiver{stagingRoot: stagingRoot, move: moveDir}
	for _, p := range exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", p, err)
		}
		a.exclude = append(a.exclude, g)
	}
	return a, nil
}

func (a *Archiver) excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	base := rel[strings.LastIndex(rel, "/")+1:]
	for _, g := range a.exclude {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}

func (a *Archiver) newStagingDir(kind string) (string, error) {
	dir := filepath.Join(a.stagingRoot, kind+"-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &ArchiveError{Op: "stage", Path: dir, Err: err}
	}
	return dir, nil
}

// CreateArchive copies every existing source directory into a staging area
// and compresses it to destPath. The first directory is mandatory; missing
// later ones are reported in SkippedDirs. destPath only appears once the
// archive is complete.
func (a *Archiver) CreateArchive(ctx context.Context, sourceDirs []string, destPath string) (*ArchiveResult, error) {
	if len(sourceDirs) == 0 {
		return nil, fmt.Errorf("%w: no world directories configured", ErrNoWorldData)
	}
	if !dirExists(sourceDirs[0]) {
		return nil, fmt.Errorf("%w: %s", ErrNoWorldData, sourceDirs[0])
	}

	staging, err := a.newStagingDir("create")
	if err != nil {
		return nil, err
	}
	defer removeStaging(staging)

	result := &ArchiveResult{}
	for _, src := range sourceDirs {
		name := filepath.Base(src)
		if !dirExists(src) {
			result.SkippedDirs = append(result.SkippedDirs, name)
			continue
		}
		if err := a.copyTree(ctx, src, filepath.Join(staging, name)); err != nil {
			return nil, &ArchiveError{Op: "copy", Path: src, Err: err}
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, &ArchiveError{Op: "mkdir", Path: filepath.Dir(destPath), Err: err}
	}
	partial := destPath + ".partial"
	if err := writeZip(ctx, staging, partial); err != nil {
		os.Remove(partial)
		return nil, &ArchiveError{Op: "compress", Path: destPath, Err: err}
	}
	if err := os.Rename(partial, destPath); err != nil {
		os.Remove(partial)
		return nil, &ArchiveError{Op: "finalize", Path: destPath, Err: err}
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return nil, &ArchiveError{Op: "stat", Path: destPath, Err: err}
	}
	result.FinalPath = destPath
	result.SizeBytes = info.Size()
	return result, nil
}

// RestoreArchive unpacks archivePath and replaces each target directory with
// its unpacked counterpart. Everything is unpacked before the first swap. On a
// failed swap the returned result names the directories already replaced.
func (a *Archiver) RestoreArchive(ctx context.Context, archivePath string, targetDirs []string) (*RestoreResult, error) {
	if len(targetDirs) == 0 {
		return nil, fmt.Errorf("%w: no world directories configured", ErrCorruptArchive)
	}

	staging, err := a.newStagingDir("restore")
	if err != nil {
		return nil, err
	}
	defer removeStaging(staging)

	if err := extractZip(ctx, archivePath, staging); err != nil {
		return nil, &ArchiveError{Op: "decompress", Path: archivePath, Err: err}
	}
	if !dirExists(filepath.Join(staging, filepath.Base(targetDirs[0]))) {
		return nil, fmt.Errorf("%w: %s", ErrCorruptArchive, filepath.Base(targetDirs[0]))
	}

	result := &RestoreResult{}
	type swap struct {
		staged, target string
	}
	var plan []swap
	for _, target := range targetDirs {
		name := filepath.Base(target)
		staged := filepath.Join(staging, name)
		if !dirExists(staged) {
			result.SkippedDirs = append(result.SkippedDirs, name)
			continue
		}
		plan = append(plan, swap{staged: staged, target: target})
	}

	var asides []string
	for _, s := range plan {
		if err := ctx.Err(); err != nil {
			return result, &ArchiveError{Op: "swap", Path: s.target, Err: err}
		}
		aside := ""
		if pathExists(s.target) {
			aside = s.target + ".old-" + uuid.New().String()[:8]
			if err := os.Rename(s.target, aside); err != nil {
				return result, &ArchiveError{Op: "swap", Path: s.target, Err: err}
			}
		}
		if err := a.move(s.staged, s.target); err != nil {
			if aside != "" {
				os.RemoveAll(s.target)
				if rerr := os.Rename(aside, s.target); rerr != nil {
					log.Error().Err(rerr).Str("dir", s.target).Str("aside", aside).Msg("could not put live directory back")
				}
			}
			return result, &ArchiveError{Op: "swap", Path: s.target, Err: err}
		}
		if aside != "" {
			asides = append(asides, aside)
		}
		result.Replaced = append(result.Replaced, filepath.Base(s.target))
	}

	for _, aside := range asides {
		if err := os.RemoveAll(aside); err != nil {
			log.Warn().Err(err).Str("dir", aside).Msg("failed to remove replaced world directory")
		}
	}
	return result, nil
}

func (a *Archiver) copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel != "." && a.excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeZip(ctx context.Context, srcDir, dest string) (err error) {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil || rel == "." {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			header.Name += "/"
			_, err := zw.CreateHeader(header)
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		header.Method = zip.Deflate
		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})
	if walkErr != nil {
		zw.Close()
		return walkErr
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func extractZip(ctx context.Context, archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(destDir, filepath.FromSlash(f.Name))
		rel, err := filepath.Rel(destDir, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("illegal entry path %q", f.Name)
		}
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// moveDir renames src to dst, copying across filesystems when rename cannot.
func moveDir(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyPlain(src, dst); err != nil {
		os.RemoveAll(dst)
		return err
	}
	return os.RemoveAll(src)
}

func copyPlain(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func removeStaging(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("failed to remove staging directory")
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return !errors.Is(err, fs.ErrNotExist)
	}
	return info.Mode().IsRegular()
}
