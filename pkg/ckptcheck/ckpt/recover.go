package ckpt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt/catalog"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/config"
)

// Recover restores the protected regions from this process's latest
// checkpoint. Regions are decoded in id order using their current sizes, so
// a caller whose region sizes depend on recovered values recovers twice:
// once to learn the sizes, once more after protecting the resized regions.
// Bytes beyond the registered regions are ignored.
func (s *Session) Recover(ctx context.Context) error {
	if s.isHead {
		return ErrHeadProcess
	}
	if s.status != StatusPending {
		return ErrNothingToRecover
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rec, err := s.loadRecord(s.app.Rank())
	if err != nil {
		return fmt.Errorf("load checkpoint record: %w", err)
	}

	f, err := s.fs.Open(rec.Path)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	// Some file systems report a short ReadAt without an error.
	payload := make([]byte, rec.Size)
	if _, err := io.ReadFull(io.NewSectionReader(f, rec.Offset, rec.Size), payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %s holds fewer than %d bytes at offset %d",
				ErrCorruptCheckpoint, rec.Path, rec.Size, rec.Offset)
		}
		return fmt.Errorf("read checkpoint: %w", err)
	}

	if err := rec.Digest.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptCheckpoint, err)
	}
	v := rec.Digest.Verifier()
	_, _ = v.Write(payload)
	if !v.Verified() {
		return fmt.Errorf("%w: %s", ErrCorruptCheckpoint, rec.Path)
	}

	if err := s.decode(payload); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Debug("checkpoint recovered",
			slog.Int("checkpoint_id", rec.Sequence),
			slog.String("path", rec.Path),
			slog.Int64("bytes", rec.Size),
		)
	}
	return nil
}

func (s *Session) decode(payload []byte) error {
	ids := make([]int, 0, len(s.regions))
	for id := range s.regions {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	pos := 0
	for _, id := range ids {
		r := s.regions[id]
		end := pos + r.Size()
		if end > len(payload) {
			return fmt.Errorf("%w: region %d needs bytes [%d,%d) of %d",
				ErrShortCheckpoint, id, pos, end, len(payload))
		}
		if err := r.Decode(payload[pos:end]); err != nil {
			return fmt.Errorf("decode region %d: %w", id, err)
		}
		pos = end
	}
	return nil
}

// Finalize ends the execution cleanly: it removes every artifact and record
// of the execution and clears Restart:failure, so the next Init starts a new
// execution. It is collective over every process, heads included, and must
// follow ServeHead on heads.
func (s *Session) Finalize(ctx context.Context) error {
	var localErr error
	if !s.isHead {
		localErr = s.AwaitHead(ctx)
		if localErr == nil {
			localErr = s.removeOwn()
		}
	}
	if err := agree(ctx, s.world, localErr); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	var cleanErr error
	if s.world.Rank() == 0 {
		cleanErr = s.removeExecution()
	}
	if err := agree(ctx, s.world, cleanErr); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	s.status = StatusNew
	return nil
}

// removeOwn deletes this process's artifact and record.
func (s *Session) removeOwn() error {
	rec, err := s.loadRecord(s.app.Rank())
	if errors.Is(err, catalog.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !isShared(rec.Path) {
		if err := s.fs.Remove(rec.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove checkpoint: %w", err)
		}
	}
	return s.store.Delete(s.layout.ExecID, rec.Rank)
}

// removeExecution deletes the execution's directories and marks the
// configuration as cleanly finished.
func (s *Session) removeExecution() error {
	dirs := []string{s.layout.GlobalLevelDir(), s.layout.MetaLevelDir(1)}
	for node := 0; node < s.layout.Nodes(); node++ {
		dirs = append(dirs, s.layout.LocalDir(node, 1))
	}
	for _, dir := range dirs {
		// The level directories share the execution directory as parent.
		if err := s.fs.RemoveAll(filepath.Dir(dir)); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}
	if err := s.store.DeleteRun(s.layout.ExecID); err != nil {
		return err
	}
	return config.Rewrite(s.fs, s.path, map[string]string{config.KeyFailure: "0"})
}
