package ckpt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/artifact"
	"github.com/randalmurphal/ckptcheck/pkg/ckptcheck/ckpt/catalog"
	"github.com/spf13/afero"
)

// promotion moves a staged checkpoint to its final place. Application
// processes run it inline or post it to their head.
type promotion struct {
	Record catalog.Record `json:"record"`
	Stage  string         `json:"stage"`
	Target string         `json:"target"`
	Offset int64          `json:"offset"`
	Shared bool           `json:"shared"`
}

// Checkpoint saves every protected region as checkpoint id at level.
//
// The regions are written to a stage file in the level-1 directory first
// and then promoted. With a head and Basic:inline_l<level> = 0 the
// promotion is handed to the head and Checkpoint returns at once; the head
// acknowledges on Tag, and the next Checkpoint waits for that
// acknowledgement. A level-4 checkpoint with the shared-file mode is
// collective over the application processes.
func (s *Session) Checkpoint(ctx context.Context, id, level int) error {
	if s.isHead {
		return ErrHeadProcess
	}
	if level < 1 || level > artifact.GlobalLevel {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	if s.pendingAck {
		if err := s.awaitAck(ctx); err != nil {
			return err
		}
	}

	payload := s.encode()
	phys := s.world.PhysicalID()
	name := artifact.RankFileName(id, phys)
	stage := filepath.Join(s.layout.LocalDir(s.node(), 1), name)
	if err := s.writeFile(stage, payload); err != nil {
		return fmt.Errorf("write stage file: %w", err)
	}

	p := promotion{
		Record: *catalog.NewRecord(s.layout.ExecID, s.app.Rank(), phys, id, level, payload),
		Stage:  stage,
	}
	switch {
	case level < artifact.GlobalLevel:
		p.Target = filepath.Join(s.layout.LocalDir(s.node(), level), name)
	case s.ckptIO == IOPosix:
		p.Target = filepath.Join(s.layout.GlobalLevelDir(), name)
	default:
		p.Target = filepath.Join(s.layout.GlobalLevelDir(), artifact.SharedFileName(id))
		p.Shared = true
		offset, err := s.prepareShared(ctx, p.Target, int64(len(payload)))
		if err != nil {
			return err
		}
		p.Offset = offset
	}

	if !s.Inline(level) {
		return s.post(ctx, p)
	}
	if err := s.promote(p); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Debug("checkpoint promoted",
			slog.Int("checkpoint_id", id),
			slog.String("path", p.Target),
		)
	}
	return nil
}

// encode concatenates the protected regions in id order.
func (s *Session) encode() []byte {
	ids := make([]int, 0, len(s.regions))
	size := 0
	for id, r := range s.regions {
		ids = append(ids, id)
		size += r.Size()
	}
	slices.Sort(ids)

	buf := make([]byte, 0, size)
	for _, id := range ids {
		buf = s.regions[id].AppendTo(buf)
	}
	return buf
}

// prepareShared computes this process's offset in the shared file and has
// application rank 0 create the file. Chunks are laid out in physical-id
// order.
func (s *Session) prepareShared(ctx context.Context, path string, size int64) (int64, error) {
	entry := binary.AppendVarint(nil, int64(s.world.PhysicalID()))
	entry = binary.AppendVarint(entry, size)
	vals, err := s.app.Allgather(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("exchange chunk sizes: %w", err)
	}

	myPhys := int64(s.world.PhysicalID())
	var offset int64
	for _, v := range vals {
		phys, n := binary.Varint(v)
		sz, m := binary.Varint(v[max(n, 0):])
		if n <= 0 || m <= 0 {
			return 0, errors.New("malformed chunk size entry")
		}
		if phys < myPhys {
			offset += sz
		}
	}

	var createErr error
	if s.app.Rank() == 0 {
		createErr = s.createShared(path)
	}
	if err := agree(ctx, s.app, createErr); err != nil {
		return 0, fmt.Errorf("create shared file: %w", err)
	}
	return offset, nil
}

func (s *Session) createShared(path string) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := s.fs.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// promote moves the stage file into place and records it.
func (s *Session) promote(p promotion) error {
	switch {
	case p.Shared:
		if err := s.writeChunk(p.Stage, p.Target, p.Offset); err != nil {
			return fmt.Errorf("write shared chunk: %w", err)
		}
	case p.Target != p.Stage:
		if err := s.move(p.Stage, p.Target); err != nil {
			return fmt.Errorf("promote %s: %w", p.Stage, err)
		}
	}

	rec := p.Record
	rec.WithLocation(p.Target, p.Offset)
	return s.commit(&rec)
}

// commit saves rec and removes the artifacts it supersedes.
func (s *Session) commit(rec *catalog.Record) error {
	prev, err := s.loadRecord(rec.Rank)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return err
	}

	data, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := s.store.Save(rec.ExecID, rec.Rank, rec.Sequence, data); err != nil {
		return err
	}

	if prev != nil && prev.Path != rec.Path && !isShared(prev.Path) {
		if err := s.fs.Remove(prev.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove superseded checkpoint: %w", err)
		}
	}
	if isShared(rec.Path) {
		return s.sweepShared(rec.Sequence, s.appSize)
	}
	return nil
}

// sweepShared removes shared files of other checkpoints once every
// process has recorded checkpoint seq.
func (s *Session) sweepShared(seq, processes int) error {
	infos, err := s.store.List(s.layout.ExecID)
	if err != nil {
		return err
	}
	if len(infos) < processes {
		return nil
	}
	for _, info := range infos {
		if info.Sequence != seq {
			return nil
		}
	}

	dir := s.layout.GlobalLevelDir()
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return fmt.Errorf("list shared files: %w", err)
	}
	for _, e := range entries {
		d, err := artifact.ParseDescriptor(dir, e.Name())
		if err != nil || d.Kind != artifact.KindShared || d.Sequence == seq {
			continue
		}
		// Several committers may race here.
		if err := s.fs.Remove(d.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove shared file: %w", err)
		}
	}
	return nil
}

func (s *Session) loadRecord(rank int) (*catalog.Record, error) {
	data, err := s.store.Load(s.layout.ExecID, rank)
	if err != nil {
		return nil, err
	}
	rec, err := catalog.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode record of rank %d: %w", rank, err)
	}
	return rec, nil
}

func isShared(path string) bool {
	d, err := artifact.ParseDescriptor(filepath.Dir(path), filepath.Base(path))
	return err == nil && d.Kind == artifact.KindShared
}

func (s *Session) writeFile(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, path, data, 0o644)
}

// move renames src to dst, copying when a rename is not possible.
func (s *Session) move(src, dst string) error {
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := s.fs.Rename(src, dst); err == nil {
		return nil
	}
	data, err := afero.ReadFile(s.fs, src)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, dst, data, 0o644); err != nil {
		return err
	}
	return s.fs.Remove(src)
}

// writeChunk copies the stage file into the shared file at offset.
func (s *Session) writeChunk(stage, target string, offset int64) error {
	data, err := afero.ReadFile(s.fs, stage)
	if err != nil {
		return err
	}
	f, err := s.fs.OpenFile(target, os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(data, offset); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return s.fs.Remove(stage)
}

// agree makes every process of c return the first error any of them hit.
// It also serves as a barrier.
func agree(ctx context.Context, c interface {
	Allgather(context.Context, []byte) ([][]byte, error)
}, err error) error {
	var msg []byte
	if err != nil {
		msg = []byte(err.Error())
	}
	vals, gerr := c.Allgather(ctx, msg)
	if gerr != nil {
		return gerr
	}
	if err != nil {
		return err
	}
	for rank, v := range vals {
		if len(v) > 0 {
			return fmt.Errorf("rank %d: %s", rank, v)
		}
	}
	return nil
}

// post hands p to the head of this process's node.
func (s *Session) post(ctx context.Context, p promotion) error {
	payload, err := json.Marshal(headMessage{Kind: kindPost, Promotion: &p})
	if err != nil {
		return fmt.Errorf("encode promotion: %w", err)
	}
	if err := s.world.Send(ctx, s.HeadOf(s.world.Rank()), s.tag, payload); err != nil {
		return fmt.Errorf("post checkpoint to head: %w", err)
	}
	s.pendingAck = true
	return nil
}

// awaitAck consumes the head's acknowledgement of the last posted checkpoint.
func (s *Session) awaitAck(ctx context.Context) error {
	msg, err := s.world.Recv(ctx, s.HeadOf(s.world.Rank()), s.tag)
	if err != nil {
		return fmt.Errorf("wait for head: %w", err)
	}
	s.pendingAck = false
	return DecodeAck(msg.Payload)
}
