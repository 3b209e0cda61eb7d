// Package artifact names, locates and size-checks the files a checkpoint
// library leaves on storage.
package artifact

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// Kind classifies a checkpoint artifact by its file name.
type Kind int

// Artifact kinds.
const (
	KindRank    Kind = iota + 1 // Ckpt<seq>-Rank<pid>.fti, one process's state
	KindShared                  // Ckpt<seq>-mpiio.fti, every process's state
	KindPartner                 // Ckpt<seq>-Pcof<pid>.fti, a partner's copy
	KindEncoded                 // Ckpt<seq>-RSed<pid>.fti, erasure-coded parity
	KindMeta                    // sector<s>-group<g>.fti, metadata
)

func (k Kind) String() string {
	switch k {
	case KindRank:
		return "rank"
	case KindShared:
		return "shared"
	case KindPartner:
		return "partner"
	case KindEncoded:
		return "encoded"
	case KindMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// ErrUnrecognizedArtifact is returned for a file in a level directory whose
// name matches no artifact pattern.
var ErrUnrecognizedArtifact = errors.New("unrecognized artifact")

// Descriptor is a parsed artifact file name.
type Descriptor struct {
	Dir  string
	Name string
	Kind Kind

	// Sequence is the checkpoint id. Zero for metadata.
	Sequence int

	// PhysicalID is the writer's runtime id for rank, partner and encoded
	// files, and -1 otherwise.
	PhysicalID int

	// Sector and Group locate a metadata file.
	Sector int
	Group  int

	// Size is filled in by the verifier.
	Size int64
}

// Path returns the full path of the artifact.
func (d Descriptor) Path() string {
	return filepath.Join(d.Dir, d.Name)
}

var (
	perProcessPattern = regexp.MustCompile(`^Ckpt(\d+)-(Rank|Pcof|RSed)(\d+)\.fti$`)
	sharedPattern     = regexp.MustCompile(`^Ckpt(\d+)-mpiio\.fti$`)
	metaPattern       = regexp.MustCompile(`^sector(\d+)-group(\d+)\.fti$`)
)

var perProcessKinds = map[string]Kind{
	"Rank": KindRank,
	"Pcof": KindPartner,
	"RSed": KindEncoded,
}

// ParseDescriptor classifies the file name found in dir.
func ParseDescriptor(dir, name string) (Descriptor, error) {
	d := Descriptor{Dir: dir, Name: name, PhysicalID: -1}

	if m := perProcessPattern.FindStringSubmatch(name); m != nil {
		d.Kind = perProcessKinds[m[2]]
		d.Sequence, _ = strconv.Atoi(m[1])
		d.PhysicalID, _ = strconv.Atoi(m[3])
		return d, nil
	}
	if m := sharedPattern.FindStringSubmatch(name); m != nil {
		d.Kind = KindShared
		d.Sequence, _ = strconv.Atoi(m[1])
		return d, nil
	}
	if m := metaPattern.FindStringSubmatch(name); m != nil {
		d.Kind = KindMeta
		d.Sector, _ = strconv.Atoi(m[1])
		d.Group, _ = strconv.Atoi(m[2])
		return d, nil
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrUnrecognizedArtifact, filepath.Join(dir, name))
}

// RankFileName returns the name of a per-process checkpoint file.
func RankFileName(seq, physicalID int) string {
	return fmt.Sprintf("Ckpt%d-Rank%d.fti", seq, physicalID)
}

// SharedFileName returns the name of the shared checkpoint file.
func SharedFileName(seq int) string {
	return fmt.Sprintf("Ckpt%d-mpiio.fti", seq)
}

// PartnerFileName returns the name of a partner copy.
func PartnerFileName(seq, physicalID int) string {
	return fmt.Sprintf("Ckpt%d-Pcof%d.fti", seq, physicalID)
}

// EncodedFileName returns the name of an encoded parity file.
func EncodedFileName(seq, physicalID int) string {
	return fmt.Sprintf("Ckpt%d-RSed%d.fti", seq, physicalID)
}

// MetaFileName returns the name of a metadata file.
func MetaFileName(sector, group int) string {
	return fmt.Sprintf("sector%d-group%d.fti", sector, group)
}
