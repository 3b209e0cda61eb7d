package artifact

import (
	"errors"
	"fmt"
)

// Identifier map errors.
var (
	ErrDuplicatePhysicalID = errors.New("duplicate physical id")
	ErrUnknownPhysicalID   = errors.New("unknown physical id")
)

// IdentifierMap translates the physical ids in artifact names to logical
// ranks. It is rebuilt on every run because the runtime may number
// processes differently after a restart.
type IdentifierMap struct {
	ranks map[int]int
}

// NewIdentifierMap builds the map from the physical ids gathered from every
// process, indexed by logical rank.
func NewIdentifierMap(physicalIDs []int) (*IdentifierMap, error) {
	ranks := make(map[int]int, len(physicalIDs))
	for rank, pid := range physicalIDs {
		if prev, dup := ranks[pid]; dup {
			return nil, fmt.Errorf("%w: %d held by ranks %d and %d", ErrDuplicatePhysicalID, pid, prev, rank)
		}
		ranks[pid] = rank
	}
	return &IdentifierMap{ranks: ranks}, nil
}

// Rank returns the logical rank of a physical id.
func (m *IdentifierMap) Rank(physicalID int) (int, error) {
	rank, ok := m.ranks[physicalID]
	if !ok {
		return -1, fmt.Errorf("%w: %d", ErrUnknownPhysicalID, physicalID)
	}
	return rank, nil
}

// Len returns the number of processes in the map.
func (m *IdentifierMap) Len() int {
	return len(m.ranks)
}
