package zones

import (
	"context"

	"github.com/agrimandi/auth-service/internal/apperr"
)

// zoneRepo is the storage interface consumed by Service.
type zoneRepo interface {
	GetByID(ctx context.Context, id int64) (*Zone, error)
	Children(ctx context.Context, parentID int64) ([]*Zone, error)
	TopLevel(ctx context.Context) ([]*Zone, error)
	Subtree(ctx context.Context, rootID int64) ([]*Zone, error)
	ByDistrictManager(ctx context.Context, userID int64) ([]*ManagedZone, error)
}

// Service exposes zone-tree reads to the façade and the agent flow.
type Service struct {
	repo zoneRepo
}

// NewService creates a Service.
func NewService(repo zoneRepo) *Service {
	return &Service{repo: repo}
}

// ByDistrictManager returns the zones managed by a user with their current
// assignment counts.
func (s *Service) ByDistrictManager(ctx context.Context, userID int64) ([]*ManagedZone, error) {
	zs, err := s.repo.ByDistrictManager(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap("list managed zones", err)
	}
	return zs, nil
}

// Children returns the direct children of a zone.
func (s *Service) Children(ctx context.Context, parentID int64) ([]*Zone, error) {
	zs, err := s.repo.Children(ctx, parentID)
	if err != nil {
		return nil, apperr.Wrap("list child zones", err)
	}
	return zs, nil
}

// Hierarchy returns the tree rooted at rootID, or all top-level states when
// rootID is zero, eagerly expanded through the four levels.
func (s *Service) Hierarchy(ctx context.Context, rootID int64) ([]*Node, error) {
	var roots []*Zone
	var err error
	if rootID == 0 {
		roots, err = s.repo.TopLevel(ctx)
		if err != nil {
			return nil, apperr.Wrap("list top-level zones", err)
		}
	} else {
		root, gerr := s.repo.GetByID(ctx, rootID)
		if gerr != nil {
			return nil, apperr.New(apperr.CodeNotFound, "zone not found")
		}
		roots = []*Zone{root}
	}

	var out []*Node
	for _, root := range roots {
		flat, err := s.repo.Subtree(ctx, root.ID)
		if err != nil {
			return nil, apperr.Wrap("load zone subtree", err)
		}
		out = append(out, buildTree(root.ID, flat))
	}
	return out, nil
}

// buildTree assembles the flat subtree rows into a Node tree.
func buildTree(rootID int64, flat []*Zone) *Node {
	nodes := make(map[int64]*Node, len(flat))
	for _, z := range flat {
		nodes[z.ID] = &Node{Zone: *z}
	}
	for _, n := range nodes {
		if n.ID == rootID || n.ParentID == nil {
			continue
		}
		if parent, ok := nodes[*n.ParentID]; ok {
			parent.Children = append(parent.Children, n)
		}
	}
	return nodes[rootID]
}
