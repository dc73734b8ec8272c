package zones

import (
	"context"
	"errors"
	"testing"

	"github.com/agrimandi/auth-service/internal/apperr"
)

// stubRepo serves the Karnataka fixture tree:
//
//	1 Karnataka (STATE)
//	└── 2 Hassan (DISTRICT)
//	    ├── 3 Belur (TALUK)
//	    │   └── 5 Halebidu (VILLAGE)
//	    └── 4 Arsikere (TALUK)
type stubRepo struct {
	zones map[int64]*Zone
}

func newStubRepo() *stubRepo {
	p := func(id int64) *int64 { return &id }
	return &stubRepo{zones: map[int64]*Zone{
		1: {ID: 1, Name: "Karnataka", Code: "KA", Type: TypeState},
		2: {ID: 2, Name: "Hassan", Code: "KA-HSN", Type: TypeDistrict, ParentID: p(1)},
		3: {ID: 3, Name: "Belur", Code: "KA-HSN-BLR", Type: TypeTaluk, ParentID: p(2)},
		4: {ID: 4, Name: "Arsikere", Code: "KA-HSN-ASK", Type: TypeTaluk, ParentID: p(2)},
		5: {ID: 5, Name: "Halebidu", Code: "KA-HSN-BLR-HLB", Type: TypeVillage, ParentID: p(3)},
	}}
}

func (r *stubRepo) GetByID(_ context.Context, id int64) (*Zone, error) {
	z, ok := r.zones[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	return z, nil
}

func (r *stubRepo) Children(_ context.Context, parentID int64) ([]*Zone, error) {
	var out []*Zone
	for id := int64(1); id <= int64(len(r.zones)); id++ {
		z := r.zones[id]
		if z.ParentID != nil && *z.ParentID == parentID {
			out = append(out, z)
		}
	}
	return out, nil
}

func (r *stubRepo) TopLevel(_ context.Context) ([]*Zone, error) {
	var out []*Zone
	for id := int64(1); id <= int64(len(r.zones)); id++ {
		if z := r.zones[id]; z.ParentID == nil {
			out = append(out, z)
		}
	}
	return out, nil
}

func (r *stubRepo) Subtree(_ context.Context, rootID int64) ([]*Zone, error) {
	frontier := []int64{rootID}
	seen := map[int64]bool{rootID: true}
	out := []*Zone{r.zones[rootID]}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		children, _ := r.Children(context.Background(), next)
		for _, c := range children {
			if !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c)
				frontier = append(frontier, c.ID)
			}
		}
	}
	return out, nil
}

func (r *stubRepo) ByDistrictManager(_ context.Context, userID int64) ([]*ManagedZone, error) {
	if userID != 42 {
		return nil, nil
	}
	return []*ManagedZone{{Zone: *r.zones[2], AssignmentCount: 3}}, nil
}

func TestHierarchyFromRoot(t *testing.T) {
	svc := NewService(newStubRepo())

	nodes, err := svc.Hierarchy(context.Background(), 1)
	if err != nil {
		t.Fatalf("Hierarchy: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("roots = %d, want 1", len(nodes))
	}
	root := nodes[0]
	if root.Name != "Karnataka" || len(root.Children) != 1 {
		t.Fatalf("root = %s with %d children", root.Name, len(root.Children))
	}
	hassan := root.Children[0]
	if hassan.Name != "Hassan" || len(hassan.Children) != 2 {
		t.Fatalf("district = %s with %d children", hassan.Name, len(hassan.Children))
	}
	var belur *Node
	for _, taluk := range hassan.Children {
		if taluk.Name == "Belur" {
			belur = taluk
		}
	}
	if belur == nil || len(belur.Children) != 1 || belur.Children[0].Name != "Halebidu" {
		t.Fatalf("taluk subtree wrong: %+v", belur)
	}
}

func TestHierarchyTopLevelWhenRootZero(t *testing.T) {
	svc := NewService(newStubRepo())

	nodes, err := svc.Hierarchy(context.Background(), 0)
	if err != nil {
		t.Fatalf("Hierarchy: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Code != "KA" {
		t.Fatalf("top-level = %+v", nodes)
	}
}

func TestHierarchyUnknownRoot(t *testing.T) {
	svc := NewService(newStubRepo())

	_, err := svc.Hierarchy(context.Background(), 99)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestChildrenAndManagedZones(t *testing.T) {
	svc := NewService(newStubRepo())

	children, err := svc.Children(context.Background(), 2)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}

	managed, err := svc.ByDistrictManager(context.Background(), 42)
	if err != nil {
		t.Fatalf("ByDistrictManager: %v", err)
	}
	if len(managed) != 1 || managed[0].Name != "Hassan" || managed[0].AssignmentCount != 3 {
		t.Fatalf("managed = %+v", managed)
	}
}
