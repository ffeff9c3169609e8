package vm

import (
	"fmt"

	"github.com/arx-lang/arx/arxmod"
)

// ---------------------------------------------------------------------------
// Class registry: manifest indexes for dispatch
// ---------------------------------------------------------------------------

// methodInfo is one manifest method with a back link to its class.
type methodInfo struct {
	entry *arxmod.MethodEntry
	owner *classInfo
}

// classInfo is one manifest class with its parent resolved.
type classInfo struct {
	entry  *arxmod.ClassEntry
	parent *classInfo
	slots  int // instance field cells, inherited included
}

func (c *classInfo) name() string {
	return c.entry.Name
}

// classRegistry indexes the class manifest three ways: by class id for
// OBJ_NEW, by code offset for dispatched calls, and by method id for
// tooling. ordered preserves manifest order for deterministic scans.
type classRegistry struct {
	ordered    []*classInfo
	byID       map[uint32]*classInfo
	byName     map[string]*classInfo
	byOffset   map[uint64]*methodInfo
	byMethodID map[uint32]*methodInfo
}

// newClassRegistry builds the indexes and validates the manifest.
// Hash collisions between class names and duplicate method offsets are
// load errors, not faults.
func newClassRegistry(entries []arxmod.ClassEntry) (*classRegistry, error) {
	reg := &classRegistry{
		byID:       make(map[uint32]*classInfo, len(entries)),
		byName:     make(map[string]*classInfo, len(entries)),
		byOffset:   make(map[uint64]*methodInfo),
		byMethodID: make(map[uint32]*methodInfo),
	}

	infos := make([]*classInfo, len(entries))
	for i := range entries {
		entry := &entries[i]
		if prev, ok := reg.byID[entry.ClassID]; ok {
			return nil, fmt.Errorf("%w: %s and %s share id %d",
				ErrClassCollision, prev.name(), entry.Name, entry.ClassID)
		}
		info := &classInfo{entry: entry, slots: int(entry.InstanceSize) / 8}
		infos[i] = info
		reg.byID[entry.ClassID] = info
		reg.byName[entry.Name] = info
	}
	reg.ordered = infos

	for _, info := range infos {
		if info.entry.ParentClassID == arxmod.NoParentClass {
			continue
		}
		parent, ok := reg.byID[info.entry.ParentClassID]
		if !ok {
			return nil, fmt.Errorf("%w: class %s has unknown parent id %d",
				ErrBadHierarchy, info.name(), info.entry.ParentClassID)
		}
		info.parent = parent
	}

	for _, info := range infos {
		if cyclic(info) {
			return nil, fmt.Errorf("%w: inheritance cycle through %s",
				ErrBadHierarchy, info.name())
		}
	}

	for _, info := range infos {
		for j := range info.entry.Methods {
			method := &info.entry.Methods[j]
			mi := &methodInfo{entry: method, owner: info}
			if prev, ok := reg.byOffset[method.Offset]; ok {
				return nil, fmt.Errorf("%w: %s.%s and %s.%s both start at %d",
					ErrMethodCollision,
					prev.owner.name(), prev.entry.Name,
					info.name(), method.Name, method.Offset)
			}
			reg.byOffset[method.Offset] = mi
			reg.byMethodID[method.MethodID] = mi
		}
	}

	return reg, nil
}

func cyclic(start *classInfo) bool {
	seen := make(map[uint32]bool)
	for cur := start; cur != nil; cur = cur.parent {
		if seen[cur.entry.ClassID] {
			return true
		}
		seen[cur.entry.ClassID] = true
	}
	return false
}

// methodAtOffset finds the method whose body starts at offset.
func (r *classRegistry) methodAtOffset(offset uint64) (*methodInfo, bool) {
	mi, ok := r.byOffset[offset]
	return mi, ok
}

// findMethod resolves name on cls, walking up the hierarchy.
func (r *classRegistry) findMethod(cls *classInfo, name string) (*methodInfo, bool) {
	for cur := cls; cur != nil; cur = cur.parent {
		for i := range cur.entry.Methods {
			if cur.entry.Methods[i].Name == name {
				return &methodInfo{entry: &cur.entry.Methods[i], owner: cur}, true
			}
		}
	}
	return nil, false
}
