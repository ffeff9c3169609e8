package codegen

import (
	"errors"
	"fmt"

	"github.com/arx-lang/arx/arxmod"
	"github.com/arx-lang/arx/bytecode"
)

// Linking resolves the LIT placeholders in front of OBJ_CALL_METHOD to
// real method offsets and fills in the object layout the generator left
// blank. It refuses to guess: the placeholder pattern found in the code
// must agree exactly with the call sites the generator recorded.

var (
	ErrCallPattern   = errors.New("codegen: call sites do not match emitted code")
	ErrUnresolved    = errors.New("codegen: unresolved method call")
	ErrAmbiguousCall = errors.New("codegen: ambiguous method call")
	ErrClassIDClash  = errors.New("codegen: class id collision")
	ErrBadHierarchy  = errors.New("codegen: broken class hierarchy")
)

const fieldSlotSize = 8

// Link patches art in place. After a successful return the code holds
// no CallPlaceholder operands and every class entry carries field
// offsets and an instance size.
func Link(art *Artifact) error {
	byName := make(map[string]*arxmod.ClassEntry, len(art.Classes))
	byID := make(map[uint32]*arxmod.ClassEntry, len(art.Classes))
	for i := range art.Classes {
		cls := &art.Classes[i]
		if prev, ok := byID[cls.ClassID]; ok {
			return fmt.Errorf("%w: %s and %s both hash to %d",
				ErrClassIDClash, prev.Name, cls.Name, cls.ClassID)
		}
		byName[cls.Name] = cls
		byID[cls.ClassID] = cls
	}

	if err := layOutClasses(art.Classes, byID); err != nil {
		return err
	}

	found := scanCallSites(art.Code)
	if len(found) != len(art.CallSites) {
		return fmt.Errorf("%w: %d in code, %d recorded",
			ErrCallPattern, len(found), len(art.CallSites))
	}
	for i, site := range art.CallSites {
		if found[i] != site.Index {
			return fmt.Errorf("%w: placeholder at %d, site recorded at %d",
				ErrCallPattern, found[i], site.Index)
		}
	}

	for _, site := range art.CallSites {
		offset, err := resolveCall(site, byName, byID, art.Classes)
		if err != nil {
			return err
		}
		art.Code[site.Index].Operand = offset
	}
	return nil
}

// scanCallSites returns the indexes of every LIT CallPlaceholder that
// feeds an OBJ_CALL_METHOD.
func scanCallSites(code []bytecode.Instruction) []int {
	var found []int
	for i := 0; i+1 < len(code); i++ {
		if code[i].Op == bytecode.OpLit &&
			code[i].Operand == bytecode.CallPlaceholder &&
			code[i+1].Op == bytecode.OpOpr &&
			code[i+1].Operand == uint64(bytecode.OprObjCallMethod) {
			found = append(found, i)
		}
	}
	return found
}

// layOutClasses assigns field offsets and instance sizes. A subclass
// instance starts with its ancestors' fields, so offsets continue from
// the parent's size.
func layOutClasses(classes []arxmod.ClassEntry, byID map[uint32]*arxmod.ClassEntry) error {
	sizes := make(map[uint32]uint32, len(classes))

	var sizeOf func(cls *arxmod.ClassEntry, seen map[uint32]bool) (uint32, error)
	sizeOf = func(cls *arxmod.ClassEntry, seen map[uint32]bool) (uint32, error) {
		if size, ok := sizes[cls.ClassID]; ok {
			return size, nil
		}
		if seen[cls.ClassID] {
			return 0, fmt.Errorf("%w: inheritance cycle through %s", ErrBadHierarchy, cls.Name)
		}
		seen[cls.ClassID] = true

		var base uint32
		if cls.ParentClassID != arxmod.NoParentClass {
			parent, ok := byID[cls.ParentClassID]
			if !ok {
				return 0, fmt.Errorf("%w: class %s has unknown parent id %d",
					ErrBadHierarchy, cls.Name, cls.ParentClassID)
			}
			var err error
			base, err = sizeOf(parent, seen)
			if err != nil {
				return 0, err
			}
		}

		for i := range cls.Fields {
			cls.Fields[i].Offset = base + uint32(i)*fieldSlotSize
		}
		size := base + uint32(len(cls.Fields))*fieldSlotSize
		cls.InstanceSize = size
		sizes[cls.ClassID] = size
		return size, nil
	}

	for i := range classes {
		if _, err := sizeOf(&classes[i], make(map[uint32]bool)); err != nil {
			return err
		}
	}
	return nil
}

// resolveCall finds the target method offset for one call site. A known
// receiver class resolves by walking its parent chain; an unknown one
// falls back to a unit-wide unique name search.
func resolveCall(site CallSite, byName map[string]*arxmod.ClassEntry,
	byID map[uint32]*arxmod.ClassEntry, classes []arxmod.ClassEntry) (uint64, error) {

	if site.Class != "" {
		cls, ok := byName[site.Class]
		if !ok {
			return 0, fmt.Errorf("%w: %s.%s (unknown class)",
				ErrUnresolved, site.Class, site.Method)
		}
		seen := make(map[uint32]bool)
		for cls != nil && !seen[cls.ClassID] {
			seen[cls.ClassID] = true
			for i := range cls.Methods {
				if cls.Methods[i].Name == site.Method {
					return cls.Methods[i].Offset, nil
				}
			}
			if cls.ParentClassID == arxmod.NoParentClass {
				break
			}
			cls = byID[cls.ParentClassID]
		}
		return 0, fmt.Errorf("%w: %s.%s", ErrUnresolved, site.Class, site.Method)
	}

	var (
		offset uint64
		owner  string
		hits   int
	)
	for i := range classes {
		for j := range classes[i].Methods {
			if classes[i].Methods[j].Name == site.Method {
				offset = classes[i].Methods[j].Offset
				owner = classes[i].Name
				hits++
			}
		}
	}
	switch hits {
	case 0:
		return 0, fmt.Errorf("%w: %s", ErrUnresolved, site.Method)
	case 1:
		return offset, nil
	default:
		return 0, fmt.Errorf("%w: %s defined by %s and %d other class(es)",
			ErrAmbiguousCall, site.Method, owner, hits-1)
	}
}
