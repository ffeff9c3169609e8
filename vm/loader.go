package vm

import (
	"bufio"

	"github.com/arx-lang/arx/arxmod"
)

// entryClass and entryMethod name the conventional program entry.
// Main.Main wins, then a Main method on any class in manifest order; a
// module without one starts at instruction zero.
const (
	entryClass  = "Main"
	entryMethod = "Main"
)

// New builds a machine around a loaded module. The module's class
// manifest is validated here; a bad manifest is a load error rather
// than a fault.
func New(mod *arxmod.Module, cfg Config) (*VM, error) {
	cfg = cfg.withDefaults()

	registry, err := newClassRegistry(mod.Classes)
	if err != nil {
		return nil, err
	}

	m := &VM{
		cfg:     cfg,
		appName: mod.AppName,
		code:    mod.Code,
		strTab:  mod.Strings,
		classes: registry,
		symbols: mod.Symbols,
		debug:   mod.Debug,
		stack:   make([]uint64, cfg.StackSize),
		memory:  make([]uint64, cfg.MemorySize),
		arena:   newArena(cfg.HeapBase),
		out:     cfg.Output,
		in:      bufio.NewReader(cfg.Input),
		log:     cfg.Log,
		lastPC:  ^uint64(0),
	}
	m.pc = entryPoint(registry)

	m.log.Debugf("loaded %s: %d instructions, %d strings, %d classes, entry %d",
		m.appName, len(m.code), len(m.strTab), len(mod.Classes), m.pc)
	return m, nil
}

// LoadBytes decodes a module image and builds a machine for it.
func LoadBytes(data []byte, cfg Config) (*VM, error) {
	mod, err := arxmod.ReadModule(data)
	if err != nil {
		return nil, err
	}
	return New(mod, cfg)
}

// LoadFile reads a module file and builds a machine for it.
func LoadFile(path string, cfg Config) (*VM, error) {
	mod, err := arxmod.ReadModuleFile(path)
	if err != nil {
		return nil, err
	}
	return New(mod, cfg)
}

func entryPoint(registry *classRegistry) uint64 {
	if cls, ok := registry.byName[entryClass]; ok {
		if mi, ok := registry.findMethod(cls, entryMethod); ok {
			return mi.entry.Offset
		}
	}
	for _, cls := range registry.ordered {
		for i := range cls.entry.Methods {
			if cls.entry.Methods[i].Name == entryMethod {
				return cls.entry.Methods[i].Offset
			}
		}
	}
	return 0
}
