package runner

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ExportKind tells how a module exposes itself.
type ExportKind int

const (
	// FactoryExport is a function called with the mod context that returns
	// the module table.
	FactoryExport ExportKind = iota + 1
	// DirectExport is the module table itself.
	DirectExport
)

func (k ExportKind) String() string {
	switch k {
	case FactoryExport:
		return "factory"
	case DirectExport:
		return "direct"
	default:
		return fmt.Sprintf("ExportKind(%d)", int(k))
	}
}

// Export is the value returned by an entry file, classified once at load time.
type Export struct {
	Kind  ExportKind
	Value lua.LValue
}

// ResolveExport classifies the first value returned by an entry chunk.
func ResolveExport(ret []lua.LValue) (Export, error) {
	if len(ret) == 0 {
		return Export{}, fmt.Errorf("%w: entry returned nothing", ErrInvalidStructure)
	}
	switch v := ret[0].(type) {
	case *lua.LFunction:
		return Export{Kind: FactoryExport, Value: v}, nil
	case *lua.LTable:
		return Export{Kind: DirectExport, Value: v}, nil
	default:
		return Export{}, fmt.Errorf("%w: entry returned %s, want function or table", ErrInvalidStructure, ret[0].Type())
	}
}
