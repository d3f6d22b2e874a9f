package hier

import (
	"fmt"
)

// Variable describes a quantity that may be stored on patches.
type Variable interface {
	Name() string
	Dim() int
}

type VariableContext struct {
	Name string
}

type dataKey struct {
	variable, context string
}

// VariableDatabase maps (variable, context) pairs to patch data indices.
type VariableDatabase struct {
	contexts  map[string]*VariableContext
	variables map[string]Variable
	indices   map[dataKey]int
	ghosts    []IntVector
}

func NewVariableDatabase() *VariableDatabase {
	return &VariableDatabase{
		contexts:  make(map[string]*VariableContext),
		variables: make(map[string]Variable),
		indices:   make(map[dataKey]int),
	}
}

// GetContext returns the named context, creating it on first use.
func (vdb *VariableDatabase) GetContext(name string) *VariableContext {
	if ctx, ok := vdb.contexts[name]; ok {
		return ctx
	}
	ctx := &VariableContext{Name: name}
	vdb.contexts[name] = ctx
	return ctx
}

// RegisterVariableAndContext returns the data index for the pair. A pair
// registered twice keeps its first index; its ghost width grows to cover both.
func (vdb *VariableDatabase) RegisterVariableAndContext(v Variable, ctx *VariableContext,
	ghosts IntVector) (index int, err error) {
	if prev, ok := vdb.variables[v.Name()]; ok && prev != v {
		return -1, fmt.Errorf("variable %q already registered with a different definition", v.Name())
	}
	if len(ghosts) != v.Dim() {
		return -1, fmt.Errorf("variable %q: ghost width %v does not have dimension %d",
			v.Name(), ghosts, v.Dim())
	}
	vdb.variables[v.Name()] = v
	key := dataKey{v.Name(), ctx.Name}
	if index, ok := vdb.indices[key]; ok {
		vdb.ghosts[index] = vdb.ghosts[index].Max(ghosts)
		return index, nil
	}
	index = len(vdb.ghosts)
	vdb.indices[key] = index
	vdb.ghosts = append(vdb.ghosts, ghosts.Clone())
	return index, nil
}

func (vdb *VariableDatabase) MapVariableAndContextToIndex(v Variable, ctx *VariableContext) (index int, ok bool) {
	index, ok = vdb.indices[dataKey{v.Name(), ctx.Name}]
	return
}

func (vdb *VariableDatabase) Ghosts(index int) IntVector {
	return vdb.ghosts[index]
}

func (vdb *VariableDatabase) NumberIndices() int { return len(vdb.ghosts) }
