package kernels

// Slot is a kernel parameter register.
// The slot numbering is the contract between the scheduler and every kernel.
type Slot int

// Parameter slots.
const (
	// ParamLength is the true number of output elements.
	ParamLength Slot = iota
	// ParamMaxIndex is the padded element count addressed by one row of groups
	// (groupsX * threadsX * elementsPerThread); kernels rebuild a flat index as
	// groupID.y*MaxIndex + (groupID.x*threadsX + localID.x)*elementsPerThread.
	ParamMaxIndex
	// ParamRankOffset is MaxRank-1-rank(O): the last unused register slot.
	ParamRankOffset
	ParamShapeO
	ParamStridesO
	// ParamStridesA and ParamStridesB hold broadcast strides (0 on broadcast axes).
	ParamStridesA
	ParamStridesB
	ParamWeightA
	ParamWeightB
	ParamOuter
	ParamReduce
	ParamInner
	// ParamFirstDispatch is 1 when the pass reads raw segment input.
	ParamFirstDispatch
	// ParamNormalization scales the finished reduction (1/count for Mean).
	ParamNormalization
	NumParamSlots
)

var slotNames = [...]string{
	"Length", "MaxIndex", "RankOffset", "ShapeO", "StridesO", "StridesA", "StridesB",
	"WeightA", "WeightB", "Outer", "Reduce", "Inner", "FirstDispatch", "Normalization",
}

// String implements fmt.Stringer.
func (s Slot) String() string {
	if s < 0 || s >= NumParamSlots {
		return "Slot?"
	}
	return slotNames[s]
}

// BufferSlot is a kernel storage-buffer binding.
type BufferSlot int

// Buffer bindings. Unary and reduce kernels read BufferA and write BufferOut.
const (
	BufferA BufferSlot = iota
	BufferB
	BufferOut
	NumBufferSlots
)
