package scheduler

import (
	"fmt"

	"github.com/born-ml/dispatch/internal/kernels"
	"golang.org/x/exp/constraints"
	"k8s.io/klog/v2"
)

// DispatchPlan is the grid of one kernel dispatch.
type DispatchPlan struct {
	GroupsX, GroupsY, GroupsZ int

	// WorkItems is the requested work per axis; 1-D plans only use X.
	WorkItems [3]int
	// ThreadGroup is the kernel's work-group size.
	ThreadGroup [3]int
	// ElementsPerThread handled by one invocation along X.
	ElementsPerThread int
	// MaxIndex is the padded number of elements one row of X groups addresses.
	// Kernels rebuild the flat index as groupY*MaxIndex + x and discard x >= the true length.
	MaxIndex int

	// Split is set when an over-limit X axis was folded into Y.
	Split bool
	// OverLimit is set when some axis still exceeds the limit; a warning was logged.
	OverLimit bool
}

// Groups returns the group counts in the form a Sink dispatch takes.
func (p DispatchPlan) Groups() (x, y, z uint32) {
	return uint32(p.GroupsX), uint32(p.GroupsY), uint32(p.GroupsZ)
}

// Threads returns the total number of invocations the plan launches.
func (p DispatchPlan) Threads() int {
	return p.GroupsX * p.GroupsY * p.GroupsZ * p.ThreadGroup[0] * p.ThreadGroup[1] * p.ThreadGroup[2]
}

// String implements fmt.Stringer.
func (p DispatchPlan) String() string {
	return fmt.Sprintf("groups=(%d, %d, %d) threads=(%d, %d, %d) maxIndex=%d",
		p.GroupsX, p.GroupsY, p.GroupsZ, p.ThreadGroup[0], p.ThreadGroup[1], p.ThreadGroup[2], p.MaxIndex)
}

// DispatchPlanner computes dispatch grids under a per-axis group limit.
// It performs no device calls.
type DispatchPlanner struct {
	Limit int
}

// PlanThreads plans a 1-D dispatch of n elements with threadsPerGroup invocations per
// group, each handling elementsPerThread consecutive elements.
//
// When the group count exceeds the limit it is factored over X and Y:
// groupsY = ceil(needed/limit), groupsX = ceil(needed/groupsY).
func (dp DispatchPlanner) PlanThreads(n, threadsPerGroup, elementsPerThread int) DispatchPlan {
	plan := dp.planThreads(n, threadsPerGroup, elementsPerThread)
	if plan.OverLimit {
		klog.Warningf("dispatch: %s for %d elements exceeds the per-axis limit %d", plan, n, dp.Limit)
	}
	return plan
}

func (dp DispatchPlanner) planThreads(n, threadsPerGroup, elementsPerThread int) DispatchPlan {
	threadsPerGroup = max(threadsPerGroup, 1)
	elementsPerThread = max(elementsPerThread, 1)
	plan := DispatchPlan{
		GroupsY:           1,
		GroupsZ:           1,
		WorkItems:         [3]int{n, 1, 1},
		ThreadGroup:       [3]int{threadsPerGroup, 1, 1},
		ElementsPerThread: elementsPerThread,
	}
	needed := ceilDiv(max(n, 0), threadsPerGroup*elementsPerThread)
	plan.GroupsX = needed
	if needed > dp.Limit {
		plan.Split = true
		plan.GroupsY = ceilDiv(needed, dp.Limit)
		plan.GroupsX = ceilDiv(needed, plan.GroupsY)
	}
	plan.MaxIndex = plan.GroupsX * threadsPerGroup * elementsPerThread
	dp.checkLimit(&plan)
	return plan
}

// Plan plans a 1-D dispatch of n elements for kernel k.
func (dp DispatchPlanner) Plan(k *kernels.Kernel, n int) DispatchPlan {
	plan := dp.planThreads(n, k.ThreadGroup[0], k.ElementsPerThread)
	plan.ThreadGroup = k.ThreadGroup
	if plan.OverLimit {
		klog.Warningf("dispatch %s: %s for %d elements exceeds the per-axis limit %d", k.Name, plan, n, dp.Limit)
	}
	return plan
}

// Plan3D plans a dispatch covering x*y*z work items, one per invocation, using the
// kernel's work-group size on each axis.
//
// An over-limit X axis is folded into Y when Y needs a single group; any axis still over
// the limit is logged and dispatched as is.
func (dp DispatchPlanner) Plan3D(k *kernels.Kernel, x, y, z int) DispatchPlan {
	tg := k.ThreadGroup
	plan := DispatchPlan{
		GroupsX:           ceilDiv(max(x, 0), max(tg[0], 1)),
		GroupsY:           ceilDiv(max(y, 0), max(tg[1], 1)),
		GroupsZ:           ceilDiv(max(z, 0), max(tg[2], 1)),
		WorkItems:         [3]int{x, y, z},
		ThreadGroup:       tg,
		ElementsPerThread: 1,
	}
	if plan.GroupsX > dp.Limit && plan.GroupsY == 1 {
		plan.Split = true
		needed := plan.GroupsX
		plan.GroupsY = ceilDiv(needed, dp.Limit)
		plan.GroupsX = ceilDiv(needed, plan.GroupsY)
	}
	plan.MaxIndex = plan.GroupsX * max(tg[0], 1)
	if dp.checkLimit(&plan) {
		klog.Warningf("dispatch %s: %s for (%d, %d, %d) work items exceeds the per-axis limit %d",
			k.Name, plan, x, y, z, dp.Limit)
	}
	return plan
}

// checkLimit flags plans with an axis over the limit and reports whether it did.
func (dp DispatchPlanner) checkLimit(plan *DispatchPlan) bool {
	plan.OverLimit = plan.GroupsX > dp.Limit || plan.GroupsY > dp.Limit || plan.GroupsZ > dp.Limit
	return plan.OverLimit
}

func ceilDiv[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}
