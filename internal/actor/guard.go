package actor

import (
	"fmt"
	"strings"
)

// DefaultMaxCallDepth bounds how many actor-to-actor hops a single
// request may chain before new calls are refused.
const DefaultMaxCallDepth = 5

// SystemOriginator is the designated non-actor origin used for
// internally triggered notifications. Calls it originates bypass
// cycle and depth enforcement.
const SystemOriginator = "system"

// CallContext travels by value down every nested actor call.
type CallContext struct {
	Chain []string `json:"chain"`
	Depth int      `json:"depth"`
}

// NewCallContext starts a chain at the given originator.
func NewCallContext(origin string) CallContext {
	return CallContext{Chain: []string{origin}, Depth: 0}
}

// Descend returns a copy of the context extended by one hop to target.
// The receiver is not modified.
func (c CallContext) Descend(target string) CallContext {
	chain := make([]string, 0, len(c.Chain)+1)
	chain = append(chain, c.Chain...)
	chain = append(chain, target)
	return CallContext{Chain: chain, Depth: c.Depth + 1}
}

// Origin returns the first id in the chain, or "" for an empty chain.
func (c CallContext) Origin() string {
	if len(c.Chain) == 0 {
		return ""
	}
	return c.Chain[0]
}

// CycleError reports that the target already appears in the call chain.
type CycleError struct {
	Chain  []string
	Target string
}

func (e *CycleError) Error() string {
	rendered := strings.Join(append(append([]string{}, e.Chain...), e.Target), " → ")
	return fmt.Sprintf("call cycle detected: %s", rendered)
}

// DepthError reports that the nesting depth limit was reached.
type DepthError struct {
	Depth int
	Max   int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("call depth limit reached: depth %d, max %d", e.Depth, e.Max)
}

// ValidateCall checks a proposed call to target against the cycle and
// depth rules. It is purely advisory: no queuing, no I/O. maxDepth <= 0
// selects DefaultMaxCallDepth. Calls originated by SystemOriginator are
// exempt from both checks.
func ValidateCall(target string, cc CallContext, maxDepth int) error {
	if cc.Origin() == SystemOriginator {
		return nil
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCallDepth
	}
	for _, id := range cc.Chain {
		if id == target {
			return &CycleError{Chain: cc.Chain, Target: target}
		}
	}
	if cc.Depth >= maxDepth {
		return &DepthError{Depth: cc.Depth, Max: maxDepth}
	}
	return nil
}
