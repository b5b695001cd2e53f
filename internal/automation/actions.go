package automation

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/ignite/commerce-marketing/internal/domain"
)

// Handler executes one configured action against a customer. Implementations
// must report failure through the ActionResult; returned results are recorded
// verbatim in the execution log.
type Handler interface {
	Execute(ctx context.Context, customerID uuid.UUID, config map[string]any) domain.ActionResult
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, customerID uuid.UUID, config map[string]any) domain.ActionResult

func (f HandlerFunc) Execute(ctx context.Context, customerID uuid.UUID, config map[string]any) domain.ActionResult {
	return f(ctx, customerID, config)
}

// Executor is the registry of typed action handlers. Unknown action types
// fail closed with UnsupportedAction; handler panics are recovered into a
// failed result so one bad rule can never abort the dispatcher's loop.
type Executor struct {
	handlers map[domain.ActionType]Handler
}

func NewExecutor() *Executor {
	return &Executor{handlers: make(map[domain.ActionType]Handler)}
}

// Register binds a handler to an action type. Last registration wins.
func (e *Executor) Register(action domain.ActionType, h Handler) {
	e.handlers[action] = h
}

// Registered reports whether an action type has a handler.
func (e *Executor) Registered(action domain.ActionType) bool {
	_, ok := e.handlers[action]
	return ok
}

// Execute runs the handler registered for the action type.
func (e *Executor) Execute(ctx context.Context, action domain.ActionType, customerID uuid.UUID, config map[string]any) (result domain.ActionResult) {
	h, ok := e.handlers[action]
	if !ok {
		err := &domain.UnsupportedActionError{ActionType: string(action)}
		return domain.FailedResult(err)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ActionExecutor] recovered panic in %s handler: %v", action, r)
			result = domain.FailedResult(fmt.Errorf("action %s panicked: %v", action, r))
		}
	}()

	return h.Execute(ctx, customerID, config)
}
