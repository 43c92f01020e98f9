package hl7

import (
	"context"
	"fmt"
)

// HandlerFunc processes a dispatched message.
type HandlerFunc func(ctx context.Context, msg MessageReader) error

type route struct {
	msgType string
	trigger string
	handler HandlerFunc
}

// Router dispatches messages to handlers by message type and trigger event,
// read from the header's message-type field.
type Router struct {
	routes []route
}

func NewRouter() *Router {
	return &Router{}
}

// Handle registers a handler for a message type and trigger event. An empty
// string matches any value for that position.
func (r *Router) Handle(msgType, trigger string, h HandlerFunc) {
	r.routes = append(r.routes, route{msgType: msgType, trigger: trigger, handler: h})
}

// Dispatch routes msg to the most specific registered handler: exact type
// and trigger, then exact type, then trigger alone, then the catch-all.
// Among equally specific routes the first registered wins. It reports
// whether a handler ran, along with that handler's error.
func (r *Router) Dispatch(ctx context.Context, msg MessageReader) (bool, error) {
	msgType, err := msg.Get(1, 9, 1, 1)
	if err != nil {
		return false, fmt.Errorf("hl7: read message type: %w", err)
	}
	trigger, err := msg.Get(1, 9, 1, 2)
	if err != nil {
		return false, fmt.Errorf("hl7: read trigger event: %w", err)
	}

	best := -1
	var h HandlerFunc
	for _, rt := range r.routes {
		if rt.msgType != "" && rt.msgType != msgType {
			continue
		}
		if rt.trigger != "" && rt.trigger != trigger {
			continue
		}
		score := 0
		if rt.msgType != "" {
			score += 2
		}
		if rt.trigger != "" {
			score++
		}
		if score > best {
			best = score
			h = rt.handler
		}
	}
	if h == nil {
		return false, nil
	}
	return true, h(ctx, msg)
}
