package conductor

import (
	"context"
	"fmt"
	"sort"

	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/domain"
)

// Handler runs one zome function on an encoded payload.
type Handler func(ctx context.Context, call domain.CallContext, payload []byte) (any, error)

// Fn adapts a typed zome function to a Handler. An empty payload decodes as
// the zero input, which is how unit-input functions are called.
func Fn[I, O any](f func(context.Context, domain.CallContext, I) (O, error)) Handler {
	return func(ctx context.Context, call domain.CallContext, payload []byte) (any, error) {
		var in I
		if len(payload) > 0 {
			if err := codec.Unmarshal(payload, &in); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		return f(ctx, call, in)
	}
}

// Unit is the input and output of functions that take or return nothing.
type Unit = struct{}

// Zome is a named table of callable functions.
type Zome struct {
	Name      string
	Functions map[string]Handler
}

// FunctionNames returns the zome's function names in sorted order.
func (z *Zome) FunctionNames() []string {
	names := make([]string, 0, len(z.Functions))
	for name := range z.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
