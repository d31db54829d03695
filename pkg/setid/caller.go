package setid

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrNoCaller is returned when a mutation runs without a caller bound to its context.
var ErrNoCaller = eris.New("no caller bound to context")

type callerKey struct{}

// WithCaller binds owner as the identity performing mutations under ctx. Mutations take their
// owner from here and never from their arguments.
func WithCaller(ctx context.Context, owner Owner) context.Context {
	return context.WithValue(ctx, callerKey{}, owner)
}

// CallerFrom returns the owner bound by WithCaller.
func CallerFrom(ctx context.Context) (Owner, error) {
	owner, ok := ctx.Value(callerKey{}).(Owner)
	if !ok {
		return Owner{}, eris.Wrap(ErrNoCaller, "")
	}
	return owner, nil
}
