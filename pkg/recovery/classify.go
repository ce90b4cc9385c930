package recovery

import (
	"context"
	"errors"
	"net"

	"github.com/benthamhq/bentham/pkg/surface"
	"github.com/benthamhq/bentham/pkg/types"
)

// Classify maps any failure from an adapter invocation to the stable
// error taxonomy. Adapters that return *surface.Error keep their own
// classification; transport and context errors are recognized here so
// the chain treats uncooperative adapters the same as cooperative ones.
func Classify(err error) types.ErrorCode {
	if err == nil {
		return ""
	}

	var sErr *surface.Error
	if errors.As(err, &sErr) {
		return sErr.Code
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return types.ErrCodeCancelled
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return types.ErrCodeTimeout
		}
		return types.ErrCodeNetwork
	}

	return types.ErrCodeUnknown
}
