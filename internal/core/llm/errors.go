package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/markdave123-py/smartbot/internal/core"
)

// classify maps a provider error onto the completion failure taxonomy.
func classify(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", core.ErrTimeout, provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", core.ErrTimeout, provider, err)
	}
	return fmt.Errorf("%w: %s: %v", core.ErrUpstream, provider, err)
}

// unconfiguredClient stands in when no API credential is set.
type unconfiguredClient struct {
	provider string
}

func (u unconfiguredClient) Complete(context.Context, string, []core.Message) (string, error) {
	return "", fmt.Errorf("%w: %s api key is empty", core.ErrServiceUnavailable, u.provider)
}

var _ core.CompletionClient = unconfiguredClient{}
