package paging

import (
	"context"
	"fmt"

	"github.com/friendsofgo/errors"
)

// ErrPlaceholder is returned by Codec.Decode for payloads that stand for
// "no item". Projections treat such rows as absent.
var ErrPlaceholder = errors.New("paging: placeholder payload")

// ErrClosed is returned by operations on a closed paginator.
var ErrClosed = errors.New("paging: paginator closed")

// FetchError wraps a failure of the remote page source.
type FetchError struct {
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// isCancellation reports whether a load ended because its own scope was
// cancelled by Reset or Close. A context error raised inside the page source,
// such as a request timeout, is an ordinary failure.
func isCancellation(ctx context.Context) bool {
	return ctx.Err() != nil
}
