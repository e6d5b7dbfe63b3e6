package generation

import (
	"context"
	"errors"
	"fmt"
	"net"

	"docchat/internal/domain"
)

// Classify maps a failed generator or embedder call onto the domain error
// taxonomy: deadlines become ErrTimeout, everything else ErrGenerationFailed.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsTimeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return domain.NewGenerationError(err)
}

// IsTimeout reports whether err comes from an expired deadline, either the
// caller's context or an HTTP client timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
