package cnl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Hello is exchanged in both directions before any frames flow.
const Hello = "CANNELLONIv1"

// ErrBadHello reports a peer that answered with something other than Hello.
var ErrBadHello = errors.New("bad hello")

// Handshake sends Hello and expects the peer's Hello within timeout. Both
// directions run concurrently so peers that write before reading do not
// deadlock. The connection deadline is cleared on return.
func Handshake(ctx context.Context, c net.Conn, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer c.SetDeadline(time.Time{})

	errCh := make(chan error, 2)
	go func() {
		_, err := io.WriteString(c, Hello)
		errCh <- err
	}()
	go func() {
		buf := make([]byte, len(Hello))
		_, err := io.ReadFull(c, buf)
		if err == nil && string(buf) != Hello {
			err = fmt.Errorf("%w: %q", ErrBadHello, buf)
		}
		errCh <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("handshake: %w", err)
			}
		}
	}
	return nil
}
