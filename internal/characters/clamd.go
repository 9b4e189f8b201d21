package characters

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dutchcoders/go-clamd"
)

// ClamdScanner streams image bytes to a clamd daemon before they are stored.
type ClamdScanner struct {
	addr string
}

func NewClamdScanner(addr string) *ClamdScanner {
	return &ClamdScanner{addr: addr}
}

// Scan returns ErrInfected when clamd reports anything other than OK.
func (s *ClamdScanner) Scan(ctx context.Context, data []byte) error {
	client := clamd.NewClamd(s.addr)

	abort := make(chan bool)
	defer close(abort)

	results, err := client.ScanStream(bytes.NewReader(data), abort)
	if err != nil {
		return fmt.Errorf("clamd scan stream: %w", err)
	}

	infected := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-results:
			if !ok {
				if infected {
					return ErrInfected
				}
				return nil
			}
			if result.Status != clamd.RES_OK {
				infected = true
			}
		}
	}
}
