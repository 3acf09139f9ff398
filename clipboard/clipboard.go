// Package clipboard carries session descriptions between peers by hand:
// the local SDP is copied out and the remote one is picked up when the user
// copies it in.
package clipboard

import (
	"context"
	"strings"
	"time"

	cb "github.com/atotto/clipboard"
)

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// WaitSDP polls the clipboard until it holds a session description other
// than prev.
func WaitSDP(ctx context.Context, prev string, every time.Duration) (string, error) {
	return waitChange(ctx, Read, prev, every)
}

func waitChange(ctx context.Context, read func() (string, error), prev string, every time.Duration) (string, error) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		text, err := read()
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != strings.TrimSpace(prev) && strings.HasPrefix(text, "v=0") {
			return text + "\r\n", nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
}
