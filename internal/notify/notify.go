// Package notify subscribes to a full node's ZMQ "hashblock" topic so the
// driver can refresh block_count without polling RPC on every block.
package notify

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/go-zeromq/zmq4"
)

// TipNotifier delivers a best-effort signal whenever the node announces a
// new best block hash. It is purely an optimization over polling
// GetBlockCount; the driver must still trust its own RPC-sourced block
// count as the authority.
type TipNotifier struct {
	sock zmq4.Socket
	ch   chan string
}

// Dial connects to one or more ZMQ publisher endpoints and subscribes to
// "hashblock".
func Dial(ctx context.Context, endpoints []string) (*TipNotifier, error) {
	sock := zmq4.NewSub(ctx)
	for _, ep := range endpoints {
		if err := sock.Dial(ep); err != nil {
			sock.Close()
			return nil, fmt.Errorf("notify: dial %s: %w", ep, err)
		}
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, "hashblock"); err != nil {
		sock.Close()
		return nil, fmt.Errorf("notify: subscribe hashblock: %w", err)
	}

	n := &TipNotifier{sock: sock, ch: make(chan string, 16)}
	go n.loop()
	return n, nil
}

func (n *TipNotifier) loop() {
	for {
		msg, err := n.sock.Recv()
		if err != nil {
			close(n.ch)
			return
		}
		if len(msg.Frames) < 2 {
			continue
		}
		select {
		case n.ch <- hex.EncodeToString(msg.Frames[1]):
		default:
			// Driver is behind; it will pick up the new tip on its next
			// RPC poll regardless, so a dropped notification is harmless.
		}
	}
}

// Hashes yields the announced block hashes as they arrive; closed when the
// underlying socket errors out (e.g. the node restarts).
func (n *TipNotifier) Hashes() <-chan string { return n.ch }

func (n *TipNotifier) Close() error { return n.sock.Close() }
