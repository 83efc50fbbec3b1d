// Package blocksource defines the block-iterator collaborator boundary
// and an RPC-backed default implementation.
package blocksource

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// Block is the decoded view the block processor consumes: a header
// (carrying the timestamp) and its transactions in block order.
type Block struct {
	Height uint32
	Hash   chainhash.Hash
	Header wire.BlockHeader
	Txs    []wire.MsgTx
}

// Source is the lazy block-range iterator the driver replays against. The
// core only ever asks for one height at a time; batching/prefetch is this
// collaborator's concern.
type Source interface {
	BlockCount(ctx context.Context) (uint32, error)
	Block(ctx context.Context, height uint32) (*Block, error)
	Close() error
}

// RPCSource talks to a full node's JSON-RPC interface and hands back raw
// wire types directly — the block processor works against wire.MsgTx
// without any intermediate DTO.
type RPCSource struct {
	client *rpcclient.Client
}

func NewRPCSource(host, port, user, pass string) (*RPCSource, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         fmt.Sprintf("%s:%s", host, port),
		User:         user,
		Pass:         pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("blocksource: connect: %w", err)
	}
	return &RPCSource{client: client}, nil
}

func (s *RPCSource) BlockCount(ctx context.Context) (uint32, error) {
	count, err := s.client.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("blocksource: get block count: %w", err)
	}
	return uint32(count), nil
}

func (s *RPCSource) Block(ctx context.Context, height uint32) (*Block, error) {
	hash, err := s.client.GetBlockHash(int64(height))
	if err != nil {
		return nil, fmt.Errorf("blocksource: get block hash at %d: %w", height, err)
	}

	resp, err := s.client.RawRequest("getblock", []json.RawMessage{
		json.RawMessage(fmt.Sprintf("%q", hash.String())),
		json.RawMessage("0"),
	})
	if err != nil {
		return nil, fmt.Errorf("blocksource: get raw block %d: %w", height, err)
	}

	var blockHex string
	if err := json.Unmarshal(resp, &blockHex); err != nil {
		return nil, fmt.Errorf("blocksource: decode raw block response: %w", err)
	}
	raw, err := hex.DecodeString(blockHex)
	if err != nil {
		return nil, fmt.Errorf("blocksource: hex-decode block %d: %w", height, err)
	}

	msg := &wire.MsgBlock{}
	if err := msg.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("blocksource: deserialize block %d: %w", height, err)
	}

	txs := make([]wire.MsgTx, len(msg.Transactions))
	for i, tx := range msg.Transactions {
		txs[i] = *tx
	}

	return &Block{
		Height: height,
		Hash:   *hash,
		Header: msg.Header,
		Txs:    txs,
	}, nil
}

func (s *RPCSource) Close() error {
	s.client.Shutdown()
	return nil
}
