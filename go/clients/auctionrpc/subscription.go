package auctionrpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/lanewatch/lanewatch/go/internal/monitor"
	"github.com/lanewatch/lanewatch/go/internal/timeboost"
)

// timeboostedWire is the wire form of one timeboosted-transaction
// notification.
type timeboostedWire struct {
	Hash        common.Hash    `json:"hash"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	TxIndex     hexutil.Uint   `json:"transactionIndex"`
	From        common.Address `json:"from"`
	Controller  common.Address `json:"expressLaneController"`
}

// SubscribeTimeboosted opens a push subscription for timeboosted
// transactions. onEvent is invoked for each notification in delivery
// order; onError is invoked at most once if the subscription fails, after
// which no further events are delivered. The returned handle's Release
// must be awaited before a new subscription targets the same consumer.
func (c *Client) SubscribeTimeboosted(ctx context.Context, onEvent func(timeboost.TimeboostedTx), onError func(error)) (monitor.Subscription, error) {
	ch := make(chan timeboostedWire, 64)
	sub, err := c.rpc.Subscribe(ctx, "timeboost", ch, "timeboostedTransactions")
	if err != nil {
		return nil, fmt.Errorf("subscribe timeboostedTransactions: %w", err)
	}

	ts := &timeboostedSubscription{
		sub:  sub,
		done: make(chan struct{}),
	}

	// Delivery pump. Exits when the subscription is torn down or errors;
	// the done channel lets Release await the last in-flight callback.
	go func() {
		defer close(ts.done)
		for {
			select {
			case wire := <-ch:
				onEvent(timeboost.TimeboostedTx{
					Hash:        wire.Hash,
					BlockNumber: uint64(wire.BlockNumber),
					TxIndex:     uint(wire.TxIndex),
					From:        wire.From,
					Controller:  wire.Controller,
				})
			case err, ok := <-sub.Err():
				// Err closes without a value on Unsubscribe; a value
				// means the subscription died underneath us.
				if ok && err != nil {
					onError(err)
				}
				return
			}
		}
	}()

	return ts, nil
}

// timeboostedSubscription is the releasable handle returned by
// SubscribeTimeboosted.
type timeboostedSubscription struct {
	sub  *rpc.ClientSubscription
	done chan struct{}
	once sync.Once
}

// Release unsubscribes and waits for the delivery pump to drain. Safe to
// call more than once.
func (s *timeboostedSubscription) Release(ctx context.Context) error {
	s.once.Do(s.sub.Unsubscribe)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
