// Package auctionrpc is the RPC client for a rollup node's timeboost
// namespace. It exposes the polling calls (auction status, economics) and
// the timeboosted-transaction subscription the dashboard monitor consumes.
package auctionrpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/lanewatch/lanewatch/go/internal/timeboost"
)

// Client wraps an RPC connection to a node exposing the timeboost API.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the node at url. Both HTTP and WebSocket URLs work for
// the polling calls; subscriptions require a WebSocket or IPC connection.
func Dial(ctx context.Context, url string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{rpc: rc}, nil
}

// NewClient wraps an existing RPC connection.
func NewClient(rc *rpc.Client) *Client {
	return &Client{rpc: rc}
}

// Close tears down the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// auctionStatusResult is the wire form of timeboost_auctionStatus.
type auctionStatusResult struct {
	Round                  hexutil.Uint64 `json:"round"`
	Phase                  string         `json:"phase"`
	TimeUntilAuctionCloses hexutil.Uint64 `json:"timeUntilAuctionCloses"`
	TimeUntilRoundStarts   hexutil.Uint64 `json:"timeUntilRoundStarts"`
	Controller             common.Address `json:"expressLaneController"`
}

// AuctionStatus fetches the current auction phase, round, controller and
// the two countdown values. Unrecognized phase strings map to
// PhaseUnknown rather than failing the poll.
func (c *Client) AuctionStatus(ctx context.Context) (timeboost.AuctionStatus, error) {
	var res auctionStatusResult
	if err := c.rpc.CallContext(ctx, &res, "timeboost_auctionStatus"); err != nil {
		return timeboost.AuctionStatus{}, fmt.Errorf("timeboost_auctionStatus: %w", err)
	}
	return timeboost.AuctionStatus{
		Round:                  uint64(res.Round),
		Phase:                  timeboost.ParsePhase(res.Phase),
		TimeUntilAuctionCloses: int64(res.TimeUntilAuctionCloses),
		TimeUntilRoundStarts:   int64(res.TimeUntilRoundStarts),
		Controller:             res.Controller,
	}, nil
}

// economicsResult is the wire form of timeboost_economics.
type economicsResult struct {
	BiddingToken       common.Address `json:"biddingToken"`
	ReservePrice       *hexutil.Big   `json:"reservePrice"`
	MinReservePrice    *hexutil.Big   `json:"minReservePrice"`
	Beneficiary        common.Address `json:"beneficiary"`
	BeneficiaryBalance *hexutil.Big   `json:"beneficiaryBalance"`
}

// Economics fetches the bidding-token economics of the auction contract.
func (c *Client) Economics(ctx context.Context) (timeboost.Economics, error) {
	var res economicsResult
	if err := c.rpc.CallContext(ctx, &res, "timeboost_economics"); err != nil {
		return timeboost.Economics{}, fmt.Errorf("timeboost_economics: %w", err)
	}
	return timeboost.Economics{
		BiddingToken:       res.BiddingToken,
		ReservePrice:       bigOrZero(res.ReservePrice),
		MinReservePrice:    bigOrZero(res.MinReservePrice),
		Beneficiary:        res.Beneficiary,
		BeneficiaryBalance: bigOrZero(res.BeneficiaryBalance),
	}, nil
}

func bigOrZero(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return (*big.Int)(v)
}
