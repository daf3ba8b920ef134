package dice

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls dice.v1.DiceService.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Roll evaluates req remotely. Errors are gRPC status errors carrying the
// localized message.
func (c *Client) Roll(ctx context.Context, req RollRequest, opts ...grpc.CallOption) (RollResponse, error) {
	if c == nil || c.conn == nil {
		return RollResponse{}, errors.New("dice client is not configured")
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, rollMethod, req.Struct(), out, opts...); err != nil {
		return RollResponse{}, err
	}
	return ParseRollResponse(out)
}
