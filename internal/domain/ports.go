package domain

import "context"

// Resolver looks up signaling channels in the directory service.
type Resolver interface {
	// Resolve returns the channel ARN, endpoints and relay credentials.
	// A missing channel is reported as a *ResolutionError of kind NotFound.
	Resolve(ctx context.Context, name string, role Role) (ChannelInfo, error)
	// Create provisions a new channel and returns its ARN.
	Create(ctx context.Context, name string) (string, error)
}

// Listener receives events from a signaling transport, in arrival order.
type Listener interface {
	OnMessage(msg Message)
	OnProtocolError(err error)
	OnException(err error)
}

// Signaler is an open signaling connection.
type Signaler interface {
	Send(msg Message) error
	Close() error
}

// ConnectionState mirrors the peer connection state reported by the media engine.
type ConnectionState string

const (
	ConnectionNew          ConnectionState = "new"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionFailed       ConnectionState = "failed"
	ConnectionClosed       ConnectionState = "closed"
)

// MediaEngine manages the peer connection.
type MediaEngine interface {
	CreateOffer(ctx context.Context) (Description, error)
	CreateAnswer(ctx context.Context) (Description, error)
	SetLocalDescription(d Description) error
	SetRemoteDescription(d Description) error
	AddCandidate(c Candidate) error
	OnLocalCandidate(fn func(c Candidate))
	OnConnectionStateChange(fn func(s ConnectionState))
	Close() error
}
