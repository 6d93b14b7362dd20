package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/bbielsa/kvsrtc/internal/domain"
	"github.com/bbielsa/kvsrtc/internal/signal"
	"github.com/bbielsa/kvsrtc/internal/sigv4"
)

// Dialer opens a signaling connection that reports events to l.
type Dialer func(ctx context.Context, signedURL string, l domain.Listener) (domain.Signaler, error)

// MediaFactory creates the media engine for a resolved channel.
type MediaFactory func(ctx context.Context, info domain.ChannelInfo) (domain.MediaEngine, error)

// ConnectConfig configures Connect.
type ConnectConfig struct {
	Config

	Channel     string
	Region      string
	Resolver    domain.Resolver
	Credentials aws.CredentialsProvider
	NewMedia    MediaFactory

	// Dial defaults to a signal.Client with PingInterval.
	Dial         Dialer
	PingInterval time.Duration

	// Now is the signing clock. Defaults to time.Now.
	Now func() time.Time
}

// Connect resolves the channel, signs the signaling URL, opens the
// connection and starts negotiation. A master creates the channel if it
// does not exist yet. Every failure before the session is open is returned
// here; later failures are reported through the session.
func Connect(ctx context.Context, cfg ConnectConfig) (*Session, error) {
	r, err := newRole(cfg.Role)
	if err != nil {
		return nil, err
	}
	if cfg.Resolver == nil || cfg.Credentials == nil || cfg.NewMedia == nil {
		return nil, errors.New("connect requires a resolver, credentials and a media factory")
	}
	log := newLogger(cfg.LoggerFactory)

	// 1. Resolve the channel.
	info, err := resolve(ctx, cfg.Resolver, cfg.Channel, r)
	if err != nil {
		return nil, err
	}
	log.Infof("channel %s resolved: %s", cfg.Channel, info.Channel.ARN)

	// 2. Sign the signaling URL.
	signedURL, err := signedEndpoint(ctx, cfg, r, info)
	if err != nil {
		return nil, err
	}

	// 3. Create the media engine.
	media, err := cfg.NewMedia(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("create media engine: %w", err)
	}

	sess, err := New(cfg.Config, media)
	if err != nil {
		media.Close()
		return nil, err
	}

	// 4. Connect signaling and start negotiating.
	dial := cfg.Dial
	if dial == nil {
		dial = defaultDialer(cfg)
	}
	sig, err := dial(ctx, signedURL, sess)
	if err != nil {
		sess.Close()
		return nil, err
	}
	sess.Open(sig)

	return sess, nil
}

func resolve(ctx context.Context, resolver domain.Resolver, name string, r role) (domain.ChannelInfo, error) {
	info, err := resolver.Resolve(ctx, name, r.kind())
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || !r.createsMissingChannel() {
		return domain.ChannelInfo{}, err
	}

	if _, err := resolver.Create(ctx, name); err != nil {
		return domain.ChannelInfo{}, err
	}
	return resolver.Resolve(ctx, name, r.kind())
}

func signedEndpoint(ctx context.Context, cfg ConnectConfig, r role, info domain.ChannelInfo) (string, error) {
	wss, ok := info.Endpoint(domain.ProtocolSignaling)
	if !ok {
		return "", &domain.ResolutionError{
			Kind:    domain.ResolutionOther,
			Channel: cfg.Channel,
			Op:      "get signaling endpoint",
			Err:     errors.New("no WSS endpoint returned"),
		}
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("retrieve credentials: %w", err)
	}

	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	return sigv4.Sign(sigv4.Request{
		TargetURI:       wss + "?" + r.connectParams(info.Channel.ARN, cfg.ClientID).Encode(),
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Region:          cfg.Region,
		Time:            now(),
	})
}

func defaultDialer(cfg ConnectConfig) Dialer {
	return func(ctx context.Context, signedURL string, l domain.Listener) (domain.Signaler, error) {
		return signal.Connect(ctx, signedURL, l, signal.Options{
			PingInterval:  cfg.PingInterval,
			LoggerFactory: cfg.LoggerFactory,
		})
	}
}
