// Package kvs resolves Kinesis Video Streams signaling channels: the channel
// ARN, its signaling and HTTPS endpoints, and the TURN relay credentials.
package kvs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideo"
	"github.com/aws/aws-sdk-go-v2/service/kinesisvideo/types"
	"github.com/aws/smithy-go"
	"github.com/pion/logging"

	"github.com/bbielsa/kvsrtc/internal/domain"
)

// API is the subset of the Kinesis Video control plane used by Resolver.
// *kinesisvideo.Client satisfies it.
type API interface {
	DescribeSignalingChannel(ctx context.Context, in *kinesisvideo.DescribeSignalingChannelInput, optFns ...func(*kinesisvideo.Options)) (*kinesisvideo.DescribeSignalingChannelOutput, error)
	CreateSignalingChannel(ctx context.Context, in *kinesisvideo.CreateSignalingChannelInput, optFns ...func(*kinesisvideo.Options)) (*kinesisvideo.CreateSignalingChannelOutput, error)
	GetSignalingChannelEndpoint(ctx context.Context, in *kinesisvideo.GetSignalingChannelEndpointInput, optFns ...func(*kinesisvideo.Options)) (*kinesisvideo.GetSignalingChannelEndpointOutput, error)
}

// Options configures a Resolver.
type Options struct {
	// ClientID is sent with relay credential requests.
	ClientID string

	// HTTPClient is used for relay credential requests. Defaults to a
	// client with a 10s timeout.
	HTTPClient *http.Client

	LoggerFactory logging.LoggerFactory
}

// Resolver implements domain.Resolver against the AWS APIs.
type Resolver struct {
	api      API
	creds    aws.CredentialsProvider
	region   string
	clientID string
	http     *http.Client
	signer   *v4.Signer
	now      func() time.Time
	log      logging.LeveledLogger
}

// NewFromConfig creates a Resolver using the region and credentials of cfg.
func NewFromConfig(cfg aws.Config, opts Options) *Resolver {
	return New(kinesisvideo.NewFromConfig(cfg), cfg.Credentials, cfg.Region, opts)
}

// New creates a Resolver over api.
func New(api API, creds aws.CredentialsProvider, region string, opts Options) *Resolver {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{
		api:      api,
		creds:    creds,
		region:   region,
		clientID: opts.ClientID,
		http:     hc,
		signer:   v4.NewSigner(),
		now:      time.Now,
		log:      newLogger(opts.LoggerFactory),
	}
}

// Resolve looks up the channel ARN, its endpoints for role and the relay
// credentials served by the channel's HTTPS endpoint.
func (r *Resolver) Resolve(ctx context.Context, name string, role domain.Role) (domain.ChannelInfo, error) {
	out, err := r.api.DescribeSignalingChannel(ctx, &kinesisvideo.DescribeSignalingChannelInput{
		ChannelName: aws.String(name),
	})
	if err != nil {
		return domain.ChannelInfo{}, resolutionError(name, "describe channel", err)
	}
	if out.ChannelInfo == nil || aws.ToString(out.ChannelInfo.ChannelARN) == "" {
		return domain.ChannelInfo{}, &domain.ResolutionError{Channel: name, Op: "describe channel", Err: errors.New("empty channel info")}
	}
	arn := aws.ToString(out.ChannelInfo.ChannelARN)
	r.log.Debugf("channel %s: %s", name, arn)

	endpoints, err := r.endpoints(ctx, name, arn, role)
	if err != nil {
		return domain.ChannelInfo{}, err
	}

	info := domain.ChannelInfo{
		Channel:   domain.Channel{ARN: arn, Name: name, Role: role},
		Endpoints: endpoints,
	}

	https, ok := info.Endpoint(domain.ProtocolData)
	if !ok {
		return domain.ChannelInfo{}, &domain.ResolutionError{Channel: name, Op: "get endpoints", Err: errors.New("no HTTPS endpoint returned")}
	}
	relays, err := r.relayCredentials(ctx, https, arn)
	if err != nil {
		return domain.ChannelInfo{}, &domain.ResolutionError{Channel: name, Op: "get ice server config", Err: err}
	}
	info.RelayCredentials = relays

	r.log.Infof("resolved %s with %d relay servers", name, len(relays))
	return info, nil
}

// Create provisions a single-master signaling channel and returns its ARN.
func (r *Resolver) Create(ctx context.Context, name string) (string, error) {
	r.log.Infof("creating signaling channel %s", name)
	out, err := r.api.CreateSignalingChannel(ctx, &kinesisvideo.CreateSignalingChannelInput{
		ChannelName: aws.String(name),
		ChannelType: types.ChannelTypeSingleMaster,
	})
	if err != nil {
		return "", resolutionError(name, "create channel", err)
	}
	return aws.ToString(out.ChannelARN), nil
}

func (r *Resolver) endpoints(ctx context.Context, name, arn string, role domain.Role) ([]domain.Endpoint, error) {
	channelRole := types.ChannelRoleViewer
	if role == domain.RoleMaster {
		channelRole = types.ChannelRoleMaster
	}

	out, err := r.api.GetSignalingChannelEndpoint(ctx, &kinesisvideo.GetSignalingChannelEndpointInput{
		ChannelARN: aws.String(arn),
		SingleMasterChannelEndpointConfiguration: &types.SingleMasterChannelEndpointConfiguration{
			Protocols: []types.ChannelProtocol{types.ChannelProtocolWss, types.ChannelProtocolHttps},
			Role:      channelRole,
		},
	})
	if err != nil {
		return nil, resolutionError(name, "get endpoints", err)
	}

	var endpoints []domain.Endpoint
	for _, item := range out.ResourceEndpointList {
		var p domain.EndpointProtocol
		switch item.Protocol {
		case types.ChannelProtocolWss:
			p = domain.ProtocolSignaling
		case types.ChannelProtocolHttps:
			p = domain.ProtocolData
		default:
			continue
		}
		endpoints = append(endpoints, domain.Endpoint{Protocol: p, URI: aws.ToString(item.ResourceEndpoint)})
	}
	return endpoints, nil
}

// resolutionError classifies an AWS API error.
func resolutionError(name, op string, err error) error {
	kind := domain.ResolutionOther
	var notFound *types.ResourceNotFoundException
	var apiErr smithy.APIError
	switch {
	case errors.As(err, &notFound):
		kind = domain.ResolutionNotFound
	case errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException":
		kind = domain.ResolutionNotFound
	}
	return &domain.ResolutionError{Kind: kind, Channel: name, Op: op, Err: err}
}

func newLogger(f logging.LoggerFactory) logging.LeveledLogger {
	if f == nil {
		return logging.NewDefaultLeveledLoggerForScope("kvs", logging.LogLevelDisabled, io.Discard)
	}
	return f.NewLogger("kvs")
}
