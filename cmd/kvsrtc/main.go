package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/bbielsa/kvsrtc/internal/auth"
	"github.com/bbielsa/kvsrtc/internal/config"
	"github.com/bbielsa/kvsrtc/internal/domain"
	"github.com/bbielsa/kvsrtc/internal/kvs"
	"github.com/bbielsa/kvsrtc/internal/session"
	"github.com/bbielsa/kvsrtc/internal/webrtc"
)

const longHelp = `kvsrtc connects to a Kinesis Video Streams signaling channel as master or
viewer and negotiates a WebRTC session with the remote peer.

The remote H264 stream is written to --output (stdout by default). Pipe it
to ffplay or ffmpeg for playback or recording.

Environment Variables:
  KVS_CHANNEL_NAME       Signaling channel name (required)
  AWS_REGION             AWS region (required)
  KVS_CLIENT_ID          Viewer client id (default: random)
  KVS_IDENTITY_POOL_ID   Cognito identity pool for credentials
  AWS_ACCESS_KEY_ID      Static credentials (with AWS_SECRET_ACCESS_KEY)
  KVS_ANSWER_TIMEOUT     Max wait for an answer, e.g. 30s (0 disables)
  KVS_CANDIDATE_TIMEOUT  Max wait for a remote offer while holding candidates
  KVS_PING_INTERVAL      Signaling keepalive interval (0 disables)
  KVS_LOG_LEVEL          disabled, error, warn, info, debug or trace

Examples:
  # Watch a camera that publishes as master
  kvsrtc viewer | ffplay -f h264 -

  # Record to MP4
  kvsrtc viewer | ffmpeg -f h264 -i - -c copy output.mp4`

type options struct {
	channel  string
	clientID string
	output   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "kvsrtc",
		Short:        "WebRTC signaling client for Kinesis Video Streams",
		Long:         longHelp,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.channel, "channel", "", "signaling channel name (overrides KVS_CHANNEL_NAME)")
	root.PersistentFlags().StringVar(&opts.clientID, "client-id", "", "client id (overrides KVS_CLIENT_ID)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "-", "file for the remote H264 stream, - for stdout")

	for _, r := range []domain.Role{domain.RoleMaster, domain.RoleViewer} {
		role := r
		root.AddCommand(&cobra.Command{
			Use:   domainRoleName(role),
			Short: fmt.Sprintf("Connect as %s", domainRoleName(role)),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), role, opts)
			},
		})
	}

	return root
}

func domainRoleName(r domain.Role) string {
	if r == domain.RoleMaster {
		return "master"
	}
	return "viewer"
}

func run(parent context.Context, role domain.Role, opts *options) error {
	if opts.channel != "" {
		os.Setenv("KVS_CHANNEL_NAME", opts.channel)
	}
	if opts.clientID != "" {
		os.Setenv("KVS_CLIENT_ID", opts.clientID)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = cfg.LogLevel
	log := loggerFactory.NewLogger("main")

	out, closeOut, err := openOutput(opts.output)
	if err != nil {
		return err
	}
	defer closeOut()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer ossignal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Infof("received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Step 1: Load AWS credentials
	awsCfg, err := auth.LoadConfig(ctx, auth.Options{
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
		IdentityPoolID:  cfg.IdentityPoolID,
	})
	if err != nil {
		return err
	}

	// Step 2: Create the channel resolver
	resolver := kvs.NewFromConfig(awsCfg, kvs.Options{
		ClientID:      cfg.ClientID,
		LoggerFactory: loggerFactory,
	})

	// KVS_PING_INTERVAL=0 turns keepalive off; the transport treats 0 as its default.
	pingInterval := cfg.PingInterval
	if pingInterval == 0 {
		pingInterval = -1
	}

	// Step 3: Resolve, sign, connect signaling and start negotiating
	log.Infof("connecting to %s as %s (client id %s)", cfg.ChannelName, role, cfg.ClientID)
	sess, err := session.Connect(ctx, session.ConnectConfig{
		Config: session.Config{
			Role:             role,
			ClientID:         cfg.ClientID,
			AnswerTimeout:    cfg.AnswerTimeout,
			CandidateTimeout: cfg.CandidateTimeout,
			OnStateChange: func(s session.State) {
				log.Infof("session state: %s", s)
			},
			OnError: func(err error) {
				log.Warnf("session: %v", err)
			},
			LoggerFactory: loggerFactory,
		},
		Channel:      cfg.ChannelName,
		Region:       cfg.Region,
		Resolver:     resolver,
		Credentials:  awsCfg.Credentials,
		PingInterval: pingInterval,
		NewMedia: func(_ context.Context, info domain.ChannelInfo) (domain.MediaEngine, error) {
			peer, err := webrtc.NewPeer(webrtc.Config{
				Role:             role,
				ClientID:         cfg.ClientID,
				Region:           cfg.Region,
				RelayCredentials: info.RelayCredentials,
				VideoOut:         out,
				LoggerFactory:    loggerFactory,
			})
			if err != nil {
				return nil, err
			}
			return peer, nil
		},
	})
	if err != nil {
		return err
	}

	// Step 4: Wait for shutdown or a terminal session
	select {
	case <-ctx.Done():
		sess.Close()
		<-sess.Done()
		log.Infof("done")
		return nil
	case <-sess.Done():
	}

	if err := sess.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Infof("done")
	return nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	return f, func() { f.Close() }, nil
}
