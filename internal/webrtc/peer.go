package webrtc

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/logging"
	pion "github.com/pion/webrtc/v4"

	"github.com/bbielsa/kvsrtc/internal/domain"
)

var _ domain.MediaEngine = (*Peer)(nil)

// Config configures a Peer.
type Config struct {
	Role     domain.Role
	ClientID string
	Region   string

	RelayCredentials []domain.RelayCredential

	// VideoOut receives the remote H264 video as an Annex-B stream. Nil
	// discards it.
	VideoOut io.Writer

	LoggerFactory logging.LoggerFactory
}

// Peer wraps a Pion PeerConnection and implements domain.MediaEngine.
type Peer struct {
	pc  *pion.PeerConnection
	dc  *pion.DataChannel
	log logging.LeveledLogger

	mu          sync.Mutex
	onCandidate func(domain.Candidate)
	onState     func(domain.ConnectionState)
	closeOnce   sync.Once
}

// NewPeer creates a PeerConnection with H264/Opus/PCMU, NACK handling and a
// data channel. Viewers also receive video and exchange audio.
func NewPeer(cfg Config) (*Peer, error) {
	m := &pion.MediaEngine{}
	if err := registerCodecs(m); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	generatorFactory, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	responderFactory, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	m.RegisterFeedback(pion.RTCPFeedback{Type: "nack"}, pion.RTPCodecTypeVideo)
	m.RegisterFeedback(pion.RTCPFeedback{Type: "nack", Parameter: "pli"}, pion.RTPCodecTypeVideo)
	i.Add(responderFactory)
	i.Add(generatorFactory)

	se := pion.SettingEngine{}
	if cfg.LoggerFactory != nil {
		se.LoggerFactory = cfg.LoggerFactory
	}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
		pion.WithSettingEngine(se),
	)

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:    iceServers(cfg.Region, cfg.RelayCredentials),
		BundlePolicy:  pion.BundlePolicyMaxBundle,
		RTCPMuxPolicy: pion.RTCPMuxPolicyRequire,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:  pc,
		log: newLogger(cfg.LoggerFactory),
	}

	if cfg.Role == domain.RoleViewer {
		if err := p.addTransceivers(); err != nil {
			pc.Close()
			return nil, err
		}
	}

	dc, err := pc.CreateDataChannel("data-channel-of-"+cfg.ClientID, nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	p.dc = dc
	p.logDataChannel(dc)
	pc.OnDataChannel(func(remote *pion.DataChannel) {
		p.log.Infof("remote data channel %q", remote.Label())
		p.logDataChannel(remote)
	})

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		p.log.Infof("ICE connection state: %s", state)
	})
	pc.OnConnectionStateChange(p.handleConnectionState)
	pc.OnICECandidate(p.handleICECandidate)
	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		codec := track.Codec()
		p.log.Infof("got track: kind=%s codec=%s pt=%d", track.Kind(), codec.MimeType, codec.PayloadType)

		if track.Kind() == pion.RTPCodecTypeVideo && strings.EqualFold(codec.MimeType, pion.MimeTypeH264) && cfg.VideoOut != nil {
			go p.readVideoTrack(track, cfg.VideoOut)
			return
		}
		go drain(track)
	})

	return p, nil
}

func registerCodecs(m *pion.MediaEngine) error {
	videoFeedback := []pion.RTCPFeedback{{Type: "goog-remb"}, {Type: "ccm", Parameter: "fir"}}
	video := []pion.RTPCodecParameters{
		{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:     pion.MimeTypeH264,
				ClockRate:    90000,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 125,
		},
		{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:     pion.MimeTypeH264,
				ClockRate:    90000,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=0;profile-level-id=64001f",
				RTCPFeedback: videoFeedback,
			},
			PayloadType: 121,
		},
	}
	for _, c := range video {
		if err := m.RegisterCodec(c, pion.RTPCodecTypeVideo); err != nil {
			return fmt.Errorf("register H264: %w", err)
		}
	}

	audio := []pion.RTPCodecParameters{
		{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:    pion.MimeTypeOpus,
				ClockRate:   48000,
				Channels:    2,
				SDPFmtpLine: "minptime=10;useinbandfec=1",
			},
			PayloadType: 111,
		},
		{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:  pion.MimeTypePCMU,
				ClockRate: 8000,
				Channels:  1,
			},
			PayloadType: 0,
		},
	}
	for _, c := range audio {
		if err := m.RegisterCodec(c, pion.RTPCodecTypeAudio); err != nil {
			return fmt.Errorf("register %s: %w", c.MimeType, err)
		}
	}
	return nil
}

// iceServers returns the regional STUN server followed by the relays.
func iceServers(region string, relays []domain.RelayCredential) []pion.ICEServer {
	servers := []pion.ICEServer{{URLs: []string{domain.STUNServer(region)}}}
	for _, r := range relays {
		var urls []string
		for _, u := range r.URIs {
			// Some callers pass the whole list as one "[a, b]" string.
			for _, part := range strings.Split(strings.Trim(u, "[]"), ",") {
				if part = strings.TrimSpace(part); part != "" {
					urls = append(urls, part)
				}
			}
		}
		if len(urls) == 0 {
			continue
		}
		servers = append(servers, pion.ICEServer{
			URLs:       urls,
			Username:   r.Username,
			Credential: r.Password,
		})
	}
	return servers
}

// addTransceivers adds audio (sendrecv) and video (recvonly) transceivers.
func (p *Peer) addTransceivers() error {
	_, err := p.pc.AddTransceiverFromKind(pion.RTPCodecTypeAudio, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		return fmt.Errorf("add audio transceiver: %w", err)
	}

	_, err = p.pc.AddTransceiverFromKind(pion.RTPCodecTypeVideo, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return fmt.Errorf("add video transceiver: %w", err)
	}

	return nil
}

func (p *Peer) logDataChannel(dc *pion.DataChannel) {
	label := dc.Label()
	dc.OnOpen(func() {
		p.log.Infof("data channel %q opened", label)
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		p.log.Infof("data channel %q message: %s", label, string(msg.Data))
	})
	dc.OnClose(func() {
		p.log.Infof("data channel %q closed", label)
	})
}

func (p *Peer) readVideoTrack(track *pion.TrackRemote, w io.Writer) {
	p.log.Infof("reading H264 video track")

	sink := newAnnexBWriter(w)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			p.log.Infof("video track ended: %v", err)
			return
		}
		if err := sink.WritePayload(pkt.Payload); err != nil {
			p.log.Debugf("drop video payload: %v", err)
		}
	}
}

func drain(track *pion.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func (p *Peer) handleICECandidate(c *pion.ICECandidate) {
	if c == nil {
		p.log.Infof("ICE gathering complete")
		return
	}

	candidate := toCandidate(c.ToJSON())
	if isLoopback(candidate.Candidate) {
		p.log.Debugf("filtering loopback ICE candidate")
		return
	}

	p.mu.Lock()
	fn := p.onCandidate
	p.mu.Unlock()

	p.log.Debugf("local ICE candidate: %s", candidate.Candidate)
	if fn != nil {
		fn(candidate)
	}
}

func (p *Peer) handleConnectionState(state pion.PeerConnectionState) {
	p.log.Infof("peer connection state: %s", state)

	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()

	if fn != nil {
		fn(domain.ConnectionState(state.String()))
	}
}

// OnLocalCandidate registers the callback for locally gathered candidates.
func (p *Peer) OnLocalCandidate(fn func(domain.Candidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = fn
}

// OnConnectionStateChange registers the callback for peer connection state changes.
func (p *Peer) OnConnectionStateChange(fn func(domain.ConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *Peer) CreateOffer(ctx context.Context) (domain.Description, error) {
	if err := ctx.Err(); err != nil {
		return domain.Description{}, err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.Description{}, fmt.Errorf("create offer: %w", err)
	}
	return domain.Description{Type: domain.SDPTypeOffer, SDP: offer.SDP}, nil
}

func (p *Peer) CreateAnswer(ctx context.Context) (domain.Description, error) {
	if err := ctx.Err(); err != nil {
		return domain.Description{}, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.Description{}, fmt.Errorf("create answer: %w", err)
	}
	return domain.Description{Type: domain.SDPTypeAnswer, SDP: answer.SDP}, nil
}

func (p *Peer) SetLocalDescription(d domain.Description) error {
	if err := p.pc.SetLocalDescription(toSessionDescription(d)); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	p.log.Infof("local SDP %s set", d.Type)
	return nil
}

func (p *Peer) SetRemoteDescription(d domain.Description) error {
	if err := p.pc.SetRemoteDescription(toSessionDescription(d)); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	p.log.Infof("remote SDP %s set", d.Type)
	return nil
}

// AddCandidate adds a remote candidate. The remote description must be set.
func (p *Peer) AddCandidate(c domain.Candidate) error {
	if err := p.pc.AddICECandidate(toCandidateInit(c)); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	p.log.Debugf("added remote ICE candidate")
	return nil
}

// Close shuts down the DataChannel and PeerConnection.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.dc != nil {
			p.dc.Close()
		}
		err = p.pc.Close()
	})
	return err
}

func toSessionDescription(d domain.Description) pion.SessionDescription {
	t := pion.SDPTypeAnswer
	if d.Type == domain.SDPTypeOffer {
		t = pion.SDPTypeOffer
	}
	return pion.SessionDescription{Type: t, SDP: d.SDP}
}

func toCandidate(init pion.ICECandidateInit) domain.Candidate {
	c := domain.Candidate{Candidate: init.Candidate}
	if init.SDPMid != nil {
		c.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		c.SDPMLineIndex = int(*init.SDPMLineIndex)
	}
	return c
}

func toCandidateInit(c domain.Candidate) pion.ICECandidateInit {
	sdpMid := c.SDPMid
	sdpMLineIndex := uint16(c.SDPMLineIndex)
	return pion.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &sdpMid,
		SDPMLineIndex: &sdpMLineIndex,
	}
}

func isLoopback(candidate string) bool {
	return strings.Contains(candidate, "127.0.0.1") || strings.Contains(candidate, "::1 ")
}

func newLogger(f logging.LoggerFactory) logging.LeveledLogger {
	if f == nil {
		return logging.NewDefaultLeveledLoggerForScope("webrtc", logging.LogLevelDisabled, io.Discard)
	}
	return f.NewLogger("webrtc")
}
