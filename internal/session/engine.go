// Package session drives offer/answer negotiation over a signaling channel.
//
// A Session is created with a media engine, opened with a signaling
// connection, and then fed transport events through the domain.Listener
// methods. All state changes happen under one lock; offer and answer
// creation run on their own goroutines and are discarded if the session
// was torn down in the meantime.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/bbielsa/kvsrtc/internal/domain"
)

// Config configures a Session.
type Config struct {
	Role     domain.Role
	ClientID string

	// AnswerTimeout bounds the wait for an answer once an offer has been
	// sent. Zero disables it.
	AnswerTimeout time.Duration

	// CandidateTimeout bounds how long remote candidates may stay queued
	// while no remote description has arrived. Zero disables it.
	CandidateTimeout time.Duration

	// OnStateChange and OnError are called without the session lock held.
	OnStateChange func(State)
	OnError       func(error)

	LoggerFactory logging.LoggerFactory
}

// Session is one negotiation attempt between this client and a peer.
type Session struct {
	cfg   Config
	role  role
	media domain.MediaEngine
	log   logging.LeveledLogger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu             sync.Mutex
	signal         domain.Signaler
	state          State
	local          *domain.Description
	remote         *domain.Description
	pending        []domain.Candidate
	early          []domain.Message
	peerClientID   string
	gen            uint64
	answerTimer    *time.Timer
	candidateTimer *time.Timer
	err            error
	notify         []func()
}

// New creates a session in INIT. The session registers itself for the
// media engine's local candidate and connection state events.
func New(cfg Config, media domain.MediaEngine) (*Session, error) {
	r, err := newRole(cfg.Role)
	if err != nil {
		return nil, err
	}
	if cfg.ClientID == "" && r.kind() == domain.RoleViewer {
		return nil, errors.New("viewer session requires a client id")
	}
	if media == nil {
		return nil, errors.New("session requires a media engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:    cfg,
		role:   r,
		media:  media,
		log:    newLogger(cfg.LoggerFactory),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateInit,
	}

	media.OnLocalCandidate(s.onLocalCandidate)
	media.OnConnectionStateChange(s.onConnectionState)
	return s, nil
}

// Open attaches the signaling connection and starts negotiation. Messages
// delivered before Open are replayed in arrival order.
func (s *Session) Open(sig domain.Signaler) {
	s.mu.Lock()
	defer s.unlock()

	if s.state.Terminal() {
		s.log.Warnf("open after %s, closing signaling connection", s.state)
		s.notify = append(s.notify, func() { sig.Close() })
		return
	}
	if s.signal != nil {
		return
	}

	s.signal = sig
	s.setState(StateSignalingReady)
	s.role.open(s)

	early := s.early
	s.early = nil
	for _, msg := range early {
		if s.state.Terminal() {
			break
		}
		s.handle(msg)
	}
}

// OnMessage implements domain.Listener.
func (s *Session) OnMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.unlock()

	if s.state.Terminal() {
		s.log.Warnf("ignoring %s in state %s", msg.Action, s.state)
		return
	}
	if s.signal == nil {
		s.early = append(s.early, msg)
		return
	}
	s.handle(msg)
}

// OnProtocolError implements domain.Listener. A malformed frame is
// reported but does not end the session.
func (s *Session) OnProtocolError(err error) {
	s.mu.Lock()
	defer s.unlock()

	if s.state.Terminal() {
		return
	}
	s.report(err)
}

// OnException implements domain.Listener. The session fails.
func (s *Session) OnException(err error) {
	s.mu.Lock()
	defer s.unlock()

	if s.state.Terminal() {
		s.log.Debugf("exception after %s: %v", s.state, err)
		return
	}
	s.fail(err)
}

// Close tears the session down. Calling it more than once, or after the
// session failed, does nothing.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.unlock()

	if s.state.Terminal() {
		return
	}
	s.teardown(StateClosed)
}

// State returns the current negotiation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure cause once the session is FAILED.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed after teardown has released the signaling connection and
// the media engine.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// PeerClientID returns the client id learned from the first offer (master only).
func (s *Session) PeerClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerClientID
}

// RemoteDescription returns the applied remote description, if any.
func (s *Session) RemoteDescription() (domain.Description, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return domain.Description{}, false
	}
	return *s.remote, true
}

func (s *Session) handle(msg domain.Message) {
	switch msg.Action {
	case domain.ActionSDPOffer, domain.ActionSDPAnswer:
		d, err := msg.Description()
		if err != nil {
			s.report(&domain.ProtocolError{Frame: msg.Payload, Err: err})
			return
		}
		if (msg.Action == domain.ActionSDPOffer) != (d.Type == domain.SDPTypeOffer) {
			s.report(&domain.ProtocolError{Frame: msg.Payload, Err: fmt.Errorf("%s carries sdp type %q", msg.Action, d.Type)})
			return
		}

		if msg.Action == domain.ActionSDPOffer {
			s.log.Infof("received SDP offer from %q", msg.SenderClientID)
			err = s.role.onOffer(s, msg.SenderClientID, d)
		} else {
			s.log.Infof("received SDP answer")
			err = s.role.onAnswer(s, d)
		}
		if err != nil {
			s.report(err)
		}

	case domain.ActionICECandidate:
		c, err := msg.Candidate()
		if err != nil {
			s.report(&domain.ProtocolError{Frame: msg.Payload, Err: err})
			return
		}
		s.addRemoteCandidate(c)

	case domain.ActionStatusResponse:
		s.report(&domain.ProtocolError{Status: msg.Status, Err: errors.New("status response")})
	}
}

func (s *Session) addRemoteCandidate(c domain.Candidate) {
	if s.remote == nil {
		s.pending = append(s.pending, c)
		s.log.Debugf("queued remote candidate (%d pending)", len(s.pending))
		s.startCandidateTimer()
		return
	}
	if err := s.media.AddCandidate(c); err != nil {
		s.report(fmt.Errorf("add remote candidate: %w", err))
	}
}

// applyRemote records d as the remote description and flushes the queued
// candidates in receipt order.
func (s *Session) applyRemote(d domain.Description) {
	s.remote = &d
	stopTimer(&s.candidateTimer)

	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		if err := s.media.AddCandidate(c); err != nil {
			s.report(fmt.Errorf("add queued candidate: %w", err))
		}
	}
	if len(pending) > 0 {
		s.log.Debugf("flushed %d queued candidates", len(pending))
	}
}

// requestLocal creates an offer or answer off the lock and hands it to the
// role once it is ready.
func (s *Session) requestLocal(t domain.SDPType) {
	gen := s.gen
	go func() {
		var (
			d   domain.Description
			err error
		)
		if t == domain.SDPTypeOffer {
			d, err = s.media.CreateOffer(s.ctx)
		} else {
			d, err = s.media.CreateAnswer(s.ctx)
		}

		s.mu.Lock()
		defer s.unlock()

		if gen != s.gen || s.state.Terminal() {
			s.log.Debugf("discarding %s created after teardown", t)
			return
		}
		if err != nil {
			s.fail(fmt.Errorf("create %s: %w", t, err))
			return
		}
		if err := s.media.SetLocalDescription(d); err != nil {
			s.fail(fmt.Errorf("set local %s: %w", t, err))
			return
		}
		s.local = &d
		if err := s.role.created(s, d); err != nil {
			s.fail(err)
		}
	}()
}

func (s *Session) onLocalCandidate(c domain.Candidate) {
	s.mu.Lock()
	defer s.unlock()

	if s.state.Terminal() {
		s.log.Warnf("dropping local candidate in state %s", s.state)
		return
	}

	sender, recipient := s.role.addressing(s)
	msg, err := domain.NewCandidateMessage(c, sender, recipient)
	if err != nil {
		s.report(err)
		return
	}
	if err := s.send(msg); err != nil {
		s.report(fmt.Errorf("send candidate: %w", err))
	}
}

func (s *Session) onConnectionState(cs domain.ConnectionState) {
	s.mu.Lock()
	defer s.unlock()

	s.log.Infof("media connection %s", cs)
	if cs == domain.ConnectionFailed && !s.state.Terminal() {
		s.fail(errors.New("media connection failed"))
	}
}

func (s *Session) send(msg domain.Message) error {
	if s.signal == nil {
		return errors.New("signaling connection not open")
	}
	s.log.Debugf("sending %s to %q", msg.Action, msg.RecipientClientID)
	return s.signal.Send(msg)
}

func (s *Session) startAnswerTimer() {
	timeout := s.cfg.AnswerTimeout
	if timeout <= 0 || s.answerTimer != nil {
		return
	}
	gen := s.gen
	s.answerTimer = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		defer s.unlock()
		if gen != s.gen || s.state.Terminal() || s.remote != nil {
			return
		}
		s.fail(domain.NewTimeoutError(s.state.String(), fmt.Sprintf("no answer within %s", timeout)))
	})
}

func (s *Session) startCandidateTimer() {
	timeout := s.cfg.CandidateTimeout
	if timeout <= 0 || s.candidateTimer != nil {
		return
	}
	gen := s.gen
	s.candidateTimer = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		defer s.unlock()
		if gen != s.gen || s.state.Terminal() || s.remote != nil {
			return
		}
		s.fail(domain.NewTimeoutError(s.state.String(),
			fmt.Sprintf("%d candidates queued without a remote description for %s", len(s.pending), timeout)))
	})
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.log.Infof("%s -> %s", s.state, st)
	s.state = st
	if cb := s.cfg.OnStateChange; cb != nil {
		s.notify = append(s.notify, func() { cb(st) })
	}
}

func (s *Session) report(err error) {
	s.log.Warnf("%v", err)
	if cb := s.cfg.OnError; cb != nil {
		s.notify = append(s.notify, func() { cb(err) })
	}
}

func (s *Session) fail(err error) {
	if s.state.Terminal() {
		return
	}
	s.err = err
	s.report(err)
	s.teardown(StateFailed)
}

// teardown must run at most once; callers check Terminal first.
func (s *Session) teardown(final State) {
	s.gen++
	s.cancel()
	stopTimer(&s.answerTimer)
	stopTimer(&s.candidateTimer)
	s.pending = nil
	s.early = nil
	s.setState(final)

	sig, media := s.signal, s.media
	s.notify = append(s.notify, func() {
		if sig != nil {
			if err := sig.Close(); err != nil {
				s.log.Warnf("close signaling: %v", err)
			}
		}
		if err := media.Close(); err != nil {
			s.log.Warnf("close media: %v", err)
		}
		close(s.done)
	})
}

// unlock releases the session lock and then runs the callbacks queued
// while it was held.
func (s *Session) unlock() {
	fns := s.notify
	s.notify = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func newLogger(f logging.LoggerFactory) logging.LeveledLogger {
	if f == nil {
		return logging.NewDefaultLeveledLoggerForScope("session", logging.LogLevelDisabled, io.Discard)
	}
	return f.NewLogger("session")
}
