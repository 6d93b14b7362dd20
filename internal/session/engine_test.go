package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bbielsa/kvsrtc/internal/domain"
)

// mockSignaler records sent messages for verification.
type mockSignaler struct {
	mu         sync.Mutex
	sent       []domain.Message
	sentCh     chan domain.Message
	closeCount int
	sendErr    error
}

func newMockSignaler() *mockSignaler {
	return &mockSignaler{sentCh: make(chan domain.Message, 64)}
}

func (m *mockSignaler) Send(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	m.sentCh <- msg
	return nil
}

func (m *mockSignaler) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	return nil
}

func (m *mockSignaler) closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

func (m *mockSignaler) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockSignaler) waitSent(t *testing.T) domain.Message {
	t.Helper()
	select {
	case msg := <-m.sentCh:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sent message")
		return domain.Message{}
	}
}

// mockMedia records calls for verification.
type mockMedia struct {
	mu         sync.Mutex
	offerSDP   string
	answerSDP  string
	createErr  error
	gate       chan struct{}
	local      []domain.Description
	remote     []domain.Description
	candidates []domain.Candidate
	closeCount int

	onCandidate func(domain.Candidate)
	onState     func(domain.ConnectionState)
}

func (m *mockMedia) wait() {
	if m.gate != nil {
		<-m.gate
	}
}

func (m *mockMedia) CreateOffer(ctx context.Context) (domain.Description, error) {
	m.wait()
	if m.createErr != nil {
		return domain.Description{}, m.createErr
	}
	return domain.Description{Type: domain.SDPTypeOffer, SDP: m.offerSDP}, nil
}

func (m *mockMedia) CreateAnswer(ctx context.Context) (domain.Description, error) {
	m.wait()
	if m.createErr != nil {
		return domain.Description{}, m.createErr
	}
	return domain.Description{Type: domain.SDPTypeAnswer, SDP: m.answerSDP}, nil
}

func (m *mockMedia) SetLocalDescription(d domain.Description) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.local = append(m.local, d)
	return nil
}

func (m *mockMedia) SetRemoteDescription(d domain.Description) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remote = append(m.remote, d)
	return nil
}

func (m *mockMedia) AddCandidate(c domain.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = append(m.candidates, c)
	return nil
}

func (m *mockMedia) OnLocalCandidate(fn func(domain.Candidate))           { m.onCandidate = fn }
func (m *mockMedia) OnConnectionStateChange(fn func(domain.ConnectionState)) { m.onState = fn }

func (m *mockMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	return nil
}

func (m *mockMedia) snapshot() (local, remote []domain.Description, candidates []domain.Candidate, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Description(nil), m.local...),
		append([]domain.Description(nil), m.remote...),
		append([]domain.Candidate(nil), m.candidates...),
		m.closeCount
}

// errorRecorder collects errors reported through Config.OnError.
type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *errorRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func newTestSession(t *testing.T, cfg Config, media *mockMedia) (*Session, *mockSignaler, *errorRecorder) {
	t.Helper()
	rec := &errorRecorder{}
	cfg.OnError = rec.record
	s, err := New(cfg, media)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sig := newMockSignaler()
	s.Open(sig)
	return s, sig, rec
}

func offerMsg(t *testing.T, sender, sdp string) domain.Message {
	t.Helper()
	msg, err := domain.NewSDPMessage(domain.Description{Type: domain.SDPTypeOffer, SDP: sdp}, sender, "")
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func answerMsg(t *testing.T, sdp string) domain.Message {
	t.Helper()
	msg, err := domain.NewSDPMessage(domain.Description{Type: domain.SDPTypeAnswer, SDP: sdp}, "", "viewer-1")
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func candidateMsg(t *testing.T, candidate string) domain.Message {
	t.Helper()
	msg, err := domain.NewCandidateMessage(domain.Candidate{Candidate: candidate, SDPMid: "0"}, "peer", "")
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", s.State(), want)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not done")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Role: "OBSERVER"}, &mockMedia{}); err == nil {
		t.Error("expected error for unknown role")
	}
	if _, err := New(Config{Role: domain.RoleViewer}, &mockMedia{}); err == nil {
		t.Error("expected error for viewer without client id")
	}
	if _, err := New(Config{Role: domain.RoleMaster}, nil); err == nil {
		t.Error("expected error for missing media engine")
	}
}

func TestMaster_WaitsForOffer(t *testing.T) {
	s, sig, _ := newTestSession(t, Config{Role: domain.RoleMaster, ClientID: "master"}, &mockMedia{})
	defer s.Close()

	if s.State() != StateSignalingReady {
		t.Errorf("state = %s, want SIGNALING_READY", s.State())
	}
	time.Sleep(20 * time.Millisecond)
	if sig.sentCount() != 0 {
		t.Error("master must not send anything before an offer")
	}
}

func TestMaster_AnswersOffer(t *testing.T) {
	media := &mockMedia{answerSDP: "v=0 answer"}
	states := make(chan State, 8)
	cfg := Config{
		Role:          domain.RoleMaster,
		ClientID:      "master",
		OnStateChange: func(st State) { states <- st },
	}
	s, sig, rec := newTestSession(t, cfg, media)
	defer s.Close()

	s.OnMessage(offerMsg(t, "v1", "v=0..."))

	msg := sig.waitSent(t)
	if msg.Action != domain.ActionSDPAnswer {
		t.Fatalf("action = %s, want SDP_ANSWER", msg.Action)
	}
	if msg.RecipientClientID != "v1" || msg.SenderClientID != "" {
		t.Errorf("answer addressing: sender=%q recipient=%q", msg.SenderClientID, msg.RecipientClientID)
	}
	d, err := msg.Description()
	if err != nil || d.SDP != "v=0 answer" {
		t.Errorf("answer payload = %+v, %v", d, err)
	}

	waitState(t, s, StateConnected)
	if s.PeerClientID() != "v1" {
		t.Errorf("peer client id = %q, want v1", s.PeerClientID())
	}

	local, remote, _, _ := media.snapshot()
	if len(remote) != 1 || remote[0].SDP != "v=0..." {
		t.Errorf("remote descriptions = %+v", remote)
	}
	if len(local) != 1 || local[0].Type != domain.SDPTypeAnswer {
		t.Errorf("local descriptions = %+v", local)
	}
	if errs := rec.all(); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}

	for _, want := range []State{StateSignalingReady, StateAnswerPending, StateConnected} {
		select {
		case got := <-states:
			if got != want {
				t.Errorf("state change = %s, want %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
	if sig.sentCount() != 1 {
		t.Errorf("sent %d messages, want one answer", sig.sentCount())
	}
}

func TestMaster_SecondOfferRejected(t *testing.T) {
	media := &mockMedia{answerSDP: "answer"}
	s, sig, rec := newTestSession(t, Config{Role: domain.RoleMaster}, media)
	defer s.Close()

	s.OnMessage(offerMsg(t, "v1", "first"))
	sig.waitSent(t)
	waitState(t, s, StateConnected)

	s.OnMessage(offerMsg(t, "v2", "second"))

	var se *domain.StateError
	errs := rec.all()
	if len(errs) != 1 || !errors.As(errs[0], &se) {
		t.Fatalf("expected one StateError, got %v", errs)
	}
	if s.State() != StateConnected {
		t.Errorf("state = %s, want CONNECTED", s.State())
	}
	if s.PeerClientID() != "v1" {
		t.Errorf("peer client id changed to %q", s.PeerClientID())
	}
	if d, _ := s.RemoteDescription(); d.SDP != "first" {
		t.Errorf("remote description changed to %q", d.SDP)
	}
	_, remote, _, _ := media.snapshot()
	if len(remote) != 1 {
		t.Errorf("SetRemoteDescription called %d times, want 1", len(remote))
	}
}

func TestMaster_RejectsAnswer(t *testing.T) {
	s, _, rec := newTestSession(t, Config{Role: domain.RoleMaster}, &mockMedia{})
	defer s.Close()

	s.OnMessage(answerMsg(t, "unexpected"))

	var se *domain.StateError
	if errs := rec.all(); len(errs) != 1 || !errors.As(errs[0], &se) {
		t.Fatalf("expected StateError, got %v", errs)
	}
	if _, ok := s.RemoteDescription(); ok {
		t.Error("remote description must stay unset")
	}
	if s.State() != StateSignalingReady {
		t.Errorf("state = %s, want SIGNALING_READY", s.State())
	}
}

func TestViewer_OfferThenAnswer(t *testing.T) {
	media := &mockMedia{offerSDP: "v=0 offer"}
	s, sig, rec := newTestSession(t, Config{Role: domain.RoleViewer, ClientID: "viewer-1"}, media)
	defer s.Close()

	msg := sig.waitSent(t)
	if msg.Action != domain.ActionSDPOffer {
		t.Fatalf("action = %s, want SDP_OFFER", msg.Action)
	}
	if msg.SenderClientID != "viewer-1" || msg.RecipientClientID != "" {
		t.Errorf("offer addressing: sender=%q recipient=%q", msg.SenderClientID, msg.RecipientClientID)
	}
	if s.State() != StateOfferPending {
		t.Errorf("state = %s, want OFFER_PENDING", s.State())
	}

	s.OnMessage(answerMsg(t, "v=0 answer"))

	if s.State() != StateConnected {
		t.Errorf("state = %s, want CONNECTED", s.State())
	}
	if d, ok := s.RemoteDescription(); !ok || d.SDP != "v=0 answer" {
		t.Errorf("remote description = %+v", d)
	}
	if errs := rec.all(); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
	if sig.sentCount() != 1 {
		t.Errorf("sent %d messages, want exactly one offer", sig.sentCount())
	}
}

func TestViewer_DuplicateAnswerFails(t *testing.T) {
	media := &mockMedia{offerSDP: "offer"}
	s, sig, rec := newTestSession(t, Config{Role: domain.RoleViewer, ClientID: "viewer-1"}, media)

	sig.waitSent(t)
	s.OnMessage(answerMsg(t, "first"))
	s.OnMessage(answerMsg(t, "second"))

	var se *domain.StateError
	errs := rec.all()
	if len(errs) != 1 || !errors.As(errs[0], &se) {
		t.Fatalf("expected one StateError, got %v", errs)
	}
	if se.Timeout() {
		t.Error("duplicate answer is not a timeout")
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want FAILED", s.State())
	}
	if d, _ := s.RemoteDescription(); d.SDP != "first" {
		t.Errorf("remote description = %q, want first", d.SDP)
	}
	if !errors.As(s.Err(), &se) {
		t.Errorf("Err() = %v, want StateError", s.Err())
	}
	_, remote, _, _ := media.snapshot()
	if len(remote) != 1 {
		t.Errorf("SetRemoteDescription called %d times, want 1", len(remote))
	}
}

func TestViewer_AnswerBeforeOfferRejected(t *testing.T) {
	media := &mockMedia{offerSDP: "offer", gate: make(chan struct{})}
	s, sig, rec := newTestSession(t, Config{Role: domain.RoleViewer, ClientID: "viewer-1"}, media)
	defer s.Close()

	s.OnMessage(answerMsg(t, "early"))

	var se *domain.StateError
	if errs := rec.all(); len(errs) != 1 || !errors.As(errs[0], &se) {
		t.Fatalf("expected StateError, got %v", errs)
	}
	if _, ok := s.RemoteDescription(); ok {
		t.Error("remote description must stay unset")
	}

	close(media.gate)
	if msg := sig.waitSent(t); msg.Action != domain.ActionSDPOffer {
		t.Errorf("action = %s, want SDP_OFFER", msg.Action)
	}
	if s.State() != StateOfferPending {
		t.Errorf("state = %s, want OFFER_PENDING", s.State())
	}
}

func TestViewer_RejectsOffer(t *testing.T) {
	media := &mockMedia{offerSDP: "offer"}
	s, sig, rec := newTestSession(t, Config{Role: domain.RoleViewer, ClientID: "viewer-1"}, media)
	defer s.Close()
	sig.waitSent(t)

	s.OnMessage(offerMsg(t, "other", "v=0"))

	var se *domain.StateError
	if errs := rec.all(); len(errs) != 1 || !errors.As(errs[0], &se) {
		t.Fatalf("expected StateError, got %v", errs)
	}
	if s.State() != StateOfferPending {
		t.Errorf("state = %s, want OFFER_PENDING", s.State())
	}
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	media := &mockMedia{answerSDP: "answer"}
	s, sig, _ := newTestSession(t, Config{Role: domain.RoleMaster}, media)
	defer s.Close()

	for _, c := range []string{"c1", "c2", "c3"} {
		s.OnMessage(candidateMsg(t, c))
	}
	if _, _, added, _ := media.snapshot(); len(added) != 0 {
		t.Fatalf("candidates applied before remote description: %+v", added)
	}

	s.OnMessage(offerMsg(t, "v1", "offer"))
	s.OnMessage(candidateMsg(t, "c4"))
	sig.waitSent(t)

	_, _, added, _ := media.snapshot()
	want := []string{"c1", "c2", "c3", "c4"}
	if len(added) != len(want) {
		t.Fatalf("applied %d candidates, want %d: %+v", len(added), len(want), added)
	}
	for i, c := range added {
		if c.Candidate != want[i] {
			t.Errorf("candidate %d = %q, want %q", i, c.Candidate, want[i])
		}
	}
}

func TestLocalCandidates_Master(t *testing.T) {
	media := &mockMedia{answerSDP: "answer"}
	s, sig, _ := newTestSession(t, Config{Role: domain.RoleMaster}, media)
	defer s.Close()

	s.OnMessage(offerMsg(t, "v1", "offer"))
	sig.waitSent(t) // answer

	for _, c := range []string{"l1", "l2", "l3"} {
		media.onCandidate(domain.Candidate{Candidate: c, SDPMid: "0"})
	}

	for _, want := range []string{"l1", "l2", "l3"} {
		msg := sig.waitSent(t)
		if msg.Action != domain.ActionICECandidate {
			t.Fatalf("action = %s, want ICE_CANDIDATE", msg.Action)
		}
		if msg.SenderClientID != "" || msg.RecipientClientID != "v1" {
			t.Errorf("candidate addressing: sender=%q recipient=%q", msg.SenderClientID, msg.RecipientClientID)
		}
		c, err := msg.Candidate()
		if err != nil || c.Candidate != want {
			t.Errorf("candidate = %+v, %v, want %s", c, err, want)
		}
	}
}

func TestLocalCandidates_Viewer(t *testing.T) {
	media := &mockMedia{offerSDP: "offer"}
	s, sig, _ := newTestSession(t, Config{Role: domain.RoleViewer, ClientID: "viewer-1"}, media)
	defer s.Close()
	sig.waitSent(t) // offer

	media.onCandidate(domain.Candidate{Candidate: "l1", SDPMid: "0", SDPMLineIndex: 1})

	msg := sig.waitSent(t)
	if msg.SenderClientID != "viewer-1" || msg.RecipientClientID != "" {
		t.Errorf("candidate addressing: sender=%q recipient=%q", msg.SenderClientID, msg.RecipientClientID)
	}
	c, _ := msg.Candidate()
	if c.SDPMLineIndex != 1 {
		t.Errorf("sdpMLineIndex = %d, want 1", c.SDPMLineIndex)
	}
}

func TestException_FailsAndTearsDownOnce(t *testing.T) {
	media := &mockMedia{answerSDP: "answer"}
	s, sig, rec := newTestSession(t, Config{Role: domain.RoleMaster}, media)

	boom := errors.New("connection reset")
	s.OnException(boom)

	if s.State() != StateFailed {
		t.Fatalf("state = %s, want FAILED", s.State())
	}
	if !errors.Is(s.Err(), boom) {
		t.Errorf("Err() = %v, want %v", s.Err(), boom)
	}
	waitDone(t, s)

	// Later inbound messages are ignored.
	s.OnMessage(offerMsg(t, "v1", "offer"))
	s.OnMessage(candidateMsg(t, "c1"))
	media.onCandidate(domain.Candidate{Candidate: "late"})

	s.Close()
	s.Close()
	s.OnException(errors.New("again"))

	_, remote, added, closes := media.snapshot()
	if len(remote) != 0 || len(added) != 0 {
		t.Errorf("messages applied after failure: remote=%v candidates=%v", remote, added)
	}
	if closes != 1 {
		t.Errorf("media closed %d times, want 1", closes)
	}
	if sig.closes() != 1 {
		t.Errorf("signaling closed %d times, want 1", sig.closes())
	}
	if sig.sentCount() != 0 {
		t.Errorf("sent %d messages after failure", sig.sentCount())
	}
	if errs := rec.all(); len(errs) != 1 {
		t.Errorf("reported %d errors, want 1", len(errs))
	}
}

func TestProtocolError_KeepsSessionAlive(t *testing.T) {
	s, _, rec := newTestSession(t, Config{Role: domain.RoleMaster}, &mockMedia{})
	defer s.Close()

	s.OnProtocolError(&domain.ProtocolError{Frame: "garbage", Err: errors.New("unmarshal")})
	s.OnMessage(domain.Message{Action: domain.ActionICECandidate, Payload: "!!!"})

	if s.State() != StateSignalingReady {
		t.Errorf("state = %s, want SIGNALING_READY", s.State())
	}
	if errs := rec.all(); len(errs) != 2 {
		t.Errorf("reported %d errors, want 2", len(errs))
	}
}

func TestStatusResponse_Reported(t *testing.T) {
	s, _, rec := newTestSession(t, Config{Role: domain.RoleMaster}, &mockMedia{})
	defer s.Close()

	s.OnMessage(domain.Message{
		Action: domain.ActionStatusResponse,
		Status: &domain.StatusResponse{StatusCode: "400", ErrorType: "InvalidArgumentException"},
	})

	var pe *domain.ProtocolError
	errs := rec.all()
	if len(errs) != 1 || !errors.As(errs[0], &pe) || pe.Status == nil {
		t.Fatalf("expected ProtocolError with status, got %v", errs)
	}
	if s.State() != StateSignalingReady {
		t.Errorf("state = %s, want SIGNALING_READY", s.State())
	}
}

func TestAnswerTimeout(t *testing.T) {
	media := &mockMedia{offerSDP: "offer"}
	s, sig, _ := newTestSession(t, Config{
		Role:          domain.RoleViewer,
		ClientID:      "viewer-1",
		AnswerTimeout: 20 * time.Millisecond,
	}, media)
	sig.waitSent(t)

	waitDone(t, s)

	var se *domain.StateError
	if !errors.As(s.Err(), &se) || !se.Timeout() {
		t.Fatalf("Err() = %v, want timeout StateError", s.Err())
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want FAILED", s.State())
	}
}

func TestAnswerTimeout_StoppedByAnswer(t *testing.T) {
	media := &mockMedia{offerSDP: "offer"}
	s, sig, _ := newTestSession(t, Config{
		Role:          domain.RoleViewer,
		ClientID:      "viewer-1",
		AnswerTimeout: 30 * time.Millisecond,
	}, media)
	defer s.Close()
	sig.waitSent(t)

	s.OnMessage(answerMsg(t, "answer"))
	time.Sleep(60 * time.Millisecond)

	if s.State() != StateConnected {
		t.Errorf("state = %s, want CONNECTED", s.State())
	}
}

func TestCandidateTimeout(t *testing.T) {
	s, _, _ := newTestSession(t, Config{
		Role:             domain.RoleMaster,
		CandidateTimeout: 20 * time.Millisecond,
	}, &mockMedia{})

	s.OnMessage(candidateMsg(t, "c1"))
	waitDone(t, s)

	var se *domain.StateError
	if !errors.As(s.Err(), &se) || !se.Timeout() {
		t.Fatalf("Err() = %v, want timeout StateError", s.Err())
	}
}

func TestClose_DiscardsInFlightOffer(t *testing.T) {
	media := &mockMedia{offerSDP: "offer", gate: make(chan struct{})}
	s, sig, _ := newTestSession(t, Config{Role: domain.RoleViewer, ClientID: "viewer-1"}, media)

	s.Close()
	close(media.gate)
	time.Sleep(30 * time.Millisecond)

	if s.State() != StateClosed {
		t.Errorf("state = %s, want CLOSED", s.State())
	}
	if sig.sentCount() != 0 {
		t.Error("offer sent after teardown")
	}
	if local, _, _, _ := media.snapshot(); len(local) != 0 {
		t.Error("local description set after teardown")
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v after Close, want nil", s.Err())
	}
}

func TestCreateFailureFailsSession(t *testing.T) {
	media := &mockMedia{createErr: errors.New("no codecs")}
	s, _, _ := newTestSession(t, Config{Role: domain.RoleViewer, ClientID: "viewer-1"}, media)

	waitDone(t, s)
	if s.State() != StateFailed {
		t.Errorf("state = %s, want FAILED", s.State())
	}
}

func TestMediaConnectionFailure(t *testing.T) {
	media := &mockMedia{answerSDP: "answer"}
	s, sig, _ := newTestSession(t, Config{Role: domain.RoleMaster}, media)

	s.OnMessage(offerMsg(t, "v1", "offer"))
	sig.waitSent(t)
	waitState(t, s, StateConnected)

	media.onState(domain.ConnectionConnected)
	if s.State() != StateConnected {
		t.Errorf("state = %s, want CONNECTED", s.State())
	}
	media.onState(domain.ConnectionFailed)
	if s.State() != StateFailed {
		t.Errorf("state = %s, want FAILED", s.State())
	}
}

func TestMessagesBeforeOpenAreReplayed(t *testing.T) {
	media := &mockMedia{answerSDP: "answer"}
	s, err := New(Config{Role: domain.RoleMaster}, media)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.OnMessage(candidateMsg(t, "c1"))
	s.OnMessage(offerMsg(t, "v1", "offer"))
	if s.State() != StateInit {
		t.Fatalf("state = %s, want INIT", s.State())
	}

	sig := newMockSignaler()
	s.Open(sig)

	msg := sig.waitSent(t)
	if msg.Action != domain.ActionSDPAnswer || msg.RecipientClientID != "v1" {
		t.Errorf("unexpected message %+v", msg)
	}
	if _, _, added, _ := media.snapshot(); len(added) != 1 || added[0].Candidate != "c1" {
		t.Errorf("queued candidate not applied: %+v", added)
	}
}

func TestOpenAfterClose(t *testing.T) {
	s, err := New(Config{Role: domain.RoleMaster}, &mockMedia{})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	sig := newMockSignaler()
	s.Open(sig)
	if sig.closes() != 1 {
		t.Error("signaling connection opened after close should be closed")
	}
}
