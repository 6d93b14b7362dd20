package session

import (
	"fmt"
	"net/url"

	"github.com/bbielsa/kvsrtc/internal/domain"
)

// role holds the behavior that differs between the two sides of a channel.
// Methods run with the session lock held.
type role interface {
	kind() domain.Role
	open(s *Session)
	onOffer(s *Session, sender string, d domain.Description) error
	onAnswer(s *Session, d domain.Description) error
	// created is called once the requested offer or answer is set locally.
	created(s *Session, d domain.Description) error
	// addressing returns the sender and recipient for outgoing candidates.
	addressing(s *Session) (sender, recipient string)
	// createsMissingChannel reports whether a missing channel may be created.
	createsMissingChannel() bool
	// connectParams are the query parameters added to the signaling endpoint.
	connectParams(arn, clientID string) url.Values
}

func newRole(r domain.Role) (role, error) {
	switch r {
	case domain.RoleMaster:
		return masterRole{}, nil
	case domain.RoleViewer:
		return viewerRole{}, nil
	default:
		return nil, fmt.Errorf("unknown role %q", r)
	}
}

// masterRole waits for an offer and answers the first viewer that sends one.
type masterRole struct{}

func (masterRole) kind() domain.Role { return domain.RoleMaster }

func (masterRole) open(s *Session) {
	s.log.Infof("signaling ready, waiting for offer")
}

func (masterRole) onOffer(s *Session, sender string, d domain.Description) error {
	if s.remote != nil {
		return &domain.StateError{State: s.state.String(), Action: domain.ActionSDPOffer, Reason: "remote description already set"}
	}
	if sender == "" {
		return &domain.StateError{State: s.state.String(), Action: domain.ActionSDPOffer, Reason: "offer has no sender"}
	}

	s.peerClientID = sender
	if err := s.media.SetRemoteDescription(d); err != nil {
		s.fail(fmt.Errorf("set remote offer: %w", err))
		return nil
	}
	s.applyRemote(d)
	s.setState(StateAnswerPending)
	s.requestLocal(domain.SDPTypeAnswer)
	return nil
}

func (masterRole) onAnswer(s *Session, _ domain.Description) error {
	return &domain.StateError{State: s.state.String(), Action: domain.ActionSDPAnswer, Reason: "master does not accept answers"}
}

func (masterRole) created(s *Session, d domain.Description) error {
	msg, err := domain.NewSDPMessage(d, "", s.peerClientID)
	if err != nil {
		return err
	}
	s.setState(StateConnected)
	if err := s.send(msg); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	s.log.Infof("sent SDP answer to %q", s.peerClientID)
	return nil
}

func (masterRole) addressing(s *Session) (string, string) {
	return "", s.peerClientID
}

func (masterRole) createsMissingChannel() bool { return true }

func (masterRole) connectParams(arn, _ string) url.Values {
	return url.Values{"X-Amz-ChannelARN": {arn}}
}

// viewerRole sends one offer to the channel's master and waits for its answer.
type viewerRole struct{}

func (viewerRole) kind() domain.Role { return domain.RoleViewer }

func (viewerRole) open(s *Session) {
	s.setState(StateOfferPending)
	s.requestLocal(domain.SDPTypeOffer)
}

func (viewerRole) onOffer(s *Session, _ string, _ domain.Description) error {
	return &domain.StateError{State: s.state.String(), Action: domain.ActionSDPOffer, Reason: "viewer does not accept offers"}
}

func (viewerRole) onAnswer(s *Session, d domain.Description) error {
	if s.local == nil {
		return &domain.StateError{State: s.state.String(), Action: domain.ActionSDPAnswer, Reason: "no offer sent"}
	}
	if s.remote != nil {
		s.fail(&domain.StateError{State: s.state.String(), Action: domain.ActionSDPAnswer, Reason: "duplicate answer"})
		return nil
	}

	if err := s.media.SetRemoteDescription(d); err != nil {
		s.fail(fmt.Errorf("set remote answer: %w", err))
		return nil
	}
	stopTimer(&s.answerTimer)
	s.applyRemote(d)
	s.setState(StateConnected)
	return nil
}

func (viewerRole) created(s *Session, d domain.Description) error {
	msg, err := domain.NewSDPMessage(d, s.cfg.ClientID, "")
	if err != nil {
		return err
	}
	if err := s.send(msg); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	s.log.Infof("sent SDP offer")
	s.startAnswerTimer()
	return nil
}

func (viewerRole) addressing(s *Session) (string, string) {
	return s.cfg.ClientID, ""
}

func (viewerRole) createsMissingChannel() bool { return false }

func (viewerRole) connectParams(arn, clientID string) url.Values {
	return url.Values{
		"X-Amz-ChannelARN": {arn},
		"X-Amz-ClientId":   {clientID},
	}
}
