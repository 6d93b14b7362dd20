package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is the side of a signaling channel a client connects as.
type Role string

const (
	RoleMaster Role = "MASTER"
	RoleViewer Role = "VIEWER"
)

// ParseRole accepts "master"/"viewer" in any case.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleMaster:
		return RoleMaster, nil
	case RoleViewer:
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("unknown role %q (want master or viewer)", s)
	}
}

// Channel identifies a resolved signaling channel.
type Channel struct {
	ARN  string
	Name string
	Role Role
}

// EndpointProtocol distinguishes the two endpoints a channel exposes.
type EndpointProtocol string

const (
	ProtocolSignaling EndpointProtocol = "WSS"
	ProtocolData      EndpointProtocol = "HTTPS"
)

// Endpoint is a resource endpoint returned by the directory service.
type Endpoint struct {
	Protocol EndpointProtocol
	URI      string
}

// RelayCredential holds TURN server configuration returned by the directory service.
type RelayCredential struct {
	Username string
	Password string
	TTL      time.Duration
	URIs     []string
}

// ChannelInfo is everything needed to open a session on a channel.
type ChannelInfo struct {
	Channel          Channel
	Endpoints        []Endpoint
	RelayCredentials []RelayCredential
}

// Endpoint returns the first endpoint with the given protocol.
func (c ChannelInfo) Endpoint(p EndpointProtocol) (string, bool) {
	for _, e := range c.Endpoints {
		if e.Protocol == p {
			return e.URI, true
		}
	}
	return "", false
}

// STUNServer is the well-known relay discovery address for a region.
func STUNServer(region string) string {
	suffix := "amazonaws.com"
	if strings.HasPrefix(region, "cn-") {
		suffix = "amazonaws.com.cn"
	}
	return fmt.Sprintf("stun:stun.kinesisvideo.%s.%s:443", region, suffix)
}
