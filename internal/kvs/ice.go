package kvs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bbielsa/kvsrtc/internal/domain"
)

const iceConfigPath = "/v1/get-ice-server-config"

type iceConfigRequest struct {
	ChannelARN string `json:"ChannelARN"`
	ClientID   string `json:"ClientId,omitempty"`
	Service    string `json:"Service"`
}

type iceConfigResponse struct {
	IceServerList []iceServer `json:"IceServerList"`
}

type iceServer struct {
	Username string   `json:"Username"`
	Password string   `json:"Password"`
	TTL      int      `json:"Ttl"`
	URIs     []string `json:"Uris"`
}

// relayCredentials fetches the TURN servers for arn from the channel's
// HTTPS endpoint.
func (r *Resolver) relayCredentials(ctx context.Context, endpoint, arn string) ([]domain.RelayCredential, error) {
	body, err := json.Marshal(iceConfigRequest{
		ChannelARN: arn,
		ClientID:   r.clientID,
		Service:    "TURN",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ice config request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(endpoint, "/")+iceConfigPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	creds, err := r.creds.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	if err := r.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), "kinesisvideo", r.region, r.now()); err != nil {
		return nil, fmt.Errorf("sign ice config request: %w", err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}

	var iceResp iceConfigResponse
	if err := json.Unmarshal(respBody, &iceResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	relays := make([]domain.RelayCredential, 0, len(iceResp.IceServerList))
	for _, s := range iceResp.IceServerList {
		relays = append(relays, domain.RelayCredential{
			Username: s.Username,
			Password: s.Password,
			TTL:      time.Duration(s.TTL) * time.Second,
			URIs:     s.URIs,
		})
	}
	return relays, nil
}
