package webrtc

import (
	"io"

	"github.com/pion/rtp/codecs"
)

// annexBWriter reassembles H264 RTP payloads (single NAL, STAP-A, FU-A) and
// writes the NAL units to w with Annex-B start codes.
type annexBWriter struct {
	w   io.Writer
	pkt codecs.H264Packet
}

func newAnnexBWriter(w io.Writer) *annexBWriter {
	return &annexBWriter{w: w}
}

// WritePayload consumes one RTP payload. Fragments are buffered until the
// final FU-A packet arrives.
func (a *annexBWriter) WritePayload(payload []byte) error {
	nalus, err := a.pkt.Unmarshal(payload)
	if err != nil {
		return err
	}
	if len(nalus) == 0 {
		return nil
	}
	_, err = a.w.Write(nalus)
	return err
}
