package realtime

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

const (
	rtpPayloadType = 111
	rtpReadBufSize = 1500
)

// Peer drives the optional media path. Signaling rides the websocket as
// JSON offer/answer/ice-candidate messages; the peer itself carries audio
// once negotiated.
type Peer struct {
	pc         *webrtc.PeerConnection
	audioTrack *webrtc.TrackLocalStaticRTP
	signal     transport.Connection
	log        *slog.Logger

	mu        sync.RWMutex
	seq       uint16
	timestamp uint32
	ssrc      uint32
	onAudio   func([]byte)
}

func NewPeer(cfg Config, signal transport.Connection, log *slog.Logger) (*Peer, error) {
	if log == nil {
		log = slog.Default()
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers(cfg.ICEServers),
	})
	if err != nil {
		return nil, err
	}

	var ssrcBytes [4]byte
	if _, err := rand.Read(ssrcBytes[:]); err != nil {
		_ = pc.Close()
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"client-audio",
	)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	if _, err := pc.AddTrack(track); err != nil {
		_ = pc.Close()
		return nil, err
	}

	p := &Peer{
		pc:         pc,
		audioTrack: track,
		signal:     signal,
		ssrc:       binary.BigEndian.Uint32(ssrcBytes[:]),
		log:        log.With("component", "peer"),
	}

	pc.OnTrack(func(remoteTrack *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remoteTrack.Kind() == webrtc.RTPCodecTypeAudio {
			go p.readIncomingAudio(remoteTrack)
		}
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		p.sendICECandidate(candidate.ToJSON())
	})

	return p, nil
}

func iceServers(configs []ICEServerConfig) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(configs))
	for _, s := range configs {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, server)
	}

	if len(servers) == 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs: []string{"stun:stun.l.google.com:19302"},
		})
	}
	return servers
}

// Offer creates the local offer and sends it over the signaling channel.
func (p *Peer) Offer(ctx context.Context) error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return err
	}

	data, err := json.Marshal(transport.SignalMessage{
		Type: transport.SignalOffer,
		SDP:  offer.SDP,
	})
	if err != nil {
		return err
	}
	return p.signal.SendText(ctx, string(data))
}

// HandleSignal consumes answer and ice-candidate messages routed off the
// connection.
func (p *Peer) HandleSignal(msg transport.SignalMessage) error {
	switch msg.Type {
	case transport.SignalAnswer:
		return p.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  msg.SDP,
		})
	case transport.SignalICECandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Candidate, &candidate); err != nil {
			return err
		}
		return p.pc.AddICECandidate(candidate)
	default:
		p.log.Debug("ignoring signal", "type", msg.Type)
		return nil
	}
}

func (p *Peer) sendICECandidate(candidate webrtc.ICECandidateInit) {
	raw, err := json.Marshal(candidate)
	if err != nil {
		return
	}
	data, err := json.Marshal(transport.SignalMessage{
		Type:      transport.SignalICECandidate,
		Candidate: raw,
	})
	if err != nil {
		return
	}
	if err := p.signal.SendText(context.Background(), string(data)); err != nil {
		p.log.Debug("failed to send ICE candidate", "error", err)
	}
}

func (p *Peer) readIncomingAudio(track *webrtc.TrackRemote) {
	buf := make([]byte, rtpReadBufSize)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}

		p.mu.RLock()
		cb := p.onAudio
		p.mu.RUnlock()

		if cb != nil {
			pkt := &rtp.Packet{}
			if err := pkt.Unmarshal(buf[:n]); err == nil {
				cb(pkt.Payload)
			}
		}
	}
}

// WriteRTP sends one encoded frame on the local track.
func (p *Peer) WriteRTP(payload []byte, samples int) error {
	p.mu.Lock()
	seq := p.seq
	ts := p.timestamp
	p.seq++
	p.timestamp += uint32(samples)
	p.mu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    rtpPayloadType,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}

	data, err := pkt.Marshal()
	if err != nil {
		return err
	}

	_, err = p.audioTrack.Write(data)
	return err
}

func (p *Peer) OnAudio(fn func([]byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAudio = fn
}

func (p *Peer) Close() error {
	return p.pc.Close()
}
