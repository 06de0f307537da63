package webrtcsink

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Peer is one viewer's peer connection, carrying the shared tracks.
type Peer struct {
	pc *webrtc.PeerConnection
}

// NewPeer creates a peer connection with tracks attached. RTCP from each
// sender is drained in the background until the connection closes.
func NewPeer(config webrtc.Configuration, tracks *Tracks) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("webrtc: failed to create peer connection: %w", err)
	}

	for _, track := range []*webrtc.TrackLocalStaticSample{tracks.Audio, tracks.Video} {
		sender, err := pc.AddTrack(track)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("webrtc: failed to add %s track: %w", track.Kind(), err)
		}

		go func() {
			rtcpBuf := make([]byte, 1500)
			for {
				if _, _, rtcpErr := sender.Read(rtcpBuf); rtcpErr != nil {
					return
				}
			}
		}()
	}

	return &Peer{pc: pc}, nil
}

// Answer applies a remote offer and returns the local answer once ICE
// gathering has completed, so the answer carries every candidate.
func (p *Peer) Answer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("webrtc: failed to set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("webrtc: failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)

	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("webrtc: failed to set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, fmt.Errorf("webrtc: ICE gathering: %w", ctx.Err())
	}

	return p.pc.LocalDescription(), nil
}

// OnConnectionStateChange registers f for connection state changes.
func (p *Peer) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(f)
}

// Close closes the peer connection.
func (p *Peer) Close() error {
	return p.pc.Close()
}
