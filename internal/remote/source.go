// Package remote turns a browser camera, received over WebRTC, into a
// FrameSource. Only VP8 keyframes are decoded; PLIs are sent so that
// keyframes keep arriving.
package remote

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"face-tracking-recorder/internal/logger"
	"face-tracking-recorder/internal/signaling"
	"face-tracking-recorder/internal/source"
	"face-tracking-recorder/internal/utils"
	"face-tracking-recorder/models"

	jsoniter "github.com/json-iterator/go"
	"github.com/pion/rtcp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Signaler is the part of the signaling client the source needs.
type Signaler interface {
	On(msgType string, h signaling.Handler)
	Send(msg signaling.Message) error
}

// ============================================================
// REMOTE SOURCE
// ============================================================

type Source struct {
	*source.Latest

	cfg      models.RemoteConfig
	signaler Signaler
	decoder  *Decoder
	log      *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	conn *connection

	keyframes atomic.Uint64
	decoded   atomic.Uint64
	closeOnce sync.Once
}

// connection is the state of one call with a remote peer.
type connection struct {
	peer       string
	pc         *webrtc.PeerConnection
	cancel     context.CancelFunc
	pendingICE []webrtc.ICECandidateInit
	iceReady   bool
	once       sync.Once
}

// New wires the source to sig. It serves one remote peer at a time; a new
// offer replaces the current call.
func New(sig Signaler, cfg models.RemoteConfig, log logrus.FieldLogger) *Source {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		Latest:   source.NewLatest(),
		cfg:      cfg,
		signaler: sig,
		decoder:  NewDecoder(image.Pt(cfg.MaxDecodeWidth, cfg.MaxDecodeHeight)),
		log:      logger.Component(log, "remote"),
		ctx:      ctx,
		cancel:   cancel,
	}

	sig.On(models.SignalOffer, s.dispatch(s.handleOffer))
	sig.On(models.SignalICECandidate, s.dispatch(s.handleICECandidate))
	sig.On(models.SignalQuit, s.dispatch(func(msg signaling.Message) error {
		s.log.Infof("👋 Call ended by %s", msg.From)
		s.hangup(msg.From)
		return nil
	}))
	return s
}

// dispatch runs h off the signaling reader goroutine.
func (s *Source) dispatch(h func(signaling.Message) error) signaling.Handler {
	return func(msg signaling.Message) {
		go func() {
			if err := h(msg); err != nil {
				s.log.Errorf("❌ Error handling %s from %s: %v", msg.Type, msg.From, err)
			}
		}()
	}
}

// Stats returns keyframes seen and decoded.
func (s *Source) Stats() (keyframes, decoded uint64) {
	return s.keyframes.Load(), s.decoded.Load()
}

// ============================================================
// OFFER / ANSWER
// ============================================================

// parseOffer accepts a JSON session description, optionally gzip
// compressed, or a bare SDP string.
func parseOffer(data string) (webrtc.SessionDescription, error) {
	payload, err := utils.MaybeDecompress(data)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decompress failed: %w", err)
	}

	var offer webrtc.SessionDescription
	if err := json.Unmarshal([]byte(payload), &offer); err != nil || offer.SDP == "" {
		offer = webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: payload}
	}
	if !strings.HasPrefix(strings.TrimSpace(offer.SDP), "v=") {
		return webrtc.SessionDescription{}, fmt.Errorf("invalid offer: missing sdp")
	}
	offer.Type = webrtc.SDPTypeOffer
	return offer, nil
}

func (s *Source) handleOffer(msg signaling.Message) error {
	s.log.Infof("📝 Processing offer from %s", msg.From)

	offer, err := parseOffer(msg.Data)
	if err != nil {
		return err
	}

	pc, err := s.createPeerConnection()
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	conn := &connection{peer: msg.From, pc: pc, cancel: cancel}

	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()
	if old != nil {
		s.log.Infof("🔁 Replacing call with %s", old.peer)
		s.cleanup(old, false)
	}

	s.setupHandlers(ctx, conn)

	if err := pc.SetRemoteDescription(offer); err != nil {
		s.hangup(msg.From)
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		s.hangup(msg.From)
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		s.hangup(msg.From)
		return fmt.Errorf("failed to set local description: %w", err)
	}

	patched := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  utils.PatchSDPForQuality(answer.SDP, utils.DefaultBitrate),
	}
	answerJSON, err := json.Marshal(patched)
	if err != nil {
		s.hangup(msg.From)
		return fmt.Errorf("marshal answer: %w", err)
	}
	compressed, err := utils.CompressGzip(string(answerJSON))
	if err != nil {
		s.hangup(msg.From)
		return err
	}

	if err := s.signaler.Send(signaling.Message{Type: models.SignalAnswer, To: msg.From, Data: compressed}); err != nil {
		s.hangup(msg.From)
		return fmt.Errorf("failed to send answer: %w", err)
	}

	s.mu.Lock()
	conn.iceReady = true
	pending := conn.pendingICE
	conn.pendingICE = nil
	s.mu.Unlock()

	if len(pending) > 0 {
		s.log.Infof("📦 Processing %d pending ICE candidates...", len(pending))
		for i, candidate := range pending {
			if err := pc.AddICECandidate(candidate); err != nil {
				s.log.Warnf("⚠️  Failed to add pending ICE %d: %v", i+1, err)
			}
		}
	}

	s.log.Info("✅ Answer sent!")
	return nil
}

// ============================================================
// ICE CANDIDATES
// ============================================================

func (s *Source) handleICECandidate(msg signaling.Message) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(msg.Data), &candidate); err != nil {
		return fmt.Errorf("invalid candidate: %w", err)
	}

	s.mu.Lock()
	conn := s.conn
	if conn == nil || conn.peer != msg.From {
		s.mu.Unlock()
		return fmt.Errorf("connection not found for %s", msg.From)
	}
	if !conn.iceReady {
		conn.pendingICE = append(conn.pendingICE, candidate)
		n := len(conn.pendingICE)
		s.mu.Unlock()
		s.log.Debugf("📦 Queued ICE (total: %d)", n)
		return nil
	}
	s.mu.Unlock()

	if err := conn.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add ICE: %w", err)
	}
	return nil
}

func (s *Source) sendICECandidate(peer string, candidate *webrtc.ICECandidate) {
	data, err := json.Marshal(candidate.ToJSON())
	if err != nil {
		s.log.Warnf("⚠️  Failed to marshal ICE candidate: %v", err)
		return
	}
	if err := s.signaler.Send(signaling.Message{Type: models.SignalICECandidate, To: peer, Data: string(data)}); err != nil {
		s.log.Warnf("⚠️  Failed to send ICE candidate: %v", err)
	}
}

// ============================================================
// PEER CONNECTION
// ============================================================

func (s *Source) createPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: "goog-remb"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
			},
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("failed to register VP8: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	var servers []webrtc.ICEServer
	if len(s.cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: s.cfg.ICEServers}}
	}
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
}

func (s *Source) setupHandlers(ctx context.Context, conn *connection) {
	pc := conn.pc

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			s.log.Debug("✅ ICE gathering complete")
			return
		}
		s.sendICECandidate(conn.peer, candidate)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Infof("🔗 Connection: %s", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.log.Info("🎉 WebRTC CONNECTED!")
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateFailed:
			s.hangup(conn.peer)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		s.log.Infof("🎬 Track: %s (Codec: %s)", track.Kind().String(), track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeVideo || !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeVP8) {
			return
		}

		ssrc := uint32(track.SSRC())
		go s.sendPLI(ctx, pc, ssrc)
		go s.capture(ctx, track)
	})
}

// sendPLI asks for a keyframe right away, then once per PLIInterval.
func (s *Source) sendPLI(ctx context.Context, pc *webrtc.PeerConnection, ssrc uint32) {
	pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}}

	for i := 0; i < 3; i++ {
		if err := pc.WriteRTCP(pli); err == nil {
			s.log.Debug("⚡ Immediate PLI sent (forcing IDR)")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}

	ticker := time.NewTicker(s.cfg.PLIInterval)
	defer ticker.Stop()

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := pc.ConnectionState()
			if state == webrtc.PeerConnectionStateClosed || state == webrtc.PeerConnectionStateFailed {
				return
			}
			if err := pc.WriteRTCP(pli); err != nil {
				consecutiveErrors++
				if consecutiveErrors >= 3 {
					s.log.Warnf("⚠️  PLI stopping (errors: %d)", consecutiveErrors)
					return
				}
				continue
			}
			consecutiveErrors = 0
		}
	}
}

// capture rebuilds VP8 frames from RTP and publishes decoded keyframes.
func (s *Source) capture(ctx context.Context, track *webrtc.TrackRemote) {
	s.log.Info("📸 Receiving remote video...")
	defer s.log.Info("🛑 Remote video stopped")

	builder := samplebuilder.New(s.cfg.SampleBufferMax, &codecs.VP8Packet{}, track.Codec().ClockRate)
	var lastDecode time.Time

	for {
		if ctx.Err() != nil {
			return
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !strings.Contains(err.Error(), "closed") && ctx.Err() == nil {
				s.log.Warnf("⚠️  RTP error: %v", err)
			}
			return
		}

		builder.Push(pkt)
		for sample := builder.Pop(); sample != nil; sample = builder.Pop() {
			if !IsKeyframe(sample.Data) {
				continue
			}
			if s.keyframes.Add(1) == 1 {
				s.log.Info("✅ Keyframe received!")
			}
			if time.Since(lastDecode) < s.cfg.DecodeInterval {
				continue
			}
			lastDecode = time.Now()

			size, pixels, err := s.decoder.Decode(ctx, sample.Data)
			if err != nil {
				s.log.Debugf("⚠️  %v", err)
				continue
			}
			s.Publish(size.X, size.Y, pixels)
			s.decoded.Add(1)
		}
	}
}

// ============================================================
// CLEANUP
// ============================================================

// hangup ends the call with peer if it is the current one.
func (s *Source) hangup(peer string) {
	s.mu.Lock()
	conn := s.conn
	if conn == nil || conn.peer != peer {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()

	s.cleanup(conn, true)
}

func (s *Source) cleanup(conn *connection, notify bool) {
	conn.once.Do(func() {
		s.log.Infof("🧹 Cleaning up call with %s", conn.peer)
		conn.cancel()
		if err := conn.pc.Close(); err != nil {
			s.log.Warnf("⚠️  PC close: %v", err)
		}
		if notify {
			if err := s.signaler.Send(signaling.Message{Type: models.SignalQuit, To: conn.peer}); err != nil {
				s.log.Debugf("Quit signal: %v", err)
			}
		}
	})
}

// Close hangs up and stops all goroutines. Frames already published stay
// readable.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()

		if conn != nil {
			s.cleanup(conn, true)
		}
		s.cancel()
		s.log.Info("🛑 Remote source closed")
	})
	return nil
}
