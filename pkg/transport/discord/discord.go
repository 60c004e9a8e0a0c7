// Package discord provides a [transport.Transport] backed by Discord voice
// channels via bwmarrin/discordgo. It bridges Discord's Opus voice transport
// with the PCM frame pipeline: inbound packets from every speaker are decoded
// and merged into a single caller stream, and outbound PCM is encoded to Opus.
//
// The transport requires an active *discordgo.Session (owned by the caller)
// and a guild ID. Room IDs passed to Join are Discord voice channel IDs.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/fbruhn/sprechzeit/pkg/transport"
	"github.com/fbruhn/sprechzeit/pkg/types"
)

const (
	inboundBuffer  = 64
	outboundBuffer = 64
)

// Transport implements [transport.Transport] using discordgo voice
// connections. Safe for concurrent use.
type Transport struct {
	session *discordgo.Session
	guildID string
}

// New creates a Transport for the given session and guild.
func New(session *discordgo.Session, guildID string) *Transport {
	return &Transport{session: session, guildID: guildID}
}

// Join connects to the voice channel identified by roomID.
func (t *Transport) Join(ctx context.Context, roomID string) (transport.Session, error) {
	// mute=false: we send audio; deaf=false: we receive audio.
	vc, err := t.session.ChannelVoiceJoin(t.guildID, roomID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", roomID, err)
	}
	return newSession(vc, t.session, t.guildID), nil
}

var _ transport.Transport = (*Transport)(nil)

// Session adapts a discordgo.VoiceConnection to [transport.Session]. Incoming
// Opus packets are decoded per SSRC and merged into one inbound PCM stream;
// outbound PCM frames are chunked into exact Opus frames and encoded.
type Session struct {
	vc      *discordgo.VoiceConnection
	session *discordgo.Session
	guildID string

	inbound  chan types.AudioFrame
	outbound chan types.AudioFrame

	changeMu sync.Mutex
	changeCb func(transport.Event)

	done      chan struct{}
	closeOnce sync.Once

	removeHandler func()

	// leaveVC tears down the voice connection; defaults to vc.Disconnect and
	// is overridden in tests.
	leaveVC func() error
}

func newSession(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID string) *Session {
	s := &Session{
		vc:       vc,
		session:  session,
		guildID:  guildID,
		inbound:  make(chan types.AudioFrame, inboundBuffer),
		outbound: make(chan types.AudioFrame, outboundBuffer),
		done:     make(chan struct{}),
		leaveVC:  vc.Disconnect,
	}
	s.removeHandler = session.AddHandler(s.handleVoiceStateUpdate)
	go s.recvLoop()
	go s.sendLoop()
	return s
}

// AudioIn implements transport.Session.
func (s *Session) AudioIn() <-chan types.AudioFrame {
	return s.inbound
}

// AudioOut implements transport.Session.
func (s *Session) AudioOut() chan<- types.AudioFrame {
	return s.outbound
}

// OnParticipantChange implements transport.Session.
func (s *Session) OnParticipantChange(cb func(transport.Event)) {
	s.changeMu.Lock()
	defer s.changeMu.Unlock()
	s.changeCb = cb
}

// Leave implements transport.Session.
func (s *Session) Leave() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.removeHandler != nil {
			s.removeHandler()
		}
		if s.leaveVC != nil {
			err = s.leaveVC()
		}
		close(s.inbound)
	})
	return err
}

var _ transport.Session = (*Session)(nil)

// recvLoop reads Opus packets from Discord, decodes them per SSRC, and
// delivers PCM frames on the merged inbound channel.
func (s *Session) recvLoop() {
	decoders := make(map[uint32]*decoder)
	seen := make(map[uint32]bool)

	for {
		select {
		case <-s.done:
			return
		case pkt, ok := <-s.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newDecoder()
				if err != nil {
					slog.Error("discord: create opus decoder", "ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			if !seen[pkt.SSRC] {
				seen[pkt.SSRC] = true
				s.emitEvent(transport.Event{
					Type:   transport.EventJoin,
					UserID: fmt.Sprintf("%d", pkt.SSRC),
				})
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "error", err)
				continue
			}

			frame := types.AudioFrame{
				Data:       pcm,
				SampleRate: opusSampleRate,
				Channels:   opusChannels,
				Timestamp:  time.Duration(pkt.Timestamp) * time.Second / time.Duration(opusSampleRate),
			}

			select {
			case s.inbound <- frame:
			case <-s.done:
				return
			default:
				// Inbound full, drop rather than stall the voice socket.
			}
		}
	}
}

// sendLoop reads PCM frames from the outbound channel, converts to Discord's
// 48 kHz stereo, slices exact Opus frames, and transmits them.
func (s *Session) sendLoop() {
	enc, err := newEncoder()
	if err != nil {
		slog.Error("discord: create opus encoder", "error", err)
		return
	}

	conv := transport.FormatConverter{
		Target: transport.Format{SampleRate: opusSampleRate, Channels: opusChannels},
	}

	// One Opus frame of PCM input: 960 samples x 2 channels x 2 bytes.
	const opusFrameBytes = opusFrameSize * opusChannels * 2

	speaking := false
	var buf []byte

	for {
		select {
		case <-s.done:
			if speaking {
				s.setSpeaking(false)
			}
			return
		case frame, ok := <-s.outbound:
			if !ok {
				return
			}
			if !speaking {
				s.setSpeaking(true)
				speaking = true
			}

			buf = append(buf, conv.Convert(frame).Data...)

			for len(buf) >= opusFrameBytes {
				opus, eErr := enc.encode(buf[:opusFrameBytes])
				buf = buf[opusFrameBytes:]
				if eErr != nil {
					slog.Warn("discord: opus encode error", "error", eErr)
					continue
				}
				select {
				case s.vc.OpusSend <- opus:
				case <-s.done:
					return
				}
			}
		}
	}
}

// handleVoiceStateUpdate maps Discord voice state changes onto join/leave
// events for the channel this session is on.
func (s *Session) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != s.guildID {
		return
	}
	channelID := s.vc.ChannelID

	username := ""
	if vsu.Member != nil && vsu.Member.User != nil {
		username = vsu.Member.User.Username
	}

	if vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == channelID && vsu.ChannelID != channelID {
		s.emitEvent(transport.Event{Type: transport.EventLeave, UserID: vsu.UserID, Username: username})
		return
	}
	if vsu.ChannelID == channelID && (vsu.BeforeUpdate == nil || vsu.BeforeUpdate.ChannelID != channelID) {
		s.emitEvent(transport.Event{Type: transport.EventJoin, UserID: vsu.UserID, Username: username})
	}
}

func (s *Session) setSpeaking(b bool) {
	if err := s.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}

func (s *Session) emitEvent(ev transport.Event) {
	s.changeMu.Lock()
	cb := s.changeCb
	s.changeMu.Unlock()
	if cb != nil {
		go cb(ev)
	}
}
