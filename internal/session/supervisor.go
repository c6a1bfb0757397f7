// Copyright (c) 2026 Lucidwave. All rights reserved.
// Use of this source code is governed by the Streamcore License
// that can be found in the LICENSE file.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lucidwave/streamcore/internal/config"
	"github.com/lucidwave/streamcore/internal/controlsocket"
	"github.com/lucidwave/streamcore/internal/diagnostics"
	"github.com/lucidwave/streamcore/internal/discovery"
	"github.com/lucidwave/streamcore/internal/logging"
	"github.com/lucidwave/streamcore/internal/platform"
	"github.com/lucidwave/streamcore/internal/protocol"
	"github.com/lucidwave/streamcore/internal/statistics"
	"github.com/lucidwave/streamcore/internal/streamsocket"
	"github.com/lucidwave/streamcore/internal/taskgraph"
	"github.com/lucidwave/streamcore/internal/videobuffer"
)

// HUD text surfaced to the headset while no frame is being rendered.
const (
	hudInitialMessage = "Searching for a streaming host...\n" +
		"Open the Streamcore companion app\n" +
		"and accept the pairing request"
	hudNetworkUnreachable = "Cannot connect to the internet"
	hudStreamStarting     = "The stream will begin soon\nPlease wait..."
	hudServerRestarting   = "The streamer is restarting\nPlease wait..."
	hudServerDisconnected = "The streamer has disconnected."
)

const (
	handshakeStreamConfigTimeout = time.Second
	postHandshakePeekTimeout     = time.Millisecond
	keepaliveInterval            = time.Second
	connectionRetryInterval      = time.Second
	batteryPollInterval          = 5 * time.Second
	controlReceivePoll           = 200 * time.Millisecond
	controlSendBufferSize        = 32

	clientProtocolID uint32 = 1
)

// Sentinel errors classifying how a connection attempt ended. Tested with
// errors.Is, never string matching.
var (
	// ErrInterrupted means the caller's context was canceled; the
	// supervisor unwinds silently without touching the HUD.
	ErrInterrupted = errors.New("session: interrupted")
	// ErrPeerRestart means the peer announced it is restarting.
	ErrPeerRestart = errors.New("session: peer restarting")
	// ErrPeerDisconnect means the peer dropped the connection or a send to
	// it failed outright.
	ErrPeerDisconnect = errors.New("session: peer disconnected")
	// ErrNotStreaming is returned by the external senders below when no
	// attempt currently holds the session singletons.
	ErrNotStreaming = errors.New("session: not currently streaming")
)

// Decoder is the external video decoder collaborator. Initialize is called
// from control_receive_loop whenever the peer sends InitializeDecoder;
// PushPayload is called from video_receive_loop for every packet the
// corruption tracker decides to forward.
type Decoder interface {
	Initialize(cfg protocol.DecoderInitConfig)
	PushPayload(timestamp int64, payload []byte) bool
}

// AudioOutput plays back the game-audio sub-stream. Only invoked when
// audio.game_audio is negotiated as enabled.
type AudioOutput interface {
	PlayLoop(ctx context.Context, recv *streamsocket.Receiver, sampleRate uint32) error
}

// AudioInput captures and sends the microphone sub-stream. Only invoked
// when audio.microphone is negotiated as enabled.
type AudioInput interface {
	RecordLoop(ctx context.Context, send *streamsocket.Sender) error
}

// noopDecoder is installed when no Decoder collaborator has been set,
// keeping video_receive_loop's corruption bookkeeping exercised even
// without a real codec behind it.
type noopDecoder struct{}

func (noopDecoder) Initialize(protocol.DecoderInitConfig) {}
func (noopDecoder) PushPayload(int64, []byte) bool        { return true }

// attemptResources bundles everything configure() builds for one
// connection attempt and startStreaming's task graph consumes.
type attemptResources struct {
	settings Settings

	streamSocket *streamsocket.Socket
	statsMgr     *statistics.Manager

	// The two halves of the split control socket: the sender is shared by
	// control_send_loop and keepalive_sender_loop (writes are serialized
	// underneath), the receiver is owned by control_receive_loop alone.
	controlSender   *controlsocket.Sender
	controlReceiver *controlsocket.Receiver

	trackingSender    *streamsocket.Sender
	statisticsSender  *streamsocket.Sender
	videoReceiver     *streamsocket.Receiver
	hapticsReceiver   *streamsocket.Receiver
	gameAudioReceiver *streamsocket.Receiver
	microphoneSender  *streamsocket.Sender

	outboundControl *ControlSender
	decoder         Decoder
	recorder        *diagnostics.Recorder

	sessionID        string
	attemptLogger    *slog.Logger
	attemptLogCloser io.Closer
}

// Supervisor drives the five-phase connection lifecycle — Discovering,
// Handshaking, Configuring, Streaming, TearingDown — looping forever until
// its Run context is canceled.
type Supervisor struct {
	cfg    *config.ClientConfig
	env    platform.Environment
	logger *slog.Logger

	events *EventBus
	holder *holder

	decoderFactory  func() Decoder
	audioOutput     AudioOutput
	audioInput      AudioInput
	resumed         func() bool
	recommendedCaps *protocol.StreamingCapabilities

	disconnectMu sync.Mutex
	disconnectCh chan struct{}

	// probedMicRate is the microphone sample rate advertised during the
	// current attempt's handshake, kept for the capture-open reprobe.
	probedMicRate uint32
}

// NewSupervisor builds a Supervisor. cfg and env are held for the lifetime
// of the returned value; cfg is read fresh at the start of every attempt,
// so a config reload between attempts (e.g. triggered by SIGHUP in
// cmd/streamcore-client) takes effect on the next Discovering phase.
func NewSupervisor(cfg *config.ClientConfig, env platform.Environment, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		env:    env,
		logger: logger.With("component", "session"),
		events: NewEventBus(),
		holder: newHolder(),
	}
}

// SetDecoderFactory installs the collaborator that builds a fresh Decoder
// for each connection attempt. Omit to use a no-op decoder that accepts
// every payload.
func (sv *Supervisor) SetDecoderFactory(f func() Decoder) { sv.decoderFactory = f }

// SetAudioOutput installs the game-audio playback collaborator.
func (sv *Supervisor) SetAudioOutput(out AudioOutput) { sv.audioOutput = out }

// SetAudioInput installs the microphone capture collaborator.
func (sv *Supervisor) SetAudioInput(in AudioInput) { sv.audioInput = in }

// SetResumedFunc installs the IS_RESUMED predicate: while it returns false
// the outer loop sleeps between checks instead of attempting to connect.
// A nil func (the default) behaves as always-resumed.
func (sv *Supervisor) SetResumedFunc(f func() bool) { sv.resumed = f }

// SetRecommendedCapabilities installs the client's streaming capabilities
// sent with ConnectionAccepted. The microphone sample rate field is
// overwritten from the platform Environment at handshake time regardless
// of what is passed here.
func (sv *Supervisor) SetRecommendedCapabilities(caps protocol.StreamingCapabilities) {
	sv.recommendedCaps = &caps
}

// Events returns the outward event stream (HUD messages, streaming
// start/stop, haptics) for a host application to drain.
func (sv *Supervisor) Events() <-chan ClientCoreEvent { return sv.events.Events() }

// IsStreaming reports the IS_STREAMING flag.
func (sv *Supervisor) IsStreaming() bool { return sv.holder.IsStreaming() }

// SendTracking forwards one already-encoded tracking payload to the peer.
// Returns ErrNotStreaming outside the Streaming phase.
func (sv *Supervisor) SendTracking(payload []byte) error {
	snd, ok := sv.holder.TrackingSender()
	if !ok {
		return ErrNotStreaming
	}
	return snd.Send(payload, false)
}

// SendStatistics forwards one already-encoded statistics payload to the
// peer. Returns ErrNotStreaming outside the Streaming phase.
func (sv *Supervisor) SendStatistics(payload []byte) error {
	snd, ok := sv.holder.StatisticsSender()
	if !ok {
		return ErrNotStreaming
	}
	return snd.Send(payload, false)
}

// RequestIdr asks the peer to emit a fresh IDR frame, if currently
// streaming. A no-op otherwise.
func (sv *Supervisor) RequestIdr() {
	if cs, ok := sv.holder.ControlSender(); ok {
		cs.Send(protocol.KindRequestIdr, nil)
	}
}

// StatisticsSnapshot returns the session's current statistics snapshot, or
// ok=false outside the Streaming phase.
func (sv *Supervisor) StatisticsSnapshot() (statistics.Snapshot, bool) {
	mgr, ok := sv.holder.StatisticsManager()
	if !ok {
		return statistics.Snapshot{}, false
	}
	return mgr.Snapshot(), true
}

// Disconnect is the DISCONNECT_NOTIFIER: it ends the current attempt's
// task graph immediately, if one is running. A no-op outside the
// Streaming phase.
func (sv *Supervisor) Disconnect() {
	sv.disconnectMu.Lock()
	ch := sv.disconnectCh
	sv.disconnectMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Run drives the connection lifecycle loop until ctx is canceled, at which
// point it returns nil — cancellation is the interrupted case and unwinds
// silently, without touching the HUD.
func (sv *Supervisor) Run(ctx context.Context) error {
	sv.pushHud(hudInitialMessage)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if sv.resumed != nil && !sv.resumed() {
			if !sv.sleep(ctx, connectionRetryInterval) {
				return nil
			}
			continue
		}

		reachedStreaming, err := sv.runAttempt(ctx)
		if err != nil {
			if errors.Is(err, ErrInterrupted) {
				return nil
			}
			sv.logger.Warn("connection attempt ended", "error", err)
		}

		if !reachedStreaming {
			if !sv.sleep(ctx, connectionRetryInterval) {
				return nil
			}
		}
	}
}

// runAttempt drives one full Discovering→Handshaking→Configuring pass and,
// on success, hands off to startStreaming for Streaming→TearingDown.
// reachedStreaming tells Run whether startStreaming already performed its
// own retry sleep, so the caller doesn't sleep twice.
func (sv *Supervisor) runAttempt(ctx context.Context) (reachedStreaming bool, err error) {
	controlSocket, peerAddr, err := sv.discover(ctx)
	if err != nil {
		if errors.Is(err, ErrInterrupted) {
			return false, ErrInterrupted
		}
		return false, fmt.Errorf("discovering: %w", err)
	}

	settings, err := sv.handshake(ctx, controlSocket)
	if err != nil {
		controlSocket.Close()
		switch {
		case errors.Is(err, ErrPeerRestart):
			sv.pushHud(hudServerRestarting)
			return false, nil
		case errors.Is(err, ErrPeerDisconnect):
			sv.pushHud(hudServerDisconnected)
			return false, nil
		default:
			return false, fmt.Errorf("handshake: %w", err)
		}
	}

	sv.pushHud(hudStreamStarting)

	res, err := sv.configure(ctx, controlSocket, peerAddr, settings)
	if err != nil {
		controlSocket.Close()
		if errors.Is(err, ErrPeerDisconnect) {
			sv.pushHud(hudServerDisconnected)
			return false, nil
		}
		return false, fmt.Errorf("configuring: %w", err)
	}

	// From here the remainder of the attempt must reach TearingDown
	// regardless of errors — startStreaming never returns one.
	sv.startStreaming(ctx, controlSocket, res)
	return true, nil
}

// discover implements the Discovering phase: broadcast this client's
// presence and wait for the peer to connect back, retrying internally
// (without restarting the whole attempt) when the broadcast socket cannot
// be opened, when a broadcast fails, and on a discovery timeout. Any other
// connect error is returned.
func (sv *Supervisor) discover(ctx context.Context) (*controlsocket.Socket, net.Addr, error) {
	for {
		if ctx.Err() != nil {
			return nil, nil, ErrInterrupted
		}

		announcer, err := discovery.New(sv.cfg.Discovery.BroadcastPort)
		if err != nil {
			sv.logger.Warn("opening discovery broadcast socket failed", "error", err)
			sv.pushHud(hudNetworkUnreachable)
			if !sv.sleep(ctx, connectionRetryInterval) {
				return nil, nil, ErrInterrupted
			}
			sv.pushHud(hudInitialMessage)
			continue
		}

		broadcastErr := announcer.Broadcast(sv.cfg.Identity.Hostname)
		announcer.Close()
		if broadcastErr != nil {
			sv.logger.Warn("broadcasting discovery announcement failed", "error", broadcastErr)
			sv.pushHud(hudNetworkUnreachable)
			if !sv.sleep(ctx, connectionRetryInterval) {
				return nil, nil, ErrInterrupted
			}
			sv.pushHud(hudInitialMessage)
			continue
		}

		socket, peerAddr, err := controlsocket.ConnectTo(ctx, sv.cfg.Discovery.ListenPort, sv.cfg.Discovery.RetryInterval)
		if err != nil {
			if errors.Is(err, controlsocket.ErrDiscoveryTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return nil, nil, ErrInterrupted
			}
			return nil, nil, fmt.Errorf("connecting control socket: %w", err)
		}
		return socket, peerAddr, nil
	}
}

// handshake implements the Handshaking phase: send ConnectionAccepted,
// wait up to handshakeStreamConfigTimeout for the StreamConfigPacket, then
// peek for the StartStream/Restarting signal within
// postHandshakePeekTimeout.
func (sv *Supervisor) handshake(ctx context.Context, controlSocket *controlsocket.Socket) (Settings, error) {
	localIP, err := sv.env.LocalIP()
	if err != nil {
		sv.logger.Debug("local IP unavailable", "error", err)
	}
	sv.probedMicRate = sv.env.MicrophoneSampleRate()

	accepted := protocol.ConnectionAccepted{
		ClientProtocolID: clientProtocolID,
		DisplayName:      sv.cfg.Identity.Hostname,
		ServerIP:         localIP,
		Capabilities:     sv.capabilities(),
	}
	if err := controlSocket.Send(protocol.KindConnectionAccepted, &accepted); err != nil {
		return Settings{}, fmt.Errorf("%w: sending connection accepted: %v", ErrPeerDisconnect, err)
	}

	var cfgPkt protocol.StreamConfigPacket
	kind, err := controlSocket.RecvTimeout(&cfgPkt, handshakeStreamConfigTimeout)
	if err != nil {
		if isTimeout(err) {
			return Settings{}, fmt.Errorf("%w: timed out waiting for stream config", ErrPeerDisconnect)
		}
		return Settings{}, fmt.Errorf("%w: receiving stream config: %v", ErrPeerDisconnect, err)
	}
	if kind != protocol.KindStreamConfig {
		return Settings{}, fmt.Errorf("%w: kind %#x while awaiting stream config", controlsocket.ErrUnexpectedPacket, kind)
	}

	settings, err := DeriveSettings(sv.cfg, &cfgPkt)
	if err != nil {
		return Settings{}, fmt.Errorf("deriving settings: %w", err)
	}

	kind, err = controlSocket.RecvTimeout(nil, postHandshakePeekTimeout)
	if err != nil {
		if isTimeout(err) {
			return Settings{}, fmt.Errorf("session: no start-stream signal within the post-handshake window")
		}
		return Settings{}, fmt.Errorf("%w: peeking post-handshake: %v", ErrPeerDisconnect, err)
	}
	switch kind {
	case protocol.KindStartStream:
		return settings, nil
	case protocol.KindRestarting:
		return Settings{}, ErrPeerRestart
	default:
		return Settings{}, fmt.Errorf("%w: kind %#x post-handshake", controlsocket.ErrUnexpectedPacket, kind)
	}
}

// capabilities builds the StreamingCapabilities sent with
// ConnectionAccepted, if the host application has recommended any; the
// microphone sample rate is always refreshed from the platform
// Environment, never taken from what was set at startup.
func (sv *Supervisor) capabilities() *protocol.StreamingCapabilities {
	if sv.recommendedCaps == nil {
		return nil
	}
	caps := *sv.recommendedCaps
	caps.MicrophoneSampleRate = sv.probedMicRate
	return &caps
}

// configure implements the Configuring phase: build the statistics
// manager, bind and confirm the stream socket, apply client-local
// transport tuning that is never part of the negotiated Settings
// (bandwidth limit, DSCP marking), and construct every per-subject
// sender/receiver handle the task graph will use.
func (sv *Supervisor) configure(ctx context.Context, controlSocket *controlsocket.Socket, peerAddr net.Addr, settings Settings) (*attemptResources, error) {
	var pipelineFrames uint32
	if settings.Controllers != nil {
		pipelineFrames = settings.Controllers.SteamVRPipelineFrames
	}
	statsMgr := statistics.New(settings.Connection.StatisticsHistorySize, frameInterval(settings.RefreshRateHint), pipelineFrames)

	streamSock, err := streamsocket.Bind(ctx, settings.Connection.StreamProtocol, settings.Connection.StreamPort,
		int(settings.Connection.ClientSendBufferBytes), int(settings.Connection.ClientRecvBufferBytes), sv.logger)
	if err != nil {
		return nil, fmt.Errorf("binding stream socket: %w", err)
	}

	if sv.cfg.Network.BandwidthLimitRaw > 0 {
		streamSock.SetBandwidthLimit(ctx, sv.cfg.Network.BandwidthLimitRaw)
	}
	if sv.cfg.Network.DSCP != "" {
		dscp, err := streamsocket.ParseDSCP(sv.cfg.Network.DSCP)
		if err != nil {
			sv.logger.Warn("ignoring invalid dscp setting", "dscp", sv.cfg.Network.DSCP, "error", err)
		} else if err := streamSock.ApplyDSCP(dscp); err != nil {
			sv.logger.Warn("applying dscp marking failed", "error", err)
		}
	}

	if err := controlSocket.Send(protocol.KindStreamReady, nil); err != nil {
		streamSock.Close()
		return nil, fmt.Errorf("%w: sending stream ready: %v", ErrPeerDisconnect, err)
	}

	peerHost, _, splitErr := net.SplitHostPort(peerAddr.String())
	if splitErr != nil {
		peerHost = peerAddr.String()
	}
	peerUDPAddr := &net.UDPAddr{IP: net.ParseIP(peerHost), Port: settings.Connection.StreamPort}

	if err := streamSock.AcceptFromPeer(peerUDPAddr, settings.Connection.PacketSize, streamsocket.AcceptTimeout); err != nil {
		streamSock.Close()
		return nil, fmt.Errorf("accepting stream socket peer: %w", err)
	}

	var decoder Decoder = noopDecoder{}
	if sv.decoderFactory != nil {
		decoder = sv.decoderFactory()
	}

	sessionID := time.Now().UTC().Format("20060102T150405.000000000")

	attemptLogger, logCloser, logPath, logErr := logging.NewSessionLogger(sv.logger, sv.cfg.Logging.SessionLogDir, sessionID)
	if logErr != nil {
		sv.logger.Warn("per-attempt log file unavailable", "error", logErr)
		attemptLogger, logCloser = sv.logger, nil
	} else if logPath != "" {
		attemptLogger.Debug("attempt log file created", "path", logPath)
	}

	var recorder *diagnostics.Recorder
	if sv.cfg.Diagnostics.Enabled {
		r, err := diagnostics.NewRecorder(sv.cfg.Diagnostics.Directory, sessionID, attemptLogger)
		if err != nil {
			attemptLogger.Warn("starting diagnostics recorder failed", "error", err)
		} else {
			recorder = r
		}
	}

	ctlSender, ctlReceiver := controlSocket.Split()

	res := &attemptResources{
		settings:         settings,
		streamSocket:     streamSock,
		controlSender:    ctlSender,
		controlReceiver:  ctlReceiver,
		statsMgr:         statsMgr,
		trackingSender:   streamSock.Sender(protocol.SubjectTracking),
		statisticsSender: streamSock.Sender(protocol.SubjectStatistics),
		videoReceiver:    streamSock.Receiver(protocol.SubjectVideo),
		hapticsReceiver:  streamSock.Receiver(protocol.SubjectHaptics),
		outboundControl:  newControlSender(controlSendBufferSize),
		decoder:          decoder,
		recorder:         recorder,
		sessionID:        sessionID,
		attemptLogger:    attemptLogger,
		attemptLogCloser: logCloser,
	}
	if settings.Audio.GameAudio != nil {
		res.gameAudioReceiver = streamSock.Receiver(protocol.SubjectAudio)
	}
	if settings.Audio.Microphone != nil {
		res.microphoneSender = streamSock.Sender(protocol.SubjectAudio)
	}
	return res, nil
}

// startStreaming implements the Transition-to-Streaming step, the
// Streaming phase (running the task graph), and TearingDown. It never
// returns an error: everything from here on must reach TearingDown
// regardless of what goes wrong.
func (sv *Supervisor) startStreaming(ctx context.Context, controlSocket *controlsocket.Socket, res *attemptResources) {
	sv.holder.install(&singletons{
		connection:       res.streamSocket,
		trackingSender:   res.trackingSender,
		statisticsSender: res.statisticsSender,
		controlSender:    res.outboundControl,
		statisticsMgr:    res.statsMgr,
		decoderInit:      res.settings.DecoderInitConfig(),
	})

	disconnectCh := make(chan struct{}, 1)
	sv.disconnectMu.Lock()
	sv.disconnectCh = disconnectCh
	sv.disconnectMu.Unlock()

	sv.events.Push(StreamingStarted{
		ViewResolution:  res.settings.ViewResolution,
		RefreshRateHint: res.settings.RefreshRateHint,
		Settings:        res.settings,
	})

	graph := taskgraph.New()
	graph.Add(taskgraph.Task{Name: "receive_loop", Cancelable: true, Fn: func(ctx context.Context) error {
		return res.streamSocket.ReceiveLoop(ctx)
	}})
	graph.Add(taskgraph.Task{Name: "game_audio_loop", Cancelable: true, Fn: sv.gameAudioTask(res)})
	graph.Add(taskgraph.Task{Name: "microphone_loop", Cancelable: true, Fn: sv.microphoneTask(res)})
	graph.Add(taskgraph.Task{Name: "video_receive_loop", Cancelable: true, Fn: sv.videoReceiveTask(res)})
	graph.Add(taskgraph.Task{Name: "haptics_receive_loop", Cancelable: true, Fn: sv.hapticsReceiveTask(res)})
	graph.Add(taskgraph.Task{Name: "control_send_loop", Cancelable: true, Fn: sv.controlSendTask(res)})
	graph.Add(taskgraph.Task{Name: "keepalive_sender_loop", Cancelable: false, Fn: sv.keepaliveTask(res)})
	graph.Add(taskgraph.Task{Name: "control_receive_loop", Cancelable: false, Fn: sv.controlReceiveTask(res)})
	graph.Add(taskgraph.Task{Name: "battery_poll_loop", Cancelable: true, Fn: sv.batteryPollTask(res)})

	result := graph.Run(ctx, disconnectCh)
	res.attemptLogger.Info("task graph ended", "winner", result.WinnerName, "error", result.Err)
	if res.recorder != nil {
		res.recorder.Record("task_graph_ended", map[string]any{
			"winner": result.WinnerName,
			"load1":  sv.env.LoadAverage(),
		})
	}

	sv.disconnectMu.Lock()
	sv.disconnectCh = nil
	sv.disconnectMu.Unlock()

	// IS_STREAMING drops before the StreamingStopped event is pushed, so a
	// consumer observing the event can never see a still-populated
	// singleton behind it.
	sv.holder.clear()
	sv.events.Push(StreamingStopped{})

	sv.sleep(ctx, connectionRetryInterval)

	res.streamSocket.Close()
	controlSocket.Close()
	if res.recorder != nil {
		res.recorder.Close()
	}
	if res.attemptLogCloser != nil {
		res.attemptLogCloser.Close()
	}
	// A session that ran to a clean end leaves no debug log behind; the file
	// only survives when something went wrong and is worth inspecting.
	if result.Err == nil {
		logging.RemoveSessionLog(sv.cfg.Logging.SessionLogDir, res.sessionID)
	}
}

func (sv *Supervisor) gameAudioTask(res *attemptResources) func(context.Context) error {
	if res.settings.Audio.GameAudio == nil || sv.audioOutput == nil {
		return pendingTask
	}
	return func(ctx context.Context) error {
		return sv.audioOutput.PlayLoop(ctx, res.gameAudioReceiver, res.settings.GameAudioSampleRate)
	}
}

func (sv *Supervisor) microphoneTask(res *attemptResources) func(context.Context) error {
	if res.settings.Audio.Microphone == nil || sv.audioInput == nil {
		return pendingTask
	}
	return func(ctx context.Context) error {
		// Best-effort reprobe at capture open: the default input device may
		// have changed since the rate was advertised during handshake.
		if cur := sv.env.MicrophoneSampleRate(); cur != sv.probedMicRate {
			res.attemptLogger.Debug("microphone sample rate changed since handshake",
				"advertised", sv.probedMicRate, "current", cur)
		}
		return sv.audioInput.RecordLoop(ctx, res.microphoneSender)
	}
}

// pendingTask blocks until canceled and never finishes on its own. Audio
// sub-streams absent from a session's negotiated settings park here, since
// any task returning ends the whole graph.
func pendingTask(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// videoReceiveTask implements §4.4's corruption/IDR state machine: every
// reassembled packet is fed through the corruption tracker, which decides
// whether to push it to the decoder, drop it, or request a fresh IDR.
func (sv *Supervisor) videoReceiveTask(res *attemptResources) func(context.Context) error {
	return func(ctx context.Context) error {
		buf := videobuffer.New()
		tracker := videobuffer.NewCorruptionTracker()

		for {
			hdr, payload, err := res.videoReceiver.Recv()
			if err != nil {
				return err
			}
			buf.RecordChunk(hdr, payload)
			gotHdr, gotPayload := buf.Get()

			if sv.resumed != nil && !sv.resumed() {
				return nil
			}

			res.statsMgr.ReportVideoPacketReceived(time.Unix(0, gotHdr.Timestamp))

			hadLoss := buf.HadPacketLoss()
			outcome, requestIdr := tracker.Evaluate(gotHdr.IsIDR(), hadLoss, res.settings.Connection.AvoidVideoGlitching, func() bool {
				return res.decoder.PushPayload(gotHdr.Timestamp, gotPayload)
			})
			if requestIdr {
				res.outboundControl.Send(protocol.KindRequestIdr, nil)
			}
			if res.recorder != nil && outcome != videobuffer.OutcomeDecoded {
				res.recorder.Record("video_drop", map[string]any{"outcome": int(outcome)})
			}
		}
	}
}

func (sv *Supervisor) hapticsReceiveTask(res *attemptResources) func(context.Context) error {
	return func(ctx context.Context) error {
		for {
			_, payload, err := res.hapticsReceiver.Recv()
			if err != nil {
				return err
			}
			var h Haptics
			if jsonErr := json.Unmarshal(payload, &h); jsonErr != nil {
				res.attemptLogger.Debug("dropping malformed haptics payload", "error", jsonErr)
				continue
			}
			sv.events.Push(h)
		}
	}
}

func (sv *Supervisor) controlSendTask(res *attemptResources) func(context.Context) error {
	return func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case req := <-res.outboundControl.ch:
				if err := res.controlSender.Send(req.kind, req.payload); err != nil {
					res.attemptLogger.Debug("control send failed", "error", err)
				}
			}
		}
	}
}

func (sv *Supervisor) keepaliveTask(res *attemptResources) func(context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := res.controlSender.Send(protocol.KindKeepAlive, nil); err != nil {
					sv.pushHud(hudServerDisconnected)
					return fmt.Errorf("%w: keepalive send: %v", ErrPeerDisconnect, err)
				}
			}
		}
	}
}

func (sv *Supervisor) controlReceiveTask(res *attemptResources) func(context.Context) error {
	return func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			var initMsg protocol.InitializeDecoder
			kind, err := res.controlReceiver.RecvTimeout(&initMsg, controlReceivePoll)
			if err != nil {
				if isTimeout(err) {
					continue
				}
				sv.pushHud(hudServerDisconnected)
				return fmt.Errorf("%w: control receive: %v", ErrPeerDisconnect, err)
			}

			switch kind {
			case protocol.KindInitializeDecoder:
				res.decoder.Initialize(initMsg.Config)
				if res.recorder != nil {
					res.recorder.Record("decoder_initialized", nil)
				}
			case protocol.KindRestarting:
				sv.pushHud(hudServerRestarting)
				return ErrPeerRestart
			default:
				res.attemptLogger.Debug("ignoring control packet", "kind", kind)
			}
		}
	}
}

// batteryPollTask polls battery state every batteryPollInterval and sends
// a Battery packet only when the reading differs from the last one sent. On
// hardware with no battery sensor (platform.ErrNoBattery), it stops
// polling after the first attempt but keeps the task parked on ctx.Done()
// rather than returning — this is the Go redesign's stand-in for the
// original's compile-time platform conditional: the task is always
// registered, and it simply never produces anything on a deployment
// without a battery.
func (sv *Supervisor) batteryPollTask(res *attemptResources) func(context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(batteryPollInterval)
		defer ticker.Stop()

		noBattery := false
		var last protocol.Battery
		sent := false
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if noBattery {
					continue
				}
				state, err := sv.env.Battery(ctx)
				if err != nil {
					if errors.Is(err, platform.ErrNoBattery) {
						noBattery = true
						continue
					}
					res.attemptLogger.Debug("battery poll failed", "error", err)
					continue
				}
				report := protocol.Battery{
					DeviceID: state.DeviceID,
					Gauge:    state.Gauge,
					Plugged:  state.Plugged,
				}
				if sent && report == last {
					continue
				}
				last, sent = report, true
				res.outboundControl.Send(protocol.KindBattery, &report)
			}
		}
	}
}

func (sv *Supervisor) pushHud(msg string) {
	sv.events.Push(UpdateHudMessage{Text: msg})
}

// sleep blocks for d or until ctx is canceled, reporting which happened
// first.
func (sv *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// frameInterval derives the statistics manager's fixed clock basis from
// the negotiated refresh rate, falling back to DefaultRefreshRateHint for
// a non-positive value.
func frameInterval(hz float32) time.Duration {
	if hz <= 0 {
		hz = DefaultRefreshRateHint
	}
	return time.Duration(float64(time.Second) / float64(hz))
}
