// Package concierge 编排一轮对话：调用对话、图片与语音服务，并同步打字、字幕与音频播放。
package concierge

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	"github.com/mion-onsen/concierge/backend/internal/analysis/preferences"
	"github.com/mion-onsen/concierge/backend/internal/model/chat"
	"github.com/mion-onsen/concierge/backend/internal/model/onsen"
	"github.com/mion-onsen/concierge/backend/internal/observability"
	"github.com/mion-onsen/concierge/backend/internal/playback"
)

// State is the turn lifecycle position.
type State string

const (
	StateIdle            State = "idle"
	StateSending         State = "sending"
	StateGeneratingImage State = "generating_image"
	StateSpeaking        State = "speaking"
	StateRevealing       State = "revealing"
)

// Turn outcomes recorded in metrics.
const (
	outcomeCompleted = "completed"
	outcomeApology   = "apology"
	outcomeGreeting  = "greeting"
)

// Config wires an Orchestrator. Chat is required; the other services are
// optional and their absence degrades the turn.
type Config struct {
	SessionID string
	Greeting  string
	Language  language.Tag

	Chat   ChatService
	Speech SpeechService
	Images ImageService
	Video  VideoService

	Clock          playback.Clock
	Audio          *playback.Controller
	TypingInterval time.Duration
	CharsPerSecond float64
	SubtitleLinger time.Duration
	VideoPoll      PollPolicy
	// VideoPath is published as VideoURL when Video is a VideoFetcher.
	VideoPath string
	// TurnTimeout bounds background turns started with Submit. Zero means none.
	TurnTimeout time.Duration

	Metrics *observability.Metrics
	Tracer  trace.Tracer
}

// Snapshot is a consistent view of an orchestrator for observers.
type Snapshot struct {
	SessionID     string            `json:"sessionId"`
	State         State             `json:"state"`
	History       []chat.Message    `json:"history"`
	// Caption is the bot text on display. A finished reply stays until the
	// next turn starts.
	Caption       string            `json:"caption"`
	Subtitle      string            `json:"subtitle"`
	LastCompleted string            `json:"lastCompleted"`
	Muted         bool              `json:"muted"`
	AudioPlaying  bool              `json:"audioPlaying"`
	AudioLevel    float64           `json:"audioLevel"`
	HasAudio      bool              `json:"hasAudio"`
	Visual        onsen.VisualState `json:"visual"`
}

// Orchestrator runs at most one turn at a time for one conversation.
type Orchestrator struct {
	sessionID   string
	greeting    string
	lang        language.Tag
	chat        ChatService
	speech      SpeechService
	images      ImageService
	video       VideoService
	clock       playback.Clock
	audio       *playback.Controller
	revealer    *playback.Revealer
	subtitles   *playback.SubtitleScheduler
	poll        PollPolicy
	videoPath   string
	turnTimeout time.Duration
	metrics     *observability.Metrics
	tracer      trace.Tracer
	events      *Broker

	bg       context.Context
	bgCancel context.CancelFunc

	mu        sync.Mutex
	state     State
	turn      uint64
	history   []chat.Message
	lastText  string
	lastAudio string
	visual    onsen.VisualState
	closed    bool

	// videoSource is the provider link behind visual.VideoURL; clip caches
	// its download.
	videoSource string
	clip        *fetchedVideo
}

type fetchedVideo struct {
	source   string
	data     []byte
	mimeType string
}

// New builds an idle orchestrator.
func New(cfg Config) *Orchestrator {
	clock := cfg.Clock
	if clock == nil {
		clock = playback.SystemClock{}
	}
	audio := cfg.Audio
	if audio == nil {
		audio = playback.NewController(nil, playback.DefaultSampleRate)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.Tracer()
	}
	poll := cfg.VideoPoll
	if cfg.Metrics != nil && poll.OnPoll == nil {
		poll.OnPoll = cfg.Metrics.VideoPolled
	}

	bg, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		sessionID:   cfg.SessionID,
		greeting:    cfg.Greeting,
		lang:        cfg.Language,
		chat:        cfg.Chat,
		speech:      cfg.Speech,
		images:      cfg.Images,
		video:       cfg.Video,
		clock:       clock,
		audio:       audio,
		revealer:    playback.NewRevealer(clock, cfg.TypingInterval),
		subtitles:   playback.NewSubtitleScheduler(clock, cfg.CharsPerSecond, cfg.SubtitleLinger),
		poll:        poll,
		videoPath:   cfg.VideoPath,
		turnTimeout: cfg.TurnTimeout,
		metrics:     cfg.Metrics,
		tracer:      tracer,
		events:      NewBroker(DefaultSubscriberBuffer),
		bg:          bg,
		bgCancel:    cancel,
		state:       StateIdle,
		history:     make([]chat.Message, 0, 16),
		visual:      onsen.NewVisualState(),
	}

	o.revealer.OnUpdate = func(partial string) {
		o.publish(EventCaption, TextData{Text: partial})
	}
	o.subtitles.OnChange = func(subtitle string) {
		o.publish(EventSubtitle, TextData{Text: subtitle})
	}
	if o.metrics != nil && audio.OnSession == nil {
		audio.OnSession = o.metrics.AudioSession
	}
	return o
}

// SessionID returns the conversation identifier.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// SendMessage runs one turn for input. It returns once the reply has
// started revealing; the reveal itself finishes asynchronously.
func (o *Orchestrator) SendMessage(ctx context.Context, input string) error {
	text, turn, err := o.claim(input)
	if err != nil {
		return err
	}
	return o.runTurn(ctx, turn, text)
}

// Submit claims a turn synchronously and runs it in the background,
// detached from ctx cancellation but bounded by the turn timeout.
func (o *Orchestrator) Submit(ctx context.Context, input string) error {
	text, turn, err := o.claim(input)
	if err != nil {
		return err
	}
	runCtx, cancel := o.detach(ctx, o.turnTimeout)
	go func() {
		defer cancel()
		if err := o.runTurn(runCtx, turn, text); err != nil {
			log.Printf("[concierge] session %s turn aborted: %v", o.sessionID, err)
		}
	}()
	return nil
}

// Greet reveals the persona greeting. It is only allowed before the first
// message of the conversation.
func (o *Orchestrator) Greet(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return ErrClosed
	case o.state != StateIdle:
		o.mu.Unlock()
		return ErrTurnInFlight
	case len(o.history) > 0:
		o.mu.Unlock()
		return ErrAlreadyGreeted
	case strings.TrimSpace(o.greeting) == "":
		o.mu.Unlock()
		return ErrEmptyInput
	}
	o.turn++
	turn := o.turn
	o.state = StateSending
	o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "concierge.turn", trace.WithAttributes(
		attribute.String("session.id", o.sessionID),
		attribute.Bool("turn.greeting", true),
	))
	defer span.End()

	return o.deliver(ctx, turn, o.greeting, outcomeGreeting)
}

func (o *Orchestrator) claim(input string) (string, uint64, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return "", 0, ErrEmptyInput
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return "", 0, ErrClosed
	}
	if o.state != StateIdle {
		return "", 0, ErrTurnInFlight
	}
	o.turn++
	o.state = StateSending
	return text, o.turn, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, turn uint64, text string) error {
	ctx, span := o.tracer.Start(ctx, "concierge.turn", trace.WithAttributes(
		attribute.String("session.id", o.sessionID),
	))
	defer span.End()

	o.audio.Stop()
	o.subtitles.Clear()
	o.revealer.Reset()

	user := chat.UserMessage(text)
	o.mu.Lock()
	o.lastAudio = ""
	o.history = append(o.history, user)
	o.mu.Unlock()
	o.publish(EventMessage, user)
	o.publish(EventState, StateData{State: StateSending})

	reply, outcome := o.reply(ctx, text)
	if !o.current(turn) {
		return ErrClosed
	}

	if prefs, ok := preferences.Extract(reply); ok {
		if err := o.generateImages(ctx, turn, *prefs); err != nil {
			return err
		}
	}
	return o.deliver(ctx, turn, reply, outcome)
}

// reply asks the chat service and falls back to the apology text.
func (o *Orchestrator) reply(ctx context.Context, text string) (string, string) {
	if o.lang != language.Und {
		ctx = WithLanguage(ctx, o.lang)
	}
	ctx, span := o.tracer.Start(ctx, "concierge.chat")
	defer span.End()

	start := time.Now()
	var (
		reply string
		err   error
	)
	if o.chat == nil {
		err = errors.New("chat service not configured")
	} else {
		reply, err = o.chat.Reply(ctx, text)
	}
	o.metrics.ObserveStage("chat", time.Since(start))

	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		log.Printf("[concierge] session %s chat failed: %v", o.sessionID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.ProviderError("chat", "reply")
		return ApologyText, outcomeApology
	}
	return reply, outcomeCompleted
}

func (o *Orchestrator) generateImages(ctx context.Context, turn uint64, prefs onsen.Preferences) error {
	if o.images == nil {
		log.Printf("[concierge] session %s preferences found but no image service configured", o.sessionID)
		return nil
	}
	if !o.transition(turn, StateGeneratingImage) {
		return ErrClosed
	}
	o.updateVisual(func(v *onsen.VisualState) {
		v.IsGeneratingImage = true
		v.Error = ""
	})

	ctx, span := o.tracer.Start(ctx, "concierge.image")
	start := time.Now()
	images, err := o.images.GenerateImages(ctx, prefs)
	o.metrics.ObserveStage("image", time.Since(start))
	if err != nil {
		log.Printf("[concierge] session %s image generation failed: %v", o.sessionID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.ProviderError("image", "generate")
	} else if len(images) == 0 {
		log.Printf("[concierge] session %s image generation returned nothing", o.sessionID)
	}
	span.End()

	if !o.current(turn) {
		return ErrClosed
	}
	o.updateVisual(func(v *onsen.VisualState) {
		v.IsGeneratingImage = false
		switch {
		case err != nil:
			v.Error = ImageErrorText
		case len(images) > 0:
			v.Images = images
			v.SelectedConcept = onsen.NoConcept
			v.VideoURL = ""
		}
	})
	return nil
}

// synthesize returns "" when no audio is available.
func (o *Orchestrator) synthesize(ctx context.Context, text string) string {
	if o.speech == nil || strings.TrimSpace(text) == "" {
		return ""
	}
	ctx, span := o.tracer.Start(ctx, "concierge.speech")
	defer span.End()

	start := time.Now()
	audio, err := o.speech.Synthesize(ctx, text)
	o.metrics.ObserveStage("speech", time.Since(start))
	switch {
	case errors.Is(err, ErrNoAudio):
		return ""
	case err != nil:
		log.Printf("[concierge] session %s speech synthesis failed: %v", o.sessionID, err)
		span.RecordError(err)
		o.metrics.ProviderError("speech", "synthesize")
		return ""
	}
	return audio
}

// deliver speaks and reveals text, ending the turn when the reveal completes.
func (o *Orchestrator) deliver(ctx context.Context, turn uint64, text, outcome string) error {
	if !o.transition(turn, StateSpeaking) {
		return ErrClosed
	}

	spoken := preferences.Strip(text)
	payload := o.synthesize(ctx, spoken)

	var (
		clip    playback.Clip
		decoded bool
	)
	if payload != "" {
		var err error
		if clip, err = o.audio.Decode(payload); err != nil {
			log.Printf("[concierge] session %s speech audio undecodable: %v", o.sessionID, err)
		} else {
			decoded = true
		}
	}

	o.mu.Lock()
	if o.closed || o.turn != turn {
		o.mu.Unlock()
		return ErrClosed
	}
	o.state = StateRevealing
	o.lastAudio = payload
	o.mu.Unlock()
	o.publish(EventState, StateData{State: StateRevealing})

	o.revealer.Reveal(text, func(full string) {
		o.finishTurn(turn, full, outcome)
	})
	if decoded {
		o.subtitles.ScheduleForDuration(spoken, clip.Duration())
	} else {
		o.subtitles.Schedule(spoken)
	}

	if payload != "" && !o.audio.Muted() {
		if decoded {
			o.playClip(clip)
		} else {
			o.audio.Play(payload, o.audioEnded)
		}
	}
	return nil
}

func (o *Orchestrator) finishTurn(turn uint64, full, outcome string) {
	bot := chat.BotMessage(full)

	o.mu.Lock()
	if o.closed || o.turn != turn || o.state != StateRevealing {
		o.mu.Unlock()
		return
	}
	o.history = append(o.history, bot)
	o.lastText = full
	o.state = StateIdle
	o.mu.Unlock()

	o.metrics.TurnFinished(outcome)
	o.publish(EventMessage, bot)
	o.publish(EventState, StateData{State: StateIdle})
}

func (o *Orchestrator) playClip(clip playback.Clip) {
	o.publish(EventAudio, AudioData{
		DurationMs: clip.Duration().Milliseconds(),
		SampleRate: clip.SampleRate,
	})
	o.audio.PlayClip(clip, o.audioEnded)
}

func (o *Orchestrator) audioEnded() {
	o.publish(EventAudioEnd, nil)
}

// SetMuted changes the output gain without interrupting playback.
func (o *Orchestrator) SetMuted(muted bool) {
	o.audio.SetMuted(muted)
}

// StopAudio stops the active clip, if any, and cancels the subtitle
// timeline along with it.
func (o *Orchestrator) StopAudio() {
	o.audio.Stop()
	o.subtitles.Clear()
}

// Replay plays the last reply's audio again. It does nothing when the last
// reply had no audio.
func (o *Orchestrator) Replay() {
	o.mu.Lock()
	payload := o.lastAudio
	closed := o.closed
	o.mu.Unlock()
	if closed || payload == "" {
		return
	}

	clip, err := o.audio.Decode(payload)
	if err != nil {
		o.audio.Play(payload, o.audioEnded)
		return
	}
	o.playClip(clip)
}

// LastAudio returns the raw PCM16 of the last reply.
func (o *Orchestrator) LastAudio() ([]byte, bool) {
	o.mu.Lock()
	payload := o.lastAudio
	o.mu.Unlock()
	if payload == "" {
		return nil, false
	}
	clip, err := o.audio.Decode(payload)
	if err != nil {
		return nil, false
	}
	return clip.PCM(), true
}

// SelectConcept turns the concept at index into a looping video in the
// background. It never blocks or changes the turn state.
func (o *Orchestrator) SelectConcept(ctx context.Context, index int) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.visual.IsGeneratingVideo {
		o.mu.Unlock()
		return ErrVideoInFlight
	}
	if index < 0 || index >= len(o.visual.Images) {
		o.mu.Unlock()
		return ErrNoSuchConcept
	}
	o.visual.SelectedConcept = index
	o.visual.VideoURL = ""
	o.videoSource = ""
	if o.video == nil {
		o.visual.Error = VideoConfigErrText
		v := o.visual.Clone()
		o.mu.Unlock()
		o.publish(EventVisual, v)
		return ErrVideoUnconfigured
	}
	image := o.visual.Images[index]
	o.visual.IsGeneratingVideo = true
	o.visual.VideoLoadingMsg = VideoLoadingMessage
	o.visual.Error = ""
	v := o.visual.Clone()
	o.mu.Unlock()
	o.publish(EventVisual, v)

	runCtx, cancel := o.detach(ctx, 0)
	go func() {
		defer cancel()
		o.runVideo(runCtx, image)
	}()
	return nil
}

func (o *Orchestrator) runVideo(ctx context.Context, image string) {
	ctx, span := o.tracer.Start(ctx, "concierge.video", trace.WithAttributes(
		attribute.String("session.id", o.sessionID),
	))
	defer span.End()

	url, err := o.generateVideo(ctx, image)
	if err != nil {
		log.Printf("[concierge] session %s video generation failed: %v", o.sessionID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.ProviderError("video", "generate")
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.visual.IsGeneratingVideo = false
	o.visual.VideoLoadingMsg = ""
	if err != nil {
		o.visual.Error = videoErrorText(err)
	} else {
		o.videoSource = url
		o.visual.VideoURL = o.publicVideoURL(url)
	}
	v := o.visual.Clone()
	o.mu.Unlock()
	o.publish(EventVisual, v)
}

// publicVideoURL hides links that only work with credentials.
func (o *Orchestrator) publicVideoURL(source string) string {
	if _, ok := o.video.(VideoFetcher); ok && o.videoPath != "" {
		return o.videoPath
	}
	return source
}

// Video returns the clip of the selected concept, downloading it through
// the video service on first use. ErrNoVideo means there is nothing to
// serve, either because no video is ready or the service links publicly.
func (o *Orchestrator) Video(ctx context.Context) ([]byte, string, error) {
	fetcher, ok := o.video.(VideoFetcher)
	if !ok {
		return nil, "", ErrNoVideo
	}
	o.mu.Lock()
	source, clip := o.videoSource, o.clip
	o.mu.Unlock()
	if source == "" {
		return nil, "", ErrNoVideo
	}
	if clip != nil && clip.source == source {
		return clip.data, clip.mimeType, nil
	}

	data, mimeType, err := fetcher.FetchVideo(ctx, source)
	if err != nil {
		log.Printf("[concierge] session %s video download failed: %v", o.sessionID, err)
		o.metrics.ProviderError("video", "download")
		return nil, "", err
	}
	o.mu.Lock()
	if o.videoSource == source {
		o.clip = &fetchedVideo{source: source, data: data, mimeType: mimeType}
	}
	o.mu.Unlock()
	return data, mimeType, nil
}

func (o *Orchestrator) generateVideo(ctx context.Context, image string) (string, error) {
	op, err := o.video.StartVideo(ctx, image, "image/png")
	if err != nil {
		return "", err
	}
	return AwaitVideo(ctx, o.clock, op, o.poll)
}

// DismissError clears the visual error.
func (o *Orchestrator) DismissError() {
	o.updateVisual(func(v *onsen.VisualState) { v.Error = "" })
}

// State returns the current turn state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns a copy of the conversation so far.
func (o *Orchestrator) History() []chat.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]chat.Message(nil), o.history...)
}

// Snapshot returns the current observable state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	snap := Snapshot{
		SessionID:     o.sessionID,
		State:         o.state,
		History:       append([]chat.Message(nil), o.history...),
		LastCompleted: o.lastText,
		HasAudio:      o.lastAudio != "",
		Visual:        o.visual.Clone(),
	}
	o.mu.Unlock()

	snap.Caption = o.revealer.Live()
	snap.Subtitle = o.subtitles.Current()
	snap.Muted = o.audio.Muted()
	snap.AudioPlaying = o.audio.Playing()
	snap.AudioLevel = o.audio.Level()
	return snap
}

// Subscribe streams events until the returned func is called or the
// orchestrator closes.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	return o.events.Subscribe()
}

// Close cancels every timer, the active clip and background work.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.state = StateIdle
	o.mu.Unlock()

	o.bgCancel()
	o.revealer.Cancel()
	o.subtitles.Cancel()
	o.audio.Stop()
	o.events.Close()
}

func (o *Orchestrator) transition(turn uint64, state State) bool {
	o.mu.Lock()
	if o.closed || o.turn != turn {
		o.mu.Unlock()
		return false
	}
	o.state = state
	o.mu.Unlock()
	o.publish(EventState, StateData{State: state})
	return true
}

func (o *Orchestrator) current(turn uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed && o.turn == turn
}

func (o *Orchestrator) updateVisual(fn func(v *onsen.VisualState)) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	fn(&o.visual)
	v := o.visual.Clone()
	o.mu.Unlock()
	o.publish(EventVisual, v)
}

// detach derives a context that survives ctx cancellation but ends when
// the orchestrator closes or after timeout.
func (o *Orchestrator) detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(o.bg, cancel)
	if timeout <= 0 {
		return runCtx, func() {
			stop()
			cancel()
		}
	}
	runCtx, cancelTimeout := context.WithTimeout(runCtx, timeout)
	return runCtx, func() {
		stop()
		cancelTimeout()
		cancel()
	}
}

func (o *Orchestrator) publish(typ EventType, data any) {
	o.events.Publish(Event{
		Type:      typ,
		SessionID: o.sessionID,
		Data:      data,
		Timestamp: o.clock.Now().UTC(),
	})
}
