package subscription

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"streamsub/internal/queue"
)

// Infinite is the sentinel TimeTillOrphaned returns for a subscription that
// cannot currently be orphaned (no connection, no inactivity timeout yet
// known, or mid-flight towards/away from Subscribed).
const Infinite = time.Duration(math.MaxInt64)

// ErrPatchDeltaRequired is returned by OnModify when IsPatch is set but no
// delta is supplied.
var ErrPatchDeltaRequired = errors.New("subscription: patch delta required")

// ModifyOptions controls OnModify's behavior.
type ModifyOptions struct {
	// IsPatch requests a PATCH against the existing subscription instead of
	// an unsubscribe/resubscribe cycle. PatchArgsDelta must then be set.
	IsPatch        bool
	PatchArgsDelta map[string]any
}

// Config is the wiring a Subscription needs at construction. Transport,
// ParserFacade and Host are required; everything else is optional.
type Config struct {
	ServicePath string
	URL         string
	Args        Args
	Headers     map[string]string

	Transport    Transport
	ParserFacade ParserFacade
	Host         StreamingHost
	Logger       zerolog.Logger

	OnUpdate              func(data any, updateType UpdateType)
	OnError               func(resp *ErrorResponse)
	OnQueueEmpty          func()
	OnSubscriptionCreated func()
	OnNetworkError        func()

	// Now and ScheduleAfter are test seams; production callers leave them
	// nil and get time.Now / time.AfterFunc.
	Now           func() time.Time
	ScheduleAfter func(d time.Duration, f func()) (cancel func())
}

// Subscription is the per-subscription lifecycle engine: it mediates
// between caller intent and an uncooperative asynchronous transport,
// serializing everything through a single current State plus an ActionQueue
// for actions that arrive while a request is already in flight.
//
// A Subscription is not safe for concurrent use. Callers (in this module,
// Host) are expected to serialize calls into it, the same way the teacher's
// websocket.Connection assumes a single reader/writer discipline per
// connection.
type Subscription struct {
	servicePath string
	url         string
	headers     map[string]string

	transport    Transport
	parserFacade ParserFacade
	parser       Parser
	host         StreamingHost
	logger       zerolog.Logger

	now           func() time.Time
	scheduleAfter func(d time.Duration, f func()) func()

	args   Args
	format string

	currentState            State
	queueQ                  *queue.Queue
	referenceID              string
	currentStreamingContextID string
	connectionAvailable      bool
	isDisposed               bool
	createdFired             bool

	schemaName          string
	inactivityTimeout   int
	latestActivity      time.Time
	updatesBeforeSubscribed []StreamingMessage

	networkErrorCancel func()

	onUpdate              func(data any, updateType UpdateType)
	onError               func(resp *ErrorResponse)
	onQueueEmpty          func()
	onSubscriptionCreated func()
	onNetworkError        func()

	stateObservers []StateChangedFunc
}

// New builds a Subscription in the Unsubscribed state. It does not issue any
// requests; call OnSubscribe to start the lifecycle.
func New(cfg Config) (*Subscription, error) {
	if cfg.Transport == nil || cfg.ParserFacade == nil || cfg.Host == nil {
		return nil, errors.New("subscription: Transport, ParserFacade and Host are required")
	}

	format := cfg.Args.Format
	if format == "" {
		format = cfg.ParserFacade.DefaultFormat()
	}
	parser, err := cfg.ParserFacade.ParserFor(format)
	if err != nil {
		cfg.Logger.Warn().Err(err).Str("format", format).Msg("unknown format, falling back to the default format")
		format = cfg.ParserFacade.DefaultFormat()
		parser, err = cfg.ParserFacade.ParserFor(format)
		if err != nil {
			return nil, fmt.Errorf("subscription: resolve parser for %q: %w", format, err)
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	scheduleAfter := cfg.ScheduleAfter
	if scheduleAfter == nil {
		scheduleAfter = defaultScheduleAfter
	}

	args := cfg.Args
	args.RefreshRate = normalizeRefreshRate(args.RefreshRate)

	return &Subscription{
		servicePath:   cfg.ServicePath,
		url:           cfg.URL,
		headers:       cfg.Headers,
		transport:     cfg.Transport,
		parserFacade:  cfg.ParserFacade,
		parser:        parser,
		host:          cfg.Host,
		logger:        cfg.Logger,
		now:           now,
		scheduleAfter: scheduleAfter,
		args:          args,
		format:        format,

		currentState:        Unsubscribed,
		queueQ:               queue.New(),
		connectionAvailable:  cfg.Host.ConnectionAvailable(),

		onUpdate:              cfg.OnUpdate,
		onError:               cfg.OnError,
		onQueueEmpty:          cfg.OnQueueEmpty,
		onSubscriptionCreated: cfg.OnSubscriptionCreated,
		onNetworkError:        cfg.OnNetworkError,
	}, nil
}

func defaultScheduleAfter(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// State returns the subscription's current lifecycle state.
func (s *Subscription) State() State { return s.currentState }

// ReferenceID returns the reference id of the in-flight or most recent
// subscribe attempt. It is empty until the first OnSubscribe.
func (s *Subscription) ReferenceID() string { return s.referenceID }

// Tag returns the subscription's grouping tag, if any.
func (s *Subscription) Tag() string { return s.args.Tag }

// IsReadyForUnsubscribeByTag reports whether the subscription has parked
// itself pending a tag-unsubscribe completion.
func (s *Subscription) IsReadyForUnsubscribeByTag() bool {
	return s.currentState == ReadyForUnsubscribeByTag
}

// TimeTillOrphaned reports how long until an OrphanFinder should treat this
// subscription as abandoned, given now. It returns Infinite when the
// subscription cannot be orphaned right now: no connection, no inactivity
// timeout learned yet, or mid-flight towards/away from Subscribed.
func (s *Subscription) TimeTillOrphaned(now time.Time) time.Duration {
	if !s.connectionAvailable || s.inactivityTimeout == 0 {
		return Infinite
	}
	switch s.currentState {
	case Unsubscribed, UnsubscribeRequested, SubscribeRequested:
		return Infinite
	}
	elapsed := now.Sub(s.latestActivity)
	return time.Duration(s.inactivityTimeout)*time.Second - elapsed
}

// AddStateChangedCallback registers fn to be invoked, synchronously and in
// registration order, on every state transition. Adding the same function
// value twice is a no-op.
func (s *Subscription) AddStateChangedCallback(fn StateChangedFunc) {
	p := reflect.ValueOf(fn).Pointer()
	for _, existing := range s.stateObservers {
		if reflect.ValueOf(existing).Pointer() == p {
			return
		}
	}
	s.stateObservers = append(s.stateObservers, fn)
}

// RemoveStateChangedCallback undoes a prior AddStateChangedCallback.
func (s *Subscription) RemoveStateChangedCallback(fn StateChangedFunc) {
	p := reflect.ValueOf(fn).Pointer()
	for i, existing := range s.stateObservers {
		if reflect.ValueOf(existing).Pointer() == p {
			s.stateObservers = append(s.stateObservers[:i], s.stateObservers[i+1:]...)
			return
		}
	}
}

func (s *Subscription) setState(newState State) {
	old := s.currentState
	s.currentState = newState
	for _, obs := range s.stateObservers {
		obs(old, newState)
	}
}

// OnSubscribe requests the subscription move towards Subscribed. It is a
// no-op if already Subscribed, and an error once the subscription has been
// disposed.
func (s *Subscription) OnSubscribe() error {
	if s.isDisposed {
		return ErrDisposed
	}
	s.tryPerform(queue.ActionSubscribe, queue.Args{})
	return nil
}

// OnUnsubscribe requests the subscription move towards Unsubscribed. A
// forced unsubscribe is not cancelled by a subscribe queued after it, and
// it displaces a queued patch; see the ActionQueue coalescing rules.
func (s *Subscription) OnUnsubscribe(force bool) {
	if s.isDisposed {
		s.logger.Warn().Msg("unsubscribe requested on a disposed subscription")
	}
	s.tryPerform(queue.ActionUnsubscribe, queue.Args{Force: force})
}

// OnModify changes the subscription's arguments. With opts.IsPatch unset,
// this is an unsubscribe(force=true) immediately followed by a fresh
// subscribe carrying the new arguments. With opts.IsPatch set, it issues a
// PATCH carrying opts.PatchArgsDelta against the live subscription instead.
func (s *Subscription) OnModify(newArgs map[string]any, opts ModifyOptions) error {
	s.args.Arguments = newArgs

	if opts.IsPatch {
		if opts.PatchArgsDelta == nil {
			return ErrPatchDeltaRequired
		}
		s.tryPerform(queue.ActionModifyPatch, queue.Args{PatchDelta: opts.PatchArgsDelta})
		return nil
	}

	s.tryPerform(queue.ActionUnsubscribe, queue.Args{Force: true})
	s.tryPerform(queue.ActionSubscribe, queue.Args{})
	return nil
}

// Reset abandons any in-flight request and re-subscribes, unless an
// unsubscribe is already the intended outcome.
func (s *Subscription) Reset() {
	switch s.currentState {
	case Unsubscribed, UnsubscribeRequested:
		return
	case SubscribeRequested, Subscribed:
		if head, ok := s.queueQ.PeekAction(); ok && head == queue.ActionUnsubscribe {
			return
		}
		s.OnUnsubscribe(true)
		_ = s.OnSubscribe()
	case PatchRequested:
		s.setState(Subscribed)
		s.OnUnsubscribe(true)
		_ = s.OnSubscribe()
	case ReadyForUnsubscribeByTag:
		return
	}
}

// Dispose marks the subscription as permanently done: no further HTTP
// requests will be issued on its behalf. It does not itself unsubscribe;
// callers that need a clean server-side teardown should OnUnsubscribe first.
func (s *Subscription) Dispose() {
	s.isDisposed = true
	s.cancelNetworkErrorTimer()
}

// OnConnectionAvailable notifies the subscription that its host's
// connection has (re)opened. If the subscription was not already waiting on
// a response, any queued action is drained immediately.
func (s *Subscription) OnConnectionAvailable() {
	wasAvailable := s.connectionAvailable
	s.connectionAvailable = true
	if !wasAvailable && !IsTransitioning(s.currentState) {
		s.drainQueue()
	}
}

// OnConnectionUnavailable notifies the subscription that its host's
// connection has dropped. Any pending network-error retry timer is
// cancelled; it would only re-attempt a subscribe that cannot succeed.
func (s *Subscription) OnConnectionUnavailable() {
	s.connectionAvailable = false
	s.cancelNetworkErrorTimer()
}

// OnUnsubscribeByTagPending asks the subscription to park itself ready for
// a bulk tag-unsubscribe, once it reaches a stable state.
func (s *Subscription) OnUnsubscribeByTagPending() {
	s.tryPerform(queue.ActionUnsubscribeByTagPending, queue.Args{})
}

// OnUnsubscribeByTagComplete finishes a tag-unsubscribe parked by
// OnUnsubscribeByTagPending.
func (s *Subscription) OnUnsubscribeByTagComplete() {
	if s.currentState != ReadyForUnsubscribeByTag {
		s.logger.Error().Str("state", s.currentState.String()).Msg("unsubscribe-by-tag complete in unexpected state")
		return
	}
	s.setState(Unsubscribed)
	s.drainQueue()
}

// OnHeartbeat records streaming activity without attempting to parse a
// payload.
func (s *Subscription) OnHeartbeat() {
	s.latestActivity = s.now()
}

// OnStreamingData routes one delta/snapshot frame according to the
// subscription's current state. It returns false when the frame arrived for
// a subscription that has already moved past caring about it (Unsubscribed);
// callers may use that to detect routing mistakes upstream.
func (s *Subscription) OnStreamingData(msg StreamingMessage) bool {
	s.latestActivity = s.now()

	switch s.currentState {
	case UnsubscribeRequested:
		return true
	case Unsubscribed:
		return false
	case SubscribeRequested:
		s.updatesBeforeSubscribed = append(s.updatesBeforeSubscribed, msg)
		return true
	case Subscribed, PatchRequested:
		s.parseAndDeliverDelta(msg)
		return true
	default:
		s.logger.Error().Str("state", s.currentState.String()).Msg("streaming data received in unexpected state")
		return true
	}
}

func (s *Subscription) parseAndDeliverDelta(msg StreamingMessage) {
	parsed, err := s.parser.Parse(msg.Data, s.schemaName)
	if err != nil {
		s.logger.Error().Err(err).Str("reference_id", s.referenceID).Msg("delta parse failed, resetting to resynchronize")
		s.Reset()
		return
	}
	s.deliverUpdate(parsed, UpdateDelta)
}

func (s *Subscription) deliverUpdate(data any, updateType UpdateType) {
	if s.onUpdate == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("onUpdate callback panicked")
		}
	}()
	s.onUpdate(data, updateType)
}

// tryPerform is the single entry point for caller-initiated actions: cancel
// any pending network-error retry, then either execute immediately (no
// request in flight and a connection to send it on) or enqueue.
func (s *Subscription) tryPerform(action queue.Action, args queue.Args) {
	s.cancelNetworkErrorTimer()

	if !s.connectionAvailable || IsTransitioning(s.currentState) {
		if err := s.queueQ.Enqueue(queue.Item{Action: action, Args: args}); err != nil {
			s.logger.Error().Err(err).Msg("enqueue rejected")
		}
		return
	}

	s.execute(action, args)
	s.drainQueue()
}

// drainQueue executes queued actions for as long as the current state lets
// it (not transitioning) and the queue is not empty, then fires
// onQueueEmpty if the queue ended up empty.
func (s *Subscription) drainQueue() {
	for !IsTransitioning(s.currentState) {
		item, ok := s.queueQ.Dequeue()
		if !ok {
			break
		}
		s.execute(item.Action, item.Args)
	}
	if s.queueQ.Len() == 0 && s.onQueueEmpty != nil {
		s.onQueueEmpty()
	}
}

// execute dispatches one (action, currentState) pair. It is only ever
// called while currentState is not transitioning.
func (s *Subscription) execute(action queue.Action, args queue.Args) {
	switch {
	case action == queue.ActionSubscribe && s.currentState == Subscribed:
		// Already subscribed: nothing to do.

	case action == queue.ActionSubscribe && s.currentState == Unsubscribed:
		s.queueQ.ClearPatches()
		s.issueSubscribe()

	case action == queue.ActionModifyPatch && s.currentState == Subscribed:
		s.issuePatch(args.PatchDelta)

	case action == queue.ActionUnsubscribe && s.currentState == Subscribed:
		s.issueUnsubscribe()

	case action == queue.ActionUnsubscribe && s.currentState == Unsubscribed:
		// Already unsubscribed: nothing to do.

	case action == queue.ActionUnsubscribeByTagPending &&
		(s.currentState == Subscribed || s.currentState == Unsubscribed):
		s.setState(ReadyForUnsubscribeByTag)

	default:
		s.logger.Error().
			Str("action", action.String()).
			Str("state", s.currentState.String()).
			Msg("action not valid in current state")
	}
}

func (s *Subscription) issueSubscribe() {
	if s.isDisposed {
		return
	}
	s.referenceID = nextReferenceID()
	s.updatesBeforeSubscribed = nil
	s.currentStreamingContextID = s.host.StreamingContextID()

	body, url := s.buildSubscribeBody()
	capturedRefID := s.referenceID
	capturedContextID := s.currentStreamingContextID

	s.setState(SubscribeRequested)

	s.transport.Post(context.Background(), url, body, s.headers, func(resp *SubscribeResponse, errResp *ErrorResponse) {
		if capturedRefID != s.referenceID {
			if errResp != nil && errResp.Message == duplicateKeyMessage {
				s.issueCleanupDelete(capturedContextID, capturedRefID)
			}
			s.logger.Debug().Str("reference_id", capturedRefID).Msg("stale subscribe response ignored")
			return
		}
		if errResp != nil {
			s.onSubscribeError(errResp, capturedRefID, capturedContextID)
			return
		}
		s.onSubscribeSuccess(resp)
	})
}

func (s *Subscription) buildSubscribeBody() (map[string]any, string) {
	body := map[string]any{
		"Format":       s.format,
		"RefreshRate":  s.args.RefreshRate,
		"Arguments":    s.args.Arguments,
		"ContextId":    s.currentStreamingContextID,
		"ReferenceId":  s.referenceID,
		"KnownSchemas": s.parser.GetSchemaNames(),
	}
	if s.args.Tag != "" {
		body["Tag"] = s.args.Tag
	}

	url := s.servicePath + s.url
	if s.args.Top != nil {
		url = fmt.Sprintf("%s?$top=%d", url, *s.args.Top)
	}
	return body, url
}

func (s *Subscription) onSubscribeSuccess(resp *SubscribeResponse) {
	s.setState(Subscribed)
	s.inactivityTimeout = resp.InactivityTimeout
	if resp.InactivityTimeout == 0 {
		s.logger.Warn().Str("reference_id", s.referenceID).Msg("server returned a zero inactivity timeout; this subscription will never be treated as orphaned")
	}
	s.latestActivity = s.now()

	if !s.createdFired {
		s.createdFired = true
		if s.onSubscriptionCreated != nil {
			s.onSubscriptionCreated()
		}
	}

	if head, ok := s.queueQ.PeekAction(); !(ok && head == queue.ActionUnsubscribe) {
		s.processSnapshot(resp)

		buffered := s.updatesBeforeSubscribed
		s.updatesBeforeSubscribed = nil
		for _, msg := range buffered {
			s.OnStreamingData(msg)
		}
	}
	s.updatesBeforeSubscribed = nil

	s.drainQueue()
}

func (s *Subscription) processSnapshot(resp *SubscribeResponse) {
	switch {
	case resp.SchemaName != "":
		s.schemaName = resp.SchemaName
		if resp.Schema != "" {
			if err := s.parser.AddSchema(resp.Schema, resp.SchemaName); err != nil {
				s.logger.Error().Err(err).Str("schema_name", resp.SchemaName).Msg("register schema failed")
			}
		}
	case s.format == mimeProtobuf && s.schemaName == "":
		s.format = s.parserFacade.DefaultFormat()
		if p, err := s.parserFacade.ParserFor(s.format); err == nil {
			s.parser = p
		}
	}
	s.deliverUpdate(resp.Snapshot, UpdateSnapshot)
}

func (s *Subscription) onSubscribeError(errResp *ErrorResponse, capturedRefID, capturedContextID string) {
	willUnsubscribe := false
	if head, ok := s.queueQ.PeekAction(); ok && head == queue.ActionUnsubscribe {
		willUnsubscribe = true
	}

	s.setState(Unsubscribed)

	switch {
	case errResp.Message == duplicateKeyMessage:
		s.issueCleanupDelete(capturedContextID, capturedRefID)
		if !willUnsubscribe {
			s.reEnqueueSubscribe()
			return
		}

	case errResp.ErrorCode == unsupportedFormatCode && s.format == mimeProtobuf:
		s.format = mimeJSON
		if p, err := s.parserFacade.ParserFor(mimeJSON); err == nil {
			s.parser = p
		}
		if !willUnsubscribe {
			s.reEnqueueSubscribe()
			return
		}

	case errResp.IsNetworkError:
		if !willUnsubscribe {
			s.armNetworkErrorTimer()
			if s.onNetworkError != nil {
				s.onNetworkError()
			}
			return
		}

	default:
		s.logger.Error().Str("error_code", errResp.ErrorCode).Str("message", errResp.Message).Msg("subscribe failed")
		if !willUnsubscribe && s.onError != nil {
			s.onError(errResp)
		}
	}

	s.drainQueue()
}

func (s *Subscription) reEnqueueSubscribe() {
	if err := s.queueQ.Enqueue(queue.Item{Action: queue.ActionSubscribe}); err != nil {
		s.logger.Error().Err(err).Msg("re-enqueue subscribe rejected")
		return
	}
	s.drainQueue()
}

func (s *Subscription) issueCleanupDelete(contextID, referenceID string) {
	if s.isDisposed {
		return
	}
	url := fmt.Sprintf("%s%s/%s/%s", s.servicePath, s.url, contextID, referenceID)
	s.transport.Delete(context.Background(), url, func(errResp *ErrorResponse) {
		if errResp != nil {
			s.logger.Debug().Str("reference_id", referenceID).Str("message", errResp.Message).Msg("cleanup delete for duplicate key failed, ignoring")
		}
	})
}

func (s *Subscription) issueUnsubscribe() {
	if s.isDisposed {
		return
	}
	capturedRefID := s.referenceID
	url := s.buildContextURL()
	s.setState(UnsubscribeRequested)

	s.transport.Delete(context.Background(), url, func(errResp *ErrorResponse) {
		if capturedRefID != s.referenceID {
			s.logger.Debug().Str("reference_id", capturedRefID).Msg("stale unsubscribe response ignored")
			return
		}
		if errResp != nil {
			s.logger.Info().Str("message", errResp.Message).Str("reference_id", capturedRefID).Msg("unsubscribe response was an error, treating subscription as unsubscribed anyway")
		}
		s.setState(Unsubscribed)
		s.drainQueue()
	})
}

func (s *Subscription) issuePatch(delta map[string]any) {
	if s.isDisposed {
		return
	}
	capturedRefID := s.referenceID
	url := s.buildContextURL()
	s.setState(PatchRequested)

	s.transport.Patch(context.Background(), url, delta, func(errResp *ErrorResponse) {
		if capturedRefID != s.referenceID {
			s.logger.Debug().Str("reference_id", capturedRefID).Msg("stale patch response ignored")
			return
		}
		if errResp != nil {
			s.logger.Error().Str("message", errResp.Message).Str("reference_id", capturedRefID).Msg("patch failed, subscription remains subscribed at its prior arguments")
		}
		s.setState(Subscribed)
		s.drainQueue()
	})
}

func (s *Subscription) buildContextURL() string {
	return fmt.Sprintf("%s%s/%s/%s", s.servicePath, s.url, s.currentStreamingContextID, s.referenceID)
}

func (s *Subscription) armNetworkErrorTimer() {
	s.cancelNetworkErrorTimer()
	s.networkErrorCancel = s.scheduleAfter(networkErrorRetryDelayMs*time.Millisecond, func() {
		s.networkErrorCancel = nil
		s.reEnqueueSubscribe()
	})
}

func (s *Subscription) cancelNetworkErrorTimer() {
	if s.networkErrorCancel != nil {
		s.networkErrorCancel()
		s.networkErrorCancel = nil
	}
}
