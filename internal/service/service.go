package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"callwatch/internal/detector"
	"callwatch/internal/llm"
	"callwatch/internal/prompt"
	"callwatch/internal/relay"
	"callwatch/internal/storage"
	"callwatch/internal/token"
)

// Resolver finds market data for a message.
type Resolver interface {
	Resolve(ctx context.Context, detected *detector.Address, text string) (*token.Record, error)
}

// Relay delivers the original message and the reply to the destination chat.
type Relay interface {
	Forward(ctx context.Context, msg relay.Message) error
	Send(ctx context.Context, text string) error
}

// HistoryWriter persists pipeline outcomes.
type HistoryWriter interface {
	InsertAnalysis(ctx context.Context, rec storage.AnalysisRecord) (storage.AnalysisRecord, error)
}

var (
	_ Resolver      = (*token.Resolver)(nil)
	_ Relay         = (*relay.Telegram)(nil)
	_ HistoryWriter = (*storage.Store)(nil)
)

// Options tune per-message handling.
type Options struct {
	MessageDeadline time.Duration
	DebugDumpPath   string
}

// Service runs the detect, resolve, assemble, complete and relay pipeline.
type Service struct {
	resolver  Resolver
	completer llm.Completer
	relay     Relay
	history   HistoryWriter
	opts      Options
	logger    zerolog.Logger
}

// New constructs the pipeline service. relay and history may be nil when
// the service is only used for Analyze.
func New(opts Options, resolver Resolver, completer llm.Completer, rel Relay, history HistoryWriter, logger zerolog.Logger) *Service {
	if opts.MessageDeadline <= 0 {
		opts.MessageDeadline = 2 * time.Minute
	}
	return &Service{
		resolver:  resolver,
		completer: completer,
		relay:     rel,
		history:   history,
		opts:      opts,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Analysis is the outcome of running the pipeline over one text.
type Analysis struct {
	Text       string
	Address    *detector.Address
	Record     *token.Record
	ResolveErr error
	Prompt     []llm.Message
	Reply      string
}

// Resolved reports whether market data was found.
func (a Analysis) Resolved() bool { return a.Record != nil }

// Dispatch handles one message and logs any failure. The message is dropped
// on failure; nothing is retried.
func (s *Service) Dispatch(ctx context.Context, msg relay.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Int("message_id", msg.ID).
				Int64("chat_id", msg.ChatID).
				Str("stage", string(StagePanic)).
				Interface("panic", r).
				Msg("message dropped")
		}
	}()

	if err := s.HandleMessage(ctx, msg); err != nil {
		event := s.logger.Error().Err(err).Int("message_id", msg.ID).Int64("chat_id", msg.ChatID)
		var herr *HandlerError
		if errors.As(err, &herr) {
			event = event.Str("stage", string(herr.Stage))
		}
		event.Msg("message dropped")
	}
}

// HandleMessage runs the full pipeline for one message within the message
// deadline. The forward is only attempted once a reply exists, and the reply
// is only sent once the forward went through.
func (s *Service) HandleMessage(ctx context.Context, msg relay.Message) error {
	if s.relay == nil {
		return errors.New("service has no relay configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.MessageDeadline)
	defer cancel()

	log := s.logger.With().Int("message_id", msg.ID).Int64("chat_id", msg.ChatID).Logger()
	started := time.Now()

	analysis := s.prepare(ctx, log, msg.Text)

	reply, err := s.completer.Complete(ctx, analysis.Prompt)
	if err != nil {
		return s.fail(ctx, msg, analysis, StageComplete, err)
	}
	analysis.Reply = reply

	if err := s.relay.Forward(ctx, msg); err != nil {
		return s.fail(ctx, msg, analysis, StageForward, err)
	}
	if err := s.relay.Send(ctx, reply); err != nil {
		return s.fail(ctx, msg, analysis, StageSend, err)
	}

	s.record(ctx, log, msg, analysis, storage.StatusRelayed, nil)
	log.Info().
		Bool("resolved", analysis.Resolved()).
		Int("reply_len", len(reply)).
		Dur("elapsed", time.Since(started)).
		Msg("message relayed")
	return nil
}

// Analyze runs detection, resolution and prompt assembly for text and, unless
// dryRun is set, the completion call. Nothing is relayed.
func (s *Service) Analyze(ctx context.Context, text string, dryRun bool) (Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.MessageDeadline)
	defer cancel()

	analysis := s.prepare(ctx, s.logger, text)
	if dryRun {
		return analysis, nil
	}

	reply, err := s.completer.Complete(ctx, analysis.Prompt)
	if err != nil {
		return analysis, &HandlerError{Stage: StageComplete, Err: err}
	}
	analysis.Reply = reply
	return analysis, nil
}

func (s *Service) prepare(ctx context.Context, log zerolog.Logger, text string) Analysis {
	analysis := Analysis{Text: text}

	if addr, ok := detector.Detect(text); ok {
		analysis.Address = &addr
		log.Info().Str("platform", string(addr.Platform)).Str("address", addr.Display()).Msg("contract address detected")
	} else {
		log.Debug().Msg("no contract address; falling back to name extraction")
	}

	rec, err := s.resolver.Resolve(ctx, analysis.Address, text)
	if err != nil {
		analysis.ResolveErr = err
		log.Warn().Err(err).Msg("token unresolved; using text only prompt")
	} else {
		analysis.Record = rec
		log.Info().Str("coin_id", rec.CoinID).Str("token", rec.Name).Msg("token resolved")
		if err := writeDump(s.opts.DebugDumpPath, rec); err != nil {
			log.Warn().Err(err).Str("path", s.opts.DebugDumpPath).Msg("debug dump failed")
		}
	}

	analysis.Prompt = prompt.Assemble(analysis.Record, text)
	return analysis
}

func (s *Service) fail(ctx context.Context, msg relay.Message, analysis Analysis, stage Stage, err error) error {
	herr := &HandlerError{Stage: stage, MessageID: msg.ID, Err: err}
	log := s.logger.With().Int("message_id", msg.ID).Int64("chat_id", msg.ChatID).Logger()
	s.record(ctx, log, msg, analysis, storage.StatusFailed, herr)
	return herr
}

// record writes the outcome to history. It runs detached from the message
// deadline so that a timed out message is still recorded.
func (s *Service) record(ctx context.Context, log zerolog.Logger, msg relay.Message, analysis Analysis, status string, failure error) {
	if s.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	rec := storage.AnalysisRecord{
		MessageID:   int64(msg.ID),
		ChatID:      msg.ChatID,
		MessageText: msg.Text,
		Resolved:    analysis.Resolved(),
		Status:      status,
	}
	if analysis.Address != nil {
		rec.Address = strPtr(analysis.Address.Raw)
		rec.Platform = strPtr(string(analysis.Address.Platform))
	}
	if analysis.Record != nil {
		rec.CoinID = strPtr(analysis.Record.CoinID)
		rec.TokenName = strPtr(analysis.Record.Name)
	}
	if analysis.Reply != "" {
		rec.Reply = strPtr(analysis.Reply)
	}
	if failure != nil {
		rec.Error = strPtr(failure.Error())
	}

	if _, err := s.history.InsertAnalysis(ctx, rec); err != nil {
		log.Error().Err(err).Msg("failed to persist analysis")
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Stage names the pipeline step a HandlerError came from.
type Stage string

const (
	StageComplete Stage = "complete"
	StageForward  Stage = "forward"
	StageSend     Stage = "send"
	StagePanic    Stage = "panic"
)

// HandlerError is a failure outside resolution that drops the message.
type HandlerError struct {
	Stage     Stage
	MessageID int
	Err       error
}

func (e *HandlerError) Error() string {
	if e.MessageID == 0 {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("message %d: %s: %v", e.MessageID, e.Stage, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
