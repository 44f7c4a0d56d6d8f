package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callwatch/internal/detector"
	"callwatch/internal/llm"
	"callwatch/internal/relay"
	"callwatch/internal/storage"
	"callwatch/internal/token"
)

const daiAddress = "0x6b175474e89094c44da98b954eedeac495271d0f"

type fakeResolver struct {
	rec      *token.Record
	err      error
	detected []*detector.Address
}

func (f *fakeResolver) Resolve(_ context.Context, detected *detector.Address, _ string) (*token.Record, error) {
	f.detected = append(f.detected, detected)
	return f.rec, f.err
}

type fakeCompleter struct {
	reply  string
	err    error
	block  bool
	prompt []llm.Message
	calls  int
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	f.calls++
	f.prompt = messages
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

type fakeRelay struct {
	forwardErr error
	sendErr    error
	calls      []string
}

func (f *fakeRelay) Forward(_ context.Context, msg relay.Message) error {
	f.calls = append(f.calls, fmt.Sprintf("forward:%d", msg.ID))
	return f.forwardErr
}

func (f *fakeRelay) Send(_ context.Context, text string) error {
	f.calls = append(f.calls, "send:"+text)
	return f.sendErr
}

type fakeHistory struct {
	mu      sync.Mutex
	records []storage.AnalysisRecord
}

func (f *fakeHistory) InsertAnalysis(_ context.Context, rec storage.AnalysisRecord) (storage.AnalysisRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.ID = int64(len(f.records) + 1)
	f.records = append(f.records, rec)
	return rec, nil
}

func daiRecord() *token.Record {
	return &token.Record{Name: "Dai", CoinID: "dai", PlatformID: "ethereum"}
}

func unresolved() error {
	return fmt.Errorf("%w: contract lookup: not found", token.ErrUnresolved)
}

func TestHandleMessageRelaysInOrder(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "token_info.json")
	resolver := &fakeResolver{rec: daiRecord()}
	completer := &fakeCompleter{reply: "solid stablecoin"}
	rel := &fakeRelay{}
	history := &fakeHistory{}
	svc := New(Options{MessageDeadline: time.Second, DebugDumpPath: dump}, resolver, completer, rel, history, zerolog.Nop())

	msg := relay.Message{ID: 11, ChatID: -100, Text: "new call " + daiAddress}
	require.NoError(t, svc.HandleMessage(context.Background(), msg))

	assert.Equal(t, []string{"forward:11", "send:solid stablecoin"}, rel.calls)

	require.Len(t, resolver.detected, 1)
	require.NotNil(t, resolver.detected[0])
	assert.Equal(t, detector.Ethereum, resolver.detected[0].Platform)

	require.Len(t, completer.prompt, 2)
	assert.Equal(t, llm.RoleSystem, completer.prompt[0].Role)
	assert.Contains(t, completer.prompt[1].Content, "Token Name : Dai")

	require.Len(t, history.records, 1)
	rec := history.records[0]
	assert.Equal(t, storage.StatusRelayed, rec.Status)
	assert.True(t, rec.Resolved)
	assert.Equal(t, daiAddress, *rec.Address)
	assert.Equal(t, "dai", *rec.CoinID)
	assert.Equal(t, "solid stablecoin", *rec.Reply)
	assert.Nil(t, rec.Error)

	raw, err := os.ReadFile(dump)
	require.NoError(t, err)
	var dumped map[string]any
	require.NoError(t, json.Unmarshal(raw, &dumped))
	assert.Equal(t, "Dai", dumped["name"])
}

func TestHandleMessageUnresolvedUsesTextTemplate(t *testing.T) {
	resolver := &fakeResolver{err: unresolved()}
	completer := &fakeCompleter{reply: "no data, but here is my take"}
	rel := &fakeRelay{}
	dump := filepath.Join(t.TempDir(), "token_info.json")
	svc := New(Options{MessageDeadline: time.Second, DebugDumpPath: dump}, resolver, completer, rel, nil, zerolog.Nop())

	require.NoError(t, svc.HandleMessage(context.Background(), relay.Message{ID: 3, ChatID: -100, Text: "hello"}))

	require.Len(t, resolver.detected, 1)
	assert.Nil(t, resolver.detected[0])
	require.Len(t, completer.prompt, 1)
	assert.Equal(t, llm.RoleUser, completer.prompt[0].Role)
	assert.Contains(t, completer.prompt[0].Content, "hello")
	assert.Len(t, rel.calls, 2)

	_, err := os.Stat(dump)
	assert.True(t, os.IsNotExist(err), "no dump without data")
}

func TestHandleMessageFailureStages(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		completer *fakeCompleter
		relay     *fakeRelay
		stage     Stage
		calls     []string
	}{
		{"complete", &fakeCompleter{err: boom}, &fakeRelay{}, StageComplete, nil},
		{"forward", &fakeCompleter{reply: "r"}, &fakeRelay{forwardErr: boom}, StageForward, []string{"forward:5"}},
		{"send", &fakeCompleter{reply: "r"}, &fakeRelay{sendErr: boom}, StageSend, []string{"forward:5", "send:r"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := &fakeHistory{}
			svc := New(Options{MessageDeadline: time.Second}, &fakeResolver{err: unresolved()}, tt.completer, tt.relay, history, zerolog.Nop())

			err := svc.HandleMessage(context.Background(), relay.Message{ID: 5, ChatID: 1, Text: "x"})
			var herr *HandlerError
			require.ErrorAs(t, err, &herr)
			assert.Equal(t, tt.stage, herr.Stage)
			assert.Equal(t, 5, herr.MessageID)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.calls, tt.relay.calls)

			require.Len(t, history.records, 1)
			assert.Equal(t, storage.StatusFailed, history.records[0].Status)
			require.NotNil(t, history.records[0].Error)
			assert.Contains(t, *history.records[0].Error, string(tt.stage))
		})
	}
}

func TestHandleMessageDeadline(t *testing.T) {
	completer := &fakeCompleter{block: true}
	rel := &fakeRelay{}
	history := &fakeHistory{}
	svc := New(Options{MessageDeadline: 20 * time.Millisecond}, &fakeResolver{err: unresolved()}, completer, rel, history, zerolog.Nop())

	err := svc.HandleMessage(context.Background(), relay.Message{ID: 9, ChatID: 1, Text: "slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, rel.calls)
	require.Len(t, history.records, 1, "timed out messages are still recorded")
}

func TestAnalyzeDryRunSkipsCompletion(t *testing.T) {
	completer := &fakeCompleter{reply: "unused"}
	svc := New(Options{}, &fakeResolver{rec: daiRecord()}, completer, nil, nil, zerolog.Nop())

	analysis, err := svc.Analyze(context.Background(), "dai "+daiAddress, true)
	require.NoError(t, err)
	assert.Zero(t, completer.calls)
	assert.True(t, analysis.Resolved())
	require.NotNil(t, analysis.Address)
	assert.Len(t, analysis.Prompt, 2)
	assert.Empty(t, analysis.Reply)
}

func TestAnalyzeCompletes(t *testing.T) {
	completer := &fakeCompleter{reply: "analysis"}
	svc := New(Options{}, &fakeResolver{err: unresolved()}, completer, nil, nil, zerolog.Nop())

	analysis, err := svc.Analyze(context.Background(), "hello", false)
	require.NoError(t, err)
	assert.Equal(t, "analysis", analysis.Reply)
	assert.ErrorIs(t, analysis.ResolveErr, token.ErrUnresolved)
}

type panicRelay struct{}

func (panicRelay) Forward(context.Context, relay.Message) error { panic("transport exploded") }
func (panicRelay) Send(context.Context, string) error           { return nil }

func TestDispatchSwallowsFailures(t *testing.T) {
	svc := New(Options{MessageDeadline: time.Second}, &fakeResolver{err: unresolved()}, &fakeCompleter{reply: "r"}, panicRelay{}, nil, zerolog.Nop())
	assert.NotPanics(t, func() {
		svc.Dispatch(context.Background(), relay.Message{ID: 1, ChatID: 1, Text: "x"})
	})

	svc = New(Options{MessageDeadline: time.Second}, &fakeResolver{err: unresolved()}, &fakeCompleter{err: errors.New("down")}, &fakeRelay{}, nil, zerolog.Nop())
	assert.NotPanics(t, func() {
		svc.Dispatch(context.Background(), relay.Message{ID: 2, ChatID: 1, Text: "x"})
	})
}

func TestWriteDumpDisabled(t *testing.T) {
	assert.NoError(t, writeDump("", daiRecord()))
}
