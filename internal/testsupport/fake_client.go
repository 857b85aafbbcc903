// Package testsupport provides in-memory fakes for engine tests.
package testsupport

import (
	"context"
	"fmt"
	"os"
	"sync"

	apperrors "github.com/channel-mirror/internal/errors"
	"github.com/channel-mirror/internal/models"
	"github.com/channel-mirror/internal/transport"
	"github.com/channel-mirror/internal/types"
)

// FakeClient is a scripted transport.Client. Errors queued with the Queue*
// methods are returned once each, in order, before normal behavior resumes;
// that is how tests inject rate-limit conditions and transient failures.
type FakeClient struct {
	mu sync.Mutex

	entities map[string]*transport.Entity
	messages map[types.ChannelID]map[types.MessageID]*transport.Message
	latest   map[types.ChannelID]types.MessageID

	fetchErrs    []error
	latestErrs   []error
	downloadErrs []error
	sendErrs     []error

	SentInputs  []transport.SendInput
	SentTargets []string
	Downloaded  []types.MessageID
}

// NewFakeClient creates an empty fake.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		entities: make(map[string]*transport.Entity),
		messages: make(map[types.ChannelID]map[types.MessageID]*transport.Message),
		latest:   make(map[types.ChannelID]types.MessageID),
	}
}

// AddEntity scripts a resolvable channel reference.
func (f *FakeClient) AddEntity(ref string, entity *transport.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[ref] = entity
}

// AddMessage scripts one message and advances the channel's latest pointer.
func (f *FakeClient) AddMessage(msg *transport.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messages[msg.ChannelID] == nil {
		f.messages[msg.ChannelID] = make(map[types.MessageID]*transport.Message)
	}
	f.messages[msg.ChannelID][msg.ID] = msg
	if msg.ID > f.latest[msg.ChannelID] {
		f.latest[msg.ChannelID] = msg.ID
	}
}

// QueueFetchErr makes the next GetMessage call fail.
func (f *FakeClient) QueueFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErrs = append(f.fetchErrs, err)
}

// QueueLatestErr makes the next GetLatestMessage call fail.
func (f *FakeClient) QueueLatestErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestErrs = append(f.latestErrs, err)
}

// QueueDownloadErr makes the next DownloadMedia call fail.
func (f *FakeClient) QueueDownloadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadErrs = append(f.downloadErrs, err)
}

// QueueSendErr makes the next SendFile call fail.
func (f *FakeClient) QueueSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErrs = append(f.sendErrs, err)
}

// SendCount returns the number of successful SendFile calls.
func (f *FakeClient) SendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.SentInputs)
}

func popErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

// GetEntity implements transport.Client
func (f *FakeClient) GetEntity(_ context.Context, ref string) (*transport.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entity, ok := f.entities[ref]; ok {
		return entity, nil
	}
	return nil, apperrors.NewEntityResolutionError(ref, fmt.Errorf("not scripted"))
}

// GetMessage implements transport.Client
func (f *FakeClient) GetMessage(_ context.Context, channel types.ChannelID, id types.MessageID) (*transport.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.fetchErrs); err != nil {
		return nil, err
	}
	return f.messages[channel][id], nil
}

// GetLatestMessage implements transport.Client
func (f *FakeClient) GetLatestMessage(_ context.Context, channel types.ChannelID) (*transport.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.latestErrs); err != nil {
		return nil, err
	}
	latestID, ok := f.latest[channel]
	if !ok {
		return nil, nil
	}
	if msg := f.messages[channel][latestID]; msg != nil {
		return msg, nil
	}
	return &transport.Message{ID: latestID, ChannelID: channel}, nil
}

// DownloadMedia implements transport.Client; it writes placeholder bytes so
// the fresh-reupload path has something to read back.
func (f *FakeClient) DownloadMedia(_ context.Context, msg *transport.Message, path string) error {
	f.mu.Lock()
	if err := popErr(&f.downloadErrs); err != nil {
		f.mu.Unlock()
		return err
	}
	f.Downloaded = append(f.Downloaded, msg.ID)
	f.mu.Unlock()
	return os.WriteFile(path, []byte(fmt.Sprintf("payload-%d", msg.ID)), 0o600)
}

// SendFile implements transport.Client
func (f *FakeClient) SendFile(_ context.Context, target string, input transport.SendInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.sendErrs); err != nil {
		return err
	}
	f.SentTargets = append(f.SentTargets, target)
	f.SentInputs = append(f.SentInputs, input)
	return nil
}

// RecordingTransferLog captures audit events for assertions.
type RecordingTransferLog struct {
	mu     sync.Mutex
	Events []*models.TransferEvent
}

// Record implements the audit interface
func (l *RecordingTransferLog) Record(_ context.Context, event *models.TransferEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Events = append(l.Events, event)
}

// ByOutcome returns recorded events with the given outcome.
func (l *RecordingTransferLog) ByOutcome(outcome types.ItemOutcome) []*models.TransferEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.TransferEvent
	for _, e := range l.Events {
		if e.Outcome == outcome {
			out = append(out, e)
		}
	}
	return out
}
