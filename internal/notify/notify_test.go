package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jobhub/internal/errors"
	"jobhub/internal/storage"
	jobhubtest "jobhub/internal/testing"
)

type recordingPublisher struct {
	mu   sync.Mutex
	sent map[string][][]byte
	err  error
	pan  bool
}

func (p *recordingPublisher) Publish(ctx context.Context, userID string, payload []byte) error {
	if p.pan {
		panic("socket exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = make(map[string][][]byte)
	}
	p.sent[userID] = append(p.sent[userID], payload)
	return p.err
}

func (p *recordingPublisher) count(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent[userID])
}

func statusEvent() Event {
	return Event{
		Kind: KindStatusChanged, RecipientUserID: "cand-1", ApplicationID: 9, JobID: 3,
		JobGUID: "g-3", JobTitle: "Go dev", CompanyName: "Acme",
		OldStatus: storage.StatusReviewed, NewStatus: storage.StatusInterviewing,
		OccurredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRenderStatusChangeUsesLabel(t *testing.T) {
	title, body := Render(statusEvent())
	assert.Equal(t, "Hồ sơ của bạn: Mời phỏng vấn", title)
	assert.Contains(t, body, "Mời phỏng vấn")
	assert.Contains(t, body, "Acme")
}

func TestRenderNewApplication(t *testing.T) {
	title, body := Render(Event{Kind: KindNewApplication, CandidateName: "Lan", JobTitle: "QA"})
	assert.Equal(t, "Có ứng viên mới ứng tuyển", title)
	assert.Equal(t, "Lan vừa ứng tuyển vào vị trí \"QA\".", body)
}

func TestNotificationRecord(t *testing.T) {
	n := statusEvent().Notification()
	assert.Equal(t, "cand-1", n.UserID)
	assert.Equal(t, storage.CategoryStatusChange, n.Category)
	require.NotNil(t, n.ApplicationID)
	assert.Equal(t, int64(9), *n.ApplicationID)
	require.NotNil(t, n.JobID)
	assert.Equal(t, int64(3), *n.JobID)
}

func TestPayloadIsFlat(t *testing.T) {
	raw, err := Payload(statusEvent())
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "status_changed", m["type"])
	assert.Equal(t, "REVIEWED", m["old_status"])
	assert.Equal(t, "INTERVIEWING", m["new_status"])
	assert.Equal(t, "Mời phỏng vấn", m["status_label"])
	assert.EqualValues(t, 9, m["application_id"])
	assert.NotContains(t, m, "candidate_name")
	for _, v := range m {
		_, nested := v.(map[string]interface{})
		assert.False(t, nested)
	}
}

func TestDispatcherDeliversToBothSinks(t *testing.T) {
	store := jobhubtest.NewMemStore()
	pub := &recordingPublisher{}
	d := NewDispatcher(store, pub, Options{QueueSize: 8, Workers: 2, Timeout: time.Second}, zaptest.NewLogger(t).Sugar())

	require.True(t, d.Notify(statusEvent()))
	d.Close()

	assert.Len(t, store.Notifications("cand-1"), 1)
	assert.Equal(t, 1, pub.count("cand-1"))
	assert.Equal(t, int64(1), d.Stats().Delivered)
}

func TestDispatcherSinksAreIndependent(t *testing.T) {
	store := jobhubtest.NewMemStore()
	store.NotificationErr = errors.New("db down")
	pub := &recordingPublisher{}
	d := NewDispatcher(store, pub, Options{Workers: 1}, zaptest.NewLogger(t).Sugar())

	d.Notify(statusEvent())
	d.Close()

	assert.Equal(t, 1, pub.count("cand-1"), "publish must run even when the ledger fails")
	assert.Equal(t, int64(1), d.Stats().LedgerFailures)
}

func TestDispatcherRecoversPublisherPanic(t *testing.T) {
	store := jobhubtest.NewMemStore()
	d := NewDispatcher(store, &recordingPublisher{pan: true}, Options{Workers: 1}, zaptest.NewLogger(t).Sugar())

	d.Notify(statusEvent())
	d.Notify(statusEvent())
	d.Close()

	assert.Len(t, store.Notifications("cand-1"), 2)
	assert.Equal(t, int64(2), d.Stats().PublishFailures)
}

type gateLedger struct {
	started chan struct{}
	release chan struct{}
}

func (g *gateLedger) CreateNotification(ctx context.Context, n *storage.Notification) error {
	g.started <- struct{}{}
	<-g.release
	return nil
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	gate := &gateLedger{started: make(chan struct{}, 4), release: make(chan struct{})}
	d := NewDispatcher(gate, nil, Options{QueueSize: 1, Workers: 1, Timeout: time.Second}, zaptest.NewLogger(t).Sugar())

	require.True(t, d.Notify(statusEvent()))
	<-gate.started // worker is busy with the first event

	assert.True(t, d.Notify(statusEvent()))
	assert.False(t, d.Notify(statusEvent()))

	close(gate.release)
	d.Close()

	s := d.Stats()
	assert.Equal(t, int64(2), s.Delivered)
	assert.Equal(t, int64(1), s.Dropped)
}

func TestNotifyAfterCloseIsDropped(t *testing.T) {
	d := NewDispatcher(jobhubtest.NewMemStore(), nil, Options{}, zaptest.NewLogger(t).Sugar())
	d.Close()
	d.Close()
	assert.False(t, d.Notify(statusEvent()))
}
