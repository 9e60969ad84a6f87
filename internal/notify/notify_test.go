package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/jobsearch/internal/model"
	"jobmate/jobsearch/internal/notify"
	"jobmate/jobsearch/internal/store"
)

type sentMail struct {
	from string
	to   []string
	msg  string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, from string, to []string, msg []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{from: from, to: to, msg: string(msg)})
	return nil
}

func usersWith(u ...model.User) store.UserRepository {
	st := store.NewMemory()
	for _, user := range u {
		store.AddUser(st, user)
	}
	return st.Users
}

var jane = model.User{ID: "u-1", Username: "jane", Email: "jane@example.test", FirstName: "Jane", LastName: "Doe"}

func notification(n int) notify.Notification {
	return notify.Notification{
		UserID: "u-1", QueryID: 7, Query: "nurse", Location: "Austin", NewJobs: n,
		RanAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "1 New Job Found: nurse", notify.Subject(1, "nurse"))
	assert.Equal(t, "12 New Jobs Found: data engineer", notify.Subject(12, "data engineer"))
}

func TestEmail_SendsToOwner(t *testing.T) {
	sender := &fakeSender{}
	e := notify.NewEmail(notify.EmailConfig{Enabled: true, From: "jobs@example.test"}, usersWith(jane), sender, nil)

	require.NoError(t, e.Notify(context.Background(), notification(3)))
	require.Len(t, sender.sent, 1)

	m := sender.sent[0]
	assert.Equal(t, "jobs@example.test", m.from)
	assert.Equal(t, []string{"jane@example.test"}, m.to)
	assert.Contains(t, m.msg, "Subject: 3 New Jobs Found: nurse")
	assert.Contains(t, m.msg, "text/html")
	assert.Contains(t, m.msg, "Hi Jane Doe")
	assert.Contains(t, m.msg, "Austin")
}

func TestEmail_DisabledSkipsSending(t *testing.T) {
	sender := &fakeSender{}
	e := notify.NewEmail(notify.EmailConfig{Enabled: false}, usersWith(jane), sender, nil)

	require.NoError(t, e.Notify(context.Background(), notification(3)))
	assert.Empty(t, sender.sent)
}

func TestEmail_MissingUser(t *testing.T) {
	e := notify.NewEmail(notify.EmailConfig{Enabled: true, From: "jobs@example.test"}, usersWith(), &fakeSender{}, nil)

	err := e.Notify(context.Background(), notification(1))
	assert.ErrorIs(t, err, notify.ErrUserNotFound)
}

func TestEmail_SendFailureIsReturned(t *testing.T) {
	sender := &fakeSender{err: errors.New("535 auth failed")}
	e := notify.NewEmail(notify.EmailConfig{Enabled: true, From: "jobs@example.test"}, usersWith(jane), sender, nil)

	err := e.Notify(context.Background(), notification(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535")
}

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedis_PublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	r := notify.NewRedis(pub, "")

	require.NoError(t, r.Notify(context.Background(), notification(4)))
	assert.Equal(t, notify.DefaultChannel, pub.channel)

	var event map[string]any
	require.NoError(t, json.Unmarshal(pub.payload, &event))
	assert.Equal(t, "EVENT_NEW_JOBS", event["type"])
	assert.Equal(t, "u-1", event["userId"])
	assert.Equal(t, float64(7), event["savedQueryId"])
	assert.Equal(t, float64(4), event["newJobs"])
}

func TestRedis_PublishError(t *testing.T) {
	r := notify.NewRedis(&fakePublisher{err: errors.New("connection refused")}, "jobs")
	assert.Error(t, r.Notify(context.Background(), notification(1)))
}

func TestMulti_JoinsErrors(t *testing.T) {
	failing := notify.NewRedis(&fakePublisher{err: errors.New("down")}, "")
	ok := &fakePublisher{}
	m := notify.Multi{failing, notify.NewRedis(ok, "x"), notify.Log{}}

	err := m.Notify(context.Background(), notification(1))
	require.Error(t, err)
	assert.Equal(t, "x", ok.channel, "later notifiers still run")
}
