package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/jmehdipour/repo-digest/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *memWriter) Close() error { return nil }

func TestPublishRoundTrip(t *testing.T) {
	w := &memWriter{}
	p := &Producer{w: w}
	env := model.Envelope{
		ID:         "01J0000000000000000000000",
		Source:     model.SourceGitLab,
		Repository: "group/project",
		Headers:    map[string]string{"X-Gitlab-Event": "Note Hook"},
		Payload:    []byte(`{"object_kind":"note"}`),
	}

	require.NoError(t, p.Publish(context.Background(), env))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "gitlab:group/project", string(w.msgs[0].Key))

	got, err := DecodeEnvelope(w.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, env, got)
}

func TestPublishKeysByRepository(t *testing.T) {
	w := &memWriter{}
	p := &Producer{w: w}
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, model.Envelope{ID: "d1", Source: model.SourceGitHub, Repository: "octo/repo"}))
	require.NoError(t, p.Publish(ctx, model.Envelope{ID: "d2", Source: model.SourceGitHub, Repository: "octo/repo"}))
	require.NoError(t, p.Publish(ctx, model.Envelope{ID: "d3", Source: model.SourceGitHub}))
	require.Len(t, w.msgs, 3)

	assert.Equal(t, w.msgs[0].Key, w.msgs[1].Key)
	assert.Equal(t, "d3", string(w.msgs[2].Key))

	partitions := []int{0, 1, 2, 3, 4, 5, 6, 7}
	h := &kafka.Hash{}
	assert.Equal(t, h.Balance(w.msgs[0], partitions...), h.Balance(w.msgs[1], partitions...))
}

func TestPublishError(t *testing.T) {
	p := &Producer{w: &memWriter{err: errors.New("leader not available")}}
	err := p.Publish(context.Background(), model.Envelope{ID: "x", Source: model.SourceGitHub})
	assert.EqualError(t, err, "leader not available")
}

func TestDecodeEnvelopePoison(t *testing.T) {
	_, err := DecodeEnvelope(Message{Value: []byte("not json")})
	assert.ErrorContains(t, err, "bad envelope json")

	_, err = DecodeEnvelope(Message{Value: []byte(`{"source":"github"}`)})
	assert.EqualError(t, err, "envelope missing id or source")

	_, err = DecodeEnvelope(Message{Value: []byte(`{"id":"d1","source":"bitbucket"}`)})
	assert.EqualError(t, err, `envelope d1: unknown source "bitbucket"`)
}
