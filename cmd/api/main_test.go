package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepLog struct{ steps []string }

func (l *stepLog) add(s string) { l.steps = append(l.steps, s) }

type fakeSink struct {
	log       *stepLog
	closed    bool
	delivered []string
}

func (f *fakeSink) Publish(v string) {
	if f.closed {
		return
	}
	f.delivered = append(f.delivered, v)
}

func (f *fakeSink) Close()      { f.closed = true; f.log.add("close") }
func (f *fakeSink) WaitClosed() { f.log.add("wait") }

// inflightServer publishes from a handler that finishes during Shutdown.
type inflightServer struct {
	log  *stepLog
	sink *fakeSink
}

func (s *inflightServer) Shutdown(context.Context) error {
	s.sink.Publish("BookingConfirmed")
	s.log.add("shutdown")
	return nil
}

func TestDrainKeepsEventsOfInflightRequests(t *testing.T) {
	log := &stepLog{}
	sink := &fakeSink{log: log}
	srv := &inflightServer{log: log, sink: sink}
	flush := func(ctx context.Context) error {
		require.NoError(t, ctx.Err())
		log.add("flush")
		return nil
	}

	err := drain(srv, []eventSink{sink}, flush, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.Equal(t, []string{"BookingConfirmed"}, sink.delivered)
	assert.Equal(t, []string{"shutdown", "close", "wait", "flush"}, log.steps)
}

func TestDrainReportsShutdownError(t *testing.T) {
	log := &stepLog{}
	sink := &fakeSink{log: log}
	failing := serverFunc(func(context.Context) error { return errors.New("deadline exceeded") })

	err := drain(failing, []eventSink{sink}, func(context.Context) error { return errors.New("store down") },
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.EqualError(t, err, "deadline exceeded")
	assert.True(t, sink.closed)
}

type serverFunc func(context.Context) error

func (f serverFunc) Shutdown(ctx context.Context) error { return f(ctx) }
