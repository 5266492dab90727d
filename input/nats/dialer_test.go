package nats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telemetrystream/errors"
	"github.com/c360/telemetrystream/testutil"
)

func TestDialer_RequiresURLAndSubject(t *testing.T) {
	_, err := (&Dialer{Subject: "telemetry"}).Dial(context.Background())
	assert.True(t, errors.IsInvalid(err))

	_, err = (&Dialer{URL: "nats://127.0.0.1:4222"}).Dial(context.Background())
	assert.True(t, errors.IsInvalid(err))
}

func TestDialer_UnreachableServerIsTransient(t *testing.T) {
	d := &Dialer{URL: "nats://127.0.0.1:1", Subject: "telemetry"}
	_, err := d.Dial(context.Background())
	assert.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestDialer_SilentServerTimesOut(t *testing.T) {
	addr := testutil.SilentListener(t)

	d := &Dialer{URL: "nats://" + addr, Subject: "telemetry", Timeout: 100 * time.Millisecond}
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConnectionTimeout), "got %v", err)
	assert.True(t, errors.IsTransient(err))
}

func TestDialer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Dialer{URL: "nats://127.0.0.1:4222", Subject: "telemetry"}
	_, err := d.Dial(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
