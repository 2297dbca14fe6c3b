package gateway

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Authorization), args.Error(1)
}

func (m *mockGateway) Confirm(ctx context.Context, authority string, amount int64) (Confirmation, error) {
	args := m.Called(ctx, authority, amount)
	return args.Get(0).(Confirmation), args.Error(1)
}

func (m *mockGateway) Inquire(ctx context.Context, authority string) (Inquiry, error) {
	args := m.Called(ctx, authority)
	return args.Get(0).(Inquiry), args.Error(1)
}

func (m *mockGateway) Reverse(ctx context.Context, authority string) error {
	return m.Called(ctx, authority).Error(0)
}

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

func TestResilientRetriesTransientFailures(t *testing.T) {
	m := new(mockGateway)
	transient := unavailable("confirm", errors.New("timeout"))
	m.On("Confirm", mock.Anything, "A1", int64(500)).Return(Confirmation{}, transient).Twice()
	m.On("Confirm", mock.Anything, "A1", int64(500)).Return(Confirmation{RefID: "9"}, nil).Once()

	r := NewResilient(m, 3, time.Millisecond, quietLogger())
	conf, err := r.Confirm(context.Background(), "A1", 500)
	require.NoError(t, err)
	assert.Equal(t, "9", conf.RefID)
	m.AssertNumberOfCalls(t, "Confirm", 3)
}

func TestResilientGivesUpAfterAttempts(t *testing.T) {
	m := new(mockGateway)
	m.On("Inquire", mock.Anything, "A1").Return(Inquiry{}, unavailable("inquire", errors.New("down")))

	r := NewResilient(m, 2, time.Millisecond, quietLogger())
	_, err := r.Inquire(context.Background(), "A1")
	assert.ErrorIs(t, err, ErrUnavailable)
	m.AssertNumberOfCalls(t, "Inquire", 2)
}

func TestResilientDoesNotRetryRejections(t *testing.T) {
	m := new(mockGateway)
	m.On("Authorize", mock.Anything, mock.Anything).Return(Authorization{}, &RejectedError{Code: -9})

	r := NewResilient(m, 5, time.Millisecond, quietLogger())
	_, err := r.Authorize(context.Background(), AuthorizeRequest{Amount: 1})
	assert.True(t, IsRejected(err))
	m.AssertNumberOfCalls(t, "Authorize", 1)
	assert.Equal(t, gobreaker.StateClosed, r.Breaker().State(), "rejections do not trip the breaker")
}

func TestResilientOpensCircuit(t *testing.T) {
	m := new(mockGateway)
	m.On("Reverse", mock.Anything, "A1").Return(unavailable("reverse", errors.New("down")))

	r := NewResilient(m, 1, time.Millisecond, quietLogger())
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, r.Reverse(context.Background(), "A1"), ErrUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, r.Breaker().State())

	err := r.Reverse(context.Background(), "A1")
	assert.ErrorIs(t, err, ErrUnavailable)
	m.AssertNumberOfCalls(t, "Reverse", 3)
}

func TestResilientHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := new(mockGateway)
	m.On("Inquire", mock.Anything, "A1").
		Return(Inquiry{}, unavailable("inquire", errors.New("down"))).
		Run(func(mock.Arguments) { cancel() })

	r := NewResilient(m, 5, time.Hour, quietLogger())
	_, err := r.Inquire(ctx, "A1")
	assert.ErrorIs(t, err, ErrUnavailable)
	m.AssertNumberOfCalls(t, "Inquire", 1)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := gobreaker.NewCircuitBreaker(BreakerSettings("t", 20*time.Millisecond, quietLogger()))

	fail := func() (interface{}, error) { return nil, ErrUnavailable }
	ok := func() (interface{}, error) { return nil, nil }
	for i := 0; i < 3; i++ {
		_, _ = b.Execute(fail)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())
	_, err := b.Execute(ok)
	assert.True(t, IsCircuitBreakerError(err))

	require.Eventually(t, func() bool { return b.State() == gobreaker.StateHalfOpen },
		time.Second, 5*time.Millisecond)
	for i := 0; i < 3; i++ {
		_, err := b.Execute(ok)
		require.NoError(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerIgnoresRejections(t *testing.T) {
	b := gobreaker.NewCircuitBreaker(BreakerSettings("t", time.Minute, quietLogger()))
	for i := 0; i < 5; i++ {
		_, err := b.Execute(func() (interface{}, error) { return nil, &RejectedError{Code: -11} })
		assert.True(t, IsRejected(err))
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestSandboxLifecycle(t *testing.T) {
	s := NewSandbox(false, "https://sandbox/")
	ctx := context.Background()

	auth, err := s.Authorize(ctx, AuthorizeRequest{Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox/"+auth.Authority, auth.RedirectURL)

	_, err = s.Confirm(ctx, auth.Authority, 1000)
	assert.True(t, IsRejected(err), "not captured yet")

	s.Capture(auth.Authority)
	_, err = s.Confirm(ctx, auth.Authority, 999)
	assert.True(t, IsRejected(err), "amount must match")

	conf, err := s.Confirm(ctx, auth.Authority, 1000)
	require.NoError(t, err)
	again, err := s.Confirm(ctx, auth.Authority, 1000)
	require.NoError(t, err)
	assert.True(t, again.AlreadyVerified)
	assert.Equal(t, conf.RefID, again.RefID)

	require.NoError(t, s.Reverse(ctx, auth.Authority))
	inq, err := s.Inquire(ctx, auth.Authority)
	require.NoError(t, err)
	assert.Equal(t, StatusReversed, inq.Status)
}
