package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/duosecurity/duo_api_golang/authapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDuo scripts Duo API responses from canned JSON payloads.
type fakeDuo struct {
	preauthJSON string
	authJSON    string
	statusJSON  []string
	statusIdx   int

	preauthErr error
	authErr    error

	lastFactor  string
	lastAuthVal url.Values
	lastTxid    string
}

func (f *fakeDuo) Preauth(options ...func(*url.Values)) (*authapi.PreauthResult, error) {
	if f.preauthErr != nil {
		return nil, f.preauthErr
	}
	res := &authapi.PreauthResult{}
	if err := json.Unmarshal([]byte(f.preauthJSON), res); err != nil {
		return nil, err
	}
	return res, nil
}

func (f *fakeDuo) Auth(factor string, options ...func(*url.Values)) (*authapi.AuthResult, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	f.lastFactor = factor
	f.lastAuthVal = url.Values{}
	for _, opt := range options {
		opt(&f.lastAuthVal)
	}
	res := &authapi.AuthResult{}
	if err := json.Unmarshal([]byte(f.authJSON), res); err != nil {
		return nil, err
	}
	return res, nil
}

func (f *fakeDuo) AuthStatus(txid string) (*authapi.AuthStatusResult, error) {
	f.lastTxid = txid
	payload := f.statusJSON[f.statusIdx]
	if f.statusIdx < len(f.statusJSON)-1 {
		f.statusIdx++
	}
	res := &authapi.AuthStatusResult{}
	if err := json.Unmarshal([]byte(payload), res); err != nil {
		return nil, err
	}
	return res, nil
}

const (
	pushCapableJSON = `{"stat":"OK","response":{"result":"auth","devices":[{"device":"DP1","capabilities":["push","sms"]}]}}`
	smsOnlyJSON     = `{"stat":"OK","response":{"result":"auth","devices":[{"device":"DP1","capabilities":["sms"]}]}}`
	allowedJSON     = `{"stat":"OK","response":{"result":"allow","status":"allow"}}`
	pushSentJSON    = `{"stat":"OK","response":{"txid":"tx-123"}}`
	waitingJSON     = `{"stat":"OK","response":{"result":"waiting","status":"pushed"}}`
	approvedJSON    = `{"stat":"OK","response":{"result":"allow","status":"allow"}}`
	deniedJSON      = `{"stat":"OK","response":{"result":"deny","status":"deny"}}`
)

func TestDuoCanAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("push capable device", func(t *testing.T) {
		d := newDuo(&fakeDuo{preauthJSON: pushCapableJSON}, "amendoza", "triagebot")
		ok, err := d.CanAuth(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("no push capability", func(t *testing.T) {
		d := newDuo(&fakeDuo{preauthJSON: smsOnlyJSON}, "amendoza", "triagebot")
		ok, err := d.CanAuth(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("auto allow user cannot push", func(t *testing.T) {
		d := newDuo(&fakeDuo{preauthJSON: allowedJSON}, "amendoza", "triagebot")
		ok, err := d.CanAuth(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("api error", func(t *testing.T) {
		d := newDuo(&fakeDuo{preauthErr: errors.New("boom")}, "amendoza", "triagebot")
		_, err := d.CanAuth(ctx)
		assert.Error(t, err)
	})
}

func TestDuoPushFlow(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDuo{
		authJSON:   pushSentJSON,
		statusJSON: []string{waitingJSON, approvedJSON},
	}
	d := newDuo(fake, "amendoza", "triagebot")

	require.NoError(t, d.Begin(ctx, "did you log in from Iceland?"))
	assert.Equal(t, "push", fake.lastFactor)
	assert.Equal(t, "amendoza", fake.lastAuthVal.Get("username"))
	assert.Equal(t, "auto", fake.lastAuthVal.Get("device"))
	assert.Contains(t, fake.lastAuthVal.Get("pushinfo"), "from=triagebot")
	assert.Contains(t, fake.lastAuthVal.Get("pushinfo"), "reason=")

	state, err := d.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatePending, state)
	assert.Equal(t, "tx-123", fake.lastTxid)

	state, err = d.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAuthorized, state)
}

func TestDuoPushDenied(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDuo{authJSON: pushSentJSON, statusJSON: []string{deniedJSON}}
	d := newDuo(fake, "amendoza", "triagebot")

	require.NoError(t, d.Begin(ctx, ""))
	state, err := d.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateDenied, state)
}

func TestDuoAuthorizationDecays(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDuo{authJSON: pushSentJSON, statusJSON: []string{approvedJSON}}
	d := newDuo(fake, "amendoza", "triagebot")

	current := time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }

	require.NoError(t, d.Begin(ctx, ""))
	state, err := d.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, StateAuthorized, state)

	// Still authorized just inside the grace period
	current = current.Add(GracePeriod - time.Minute)
	state, err = d.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAuthorized, state)

	// Decays once the period lapses
	current = current.Add(2 * time.Minute)
	state, err = d.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateNone, state)
}

func TestDuoReset(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDuo{authJSON: pushSentJSON, statusJSON: []string{waitingJSON}}
	d := newDuo(fake, "amendoza", "triagebot")

	require.NoError(t, d.Begin(ctx, ""))
	d.Reset()

	state, err := d.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateNone, state)
}
