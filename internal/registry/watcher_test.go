package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/emperorhan/bridgescope-indexer/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu    sync.Mutex
	dapps []model.Dapp
	err   error
	calls int
}

func (f *fakeSource) List(context.Context) ([]model.Dapp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]model.Dapp(nil), f.dapps...), f.err
}

func (f *fakeSource) set(dapps []model.Dapp, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dapps, f.err = dapps, err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sqlContract = "0x3333333333333333333333333333333333333333"

func TestWatcher_PollMergesNewBindings(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	src := &fakeSource{}
	w := NewWatcher(r, src, time.Minute, quietLogger())

	_, ok := r.DappByContract(sqlContract)
	require.False(t, ok)

	src.set([]model.Dapp{{ID: "sqlonly", Name: "SQL", Contracts: []model.DappContract{
		{Chain: model.ChainBase, Address: sqlContract},
	}}}, nil)
	w.Poll(context.Background())

	id, ok := r.DappByContract(sqlContract)
	require.True(t, ok)
	assert.Equal(t, "sqlonly", id)
	assert.Equal(t, r.bindingCount(), w.lastBindings)
}

func TestWatcher_SourceErrorKeepsRegistry(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	before := len(r.Dapps())
	src := &fakeSource{err: errors.New("db down")}

	NewWatcher(r, src, time.Minute, quietLogger()).Poll(context.Background())
	assert.Len(t, r.Dapps(), before)
}

func TestWatcher_ConflictMergesNothing(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	before := len(r.Dapps())

	src := &fakeSource{dapps: []model.Dapp{
		{ID: "fresh", Contracts: []model.DappContract{{Chain: model.ChainBase, Address: sqlContract}}},
		{ID: "thief", Contracts: []model.DappContract{
			{Chain: model.ChainBase, Address: "0x420DD381b31aEf6683db6B902084cB0FFECe40Da"},
		}},
	}}
	NewWatcher(r, src, time.Minute, quietLogger()).Poll(context.Background())

	assert.Len(t, r.Dapps(), before)
	_, ok := r.DappByContract(sqlContract)
	assert.False(t, ok, "a rejected snapshot is not partially applied")
	id, ok := r.DappByContract("0x420dd381b31aef6683db6b902084cb0ffece40da")
	require.True(t, ok)
	assert.Equal(t, "aerodrome", id)
}

func TestWatcher_RunPollsUntilCancelled(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	src := &fakeSource{}
	w := NewWatcher(r, src, 5*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return src.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
