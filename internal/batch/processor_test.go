package batch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-autolink/internal/commit"
	"solana-autolink/internal/domain"
	"solana-autolink/internal/reconcile"
	"solana-autolink/internal/storage"
	"solana-autolink/internal/storage/memory"
	"solana-autolink/internal/testutil"
)

const (
	hourMs  = int64(3600 * 1000)
	testNow = 1_700_000_000_000
)

type env struct {
	observations *memory.ObservationStore
	settings     *memory.SettingsStore
	history      *memory.WalletHistoryStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	obs := memory.NewObservationStore()
	e := &env{
		observations: obs,
		settings:     memory.NewSettingsStore(),
		history:      memory.NewWalletHistoryStore(obs),
	}
	return e
}

func (e *env) wallet(t *testing.T, walletID string, enabled, autoConfirm bool, addresses ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.settings.Upsert(ctx, &domain.WalletLinkSettings{
		WalletID:            walletID,
		Enabled:             enabled,
		MinConfidenceScore:  0.8,
		TimeWindowHours:     6,
		NotificationEnabled: true,
		AutoConfirmEnabled:  autoConfirm,
	}))
	for _, a := range addresses {
		require.NoError(t, e.history.RegisterAddress(ctx, walletID, a))
	}
}

func (e *env) observe(t *testing.T, n int, walletID, address string, createdAt int64) *domain.TransferObservation {
	t.Helper()
	o := &domain.TransferObservation{
		ID:            testutil.Signature(n)[:24],
		Signature:     testutil.Signature(n),
		WalletID:      walletID,
		WalletAddress: address,
		Amount:        decimal.RequireFromString("1.0"),
		Direction:     domain.DirectionIncoming,
		Status:        domain.StatusPending,
		ObservedAt:    createdAt,
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt + 6*hourMs,
		UpdatedAt:     createdAt,
	}
	require.NoError(t, e.observations.Insert(context.Background(), o))
	return o
}

func (e *env) processor(workers int) *Processor {
	return New(Options{
		Observations: e.observations,
		Settings:     e.settings,
		History:      e.history,
		Workers:      workers,
		Now:          func() int64 { return testNow },
	})
}

func (e *env) get(t *testing.T, id string) *domain.TransferObservation {
	t.Helper()
	o, err := e.observations.GetByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func ids(items []ItemResult) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ObservationID)
	}
	return out
}

func TestProcess_NilSelector(t *testing.T) {
	_, err := newEnv(t).processor(1).Process(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilSelector)
}

func TestProcess_AllPending(t *testing.T) {
	e := newEnv(t)
	owned := testutil.WalletAddress(1)
	e.wallet(t, "w1", true, true, owned)
	e.wallet(t, "w3", false, true, owned)

	linked := e.observe(t, 1, "w1", owned, testNow)                        // 0.90
	escalated := e.observe(t, 2, "w1", testutil.WalletAddress(2), testNow) // 0.50
	unconfigured := e.observe(t, 3, "w2", owned, testNow)
	disabled := e.observe(t, 4, "w3", owned, testNow)

	res, err := e.processor(4).Process(context.Background(), AllPending())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, []string{linked.ID}, ids(res.Linked))
	assert.Equal(t, []string{escalated.ID}, ids(res.Escalated))
	assert.Equal(t, []string{disabled.ID}, ids(res.Unchanged))
	require.Equal(t, []string{unconfigured.ID}, ids(res.Failed))
	assert.Equal(t, "configuration", res.Failed[0].Reason)
	assert.Equal(t, reconcile.ReasonDisabled, res.Unchanged[0].Reason)

	assert.Equal(t, domain.StatusLinked, e.get(t, linked.ID).Status)
	assert.InDelta(t, 0.9, e.get(t, linked.ID).ConfidenceScore, 1e-9)
	assert.Equal(t, domain.StatusManualReview, e.get(t, escalated.ID).Status)
	assert.Equal(t, 0, e.get(t, unconfigured.ID).Attempts, "configuration errors never mutate")
	assert.Equal(t, 0, e.get(t, disabled.ID).Attempts, "disabled wallets are frozen")
}

func TestProcess_Idempotent(t *testing.T) {
	e := newEnv(t)
	owned := testutil.WalletAddress(1)
	e.wallet(t, "w1", true, true, owned)
	for i := 1; i <= 6; i++ {
		addr := owned
		if i%2 == 0 {
			addr = testutil.WalletAddress(2)
		}
		e.observe(t, i, "w1", addr, testNow)
	}
	p := e.processor(3)

	first, err := p.Process(context.Background(), AllPending("w1"))
	require.NoError(t, err)
	assert.Len(t, first.Linked, 3)
	assert.Len(t, first.Escalated, 3)

	second, err := p.Process(context.Background(), AllPending("w1"))
	require.NoError(t, err)
	assert.Empty(t, second.Linked)
	assert.Empty(t, second.Escalated)
	assert.Empty(t, second.Failed)
}

func TestProcess_WalletScope(t *testing.T) {
	e := newEnv(t)
	owned := testutil.WalletAddress(1)
	e.wallet(t, "w1", true, true, owned)
	e.wallet(t, "w2", true, true, owned)
	a := e.observe(t, 1, "w1", owned, testNow)
	b := e.observe(t, 2, "w2", owned, testNow)

	res, err := e.processor(2).Process(context.Background(), AllPending("w2"))
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(res.Linked))
	assert.Equal(t, domain.StatusPending, e.get(t, a.ID).Status)
}

func TestProcess_BySignatureRescoresManualReview(t *testing.T) {
	e := newEnv(t)
	e.wallet(t, "w1", true, true, testutil.WalletAddress(1))
	o := e.observe(t, 1, "w1", testutil.WalletAddress(2), testNow)
	p := e.processor(1)

	res, err := p.Process(context.Background(), AllPending())
	require.NoError(t, err)
	require.Len(t, res.Escalated, 1)

	// Another all-pending pass leaves manual_review alone.
	res, err = p.Process(context.Background(), AllPending())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total())
	assert.Equal(t, 1, e.get(t, o.ID).Attempts)

	// The wallet now claims the address; explicit re-submission links.
	require.NoError(t, e.history.RegisterAddress(context.Background(), "w1", testutil.WalletAddress(2)))
	res, err = p.Process(context.Background(), BySignature(o.Signature))
	require.NoError(t, err)
	require.Equal(t, []string{o.ID}, ids(res.Linked))
	assert.Equal(t, 2, res.Linked[0].Attempts)
}

func TestProcess_BySignatureNotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.processor(1).Process(context.Background(), BySignature(testutil.Signature(99)))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

type failingHistory struct {
	*memory.WalletHistoryStore
	failWallet string
}

func (f failingHistory) GetHistory(ctx context.Context, walletID string) (*domain.WalletHistory, error) {
	if walletID == f.failWallet {
		return nil, errors.New("history backend timeout")
	}
	return f.WalletHistoryStore.GetHistory(ctx, walletID)
}

func TestProcess_HistoryFailureIsolatedAndCounted(t *testing.T) {
	e := newEnv(t)
	owned := testutil.WalletAddress(1)
	e.wallet(t, "w1", true, true, owned)
	e.wallet(t, "w2", true, true, owned)
	broken := e.observe(t, 1, "w1", owned, testNow)
	healthy := e.observe(t, 2, "w2", owned, testNow)

	p := New(Options{
		Observations: e.observations,
		Settings:     e.settings,
		History:      failingHistory{WalletHistoryStore: e.history, failWallet: "w1"},
		Now:          func() int64 { return testNow },
	})

	res, err := p.Process(context.Background(), AllPending())
	require.NoError(t, err)
	require.Equal(t, []string{broken.ID}, ids(res.Failed))
	assert.Equal(t, "repository_unavailable", res.Failed[0].Reason)
	assert.Contains(t, res.Failed[0].Error, "history backend timeout")
	assert.Equal(t, []string{healthy.ID}, ids(res.Linked))

	got := e.get(t, broken.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts, "failed evaluations still count")
}

func TestProcess_ExpiredNeverLinked(t *testing.T) {
	e := newEnv(t)
	owned := testutil.WalletAddress(1)
	e.wallet(t, "w1", true, true, owned)
	stale := e.observe(t, 1, "w1", owned, testNow-7*hourMs)

	res, err := e.processor(1).Process(context.Background(), AllPending())
	require.NoError(t, err)
	assert.Empty(t, res.Linked)
	require.Len(t, res.Unchanged, 1)
	assert.Equal(t, reconcile.ReasonAwaitingSweep, res.Unchanged[0].Reason)
	assert.Equal(t, domain.StatusPending, e.get(t, stale.ID).Status)
}

func TestProcess_DisabledWalletFreeze(t *testing.T) {
	e := newEnv(t)
	e.wallet(t, "w1", true, false, testutil.WalletAddress(1))
	o := e.observe(t, 1, "w1", testutil.WalletAddress(1), testNow)
	p := e.processor(1)
	ctx := context.Background()

	e.wallet(t, "w1", false, false)
	for i := 0; i < 3; i++ {
		_, err := p.Process(ctx, AllPending())
		require.NoError(t, err)
	}
	assert.Equal(t, 0, e.get(t, o.ID).Attempts)

	e.wallet(t, "w1", true, false)
	res, err := p.Process(ctx, AllPending())
	require.NoError(t, err)
	assert.Equal(t, []string{o.ID}, ids(res.Escalated), "auto-confirm off escalates")
	assert.Equal(t, 1, e.get(t, o.ID).Attempts)
}

func TestProcess_OrderIndependent(t *testing.T) {
	build := func() *env {
		e := newEnv(t)
		e.wallet(t, "w1", true, true, testutil.WalletAddress(1))
		e.wallet(t, "w2", true, false, testutil.WalletAddress(1))
		for i := 1; i <= 20; i++ {
			wallet := "w1"
			if i%3 == 0 {
				wallet = "w2"
			}
			addr := testutil.WalletAddress(1 + i%2)
			e.observe(t, i, wallet, addr, testNow-int64(i)*hourMs/2)
		}
		return e
	}

	serial, err := build().processor(1).Process(context.Background(), AllPending())
	require.NoError(t, err)
	parallel, err := build().processor(8).Process(context.Background(), AllPending())
	require.NoError(t, err)

	assert.Equal(t, serial.Linked, parallel.Linked)
	assert.Equal(t, serial.Escalated, parallel.Escalated)
	assert.Equal(t, serial.Unchanged, parallel.Unchanged)
	assert.Equal(t, serial.Failed, parallel.Failed)
}

func TestProcess_ConcurrentRunsEvaluateOnce(t *testing.T) {
	e := newEnv(t)
	owned := testutil.WalletAddress(1)
	e.wallet(t, "w1", true, true, owned)
	var created []*domain.TransferObservation
	for i := 1; i <= 30; i++ {
		created = append(created, e.observe(t, i, "w1", testutil.WalletAddress(1+i%2), testNow))
	}

	committer := commit.New(commit.Options{Observations: e.observations, History: e.history})
	newProc := func() *Processor {
		return New(Options{
			Observations: e.observations,
			Settings:     e.settings,
			History:      e.history,
			Committer:    committer,
			Workers:      4,
			Now:          func() int64 { return testNow },
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := newProc().Process(context.Background(), AllPending())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, o := range created {
		got := e.get(t, o.ID)
		assert.Equal(t, 1, got.Attempts, "observation %s evaluated more than once", o.ID)
		assert.NotEqual(t, domain.StatusPending, got.Status)
	}
}

func TestProcess_Cancelled(t *testing.T) {
	e := newEnv(t)
	e.wallet(t, "w1", true, true, testutil.WalletAddress(1))
	for i := 1; i <= 5; i++ {
		e.observe(t, i, "w1", testutil.WalletAddress(1), testNow)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.processor(2).Process(ctx, AllPending())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Total())

	pending, err := e.observations.ListPending(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, pending, 5, "nothing half-transitioned")
}
