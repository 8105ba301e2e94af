package upload

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/finbot/internal/api"
	"github.com/xaenox/finbot/internal/models"
	"github.com/xaenox/finbot/internal/session"
	"github.com/xaenox/finbot/internal/testutil"
)

func newMachine(t *testing.T, backend *testutil.Backend, timeouts api.Timeouts) *Machine {
	t.Helper()
	client := api.New(backend.URL(), session.Fixed("7", "sess-1"), nil, timeouts, zap.NewNop())
	return NewMachine(client, zap.NewNop())
}

func TestSubmitEmptyIsLocalValidationError(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	m := newMachine(t, backend, api.Timeouts{})

	_, err := m.Submit(context.Background(), "t1", nil)
	assert.ErrorIs(t, err, ErrNoFiles)

	state := m.Snapshot("t1")
	assert.Equal(t, StatusError, state.Status)
	assert.NotEmpty(t, state.Error)
	assert.Empty(t, backend.Requests())
}

func TestSubmitUpsertsByDocumentID(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	backend.AddThread("t1", "Q1")

	batches := [][]models.AnalysisResult{
		{{DocumentID: "d1", Filename: "a.pdf", RiskScore: 2}},
		{{DocumentID: "d1", Filename: "a.pdf", RiskScore: 9}, {DocumentID: "d2", Filename: "b.pdf"}},
	}
	call := 0
	backend.UploadResults = func(threadID string, filenames []string) []models.AnalysisResult {
		out := batches[call]
		call++
		return out
	}

	m := newMachine(t, backend, api.Timeouts{})
	ctx := context.Background()
	file := testutil.WriteFile(t, "a.pdf", "x")

	_, err := m.Submit(ctx, "t1", []models.FileRef{file})
	require.NoError(t, err)
	_, err = m.Submit(ctx, "t1", []models.FileRef{file})
	require.NoError(t, err)

	state := m.Snapshot("t1")
	require.Len(t, state.Results, 2)
	assert.Equal(t, []string{"d1", "d2"}, state.DocumentIDs())
	assert.Equal(t, 9.0, state.Results[0].RiskScore)
	require.NotNil(t, state.Primary)
	assert.Equal(t, "d1", state.Primary.DocumentID)
	assert.Equal(t, 9.0, state.Primary.RiskScore)
	assert.Equal(t, StatusSuccess, state.Status)
	assert.False(t, state.Loading())
}

func TestPrimaryIsFirstOfCurrentBatch(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	m := newMachine(t, backend, api.Timeouts{})
	ctx := context.Background()

	_, err := m.Submit(ctx, "t1", []models.FileRef{testutil.WriteFile(t, "a.pdf", "a")})
	require.NoError(t, err)
	_, err = m.Submit(ctx, "t1", []models.FileRef{testutil.WriteFile(t, "b.pdf", "b")})
	require.NoError(t, err)

	state := m.Snapshot("t1")
	require.NotNil(t, state.Primary)
	assert.Equal(t, "b.pdf", state.Primary.Filename)
	assert.Len(t, state.Results, 2)
}

func TestSubmitFailureKeepsResults(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	m := newMachine(t, backend, api.Timeouts{})
	ctx := context.Background()
	file := testutil.WriteFile(t, "a.pdf", "a")

	_, err := m.Submit(ctx, "t1", []models.FileRef{file})
	require.NoError(t, err)

	backend.FailNext("/upload-multiple", http.StatusBadRequest, "Only PDF and image files are supported")
	_, err = m.Submit(ctx, "t1", []models.FileRef{file})
	require.Error(t, err)

	state := m.Snapshot("t1")
	assert.Equal(t, StatusError, state.Status)
	assert.Equal(t, "Only PDF and image files are supported", state.Error)
	assert.Len(t, state.Results, 1)

	// a new submit from the error state clears the error
	_, err = m.Submit(ctx, "t1", []models.FileRef{file})
	require.NoError(t, err)
	assert.Empty(t, m.Snapshot("t1").Error)
}

func TestSubmitGenericFallbackMessage(t *testing.T) {
	m := NewMachine(api.New("http://127.0.0.1:1", session.Fixed("7", "s"), nil, api.Timeouts{}, zap.NewNop()), zap.NewNop())

	_, err := m.Submit(context.Background(), "t1", []models.FileRef{testutil.WriteFile(t, "a.pdf", "a")})
	require.Error(t, err)
	assert.Equal(t, genericUploadError, m.Snapshot("t1").Error)
}

func TestSubmitTimeoutTransitionsToError(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	backend.UploadGate = make(chan struct{})
	defer close(backend.UploadGate)

	m := newMachine(t, backend, api.Timeouts{Upload: 30 * time.Millisecond})
	_, err := m.Submit(context.Background(), "t1", []models.FileRef{testutil.WriteFile(t, "a.pdf", "a")})
	require.Error(t, err)

	state := m.Snapshot("t1")
	assert.Equal(t, StatusError, state.Status)
	assert.Equal(t, timeoutUploadError, state.Error)
}

func TestUploadOnOtherThreadLeavesBucketUntouched(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	backend.UploadGate = make(chan struct{})

	m := newMachine(t, backend, api.Timeouts{})
	ctx := context.Background()
	m.Select("B", []models.FileRef{testutil.WriteFile(t, "b.pdf", "b")})
	before := m.Snapshot("B")

	fileA := testutil.WriteFile(t, "a.pdf", "a")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.Submit(ctx, "A", []models.FileRef{fileA})
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool { return m.Snapshot("A").Loading() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, before, m.Snapshot("B"))

	close(backend.UploadGate)
	wg.Wait()

	assert.Equal(t, before, m.Snapshot("B"))
	a := m.Snapshot("A")
	require.Len(t, a.Results, 1)
	assert.Equal(t, "a.pdf", a.Results[0].Filename)
}

func TestDropDuringUploadDiscardsResult(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	backend.UploadGate = make(chan struct{})

	m := newMachine(t, backend, api.Timeouts{})
	fileA := testutil.WriteFile(t, "a.pdf", "a")
	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background(), "A", []models.FileRef{fileA})
		done <- err
	}()

	require.Eventually(t, func() bool { return m.Snapshot("A").Loading() }, time.Second, 5*time.Millisecond)
	m.Drop("A")
	m.Select("A", nil) // a fresh bucket under the same id
	close(backend.UploadGate)

	assert.ErrorIs(t, <-done, ErrThreadDropped)
	assert.Empty(t, m.Snapshot("A").Results)
	assert.Equal(t, StatusIdle, m.Snapshot("A").Status)
}

func TestLoadExistingReplacesWholesale(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	backend.AddThread("t1", "Q1")
	ctx := context.Background()

	m := newMachine(t, backend, api.Timeouts{})
	_, err := m.Submit(ctx, "t1", []models.FileRef{testutil.WriteFile(t, "a.pdf", "a")})
	require.NoError(t, err)

	// another client session adds a document to the same thread
	other := newMachine(t, backend, api.Timeouts{})
	_, err = other.Submit(ctx, "t1", []models.FileRef{testutil.WriteFile(t, "b.pdf", "b")})
	require.NoError(t, err)

	fresh := newMachine(t, backend, api.Timeouts{})
	state, err := fresh.LoadExisting(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, state.DocumentIDs())
	require.NotNil(t, state.Primary)
	assert.Equal(t, "doc-1", state.Primary.DocumentID)
}

func TestLoadExistingFailureKeepsState(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	m := newMachine(t, backend, api.Timeouts{})
	ctx := context.Background()

	_, err := m.Submit(ctx, "t1", []models.FileRef{testutil.WriteFile(t, "a.pdf", "a")})
	require.NoError(t, err)

	// t1 is unknown to the fake backend's thread table
	_, err = m.LoadExisting(ctx, "t1")
	require.Error(t, err)
	assert.Len(t, m.Snapshot("t1").Results, 1)
}

func TestReuploadReplacesStaleIDs(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	m := newMachine(t, backend, api.Timeouts{})
	ctx := context.Background()

	m.Select("t1", []models.FileRef{testutil.WriteFile(t, "a.pdf", "a")})
	_, err := m.SubmitSelected(ctx, "t1")
	require.NoError(t, err)

	fresh, err := m.Reupload(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, []string{fresh[0].DocumentID}, m.Snapshot("t1").DocumentIDs())
	assert.NotEqual(t, "doc-1", fresh[0].DocumentID)
}

func TestReuploadWithoutLocalFiles(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	m := newMachine(t, backend, api.Timeouts{})

	gone := testutil.WriteFile(t, "a.pdf", "a")
	gone.Path += ".deleted"
	m.Select("t1", []models.FileRef{gone})

	_, err := m.Reupload(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrNoFiles)
	assert.Empty(t, backend.Requests())
}

func TestSelectAndRemove(t *testing.T) {
	m := NewMachine(nil, zap.NewNop())
	a := testutil.WriteFile(t, "a.pdf", "a")
	b := testutil.WriteFile(t, "b.pdf", "b")

	m.Select("t1", []models.FileRef{a, b})
	m.Select("t1", []models.FileRef{a})
	assert.Equal(t, 2, m.Snapshot("t1").Files.Len())

	state := m.Remove("t1", 0)
	require.Equal(t, 1, state.Files.Len())
	assert.Equal(t, "b.pdf", state.Files.Files()[0].Name)
	assert.Equal(t, 0, m.Snapshot("t2").Files.Len())
}

func TestDropReusesSlots(t *testing.T) {
	m := NewMachine(nil, zap.NewNop())
	m.Select("a", nil)
	m.Select("b", nil)
	m.Drop("a")
	m.Select("c", nil)

	assert.Len(t, m.slots, 2)
	assert.Equal(t, StatusIdle, m.Snapshot("a").Status)
	m.Drop("missing")
}
