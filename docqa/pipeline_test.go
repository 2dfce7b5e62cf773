package docqa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"docqa-gateway/middleware/ratelimit/application"
	"docqa-gateway/middleware/ratelimit/domain"
	"docqa-gateway/middleware/ratelimit/infra"
	"docqa-gateway/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePDF = []byte("%PDF-1.4\n...")

type fakeExtractor struct {
	calls int
	text  string
	err   error
}

func (f *fakeExtractor) Extract(context.Context, []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeCompleter struct {
	calls    int
	corpus   string
	question string
	answer   string
	err      error
}

func (f *fakeCompleter) Complete(_ context.Context, corpus, question string) (string, error) {
	f.calls++
	f.corpus, f.question = corpus, question
	return f.answer, f.err
}

// countingSessions conta os acessos ao session store.
type countingSessions struct {
	Sessions
	gets int
}

func (c *countingSessions) Get(ctx context.Context, id string) (string, error) {
	c.gets++
	return c.Sessions.Get(ctx, id)
}

// countingLimiter registra cada escopo checado.
type countingLimiter struct {
	Admission
	mu     sync.Mutex
	scopes []string
}

func (c *countingLimiter) Check(ctx context.Context, s domain.Scope) (domain.Decision, error) {
	c.mu.Lock()
	c.scopes = append(c.scopes, s.Name())
	c.mu.Unlock()
	return c.Admission.Check(ctx, s)
}

type recorder struct {
	results []string
}

func (r *recorder) ObservePipeline(pipeline, result string, _ time.Duration) {
	r.results = append(r.results, pipeline+":"+result)
}

type harness struct {
	store     *infra.MemoryCounterStore
	limiter   *countingLimiter
	sessions  *countingSessions
	extractor *fakeExtractor
	completer *fakeCompleter
	observer  *recorder
	upload    UploadPipeline
	query     QueryPipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := infra.NewMemoryCounterStore()
	h := &harness{
		store:     store,
		limiter:   &countingLimiter{Admission: application.Service{Store: store, Policies: domain.DefaultPolicies()}},
		sessions:  &countingSessions{Sessions: session.NewStore(store)},
		extractor: &fakeExtractor{text: "X is a letter."},
		completer: &fakeCompleter{answer: "  X is a letter.\n"},
		observer:  &recorder{},
	}
	h.upload = UploadPipeline{Limiter: h.limiter, Sessions: h.sessions, Extractor: h.extractor, Observer: h.observer}
	h.query = QueryPipeline{Limiter: h.limiter, Sessions: h.sessions, Completer: h.completer, Observer: h.observer}
	return h
}

func TestQuery_DecrementsBudgetAfterUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	up, err := h.upload.Upload(ctx, "10.0.0.1", samplePDF)
	require.NoError(t, err)
	require.NotEmpty(t, up.SessionID)
	assert.Equal(t, 0, up.RemainingUploads)
	assert.Len(t, up.Decisions, 2)

	res, err := h.query.Query(ctx, "10.0.0.1", up.SessionID, "What is X?")
	require.NoError(t, err)
	assert.Equal(t, "X is a letter.", res.Answer)
	assert.Equal(t, 4, res.RemainingQueries)
	assert.Equal(t, "X is a letter.", h.completer.corpus)
	assert.Equal(t, "What is X?", h.completer.question)
	assert.Equal(t, []string{"upload:ok", "query:ok"}, h.observer.results)
}

func TestUpload_SecondUploadRejectedWithoutExtraction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.upload.Upload(ctx, "10.0.0.1", samplePDF)
	require.NoError(t, err)
	require.Equal(t, 1, h.extractor.calls)

	res, err := h.upload.Upload(ctx, "10.0.0.1", samplePDF)
	require.ErrorIs(t, err, ErrClientUploadLimitExceeded)
	assert.Equal(t, KindAdmission, KindOf(err))
	assert.Equal(t, "Only 1 PDF upload allowed per day.", err.Error())
	assert.Equal(t, 1, h.extractor.calls, "extraction must not run for a rejected upload")
	require.Len(t, res.Decisions, 2)
	assert.False(t, res.Decisions[1].Admitted)
}

func TestQuery_OverBudgetNeverReachesSessionStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	up, err := h.upload.Upload(ctx, "10.0.0.1", samplePDF)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		res, err := h.query.Query(ctx, "10.0.0.1", up.SessionID, fmt.Sprintf("Question %d?", i))
		require.NoError(t, err, "query %d", i)
		assert.Equal(t, 5-i, res.RemainingQueries)
	}
	require.Equal(t, 5, h.sessions.gets)

	_, err = h.query.Query(ctx, "10.0.0.1", up.SessionID, "One more?")
	require.ErrorIs(t, err, ErrClientQueryLimitExceeded)
	assert.Equal(t, "Daily query limit reached: Max 5 questions per day.", err.Error())
	assert.Equal(t, 5, h.sessions.gets)
	assert.Equal(t, 5, h.completer.calls)
}

func TestQuery_LongQuestionRejectedBeforeAnyCheck(t *testing.T) {
	h := newHarness(t)

	_, err := h.query.Query(context.Background(), "10.0.0.1", "some-session", strings.Repeat("q", 251))
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Empty(t, h.limiter.scopes)
	assert.Equal(t, 0, h.sessions.gets)
}

func TestQuery_ValidatesBounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.query.Query(ctx, "c", "", "What?")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.query.Query(ctx, "c", "s", "   ")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	// 250 caracteres após o trim ainda é válido
	_, err = h.query.Query(ctx, "c", "s", "  "+strings.Repeat("é", 250)+"  ")
	assert.ErrorIs(t, err, ErrSessionExpiredOrInvalid)
}

func TestUpload_GlobalLimitSharedAcrossClients(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := h.upload.Upload(ctx, fmt.Sprintf("10.0.1.%d", i), samplePDF)
		require.NoError(t, err, "upload %d", i)
	}

	_, err := h.upload.Upload(ctx, "10.0.2.1", samplePDF)
	require.ErrorIs(t, err, ErrGlobalUploadLimitExceeded)
	assert.Equal(t, 50, h.extractor.calls)

	// a cota do cliente 51 nunca foi tocada
	dec, err := application.Service{Store: h.store}.Check(ctx, domain.ClientScope(domain.Upload, "10.0.2.1"))
	require.NoError(t, err)
	assert.True(t, dec.Admitted)
}

func TestUpload_GlobalCheckedBeforeClient(t *testing.T) {
	h := newHarness(t)
	_, err := h.upload.Upload(context.Background(), "c", samplePDF)
	require.NoError(t, err)
	assert.Equal(t, []string{"global-upload", "client-upload"}, h.limiter.scopes)
}

func TestUpload_RejectsEmptyAndNonPDF(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.upload.Upload(ctx, "a", nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, "PDF file is required", err.Error())

	_, err = h.upload.Upload(ctx, "b", []byte("plain text"))
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, "Only PDF files are allowed", err.Error())
	assert.Equal(t, 0, h.extractor.calls)
}

func TestUpload_ExtractionFailure(t *testing.T) {
	h := newHarness(t)
	h.extractor.err = errors.New("malformed xref")

	_, err := h.upload.Upload(context.Background(), "a", samplePDF)
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.True(t, KindOf(err).Retryable())
	assert.Equal(t, "malformed xref", err.Error(), "parser reason reaches the client")
	assert.Equal(t, []string{"upload:" + string(CodeExtractionFailed)}, h.observer.results)
}

func TestUpload_EmptyExtractionFails(t *testing.T) {
	h := newHarness(t)
	h.extractor.text = " \n "

	_, err := h.upload.Upload(context.Background(), "a", samplePDF)
	require.ErrorIs(t, err, ErrExtractionFailed)
}

func TestPipelines_StoreUnavailable(t *testing.T) {
	h := newHarness(t)
	h.store.SetUnavailable(true)
	ctx := context.Background()

	_, err := h.upload.Upload(ctx, "a", samplePDF)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = h.query.Query(ctx, "a", "s", "What?")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 0, h.extractor.calls)
	assert.Equal(t, 0, h.sessions.gets)
}

func TestQuery_UnknownSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.query.Query(context.Background(), "a", "does-not-exist", "What?")
	require.ErrorIs(t, err, ErrSessionExpiredOrInvalid)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, 0, h.completer.calls)
}

func TestQuery_CompletionErrorForwardsProviderMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	up, err := h.upload.Upload(ctx, "a", samplePDF)
	require.NoError(t, err)

	h.completer.err = errors.New("Rate limit reached for model")
	_, err = h.query.Query(ctx, "a", up.SessionID, "What?")
	require.ErrorIs(t, err, ErrCompletionFailed)
	assert.Equal(t, "Rate limit reached for model", err.Error())

	h.completer.err = errors.New("  ")
	_, err = h.query.Query(ctx, "a", up.SessionID, "What?")
	require.ErrorIs(t, err, ErrCompletionFailed)
	assert.Equal(t, "Server error", err.Error())
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7")))
	assert.True(t, IsPDF(append([]byte("\x00\x01junk"), samplePDF...)))
	assert.False(t, IsPDF([]byte("PK\x03\x04")))
	assert.False(t, IsPDF(append(make([]byte, 2048), samplePDF...)))
}

func TestRejections_DescribeConfiguredPolicy(t *testing.T) {
	h := newHarness(t)
	policies := domain.DefaultPolicies()
	policies["client-upload"] = domain.Policy{Limit: 3, Window: 48 * time.Hour, ChargeRejected: true}
	policies["client-query"] = domain.Policy{Limit: 1, Window: 12 * time.Hour, ChargeRejected: true}
	h.limiter.Admission = application.Service{Store: h.store, Policies: policies}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.upload.Upload(ctx, "a", samplePDF)
		require.NoError(t, err)
	}
	_, err := h.upload.Upload(ctx, "a", samplePDF)
	require.ErrorIs(t, err, ErrClientUploadLimitExceeded)
	assert.Equal(t, "Only 3 PDF uploads allowed per 2 days.", err.Error())

	_, err = h.query.Query(ctx, "a", "s", "What?")
	require.ErrorIs(t, err, ErrSessionExpiredOrInvalid)
	_, err = h.query.Query(ctx, "a", "s", "What?")
	require.ErrorIs(t, err, ErrClientQueryLimitExceeded)
	assert.Equal(t, "Query limit reached: Max 1 question per 12 hours.", err.Error())
}

func TestPipelines_MissingPolicyIsInternalError(t *testing.T) {
	h := newHarness(t)
	h.limiter.Admission = application.Service{Store: h.store, Policies: domain.Policies{}}

	_, err := h.query.Query(context.Background(), "a", "s", "What?")
	require.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, domain.ErrInvalidPolicy)
	assert.False(t, errors.Is(err, ErrStoreUnavailable))
	assert.Equal(t, KindInternal, KindOf(err))
	assert.False(t, KindOf(err).Retryable())
	assert.Equal(t, 0, h.sessions.gets)
}

func TestDiagnostic(t *testing.T) {
	assert.Equal(t, "fallback", diagnostic(nil, "fallback"))
	assert.Equal(t, "fallback", diagnostic(errors.New(" \n "), "fallback"))
	assert.Equal(t, "bad xref at offset 12", diagnostic(errors.New("  bad xref at offset 12\ngoroutine 1 [running]"), "x"))

	long := diagnostic(errors.New(strings.Repeat("é", 400)), "x")
	assert.Equal(t, maxDiagnostic+3, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "..."))
}
