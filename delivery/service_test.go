package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreybb/qcdash/models"
	"github.com/coreybb/qcdash/presenter"
	"github.com/coreybb/qcdash/qcclient"
	"github.com/coreybb/qcdash/table"
)

type countingLister struct {
	mu    sync.Mutex
	calls int
	page  *models.DeliveryPage
}

func (l *countingLister) ListDeliveries(context.Context, qcclient.ListParams) (*models.DeliveryPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.page, nil
}

type fakeBackend struct {
	// updates answers lookups of deliveries no table holds; missing ids
	// are a 404.
	updates   map[models.DeliveryID]*models.JobUpdate
	lookupErr error
	lookups   []models.DeliveryID

	deleted   []models.DeliveryID
	submitted []string
	batch     []string
	jobs      []models.CreateJobRequest
	runs      []models.RunRequest
	jobsGone  []string

	result *models.CommandResult
	failed []string
	err    error
}

func (b *fakeBackend) DeliveryJobUpdate(_ context.Context, id models.DeliveryID) (*models.JobUpdate, error) {
	b.lookups = append(b.lookups, id)
	if b.lookupErr != nil {
		return nil, b.lookupErr
	}
	upd, ok := b.updates[id]
	if !ok {
		return nil, &qcclient.Error{StatusCode: 404, Message: "Not Found"}
	}
	return upd, nil
}

func (b *fakeBackend) DeleteJobs(_ context.Context, uuids []string) (*models.CommandResult, error) {
	b.jobsGone = append(b.jobsGone, uuids...)
	return b.result, b.err
}

func (b *fakeBackend) DeleteDeliveries(_ context.Context, ids []models.DeliveryID) (*models.CommandResult, error) {
	b.deleted = append(b.deleted, ids...)
	return b.result, b.err
}

func (b *fakeBackend) SubmitDelivery(_ context.Context, _ models.DeliveryID, filename string) (*models.CommandResult, error) {
	b.submitted = append(b.submitted, filename)
	return b.result, b.err
}

func (b *fakeBackend) SubmitBatch(_ context.Context, _ []models.DeliveryID, filenames []string) (*models.BatchSubmitResult, error) {
	b.batch = append(b.batch, filenames...)
	if b.err != nil {
		return nil, b.err
	}
	return &models.BatchSubmitResult{CommandResult: *b.result, Failed: b.failed}, nil
}

func (b *fakeBackend) CreateJob(_ context.Context, req models.CreateJobRequest) (*models.CreateJobResult, error) {
	b.jobs = append(b.jobs, req)
	if b.err != nil {
		return nil, b.err
	}
	return &models.CreateJobResult{CommandResult: *b.result, NumCreated: len(req.DeliveryIDs)}, nil
}

func (b *fakeBackend) RunChecks(_ context.Context, req models.RunRequest) (*models.CommandResult, error) {
	b.runs = append(b.runs, req)
	return b.result, b.err
}

func setup(t *testing.T, caps models.Capabilities) (*Service, *fakeBackend, *countingLister) {
	t.Helper()
	src := &countingLister{page: &models.DeliveryPage{Total: 4, Rows: []models.DeliveryRecord{
		{ID: "1", Filename: "passed.zip", LastJobStatus: models.JobStatusOK},
		{ID: "2", Filename: "running.zip", LastJobStatus: models.JobStatusRunning, Percent: 40},
		{ID: "3", Filename: "sent.zip", LastJobStatus: models.JobStatusOK, IsSubmitted: true},
		{ID: "4", Filename: "other.zip", LastJobStatus: models.JobStatusOK},
	}}}
	reg := table.NewRegistry(src, caps, 0)
	_, err := reg.Load(context.Background(), qcclient.ListParams{}, false)
	require.NoError(t, err)

	backend := &fakeBackend{
		result:  &models.CommandResult{Status: "ok"},
		updates: map[models.DeliveryID]*models.JobUpdate{},
	}
	return NewService(backend, reg), backend, src
}

var eea = models.Capabilities{SubmissionEnabled: true, EEAInstallation: true}

func TestDeleteRefusedWhileJobRunning(t *testing.T) {
	svc, backend, _ := setup(t, eea)

	_, err := svc.Delete(context.Background(), []models.DeliveryID{"1", "2"})

	var refused *RefusedError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, presenter.ReasonJobRunning, refused.Reason)
	assert.Equal(t, "running.zip", refused.Filename)
	assert.Empty(t, backend.deleted)
}

func TestDeleteRefreshesTableOnSuccess(t *testing.T) {
	svc, backend, src := setup(t, eea)
	backend.result.Message = "<b>2 deliveries</b> have been deleted."
	backend.updates["99"] = &models.JobUpdate{ID: "99", LastJobStatus: models.JobStatusFailed}

	out, err := svc.Delete(context.Background(), []models.DeliveryID{"1", "99"})
	require.NoError(t, err)

	assert.True(t, out.OK)
	assert.Equal(t, "2 deliveries have been deleted.", out.Message)
	assert.Equal(t, []models.DeliveryID{"1", "99"}, backend.deleted)
	assert.Equal(t, []models.DeliveryID{"99"}, backend.lookups, "only the delivery no table holds is looked up")
	assert.Equal(t, 2, src.calls)
}

func TestSubmitUsesHeldFilename(t *testing.T) {
	svc, backend, _ := setup(t, eea)

	out, err := svc.Submit(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, "Delivery passed.zip has been submitted.", out.Message)
	assert.Equal(t, []string{"passed.zip"}, backend.submitted)
}

func TestSubmitRefusals(t *testing.T) {
	svc, backend, _ := setup(t, eea)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "3")
	var refused *RefusedError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, presenter.ReasonAlreadySubmitted, refused.Reason)

	_, err = svc.Submit(ctx, "42")
	var unknown *UnknownDeliveryError
	require.ErrorAs(t, err, &unknown)

	local, localBackend, _ := setup(t, models.Capabilities{SubmissionEnabled: true})
	_, err = local.Submit(ctx, "1")
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, presenter.ReasonNotEEA, refused.Reason)

	assert.Empty(t, backend.submitted)
	assert.Empty(t, localBackend.submitted)
}

func TestSubmitBatchReportsFailed(t *testing.T) {
	svc, backend, _ := setup(t, eea)
	backend.failed = []string{"other.zip"}

	out, err := svc.SubmitBatch(context.Background(), []models.DeliveryID{"1", "4"})
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, "1 of 2 deliveries have been submitted.", out.Message)
	assert.Equal(t, []string{"other.zip"}, out.Failed)
	assert.Equal(t, []string{"passed.zip", "other.zip"}, backend.batch)
}

func TestFailureOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("network failure gets generic message", func(t *testing.T) {
		svc, backend, src := setup(t, eea)
		backend.err = errors.New("dial tcp: connection refused")

		out, err := svc.Submit(ctx, "1")
		require.NoError(t, err)
		assert.False(t, out.OK)
		assert.Equal(t, msgUnreachable, out.Message)
		assert.Equal(t, 1, src.calls)
	})

	t.Run("server message is shown", func(t *testing.T) {
		svc, backend, _ := setup(t, eea)
		backend.err = &qcclient.Error{StatusCode: 400, Message: "Delivery passed.zip is already being submitted."}

		out, err := svc.Submit(ctx, "1")
		require.NoError(t, err)
		assert.False(t, out.OK)
		assert.Equal(t, "Delivery passed.zip is already being submitted.", out.Message)
	})

	t.Run("error status without message", func(t *testing.T) {
		svc, backend, src := setup(t, eea)
		backend.result = &models.CommandResult{Status: "error"}

		out, err := svc.Delete(ctx, []models.DeliveryID{"1"})
		require.NoError(t, err)
		assert.False(t, out.OK)
		assert.NotEmpty(t, out.Message)
		assert.Equal(t, 1, src.calls)
	})
}

func TestRunQC(t *testing.T) {
	svc, backend, _ := setup(t, eea)
	ctx := context.Background()

	_, err := svc.RunQC(ctx, models.CreateJobRequest{DeliveryIDs: []models.DeliveryID{"2"}, ProductIdent: "clc"})
	var refused *RefusedError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, "qc", refused.Action)

	_, err = svc.RunQC(ctx, models.CreateJobRequest{DeliveryIDs: []models.DeliveryID{"1"}})
	require.ErrorAs(t, err, &refused)

	out, err := svc.RunQC(ctx, models.CreateJobRequest{
		DeliveryIDs:  []models.DeliveryID{"1", "4"},
		ProductIdent: "clc",
		SkipSteps:    []string{"v3"},
	})
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, "2 QC jobs have been created.", out.Message)
	require.Len(t, backend.jobs, 1)
	assert.Equal(t, []string{"v3"}, backend.jobs[0].SkipSteps)
}

func TestRunChecks(t *testing.T) {
	svc, backend, _ := setup(t, eea)
	ctx := context.Background()

	_, err := svc.RunChecks(ctx, models.RunRequest{ProductIdent: "clc"})
	require.Error(t, err)

	out, err := svc.RunChecks(ctx, models.RunRequest{ProductIdent: "clc", Filepath: "/media/guest/a.zip"})
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Len(t, backend.runs, 1)
}

func TestCommandsGuardDeliveriesNoTableHolds(t *testing.T) {
	ctx := context.Background()

	t.Run("submitted elsewhere is refused", func(t *testing.T) {
		svc, backend, _ := setup(t, eea)
		backend.updates["21"] = &models.JobUpdate{ID: "21", LastJobStatus: models.JobStatusOK, IsSubmitted: true}

		_, err := svc.Delete(ctx, []models.DeliveryID{"1", "21"})
		var refused *RefusedError
		require.ErrorAs(t, err, &refused)
		assert.Equal(t, presenter.ReasonAlreadySubmitted, refused.Reason)
		assert.Equal(t, models.DeliveryID("21"), refused.ID)
		assert.Empty(t, backend.deleted)
	})

	t.Run("running elsewhere blocks QC", func(t *testing.T) {
		svc, backend, _ := setup(t, eea)
		backend.updates["22"] = &models.JobUpdate{ID: "22", LastJobStatus: models.JobStatusRunning, Percent: 5}

		_, err := svc.RunQC(ctx, models.CreateJobRequest{DeliveryIDs: []models.DeliveryID{"22"}, ProductIdent: "clc"})
		var refused *RefusedError
		require.ErrorAs(t, err, &refused)
		assert.Equal(t, presenter.ReasonJobRunning, refused.Reason)
		assert.Empty(t, backend.jobs)
	})

	t.Run("passed elsewhere can be submitted", func(t *testing.T) {
		svc, backend, _ := setup(t, eea)
		backend.updates["23"] = &models.JobUpdate{ID: "23", LastJobStatus: models.JobStatusOK}

		out, err := svc.Submit(ctx, "23")
		require.NoError(t, err)
		assert.True(t, out.OK)
		assert.Equal(t, "Delivery 23 has been submitted.", out.Message)
	})

	t.Run("unknown status is refused", func(t *testing.T) {
		svc, backend, _ := setup(t, eea)
		backend.updates["24"] = &models.JobUpdate{ID: "24", LastJobStatus: "NOT OK"}

		_, err := svc.Delete(ctx, []models.DeliveryID{"24"})
		var refused *RefusedError
		require.ErrorAs(t, err, &refused)
		assert.Empty(t, backend.deleted)
	})

	t.Run("lookup failure is a failure outcome", func(t *testing.T) {
		svc, backend, _ := setup(t, eea)
		backend.lookupErr = errors.New("dial tcp: connection refused")

		out, err := svc.Delete(ctx, []models.DeliveryID{"25"})
		require.NoError(t, err)
		assert.False(t, out.OK)
		assert.Equal(t, msgUnreachable, out.Message)
		assert.Empty(t, backend.deleted)
	})
}

func TestDeleteJobs(t *testing.T) {
	svc, backend, src := setup(t, eea)
	ctx := context.Background()

	_, err := svc.DeleteJobs(ctx, nil)
	var refused *RefusedError
	require.ErrorAs(t, err, &refused)

	out, err := svc.DeleteJobs(ctx, []string{"0f8fad5bd9cb469fa16570867728950e"})
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, "1 jobs deleted successfully.", out.Message)
	assert.Equal(t, []string{"0f8fad5bd9cb469fa16570867728950e"}, backend.jobsGone)
	assert.Equal(t, 1, src.calls, "job deletion only invalidates the tables")

	backend.result = &models.CommandResult{Status: "error", Message: "Job 0f8fad5bd9cb469fa16570867728950e cannot be deleted. QC job is currently running."}
	out, err = svc.DeleteJobs(ctx, []string{"0f8fad5bd9cb469fa16570867728950e"})
	require.NoError(t, err)
	assert.False(t, out.OK)
	assert.Contains(t, out.Message, "currently running")
}
