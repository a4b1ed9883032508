package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/runsync/internal/objectstore"
	"github.com/livinlefevreloca/runsync/internal/state"
	"github.com/livinlefevreloca/runsync/internal/syncer"
	"github.com/livinlefevreloca/runsync/internal/testutil"
	"github.com/livinlefevreloca/runsync/internal/upstream"
)

var nightly = upstream.Job{ID: 7, Name: "Nightly Run"}

type fixture struct {
	api     *testutil.FakeUpstream
	objects *objectstore.Memory
	logs    *testutil.TestLogger
	handler *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		api:     testutil.NewFakeUpstream(),
		objects: objectstore.NewMemory(),
		logs:    testutil.NewTestLogger(),
	}
	clock := testutil.NewMockClock(time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC))
	clock.SetStep(time.Second)

	states := state.NewStore(f.objects, f.logs.Logger())
	engine, err := syncer.NewEngine(syncer.DefaultConfig(), f.api, states, f.objects, f.logs.Logger(), syncer.WithClock(clock))
	require.NoError(t, err)

	f.handler = NewHandler(f.api, engine, f.api, f.objects, f.logs.Logger())
	return f
}

// =============================================================================
// Request Decoding Tests
// =============================================================================

func TestDecode_Jobs(t *testing.T) {
	req, err := Decode([]byte(`{"worker_type":"jobs"}`))
	require.NoError(t, err)
	assert.Equal(t, JobsRequest{}, req)

	req, err = Decode([]byte(`{"worker_type":"jobs","job":{"id":7},"request_id":"r1"}`))
	require.NoError(t, err)
	jobs := req.(JobsRequest)
	require.NotNil(t, jobs.JobID)
	assert.Equal(t, 7, *jobs.JobID)
	assert.Equal(t, "r1", jobs.ID())
}

func TestDecode_RunsLegacyStatusAsPartition(t *testing.T) {
	req, err := Decode([]byte(`{"worker_type":"runs","job":{"id":7,"name":"Nightly Run","status":"error"}}`))
	require.NoError(t, err)
	assert.Equal(t, RunsRequest{
		Job:       upstream.Job{ID: 7, Name: "Nightly Run", Status: "error"},
		Partition: upstream.PartitionError,
	}, req)
}

func TestDecode_RunsExplicitPartition(t *testing.T) {
	req, err := Decode([]byte(`{"worker_type":"runs","job":{"id":7,"name":"Nightly Run","status":"active"},"partition":"success"}`))
	require.NoError(t, err)
	runs := req.(RunsRequest)
	assert.Equal(t, upstream.PartitionSuccess, runs.Partition)
	assert.Equal(t, "active", runs.Job.Status)
}

func TestDecode_Metadata(t *testing.T) {
	req, err := Decode([]byte(`{"worker_type":"sources","job":{"id":7,"name":"Nightly Run"}}`))
	require.NoError(t, err)
	assert.Equal(t, MetadataRequest{Kind: upstream.KindSources, Job: nightly}, req)
	assert.Equal(t, TypeSources, req.Type())
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"no worker type", `{"job":{"id":7}}`, ErrMissingWorkerType},
		{"unknown worker type", `{"worker_type":"seeds","job":{"id":7}}`, ErrUnknownWorkerType},
		{"runs without job", `{"worker_type":"runs"}`, ErrMissingJob},
		{"metadata without job", `{"worker_type":"models"}`, ErrMissingJob},
		{"runs without partition", `{"worker_type":"runs","job":{"id":7,"name":"x"}}`, upstream.ErrUnknownPartition},
		{"runs with bad partition", `{"worker_type":"runs","job":{"id":7},"partition":"running"}`, upstream.ErrUnknownPartition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	data, err := Encode(RunsRequest{RequestID: "r1", Job: nightly, Partition: upstream.PartitionSuccess})
	require.NoError(t, err)
	assert.JSONEq(t, `{"worker_type":"runs","job":{"id":7,"name":"Nightly Run"},"partition":"success","request_id":"r1"}`, string(data))

	id := 7
	data, err = Encode(JobsRequest{JobID: &id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"worker_type":"jobs","job":{"id":7}}`, string(data))

	data, err = Encode(MetadataRequest{Kind: upstream.KindExposures, Job: nightly})
	require.NoError(t, err)
	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, MetadataRequest{Kind: upstream.KindExposures, Job: nightly}, back)
}

// =============================================================================
// Jobs Tests
// =============================================================================

func TestHandle_ListJobsSavesDefinitions(t *testing.T) {
	f := newFixture(t)
	f.api.AddJob(upstream.Job{ID: 7, Name: "Nightly Run", Status: "active", Raw: json.RawMessage(`{"id":7,"name":"Nightly Run","state":1}`)})
	f.api.AddJob(upstream.Job{ID: 8, Name: "Hourly", Status: "active", Raw: json.RawMessage(`{"id":8,"name":"Hourly","state":1}`)})

	resp, err := f.handler.Handle(context.Background(), JobsRequest{})
	require.NoError(t, err)
	jobs := resp.(*JobsResponse)
	assert.Len(t, jobs.All(), 2)

	body, err := f.objects.Get(context.Background(), state.JobDefinitionsKey)
	require.NoError(t, err)
	assert.Equal(t, "[\n  {\n    \"id\": 7,\n    \"name\": \"Nightly Run\",\n    \"state\": 1\n  },\n  {\n    \"id\": 8,\n    \"name\": \"Hourly\",\n    \"state\": 1\n  }\n]", string(body))
}

func TestHandle_EmptyListingWritesNothing(t *testing.T) {
	f := newFixture(t)

	resp, err := f.handler.Handle(context.Background(), JobsRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.(*JobsResponse).All())
	assert.Equal(t, 0, f.objects.PutCount())
}

func TestHandle_SingleJob(t *testing.T) {
	f := newFixture(t)
	f.api.AddJob(nightly)

	id := 7
	resp, err := f.handler.Handle(context.Background(), JobsRequest{JobID: &id})
	require.NoError(t, err)
	jobs := resp.(*JobsResponse)
	require.NotNil(t, jobs.Job)
	assert.Equal(t, 7, jobs.Job.ID)
	assert.Equal(t, []upstream.Job{*jobs.Job}, jobs.All())

	id = 99
	_, err = f.handler.Handle(context.Background(), JobsRequest{JobID: &id})
	assert.ErrorIs(t, err, upstream.ErrJobNotFound)
}

func TestHandle_ListingFailure(t *testing.T) {
	f := newFixture(t)
	f.api.FailOn("list_jobs", errors.New("unauthorized"))

	_, err := f.handler.Handle(context.Background(), JobsRequest{})
	assert.Error(t, err)
}

// =============================================================================
// Runs Tests
// =============================================================================

func TestHandlePayload_Runs(t *testing.T) {
	f := newFixture(t)
	f.api.SetRuns(7, upstream.PartitionSuccess, 12)

	payload := []byte(`{"worker_type":"runs","job":{"id":7,"name":"Nightly Run","status":"success"}}`)
	out, err := f.handler.HandlePayload(context.Background(), payload)
	require.NoError(t, err)

	var resp RunsResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.JobState)
	assert.Equal(t, 10, resp.Offset(upstream.PartitionSuccess))
	assert.True(t, resp.HasMore)
	assert.Equal(t, 10, resp.Records)
	assert.Equal(t, "success", resp.Status)

	out, err = f.handler.HandleLambda(context.Background(), payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 7, "name": "Nightly Run", "status": "success",
		"offsets": {"success": 12, "error": 0}, "hasMore": false,
		"records": 2, "snapshotKey": "job_7_nightly_run/job_Nightly_Run_2026-05-01_02:00:01.json"
	}`, string(out))
}

func TestHandle_RunsFailure(t *testing.T) {
	f := newFixture(t)
	f.api.FailOn("runs:error", errors.New("timeout"))

	_, err := f.handler.Handle(context.Background(), RunsRequest{Job: nightly, Partition: upstream.PartitionError})
	assert.Error(t, err)
}

// =============================================================================
// Metadata Tests
// =============================================================================

func TestHandle_MetadataWritesCSV(t *testing.T) {
	f := newFixture(t)
	f.api.SetMetadata(7, upstream.KindModels,
		`{"uniqueId":"model.a","status":"success"}`,
		`{"uniqueId":"model.b","status":"error"}`)

	resp, err := f.handler.Handle(context.Background(), MetadataRequest{Kind: upstream.KindModels, Job: nightly})
	require.NoError(t, err)
	assert.Equal(t, &MetadataResponse{WorkerType: TypeModels, Key: "job_7_nightly_run/models.csv", Rows: 2}, resp)

	body, err := f.objects.Get(context.Background(), "job_7_nightly_run/models.csv")
	require.NoError(t, err)
	assert.Equal(t, "uniqueId,status\nmodel.a,success\nmodel.b,error\n", string(body))
}

func TestHandle_MetadataEmptyWritesNothing(t *testing.T) {
	f := newFixture(t)

	resp, err := f.handler.Handle(context.Background(), MetadataRequest{Kind: upstream.KindExposures, Job: nightly})
	require.NoError(t, err)
	assert.Equal(t, &MetadataResponse{WorkerType: TypeExposures}, resp)
	assert.Equal(t, 0, f.objects.PutCount())
	assert.Len(t, f.logs.FindMessage("metadata api returned no records"), 1)
}

func TestHandle_MetadataFailure(t *testing.T) {
	f := newFixture(t)
	f.api.FailOn("metadata:sources", &upstream.GraphQLError{Kind: upstream.KindSources, Messages: []string{"bad"}})

	_, err := f.handler.Handle(context.Background(), MetadataRequest{Kind: upstream.KindSources, Job: nightly})
	var gqlErr *upstream.GraphQLError
	assert.True(t, errors.As(err, &gqlErr))
}

func TestHandlePayload_DecodeError(t *testing.T) {
	f := newFixture(t)

	_, err := f.handler.HandlePayload(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrMissingWorkerType)
}
