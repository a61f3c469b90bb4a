package protocol

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseIDsIncrease(t *testing.T) {
	first := NewBootstrapResponse(1)
	second := NewClusterInfoResponse(2, ClusterCapabilities{})

	assert.NotZero(t, first.ResponseID())
	assert.Greater(t, second.ResponseID(), first.ResponseID())
}

func TestResponseIDsDistinctUnderConcurrency(t *testing.T) {
	const n = 500

	ids := make([]uint64, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i] = NewJobStateResponse(uint64(i), nil).ResponseID()
		}()
	}
	wg.Wait()

	seen := make(map[uint64]struct{}, n)
	for _, id := range ids {
		require.NotZero(t, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate response id %d", id)
		seen[id] = struct{}{}
	}
}

func TestHeartbeatAndErrorDoNotConsumeIDs(t *testing.T) {
	baseline := NewClusterInfoResponse(1, ClusterCapabilities{}).ResponseID()

	for range 1000 {
		hb := NewHeartbeatResponse()
		require.Zero(t, hb.ResponseID())
		errResp := NewErrorResponse(9, ErrorInvalidRequest, "bad")
		require.Zero(t, errResp.ResponseID())
	}

	next := NewClusterInfoResponse(2, ClusterCapabilities{}).ResponseID()
	assert.Equal(t, baseline+1, next)
}

func encode(t *testing.T, resp Response) map[string]json.RawMessage {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, EncodeResponse(&buf, resp))
	require.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestResponseBaseFieldsComeFirst(t *testing.T) {
	resp := NewErrorResponse(44, ErrorJobNotFound, "no such job")
	keys := resp.ToJSON().keys

	require.GreaterOrEqual(t, len(keys), 3)
	assert.Equal(t, []string{FieldMessageType, FieldRequestID, FieldResponseID}, keys[:3])
	assert.Equal(t, []string{FieldErrorCode, FieldErrorMessage}, keys[3:])

	data, err := json.Marshal(resp.ToJSON())
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"messageType":-1,"requestId":44,"responseId":0,"errorCode":3,"errorMessage":"no such job"}`,
		string(data))
}

func TestBootstrapResponseVersion(t *testing.T) {
	out := encode(t, NewBootstrapResponse(5))
	assert.JSONEq(t, `{"major":1,"minor":0,"patch":0}`, string(out[FieldVersion]))
	assert.JSONEq(t, `1`, string(out[FieldMessageType]))
	assert.JSONEq(t, `5`, string(out[FieldRequestID]))
}

func TestClusterInfoWithoutContainers(t *testing.T) {
	resp := NewClusterInfoResponse(7, ClusterCapabilities{})
	out := encode(t, resp)

	assert.False(t, resp.SupportsContainers())
	assert.JSONEq(t, `false`, string(out[FieldContainerSupport]))
	assert.NotContains(t, out, FieldAllowUnknownImages)
	assert.NotContains(t, out, FieldImages)
	assert.NotContains(t, out, FieldDefaultImage)
	assert.NotContains(t, out, FieldQueues)
	assert.JSONEq(t, `[]`, string(out[FieldConfig]))
	assert.JSONEq(t, `[]`, string(out[FieldResourceLimits]))
	assert.JSONEq(t, `[]`, string(out[FieldPlacementConstraints]))
}

func TestClusterInfoWithContainers(t *testing.T) {
	caps := ClusterCapabilities{
		Queues:               []string{"default", "gpu"},
		ResourceLimits:       []ResourceLimit{{Type: "cpuCount", MaxValue: "8", DefaultValue: "1"}},
		PlacementConstraints: []PlacementConstraint{{Name: "region", Value: "us-east"}},
		Config:               []JobConfig{{Name: "priority", ValueType: "int"}},
	}

	t.Run("default image omitted when empty", func(t *testing.T) {
		out := encode(t, NewContainerClusterInfoResponse(8, ContainerSettings{
			Images: []string{"r-base:4.3", "python:3.12", "r-base:4.3"},
		}, caps))

		assert.JSONEq(t, `true`, string(out[FieldContainerSupport]))
		assert.NotContains(t, out, FieldDefaultImage)
		assert.JSONEq(t, `false`, string(out[FieldAllowUnknownImages]))
		assert.JSONEq(t, `["python:3.12","r-base:4.3"]`, string(out[FieldImages]))
		assert.JSONEq(t, `["default","gpu"]`, string(out[FieldQueues]))
		assert.JSONEq(t, `[{"type":"cpuCount","maxValue":"8","defaultValue":"1"}]`, string(out[FieldResourceLimits]))
		assert.JSONEq(t, `[{"name":"region","value":"us-east"}]`, string(out[FieldPlacementConstraints]))
		assert.JSONEq(t, `[{"name":"priority","valueType":"int"}]`, string(out[FieldConfig]))
	})

	t.Run("default image and empty image set", func(t *testing.T) {
		out := encode(t, NewContainerClusterInfoResponse(9, ContainerSettings{
			DefaultImage:       "r-base:4.3",
			AllowUnknownImages: true,
		}, ClusterCapabilities{}))

		assert.JSONEq(t, `"r-base:4.3"`, string(out[FieldDefaultImage]))
		assert.JSONEq(t, `true`, string(out[FieldAllowUnknownImages]))
		assert.JSONEq(t, `[]`, string(out[FieldImages]))
		assert.NotContains(t, out, FieldQueues)
	})
}

func TestJobStateResponseEmitsJobsArray(t *testing.T) {
	out := encode(t, NewJobStateResponse(3, nil))
	assert.JSONEq(t, `[]`, string(out[FieldJobs]))
	assert.JSONEq(t, `2`, string(out[FieldMessageType]))
}
