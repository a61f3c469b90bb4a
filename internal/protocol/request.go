package protocol

import (
	"slices"
	"time"

	"github.com/mattjoyce/launcher-plugin/internal/job"
	"github.com/mattjoyce/launcher-plugin/internal/system"
)

// Request is a decoded inbound message. The concrete type is determined by Type.
type Request interface {
	Type() RequestType
	ID() uint64
}

type requestBase struct {
	requestType RequestType
	id          uint64
}

func (r *requestBase) Type() RequestType { return r.requestType }
func (r *requestBase) ID() uint64        { return r.id }

// HeartbeatRequest is the launcher's liveness probe.
type HeartbeatRequest struct {
	requestBase
}

// BootstrapRequest opens a session and announces the launcher's API version.
type BootstrapRequest struct {
	requestBase
	major, minor, patch int
}

func (r *BootstrapRequest) MajorVersion() int { return r.major }
func (r *BootstrapRequest) MinorVersion() int { return r.minor }
func (r *BootstrapRequest) PatchNumber() int  { return r.patch }

// UserRequest is embedded by every request that acts on behalf of a user.
type UserRequest struct {
	requestBase
	user            system.User
	requestUsername string
}

// User returns the resolved user, possibly the all-users sentinel.
func (r *UserRequest) User() system.User { return r.user }

// RequestUsername returns the user an admin is acting for, or "".
func (r *UserRequest) RequestUsername() string { return r.requestUsername }

// ClusterInfoRequest asks for the plugin's cluster capabilities.
type ClusterInfoRequest struct {
	UserRequest
}

// JobIDRequest is embedded by every request addressed to one job (or "*").
type JobIDRequest struct {
	UserRequest
	jobID        string
	encodedJobID string
}

func (r *JobIDRequest) JobID() string        { return r.jobID }
func (r *JobIDRequest) EncodedJobID() string { return r.encodedJobID }

// optional is a tri-state field: absent, present, or present but invalid.
type optional[T any] struct {
	value     T
	attempted bool
	err       error
}

func (o optional[T]) get() (T, bool, error) {
	var zero T
	if o.err != nil {
		return zero, false, o.err
	}
	if !o.attempted {
		return zero, false, nil
	}
	return o.value, true, nil
}

// JobStateRequest (GET_JOB) looks up jobs with optional filters and projection.
type JobStateRequest struct {
	JobIDRequest
	startTime optional[time.Time]
	endTime   optional[time.Time]
	statuses  optional[[]job.State]
	fields    optional[[]string]
	tags      optional[[]string]
}

// StartTime returns the lower bound of the submission-time filter. ok is false
// when the field was absent; err is non-nil when it was present but unparsable.
func (r *JobStateRequest) StartTime() (t time.Time, ok bool, err error) { return r.startTime.get() }

// EndTime is the upper bound counterpart of StartTime.
func (r *JobStateRequest) EndTime() (t time.Time, ok bool, err error) { return r.endTime.get() }

// StatusSet returns the requested states in ascending order. err is non-nil if
// any name in the array was not a known state.
func (r *JobStateRequest) StatusSet() ([]job.State, bool, error) {
	states, ok, err := r.statuses.get()
	return slices.Clone(states), ok, err
}

// FieldSet returns the requested projection, always including "id".
func (r *JobStateRequest) FieldSet() ([]string, bool) {
	fields, ok, _ := r.fields.get()
	return slices.Clone(fields), ok
}

// TagSet returns the requested tag filter.
func (r *JobStateRequest) TagSet() ([]string, bool) {
	tags, ok, _ := r.tags.get()
	return slices.Clone(tags), ok
}

// JobStatusRequest (GET_JOB_STATUS) opens or cancels a status stream.
type JobStatusRequest struct {
	JobIDRequest
	cancelStream bool
}

// IsCancelRequest reports whether this message cancels an open stream.
func (r *JobStatusRequest) IsCancelRequest() bool { return r.cancelStream }

// ControlJobRequest (CONTROL_JOB) asks for a state change on a job.
type ControlJobRequest struct {
	JobIDRequest
	operation ControlOperation
}

func (r *ControlJobRequest) Operation() ControlOperation { return r.operation }

// OutputStreamRequest (GET_JOB_OUTPUT) opens or cancels an output stream.
type OutputStreamRequest struct {
	JobIDRequest
	outputType   OutputType
	cancelStream bool
}

func (r *OutputStreamRequest) OutputType() OutputType { return r.outputType }
func (r *OutputStreamRequest) IsCancelRequest() bool  { return r.cancelStream }

// ResourceUtilStreamRequest (GET_JOB_RESOURCE_UTIL) opens or cancels a resource stream.
type ResourceUtilStreamRequest struct {
	JobIDRequest
	cancelStream bool
}

func (r *ResourceUtilStreamRequest) IsCancelRequest() bool { return r.cancelStream }

// NetworkRequest (GET_JOB_NETWORK) asks where a job is running.
type NetworkRequest struct {
	JobIDRequest
}
