package protocol

import (
	"slices"
	"sync/atomic"
)

// nextResponseID is shared by every substantive response in the process.
var nextResponseID atomic.Uint64

func allocateResponseID() uint64 {
	return nextResponseID.Add(1)
}

// Response is an outbound message.
type Response interface {
	Type() ResponseType
	RequestID() uint64
	ResponseID() uint64
	ToJSON() *Object
}

type responseBase struct {
	responseType ResponseType
	requestID    uint64
	responseID   uint64
}

// newResponseBase assigns a response id. HEARTBEAT and ERROR responses are
// out of band: they always carry 0 and leave the counter untouched.
func newResponseBase(t ResponseType, requestID uint64) responseBase {
	base := responseBase{responseType: t, requestID: requestID}
	if t != ResponseHeartbeat && t != ResponseError {
		base.responseID = allocateResponseID()
	}
	return base
}

func (r *responseBase) Type() ResponseType { return r.responseType }
func (r *responseBase) RequestID() uint64  { return r.requestID }
func (r *responseBase) ResponseID() uint64 { return r.responseID }

func (r *responseBase) ToJSON() *Object {
	return NewObject().
		Set(FieldMessageType, int(r.responseType)).
		Set(FieldRequestID, r.requestID).
		Set(FieldResponseID, r.responseID)
}

// HeartbeatResponse answers a HEARTBEAT request.
type HeartbeatResponse struct {
	responseBase
}

func NewHeartbeatResponse() *HeartbeatResponse {
	return &HeartbeatResponse{responseBase: newResponseBase(ResponseHeartbeat, 0)}
}

// BootstrapResponse reports the API version this plugin implements.
type BootstrapResponse struct {
	responseBase
}

func NewBootstrapResponse(requestID uint64) *BootstrapResponse {
	return &BootstrapResponse{responseBase: newResponseBase(ResponseBootstrap, requestID)}
}

func (r *BootstrapResponse) ToJSON() *Object {
	version := NewObject().
		Set(FieldVersionMajor, APIVersionMajor).
		Set(FieldVersionMinor, APIVersionMinor).
		Set(FieldVersionPatch, APIVersionPatch)
	return r.responseBase.ToJSON().Set(FieldVersion, version)
}

// ErrorResponse reports that a request could not be served.
type ErrorResponse struct {
	responseBase
	code    ErrorCode
	message string
}

func NewErrorResponse(requestID uint64, code ErrorCode, message string) *ErrorResponse {
	return &ErrorResponse{
		responseBase: newResponseBase(ResponseError, requestID),
		code:         code,
		message:      message,
	}
}

func (r *ErrorResponse) ToJSON() *Object {
	return r.responseBase.ToJSON().
		Set(FieldErrorCode, int(r.code)).
		Set(FieldErrorMessage, r.message)
}

// ClusterInfoResponse describes the capabilities of the cluster.
type ClusterInfoResponse struct {
	responseBase
	caps       ClusterCapabilities
	containers *ContainerSettings
}

// NewClusterInfoResponse builds a response for a cluster without container support.
func NewClusterInfoResponse(requestID uint64, caps ClusterCapabilities) *ClusterInfoResponse {
	return &ClusterInfoResponse{
		responseBase: newResponseBase(ResponseClusterInfo, requestID),
		caps:         caps,
	}
}

// NewContainerClusterInfoResponse builds a response for a container-enabled cluster.
func NewContainerClusterInfoResponse(requestID uint64, containers ContainerSettings, caps ClusterCapabilities) *ClusterInfoResponse {
	images := slices.Clone(containers.Images)
	slices.Sort(images)
	containers.Images = slices.Compact(images)

	return &ClusterInfoResponse{
		responseBase: newResponseBase(ResponseClusterInfo, requestID),
		caps:         caps,
		containers:   &containers,
	}
}

// SupportsContainers reports whether the image fields are emitted.
func (r *ClusterInfoResponse) SupportsContainers() bool { return r.containers != nil }

func (r *ClusterInfoResponse) ToJSON() *Object {
	obj := r.responseBase.ToJSON().Set(FieldContainerSupport, r.containers != nil)

	if r.containers != nil {
		if r.containers.DefaultImage != "" {
			obj.Set(FieldDefaultImage, r.containers.DefaultImage)
		}
		obj.Set(FieldAllowUnknownImages, r.containers.AllowUnknownImages)
		obj.Set(FieldImages, nonNil(r.containers.Images))
	}

	if len(r.caps.Queues) > 0 {
		obj.Set(FieldQueues, r.caps.Queues)
	}

	config := make([]*Object, 0, len(r.caps.Config))
	for _, c := range r.caps.Config {
		config = append(config, c.toJSON())
	}
	limits := make([]*Object, 0, len(r.caps.ResourceLimits))
	for _, l := range r.caps.ResourceLimits {
		limits = append(limits, l.toJSON())
	}
	constraints := make([]*Object, 0, len(r.caps.PlacementConstraints))
	for _, c := range r.caps.PlacementConstraints {
		constraints = append(constraints, c.toJSON())
	}

	return obj.
		Set(FieldConfig, config).
		Set(FieldResourceLimits, limits).
		Set(FieldPlacementConstraints, constraints)
}

// JobStateResponse carries the jobs that matched a GET_JOB request.
type JobStateResponse struct {
	responseBase
	jobs []*Object
}

func NewJobStateResponse(requestID uint64, jobs []*Object) *JobStateResponse {
	return &JobStateResponse{
		responseBase: newResponseBase(ResponseJobState, requestID),
		jobs:         jobs,
	}
}

func (r *JobStateResponse) ToJSON() *Object {
	return r.responseBase.ToJSON().Set(FieldJobs, nonNil(r.jobs))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
