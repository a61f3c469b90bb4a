package protocol

import "fmt"

// API version implemented by this plugin.
const (
	APIVersionMajor = 1
	APIVersionMinor = 0
	APIVersionPatch = 0
)

// Wire field names shared by requests and responses.
const (
	FieldMessageType          = "messageType"
	FieldRequestID            = "requestId"
	FieldResponseID           = "responseId"
	FieldVersion              = "version"
	FieldVersionMajor         = "major"
	FieldVersionMinor         = "minor"
	FieldVersionPatch         = "patch"
	FieldRealUser             = "realUser"
	FieldRequestUsername      = "requestUsername"
	FieldJobID                = "jobId"
	FieldEncodedJobID         = "encodedJobId"
	FieldJobStartTime         = "jobStartTime"
	FieldJobEndTime           = "jobEndTime"
	FieldJobFields            = "jobFields"
	FieldJobStatuses          = "jobStatuses"
	FieldJobTags              = "jobTags"
	FieldCancelStream         = "cancelStream"
	FieldOperation            = "operation"
	FieldOutputType           = "outputType"
	FieldErrorCode            = "errorCode"
	FieldErrorMessage         = "errorMessage"
	FieldContainerSupport     = "containerSupport"
	FieldDefaultImage         = "defaultImage"
	FieldAllowUnknownImages   = "allowUnknownImages"
	FieldImages               = "images"
	FieldQueues               = "queues"
	FieldConfig               = "config"
	FieldResourceLimits       = "resourceLimits"
	FieldPlacementConstraints = "placementConstraints"
	FieldJobs                 = "jobs"

	// FieldJobIDProjection is the job field every projection implicitly includes.
	FieldJobIDProjection = "id"
)

// RequestType tags an inbound message.
type RequestType int

const (
	RequestHeartbeat RequestType = iota
	RequestBootstrap
	RequestSubmitJob
	RequestGetJob
	RequestGetJobStatus
	RequestControlJob
	RequestGetJobOutput
	RequestGetJobResourceUtil
	RequestGetJobNetwork
	RequestGetClusterInfo

	maxRequestType = RequestGetClusterInfo
)

var requestTypeNames = [...]string{
	RequestHeartbeat:          "HEARTBEAT",
	RequestBootstrap:          "BOOTSTRAP",
	RequestSubmitJob:          "SUBMIT_JOB",
	RequestGetJob:             "GET_JOB",
	RequestGetJobStatus:       "GET_JOB_STATUS",
	RequestControlJob:         "CONTROL_JOB",
	RequestGetJobOutput:       "GET_JOB_OUTPUT",
	RequestGetJobResourceUtil: "GET_JOB_RESOURCE_UTIL",
	RequestGetJobNetwork:      "GET_JOB_NETWORK",
	RequestGetClusterInfo:     "GET_CLUSTER_INFO",
}

func (t RequestType) String() string {
	if t >= 0 && t <= maxRequestType {
		return requestTypeNames[t]
	}
	return fmt.Sprintf("RequestType(%d)", int(t))
}

// ResponseType tags an outbound message.
type ResponseType int

const (
	ResponseError ResponseType = iota - 1
	ResponseHeartbeat
	ResponseBootstrap
	ResponseJobState
	ResponseJobStatus
	ResponseControlJob
	ResponseJobOutput
	ResponseJobResourceUtil
	ResponseJobNetwork
	ResponseClusterInfo
)

// ErrorCode classifies an ERROR response.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota
	ErrorRequestNotSupported
	ErrorInvalidRequest
	ErrorJobNotFound
	ErrorPluginRestarted
	ErrorTimeout
	ErrorJobNotRunning
	ErrorJobOutputNotFound
	ErrorInvalidJobState
	ErrorJobControlFailure
	ErrorUnsupportedVersion
)

// ControlOperation is the action requested by a CONTROL_JOB message.
type ControlOperation int

const (
	OperationSuspend ControlOperation = iota
	OperationResume
	OperationStop
	OperationKill
	OperationCancel

	maxControlOperation = OperationCancel
)

// OutputType selects the streams a GET_JOB_OUTPUT message wants.
type OutputType int

const (
	OutputStdout OutputType = iota
	OutputStderr
	OutputBoth

	maxOutputType = OutputBoth
)
