package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/mattjoyce/launcher-plugin/internal/job"
	"github.com/mattjoyce/launcher-plugin/internal/system"
)

var (
	// ErrInvalidRequest marks a message that could not be decoded into a Request.
	ErrInvalidRequest = errors.New("invalid request received from launcher")

	// ErrRequestNotSupported marks a known message type this plugin does not handle.
	ErrRequestNotSupported = errors.New("request type not supported")
)

// ParseError describes why a document was rejected. RequestID is meaningful
// only when HasRequestID is true.
type ParseError struct {
	RequestID    uint64
	HasRequestID bool
	Type         RequestType
	Problems     []string

	kind error
}

func (e *ParseError) Error() string {
	if e.kind == ErrRequestNotSupported {
		return fmt.Sprintf("Request type %s is not supported by this plugin", e.Type)
	}
	return "Invalid request received from launcher: " + strings.Join(e.Problems, "; ")
}

func (e *ParseError) Unwrap() error { return e.kind }

// Parser turns inbound documents into typed requests.
type Parser struct {
	users  system.UserResolver
	logger *slog.Logger
}

// NewParser creates a Parser. Structurally invalid fields are reported on logger.
func NewParser(users system.UserResolver, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{users: users, logger: logger}
}

// ParseJSON decodes raw bytes and parses the resulting document.
func (p *Parser) ParseJSON(data []byte) (Request, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{
			Problems: []string{fmt.Sprintf("malformed JSON: %v", err)},
			kind:     ErrInvalidRequest,
		}
	}
	return p.Parse(doc)
}

// Parse validates doc and constructs the matching Request variant.
//
// The message type is checked first and its failures are returned without
// logging. After that the base fields are read, then the variant's fields;
// each structural failure is logged at ERROR in that order. Optional filters
// that hold unusable values do not fail the request.
func (p *Parser) Parse(doc Document) (Request, error) {
	rawType, ok := doc[FieldMessageType]
	if !ok {
		return nil, p.typeError(doc, fmt.Sprintf("missing required field %q", FieldMessageType))
	}
	typeNum, ok := toInt64(rawType)
	if !ok {
		return nil, p.typeError(doc, fmt.Sprintf("field %q must be an integer, got %v", FieldMessageType, rawType))
	}
	if typeNum < 0 || typeNum > int64(maxRequestType) {
		return nil, p.typeError(doc, fmt.Sprintf("message type %d is out of range [0, %d]", typeNum, maxRequestType))
	}

	d := &decoder{doc: doc, users: p.users, logger: p.logger}
	base := d.base(RequestType(typeNum))

	var req Request
	switch base.requestType {
	case RequestHeartbeat:
		req = &HeartbeatRequest{requestBase: base}
	case RequestBootstrap:
		req = d.bootstrap(base)
	case RequestGetClusterInfo:
		req = &ClusterInfoRequest{UserRequest: d.user(base)}
	case RequestGetJob:
		req = d.jobState(base)
	case RequestGetJobStatus:
		req = &JobStatusRequest{
			JobIDRequest: d.jobID(base),
			cancelStream: d.optionalBool(FieldCancelStream),
		}
	case RequestControlJob:
		req = &ControlJobRequest{
			JobIDRequest: d.jobID(base),
			operation:    ControlOperation(d.enum(FieldOperation, int64(maxControlOperation))),
		}
	case RequestGetJobOutput:
		req = &OutputStreamRequest{
			JobIDRequest: d.jobID(base),
			outputType:   OutputType(d.enum(FieldOutputType, int64(maxOutputType))),
			cancelStream: d.optionalBool(FieldCancelStream),
		}
	case RequestGetJobResourceUtil:
		req = &ResourceUtilStreamRequest{
			JobIDRequest: d.jobID(base),
			cancelStream: d.optionalBool(FieldCancelStream),
		}
	case RequestGetJobNetwork:
		req = &NetworkRequest{JobIDRequest: d.jobID(base)}
	case RequestSubmitJob:
		if len(d.problems) == 0 {
			return nil, &ParseError{
				RequestID:    base.id,
				HasRequestID: true,
				Type:         base.requestType,
				kind:         ErrRequestNotSupported,
			}
		}
	}

	if len(d.problems) > 0 {
		return nil, &ParseError{
			RequestID:    base.id,
			HasRequestID: d.hasID,
			Type:         base.requestType,
			Problems:     d.problems,
			kind:         ErrInvalidRequest,
		}
	}
	return req, nil
}

// typeError builds the error for a bad message type. The request id is
// recovered when possible so the ERROR response can still be correlated.
func (p *Parser) typeError(doc Document, problem string) *ParseError {
	perr := &ParseError{Type: -1, Problems: []string{problem}, kind: ErrInvalidRequest}
	if raw, ok := doc[FieldRequestID]; ok {
		perr.RequestID, perr.HasRequestID = toUint64(raw)
	}
	return perr
}

// decoder accumulates field problems for one document.
type decoder struct {
	doc      Document
	users    system.UserResolver
	logger   *slog.Logger
	problems []string
	hasID    bool
}

func (d *decoder) fail(format string, args ...any) {
	problem := fmt.Sprintf(format, args...)
	d.problems = append(d.problems, problem)
	d.logger.Error("Invalid request received from launcher: " + problem)
}

func (d *decoder) missing(field string) {
	d.fail("missing required field %q", field)
}

func (d *decoder) base(t RequestType) requestBase {
	base := requestBase{requestType: t}
	raw, ok := d.doc[FieldRequestID]
	if !ok {
		d.missing(FieldRequestID)
		return base
	}
	id, ok := toUint64(raw)
	if !ok {
		d.fail("field %q must be a non-negative integer, got %v", FieldRequestID, raw)
		return base
	}
	base.id = id
	d.hasID = true
	return base
}

func (d *decoder) bootstrap(base requestBase) *BootstrapRequest {
	req := &BootstrapRequest{requestBase: base}
	raw, ok := d.doc[FieldVersion]
	if !ok {
		d.missing(FieldVersion)
		return req
	}
	version, ok := raw.(map[string]any)
	if !ok {
		d.fail("field %q must be an object", FieldVersion)
		return req
	}

	read := func(field string) int {
		v, ok := version[field]
		if !ok {
			d.fail("missing required field %q in %q", field, FieldVersion)
			return 0
		}
		n, ok := toInt64(v)
		if !ok {
			d.fail("field %q in %q must be an integer, got %v", field, FieldVersion, v)
			return 0
		}
		return int(n)
	}
	req.major = read(FieldVersionMajor)
	req.minor = read(FieldVersionMinor)
	req.patch = read(FieldVersionPatch)
	return req
}

func (d *decoder) user(base requestBase) UserRequest {
	req := UserRequest{requestBase: base}
	identifier, ok := d.requiredString(FieldRealUser)
	if ok {
		u, err := d.users.Resolve(identifier)
		if err != nil {
			d.fail("field %q: %v", FieldRealUser, err)
		} else {
			req.user = u
		}
	}
	req.requestUsername, _ = d.optionalString(FieldRequestUsername)
	return req
}

func (d *decoder) jobID(base requestBase) JobIDRequest {
	req := JobIDRequest{UserRequest: d.user(base)}
	req.jobID, _ = d.requiredString(FieldJobID)
	req.encodedJobID, _ = d.optionalString(FieldEncodedJobID)
	return req
}

func (d *decoder) jobState(base requestBase) *JobStateRequest {
	req := &JobStateRequest{JobIDRequest: d.jobID(base)}
	req.startTime = d.optionalTime(FieldJobStartTime)
	req.endTime = d.optionalTime(FieldJobEndTime)

	if names, ok := d.optionalStringArray(FieldJobStatuses); ok {
		req.statuses = parseStatuses(names)
	}
	if fields, ok := d.optionalStringArray(FieldJobFields); ok {
		if !slices.Contains(fields, FieldJobIDProjection) {
			fields = append(fields, FieldJobIDProjection)
		}
		req.fields = optional[[]string]{value: sortedUnique(fields), attempted: true}
	}
	if tags, ok := d.optionalStringArray(FieldJobTags); ok {
		req.tags = optional[[]string]{value: sortedUnique(tags), attempted: true}
	}
	return req
}

func parseStatuses(names []string) optional[[]job.State] {
	states := make([]job.State, 0, len(names))
	for _, name := range names {
		state, err := job.ParseState(name)
		if err != nil {
			return optional[[]job.State]{attempted: true, err: fmt.Errorf("field %q: %w", FieldJobStatuses, err)}
		}
		if !slices.Contains(states, state) {
			states = append(states, state)
		}
	}
	slices.Sort(states)
	return optional[[]job.State]{value: states, attempted: true}
}

func (d *decoder) requiredString(field string) (string, bool) {
	raw, ok := d.doc[field]
	if !ok {
		d.missing(field)
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		d.fail("field %q must be a string, got %v", field, raw)
		return "", false
	}
	return s, true
}

func (d *decoder) optionalString(field string) (string, bool) {
	raw, ok := d.doc[field]
	if !ok || raw == nil {
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		d.fail("field %q must be a string, got %v", field, raw)
		return "", false
	}
	return s, true
}

func (d *decoder) optionalBool(field string) bool {
	raw, ok := d.doc[field]
	if !ok || raw == nil {
		return false
	}
	b, ok := raw.(bool)
	if !ok {
		d.fail("field %q must be a boolean, got %v", field, raw)
	}
	return b
}

func (d *decoder) enum(field string, highest int64) int64 {
	raw, ok := d.doc[field]
	if !ok {
		d.missing(field)
		return 0
	}
	n, ok := toInt64(raw)
	if !ok || n < 0 || n > highest {
		d.fail("field %q must be an integer in [0, %d], got %v", field, highest, raw)
		return 0
	}
	return n
}

// optionalTime keeps an unparsable value as attempted-invalid instead of failing.
func (d *decoder) optionalTime(field string) optional[time.Time] {
	s, ok := d.optionalString(field)
	if !ok {
		return optional[time.Time]{}
	}
	t, err := system.ParseDateTime(s)
	if err != nil {
		return optional[time.Time]{attempted: true, err: fmt.Errorf("field %q: %w", field, err)}
	}
	return optional[time.Time]{value: t, attempted: true}
}

func (d *decoder) optionalStringArray(field string) ([]string, bool) {
	raw, ok := d.doc[field]
	if !ok || raw == nil {
		return nil, false
	}
	items, ok := raw.([]any)
	if !ok {
		if typed, isStrings := raw.([]string); isStrings {
			return slices.Clone(typed), true
		}
		d.fail("field %q must be an array, got %v", field, raw)
		return nil, false
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			d.fail("field %q[%d] must be a string, got %v", field, i, item)
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func sortedUnique(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

// EncodeResponse writes resp as a single line of JSON to w.
func EncodeResponse(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp.ToJSON())
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
