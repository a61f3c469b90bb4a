package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/launcher-plugin/internal/config"
	"github.com/mattjoyce/launcher-plugin/internal/log"
	"github.com/mattjoyce/launcher-plugin/internal/protocol"
	"github.com/mattjoyce/launcher-plugin/internal/system"
)

// allJobs is the job id that addresses every job the user may see.
const allJobs = "*"

// Dispatcher answers launcher requests.
type Dispatcher struct {
	cfg        *config.Config
	parser     *protocol.Parser
	caps       protocol.ClusterCapabilities
	containers *protocol.ContainerSettings
	logger     *slog.Logger

	writeMu       sync.Mutex
	lastHeartbeat atomic.Int64
}

// New creates a Dispatcher for cfg. users resolves the realUser of requests.
func New(cfg *config.Config, users system.UserResolver) *Dispatcher {
	d := &Dispatcher{
		cfg:    cfg,
		parser: protocol.NewParser(users, log.WithComponent("protocol")),
		caps:   capabilities(cfg.Cluster),
		logger: log.WithComponent("dispatch"),
	}
	if c := cfg.Cluster.Containers; c.Enabled {
		d.containers = &protocol.ContainerSettings{
			Images:             c.Images,
			DefaultImage:       c.DefaultImage,
			AllowUnknownImages: c.AllowUnknownImages,
		}
	}
	d.lastHeartbeat.Store(time.Now().UnixNano())
	return d
}

func capabilities(cluster config.ClusterConfig) protocol.ClusterCapabilities {
	caps := protocol.ClusterCapabilities{Queues: cluster.Queues}
	for _, l := range cluster.ResourceLimits {
		caps.ResourceLimits = append(caps.ResourceLimits, protocol.ResourceLimit{
			Type:         l.Type,
			MaxValue:     l.MaxValue,
			DefaultValue: l.DefaultValue,
		})
	}
	for _, c := range cluster.PlacementConstraints {
		caps.PlacementConstraints = append(caps.PlacementConstraints, protocol.PlacementConstraint{
			Name:  c.Name,
			Value: c.Value,
		})
	}
	for _, c := range cluster.JobConfig {
		caps.Config = append(caps.Config, protocol.JobConfig{
			Name:      c.Name,
			ValueType: c.ValueType,
			Value:     c.Value,
		})
	}
	return caps
}

// Serve reads one JSON document per line from r and writes a response for
// each to w. It returns nil when r reaches EOF and every in-flight request has
// been answered, ctx.Err() when ctx is cancelled, or the first read or write
// error.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	d.logger.Info("request loop started", "workers", d.cfg.Plugin.ThreadPoolSize)
	defer d.logger.Info("request loop stopped")

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go d.watchHeartbeats(watchCtx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.cfg.Plugin.ThreadPoolSize, 1))

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go readLines(gctx, r, lines, readErr)

loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			g.Go(func() error {
				return d.write(w, d.Handle(line))
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case err := <-readErr:
		return fmt.Errorf("read request: %w", err)
	default:
		return nil
	}
}

// readLines sends every non-blank line of r on lines and closes it at EOF.
func readLines(ctx context.Context, r io.Reader, lines chan<- []byte, errs chan<- error) {
	defer close(lines)

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				errs <- err
			}
			return
		}
	}
}

func (d *Dispatcher) write(w io.Writer, resp protocol.Response) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if err := protocol.EncodeResponse(w, resp); err != nil {
		return fmt.Errorf("write response %d: %w", resp.RequestID(), err)
	}
	return nil
}

// Handle decodes one raw message and returns its response.
func (d *Dispatcher) Handle(data []byte) protocol.Response {
	req, err := d.parser.ParseJSON(data)
	if err != nil {
		return d.rejected(err)
	}
	return d.HandleRequest(req)
}

func (d *Dispatcher) rejected(err error) protocol.Response {
	var perr *protocol.ParseError
	if !errors.As(err, &perr) {
		d.logger.Error("unexpected decode failure", "error", err)
		return protocol.NewErrorResponse(0, protocol.ErrorUnknown, err.Error())
	}

	code := protocol.ErrorInvalidRequest
	if errors.Is(err, protocol.ErrRequestNotSupported) {
		code = protocol.ErrorRequestNotSupported
	}
	return protocol.NewErrorResponse(perr.RequestID, code, perr.Error())
}

// HandleRequest routes a decoded request.
func (d *Dispatcher) HandleRequest(req protocol.Request) protocol.Response {
	logger := log.WithRequest(d.logger, req.Type().String(), req.ID())
	logger.Debug("request received")

	switch r := req.(type) {
	case *protocol.HeartbeatRequest:
		d.lastHeartbeat.Store(time.Now().UnixNano())
		return protocol.NewHeartbeatResponse()

	case *protocol.BootstrapRequest:
		if r.MajorVersion() != protocol.APIVersionMajor {
			logger.Error("launcher API version is not supported",
				"launcher_version", fmt.Sprintf("%d.%d.%d", r.MajorVersion(), r.MinorVersion(), r.PatchNumber()))
			return protocol.NewErrorResponse(r.ID(), protocol.ErrorUnsupportedVersion, fmt.Sprintf(
				"Plugin API version %d.%d.%d does not support launcher API version %d.%d.%d",
				protocol.APIVersionMajor, protocol.APIVersionMinor, protocol.APIVersionPatch,
				r.MajorVersion(), r.MinorVersion(), r.PatchNumber()))
		}
		return protocol.NewBootstrapResponse(r.ID())

	case *protocol.ClusterInfoRequest:
		if d.containers != nil {
			return protocol.NewContainerClusterInfoResponse(r.ID(), *d.containers, d.caps)
		}
		return protocol.NewClusterInfoResponse(r.ID(), d.caps)

	case *protocol.JobStateRequest:
		return d.jobState(r, logger)

	case interface{ JobID() string }:
		return jobNotFound(req.ID(), r.JobID())
	}

	logger.Warn("no handler for request")
	return protocol.NewErrorResponse(req.ID(), protocol.ErrorRequestNotSupported,
		fmt.Sprintf("Request type %s is not supported by this plugin", req.Type()))
}

func (d *Dispatcher) jobState(r *protocol.JobStateRequest, logger *slog.Logger) protocol.Response {
	for _, check := range []struct {
		field string
		err   error
	}{
		{protocol.FieldJobStartTime, timeErr(r.StartTime)},
		{protocol.FieldJobEndTime, timeErr(r.EndTime)},
		{protocol.FieldJobStatuses, statusErr(r)},
	} {
		if check.err != nil {
			logger.Debug("invalid job filter", "field", check.field, "error", check.err)
			return protocol.NewErrorResponse(r.ID(), protocol.ErrorInvalidRequest,
				fmt.Sprintf("Invalid value for %s: %v", check.field, check.err))
		}
	}

	if r.JobID() == allJobs {
		return protocol.NewJobStateResponse(r.ID(), nil)
	}
	return jobNotFound(r.ID(), r.JobID())
}

func timeErr(get func() (time.Time, bool, error)) error {
	_, _, err := get()
	return err
}

func statusErr(r *protocol.JobStateRequest) error {
	_, _, err := r.StatusSet()
	return err
}

func jobNotFound(requestID uint64, jobID string) protocol.Response {
	return protocol.NewErrorResponse(requestID, protocol.ErrorJobNotFound,
		fmt.Sprintf("Job %s could not be found", jobID))
}

// watchHeartbeats warns once per lapse when heartbeats stop arriving.
func (d *Dispatcher) watchHeartbeats(ctx context.Context) {
	interval := d.cfg.Plugin.HeartbeatInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	warned := false
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			since := now.Sub(time.Unix(0, d.lastHeartbeat.Load()))
			if since <= 2*interval {
				warned = false
				continue
			}
			if !warned {
				d.logger.Warn("no heartbeat received from launcher", "since", since.Round(time.Millisecond))
				warned = true
			}
		}
	}
}
