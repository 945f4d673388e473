// Package rpc serves purge operations as line-delimited JSON-RPC over a
// byte stream, one request object per input line and one response per
// output line.
package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/logger"
	"github.com/ChrisB0-2/purge/internal/report"
)

// maxLineSize bounds a single request line. Cleanup requests carry whole
// item lists so the limit is generous.
const maxLineSize = 64 << 20

// Backend is what the server exposes. *orchestrator.Orchestrator satisfies it.
type Backend interface {
	ScanSystem(ctx context.Context, names []string) core.ScanReport
	Cleanup(ctx context.Context, items []core.Candidate, dryRun bool) core.CleanupReport
	ScannerInfo() []core.ScannerInfo
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Server dispatches requests to a Backend and keeps the last scan report.
type Server struct {
	backend   Backend
	log       logger.Logger
	reportDir string
	maxLine   int
	handlers  map[string]handlerFunc

	mu   sync.RWMutex
	last *core.ScanReport

	requests atomic.Int64
	failures atomic.Int64
}

// NewServer creates a server with no-op logging.
func NewServer(b Backend) *Server {
	return NewServerWithLogger(b, nil)
}

// NewServerWithLogger creates a server with the given logger.
func NewServerWithLogger(b Backend, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{backend: b, log: log, reportDir: ".", maxLine: maxLineSize}
	s.handlers = map[string]handlerFunc{
		"ping":             s.handlePing,
		"scan":             s.handleScan,
		"cleanup":          s.handleCleanup,
		"get_scanners":     s.handleGetScanners,
		"get_scan_results": s.handleGetScanResults,
		"save_scan_report": s.handleSaveScanReport,
	}
	return s
}

// SetReportDir sets where save_scan_report writes when no path is given.
func (s *Server) SetReportDir(dir string) {
	if dir != "" {
		s.reportDir = dir
	}
}

// Methods lists the supported method names.
func (s *Server) Methods() []string {
	return []string{"ping", "scan", "cleanup", "get_scanners", "get_scan_results", "save_scan_report"}
}

// Serve reads requests from r and writes responses to w until r is
// exhausted or ctx is canceled. Requests are handled one at a time in
// arrival order; canceling ctx also cancels the request in flight.
// It returns nil at end of input.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan inbound)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		br := bufio.NewReaderSize(r, 64*1024)
		for {
			line, tooLong, err := readLine(br, s.maxLine)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
			select {
			case lines <- inbound{line: line, tooLong: tooLong}:
			case <-ctx.Done():
				return
			}
		}
	}()

	bw := bufio.NewWriter(w)
	s.log.Info("rpc server listening")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("rpc server stopping", logger.F("reason", ctx.Err().Error()))
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				var err error
				select {
				case err = <-readErr:
				default:
				}
				if err != nil {
					return fmt.Errorf("read request: %w", err)
				}
				s.log.Info("rpc input closed")
				return nil
			}
			var resp Response
			switch {
			case line.tooLong:
				s.failures.Add(1)
				s.log.Warn("rpc request line too long", logger.F("limit", s.maxLine))
				resp = errorResponse(nil, CodeParseError, fmt.Sprintf("Parse error: request line exceeds %d bytes", s.maxLine))
			case len(bytes.TrimSpace(line.line)) == 0:
				continue
			default:
				resp = s.HandleLine(ctx, line.line)
			}
			if err := writeResponse(bw, resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
}

type inbound struct {
	line    []byte
	tooLong bool
}

// readLine returns the next newline-terminated line without its line
// ending. A line longer than limit is consumed in full and reported as
// tooLong with no content, so the stream stays in sync. The final line
// may lack a newline. io.EOF is returned only when no bytes remain.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	read := 0
	for {
		chunk, rerr := br.ReadSlice('\n')
		read += len(chunk)
		if !tooLong {
			if len(line)+len(chunk) > limit+2 {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case errors.Is(rerr, bufio.ErrBufferFull):
			continue
		case errors.Is(rerr, io.EOF) && read > 0:
		case rerr != nil:
			return nil, false, rerr
		}
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) > limit {
			return nil, true, nil
		}
		return line, tooLong, nil
	}
}

func writeResponse(bw *bufio.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := bw.Write(append(data, '\n')); err != nil {
		return err
	}
	return bw.Flush()
}

// HandleLine decodes one request line and returns its response.
func (s *Server) HandleLine(ctx context.Context, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.failures.Add(1)
		s.log.Warn("rpc parse error", logger.F("error", err.Error()))
		return errorResponse(nil, CodeParseError, "Parse error: "+err.Error())
	}
	return s.Handle(ctx, req)
}

// Handle dispatches req. A panicking handler yields an internal error.
func (s *Server) Handle(ctx context.Context, req Request) (resp Response) {
	s.requests.Add(1)
	start := time.Now()
	log := s.log.WithFields(logger.F("method", req.Method), logger.F("id", string(normalizeID(req.ID))))

	defer func() {
		if p := recover(); p != nil {
			log.Error("rpc handler panicked", logger.F("panic", fmt.Sprint(p)))
			resp = errorResponse(req.ID, CodeInternalError, fmt.Sprintf("Internal error: %v", p))
		}
		if resp.Error != nil {
			s.failures.Add(1)
		}
		log.Debug("rpc request handled", logger.F("duration_ms", time.Since(start).Milliseconds()), logger.F("ok", resp.Error == nil))
	}()

	h, ok := s.handlers[req.Method]
	if !ok {
		log.Warn("rpc method not found")
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found")
	}

	result, err := h(ctx, req.Params)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			log.Warn("rpc request rejected", logger.F("code", rpcErr.Code), logger.F("error", rpcErr.Message))
			return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
		}
		log.Error("rpc request failed", logger.F("error", err.Error()))
		return errorResponse(req.ID, CodeInternalError, err.Error())
	}

	resp, err = resultResponse(req.ID, result)
	if err != nil {
		log.Error("rpc result encoding failed", logger.F("error", err.Error()))
		return errorResponse(req.ID, CodeInternalError, err.Error())
	}
	return resp
}

// LastReport returns the most recent scan report, if any.
func (s *Server) LastReport() (core.ScanReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return core.ScanReport{}, false
	}
	return *s.last, true
}

// Status summarizes server activity for health endpoints.
func (s *Server) Status() map[string]any {
	st := map[string]any{
		"rpc_requests": s.requests.Load(),
		"rpc_errors":   s.failures.Load(),
	}
	if r, ok := s.LastReport(); ok {
		st["last_scan_id"] = r.ID
		st["last_scan_at"] = r.Timestamp.Format(time.RFC3339)
		st["last_scan_items"] = r.TotalFound
	}
	return st
}

func (s *Server) handlePing(context.Context, json.RawMessage) (any, error) {
	return map[string]string{"status": "ok", "message": "pong"}, nil
}

type scanParams struct {
	ScannerNames []string `json:"scanner_names"`
}

func (s *Server) handleScan(ctx context.Context, raw json.RawMessage) (any, error) {
	var p scanParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	rep := s.backend.ScanSystem(ctx, p.ScannerNames)

	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
	return rep, nil
}

type cleanupParams struct {
	Items  []json.RawMessage `json:"items"`
	DryRun bool              `json:"dry_run"`
}

func (s *Server) handleCleanup(ctx context.Context, raw json.RawMessage) (any, error) {
	var p cleanupParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	// Items are rebuilt from their plain records; one bad record rejects
	// the whole request before anything is touched.
	items := make([]core.Candidate, 0, len(p.Items))
	for i, rec := range p.Items {
		var c core.Candidate
		if err := json.Unmarshal(rec, &c); err != nil {
			return nil, invalidParams("item %d: %v", i, err)
		}
		items = append(items, c)
	}

	return s.backend.Cleanup(ctx, items, p.DryRun), nil
}

func (s *Server) handleGetScanners(context.Context, json.RawMessage) (any, error) {
	info := s.backend.ScannerInfo()
	if info == nil {
		info = []core.ScannerInfo{}
	}
	return info, nil
}

func (s *Server) handleGetScanResults(context.Context, json.RawMessage) (any, error) {
	if r, ok := s.LastReport(); ok {
		return r, nil
	}
	return nil, nil
}

type saveParams struct {
	Path string `json:"path"`
}

func (s *Server) handleSaveScanReport(_ context.Context, raw json.RawMessage) (any, error) {
	var p saveParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	r, ok := s.LastReport()
	if !ok {
		return nil, &Error{Code: CodeInternalError, Message: "no scan results to save"}
	}

	path := p.Path
	if path == "" {
		path = filepath.Join(s.reportDir, report.DefaultFile)
	}
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		path = abs
	}

	written, err := report.Save(path, r)
	if err != nil {
		return nil, err
	}
	s.log.Info("scan report saved", logger.F("path", written), logger.F("scan_id", r.ID))
	return map[string]string{"path": written}, nil
}
