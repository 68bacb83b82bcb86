package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/datapad/notebook-agent/internal/domain"
	"github.com/datapad/notebook-agent/internal/schema"
)

const (
	jsonRPCVersion = "2.0"
	maxMessageSize = 12 * 1024 * 1024
)

// ErrKernelUnavailable is returned when the worker process is gone.
var ErrKernelUnavailable = errors.New("sandbox kernel unavailable")

// Kernel is a Runner backed by one Python worker subprocess speaking
// JSON-RPC over stdin/stdout. The worker owns the persistent namespace and
// the working-directory handling around each execution.
type Kernel struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending map[int]chan rpcResult
	nextID  int
	closed  bool

	logger      *zap.Logger
	workerPath  string
	dataDir     string
	outputLimit int
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResult struct {
	result json.RawMessage
	err    *rpcError
}

// KernelOptions configures a Kernel.
type KernelOptions struct {
	// WorkerPath overrides worker script discovery.
	WorkerPath string
	// DataDir is the directory snippets run under so relative file loads
	// resolve. Empty leaves the worker's working directory alone.
	DataDir string
	// OutputLimit caps captured output; zero means DefaultOutputLimit.
	OutputLimit int
	Logger      *zap.Logger
}

// NewKernel creates a kernel. The worker process starts lazily on the first
// call.
func NewKernel(opts KernelOptions) *Kernel {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kernel{
		pending:     make(map[int]chan rpcResult),
		nextID:      1,
		logger:      logger,
		workerPath:  opts.WorkerPath,
		dataDir:     opts.DataDir,
		outputLimit: opts.OutputLimit,
	}
}

var _ Runner = (*Kernel)(nil)

// Execute runs the snippet in the worker namespace.
func (k *Kernel) Execute(ctx context.Context, code string) (domain.ExecutionResult, error) {
	var out struct {
		Output string `json:"output"`
		Error  string `json:"error"`
	}
	params := map[string]any{"code": code, "workdir": k.dataDir}
	if err := k.call(ctx, "Execute", params, &out); err != nil {
		return domain.ExecutionResult{}, err
	}

	result := domain.ExecutionResult{
		Status: domain.StatusOK,
		Output: Truncate(out.Output, k.outputLimit),
	}
	if out.Error != "" {
		result.Status = domain.StatusError
		result.Error = out.Error
	}
	return result, nil
}

// Tables lists the dataframe-like objects in the worker namespace.
func (k *Kernel) Tables(ctx context.Context) ([]schema.Table, error) {
	var out struct {
		Tables []schema.Table `json:"tables"`
	}
	if err := k.call(ctx, "ListTables", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out.Tables, nil
}

// Ping verifies the worker is responsive.
func (k *Kernel) Ping(ctx context.Context) error {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := k.call(ctx, "Ping", map[string]any{}, &out); err != nil {
		return err
	}
	if !out.OK {
		return errors.New("sandbox worker ping returned not ok")
	}
	return nil
}

// Close kills the worker process.
func (k *Kernel) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	cmd := k.cmd
	k.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	return nil
}

func (k *Kernel) call(ctx context.Context, method string, params any, result any) error {
	if err := k.ensureRunning(); err != nil {
		return err
	}

	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return ErrKernelUnavailable
	}
	id := k.nextID
	k.nextID++
	respCh := make(chan rpcResult, 1)
	k.pending[id] = respCh
	stdin := k.stdin
	k.mu.Unlock()

	if stdin == nil {
		k.removePending(id)
		return ErrKernelUnavailable
	}

	payload, err := json.Marshal(rpcRequest{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: params})
	if err != nil {
		k.removePending(id)
		return err
	}
	if _, err := stdin.Write(append(payload, '\n')); err != nil {
		k.removePending(id)
		return ErrKernelUnavailable
	}

	select {
	case resp := <-respCh:
		if resp.err != nil {
			return fmt.Errorf("sandbox worker: %s", resp.err.Message)
		}
		if result != nil && len(resp.result) > 0 {
			if err := json.Unmarshal(resp.result, result); err != nil {
				return err
			}
		}
		return nil
	case <-ctx.Done():
		k.removePending(id)
		return ctx.Err()
	}
}

func (k *Kernel) ensureRunning() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrKernelUnavailable
	}
	if k.cmd != nil {
		return nil
	}
	return k.startProcessLocked()
}

func (k *Kernel) startProcessLocked() error {
	cmdPath, args, err := resolveWorkerCommand(k.workerPath)
	if err != nil {
		return err
	}
	cmd := exec.Command(cmdPath, args...)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	k.cmd = cmd
	k.stdin = stdin

	k.logger.Debug("sandbox.worker_started", zap.String("cmd", cmdPath))

	go k.readLoop(cmd, bufio.NewReader(stdout))
	go k.stderrLoop(stderr)
	go func() {
		_ = cmd.Wait()
		k.handleProcessExit(cmd)
	}()
	return nil
}

func (k *Kernel) readLoop(cmd *exec.Cmd, reader *bufio.Reader) {
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			k.handleProcessExit(cmd)
			return
		}
		if len(line) == 0 {
			continue
		}
		if len(line) > maxMessageSize {
			// A line this long means the worker broke protocol. Skipping it
			// would leave the matching call waiting forever, so treat it as
			// a worker failure and fail every pending call.
			k.logger.Warn("sandbox.message_too_large", zap.Int("bytes", len(line)))
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			k.handleProcessExit(cmd)
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			k.logger.Warn("sandbox.invalid_json", zap.Error(err))
			continue
		}
		if resp.ID == 0 {
			continue
		}
		k.mu.Lock()
		ch := k.pending[resp.ID]
		delete(k.pending, resp.ID)
		k.mu.Unlock()
		if ch != nil {
			ch <- rpcResult{result: resp.Result, err: resp.Error}
			close(ch)
		}
	}
}

func (k *Kernel) stderrLoop(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			k.logger.Warn("sandbox.worker_stderr", zap.String("message", line))
		}
	}
}

func (k *Kernel) handleProcessExit(cmd *exec.Cmd) {
	k.mu.Lock()
	if k.cmd != cmd {
		k.mu.Unlock()
		return
	}
	k.cmd = nil
	k.stdin = nil
	pending := k.pending
	k.pending = make(map[int]chan rpcResult)
	k.mu.Unlock()

	for _, ch := range pending {
		ch <- rpcResult{err: &rpcError{Message: "worker exited"}}
		close(ch)
	}
}

func (k *Kernel) removePending(id int) {
	k.mu.Lock()
	delete(k.pending, id)
	k.mu.Unlock()
}

func resolveWorkerCommand(override string) (string, []string, error) {
	path := strings.TrimSpace(override)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("PYWORKER_PATH"))
	}
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			candidate := filepath.Join(cwd, "tools", "pyworker", "worker.py")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}
	if path == "" {
		if exe, err := os.Executable(); err == nil {
			candidate := filepath.Clean(filepath.Join(filepath.Dir(exe), "..", "tools", "pyworker", "worker.py"))
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}
	if path == "" {
		return "", nil, errors.New("sandbox worker script not found")
	}

	python, err := resolvePython()
	if err != nil {
		return "", nil, err
	}
	return python, []string{"-u", path}, nil
}

func resolvePython() (string, error) {
	if path, err := exec.LookPath("python3"); err == nil {
		return path, nil
	}
	if path, err := exec.LookPath("python"); err == nil {
		return path, nil
	}
	return "", errors.New("python not found in PATH")
}
