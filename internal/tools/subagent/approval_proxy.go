package subagent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/agentcore/agentcore/internal/tools/policy"
	"github.com/agentcore/agentcore/pkg/models"
)

// Environment variables a sub-agent process consults (spec §6).
const (
	EnvApprovalRequestFD = "APPROVAL_REQUEST_FD"
	EnvApprovalReplyFD   = "APPROVAL_REPLY_FD"
	EnvIsSubAgent        = "IS_SUBAGENT"
)

// ApprovalProxyClient is the sub-agent side of the approval-proxy channel:
// it implements policy.Prompter by writing a line-delimited JSON request to
// APPROVAL_REQUEST_FD and blocking for the matching reply on
// APPROVAL_REPLY_FD. One request is ever in flight at a time per sub-agent
// (spec §3).
type ApprovalProxyClient struct {
	mu     sync.Mutex
	req    *os.File
	reply  *bufio.Reader
	replyF *os.File
}

// NewApprovalProxyClientFromEnv opens the fds named by APPROVAL_REQUEST_FD
// and APPROVAL_REPLY_FD. It returns (nil, false) if this process is not
// running as a sub-agent (the env vars are absent) - the caller should then
// fall back to denying or to its own interactive prompter, never to silently
// allowing.
func NewApprovalProxyClientFromEnv() (*ApprovalProxyClient, bool, error) {
	reqFD, ok1 := os.LookupEnv(EnvApprovalRequestFD)
	replyFD, ok2 := os.LookupEnv(EnvApprovalReplyFD)
	if !ok1 || !ok2 {
		return nil, false, nil
	}
	reqN, err := strconv.Atoi(reqFD)
	if err != nil {
		return nil, false, fmt.Errorf("approval proxy: invalid %s: %w", EnvApprovalRequestFD, err)
	}
	replyN, err := strconv.Atoi(replyFD)
	if err != nil {
		return nil, false, fmt.Errorf("approval proxy: invalid %s: %w", EnvApprovalReplyFD, err)
	}
	reqFile := os.NewFile(uintptr(reqN), "approval-request")
	replyFile := os.NewFile(uintptr(replyN), "approval-reply")
	if reqFile == nil || replyFile == nil {
		return nil, false, fmt.Errorf("approval proxy: fds %d/%d not open", reqN, replyN)
	}
	return &ApprovalProxyClient{req: reqFile, reply: bufio.NewReader(replyFile), replyF: replyFile}, true, nil
}

// Prompt implements policy.Prompter for the sub-agent's own dispatcher.
func (c *ApprovalProxyClient) Prompt(ctx context.Context, sessionID, tool, summary string) (policy.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqLine, err := json.Marshal(models.ApprovalProxyRequest{Tool: tool, Summary: summary, SubAgentID: sessionID})
	if err != nil {
		return policy.DecisionError, err
	}
	reqLine = append(reqLine, '\n')
	if _, err := c.req.Write(reqLine); err != nil {
		// A broken transport is not a user denial (DESIGN.md decision): it
		// is surfaced as a distinct decision so the caller classifies it as
		// an execution failure, not as Denied.
		return policy.DecisionError, fmt.Errorf("approval proxy: write request: %w", err)
	}

	line, err := c.reply.ReadString('\n')
	if err != nil {
		return policy.DecisionError, fmt.Errorf("approval proxy: read reply: %w", err)
	}
	var reply models.ApprovalProxyReply
	if err := json.Unmarshal([]byte(line), &reply); err != nil {
		return policy.DecisionError, fmt.Errorf("approval proxy: malformed reply: %w", err)
	}
	switch reply.Decision {
	case models.ApprovalAllow:
		return policy.DecisionAllow, nil
	case models.ApprovalAllowSession:
		return policy.DecisionAllowSession, nil
	default:
		return policy.DecisionDeny, nil
	}
}

// Close releases the client's fds.
func (c *ApprovalProxyClient) Close() error {
	err1 := c.req.Close()
	err2 := c.replyF.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// ApprovalProxyServer is the parent side: it owns the pipe ends the child
// inherited, reads one request at a time, forwards it to an upstream
// policy.Prompter (the parent's own gate/UI), and writes back the reply.
type ApprovalProxyServer struct {
	requestR *os.File
	replyW   *os.File
	upstream policy.Prompter
	tool     string // unused: Serve forwards each request's own Tool to the upstream prompter
}

func newApprovalProxyServer(requestR, replyW *os.File, upstream policy.Prompter) *ApprovalProxyServer {
	return &ApprovalProxyServer{requestR: requestR, replyW: replyW, upstream: upstream}
}

// Serve blocks reading one approval request at a time from the child and
// answering it via the upstream prompter, until the pipe closes (the child
// exited) or ctx is done. It is meant to run on its own goroutine per
// sub-agent, polled by the manager's event loop integration.
func (s *ApprovalProxyServer) Serve(ctx context.Context) error {
	reader := bufio.NewReader(s.requestR)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		var req models.ApprovalProxyRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			continue
		}
		decision, promptErr := s.upstream.Prompt(ctx, req.SubAgentID, req.Tool, req.Summary)
		replyDecision := models.ApprovalDeny
		switch {
		case promptErr != nil:
			replyDecision = models.ApprovalDeny
		case decision == policy.DecisionAllow:
			replyDecision = models.ApprovalAllow
		case decision == policy.DecisionAllowSession:
			replyDecision = models.ApprovalAllowSession
		}
		out, err := json.Marshal(models.ApprovalProxyReply{Decision: replyDecision})
		if err != nil {
			continue
		}
		out = append(out, '\n')
		if _, err := s.replyW.Write(out); err != nil {
			return err
		}
	}
}

// Close releases the server's fds.
func (s *ApprovalProxyServer) Close() error {
	err1 := s.requestR.Close()
	err2 := s.replyW.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
