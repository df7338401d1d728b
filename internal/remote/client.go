package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultPollInterval = 2 * time.Second

// Client talks to the workflow engine's admin API over HTTP.
type Client struct {
	client       *resty.Client
	project      string
	domain       string
	pollInterval time.Duration
}

type ClientConfig struct {
	BaseURL      string
	Project      string
	Domain       string
	PollInterval time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return &Client{
		client:       resty.New().SetBaseURL(cfg.BaseURL),
		project:      cfg.Project,
		domain:       cfg.Domain,
		pollInterval: interval,
	}
}

func (c *Client) Project() string { return c.project }

func (c *Client) Domain() string { return c.domain }

func (c *Client) FetchWorkflow(ctx context.Context, name, version string) (WorkflowRef, error) {
	var wf WorkflowRef

	req := c.client.R().
		SetContext(ctx).
		SetResult(&wf).
		SetQueryParam("project", c.project).
		SetQueryParam("domain", c.domain)
	if version != "" {
		req.SetQueryParam("version", version)
	}

	res, err := req.Get("/api/v1/workflows/" + name)
	if err != nil {
		return WorkflowRef{}, fmt.Errorf("error fetching workflow %s: %w", name, err)
	}
	if res.IsError() {
		return WorkflowRef{}, fmt.Errorf("error fetching workflow %s: status %d: %s", name, res.StatusCode(), res.String())
	}

	return wf, nil
}

type launchRequest struct {
	Workflow WorkflowRef    `json:"workflow"`
	Inputs   map[string]any `json:"inputs"`
}

func (c *Client) Execute(ctx context.Context, wf WorkflowRef, inputs map[string]any, wait bool) (*Execution, error) {
	var exec Execution

	res, err := c.client.R().
		SetContext(ctx).
		SetBody(launchRequest{Workflow: wf, Inputs: inputs}).
		SetResult(&exec).
		Post("/api/v1/executions")
	if err != nil {
		return nil, fmt.Errorf("error launching execution of %s: %w", wf.Name, err)
	}
	if res.StatusCode() != http.StatusOK && res.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("error launching execution of %s: status %d: %s", wf.Name, res.StatusCode(), res.String())
	}

	slog.Info("launched workflow execution", "workflow", wf.Name, "execution_id", exec.Id, "wait", wait)

	if !wait {
		return &exec, nil
	}

	if err := c.waitForCompletion(ctx, &exec); err != nil {
		return nil, err
	}

	if exec.Phase != PhaseSucceeded {
		return nil, fmt.Errorf("execution %s of %s ended in phase %s: %s: %w", exec.Id, wf.Name, exec.Phase, exec.ErrorMessage, ErrExecutionFailed)
	}

	return &exec, nil
}

func (c *Client) waitForCompletion(ctx context.Context, exec *Execution) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for !IsTerminalPhase(exec.Phase) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting on execution %s: %w", exec.Id, ctx.Err())
		case <-ticker.C:
		}

		if err := c.Sync(ctx, exec); err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) ListExecutions(ctx context.Context, project, domain string, limit int, filters []Filter, sort Sort) ([]*Execution, error) {
	var executions []*Execution

	req := c.client.R().
		SetContext(ctx).
		SetResult(&executions).
		SetQueryParam("project", project).
		SetQueryParam("domain", domain).
		SetQueryParam("limit", strconv.Itoa(limit))
	for _, f := range filters {
		req.SetQueryParam("eq."+f.Field, f.Value)
	}
	if sort.Key != "" {
		req.SetQueryParam("sort_by", sort.Key).SetQueryParam("sort_dir", string(sort.Direction))
	}

	res, err := req.Get("/api/v1/executions")
	if err != nil {
		return nil, fmt.Errorf("error listing executions: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("error listing executions: status %d: %s", res.StatusCode(), res.String())
	}

	return executions, nil
}

// Sync refreshes the execution's phase and outputs from the engine.
func (c *Client) Sync(ctx context.Context, exec *Execution) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(exec).
		Get("/api/v1/executions/" + exec.Id)
	if err != nil {
		return fmt.Errorf("error syncing execution %s: %w", exec.Id, err)
	}
	if res.IsError() {
		return fmt.Errorf("error syncing execution %s: status %d: %s", exec.Id, res.StatusCode(), res.String())
	}

	return nil
}
