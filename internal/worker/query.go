package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/campaigner-ai/engine/internal/trace"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
)

// Querier runs a read-only SQL query and returns the rows rendered as
// text. Implementations enforce tenant scoping at the connection level.
type Querier interface {
	Query(ctx context.Context, sql string) (string, error)
}

// queryAllowedTables is the closed set of tables the query worker may
// read. Anything else in a generated statement is rejected before it
// reaches the database.
var queryAllowedTables = []string{
	"agencies",
	"campaigners",
	"digital_assets",
	"connections",
}

// QueryWorker answers basic account questions against the tenant
// database. Analytics questions it cannot answer from the database are
// handed off through the delegator.
type QueryWorker struct {
	provider  llm.Provider
	querier   Querier
	delegator Delegator
	tracer    *trace.Tracer
	logger    *logging.Logger
}

func NewQueryWorker(provider llm.Provider, querier Querier, delegator Delegator, tracer *trace.Tracer) *QueryWorker {
	return &QueryWorker{
		provider:  provider,
		querier:   querier,
		delegator: delegator,
		tracer:    tracer,
		logger:    logging.New().WithComponent("query-worker"),
	}
}

const queryToolName = "query_database"
const delegateToolName = "delegate_task"

func (w *QueryWorker) tools() []llm.ToolDef {
	defs := []llm.ToolDef{
		{
			Name:        queryToolName,
			Description: "Run a read-only SQL SELECT against the account database. Allowed tables: " + strings.Join(queryAllowedTables, ", ") + ".",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"sql": map[string]interface{}{
						"type":        "string",
						"description": "A single SELECT statement.",
					},
				},
				"required": []string{"sql"},
			},
		},
	}
	if w.delegator != nil {
		defs = append(defs, llm.ToolDef{
			Name:        delegateToolName,
			Description: "Delegate an analytics question to a specialist worker. Use for questions about campaign performance data.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"agent": map[string]interface{}{
						"type":        "string",
						"description": "Worker to delegate to, e.g. single_analytics_agent.",
					},
					"message": map[string]interface{}{
						"type":        "string",
						"description": "The question to forward.",
					},
				},
				"required": []string{"agent", "message"},
			},
		})
	}
	return defs
}

func (w *QueryWorker) systemPrompt(task Task) string {
	return fmt.Sprintf(`You are an assistant for a marketing agency platform.
You answer questions about the account itself: the agency, its campaigners, connected
advertising platforms, and asset metadata. Use %s to look things up.
Scope every query to customer_id = %d.

For questions about campaign performance metrics, use %s instead of the database.

Answer in %s.`, queryToolName, task.CustomerID, delegateToolName, responseLanguage(task))
}

func (w *QueryWorker) Execute(ctx context.Context, task Task) (Result, error) {
	messages := []llm.Message{
		{Role: "system", Content: w.systemPrompt(task)},
		{Role: "user", Content: task.Query},
	}
	toolDefs := w.tools()

	var lastContent string
	for i := 0; i < maxToolIterations; i++ {
		resp, err := w.provider.Chat(ctx, llm.ChatRequest{Messages: messages, Tools: toolDefs})
		if err != nil {
			return Result{}, fmt.Errorf("LLM error: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			return Result{Status: StatusCompleted, Result: resp.Content}, nil
		}
		if resp.Content != "" {
			lastContent = resp.Content
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			output := w.runTool(ctx, task, tc)
			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    output,
			})
		}
	}

	if lastContent == "" {
		lastContent = "I could not complete the lookup within the step limit."
	}
	return Result{Status: StatusCompleted, Result: lastContent}, nil
}

func (w *QueryWorker) runTool(ctx context.Context, task Task, tc llm.ToolCallResponse) string {
	switch tc.Name {
	case queryToolName:
		stmt, _ := tc.Args["sql"].(string)
		out, err := w.runQuery(ctx, task, stmt)
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return out
	case delegateToolName:
		if w.delegator == nil {
			return "Error: delegation is not available"
		}
		agent, _ := tc.Args["agent"].(string)
		message, _ := tc.Args["message"].(string)
		return w.delegator.Delegate(ctx, task, agent, message)
	default:
		return fmt.Sprintf("Error: unknown tool %q", tc.Name)
	}
}

func (w *QueryWorker) runQuery(ctx context.Context, task Task, stmt string) (string, error) {
	if err := ValidateQuery(stmt); err != nil {
		return "", err
	}
	start := time.Now()
	out, err := w.querier.Query(ctx, stmt)
	if err != nil {
		w.logger.Warn("query failed", map[string]interface{}{"error": err.Error()})
		w.tracer.ToolCall(task.ThreadID, task.DelegationLevel, queryToolName,
			map[string]interface{}{"sql": stmt}, time.Since(start), false,
			fmt.Sprintf("%T", err), err.Error())
		return "", err
	}
	w.tracer.ToolCall(task.ThreadID, task.DelegationLevel, queryToolName,
		map[string]interface{}{"sql": stmt}, time.Since(start), true, "", "")
	return out, nil
}

// ValidateQuery accepts only single SELECT statements touching allowed
// tables. It is a guardrail, not a SQL parser: generated statements
// that slip past it still run under a read-only role.
func ValidateQuery(stmt string) error {
	trimmed := strings.TrimSpace(stmt)
	if trimmed == "" {
		return fmt.Errorf("empty query")
	}
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "select") {
		return fmt.Errorf("only SELECT statements are allowed")
	}
	if strings.Contains(strings.TrimSuffix(trimmed, ";"), ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}
	for _, kw := range []string{"insert ", "update ", "delete ", "drop ", "alter ", "truncate ", "grant "} {
		if strings.Contains(lower, kw) {
			return fmt.Errorf("statement contains forbidden keyword %q", strings.TrimSpace(kw))
		}
	}
	if idx := strings.Index(lower, "from "); idx >= 0 {
		rest := lower[idx+len("from "):]
		table := strings.FieldsFunc(rest, func(r rune) bool {
			return r == ' ' || r == '\n' || r == '\t' || r == ',' || r == ';' || r == '('
		})
		if len(table) > 0 && !allowedTable(table[0]) {
			return fmt.Errorf("table %q is not allowed", table[0])
		}
	}
	return nil
}

func allowedTable(name string) bool {
	name = strings.TrimPrefix(name, "public.")
	for _, t := range queryAllowedTables {
		if name == t {
			return true
		}
	}
	return false
}

// SQLQuerier adapts a database handle to the Querier interface,
// rendering rows as a compact JSON array.
type SQLQuerier struct {
	DB *sql.DB
}

func (q *SQLQuerier) Query(ctx context.Context, sqlText string) (string, error) {
	rows, err := q.DB.QueryContext(ctx, sqlText)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var out []map[string]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "no rows", nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
