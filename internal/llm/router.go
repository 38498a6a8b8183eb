// Package llm provides chat completions behind a static task → model routing
// table, so each analytical task runs on the model suited to it.
package llm

// Route binds one analytical task to a model and endpoint.
type Route struct {
	Model     string
	BaseURL   string
	APIKeyEnv string
	Reason    string
}

// Task names used by the analytical cascade.
const (
	TaskCustomerExtraction = "customer_extraction"
	TaskSentimentAnalysis  = "sentiment_analysis"
	TaskBusinessInsights   = "business_insights"
	TaskSupportAnalysis    = "support_analysis"
	TaskSalesAnalysis      = "sales_analysis"
	TaskSummarization      = "summarization"
	TaskCallClassification = "call_classification"
)

const openRouterBase = "https://openrouter.ai/api/v1"

// taskRoutes is the static routing table. A task absent here falls back to
// DefaultRoute.
var taskRoutes = map[string]Route{
	TaskCustomerExtraction: {
		Model:     "anthropic/claude-3-haiku",
		BaseURL:   openRouterBase,
		APIKeyEnv: "LLM_API_KEY",
		Reason:    "strong structured extraction and name recognition",
	},
	TaskSentimentAnalysis: {
		Model:     "deepseek/deepseek-chat",
		BaseURL:   openRouterBase,
		APIKeyEnv: "LLM_API_KEY",
		Reason:    "cost-effective with good emotional understanding",
	},
	TaskBusinessInsights: {
		Model:     "openai/gpt-4-turbo",
		BaseURL:   openRouterBase,
		APIKeyEnv: "LLM_API_KEY",
		Reason:    "complex business reasoning",
	},
	TaskSupportAnalysis: {
		Model:     "meta-llama/llama-3.1-70b-instruct",
		BaseURL:   openRouterBase,
		APIKeyEnv: "LLM_API_KEY",
		Reason:    "technical problem classification",
	},
	TaskSalesAnalysis: {
		Model:     "anthropic/claude-3-sonnet-20240229",
		BaseURL:   openRouterBase,
		APIKeyEnv: "LLM_API_KEY",
		Reason:    "balances cost and sales insight quality",
	},
	TaskSummarization: {
		Model:     "deepseek/deepseek-chat",
		BaseURL:   openRouterBase,
		APIKeyEnv: "LLM_API_KEY",
		Reason:    "good summaries at low cost",
	},
	TaskCallClassification: {
		Model:     "openai/gpt-3.5-turbo",
		BaseURL:   openRouterBase,
		APIKeyEnv: "LLM_API_KEY",
		Reason:    "reliable classification at reasonable cost",
	},
}

// DefaultRoute applies when a task is not in the table.
var DefaultRoute = Route{
	Model:     "deepseek/deepseek-chat",
	BaseURL:   openRouterBase,
	APIKeyEnv: "LLM_API_KEY",
	Reason:    "default fallback",
}

// RouteForTask resolves a task to its route.
func RouteForTask(task string) Route {
	if r, ok := taskRoutes[task]; ok {
		return r
	}
	return DefaultRoute
}

// Tasks lists the routed task names.
func Tasks() []string {
	out := make([]string, 0, len(taskRoutes))
	for t := range taskRoutes {
		out = append(out, t)
	}
	return out
}
