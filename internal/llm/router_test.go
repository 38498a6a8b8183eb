package llm

import "testing"

func TestRouteForTask(t *testing.T) {
	r := RouteForTask(TaskSentimentAnalysis)
	if r.Model != "deepseek/deepseek-chat" {
		t.Errorf("sentiment route = %q", r.Model)
	}

	r = RouteForTask(TaskBusinessInsights)
	if r.Model != "openai/gpt-4-turbo" {
		t.Errorf("insights route = %q", r.Model)
	}

	// Unknown tasks fall back to the default.
	r = RouteForTask("nonexistent_task")
	if r != DefaultRoute {
		t.Errorf("unknown task route = %+v, want default", r)
	}
}

func TestAllRoutesHaveModelAndEndpoint(t *testing.T) {
	for _, task := range Tasks() {
		r := RouteForTask(task)
		if r.Model == "" {
			t.Errorf("task %q has no model", task)
		}
		if r.BaseURL == "" {
			t.Errorf("task %q has no endpoint", task)
		}
		if r.APIKeyEnv == "" {
			t.Errorf("task %q has no key env", task)
		}
	}
}
