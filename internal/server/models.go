package server

import "github.com/procurelens/marketintel/internal/research"

// HTTPError is the JSON error envelope produced by the error handler.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// ResearchSubmitRequest starts an asynchronous research run.
type ResearchSubmitRequest struct {
	Workspace  string   `json:"workspace"`
	Market     string   `json:"market"`
	Categories []string `json:"categories"`
	Depth      string   `json:"depth,omitempty"`
	TimeWindow string   `json:"time_window,omitempty"`
}

type ResearchSubmitResponse struct {
	RunID string `json:"run_id"`
	State string `json:"state"`
}

// TopicSuggestRequest asks the planner for refined research topic options.
type TopicSuggestRequest struct {
	Input  string `json:"input"`
	Market string `json:"market"`
}

type TopicSuggestResponse struct {
	Options []string `json:"options"`
}

// WatchlistCreateRequest registers a recurring research run.
type WatchlistCreateRequest struct {
	Workspace  string   `json:"workspace"`
	Market     string   `json:"market"`
	Categories []string `json:"categories"`
	Depth      string   `json:"depth,omitempty"`
	TimeWindow string   `json:"time_window,omitempty"`
	CronSpec   string   `json:"cron_spec"`
}

type WatchlistCreateResponse struct {
	ID string `json:"id"`
}

type WatchlistItem struct {
	ID         string   `json:"id"`
	Workspace  string   `json:"workspace"`
	Market     string   `json:"market"`
	Categories []string `json:"categories"`
	Depth      string   `json:"depth"`
	TimeWindow string   `json:"time_window"`
	CronSpec   string   `json:"cron_spec"`
	LastRunAt  string   `json:"last_run_at,omitempty"`
}

func (r ResearchSubmitRequest) toResearchRequest() research.ResearchRequest {
	return research.ResearchRequest{
		Workspace:  r.Workspace,
		Market:     r.Market,
		Categories: r.Categories,
		Depth:      research.Depth(r.Depth),
		TimeWindow: r.TimeWindow,
	}
}
