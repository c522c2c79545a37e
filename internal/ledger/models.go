package ledger

// StepStatus is the lifecycle state shared by steps and tasks.
// A step leaves Pending exactly once, to Completed or Failed.
type StepStatus string

const (
	StatusPending   StepStatus = "Pending"
	StatusCompleted StepStatus = "Completed"
	StatusFailed    StepStatus = "Failed"
)

// Terminal reports whether the status will never change again.
func (s StepStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Step is one unit of pipeline progress in the external ledger.
// Artifacts are free-form (URLs or JSON blobs) produced by the
// predecessor step; Completed output is immutable once written.
type Step struct {
	StepID          string     `json:"step_id"`
	TaskID          string     `json:"task_id"`
	PredecessorID   string     `json:"predecessor_id,omitempty"`
	Name            string     `json:"name"`
	Status          StepStatus `json:"status"`
	InputQuery      string     `json:"input_query,omitempty"`
	InputArtifacts  []string   `json:"input_artifacts,omitempty"`
	Output          string     `json:"output,omitempty"`
	OutputArtifacts []string   `json:"output_artifacts,omitempty"`
	Cost            int64      `json:"cost,omitempty"`
	IsLast          bool       `json:"is_last,omitempty"`
}

// StepPatch carries the mutable fields of a step update. Pointer
// fields are omitted from the wire payload when nil.
type StepPatch struct {
	Status          StepStatus `json:"status"`
	Output          string     `json:"output,omitempty"`
	OutputArtifacts []string   `json:"output_artifacts,omitempty"`
	Cost            *int64     `json:"cost,omitempty"`
}

// Task is one unit of work delegated to a remote agent. Output
// artifacts are always an ordered slice, even for a single item.
type Task struct {
	TaskID          string     `json:"task_id"`
	AgentDID        string     `json:"agent_did"`
	Status          StepStatus `json:"status"`
	Output          string     `json:"output,omitempty"`
	OutputArtifacts []string   `json:"output_artifacts,omitempty"`
}

// TaskPayload is the request body for dispatching a remote task.
type TaskPayload struct {
	Query            string         `json:"query"`
	Artifacts        []string       `json:"artifacts,omitempty"`
	AdditionalParams map[string]any `json:"additional_params,omitempty"`
}

// TaskAck is the synchronous acknowledgement of a task dispatch.
type TaskAck struct {
	Status int   `json:"status"`
	Task   *Task `json:"data"`
}

// Accepted reports whether the dispatch was acknowledged as created.
func (a *TaskAck) Accepted() bool {
	return a.Status >= 200 && a.Status < 300
}

// AccessConfig is the credential needed to call a specific agent.
type AccessConfig struct {
	AccessToken string `json:"access_token"`
	ProxyURL    string `json:"neverminedProxyUri,omitempty"`
}

// Balance is the result of a plan balance query. Owners are exempt
// from the minimum-balance requirement.
type Balance struct {
	Credits int64 `json:"balance"`
	IsOwner bool  `json:"is_owner"`
}

// OrderResult reports the outcome of a credit purchase.
type OrderResult struct {
	Success     bool   `json:"success"`
	AgreementID string `json:"agreement_id,omitempty"`
}

// DDO is the registry document describing a payment plan's terms.
// Operator and token-id fields are optional in the registry; absent
// values stay empty rather than defaulting.
type DDO struct {
	PlanID  string        `json:"plan_id"`
	Price   PriceConfig   `json:"price"`
	Credits CreditsConfig `json:"credits"`
}

// PriceConfig holds the settlement-token terms of a plan.
type PriceConfig struct {
	TokenAddress   string `json:"token_address"`
	TokenSymbol    string `json:"token_symbol"`
	Amount         string `json:"amount"` // big integer, token smallest units
	ReceiverWallet string `json:"receiver_wallet"`
}

// CreditsConfig holds the fungible-NFT credit accounting terms.
type CreditsConfig struct {
	ContractAddress string `json:"contract_address"`
	TokenID         string `json:"token_id,omitempty"`
	MintOperator    string `json:"mint_operator,omitempty"`
	BurnOperator    string `json:"burn_operator,omitempty"`
}

// Event is a ledger notification. Delivery is at-least-once; the
// consumer is responsible for treating duplicates as no-ops.
type Event struct {
	Type   string     `json:"type"`
	StepID string     `json:"step_id,omitempty"`
	TaskID string     `json:"task_id,omitempty"`
	Status StepStatus `json:"status,omitempty"`
}

// Event types delivered by the ledger subscription.
const (
	EventStepUpdated = "step-updated"
	EventTaskUpdated = "task-updated"
)

// SignalHandler receives the asynchronous terminal status of a task.
type SignalHandler func(taskID string, status StepStatus)
