package models

import (
	"time"

	corev1 "k8s.io/api/core/v1"
)

// PodReference identifies the pod a diagnosis targets.
type PodReference struct {
	Namespace string `json:"namespace"`
	PodName   string `json:"pod_name"`
}

func (r PodReference) String() string {
	return r.Namespace + "/" + r.PodName
}

// RawClusterData is the unprocessed output of a cluster fetch: the pod
// description plus whatever events and log bytes could be read. Events and
// LogTail may be empty when those reads failed; Pod is always set on a
// successful fetch.
type RawClusterData struct {
	Pod     *corev1.Pod
	Events  []corev1.Event
	LogTail []byte
}

// ContainerStateKind is the closed set of container states.
type ContainerStateKind string

const (
	ContainerWaiting    ContainerStateKind = "waiting"
	ContainerRunning    ContainerStateKind = "running"
	ContainerTerminated ContainerStateKind = "terminated"
)

// ContainerState summarizes one container's runtime state.
// Reason is set for waiting and terminated states; ExitCode only for
// terminated ones.
type ContainerState struct {
	Name                  string             `json:"name"`
	State                 ContainerStateKind `json:"state"`
	Reason                string             `json:"reason,omitempty"`
	ExitCode              int32              `json:"exit_code,omitempty"`
	RestartCount          int32              `json:"restart_count"`
	LastTerminationReason string             `json:"last_termination_reason,omitempty"`
}

// PodCondition is a flattened pod status condition.
type PodCondition struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// EventInfo is a single cluster event attributed to the pod.
type EventInfo struct {
	Type          string    `json:"type"`
	Reason        string    `json:"reason"`
	Message       string    `json:"message"`
	Count         int32     `json:"count"`
	LastTimestamp time.Time `json:"last_timestamp"`
}

// LogTail holds the most recent whole lines of the primary container's log.
// Truncated is set when older lines were dropped to fit the byte budget.
type LogTail struct {
	Lines     []string `json:"lines"`
	Truncated bool     `json:"truncated"`
}

// PodDiagnostic is the evidence bundle threaded through the pipeline.
// It is immutable once built: every field is populated (empty slice rather
// than nil) so rendering never branches on missing data.
type PodDiagnostic struct {
	Ref             PodReference     `json:"ref"`
	Phase           string           `json:"phase"`
	Conditions      []PodCondition   `json:"conditions"`
	ContainerStates []ContainerState `json:"container_states"`
	Events          []EventInfo      `json:"events"`
	LogTail         LogTail          `json:"log_tail"`
}

// RecommendationRequest pairs a diagnostic with its rendered prompt.
type RecommendationRequest struct {
	Diagnostic PodDiagnostic `json:"diagnostic"`
	Prompt     string        `json:"prompt"`
}

// RecommendationResponse is the validated output of the generation service.
type RecommendationResponse struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// DiagnoseRequest is the HTTP request body for a diagnosis.
type DiagnoseRequest struct {
	Namespace string `json:"namespace"`
	PodName   string `json:"pod_name"`
	Question  string `json:"question,omitempty"`
}

// DiagnoseResponse is the HTTP response body for a successful diagnosis.
type DiagnoseResponse struct {
	Namespace      string `json:"namespace"`
	PodName        string `json:"pod_name"`
	Recommendation string `json:"recommendation"`
	Model          string `json:"model"`
	Cached         bool   `json:"cached"`
}
