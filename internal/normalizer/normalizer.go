// Package normalizer merges raw cluster signals into a bounded, deterministic
// evidence bundle. It is pure: no I/O, no failure path — missing inputs
// degrade to empty fields, never to errors.
package normalizer

import (
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/codereliant/pod-doctor/internal/models"
)

const (
	// DefaultEventLimit caps how many recent events are kept. Relevance
	// decays with age and the prompt budget is finite.
	DefaultEventLimit = 10

	// DefaultLogByteBudget bounds the serialized size of the log tail.
	DefaultLogByteBudget = 8192

	// TruncationMarker is prepended to a log tail whose older lines were
	// dropped, so the reader knows context was cut.
	TruncationMarker = "... (older log lines truncated)"
)

// Config holds the normalizer's tunables.
type Config struct {
	EventLimit    int
	LogByteBudget int
}

func (c Config) withDefaults() Config {
	if c.EventLimit <= 0 {
		c.EventLimit = DefaultEventLimit
	}
	if c.LogByteBudget <= 0 {
		c.LogByteBudget = DefaultLogByteBudget
	}
	return c
}

// Normalize builds a PodDiagnostic from raw cluster data. Every field of the
// result is populated; a nil pod yields an Unknown phase with empty sections.
func Normalize(raw models.RawClusterData, cfg Config) models.PodDiagnostic {
	cfg = cfg.withDefaults()

	diag := models.PodDiagnostic{
		Phase:           string(corev1.PodUnknown),
		Conditions:      []models.PodCondition{},
		ContainerStates: []models.ContainerState{},
		Events:          normalizeEvents(raw.Events, cfg.EventLimit),
		LogTail:         normalizeLogTail(raw.LogTail, cfg.LogByteBudget),
	}

	if raw.Pod == nil {
		return diag
	}

	diag.Ref = models.PodReference{
		Namespace: raw.Pod.Namespace,
		PodName:   raw.Pod.Name,
	}
	if raw.Pod.Status.Phase != "" {
		diag.Phase = string(raw.Pod.Status.Phase)
	}
	for _, cond := range raw.Pod.Status.Conditions {
		diag.Conditions = append(diag.Conditions, models.PodCondition{
			Type:    string(cond.Type),
			Status:  string(cond.Status),
			Reason:  cond.Reason,
			Message: cond.Message,
		})
	}
	for _, cs := range raw.Pod.Status.ContainerStatuses {
		diag.ContainerStates = append(diag.ContainerStates, normalizeContainerState(cs))
	}

	return diag
}

// normalizeContainerState maps a container status onto the closed
// waiting/running/terminated variant. The waiting reason is the single
// highest-signal field for diagnosis and is always carried.
func normalizeContainerState(cs corev1.ContainerStatus) models.ContainerState {
	state := models.ContainerState{
		Name:         cs.Name,
		State:        models.ContainerRunning,
		RestartCount: cs.RestartCount,
	}

	switch {
	case cs.State.Waiting != nil:
		state.State = models.ContainerWaiting
		state.Reason = cs.State.Waiting.Reason
	case cs.State.Terminated != nil:
		state.State = models.ContainerTerminated
		state.Reason = cs.State.Terminated.Reason
		state.ExitCode = cs.State.Terminated.ExitCode
	}

	if cs.LastTerminationState.Terminated != nil {
		state.LastTerminationReason = cs.LastTerminationState.Terminated.Reason
	}

	return state
}

// normalizeEvents sorts events chronologically ascending by LastTimestamp
// (stable, so source order breaks ties) and keeps only the most recent limit.
func normalizeEvents(events []corev1.Event, limit int) []models.EventInfo {
	sorted := make([]corev1.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return eventTime(sorted[i]).Before(eventTime(sorted[j]))
	})

	if len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}

	out := make([]models.EventInfo, 0, len(sorted))
	for _, ev := range sorted {
		count := ev.Count
		if count == 0 {
			count = 1
		}
		out = append(out, models.EventInfo{
			Type:          ev.Type,
			Reason:        ev.Reason,
			Message:       ev.Message,
			Count:         count,
			LastTimestamp: eventTime(ev).UTC(),
		})
	}
	return out
}

func eventTime(ev corev1.Event) time.Time {
	if !ev.LastTimestamp.IsZero() {
		return ev.LastTimestamp.Time
	}
	if !ev.EventTime.IsZero() {
		return ev.EventTime.Time
	}
	return ev.FirstTimestamp.Time
}

// normalizeLogTail keeps the most recent whole lines whose serialized size
// (lines joined by newlines, plus the marker when truncated) fits the byte
// budget. Truncation always lands on a line boundary.
func normalizeLogTail(raw []byte, budget int) models.LogTail {
	tail := models.LogTail{Lines: []string{}}
	if len(raw) == 0 {
		return tail
	}

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	tail.Lines = fitTail(lines, budget)
	tail.Truncated = len(tail.Lines) < len(lines)
	return tail
}

// fitTail returns the longest suffix of lines whose rendered size fits the
// budget. The marker line is accounted for whenever any line is dropped.
func fitTail(lines []string, budget int) []string {
	size := SerializedSize(lines, false)
	if size <= budget {
		return lines
	}

	for start := 1; start < len(lines); start++ {
		kept := lines[start:]
		if SerializedSize(kept, true) <= budget {
			return kept
		}
	}
	return []string{}
}

// SerializedSize reports the byte size of a log tail as rendered into a
// prompt: lines joined by single newlines, preceded by the truncation marker
// when truncated.
func SerializedSize(lines []string, truncated bool) int {
	size := 0
	if truncated {
		size = len(TruncationMarker) + 1
	}
	for i, line := range lines {
		if i > 0 {
			size++
		}
		size += len(line)
	}
	return size
}
