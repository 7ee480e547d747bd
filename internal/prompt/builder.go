// Package prompt renders a PodDiagnostic into the text payload sent to the
// generation service. Rendering is pure and deterministic: equal diagnostics
// produce byte-identical prompts.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/codereliant/pod-doctor/internal/models"
	"github.com/codereliant/pod-doctor/internal/normalizer"
)

// DefaultMaxChars bounds the rendered prompt. Generation services meter
// input size; the log tail is re-truncated first when the bound is hit.
const DefaultMaxChars = 12000

const preamble = "You are assisting with Kubernetes pod diagnosis. " +
	"Below is the current state of a single pod: its phase, conditions, " +
	"container states, recent events, and a tail of its log stream. " +
	"Explain the most likely reason the pod is unhealthy and recommend " +
	"concrete remediation steps."

// Config holds the builder's tunables.
type Config struct {
	MaxChars int
}

func (c Config) withDefaults() Config {
	if c.MaxChars <= 0 {
		c.MaxChars = DefaultMaxChars
	}
	return c
}

// Build renders the diagnostic into a RecommendationRequest. The optional
// question is an operator-supplied message appended after the preamble.
// When the naive rendering exceeds the budget, only the log section shrinks;
// status, conditions, container states, and events stay intact.
func Build(diag models.PodDiagnostic, question string, cfg Config) models.RecommendationRequest {
	cfg = cfg.withDefaults()

	rendered := render(diag, question, diag.LogTail)
	if len(rendered) > cfg.MaxChars {
		overflow := len(rendered) - cfg.MaxChars
		budget := normalizer.SerializedSize(diag.LogTail.Lines, diag.LogTail.Truncated) - overflow
		tail := shrinkLogTail(diag.LogTail, budget)
		rendered = render(diag, question, tail)
		// Rendering adds per-line newlines the byte accounting does not
		// see, so drop further lines until the bound holds.
		for len(rendered) > cfg.MaxChars && len(tail.Lines) > 0 {
			tail = models.LogTail{Lines: tail.Lines[1:], Truncated: true}
			rendered = render(diag, question, tail)
		}
	}

	return models.RecommendationRequest{
		Diagnostic: diag,
		Prompt:     rendered,
	}
}

func render(diag models.PodDiagnostic, question string, tail models.LogTail) string {
	var b strings.Builder

	b.WriteString(preamble)
	b.WriteString("\n")
	if q := strings.TrimSpace(question); q != "" {
		b.WriteString("\nOperator question: ")
		b.WriteString(q)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nPod: %s\n", diag.Ref)
	fmt.Fprintf(&b, "Phase: %s\n", diag.Phase)

	b.WriteString("\nConditions:\n")
	if len(diag.Conditions) == 0 {
		b.WriteString("- none\n")
	}
	for _, cond := range diag.Conditions {
		fmt.Fprintf(&b, "- %s=%s", cond.Type, cond.Status)
		if cond.Reason != "" {
			fmt.Fprintf(&b, " reason=%s", cond.Reason)
		}
		if cond.Message != "" {
			fmt.Fprintf(&b, " message=%q", cond.Message)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nContainers:\n")
	if len(diag.ContainerStates) == 0 {
		b.WriteString("- none reported\n")
	}
	for _, cs := range diag.ContainerStates {
		fmt.Fprintf(&b, "- %s: state=%s", cs.Name, cs.State)
		if cs.Reason != "" {
			fmt.Fprintf(&b, " reason=%s", cs.Reason)
		}
		if cs.State == models.ContainerTerminated {
			fmt.Fprintf(&b, " exitCode=%d", cs.ExitCode)
		}
		fmt.Fprintf(&b, " restarts=%d", cs.RestartCount)
		if cs.LastTerminationReason != "" {
			fmt.Fprintf(&b, " lastTermination=%s", cs.LastTerminationReason)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nRecent events (oldest first):\n")
	if len(diag.Events) == 0 {
		b.WriteString("- none\n")
	}
	for _, ev := range diag.Events {
		fmt.Fprintf(&b, "- [%s] %s (x%d, %s): %s\n",
			ev.Type, ev.Reason, ev.Count,
			ev.LastTimestamp.Format(time.RFC3339), ev.Message)
	}

	b.WriteString("\nLog tail:\n")
	if len(tail.Lines) == 0 && !tail.Truncated {
		b.WriteString("(no log output available)\n")
	} else {
		if tail.Truncated {
			b.WriteString(normalizer.TruncationMarker)
			b.WriteString("\n")
		}
		for _, line := range tail.Lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return b.String()
}

// shrinkLogTail drops lines from the head until the tail fits the byte
// budget. Lines are never split.
func shrinkLogTail(tail models.LogTail, budget int) models.LogTail {
	if budget < 0 {
		budget = 0
	}
	for start := 0; start < len(tail.Lines); start++ {
		kept := tail.Lines[start:]
		truncated := tail.Truncated || start > 0
		if normalizer.SerializedSize(kept, truncated) <= budget {
			return models.LogTail{Lines: kept, Truncated: truncated}
		}
	}
	return models.LogTail{Lines: []string{}, Truncated: true}
}
