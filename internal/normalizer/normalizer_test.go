package normalizer

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/codereliant/pod-doctor/internal/models"
)

func runningPod(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{
				{
					Name:         "app",
					RestartCount: 0,
					State: corev1.ContainerState{
						Running: &corev1.ContainerStateRunning{},
					},
				},
			},
		},
	}
}

func eventAt(reason string, ts time.Time) corev1.Event {
	return corev1.Event{
		Type:          corev1.EventTypeWarning,
		Reason:        reason,
		Message:       "message for " + reason,
		Count:         1,
		LastTimestamp: metav1.NewTime(ts),
	}
}

func TestNormalizeNilPod(t *testing.T) {
	diag := Normalize(models.RawClusterData{}, Config{})

	assert.Equal(t, "Unknown", diag.Phase)
	assert.NotNil(t, diag.Conditions)
	assert.NotNil(t, diag.ContainerStates)
	assert.NotNil(t, diag.Events)
	assert.NotNil(t, diag.LogTail.Lines)
}

func TestNormalizeMissingLogYieldsEmptyTail(t *testing.T) {
	diag := Normalize(models.RawClusterData{Pod: runningPod("web")}, Config{})

	require.NotNil(t, diag.LogTail.Lines)
	assert.Empty(t, diag.LogTail.Lines)
	assert.False(t, diag.LogTail.Truncated)
}

func TestNormalizeContainerStates(t *testing.T) {
	pod := runningPod("web")
	pod.Status.ContainerStatuses = []corev1.ContainerStatus{
		{
			Name:         "app",
			RestartCount: 3,
			State: corev1.ContainerState{
				Waiting: &corev1.ContainerStateWaiting{Reason: "ImagePullBackOff"},
			},
			LastTerminationState: corev1.ContainerState{
				Terminated: &corev1.ContainerStateTerminated{Reason: "Error"},
			},
		},
		{
			Name: "sidecar",
			State: corev1.ContainerState{
				Terminated: &corev1.ContainerStateTerminated{Reason: "OOMKilled", ExitCode: 137},
			},
		},
	}

	diag := Normalize(models.RawClusterData{Pod: pod}, Config{})

	require.Len(t, diag.ContainerStates, 2)

	app := diag.ContainerStates[0]
	assert.Equal(t, models.ContainerWaiting, app.State)
	assert.Equal(t, "ImagePullBackOff", app.Reason)
	assert.Equal(t, int32(3), app.RestartCount)
	assert.Equal(t, "Error", app.LastTerminationReason)

	sidecar := diag.ContainerStates[1]
	assert.Equal(t, models.ContainerTerminated, sidecar.State)
	assert.Equal(t, "OOMKilled", sidecar.Reason)
	assert.Equal(t, int32(137), sidecar.ExitCode)
}

func TestNormalizeEventsOrderAndCap(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var events []corev1.Event
	// Supplied out of order on purpose.
	for _, offset := range []int{5, 1, 9, 3, 7, 2, 8, 4, 6, 0, 11, 10} {
		events = append(events, eventAt(fmt.Sprintf("Reason%d", offset), base.Add(time.Duration(offset)*time.Minute)))
	}

	diag := Normalize(models.RawClusterData{Events: events}, Config{EventLimit: 10})

	require.Len(t, diag.Events, 10)
	// Most recent 10 retained, chronological ascending.
	assert.Equal(t, "Reason2", diag.Events[0].Reason)
	assert.Equal(t, "Reason11", diag.Events[len(diag.Events)-1].Reason)
	for i := 1; i < len(diag.Events); i++ {
		assert.False(t, diag.Events[i].LastTimestamp.Before(diag.Events[i-1].LastTimestamp))
	}
}

func TestNormalizeEventsTiesKeepSourceOrder(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := []corev1.Event{
		eventAt("First", ts),
		eventAt("Second", ts),
		eventAt("Third", ts),
	}

	diag := Normalize(models.RawClusterData{Events: events}, Config{})

	require.Len(t, diag.Events, 3)
	assert.Equal(t, "First", diag.Events[0].Reason)
	assert.Equal(t, "Second", diag.Events[1].Reason)
	assert.Equal(t, "Third", diag.Events[2].Reason)
}

func TestNormalizeLogTailWithinBudget(t *testing.T) {
	raw := []byte("line one\nline two\nline three\n")

	diag := Normalize(models.RawClusterData{LogTail: raw}, Config{})

	assert.Equal(t, []string{"line one", "line two", "line three"}, diag.LogTail.Lines)
	assert.False(t, diag.LogTail.Truncated)
}

func TestNormalizeLogTailTruncatesAtLineBoundary(t *testing.T) {
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, fmt.Sprintf("log line number %03d", i))
	}
	raw := []byte(strings.Join(lines, "\n") + "\n")
	budget := 200

	diag := Normalize(models.RawClusterData{LogTail: raw}, Config{LogByteBudget: budget})

	assert.True(t, diag.LogTail.Truncated)
	require.NotEmpty(t, diag.LogTail.Lines)

	// Only whole lines from the tail survive.
	for i, line := range diag.LogTail.Lines {
		assert.Equal(t, lines[len(lines)-len(diag.LogTail.Lines)+i], line)
	}

	// Serialized size, marker included, stays within budget.
	assert.LessOrEqual(t, SerializedSize(diag.LogTail.Lines, true), budget)
}

func TestNormalizeLogTailBudgetSmallerThanAnyLine(t *testing.T) {
	raw := []byte("a very long single log line that cannot fit\n")

	diag := Normalize(models.RawClusterData{LogTail: raw}, Config{LogByteBudget: 10})

	assert.Empty(t, diag.LogTail.Lines)
	assert.True(t, diag.LogTail.Truncated)
}

func TestNormalizeEventCountDefaultsToOne(t *testing.T) {
	ev := eventAt("Scheduled", time.Now())
	ev.Count = 0

	diag := Normalize(models.RawClusterData{Events: []corev1.Event{ev}}, Config{})

	require.Len(t, diag.Events, 1)
	assert.Equal(t, int32(1), diag.Events[0].Count)
}

func TestNormalizeConditions(t *testing.T) {
	pod := runningPod("web")
	pod.Status.Conditions = []corev1.PodCondition{
		{
			Type:    corev1.PodReady,
			Status:  corev1.ConditionFalse,
			Reason:  "ContainersNotReady",
			Message: "containers with unready status: [app]",
		},
	}

	diag := Normalize(models.RawClusterData{Pod: pod}, Config{})

	require.Len(t, diag.Conditions, 1)
	assert.Equal(t, "Ready", diag.Conditions[0].Type)
	assert.Equal(t, "False", diag.Conditions[0].Status)
	assert.Equal(t, "ContainersNotReady", diag.Conditions[0].Reason)
}
