// Package inspector reads a pod's runtime signals from the Kubernetes API:
// the pod description, events scoped to the pod, and a bounded log tail.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/codereliant/pod-doctor/internal/models"
)

// Cluster read errors
var (
	ErrPodNotFound = errors.New("pod not found")
	ErrForbidden   = errors.New("access to pod denied")
	ErrTimeout     = errors.New("cluster read timed out")
)

const (
	DefaultFetchTimeout = 15 * time.Second
	DefaultLogTailLines = 100
	DefaultLogByteLimit = 16384
)

// Config holds the inspector's read bounds.
type Config struct {
	FetchTimeout time.Duration
	LogTailLines int64
	LogByteLimit int64
}

func (c Config) withDefaults() Config {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.LogTailLines <= 0 {
		c.LogTailLines = DefaultLogTailLines
	}
	if c.LogByteLimit <= 0 {
		c.LogByteLimit = DefaultLogByteLimit
	}
	return c
}

// Inspector fetches raw diagnostic data for a single pod. It is read-only:
// no cluster state is mutated.
type Inspector struct {
	client kubernetes.Interface
	config Config
	logger *zap.Logger
}

// New creates a new Inspector.
func New(client kubernetes.Interface, cfg Config, logger *zap.Logger) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{
		client: client,
		config: cfg.withDefaults(),
		logger: logger,
	}
}

// Fetch issues the three reads concurrently and joins them. Pod-description
// and event-list failures are fatal and mapped onto the typed errors above;
// only a log read failure is absorbed into an empty field, since a pod that
// never started a container has no logs to read.
func (i *Inspector) Fetch(ctx context.Context, ref models.PodReference) (models.RawClusterData, error) {
	ctx, cancel := context.WithTimeout(ctx, i.config.FetchTimeout)
	defer cancel()

	var (
		pod      *corev1.Pod
		events   []corev1.Event
		logBytes []byte
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := i.client.CoreV1().Pods(ref.Namespace).Get(gctx, ref.PodName, metav1.GetOptions{})
		if err != nil {
			return i.mapPodError(ref, err)
		}
		pod = p
		return nil
	})

	g.Go(func() error {
		list, err := i.client.CoreV1().Events(ref.Namespace).List(gctx, metav1.ListOptions{
			FieldSelector: fmt.Sprintf("involvedObject.name=%s,involvedObject.namespace=%s",
				ref.PodName, ref.Namespace),
		})
		if err != nil {
			return fmt.Errorf("failed to list events for pod %s: %w", ref, i.mapListError(err))
		}
		events = list.Items
		return nil
	})

	g.Go(func() error {
		tailLines := i.config.LogTailLines
		limitBytes := i.config.LogByteLimit
		data, err := i.client.CoreV1().Pods(ref.Namespace).GetLogs(ref.PodName, &corev1.PodLogOptions{
			TailLines:  &tailLines,
			LimitBytes: &limitBytes,
		}).DoRaw(gctx)
		if err != nil {
			// Common for pods that never started a container.
			i.logger.Warn("log read failed, continuing without logs",
				zap.String("pod", ref.String()),
				zap.Error(err),
			)
			return nil
		}
		logBytes = data
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.RawClusterData{}, err
	}

	return models.RawClusterData{
		Pod:     pod,
		Events:  events,
		LogTail: logBytes,
	}, nil
}

// ListNamespaces returns the names of all namespaces in the cluster.
func (i *Inspector) ListNamespaces(ctx context.Context) ([]string, error) {
	list, err := i.client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", i.mapListError(err))
	}
	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	return names, nil
}

// ListPods returns the names of all pods in a namespace.
func (i *Inspector) ListPods(ctx context.Context, namespace string) ([]string, error) {
	list, err := i.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s: %w", namespace, i.mapListError(err))
	}
	names := make([]string, 0, len(list.Items))
	for _, pod := range list.Items {
		names = append(names, pod.Name)
	}
	return names, nil
}

func (i *Inspector) mapPodError(ref models.PodReference, err error) error {
	switch {
	case apierrors.IsNotFound(err):
		return fmt.Errorf("pod %s: %w", ref, ErrPodNotFound)
	case apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err):
		return fmt.Errorf("pod %s: %w", ref, ErrForbidden)
	case apierrors.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("pod %s: %w", ref, ErrTimeout)
	default:
		return fmt.Errorf("failed to read pod %s: %w", ref, err)
	}
}

func (i *Inspector) mapListError(err error) error {
	switch {
	case apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err):
		return ErrForbidden
	case apierrors.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return err
	}
}
