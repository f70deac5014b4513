package worker

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	jobName = "narrative_worker"
)

var (
	// Общий реестр для всех метрик этого воркера
	registry = prometheus.NewRegistry()

	// Метрики регистрируются через promauto.With(registry) в локальном
	// реестре, а не в глобальном prometheus.DefaultRegistry
	tasksReceived = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "narrative_worker_tasks_received_total",
			Help: "Total number of scene generation tasks received by the worker.",
		},
	)
	tasksFailed = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "narrative_worker_tasks_failed_total",
			Help: "Total number of tasks failed, partitioned by failure reason.",
		},
		[]string{"reason"},
	)
	tasksSucceeded = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "narrative_worker_tasks_succeeded_total",
			Help: "Total number of tasks successfully processed.",
		},
	)
	taskDuration = promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "narrative_worker_task_duration_seconds",
			Help:    "Histogram of end-to-end task processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
	tokensUsed = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "narrative_worker_ai_tokens_used_total",
			Help: "Total number of AI tokens used for scene generation.",
		},
	)

	// Pusher для отправки метрик в Pushgateway
	pusher *push.Pusher

	// Группировочные метки для Pushgateway
	groupingKey map[string]string
)

// InitMetricsPusher инициализирует клиент Pushgateway.
// pushgatewayURL: адрес Pushgateway (e.g., "http://localhost:9091")
func InitMetricsPusher(pushgatewayURL string) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
		log.Printf("[Metrics] Warning: could not get hostname: %v", err)
	}
	pid := os.Getpid()
	instanceID := fmt.Sprintf("%s-%d", hostname, pid)

	groupingKey = map[string]string{
		"instance": instanceID,
	}

	log.Printf("[Metrics] Initializing Pushgateway pusher for job '%s' with instance '%s' to %s", jobName, instanceID, pushgatewayURL)

	// Метрики AI клиента живут в глобальном реестре, поэтому гоним оба.
	pusher = push.New(pushgatewayURL, jobName).
		Gatherer(registry).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("instance", instanceID)

	// Пробная отправка с нулевыми значениями, чтобы проверить соединение
	if err := pusher.Push(); err != nil {
		return fmt.Errorf("could not push initial metrics to Pushgateway: %w", err)
	}
	log.Printf("[Metrics] Initial push to Pushgateway successful.")
	return nil
}

// StartMetricsPusher запускает горутину для периодической отправки метрик.
func StartMetricsPusher(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			if pusher == nil {
				ticker.Stop()
				log.Println("[Metrics] Pusher is nil, stopping periodic push.")
				return
			}
			_ = pushMetrics()
		}
	}()
	log.Printf("[Metrics] Started periodic pusher with interval %v", interval)
}

// pushMetrics отправляет текущие метрики в Pushgateway.
func pushMetrics() error {
	if pusher == nil {
		return errors.New("pusher not initialized")
	}

	err := pusher.Push()
	if err != nil {
		log.Printf("[Metrics] Error pushing metrics to Pushgateway: %v", err)
		return err
	}
	return nil
}

// MetricsIncrementTasksReceived увеличивает счетчик полученных задач.
func MetricsIncrementTasksReceived() {
	tasksReceived.Inc()
}

// MetricsIncrementTaskFailed увеличивает счетчик неудачных задач для указанной причины.
func MetricsIncrementTaskFailed(reason string) {
	tasksFailed.WithLabelValues(reason).Inc()
}

// MetricsIncrementTaskSucceeded увеличивает счетчик успешно выполненных задач.
func MetricsIncrementTaskSucceeded() {
	tasksSucceeded.Inc()
}

// MetricsObserveTaskDuration фиксирует длительность обработки задачи.
func MetricsObserveTaskDuration(d time.Duration) {
	taskDuration.Observe(d.Seconds())
}

// MetricsAddTokensUsed добавляет использованные токены к счетчику.
func MetricsAddTokensUsed(count float64) {
	tokensUsed.Add(count)
}

// PushMetricsNow принудительно отправляет метрики (конец обработки задачи).
func PushMetricsNow() {
	_ = pushMetrics()
}

// CleanupMetrics удаляет метрики этого инстанса из Pushgateway.
// Должна вызываться через defer в main.
func CleanupMetrics() {
	if pusher == nil {
		log.Println("[Metrics] Cleanup skipped: Pusher not initialized.")
		return
	}

	log.Printf("[Metrics] Deleting metrics from Pushgateway for job '%s', grouping key: %v", jobName, groupingKey)
	err := pusher.Delete()
	if err != nil {
		log.Printf("[Metrics] Error deleting metrics from Pushgateway: %v", err)
	} else {
		log.Printf("[Metrics] Successfully deleted metrics from Pushgateway.")
	}
}
