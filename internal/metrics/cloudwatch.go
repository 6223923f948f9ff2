package metrics

import (
	"context"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	namespace                = "ReadAloud/API"
	httpStatusServerError    = 500
	cloudwatchTimeoutSeconds = 5
)

// metricPutter is the subset of the CloudWatch client used here
type metricPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Client wraps CloudWatch client for custom metrics
type Client struct {
	client      metricPutter
	enabled     bool
	environment string
	async       bool
}

// NewClient creates a new CloudWatch metrics client. It is a no-op unless enabled.
func NewClient(ctx context.Context, environment string, enabled bool) *Client {
	if !enabled {
		logger.Info("CloudWatch metrics disabled", logger.Fields{"environment": environment})
		return &Client{enabled: false, environment: environment}
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Warn("Failed to load AWS config for CloudWatch", logger.Fields{"error": err.Error()})
		return &Client{enabled: false, environment: environment}
	}

	logger.Info("CloudWatch metrics enabled", logger.Fields{"namespace": namespace})
	return &Client{
		client:      cloudwatch.NewFromConfig(cfg),
		enabled:     true,
		environment: environment,
		async:       true,
	}
}

// RecordAPIRequest records an API request metric
func (m *Client) RecordAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	m.run(func(ctx context.Context) {
		metricName := "APIRequests"
		if statusCode >= httpStatusServerError {
			metricName = "APIErrors"
		}
		dimensions := m.dimensions("Endpoint", endpoint)

		m.put(ctx, metricName, 1, types.StandardUnitCount, dimensions)
		m.put(ctx, "APILatency", float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
	})
}

// RecordGenerationAttempt records one backend call and its token usage
func (m *Client) RecordGenerationAttempt(provider, outcome string, latency time.Duration, inputTokens, outputTokens int64) {
	if !m.enabled {
		return
	}

	m.run(func(ctx context.Context) {
		m.put(ctx, "GenerationAttempts", 1, types.StandardUnitCount,
			m.dimensions("Provider", provider, "Outcome", outcome))
		m.put(ctx, "GenerationLatency", float64(latency.Milliseconds()), types.StandardUnitMilliseconds,
			m.dimensions("Provider", provider))

		if inputTokens > 0 {
			m.put(ctx, "Tokens/Input", float64(inputTokens), types.StandardUnitCount, m.dimensions("Provider", provider))
		}
		if outputTokens > 0 {
			m.put(ctx, "Tokens/Output", float64(outputTokens), types.StandardUnitCount, m.dimensions("Provider", provider))
		}
	})
}

// RecordRewriteDuration records end-to-end rewrite duration
func (m *Client) RecordRewriteDuration(mode string, duration time.Duration, success bool) {
	if !m.enabled {
		return
	}

	m.run(func(ctx context.Context) {
		m.put(ctx, "RewriteDuration", float64(duration.Milliseconds()), types.StandardUnitMilliseconds,
			m.dimensions("Mode", mode, "Success", boolToString(success)))
	})
}

func (m *Client) run(fn func(ctx context.Context)) {
	if m.async {
		go fn(context.Background())
		return
	}
	fn(context.Background())
}

// dimensions builds name/value pairs plus the Environment dimension
func (m *Client) dimensions(pairs ...string) []types.Dimension {
	dims := make([]types.Dimension, 0, len(pairs)/2+1)
	for i := 0; i+1 < len(pairs); i += 2 {
		dims = append(dims, types.Dimension{Name: aws.String(pairs[i]), Value: aws.String(pairs[i+1])})
	}
	return append(dims, types.Dimension{Name: aws.String("Environment"), Value: aws.String(m.environment)})
}

func (m *Client) put(ctx context.Context, metricName string, value float64, unit types.StandardUnit, dimensions []types.Dimension) {
	if err := m.putMetric(ctx, metricName, value, unit, dimensions); err != nil {
		logger.Warn("Failed to record CloudWatch metric", logger.Fields{"metric": metricName, "error": err.Error()})
	}
}

// putMetric sends a metric to CloudWatch
func (m *Client) putMetric(
	ctx context.Context,
	metricName string,
	value float64,
	unit types.StandardUnit,
	dimensions []types.Dimension,
) error {
	if !m.enabled || m.client == nil {
		return nil
	}

	timeout := time.Duration(cloudwatchTimeoutSeconds) * time.Second
	cwCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := m.client.PutMetricData(cwCtx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(metricName),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: dimensions,
			},
		},
	})

	return err
}

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
