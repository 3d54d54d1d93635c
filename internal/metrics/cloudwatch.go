package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"femasflow/logger"
)

type cloudWatchState struct {
	client    *cloudwatch.Client
	namespace string
}

var cwState atomic.Pointer[cloudWatchState]

func init() {
	cwState.Store(&cloudWatchState{namespace: "Femasflow"})
}

// InitCloudWatch initialises the CloudWatch client for the given region
// and namespace. When the client cannot be created the function logs a
// warning and leaves publishing disabled; local counters keep working.
func InitCloudWatch(region, namespace string) {
	log := logger.GetLogger().WithComponent("cloudwatch")

	ctx := context.Background()
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	state := cloudWatchState{client: cloudwatch.NewFromConfig(cfg), namespace: "Femasflow"}
	if namespace != "" {
		state.namespace = namespace
	}
	cwState.Store(&state)

	log.WithFields(logger.Fields{
		"region":    cfg.Region,
		"namespace": state.namespace,
	}).Info("initialized CloudWatch client")
}

// DisableCloudWatch drops the client. Test helper.
func DisableCloudWatch() {
	cwState.Store(&cloudWatchState{namespace: "Femasflow"})
}

// reportInterval matches the channel statistics cadence.
const reportInterval = 30 * time.Second

// StartReporting launches the goroutine that pushes counter increases
// to CloudWatch on a fixed interval. A final report runs when ctx is
// cancelled so shutdown does not lose the tail.
func StartReporting(ctx context.Context) {
	ticker := time.NewTicker(reportInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				publishPending()
				return
			case <-ticker.C:
				publishPending()
			}
		}
	}()
}

func publishPending() {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}

	deltas := pendingDeltas()
	if len(deltas) == 0 {
		return
	}

	data := make([]cwtypes.MetricDatum, 0, len(deltas))
	for k, d := range deltas {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(k.name),
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String("gateway"), Value: aws.String("FEMAS")},
				{Name: aws.String("label"), Value: aws.String(k.label)},
			},
			Unit:  cwtypes.StandardUnitCount,
			Value: aws.Float64(float64(d)),
		})
	}

	if _, err := state.client.PutMetricData(context.Background(), &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}); err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
	}
}
