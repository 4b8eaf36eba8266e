package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultComposerTimeout = 30 * time.Second
)

const (
	DefaultInputTopic  = "blob_notifications"
	DefaultOutputTopic = "batch_events"
)

const (
	DefaultMongoDBName = "weld"

	OrchestrationCollection = "orchestrations"
	DefaultOrdersCollection = "orders"
)

const (
	BatchLockPrefix = "lock:batch:"
	DefaultLockTTL  = 30 * time.Second
)

const (
	DefaultSweepInterval = time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)
