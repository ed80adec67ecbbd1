// Package metrics centralizes the rcrowley/go-metrics gauges and
// counters the pipeline reports, mirroring the gauge set
// datasync/chaindatafetcher/chaindata_fetcher.go registers
// (checkpointGauge, handledBlockNumberGauge, retry gauges, ...) but
// keyed per-chain instead of per-process since this indexer runs one
// parser per chain concurrently.
package metrics

import (
	"fmt"
	"sync"

	gometrics "github.com/rcrowley/go-metrics"
)

var (
	registry = gometrics.NewRegistry()
	mu       sync.Mutex
	gauges   = map[string]gometrics.Gauge{}
	counters = map[string]gometrics.Counter{}
)

// Registry exposes the underlying go-metrics registry, e.g. for a
// Prometheus bridge in the runner package.
func Registry() gometrics.Registry { return registry }

func gauge(name string) gometrics.Gauge {
	mu.Lock()
	defer mu.Unlock()
	if g, ok := gauges[name]; ok {
		return g
	}
	g := gometrics.NewGauge()
	registry.Register(name, g)
	gauges[name] = g
	return g
}

func counter(name string) gometrics.Counter {
	mu.Lock()
	defer mu.Unlock()
	if c, ok := counters[name]; ok {
		return c
	}
	c := gometrics.NewCounter()
	registry.Register(name, c)
	counters[name] = c
	return c
}

// ParserLag reports, for chain, how many blocks behind the chain tip
// the parser currently is (latestBlock - currentBlock).
func ParserLag(chain string, lag int64) {
	gauge(fmt.Sprintf("parser.%s.lag", chain)).Update(lag)
}

// ParserCheckpoint reports the chain's last committed current_block.
func ParserCheckpoint(chain string, block int64) {
	gauge(fmt.Sprintf("parser.%s.checkpoint", chain)).Update(block)
}

// ParserRPCRetry counts a retried RPC call for chain.
func ParserRPCRetry(chain string) {
	counter(fmt.Sprintf("parser.%s.rpc_retry", chain)).Inc(1)
}

// ParserDeadLetter counts a block recorded to the dead-letter table.
func ParserDeadLetter(chain string) {
	counter(fmt.Sprintf("parser.%s.dead_letter", chain)).Inc(1)
}

// ConsumerQueueDepth reports how many in-flight messages a consumer is
// currently holding (pre-fetched but not yet acked).
func ConsumerQueueDepth(queue string, depth int64) {
	gauge(fmt.Sprintf("consumer.%s.depth", queue)).Update(depth)
}

// ConsumerProcessed counts a successfully processed+acked message.
func ConsumerProcessed(queue string) {
	counter(fmt.Sprintf("consumer.%s.processed", queue)).Inc(1)
}

// ConsumerNacked counts a nacked (requeued or dead-lettered) message.
func ConsumerNacked(queue string) {
	counter(fmt.Sprintf("consumer.%s.nacked", queue)).Inc(1)
}

// NotificationsSent counts a push notification handed to the external
// gateway.
func NotificationsSent() {
	counter("notifications.sent").Inc(1)
}
