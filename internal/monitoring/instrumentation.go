package monitoring

import (
	"strconv"
	"strings"
	"time"
)

// ObserveAPILatency captures the HTTP request latency for the supplied route.
func ObserveAPILatency(method, path, status string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "UNKNOWN"
	}
	path = sanitizePath(path)
	if path == "" {
		path = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	module.metrics.apiLatency.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordRealtimeConnection adjusts the websocket connection gauge.
func RecordRealtimeConnection(delta int64) {
	module := ensureModule()
	if module == nil || delta == 0 {
		return
	}
	module.metrics.realtimeConnections.Add(float64(delta))
	if module.stats.recordRealtimeConnection(delta) < 0 {
		module.metrics.realtimeConnections.Set(0)
	}
}

// RecordRealtimeBroadcast increments broadcast counters per stream.
func RecordRealtimeBroadcast(stream string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.realtimeBroadcasts.WithLabelValues(streamLabel(stream)).Inc()
	module.stats.realtimeBroadcasts.Add(1)
}

// RecordRealtimeFailure snapshots a realtime failure occurrence.
func RecordRealtimeFailure(stream, failureType, message string) {
	module := ensureModule()
	if module == nil {
		return
	}
	stream = streamLabel(stream)
	failureType = normalizeLabel(failureType)
	module.metrics.realtimeFailures.WithLabelValues(stream, failureType).Inc()
	module.stats.recordRealtimeFailure(FailureRecord{
		Stream:   stream,
		Type:     failureType,
		Message:  strings.TrimSpace(message),
		Occurred: time.Now(),
	})
}

// RecordMaintenanceRun records the completion of a scheduled job.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	jobID := normalizeLabel(job)
	result = normalizeLabel(result)
	module.metrics.maintenanceRuns.WithLabelValues(jobID, result).Inc()
	observeDuration(module.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	if result == "success" {
		module.metrics.maintenanceLastRun.WithLabelValues(jobID).Set(float64(time.Now().Unix()))
	}
	module.stats.maintenanceEntry(jobID).record(result, strings.TrimSpace(message), duration)
}

// RecordCacheWrite counts an offline collection write. Results: ok, skipped, quota_exceeded, error.
func RecordCacheWrite(entity, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	result = normalizeLabel(result)
	module.metrics.cacheWrites.WithLabelValues(normalizeLabel(entity), result).Inc()
	module.stats.recordCacheWrite(result)
}

// RecordCacheEviction records one evicted collection and the bytes it released.
func RecordCacheEviction(entity string, freedBytes int64) {
	module := ensureModule()
	if module == nil {
		return
	}
	if freedBytes < 0 {
		freedBytes = 0
	}
	module.metrics.cacheEvictions.WithLabelValues(normalizeLabel(entity)).Inc()
	module.metrics.cacheEvictedBytes.Add(float64(freedBytes))
	module.stats.cacheEvictions.Add(1)
}

// SetCacheUsage publishes the offline store usage against its budget.
func SetCacheUsage(usage, quota int64) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.cacheUsageBytes.Set(float64(usage))
	module.metrics.cacheQuotaBytes.Set(float64(quota))
	module.stats.cacheUsage.Store(usage)
	module.stats.cacheQuota.Store(quota)
}

// RecordSyncPass records the outcome of one mutation queue processing pass.
func RecordSyncPass(applied, failed, conflicts int, duration time.Duration, skippedOffline bool) {
	module := ensureModule()
	if module == nil {
		return
	}
	result := "success"
	switch {
	case skippedOffline:
		result = "offline"
	case failed > 0:
		result = "partial"
	}
	module.metrics.syncPasses.WithLabelValues(result).Inc()
	if !skippedOffline {
		observeDuration(module.metrics.syncPassDuration, duration)
	}
	module.stats.recordSyncPass(result, applied, failed, conflicts)
}

// RecordSyncEntry counts one queued mutation outcome. Results: applied, failed, stalled.
func RecordSyncEntry(entryType, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.syncEntries.WithLabelValues(normalizeLabel(entryType), normalizeLabel(result)).Inc()
}

// RecordSyncConflict counts a detected conflict and how it was resolved.
func RecordSyncConflict(entity, resolution string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.syncConflicts.WithLabelValues(normalizeLabel(entity), normalizeLabel(resolution)).Inc()
}

// SetQueueDepth publishes the number of queue entries per status.
func SetQueueDepth(pending, failed, stalled int) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.queueDepth.WithLabelValues("pending").Set(float64(pending))
	module.metrics.queueDepth.WithLabelValues("failed").Set(float64(failed))
	module.metrics.queueDepth.WithLabelValues("stalled").Set(float64(stalled))
	module.stats.queuePending.Store(int64(pending))
	module.stats.queueFailed.Store(int64(failed))
	module.stats.queueStalled.Store(int64(stalled))
}

// SetConnectivity records whether the household server is reachable.
func SetConnectivity(online bool) {
	module := ensureModule()
	if module == nil {
		return
	}
	value := 0.0
	if online {
		value = 1
	}
	module.metrics.connectivityState.Set(value)
	module.stats.recordConnectivity(online)
}

// RecordRemoteRequest counts a client API call by HTTP method and status code (0 for transport errors).
func RecordRemoteRequest(method string, status int) {
	module := ensureModule()
	if module == nil {
		return
	}
	result := "error"
	if status > 0 {
		result = strconv.Itoa(status)
	}
	module.metrics.remoteRequests.WithLabelValues(strings.ToUpper(strings.TrimSpace(method)), result).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}

func streamLabel(stream string) string {
	stream = normalizePath(stream)
	if stream == "" {
		return "unknown"
	}
	return stream
}

func sanitizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "/" {
		return "root"
	}
	return normalizePath(path)
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	path = strings.ReplaceAll(path, " ", "_")
	if path == "" {
		return "root"
	}
	return path
}
