package observability

import (
	"testing"
	"time"

	"github.com/danmuck/deskwire/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("deskctl", "GET", "/health", 200, 12*time.Millisecond)
	RecordInstructionSent("mouse", 44)
	RecordMessageReceived("ping", 56, 3)
	RecordDroppedBuffer("short")
	RecordDecodeError("image")
	RecordFastPath("pong")
	RecordRequest("resolved", 4*time.Millisecond)
	AddPendingRequests(2)
	AddPendingRequests(-2)
}

func TestRecordersMoveCounters(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(fastPath.WithLabelValues("data_ack"))
	RecordFastPath("data_ack")
	RecordFastPath("data_ack")
	if got := testutil.ToFloat64(fastPath.WithLabelValues("data_ack")); got != before+2 {
		t.Fatalf("fast path counter got=%v want=%v", got, before+2)
	}

	RecordMessageReceived("screen", 56, 7)
	if got := testutil.ToFloat64(peerBacklog); got != 7 {
		t.Fatalf("backlog gauge got=%v", got)
	}
	base := testutil.ToFloat64(pendingRequests)
	AddPendingRequests(2)
	AddPendingRequests(3)
	if got := testutil.ToFloat64(pendingRequests); got != base+5 {
		t.Fatalf("pending gauge got=%v want=%v", got, base+5)
	}
	AddPendingRequests(-5)
	if got := testutil.ToFloat64(pendingRequests); got != base {
		t.Fatalf("pending gauge after release got=%v want=%v", got, base)
	}
}
