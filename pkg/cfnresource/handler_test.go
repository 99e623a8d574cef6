package cfnresource

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/rs/zerolog"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
)

type fakeOrchestrator struct {
	events   []engine.LifecycleEvent
	deadline time.Time
	result   *engine.Result
	err      error
}

func (f *fakeOrchestrator) Handle(ctx context.Context, event engine.LifecycleEvent) (*engine.Result, error) {
	f.events = append(f.events, event)
	f.deadline, _ = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &engine.Result{Event: event, Phase: engine.PhaseUpdated}, nil
}

func newTestHandler(o Orchestrator, opts ...Option) *Handler {
	return NewHandler(o, zerolog.New(io.Discard), opts...)
}

func createdResult() *engine.Result {
	return &engine.Result{
		InvocationID: "inv-1",
		Phase:        engine.PhaseCreated,
		Outputs: engine.Outputs{
			StreamArn:       "arn:aws:kinesis:us-east-1:123456789012:stream/event-stream-app123",
			PinpointRoleArn: "arn:aws:iam::123456789012:role/pinpoint-service-app123-role",
		},
	}
}

func TestHandleCreate(t *testing.T) {
	orch := &fakeOrchestrator{result: createdResult()}
	h := newTestHandler(orch)

	physicalID, data, err := h.Handle(context.Background(), cfn.Event{
		RequestType:        cfn.RequestCreate,
		RequestID:          "req-1",
		LogicalResourceID:  "EventStream",
		ResourceProperties: map[string]interface{}{"ApplicationId": "app123", "ServiceToken": "arn:lambda"},
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if physicalID != "event-stream-app123" {
		t.Errorf("physicalID = %q, want event-stream-app123", physicalID)
	}
	if data["StreamArn"] != createdResult().Outputs.StreamArn {
		t.Errorf("StreamArn = %v", data["StreamArn"])
	}
	if data["PinpointRoleArn"] != createdResult().Outputs.PinpointRoleArn {
		t.Errorf("PinpointRoleArn = %v", data["PinpointRoleArn"])
	}

	if len(orch.events) != 1 {
		t.Fatalf("orchestrator called %d times", len(orch.events))
	}
	got := orch.events[0]
	if got.Type != engine.EventCreate || got.ApplicationID != "app123" || got.RequestID != "req-1" {
		t.Errorf("event = %+v", got)
	}
}

func TestHandleRequestTypes(t *testing.T) {
	tests := []struct {
		name        string
		requestType cfn.RequestType
		want        engine.EventType
	}{
		{"update", cfn.RequestUpdate, engine.EventUpdate},
		{"delete", cfn.RequestDelete, engine.EventDelete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := &fakeOrchestrator{}
			physicalID, data, err := newTestHandler(orch).Handle(context.Background(), cfn.Event{
				RequestType:        tt.requestType,
				RequestID:          "req-2",
				PhysicalResourceID: "event-stream-app123",
				ResourceProperties: map[string]interface{}{"ApplicationId": "app123"},
			})
			if err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if physicalID != "event-stream-app123" {
				t.Errorf("physicalID = %q", physicalID)
			}
			if data != nil {
				t.Errorf("data = %v, want nil", data)
			}
			if len(orch.events) != 1 || orch.events[0].Type != tt.want {
				t.Errorf("events = %+v", orch.events)
			}
		})
	}
}

func TestHandleUnknownRequestType(t *testing.T) {
	orch := &fakeOrchestrator{}
	physicalID, _, err := newTestHandler(orch).Handle(context.Background(), cfn.Event{
		RequestType:        "Replace",
		RequestID:          "req-3",
		ResourceProperties: map[string]interface{}{"ApplicationId": "app123"},
	})
	if !engine.IsValidation(err) {
		t.Errorf("Handle() error = %v, want validation error", err)
	}
	if physicalID == "" {
		t.Error("physical ID must be set on failure")
	}
	if len(orch.events) != 0 {
		t.Errorf("orchestrator should not be called, got %+v", orch.events)
	}
}

func TestHandleFailureKeepsPhysicalID(t *testing.T) {
	orch := &fakeOrchestrator{err: engine.NewTimeoutError("stream did not become active", nil)}
	physicalID, data, err := newTestHandler(orch).Handle(context.Background(), cfn.Event{
		RequestType:        cfn.RequestCreate,
		RequestID:          "req-4",
		ResourceProperties: map[string]interface{}{"ApplicationId": "app123"},
	})
	if !engine.IsTimeout(err) {
		t.Errorf("Handle() error = %v, want timeout", err)
	}
	if physicalID != "event-stream-app123" {
		t.Errorf("physicalID = %q", physicalID)
	}
	if data != nil {
		t.Errorf("data = %v, want nil", data)
	}
}

func TestApplicationID(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]interface{}
		want  string
	}{
		{"present", map[string]interface{}{"ApplicationId": "abc"}, "abc"},
		{"missing", map[string]interface{}{}, ""},
		{"nil properties", nil, ""},
		{"not a string", map[string]interface{}{"ApplicationId": 42.0}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApplicationID(tt.props); got != tt.want {
				t.Errorf("ApplicationID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPhysicalResourceID(t *testing.T) {
	tests := []struct {
		name  string
		event cfn.Event
		appID string
		want  string
	}{
		{"assigned by CloudFormation", cfn.Event{PhysicalResourceID: "existing", RequestID: "r"}, "app123", "existing"},
		{"derived on create", cfn.Event{RequestID: "r"}, "app123", "event-stream-app123"},
		{"invalid application id", cfn.Event{RequestID: "r"}, "bad id!", "r"},
		{"empty application id", cfn.Event{RequestID: "r"}, "", "r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PhysicalResourceID(tt.event, tt.appID); got != tt.want {
				t.Errorf("PhysicalResourceID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResponseReserve(t *testing.T) {
	deadline := time.Now().Add(time.Minute)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	orch := &fakeOrchestrator{}
	_, _, err := newTestHandler(orch, WithResponseReserve(10*time.Second)).Handle(ctx, cfn.Event{
		RequestType:        cfn.RequestUpdate,
		PhysicalResourceID: "event-stream-app123",
		ResourceProperties: map[string]interface{}{"ApplicationId": "app123"},
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !orch.deadline.Equal(deadline.Add(-10 * time.Second)) {
		t.Errorf("orchestrator deadline = %v, want %v", orch.deadline, deadline.Add(-10*time.Second))
	}
}

func TestLambdaHandlerSendsResponse(t *testing.T) {
	var response cfn.Response
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&response); err != nil {
			t.Errorf("decode response: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	orch := &fakeOrchestrator{result: createdResult()}
	fn := newTestHandler(orch).LambdaHandler()

	reason, err := fn(context.Background(), cfn.Event{
		RequestType:        cfn.RequestCreate,
		RequestID:          "req-5",
		ResponseURL:        server.URL,
		LogicalResourceID:  "EventStream",
		StackID:            "stack-1",
		ResourceProperties: map[string]interface{}{"ApplicationId": "app123"},
	})
	if err != nil || reason != "" {
		t.Fatalf("lambda handler = %q, %v", reason, err)
	}

	if response.Status != cfn.StatusSuccess {
		t.Errorf("Status = %s", response.Status)
	}
	if response.PhysicalResourceID != "event-stream-app123" {
		t.Errorf("PhysicalResourceID = %s", response.PhysicalResourceID)
	}
	if response.Data["StreamArn"] != createdResult().Outputs.StreamArn {
		t.Errorf("Data = %v", response.Data)
	}
	if response.RequestID != "req-5" || response.LogicalResourceID != "EventStream" {
		t.Errorf("response = %+v", response)
	}
}
