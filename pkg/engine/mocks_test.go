package engine

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const testAccountID = "123456789012"

var testLogger = zerolog.New(io.Discard)

// recorder collects provider calls in order across every fake.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// mockStreams implements StreamService.
type mockStreams struct {
	rec         *recorder
	createErr   error
	describeErr error
	deleteErr   error
	shardCount  int32
	enforced    bool
}

func (m *mockStreams) CreateStream(_ context.Context, name string, shardCount int32) error {
	m.rec.record("kinesis.CreateStream " + name)
	m.shardCount = shardCount
	return m.createErr
}

func (m *mockStreams) DescribeStream(_ context.Context, name string) (*StreamDescription, error) {
	m.rec.record("kinesis.DescribeStream " + name)
	if m.describeErr != nil {
		return nil, m.describeErr
	}
	return &StreamDescription{
		Name:   name,
		ARN:    "arn:aws:kinesis:us-east-1:" + testAccountID + ":stream/" + name,
		Status: "ACTIVE",
	}, nil
}

func (m *mockStreams) DeleteStream(_ context.Context, name string, enforceConsumerDeletion bool) error {
	m.rec.record("kinesis.DeleteStream " + name)
	m.enforced = enforceConsumerDeletion
	return m.deleteErr
}

// mockIdentity implements IdentityService. errs is keyed by operation name.
type mockIdentity struct {
	rec           *recorder
	errs          map[string]error
	trustDocument string
	accessDoc     string
}

func (m *mockIdentity) err(op string) error {
	return m.errs[op]
}

func (m *mockIdentity) CreateRole(_ context.Context, name, trustDocument string) (string, error) {
	m.rec.record("iam.CreateRole " + name)
	m.trustDocument = trustDocument
	if err := m.err("CreateRole"); err != nil {
		return "", err
	}
	return "arn:aws:iam::" + testAccountID + ":role/" + name, nil
}

func (m *mockIdentity) CreatePolicy(_ context.Context, name, document string) (string, error) {
	m.rec.record("iam.CreatePolicy " + name)
	m.accessDoc = document
	if err := m.err("CreatePolicy"); err != nil {
		return "", err
	}
	return PolicyARN("aws", testAccountID, name), nil
}

func (m *mockIdentity) AttachRolePolicy(_ context.Context, roleName, policyARN string) error {
	m.rec.record("iam.AttachRolePolicy " + roleName + " " + policyARN)
	return m.err("AttachRolePolicy")
}

func (m *mockIdentity) DetachRolePolicy(_ context.Context, roleName, policyARN string) error {
	m.rec.record("iam.DetachRolePolicy " + roleName + " " + policyARN)
	return m.err("DetachRolePolicy")
}

func (m *mockIdentity) DeletePolicy(_ context.Context, policyARN string) error {
	m.rec.record("iam.DeletePolicy " + policyARN)
	return m.err("DeletePolicy")
}

func (m *mockIdentity) DeleteRole(_ context.Context, roleName string) error {
	m.rec.record("iam.DeleteRole " + roleName)
	return m.err("DeleteRole")
}

func (m *mockIdentity) AccountID(_ context.Context) (string, error) {
	m.rec.record("sts.GetCallerIdentity")
	if err := m.err("AccountID"); err != nil {
		return "", err
	}
	return testAccountID, nil
}

// mockSubscriptions implements SubscriptionService.
type mockSubscriptions struct {
	rec       *recorder
	putErr    error
	deleteErr error
	streamARN string
	roleARN   string
}

func (m *mockSubscriptions) PutEventStream(_ context.Context, applicationID, streamARN, roleARN string) error {
	m.rec.record("pinpoint.PutEventStream " + applicationID)
	m.streamARN = streamARN
	m.roleARN = roleARN
	return m.putErr
}

func (m *mockSubscriptions) DeleteEventStream(_ context.Context, applicationID string) error {
	m.rec.record("pinpoint.DeleteEventStream " + applicationID)
	return m.deleteErr
}

// mockWaiter implements WaitPolicy without sleeping.
type mockWaiter struct {
	rec       *recorder
	errs      map[ResourceKind]error
	settleErr error
	timeouts  map[ResourceKind]time.Duration
}

func (m *mockWaiter) AwaitReady(_ context.Context, kind ResourceKind, key string, timeout time.Duration) error {
	m.rec.record("wait " + string(kind) + " " + key)
	if m.timeouts == nil {
		m.timeouts = make(map[ResourceKind]time.Duration)
	}
	m.timeouts[kind] = timeout
	return m.errs[kind]
}

func (m *mockWaiter) Settle(_ context.Context) error {
	m.rec.record("settle")
	return m.settleErr
}

// mockGuard implements DocumentGuard.
type mockGuard struct {
	err    error
	checks []DocumentCheck
}

func (m *mockGuard) CheckDocuments(_ context.Context, check DocumentCheck) error {
	m.checks = append(m.checks, check)
	return m.err
}

// mockJournal implements Journal.
type mockJournal struct {
	mu        sync.Mutex
	began     []string
	steps     []StepResult
	completed []Phase
	errs      []error
	failWith  error
}

func (m *mockJournal) BeginInvocation(_ context.Context, result *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.began = append(m.began, result.InvocationID)
	return m.failWith
}

func (m *mockJournal) RecordStep(_ context.Context, _ string, step StepResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step)
	return m.failWith
}

func (m *mockJournal) CompleteInvocation(_ context.Context, result *Result, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, result.Phase)
	m.errs = append(m.errs, err)
	return m.failWith
}

// fixture bundles an orchestrator with its fakes.
type fixture struct {
	rec           *recorder
	streams       *mockStreams
	identity      *mockIdentity
	subscriptions *mockSubscriptions
	waiter        *mockWaiter
	orchestrator  *Orchestrator
}

func newFixture(guard DocumentGuard, opts ...Option) *fixture {
	rec := &recorder{}
	f := &fixture{
		rec:           rec,
		streams:       &mockStreams{rec: rec},
		identity:      &mockIdentity{rec: rec, errs: map[string]error{}},
		subscriptions: &mockSubscriptions{rec: rec},
		waiter:        &mockWaiter{rec: rec, errs: map[ResourceKind]error{}},
	}

	cfg := AccessConfig{
		Partition:         "aws",
		RoleWaitTimeout:   40 * time.Second,
		PolicyWaitTimeout: 20 * time.Second,
	}
	f.orchestrator = NewOrchestrator(
		NewStreamManager(f.streams, f.waiter, 0, 180*time.Second, testLogger),
		NewAccessManager(f.identity, f.waiter, guard, cfg, testLogger),
		NewSubscriptionManager(f.subscriptions, testLogger),
		f.waiter,
		testLogger,
		opts...,
	)
	return f
}
