package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
	"github.com/openfroyo/pinpoint-eventstream/pkg/stores"
)

// ExampleOpen demonstrates opening a migrated journal.
func ExampleOpen() {
	store, err := stores.Open(context.Background(), stores.Config{
		Path: ":memory:", // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Journal ready")
	// Output: Journal ready
}

// ExampleSQLiteStore_ListInvocations demonstrates reading the journal the
// way the history command does.
func ExampleSQLiteStore_ListInvocations() {
	ctx := context.Background()
	store, _ := stores.Open(ctx, stores.Config{Path: ":memory:"})
	defer store.Close()

	result := &engine.Result{
		InvocationID: "inv-001",
		Event:        engine.LifecycleEvent{Type: engine.EventDelete, ApplicationID: "app123"},
		Phase:        engine.PhaseIdle,
		StartedAt:    time.Now(),
	}
	_ = store.BeginInvocation(ctx, result)
	_ = store.RecordStep(ctx, result.InvocationID, engine.StepResult{
		Name:     "subscription.detach",
		Resource: engine.ResourceSubscription,
		Status:   engine.StepTolerated,
	})
	result.Phase = engine.PhaseDeleted
	_ = store.CompleteInvocation(ctx, result, nil)

	invocations, err := store.ListInvocations(ctx, stores.ListOptions{ApplicationID: "app123"})
	if err != nil {
		log.Fatal(err)
	}
	for _, inv := range invocations {
		fmt.Printf("%s %s %s\n", inv.ID, inv.EventType, inv.Phase)
	}
	// Output: inv-001 Delete deleted
}
