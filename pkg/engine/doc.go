// Package engine sequences the lifecycle of a Pinpoint event stream: a
// Kinesis stream, an IAM role with its access policy, and the Pinpoint
// subscription that publishes application events into the stream.
//
// # Overview
//
// An Orchestrator handles one LifecycleEvent per invocation:
//
//  1. Create - stream, wait until ACTIVE; role and policy, wait until
//     visible; settle delay; subscription
//  2. Update - acknowledged without any provider call
//  3. Delete - subscription, stream, then policy detach, policy and role
//
// Create stops at the first failure and leaves earlier resources in place.
// Delete tolerates absent resources at every step, so it cleans up after a
// partial Create and can be repeated safely. All names are derived from the
// application ID (see NamesFor); nothing is persisted between invocations.
//
// # Phases
//
// Each invocation moves through a fixed state machine:
//
//	idle -> creating -> created | failed
//	idle -> deleting -> deleted | failed
//	idle -> updated
//
// # Collaborators
//
// Managers talk to providers through narrow interfaces so tests can record
// call order:
//
//   - StreamService: create, describe and delete a stream
//   - IdentityService: roles, managed policies and the account ID
//   - SubscriptionService: put and delete the event stream binding
//   - ReadinessProbe and WaitPolicy: bounded polling and the settle delay
//   - DocumentGuard: optional checks on the generated IAM documents
//   - Journal: optional invocation history
//
// # Errors
//
// Provider failures are classified into an Error with a kind (not_found,
// timeout, validation, conflict, unavailable). Callers branch with
// IsNotFound, IsTimeout and friends rather than on provider error codes.
package engine
