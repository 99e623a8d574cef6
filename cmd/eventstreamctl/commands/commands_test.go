package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/pinpoint-eventstream/pkg/engine"
	"github.com/openfroyo/pinpoint-eventstream/pkg/stores"
)

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand("test", "abc123", "today")
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// setEnv isolates a test from the caller's configuration.
func setEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("EVENTSTREAM_REGION", "")
	t.Setenv("EVENTSTREAM_JOURNAL_PATH", "")
	t.Setenv("EVENTSTREAM_POLICY_DIR", "")
	t.Setenv("EVENTSTREAM_ENDPOINT", "")
	t.Setenv("LOG_LEVEL", "error")
}

func TestNamesCommand(t *testing.T) {
	out, err := run(t, "names", "--app-id", "app123")
	if err != nil {
		t.Fatalf("names error = %v", err)
	}
	for _, want := range []string{"event-stream-app123", "pinpoint-service-app123-role", "pinpoint-service-app123-policy"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestNamesCommandJSON(t *testing.T) {
	out, err := run(t, "names", "--app-id", "app123", "--json")
	if err != nil {
		t.Fatalf("names error = %v", err)
	}
	var names engine.Names
	if err := json.Unmarshal([]byte(out), &names); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if names != engine.NamesFor("app123") {
		t.Errorf("names = %+v", names)
	}
}

func TestNamesCommandRejectsInvalidID(t *testing.T) {
	if _, err := run(t, "names", "--app-id", "not valid"); !engine.IsValidation(err) {
		t.Errorf("names error = %v, want validation error", err)
	}
}

func TestRenderPolicyCommand(t *testing.T) {
	setEnv(t)

	out, err := run(t, "render-policy", "--app-id", "app123", "--account-id", "123456789012", "--json")
	if err != nil {
		t.Fatalf("render-policy error = %v", err)
	}

	var rendered struct {
		RoleName string                `json:"role_name"`
		Trust    engine.PolicyDocument `json:"trust"`
		Access   engine.PolicyDocument `json:"access"`
	}
	if err := json.Unmarshal([]byte(out), &rendered); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}

	if rendered.RoleName != "pinpoint-service-app123-role" {
		t.Errorf("RoleName = %q", rendered.RoleName)
	}
	if got := rendered.Trust.Statement[0].Principal.Service; got != engine.DefaultServicePrincipal {
		t.Errorf("trust principal = %q", got)
	}
	wantARN := "arn:aws:kinesis:us-east-1:123456789012:stream/event-stream-app123"
	if got := rendered.Access.Statement[0].Resource[0]; got != wantARN {
		t.Errorf("access resource = %q, want %q", got, wantARN)
	}
	if got := rendered.Access.Statement[1].Resource[0]; got != wantARN+"/*" {
		t.Errorf("PutRecord resource = %q, want %q", got, wantARN+"/*")
	}
}

func TestRenderPolicyCommandNeedsStream(t *testing.T) {
	setEnv(t)

	if _, err := run(t, "render-policy", "--app-id", "app123"); err == nil {
		t.Error("render-policy should fail without --stream-arn or --account-id")
	}
}

func TestGuardCheckCommand(t *testing.T) {
	setEnv(t)

	out, err := run(t, "guard", "check", "--app-id", "app123", "--account-id", "123456789012")
	if err != nil {
		t.Fatalf("guard check error = %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "allowed") {
		t.Errorf("output = %q, want allowed", out)
	}
}

func TestGuardCheckCommandCustomPolicy(t *testing.T) {
	setEnv(t)

	dir := t.TempDir()
	rego := `# Streams must live in the audit account.
# severity: error
package eventstream.custom.account

import rego.v1

deny contains {"rule": "audit-account", "message": "stream is outside the audit account"} if {
	not contains(input.stream_arn, ":999999999999:")
}
`
	if err := os.WriteFile(filepath.Join(dir, "account.rego"), []byte(rego), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "guard", "check", "--app-id", "app123", "--account-id", "123456789012", "--policy-dir", dir)
	if err == nil {
		t.Fatal("guard check should fail on a blocking violation")
	}
	if !strings.Contains(out, "rejected") || !strings.Contains(out, "account/audit-account") {
		t.Errorf("output = %q", out)
	}

	if out, err := run(t, "guard", "check", "--app-id", "app123", "--account-id", "999999999999", "--policy-dir", dir); err != nil {
		t.Errorf("guard check in the audit account error = %v\n%s", err, out)
	}
}

func TestGuardCheckCommandToggles(t *testing.T) {
	setEnv(t)

	dir := t.TempDir()
	rego := `# severity: error
package eventstream.custom.account

import rego.v1

deny contains {"rule": "audit-account", "message": "stream is outside the audit account"} if {
	not contains(input.stream_arn, ":999999999999:")
}
`
	if err := os.WriteFile(filepath.Join(dir, "account.rego"), []byte(rego), 0644); err != nil {
		t.Fatal(err)
	}
	base := []string{"guard", "check", "--app-id", "app123", "--account-id", "123456789012", "--policy-dir", dir}

	out, err := run(t, append(base, "--disable", "account")...)
	if err != nil {
		t.Fatalf("guard check with the policy disabled error = %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "allowed") {
		t.Errorf("output = %q, want allowed", out)
	}

	cfgPath := filepath.Join(t.TempDir(), "eventstream.yaml")
	if err := os.WriteFile(cfgPath, []byte("guardrails:\n  disable: [account]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, append(base, "--config", cfgPath)...); err != nil {
		t.Fatalf("policy disabled in config still enforced: %v", err)
	}
	if _, err := run(t, append(base, "--config", cfgPath, "--enable", "account")...); err == nil {
		t.Error("--enable should re-enable a policy disabled in config")
	}

	if _, err := run(t, append(base, "--disable", "no-such-policy")...); err == nil {
		t.Error("--disable with an unknown policy should fail")
	}
}

func TestGuardListCommand(t *testing.T) {
	setEnv(t)

	out, err := run(t, "guard", "list")
	if err != nil {
		t.Fatalf("guard list error = %v", err)
	}
	for _, name := range []string{"trust-principal", "stream-scope", "no-wildcards"} {
		if !strings.Contains(out, name) {
			t.Errorf("output missing %q:\n%s", name, out)
		}
	}
}

func TestConfigValidateCommand(t *testing.T) {
	setEnv(t)

	out, err := run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate error = %v", err)
	}
	if !strings.Contains(out, "Configuration is valid") {
		t.Errorf("output = %q", out)
	}

	out, err = run(t, "config", "validate", "--show")
	if err != nil {
		t.Fatalf("config validate --show error = %v", err)
	}
	if !strings.Contains(out, "region: us-east-1") || !strings.Contains(out, "settle_delay: 15s") {
		t.Errorf("effective config = %s", out)
	}
}

func TestConfigValidateCommandMissingRegion(t *testing.T) {
	setEnv(t)
	t.Setenv("AWS_REGION", "")

	if _, err := run(t, "config", "validate"); err == nil {
		t.Error("config validate should fail without a region")
	}
}

func TestConfigValidateCommandFile(t *testing.T) {
	setEnv(t)
	t.Setenv("AWS_REGION", "")

	path := filepath.Join(t.TempDir(), "eventstream.yaml")
	if err := os.WriteFile(path, []byte("region: eu-west-1\nshard_count: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "config", "validate", "-c", path, "--json")
	if err != nil {
		t.Fatalf("config validate error = %v", err)
	}
	var cfg struct {
		Region     string `json:"region"`
		ShardCount int32  `json:"shard_count"`
	}
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if cfg.Region != "eu-west-1" || cfg.ShardCount != 2 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestHistoryRequiresJournal(t *testing.T) {
	setEnv(t)

	if _, err := run(t, "history", "list"); err == nil {
		t.Error("history list should fail when the journal is disabled")
	}
}

func TestUpdateIsJournaled(t *testing.T) {
	setEnv(t)
	journal := filepath.Join(t.TempDir(), "journal.db")
	t.Setenv("EVENTSTREAM_JOURNAL_PATH", journal)

	out, err := run(t, "update", "--app-id", "app123", "--request-id", "req-42")
	if err != nil {
		t.Fatalf("update error = %v", err)
	}
	if !strings.Contains(out, "Update app123: updated") {
		t.Errorf("output = %q", out)
	}

	out, err = run(t, "history", "list", "--json")
	if err != nil {
		t.Fatalf("history list error = %v", err)
	}
	var invocations []stores.Invocation
	if err := json.Unmarshal([]byte(out), &invocations); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(invocations) != 1 {
		t.Fatalf("got %d invocations, want 1", len(invocations))
	}
	inv := invocations[0]
	if inv.EventType != "Update" || inv.Phase != "updated" || inv.RequestID != "req-42" {
		t.Errorf("invocation = %+v", inv)
	}

	out, err = run(t, "history", "show", inv.ID)
	if err != nil {
		t.Fatalf("history show error = %v", err)
	}
	if !strings.Contains(out, inv.ID) || !strings.Contains(out, "req-42") {
		t.Errorf("show output = %q", out)
	}

	out, err = run(t, "history", "prune", "--older-than", "1h")
	if err != nil {
		t.Fatalf("history prune error = %v", err)
	}
	if !strings.Contains(out, "Deleted 0 invocation(s)") {
		t.Errorf("prune output = %q", out)
	}
}

func TestHistoryShowUnknown(t *testing.T) {
	setEnv(t)
	t.Setenv("EVENTSTREAM_JOURNAL_PATH", filepath.Join(t.TempDir(), "journal.db"))

	if _, err := run(t, "history", "show", "missing"); err == nil {
		t.Error("history show should fail for an unknown invocation")
	}
}
