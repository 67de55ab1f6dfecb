package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"crm-sync-gateway/crmsync/domain"
	rinfra "crm-sync-gateway/resilience/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"scenarios", "loadtest", "evaluate", "stats", "reset"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"verbose", "redis", "rules"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRunScenario_DefaultTablePasses(t *testing.T) {
	ctx := context.Background()
	store := rinfra.NewMemoryStore()
	clk := testingclock.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	for _, sc := range DefaultScenarios() {
		res, err := RunScenario(ctx, store, clk, sc)
		require.NoError(t, err, sc.Name)
		assert.True(t, res.Passed, "%s: %+v", sc.Name, res)
		assert.Len(t, res.Marks, sc.Requests)
	}
}

func TestRunScenario_Deterministic(t *testing.T) {
	ctx := context.Background()
	store := rinfra.NewMemoryStore()
	clk := testingclock.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	scenarios := DefaultScenarios()

	res, err := RunScenario(ctx, store, clk, scenarios[1])
	require.NoError(t, err)
	assert.Equal(t, "+++rrrrrrr", res.Marks)

	res, err = RunScenario(ctx, store, clk, scenarios[2])
	require.NoError(t, err)
	assert.Equal(t, "xxxooooo", res.Marks)

	res, err = RunScenario(ctx, store, clk, scenarios[4])
	require.NoError(t, err)
	assert.Equal(t, "+++", res.Marks)
}

func TestScenariosCommand(t *testing.T) {
	out, err := execute(t, "scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "Rate Limit Hit")
	assert.Contains(t, out, "5/5 scenarios passed")
}

func TestEvaluateCommand(t *testing.T) {
	out, err := execute(t, "evaluate", "--status", "active")
	require.NoError(t, err)
	assert.Regexp(t, `CREATE\s+sync_critical\s+salesforce\n`, out)
	assert.Regexp(t, `UPDATE\s+sync_high\s+hubspot,salesforce\n`, out)
	assert.Regexp(t, `DELETE\s+sync_normal\s+-\n`, out)

	out, err = execute(t, "evaluate", "-o", "delete", "--status", "deleted")
	require.NoError(t, err)
	assert.Regexp(t, `DELETE\s+sync_normal\s+hubspot\n`, out)
	assert.NotContains(t, out, "CREATE")

	out, err = execute(t, "evaluate", "-o", "create", "--company", "Acme")
	require.NoError(t, err)
	assert.Regexp(t, `CREATE\s+sync_critical\s+hubspot,salesforce\n`, out)

	_, err = execute(t, "evaluate", "--status", "archived")
	assert.ErrorContains(t, err, "invalid --status")
}

func TestLoadtest(t *testing.T) {
	ctx := context.Background()
	root := &RootOptions{}
	b, err := root.backend(ctx)
	require.NoError(t, err)
	d, err := root.dispatcher(b)
	require.NoError(t, err)

	report, err := Loadtest(ctx, d, b.contacts, LoadtestOptions{Workers: 3, Count: 20})
	require.NoError(t, err)

	assert.Equal(t, int64(60), report.Contacts)
	// salesforce aceita todo CREATE
	assert.Zero(t, report.NoTarget)
	assert.GreaterOrEqual(t, report.Jobs, int64(60))
	assert.Equal(t, int(report.Jobs), b.memQueue.Len(domain.PriorityCritical.Queue()))

	depth, err := b.depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.Jobs, depth.Ready["sync_critical"])
	assert.Zero(t, depth.Dead)
}

func TestLoadtestCommand_Flags(t *testing.T) {
	out, err := execute(t, "loadtest", "-w", "2", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "contacts:   10")

	_, err = execute(t, "loadtest", "-w", "0")
	assert.Error(t, err)
}

func TestStatsCommand_Memory(t *testing.T) {
	out, err := execute(t, "stats")
	require.NoError(t, err)
	assert.Regexp(t, `salesforce\s+0/100\s+closed\s+0\s+-`, out)
	assert.Regexp(t, `hubspot\s+0/50\s+closed`, out)
	assert.Contains(t, out, "sync_critical")
}

func TestResetCommand(t *testing.T) {
	out, err := execute(t, "reset", "hubspot")
	require.NoError(t, err)
	assert.Equal(t, "reset hubspot\n", out)

	_, err = execute(t, "reset", "pipedrive")
	assert.ErrorContains(t, err, "unknown target")

	_, err = execute(t, "reset")
	assert.Error(t, err)
}
