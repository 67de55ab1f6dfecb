package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"crm-sync-gateway/crmsync/domain"
	"crm-sync-gateway/crmsync/infra"
	rapp "crm-sync-gateway/resilience/application"
	rdomain "crm-sync-gateway/resilience/domain"

	"github.com/spf13/cobra"
	testingclock "k8s.io/utils/clock/testing"
)

const (
	scenarioBreakerTimeout = 2 * time.Second
	scenarioStep           = 50 * time.Millisecond
)

// Scenario é um cenário de resiliência rodado contra o limiter e o breaker reais.
type Scenario struct {
	Name        string
	RateLimit   int
	FailureRate float64
	Threshold   int
	Requests    int
	// PreOpen abre o circuito antes das requisições e avança o relógio além do timeout.
	PreOpen bool
	Check   func(ScenarioResult) bool
}

type ScenarioResult struct {
	Scenario    string
	Success     int
	RateLimited int
	CircuitOpen int
	Failed      int
	// Marks tem um caractere por requisição: + sucesso, x falha, r rate limit, o circuito aberto.
	Marks  string
	Passed bool
}

func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Name: "Success", RateLimit: 100, Threshold: 5, Requests: 5,
			Check: func(r ScenarioResult) bool { return r.Success == 5 },
		},
		{
			Name: "Rate Limit Hit", RateLimit: 3, Threshold: 5, Requests: 10,
			Check: func(r ScenarioResult) bool { return r.RateLimited > 0 },
		},
		{
			Name: "Circuit Opens", RateLimit: 100, FailureRate: 1, Threshold: 3, Requests: 8,
			Check: func(r ScenarioResult) bool { return r.CircuitOpen > 0 },
		},
		{
			Name: "Mixed", RateLimit: 5, FailureRate: 0.7, Threshold: 3, Requests: 10,
			Check: func(r ScenarioResult) bool { return r.Success < 10 },
		},
		{
			Name: "Recovery", RateLimit: 100, Threshold: 3, Requests: 3, PreOpen: true,
			Check: func(r ScenarioResult) bool { return r.Success > 0 },
		},
	}
}

// RunScenario executa sc sobre store com tempo simulado. O estado da chave do
// cenário é limpo antes de começar.
func RunScenario(ctx context.Context, store rdomain.Store, clk *testingclock.FakeClock, sc Scenario) (ScenarioResult, error) {
	key := rdomain.Key("scenario_" + strings.ReplaceAll(strings.ToLower(sc.Name), " ", "_"))

	limiter := rapp.NewRateLimiter(store, sc.RateLimit, time.Minute)
	limiter.Clock = clk
	breaker := rapp.NewCircuitBreaker(store, sc.Threshold, scenarioBreakerTimeout)
	breaker.Clock = clk
	client := infra.NewMockCRMClient(string(key), sc.FailureRate)
	client.MinLatency, client.MaxLatency = 0, 0
	client.Clock = clk

	res := ScenarioResult{Scenario: sc.Name}
	if err := limiter.Reset(ctx, key); err != nil {
		return res, err
	}
	if err := breaker.Reset(ctx, key); err != nil {
		return res, err
	}

	if sc.PreOpen {
		boom := errors.New("forced failure")
		for range sc.Threshold {
			err := breaker.Call(ctx, key, func(context.Context) error { return boom })
			if err != nil && !errors.Is(err, boom) {
				return res, err
			}
		}
		clk.Step(scenarioBreakerTimeout + time.Second)
	}

	var marks strings.Builder
	for i := range sc.Requests {
		clk.Step(scenarioStep)

		ok, err := limiter.Allow(ctx, key)
		if err != nil {
			return res, err
		}
		if !ok {
			res.RateLimited++
			marks.WriteByte('r')
			continue
		}

		err = breaker.Call(ctx, key, func(ctx context.Context) error {
			_, err := client.Create(ctx, domain.Record{"email": fmt.Sprintf("scenario%d@example.com", i)})
			return err
		})
		switch {
		case errors.Is(err, rdomain.ErrCircuitOpen):
			res.CircuitOpen++
			marks.WriteByte('o')
		case errors.Is(err, infra.ErrSimulatedFailure):
			res.Failed++
			marks.WriteByte('x')
		case err != nil:
			return res, err
		default:
			res.Success++
			marks.WriteByte('+')
		}
	}

	res.Marks = marks.String()
	res.Passed = sc.Check == nil || sc.Check(res)
	return res, nil
}

func NewScenariosCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "Run the rate limit and circuit breaker scenarios",
		Long: `Runs a fixed table of scenarios against the real rate limiter and circuit
breaker with simulated time. Markers: + success, x failure, r rate limited, o circuit open.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := root.backend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			clk := testingclock.NewFakeClock(time.Now())
			results := make([]ScenarioResult, 0, len(DefaultScenarios()))
			for _, sc := range DefaultScenarios() {
				res, err := RunScenario(ctx, b.store, clk, sc)
				if err != nil {
					return fmt.Errorf("scenario %q: %w", sc.Name, err)
				}
				results = append(results, res)
			}

			if err := printScenarios(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			for _, r := range results {
				if !r.Passed {
					return fmt.Errorf("scenario %q failed", r.Scenario)
				}
			}
			return nil
		},
	}
}

func printScenarios(w io.Writer, results []ScenarioResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSUCCESS\tRATE_LIMITED\tCIRCUIT_OPEN\tFAILED\tRESULT\tMARKS")
	passed := 0
	for _, r := range results {
		verdict := "FAIL"
		if r.Passed {
			verdict = "PASS"
			passed++
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.Scenario, r.Success, r.RateLimited, r.CircuitOpen, r.Failed, verdict, r.Marks)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d/%d scenarios passed\n", passed, len(results))
	return err
}
