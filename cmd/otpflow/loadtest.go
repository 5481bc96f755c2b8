package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/otpflow"
)

func newLoadtestCommand(configPath *string) *cobra.Command {
	var (
		flows       int
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Run concurrent fixture sign-ins against the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flows <= 0 || concurrency <= 0 {
				return fmt.Errorf("flows and concurrency must be > 0")
			}
			cfg, err := otpflow.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			cfg.Fixture.Enabled = true
			cfg.Metrics.EnableLatencyHistograms = true
			if err := cfg.Validate(); err != nil {
				return err
			}
			return loadtest(cmd.Context(), cmd.OutOrStdout(), cfg, flows, concurrency)
		},
	}
	cmd.Flags().IntVar(&flows, "flows", 2000, "number of complete sign-in flows")
	cmd.Flags().IntVar(&concurrency, "concurrency", 64, "number of concurrent workers")
	return cmd
}

func loadtest(ctx context.Context, out io.Writer, cfg otpflow.Config, flows, concurrency int) error {
	logger := otpflow.NewLogger(otpflow.LoggingConfig{Level: "warn", Format: cfg.Logging.Format}, out)

	b, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	engine, err := otpflow.New().
		WithConfig(cfg).
		WithAuthService(b.svc).
		WithLogger(logger).
		WithNotifier(otpflow.NotifierFunc(func(context.Context, otpflow.Notice) {})).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Fprintf(out, "running %d flows with %d workers...\n", flows, concurrency)
	stats := runFlows(ctx, engine, cfg.Fixture, flows, concurrency)
	printStats(out, "sign-in", stats)

	snap := engine.MetricsSnapshot()
	fmt.Fprintf(out, "otp_issued=%d otp_verified=%d service_failure=%d service_timeout=%d\n",
		snap.Counters[otpflow.MetricOTPIssued],
		snap.Counters[otpflow.MetricOTPVerified],
		snap.Counters[otpflow.MetricServiceFailure],
		snap.Counters[otpflow.MetricServiceTimeout],
	)
	return nil
}

func runFlows(ctx context.Context, engine *otpflow.Engine, fixture otpflow.FixtureConfig, flows, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, flows)
		mu        sync.Mutex
	)

	role, _ := otpflow.ParseRole(fixture.Role)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= flows {
					return
				}
				t0 := time.Now()
				err := signIn(ctx, engine, role, fixture)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func signIn(ctx context.Context, engine *otpflow.Engine, role otpflow.Role, fixture otpflow.FixtureConfig) error {
	p, err := engine.NewLogin(role)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.EditEmail(fixture.Email); err != nil {
		return err
	}
	if err := p.EditPassword(fixture.Password); err != nil {
		return err
	}
	if err := p.Submit(ctx); err != nil {
		return err
	}
	if err := p.EnterCode(fixture.Code); err != nil {
		return err
	}
	if err := p.Submit(ctx); err != nil {
		return err
	}
	if p.View().Phase != otpflow.PhaseVerified {
		return fmt.Errorf("flow %s did not verify", p.ID())
	}
	return nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: flows=%d failures=%d total=%s flows/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
