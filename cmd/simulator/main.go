package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/traffic-allocator/pkg/allocation"
	"github.com/traffic-allocator/pkg/api"
	"github.com/traffic-allocator/pkg/catalog"
	"github.com/traffic-allocator/pkg/client"
	"github.com/traffic-allocator/pkg/compare"
	"github.com/traffic-allocator/pkg/strategy"
)

var (
	providerIDs  []string
	strategyID   string
	volume       float64
	failoverID   string
	strategyFile string

	serviceURL  string
	concurrency int
	duration    time.Duration
	rps         int
)

var rootCmd = &cobra.Command{
	Use:   "simulator",
	Short: "Evaluate traffic allocation strategies",
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run one allocation scenario locally and print the plan against the baseline",
	RunE:  runPlan,
}

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Drive a running allocator service with concurrent allocation requests",
	RunE:  runLoadtest,
}

func init() {
	planCmd.Flags().StringSliceVar(&providerIDs, "providers", []string{"provider-a", "provider-b", "provider-c", "provider-d"}, "provider ids to build the catalog from")
	planCmd.Flags().StringVar(&strategyID, "strategy", "cost-saver", "strategy to evaluate against the baseline")
	planCmd.Flags().Float64Var(&volume, "volume", 12.0, "projected traffic volume in millions of units")
	planCmd.Flags().StringVar(&failoverID, "failover", "", "provider id to exclude (failover simulation)")
	planCmd.Flags().StringVar(&strategyFile, "strategy-file", "", "optional YAML file merged over the built-in strategies")

	loadtestCmd.Flags().StringVar(&serviceURL, "url", "http://localhost:8080", "allocator service base URL")
	loadtestCmd.Flags().IntVar(&concurrency, "concurrency", 10, "number of concurrent workers")
	loadtestCmd.Flags().DurationVar(&duration, "duration", 60*time.Second, "how long to run")
	loadtestCmd.Flags().IntVar(&rps, "rps", 50, "target requests per second across all workers")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(loadtestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPlan(cmd *cobra.Command, args []string) error {
	registry := strategy.NewRegistry()
	if strategyFile != "" {
		if err := registry.LoadFile(strategyFile); err != nil {
			return err
		}
	}

	selected, ok := registry.Get(strategyID)
	if !ok {
		return fmt.Errorf("unknown strategy %q", strategyID)
	}

	routes := catalog.Build(providerIDs)
	report, err := compare.New(allocation.NewEngine()).Run(routes, registry.Baseline(), selected, volume, failoverID)
	if err != nil {
		return err
	}
	report = report.Rounded()

	fmt.Printf("Catalog (%d routes):\n", len(routes))
	for _, r := range routes {
		fmt.Printf("  %-20s lane=%-8s cost/M=%-8.2f p95=%-6dms reliability=%.2f%% capacity=%.1f\n",
			r.ID, r.Lane, r.CostPerMillion, r.LatencyP95MS, r.ReliabilityPct, r.CapacityScore)
	}

	fmt.Printf("\nPlan (%s, %.1fM units", selected.ID, volume)
	if failoverID != "" {
		fmt.Printf(", failover=%s", failoverID)
	}
	fmt.Println("):")
	printResult(report.Plan)

	fmt.Printf("\nBaseline (%s):\n", registry.Baseline().ID)
	printResult(report.Baseline)

	fmt.Printf("\nVersus baseline: cost savings %.2f, latency %+.0fms, reliability %+.2f%%\n",
		report.CostSavings, report.LatencyDeltaMS, report.ReliabilityDeltaPct)
	return nil
}

func printResult(res allocation.Result) {
	if len(res.Distribution) == 0 {
		fmt.Println("  (no allocatable routes)")
		return
	}
	for _, e := range res.Distribution {
		fmt.Printf("  %-20s share=%5.1f%%  volume=%6.2fM  cost=%8.2f\n",
			e.RouteID, e.Share*100, e.VolumeMillions, e.Cost)
	}
	fmt.Printf("  total cost=%.2f  cost/M=%.2f  avg p95=%.0fms  reliability=%.2f%%\n",
		res.TotalCost, res.CostPerMillion, res.AvgLatencyMS, res.ReliabilityPct)
}

func runLoadtest(cmd *cobra.Command, args []string) error {
	if rps < concurrency {
		return fmt.Errorf("rps (%d) must be at least concurrency (%d)", rps, concurrency)
	}

	strategies := []string{"balanced", "cost-saver", "latency-first", "failsafe"}
	providers := []string{"provider-a", "provider-b", "provider-c", "provider-d", "provider-e"}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	start := time.Now()

	var mu sync.Mutex
	var successCount, errorCount int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c := client.New(serviceURL, fmt.Sprintf("loadtest-%d", id))
			ticker := time.NewTicker(time.Second / time.Duration(rps/concurrency))
			defer ticker.Stop()

			n := 0
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					req := api.PlanRequest{
						StrategyID:     strategies[(id+n)%len(strategies)],
						ProviderIDs:    providers,
						VolumeMillions: float64(1 + (id+n)%20),
					}
					if n%7 == 0 {
						req.FailoverProviderID = providers[id%len(providers)]
					}
					n++

					_, err := c.Allocate(req)
					mu.Lock()
					if err != nil {
						errorCount++
					} else {
						successCount++
					}
					mu.Unlock()
				}
			}
		}(i)
	}

	time.Sleep(duration)
	close(stop)
	wg.Wait()

	elapsed := time.Since(start)
	logrus.Infof("Load test complete:")
	logrus.Infof("  Duration: %v", elapsed)
	logrus.Infof("  Success: %d", successCount)
	logrus.Infof("  Errors: %d", errorCount)
	logrus.Infof("  RPS: %.2f", float64(successCount)/elapsed.Seconds())
	return nil
}
