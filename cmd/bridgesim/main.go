// Package main provides a simulator that drives random memory traffic
// through a bridge into a memory controller.
package main

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/membridge/mem"
	"github.com/sarchlab/membridge/mem/acceptancetests/memaccessagent"
	"github.com/sarchlab/membridge/mem/bridge"
	"github.com/sarchlab/membridge/mem/idealmemcontroller"
	"github.com/sarchlab/membridge/sim"
	"github.com/sarchlab/membridge/sim/directconnection"
	"github.com/sarchlab/membridge/simulation"
	"github.com/sarchlab/membridge/tracing"
)

var rootCmd = &cobra.Command{
	Use: "bridgesim",
	Short: "Bridgesim runs random read and write traffic through a " +
		"bridge that connects two memory fabric domains.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runSim()
	},
}

var (
	seedFlag        int64
	numAccessFlag   int
	maxAddressFlag  uint64
	delayFlag       int
	reqQueueFlag    int
	rspQueueFlag    int
	domainTagFlag   uint64
	memLatencyFlag  int
	traceFlag       bool
	monitorFlag     bool
	monitorPortFlag int
	outputFlag      string
)

func init() {
	// A .env file can preset the environment-variable defaults below.
	_ = godotenv.Load()

	rootCmd.Flags().Int64Var(&seedFlag, "seed", 0,
		"random seed, 0 picks one from the clock")
	rootCmd.Flags().IntVar(&numAccessFlag, "num-access", 10000,
		"number of reads and writes to generate")
	rootCmd.Flags().Uint64Var(&maxAddressFlag, "max-address", 1*mem.MB,
		"address range to access")
	rootCmd.Flags().IntVar(&delayFlag, "delay", 10,
		"bridge forwarding delay in cycles")
	rootCmd.Flags().IntVar(&reqQueueFlag, "req-queue-size", 16,
		"bridge downstream request queue capacity")
	rootCmd.Flags().IntVar(&rspQueueFlag, "rsp-queue-size", 16,
		"bridge upstream response queue capacity")
	rootCmd.Flags().Uint64Var(&domainTagFlag, "domain-tag", 1,
		"tag attached to the requests crossing the bridge")
	rootCmd.Flags().IntVar(&memLatencyFlag, "mem-latency", 100,
		"memory controller latency in cycles")
	rootCmd.Flags().BoolVar(&traceFlag, "trace", false,
		"record component tasks into the output database")
	rootCmd.Flags().BoolVar(&monitorFlag, "monitor", false,
		"start the monitoring server")
	rootCmd.Flags().IntVar(&monitorPortFlag, "monitor-port",
		envInt("MEMBRIDGE_MONITOR_PORT", 0),
		"port for the monitoring server, 0 picks a random port")
	rootCmd.Flags().StringVar(&outputFlag, "output",
		os.Getenv("MEMBRIDGE_OUTPUT"),
		"output database name, without extension")
}

func envInt(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}

	return value
}

func runSim() error {
	seed := seedFlag
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rand.Seed(seed)
	fmt.Fprintf(os.Stderr, "Seed %d\n", seed)

	builder := simulation.MakeBuilder().
		WithOutputFileName(outputFlag)
	if monitorFlag {
		if monitorPortFlag > 0 {
			builder = builder.WithMonitorPort(monitorPortFlag)
		}
	} else {
		builder = builder.WithoutMonitoring()
	}

	s := builder.Build()
	defer s.Terminate()

	engine := s.GetEngine()
	agent := buildSimulation(s, engine)

	start := time.Now()

	agent.TickLater()

	err := engine.Run()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Simulated time %.9fs, wall time %v\n",
		engine.CurrentTime(), time.Since(start))

	if !agent.Done() {
		return errors.New("the agent did not complete all the accesses")
	}

	return nil
}

func buildSimulation(
	s *simulation.Simulation,
	engine sim.Engine,
) *memaccessagent.MemAccessAgent {
	dram := idealmemcontroller.MakeBuilder().
		WithEngine(engine).
		WithNewStorage(maxAddressFlag).
		WithLatency(memLatencyFlag).
		Build("DRAM")

	b := bridge.MakeBuilder().
		WithEngine(engine).
		WithDelay(delayFlag).
		WithRequestQueueSize(reqQueueFlag).
		WithResponseQueueSize(rspQueueFlag).
		WithDomainTag(domainTagFlag).
		WithAddressRange(mem.AddressRange{Low: 0, High: maxAddressFlag}).
		WithAddressToPortMapper(&mem.SinglePortMapper{
			Port: dram.GetPortByName("Top").AsRemote(),
		}).
		WithMemoryPeer(dram).
		Build("Bridge")

	agent := memaccessagent.MakeBuilder().
		WithEngine(engine).
		WithMaxAddress(maxAddressFlag).
		WithWriteLeft(numAccessFlag).
		WithReadLeft(numAccessFlag).
		WithLowModule(b.GetPortByName("Top")).
		Build("Agent")

	topConn := directconnection.MakeBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		Build("TopConn")
	topConn.PlugIn(agent.GetPortByName("Mem"))
	topConn.PlugIn(b.GetPortByName("Top"))

	bottomConn := directconnection.MakeBuilder().
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		Build("BottomConn")
	bottomConn.PlugIn(b.GetPortByName("Bottom"))
	bottomConn.PlugIn(dram.GetPortByName("Top"))

	b.Init()

	s.RegisterComponent(agent)
	s.RegisterComponent(b)
	s.RegisterComponent(dram)

	if traceFlag {
		tracing.CollectTrace(b, s.GetVisTracer())
		tracing.CollectTrace(dram, s.GetVisTracer())
	}

	return agent
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
