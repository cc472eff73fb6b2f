package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/camera"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/hardware"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/mesh"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/storage"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/uplink"
	"github.com/janael-pinheiro/trap-module-golang/pkg/logging"
	"github.com/janael-pinheiro/trap-module-golang/pkg/observability"
	"github.com/janael-pinheiro/trap-module-golang/pkg/store"
	"github.com/janael-pinheiro/trap-module-golang/pkg/task"
	"github.com/janael-pinheiro/trap-module-golang/pkg/trap"
	"github.com/janael-pinheiro/trap-module-golang/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type simNode struct {
	module  *trap.Module
	sensors *hardware.SimulatedSensors
	board   *hardware.ManualBoard
}

func main() {
	configPath := flag.String("config", "", "runtime configuration file")
	nodes := flag.Int("nodes", 4, "number of modules on the mesh")
	loss := flag.Float64("loss", 0, "probability of dropping a mesh delivery")
	seed := flag.Int64("seed", 1, "seed of the mesh loss")
	duration := flag.Duration("duration", 48*time.Hour, "simulated time to cover")
	step := flag.Duration("step", time.Second, "simulated time per lockstep tick")
	start := flag.String("start", "2024-05-01T07:55:00Z", "simulated start time, RFC3339")
	activeStart := flag.Int("active-start", 8, "first hour of the active window")
	activeEnd := flag.Int("active-end", 20, "hour the active window closes")
	workTime := flag.Duration("work", 2*time.Minute, "work duration of a cycle")
	deadNode := flag.Uint("dead-node", 0, "node whose battery collapses, 0 for none")
	deadAt := flag.Duration("dead-at", 30*time.Minute, "simulated time at which the battery collapses")
	metricsListen := flag.String("metrics", "", "address serving the shared metrics, empty to disable")
	flag.Parse()

	conf, err := utils.LoadRuntimeConfig(*configPath)
	if err != nil {
		logrus.Fatalf("failed to read configuration: %v", err)
	}
	loggers := logging.NewLogrus(conf.LogLevel, os.Stderr)
	log := loggers.Get("Simulator")

	begin, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		log.Fatalf("invalid start time: %v", err)
	}
	base := task.NewManualClock(begin)
	hub := mesh.NewHub(*loss, *seed, loggers.Get("Mesh"))

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewProtocolCollector(registry)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}
	if *metricsListen != "" {
		go func() {
			if err := http.ListenAndServe(*metricsListen, metrics.Handler()); err != nil {
				log.Errorf("metrics endpoint stopped: %v", err)
			}
		}()
	}

	ctx := context.Background()
	fleet := make([]simNode, 0, *nodes)
	for i := 1; i <= *nodes; i++ {
		node := newSimNode(uint32(i), conf, hub, base, metrics, loggers)
		node.module.Boot(ctx)
		fleet = append(fleet, node)
	}

	work := int64(*workTime / time.Second)
	armed := fleet[len(fleet)-1].command(trap.ControlRequest{Op: trap.OpSetConfig, Config: entities.ConfigDocument{
		TrapMode:    entities.BoolPtr(true),
		ActiveStart: activeStart,
		ActiveEnd:   activeEnd,
		WorkTime:    &work,
	}})
	if !armed.OK {
		log.Fatal("failed to arm the fleet")
	}

	killed := false
	for elapsed := time.Duration(0); elapsed < *duration; elapsed += *step {
		if *deadNode != 0 && !killed && elapsed >= *deadAt {
			for _, node := range fleet {
				if node.module.NodeID() == uint32(*deadNode) {
					node.sensors.SetVoltage(conf.BatteryLimitVolts - 0.5)
					log.Warnf("battery of node %d collapsed", *deadNode)
				}
			}
			killed = true
		}
		for _, node := range fleet {
			node.module.Step(ctx)
		}
		base.Advance(*step)
		if elapsed%time.Hour == 0 {
			log.WithFields(phases(fleet)).Info(base.Now().Format(time.RFC3339))
		}
	}

	for _, node := range fleet {
		slept, forever := node.board.Slept()
		log.Infof("node %d slept %d times, halted %t", node.module.NodeID(), len(slept), forever)
	}
	report := make([]trap.ModuleInfo, 0, len(fleet))
	for _, node := range fleet {
		if info := node.command(trap.ControlRequest{Op: trap.OpModuleInfo}).Info; info != nil {
			report = append(report, *info)
		}
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		log.Fatalf("failed to write report: %v", err)
	}
}

func newSimNode(id uint32, conf entities.RuntimeConfig, hub *mesh.Hub, base *task.ManualClock, metrics *observability.ProtocolCollector, loggers *logging.Logrus) simNode {
	log := loggers.Get("Trap").WithField("Node", id)
	clock := task.NewAdjustableClock(base)
	documents := storage.NewMemoryStore()
	sensors := hardware.NewSimulatedSensors(clock, 4.1, 0.02)
	board := hardware.NewManualBoard(nil)
	module := trap.New(conf, trap.Dependencies{
		NodeID:    id,
		Network:   hub,
		Store:     store.New(documents, entities.DefaultStatePath, log),
		Documents: documents,
		Camera:    camera.NewSimulatedCamera(documents, entities.DefaultImagePath, true, log),
		Uplink:    uplink.NewLogUplink(log),
		Sensors:   sensors,
		Board:     board,
		Clock:     clock,
		Metrics:   metrics,
		Log:       log,
	})
	return simNode{module: module, sensors: sensors, board: board}
}

// command runs a control request inline; the simulator owns every update loop.
func (n simNode) command(request trap.ControlRequest) trap.ControlResult {
	request.Reply = make(chan trap.ControlResult, 1)
	n.module.HandleEvent(request)
	return <-request.Reply
}

func phases(fleet []simNode) logrus.Fields {
	fields := logrus.Fields{}
	for _, node := range fleet {
		fields[fmt.Sprintf("node%d", node.module.NodeID())] = node.module.Phase()
	}
	return fields
}
