package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/chzyer/readline"

	"github.com/pulseone-io/collector/pkg/alarm"
	"github.com/pulseone-io/collector/pkg/model"
	"github.com/pulseone-io/collector/pkg/telemetry"
	"github.com/pulseone-io/collector/pkg/workermanager"
)

// runConsole launches the operator console: a small
// set of read/restart commands against the live WorkerManager and
// AlarmEngine, plus a log tail backed by the in-memory ring logger.
func runConsole(ctx context.Context, manager *workermanager.Manager, alarms *alarm.Engine, ring *telemetry.RingLogger, knownDevices *atomic.Pointer[[]model.Device]) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: "collector> ",
		HistoryFile: "/tmp/collector_history.tmp",
		InterruptPrompt: "^C",
		EOFPrompt: "exit",
	})
	if err != nil {
		fmt.Printf("console disabled: %v\n", err)
		return
	}
	defer rl.Close()

	printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		switch cmd {
		case "help", "?":
			printHelp()
		case "status":
			cmdStatus(manager, args)
		case "restart":
			cmdRestart(manager, args)
		case "list":
			cmdList(manager, knownDevices)
		case "alarms":
			cmdAlarms(alarms)
		case "logs":
			cmdLogs(ring, args)
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q, type help\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Println("commands: list | status <device_id> | restart <device_id> | alarms | logs [n] | help | quit")
}

func cmdList(manager *workermanager.Manager, knownDevices *atomic.Pointer[[]model.Device]) {
	devices := knownDevices.Load()
	if devices == nil || len(*devices) == 0 {
		fmt.Println("no devices configured")
		return
	}
	for _, d := range *devices {
		running := manager.Has(d.ID)
		fmt.Printf("id=%d name=%q protocol=%s enabled=%t running=%t\n", d.ID, d.Name, d.Protocol, d.Enabled, running)
	}
}

func cmdStatus(manager *workermanager.Manager, args []string) {
	id, ok := parseDeviceID(args)
	if !ok {
		fmt.Println("usage: status <device_id>")
		return
	}
	status, err := manager.Status(id)
	if err != nil {
		fmt.Printf("status error: %v\n", err)
		return
	}
	fmt.Println(string(status))
}

func cmdRestart(manager *workermanager.Manager, args []string) {
	id, ok := parseDeviceID(args)
	if !ok {
		fmt.Println("usage: restart <device_id>")
		return
	}
	if manager.Restart(id) {
		fmt.Printf("device %d restarted\n", id)
	} else {
		fmt.Printf("device %d restart failed, see logs\n", id)
	}
}

func cmdAlarms(alarms *alarm.Engine) {
	active := alarms.Active()
	if len(active) == 0 {
		fmt.Println("no active alarms")
		return
	}
	for _, occ := range active {
		fmt.Printf("rule=%d target=%d state=%d value=%.3f since=%s\n",
			occ.RuleID, occ.TargetID, occ.State, occ.TriggerValue, occ.OccurrenceTime.Format("15:04:05"))
	}
}

func cmdLogs(ring *telemetry.RingLogger, args []string) {
	n := 20
	if len(args) > 0 {
		if parsed, err := strconv.Atoi(args[0]); err == nil {
			n = parsed
		}
	}
	for _, ev := range ring.Recent(n) {
		msg := ev.Message
		if ev.Err != nil {
			msg = fmt.Sprintf("%s: %v", msg, ev.Err)
		}
		fmt.Printf("[%s] %s device=%s %s\n", ev.Timestamp.Format("15:04:05"), ev.Category, ev.DeviceID, msg)
	}
}

func parseDeviceID(args []string) (model.DeviceID, bool) {
	if len(args) != 1 {
		return 0, false
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return model.DeviceID(n), true
}
