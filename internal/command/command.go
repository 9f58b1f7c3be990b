// Package command interprets datagrams received on the console port.
//
// A command is a word optionally followed by a space and arguments:
//
//	hello
//	version
//	level off|low|medium|high|auto
//	bump <increment> <hours>
//	maxtemp <celsius>
//	schedule <t0> [<t1> ... <t23>]
//	report
package command

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/heater-controller/internal/power"
	"github.com/sweeney/heater-controller/internal/telemetry"
)

// Scheduler is the part of the schedule resolver the console drives.
type Scheduler interface {
	SetScheduleText(ctx context.Context, text string) error
	Bump(increment, hours int)
	ReportLines() []string
}

// PowerControl accepts manual level overrides and the heater limit.
type PowerControl interface {
	SetOverride(l power.Level)
	SetMaxHeater(celsius float64)
}

// MaxHeaterCeiling bounds the heater cutoff an operator may set.
const MaxHeaterCeiling = 90.0

// Telemetry is where replies and reports go.
type Telemetry interface {
	SendMessage(sev telemetry.Severity, text string)
	RequestErrorReport()
	TotalErrors() uint64
}

// Router dispatches console commands.
type Router struct {
	sched   Scheduler
	power   PowerControl
	tel     Telemetry
	log     *zap.SugaredLogger
	start   time.Time
	now     func() time.Time
	version string

	// timeout bounds the persist on a schedule update.
	timeout time.Duration
}

// NewRouter builds a router. start is the process start time used for the
// uptime in reports.
func NewRouter(sched Scheduler, ctl PowerControl, tel Telemetry, version string, start time.Time, log *zap.SugaredLogger) *Router {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Router{
		sched:   sched,
		power:   ctl,
		tel:     tel,
		log:     log.With("task", "console"),
		start:   start,
		now:     time.Now,
		version: version,
		timeout: 5 * time.Second,
	}
}

// Handle runs one command. Malformed arguments are returned as errors and
// leave state unchanged; unknown commands are logged and ignored.
func (r *Router) Handle(payload []byte) error {
	text := string(bytes.Trim(payload, " \t\r\n\x00"))
	r.log.Infow("received command", "command", text)
	if text == "" {
		r.log.Info("empty command ignored")
		return nil
	}

	cmd, args, _ := strings.Cut(text, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "hello":
		r.reply("hello back")
	case "version":
		r.reply(r.version)
	case "level":
		return r.level(args)
	case "bump":
		return r.bump(args)
	case "maxtemp":
		return r.maxTemp(args)
	case "schedule":
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.sched.SetScheduleText(ctx, args); err != nil {
			return fmt.Errorf("schedule %q: %w", args, err)
		}
	case "report":
		r.report()
	default:
		r.log.Infow("unrecognized command", "command", cmd)
	}
	return nil
}

func (r *Router) reply(text string) {
	r.tel.SendMessage(telemetry.Info, text)
}

func (r *Router) level(args string) error {
	l, ok := power.ParseLevel(args)
	if !ok {
		return fmt.Errorf("unrecognized power level %q", args)
	}
	r.power.SetOverride(l)
	return nil
}

func (r *Router) bump(args string) error {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return fmt.Errorf("malformed bump command %q", args)
	}
	inc, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("malformed bump increment %q", fields[0])
	}
	hours, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("malformed bump duration %q", fields[1])
	}
	r.sched.Bump(inc, hours)
	return nil
}

func (r *Router) maxTemp(args string) error {
	v, err := strconv.ParseFloat(args, 64)
	if err != nil || math.IsNaN(v) {
		return fmt.Errorf("malformed max temperature %q", args)
	}
	if v <= 0 || v > MaxHeaterCeiling {
		return fmt.Errorf("max temperature %.1f outside (0, %.0f]", v, MaxHeaterCeiling)
	}
	r.power.SetMaxHeater(v)
	r.reply(fmt.Sprintf("Max heater temperature set to %.1f", v))
	return nil
}

func (r *Router) report() {
	now := r.now()
	up := now.Sub(r.start)
	hours := int(up.Hours())
	minutes := int(up.Minutes()) % 60

	r.reply("Current time is " + now.Format(time.DateTime))
	r.reply(fmt.Sprintf("Time since boot: %d:%02d.  Errors since boot: %d", hours, minutes, r.tel.TotalErrors()))
	r.tel.RequestErrorReport()
	for _, line := range r.sched.ReportLines() {
		r.reply(line)
	}
}
