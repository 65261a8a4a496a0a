// v1
// internal/sensor/source.go
package sensor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultCommandTimeout bounds a single sensor command invocation.
const DefaultCommandTimeout = 10 * time.Second

// TimeoutError is returned when the sensor command does not finish in time.
type TimeoutError struct {
	Command string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sensor command %q timed out after %s", e.Command, e.After)
}

// CommandSource runs an external command and returns its stdout followed by
// its stderr.
type CommandSource struct {
	commandLine string
	timeout     time.Duration
	log         *slog.Logger
}

// NewCommandSource tokenises commandLine on whitespace. A non-positive timeout
// falls back to DefaultCommandTimeout.
func NewCommandSource(commandLine string, timeout time.Duration, log *slog.Logger) *CommandSource {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &CommandSource{commandLine: commandLine, timeout: timeout, log: log}
}

// Capture executes the command. Launch failures are logged and yield an empty
// string so that parsing reports the problem; only timeouts are returned as
// errors.
func (c *CommandSource) Capture(ctx context.Context) (string, error) {
	args := strings.Fields(c.commandLine)
	if len(args) == 0 {
		c.log.Error("sensor_command_empty")
		return "", nil
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		c.log.Error("sensor_command_timeout", "command", c.commandLine, "timeout", c.timeout.String())
		return "", &TimeoutError{Command: c.commandLine, After: c.timeout}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			c.log.Error("sensor_command_launch_failed", "command", c.commandLine, "err", err)
			return "", nil
		}
		c.log.Warn("sensor_command_exit_status", "command", c.commandLine, "code", exitErr.ExitCode())
	}

	c.log.Debug("sensor_command_output", "stdout", stdout.String(), "stderr", stderr.String())
	return stdout.String() + stderr.String(), nil
}

// Simulated value bounds, one decimal place.
const (
	SimHumidityMin    = 1.0
	SimHumidityMax    = 100.0
	SimTemperatureMin = 20.0
	SimTemperatureMax = 200.0
)

// SimulatedSource fabricates a plausible sensor line without hardware.
type SimulatedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedSource seeds from the clock when rng is nil.
func NewSimulatedSource(rng *rand.Rand) *SimulatedSource {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SimulatedSource{rng: rng}
}

func (s *SimulatedSource) Capture(_ context.Context) (string, error) {
	s.mu.Lock()
	humidTenths := s.rng.Intn(int((SimHumidityMax-SimHumidityMin)*10) + 1)
	tempTenths := s.rng.Intn(int((SimTemperatureMax-SimTemperatureMin)*10) + 1)
	s.mu.Unlock()

	humid := SimHumidityMin + float64(humidTenths)/10
	temp := SimTemperatureMin + float64(tempTenths)/10
	return FormatLine(temp, humid), nil
}
