package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	RegularSpeed = 100
	CruiseSpeed  = 90
	HighSpeed    = 180
	TurnSpeed    = 110
)

// Motor drives the four wheel PWM channels: left forward, left back, right
// forward, right back.
type Motor interface {
	Drive(lf, lb, rf, rb int) error
}

// Step holds one wheel setting for a duration. A zero Hold leaves the
// setting in place when the script ends.
type Step struct {
	LF, LB, RF, RB int
	Hold           time.Duration
}

// Script is a fixed timed motion.
type Script []Step

func move(lf, lb, rf, rb int, ms int) Step {
	return Step{LF: lf, LB: lb, RF: rf, RB: rb, Hold: time.Duration(ms) * time.Millisecond}
}

func halt(ms int) Step {
	return move(0, 0, 0, 0, ms)
}

// DefaultScripts are the actions accepted by the /action endpoint.
var DefaultScripts = map[string]Script{
	"go":    {move(RegularSpeed, 0, RegularSpeed, 0, 175), halt(0)},
	"cross": {move(HighSpeed, 0, HighSpeed, 0, 200), halt(200)},
	"left": {
		move(TurnSpeed, 0, 0, TurnSpeed, 100),
		move(RegularSpeed, 0, RegularSpeed, 0, 15),
		halt(0),
	},
	"turnLeft": {
		halt(200),
		move(HighSpeed, 0, 0, HighSpeed, 300),
		halt(200),
		move(HighSpeed, 0, HighSpeed, 0, 200),
		halt(200),
		move(HighSpeed, 0, 0, HighSpeed, 100),
		halt(0),
	},
	"right": {
		move(0, TurnSpeed, TurnSpeed, 0, 100),
		move(RegularSpeed, 0, RegularSpeed, 0, 15),
		halt(0),
	},
	"turnRight": {
		halt(200),
		move(0, HighSpeed, HighSpeed, 0, 300),
		halt(200),
		move(HighSpeed, 0, HighSpeed, 0, 200),
		halt(200),
		move(0, HighSpeed, HighSpeed, 0, 100),
		halt(0),
	},
	"crossBack": {move(0, HighSpeed, 0, HighSpeed, 200), halt(200)},
	"stop":      {halt(0)},
	"hleft": {
		move(HighSpeed, 0, 0, HighSpeed, 100),
		move(RegularSpeed, 0, RegularSpeed, 0, 15),
		halt(0),
	},
	"hright": {
		move(0, HighSpeed, HighSpeed, 0, 100),
		move(RegularSpeed, 0, RegularSpeed, 0, 15),
		halt(0),
	},
	"cgo": {move(CruiseSpeed, 0, CruiseSpeed, 0, 0)},
	"turnAround": {
		halt(200),
		move(0, HighSpeed, HighSpeed, 0, 1200),
		halt(200),
		move(RegularSpeed, 0, RegularSpeed, 0, 200),
		halt(0),
	},
}

// Actuator runs scripts one at a time.
type Actuator struct {
	mu      sync.Mutex
	motor   Motor
	scripts map[string]Script
	logger  *zap.Logger
}

// NewActuator returns an Actuator over scripts (DefaultScripts if nil).
func NewActuator(motor Motor, scripts map[string]Script, logger *zap.Logger) *Actuator {
	if scripts == nil {
		scripts = DefaultScripts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Actuator{motor: motor, scripts: scripts, logger: logger.Named("drive")}
}

// Run executes the named script and returns how long it took. If ctx ends
// mid-script the wheels are stopped before returning.
func (a *Actuator) Run(ctx context.Context, action string) (time.Duration, error) {
	script, ok := a.scripts[action]
	if !ok {
		return 0, fmt.Errorf("action %q: %w", action, ErrUnsupported)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	for _, st := range script {
		if err := a.motor.Drive(st.LF, st.LB, st.RF, st.RB); err != nil {
			a.stop()
			return time.Since(start), fmt.Errorf("action %q: %w", action, err)
		}
		if st.Hold <= 0 {
			continue
		}

		timer := time.NewTimer(st.Hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.stop()
			return time.Since(start), ctx.Err()
		case <-timer.C:
		}
	}

	elapsed := time.Since(start)
	a.logger.Debug("action done", zap.String("action", action), zap.Duration("elapsed", elapsed))
	return elapsed, nil
}

func (a *Actuator) stop() {
	if err := a.motor.Drive(0, 0, 0, 0); err != nil {
		a.logger.Error("failed to stop wheels", zap.Error(err))
	}
}

// LogMotor records wheel commands instead of driving hardware.
type LogMotor struct {
	Logger *zap.Logger
}

// Drive implements Motor.
func (m LogMotor) Drive(lf, lb, rf, rb int) error {
	if m.Logger != nil {
		m.Logger.Info("wheels", zap.Int("lf", lf), zap.Int("lb", lb), zap.Int("rf", rf), zap.Int("rb", rb))
	}
	return nil
}
