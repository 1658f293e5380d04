package actor

import (
	"errors"
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/batteryopt2mqtt/internal/adapter/actor"
	"github.com/berfenger/batteryopt2mqtt/internal/config"
	"github.com/berfenger/batteryopt2mqtt/internal/core/domain"
	"github.com/berfenger/batteryopt2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func healthCheck(ctx *actor.RootContext, pid *actor.PID) (*domain.ActorHealthResponse, error) {
	resp, err := ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	if err != nil {
		return nil, err
	}
	hcr, ok := resp.(domain.ActorHealthResponse)
	if !ok {
		return nil, errors.New("unexpected response type")
	}
	return &hcr, nil
}

func testBattery(t *testing.T, cfg config.Config) domain.BatteryConfig {
	battery, err := domain.NewBatteryConfig(cfg.Battery.Spec())
	require.NoError(t, err)
	return battery
}

func spawnModbus(ctx *actor.RootContext, inv sunspec_modbus.StorageInverter, logger *zap.Logger) *actor.PID {
	props := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewModbusActor(inv, logger)
	})
	return ctx.Spawn(props)
}

// planRecorder spawns an actor that records the PlanUpdated messages it gets.
func planRecorder(ctx *actor.RootContext) (*actor.PID, chan *domain.PlanSnapshot) {
	plans := make(chan *domain.PlanSnapshot, 16)
	pid := ctx.Spawn(actor.PropsFromFunc(func(c actor.Context) {
		if msg, ok := c.Message().(domain.PlanUpdated); ok {
			plans <- msg.Snapshot
		}
	}))
	return pid, plans
}

// eventRecorder keeps every event published on the stream.
type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func recordEvents(es *eventstream.EventStream) *eventRecorder {
	rec := &eventRecorder{}
	es.Subscribe(func(evt any) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.events = append(rec.events, evt)
	})
	return rec
}

func (r *eventRecorder) sensor(id string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last any
	for _, e := range r.events {
		if s, ok := e.(domain.SensorUpdateEvent); ok && s.SensorId() == id {
			last = e
		}
	}
	return last
}

func (r *eventRecorder) count(match func(any) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if match(e) {
			n++
		}
	}
	return n
}

func testForecast(start time.Time, prices ...float64) domain.Forecast {
	pv := make([]float64, len(prices))
	cons := make([]float64, len(prices))
	for i := range cons {
		cons[i] = 0.5
	}
	return domain.Forecast{
		Start:                      start,
		IntervalMinutes:            15,
		Prices:                     prices,
		PV:                         pv,
		Consumption:                cons,
		PVIntervalMinutes:          15,
		ConsumptionIntervalMinutes: 15,
	}
}
