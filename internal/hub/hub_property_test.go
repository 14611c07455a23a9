package hub

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"

	"github.com/craft-console/backend/internal/model"
)

func TestBroadcastDeliveryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Every registered subscriber receives every broadcast line exactly once,
	// in broadcast order.
	properties.Property("each subscriber sees every line once, in order", prop.ForAll(
		func(numClients int, texts []string) bool {
			h := New(zap.NewNop().Sugar())
			defer h.Close()

			subs := make([]*Subscriber, numClients)
			for i := range subs {
				subs[i] = h.Register()
			}

			for _, text := range texts {
				h.Broadcast(model.LogLine{Source: model.SourceStdout, Text: text})
			}

			for _, sub := range subs {
				for _, want := range texts {
					got, ok := <-sub.Lines()
					if !ok || got.Text != want {
						return false
					}
				}
				// No extra deliveries are pending
				select {
				case <-sub.Lines():
					return false
				default:
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.SliceOfN(20, gen.AnyString()),
	))

	// A subscriber whose channel is torn down never affects delivery to the
	// remaining subscribers.
	properties.Property("dead subscriber is invisible to the others", prop.ForAll(
		func(numDead int, text string) bool {
			h := New(zap.NewNop().Sugar())
			defer h.Close()

			for i := 0; i < numDead; i++ {
				h.Register().close()
			}
			alive := h.Register()

			h.Broadcast(model.LogLine{Source: model.SourceStdout, Text: text})

			got, ok := <-alive.Lines()
			if !ok || got.Text != text {
				return false
			}
			return h.ClientCount() == 1
		},
		gen.IntRange(1, 5),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
