package actions

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dhruvsoni1802/browser-hub/internal/engine"
)

// Human paces input so it looks typed and scrolled by a person
type Human struct {
	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(time.Duration)
}

// NewHuman returns pacing backed by a time-seeded source
func NewHuman() *Human {
	seed := uint64(time.Now().UnixNano())
	return &Human{
		rng:   rand.New(rand.NewPCG(seed, seed>>1)),
		sleep: time.Sleep,
	}
}

// between returns a duration in [min, max]
func (h *Human) between(min, max time.Duration) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if max <= min {
		return min
	}
	return min + time.Duration(h.rng.Int64N(int64(max-min)+1))
}

func (h *Human) chance(p float64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64() < p
}

func (h *Human) intBetween(min, max int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return min + h.rng.IntN(max-min+1)
}

// Pause sleeps for a random duration in [min, max]
func (h *Human) Pause(min, max time.Duration) {
	h.sleep(h.between(min, max))
}

// Type clicks the field and then types one key at a time with jittered delays
func (h *Human) Type(page engine.Page, selector, text string, clickTimeout time.Duration) error {
	if err := page.Click(selector, clickTimeout); err != nil {
		return err
	}

	for _, r := range text {
		if err := page.Type(string(r), h.between(50*time.Millisecond, 150*time.Millisecond)); err != nil {
			return err
		}
		// an occasional longer thinking pause
		if h.chance(0.1) {
			h.Pause(200*time.Millisecond, 500*time.Millisecond)
		}
	}
	return nil
}

// Scroll wheels down in 2 to 5 uneven steps and returns the distance covered
func (h *Human) Scroll(page engine.Page) (float64, error) {
	steps := h.intBetween(2, 5)
	total := 0.0
	for i := 0; i < steps; i++ {
		amount := float64(h.intBetween(100, 400))
		if err := page.Wheel(0, amount); err != nil {
			return total, err
		}
		total += amount
		h.Pause(300*time.Millisecond, time.Second)
	}
	return total, nil
}
