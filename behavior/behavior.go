// Package behavior produces randomized interaction sequences (pointer
// paths, typing cadence, scroll and read pauses) to reduce automation
// fingerprinting. These are best-effort realism heuristics: callers
// log failures and continue; nothing here may abort a scrape.
package behavior

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
	"unicode"

	"github.com/use-agent/harvester/browser"
)

// ScrollSpeed selects the wheel-step delay profile.
type ScrollSpeed int

const (
	ScrollSlow ScrollSpeed = iota
	ScrollMedium
	ScrollFast
)

// scrollProfile is the per-step delay range for a scroll speed.
type scrollProfile struct {
	stepSize int // wheel delta per step, px
	minDelay time.Duration
	maxDelay time.Duration
}

var scrollProfiles = map[ScrollSpeed]scrollProfile{
	ScrollSlow:   {stepSize: 60, minDelay: 80 * time.Millisecond, maxDelay: 160 * time.Millisecond},
	ScrollMedium: {stepSize: 120, minDelay: 40 * time.Millisecond, maxDelay: 90 * time.Millisecond},
	ScrollFast:   {stepSize: 240, minDelay: 15 * time.Millisecond, maxDelay: 40 * time.Millisecond},
}

// Simulator drives human-like interaction primitives on a session.
// Each simulator tracks its own pointer position; it is not safe for
// concurrent use (a session is driven by one scrape call at a time).
type Simulator struct {
	rng   *rand.Rand
	sleep func(context.Context, time.Duration)

	// last known pointer position
	px float64
	py float64
}

// NewSimulator creates a Simulator with its own random source.
func NewSimulator() *Simulator {
	return &Simulator{
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// durBetween picks a random duration in [min, max).
func (s *Simulator) durBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Int64N(int64(max-min)))
}

// MoveTo moves the pointer to (x, y) along a cubic-bezier multi-step
// path with per-step randomized delay, rather than an instantaneous
// jump.
func (s *Simulator) MoveTo(ctx context.Context, sess browser.Session, x, y float64) error {
	steps := 10 + s.rng.IntN(21) // 10-30 steps
	path := bezierPath(s.rng, point{s.px, s.py}, point{x, y}, steps)

	for _, p := range path {
		if err := sess.MoveMouse(ctx, p.x, p.y); err != nil {
			return err
		}
		s.sleep(ctx, s.durBetween(10*time.Millisecond, 30*time.Millisecond))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	s.px, s.py = x, y
	return nil
}

// Click moves to a randomized point within the target's bounds and
// clicks, with randomized delay before and after the press.
func (s *Simulator) Click(ctx context.Context, sess browser.Session, selector string) error {
	box, ok := sess.ElementBox(ctx, selector)
	if !ok {
		slog.Debug("click target not found, skipping", "selector", selector)
		return nil
	}

	// Aim inside the central 60% of the box; humans rarely click edges.
	x := box.X + box.Width*(0.2+0.6*s.rng.Float64())
	y := box.Y + box.Height*(0.2+0.6*s.rng.Float64())

	if err := s.MoveTo(ctx, sess, x, y); err != nil {
		return err
	}
	s.sleep(ctx, s.durBetween(50*time.Millisecond, 200*time.Millisecond))
	if err := sess.Click(ctx, x, y); err != nil {
		return err
	}
	s.sleep(ctx, s.durBetween(100*time.Millisecond, 300*time.Millisecond))
	return nil
}

// Type emits text one character at a time at 50-150ms per character.
// Each alphabetic character has a 5% chance of a typo-and-correct
// (wrong adjacent key followed by backspace) and an independent 10%
// chance of an extended thinking pause.
func (s *Simulator) Type(ctx context.Context, sess browser.Session, text string) error {
	for _, c := range text {
		if unicode.IsLetter(c) && c < 128 && s.rng.Float64() < 0.05 {
			wrong := adjacentKey(s.rng, unicode.ToLower(c))
			if err := sess.InsertText(ctx, string(wrong)); err != nil {
				return err
			}
			s.sleep(ctx, s.durBetween(100*time.Millisecond, 300*time.Millisecond))
			if err := sess.PressBackspace(ctx); err != nil {
				return err
			}
			s.sleep(ctx, s.durBetween(50*time.Millisecond, 150*time.Millisecond))
		}

		if err := sess.InsertText(ctx, string(c)); err != nil {
			return err
		}
		s.sleep(ctx, s.durBetween(50*time.Millisecond, 150*time.Millisecond))

		if s.rng.Float64() < 0.10 {
			s.sleep(ctx, s.durBetween(200*time.Millisecond, 500*time.Millisecond))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// Scroll covers the distance in stepped wheel deltas with per-step
// delays from the speed profile. Negative distance scrolls up.
func (s *Simulator) Scroll(ctx context.Context, sess browser.Session, distance int, speed ScrollSpeed) error {
	profile, ok := scrollProfiles[speed]
	if !ok {
		profile = scrollProfiles[ScrollMedium]
	}

	remaining := distance
	dir := 1
	if remaining < 0 {
		dir = -1
		remaining = -remaining
	}

	for remaining > 0 {
		step := profile.stepSize
		if step > remaining {
			step = remaining
		}
		if err := sess.Scroll(ctx, 0, float64(dir*step)); err != nil {
			return err
		}
		remaining -= step
		s.sleep(ctx, s.durBetween(profile.minDelay, profile.maxDelay))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// SimulateReading issues periodic small scrolls over the duration, with
// occasional longer pauses as if something interesting held attention.
func (s *Simulator) SimulateReading(ctx context.Context, sess browser.Session, duration time.Duration) error {
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if err := s.Scroll(ctx, sess, 80+s.rng.IntN(140), ScrollSlow); err != nil {
			return err
		}
		pause := s.durBetween(800*time.Millisecond, 2*time.Second)
		if s.rng.Float64() < 0.2 {
			// Interesting content: linger.
			pause = s.durBetween(3*time.Second, 6*time.Second)
		}
		s.sleep(ctx, pause)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// RandomInteractions runs 1-3 randomly chosen interactions in sequence:
// a scroll, an idle wait, a random pointer move, or a short read.
func (s *Simulator) RandomInteractions(ctx context.Context, sess browser.Session) error {
	count := 1 + s.rng.IntN(3)
	w, h := sess.Viewport()

	for i := 0; i < count; i++ {
		var err error
		switch s.rng.IntN(4) {
		case 0:
			err = s.Scroll(ctx, sess, 200+s.rng.IntN(400), ScrollMedium)
		case 1:
			s.sleep(ctx, s.durBetween(500*time.Millisecond, 2*time.Second))
		case 2:
			x := float64(s.rng.IntN(max(w, 1)))
			y := float64(s.rng.IntN(max(h, 1)))
			err = s.MoveTo(ctx, sess, x, y)
		case 3:
			err = s.SimulateReading(ctx, sess, s.durBetween(2*time.Second, 4*time.Second))
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}
