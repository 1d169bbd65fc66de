package service

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cwrk-planet/coop-relay/internal/domain"
)

// WorldConfig — константы генерации пеллетов.
type WorldConfig struct {
	Size         float64       // мир [0, Size] x [0, Size]
	TickInterval time.Duration // период тика комнаты
	NearRadius   float64       // радиус вокруг известного игрока
	NearChance   float64       // вероятность спавна рядом с игроком
	BonusChance  float64
	SpawnMin     int
	SpawnMax     int
	SpawnFactor  float64 // count = round((members+1) * SpawnFactor)
}

func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Size:         4200,
		TickInterval: 140 * time.Millisecond,
		NearRadius:   900,
		NearChance:   0.75,
		BonusChance:  0.08,
		SpawnMin:     3,
		SpawnMax:     8,
		SpawnFactor:  1.5,
	}
}

// World synthesizes pellet spawns for rooms. Each room gets its own Run
// goroutine and random source; the result goes to the room host only.
type World struct {
	cfg     WorldConfig
	newRand func() *rand.Rand
}

func NewWorld(cfg WorldConfig) *World {
	return &World{
		cfg: cfg,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
}

func (w *World) Config() WorldConfig { return w.cfg }

// Run ticks until ctx is cancelled.
func (w *World) Run(ctx context.Context, r *Room) {
	rng := w.newRand()
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	slog.Debug("world scheduler started", "room", r.Name(), "every", w.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Debug("world scheduler stopped", "room", r.Name())
			return
		case <-ticker.C:
			w.Tick(r, rng)
		}
	}
}

// Tick sends one spawn_pellets batch to the host and returns its size.
// An emptied or host-less room is a no-op: the tick may fire between the last
// leave and the scheduler's cancellation.
func (w *World) Tick(r *Room, rng *rand.Rand) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed || len(r.members) == 0 {
		return 0
	}
	host := r.hostLocked()
	if host == nil {
		return 0
	}

	pellets := w.SpawnPellets(rng, len(r.members), r.players)
	payload, err := domain.Encode(domain.NewSpawnPellets(pellets))
	if err != nil {
		slog.Warn("world encode failed", "room", r.name, "err", err)
		return 0
	}
	if err := host.conn.Send(payload); err != nil {
		slog.Debug("world send skipped", "room", r.name, "host", host.id, "err", err)
		return 0
	}
	return len(pellets)
}

// SpawnCount = clamp(round((members+1) * factor), min, max).
func (w *World) SpawnCount(members int) int {
	n := int(math.Round(float64(members+1) * w.cfg.SpawnFactor))
	return min(max(n, w.cfg.SpawnMin), w.cfg.SpawnMax)
}

// SpawnPellets places SpawnCount pellets. With NearChance (and at least one
// known position) a pellet lands uniformly inside the NearRadius disk around a
// random player, otherwise uniformly in the world. Coordinates are clamped to
// the world bounds.
func (w *World) SpawnPellets(rng *rand.Rand, members int, players []domain.Position) []domain.Pellet {
	count := w.SpawnCount(members)
	size := w.cfg.Size

	pellets := make([]domain.Pellet, 0, count)
	for range count {
		var x, y float64
		if len(players) > 0 && rng.Float64() < w.cfg.NearChance {
			p := players[rng.IntN(len(players))]
			angle := rng.Float64() * 2 * math.Pi
			dist := w.cfg.NearRadius * math.Sqrt(rng.Float64())
			x = clamp(p.X+math.Cos(angle)*dist, 0, size)
			y = clamp(p.Y+math.Sin(angle)*dist, 0, size)
		} else {
			x = rng.Float64() * size
			y = rng.Float64() * size
		}
		pellets = append(pellets, domain.Pellet{
			X:     x,
			Y:     y,
			Bonus: rng.Float64() < w.cfg.BonusChance,
		})
	}
	return pellets
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
