package realtime

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// healthLoop is the single process-wide keepalive timer.
func (s *Server) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

// sweep pings every idle client and evicts the unresponsive ones. A client
// whose last pong is older than pongTimeout+pingInterval is torn down
// through the same path as a clean close; the disconnect handler sees no
// difference. Send failures never abort the sweep.
func (s *Server) sweep(now time.Time) {
	threshold := s.cfg.PongTimeout + s.cfg.PingInterval
	for _, ns := range s.registry.All() {
		for _, c := range ns.snapshot() {
			if now.Sub(c.LastPong()) > threshold {
				s.log.Info("evicting unresponsive client",
					zap.String("client", c.ID()), zap.String("path", ns.Path()),
					zap.Time("lastPong", c.LastPong()))
				evictionsTotal.Inc()
				s.teardown(ns, c, websocket.CloseGoingAway, "keepalive timeout")
				continue
			}
			if err := c.Ping(); err != nil {
				s.log.Debug("ping failed", zap.String("client", c.ID()), zap.Error(err))
			}
		}
	}
}
