package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nswire/nswire"
	"github.com/nswire/nswire/internal/protocol"
)

// Channel naming is a versioned wire contract shared by every instance.
// Namespace paths translate '/' to ':'; the translation is reversible
// because ':' is rejected inside literal path segments.
const (
	channelPrefix   = "nswire:ns:"
	presenceChannel = "nswire:presence"
)

func channelForPath(path string) string {
	return channelPrefix + strings.ReplaceAll(strings.TrimPrefix(path, "/"), "/", ":")
}

func pathForChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return "", false
	}
	return "/" + strings.ReplaceAll(strings.TrimPrefix(channel, channelPrefix), ":", "/"), true
}

// remoteEnvelope is the cross-instance payload. The instance id guards
// against a process re-delivering its own publication.
type remoteEnvelope struct {
	Instance string         `json:"instance"`
	Payload  map[string]any `json:"payload"`
}

// instanceHeartbeat is published on the presence channel every
// instanceRegistryInterval.
type instanceHeartbeat struct {
	ID      string    `json:"id"`
	Address string    `json:"address"`
	At      time.Time `json:"at"`
}

// Broadcast fans data out to every local client of the namespace and, when a
// transport is available, publishes the same payload for other instances.
// Ordering across instances broadcasting concurrently is not guaranteed.
func (s *Server) Broadcast(ctx context.Context, path string, data map[string]any, sender *nswire.Ctx) error {
	ns, ok := s.registry.Get(path)
	if !ok {
		s.log.Error("broadcast to unknown namespace", zap.String("path", path))
		return errors.New(nswire.ErrUnknownNamespace + ": " + path)
	}

	payload := buildPayload(data, sender)
	if err := s.fanOut(ns, payload); err != nil {
		return err
	}
	s.publishRemote(ctx, path, payload)
	return nil
}

// SendToClient unicasts to one client. Absent or closed clients make this a
// logged no-op.
func (s *Server) SendToClient(ctx context.Context, clientID, path string, data map[string]any, sender *nswire.Ctx) error {
	ns, ok := s.registry.Get(path)
	if !ok {
		s.log.Error("send to unknown namespace", zap.String("path", path), zap.String("client", clientID))
		return nil
	}
	c, ok := ns.client(clientID)
	if !ok || !c.IsAlive() {
		s.log.Error(nswire.ErrClientNotFound,
			zap.String("path", path), zap.String("client", clientID))
		return nil
	}

	frame, err := protocol.EncodeSuccess(buildPayload(data, sender))
	if err != nil {
		return err
	}
	if err := c.Send(frame); err != nil {
		s.log.Warn("unicast send failed", zap.String("client", clientID), zap.Error(err))
	}
	return nil
}

// buildPayload merges data with the sanitized sender context. A nil sender
// resolves to the system identity; ctx is therefore never absent in a
// delivered payload.
func buildPayload(data map[string]any, sender *nswire.Ctx) map[string]any {
	if sender == nil {
		sender = nswire.DefaultCtx()
	}
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["ctx"] = sender.Public()
	return out
}

// fanOut serializes once and delivers to every open local connection.
func (s *Server) fanOut(ns *Namespace, payload map[string]any) error {
	frame, err := protocol.EncodeSuccess(payload)
	if err != nil {
		return err
	}
	for _, c := range ns.snapshot() {
		if !c.IsAlive() {
			continue
		}
		if err := c.Send(frame); err != nil {
			s.log.Warn("broadcast send failed",
				zap.String("path", ns.Path()), zap.String("client", c.ID()), zap.Error(err))
		}
	}
	broadcastsTotal.Inc()
	ns.recordActivity(time.Now())
	s.stats.RecordEvent(ns.Path(), fmt.Sprintf("broadcast bytes=%d clients=%d", len(frame), ns.clientCount()))
	return nil
}

// publishRemote pushes the payload to other instances. Transport failures
// degrade to local-only delivery and are never fatal.
func (s *Server) publishRemote(ctx context.Context, path string, payload map[string]any) {
	if s.transport == nil {
		return
	}
	if !s.transport.IsAvailable(ctx) {
		s.log.Debug("transport unavailable, broadcast stays local", zap.String("path", path))
		return
	}
	raw, err := json.Marshal(remoteEnvelope{Instance: s.instanceID, Payload: payload})
	if err != nil {
		s.log.Error("encoding remote envelope", zap.Error(err))
		return
	}
	if err := s.transport.Publish(ctx, channelForPath(path), raw); err != nil {
		s.log.Warn("remote publish failed, broadcast stays local",
			zap.String("path", path), zap.Error(err))
	}
}

// subscribeRemote registers the per-process transport callbacks: one for
// namespace fan-out, one for presence heartbeats. Safe to call once.
func (s *Server) subscribeRemote(ctx context.Context) {
	if s.transport == nil {
		return
	}
	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return
	}
	s.subscribed = true
	s.mu.Unlock()

	if err := s.transport.Subscribe(ctx, channelPrefix+"*", s.handleRemote); err != nil {
		s.log.Warn("subscribing to namespace channels failed, running single-instance", zap.Error(err))
	}
	if err := s.transport.Subscribe(ctx, presenceChannel, s.handlePresence); err != nil {
		s.log.Warn("subscribing to presence channel failed", zap.Error(err))
	}
}

// handleRemote delivers a remote publication to local clients. Payloads
// carrying this instance's id were already fanned out locally and are
// dropped.
func (s *Server) handleRemote(channel string, raw []byte) {
	path, ok := pathForChannel(channel)
	if !ok {
		return
	}
	var env remoteEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn("malformed remote envelope", zap.String("channel", channel), zap.Error(err))
		return
	}
	if env.Instance == s.instanceID {
		return
	}
	ns, ok := s.registry.Get(path)
	if !ok {
		// This instance has no clients here (e.g. an unmaterialized
		// pattern path); nothing to deliver.
		return
	}
	if err := s.fanOut(ns, env.Payload); err != nil {
		s.log.Warn("remote fan-out failed", zap.String("path", path), zap.Error(err))
	}
}

// handlePresence records a heartbeat from another instance.
func (s *Server) handlePresence(_ string, raw []byte) {
	var hb instanceHeartbeat
	if err := json.Unmarshal(raw, &hb); err != nil {
		s.log.Warn("malformed instance heartbeat", zap.Error(err))
		return
	}
	s.instances.Observe(nswire.Instance{
		ID:       hb.ID,
		Address:  hb.Address,
		LastSeen: hb.At,
		Status:   "online",
	})
}

// heartbeatLoop advertises this instance on the presence channel.
func (s *Server) heartbeatLoop(ctx context.Context) {
	if s.transport == nil {
		return
	}
	ticker := time.NewTicker(s.cfg.InstanceRegistryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.transport.IsAvailable(ctx) {
				continue
			}
			raw, err := json.Marshal(instanceHeartbeat{ID: s.instanceID, Address: s.cfg.Addr, At: now})
			if err != nil {
				continue
			}
			if err := s.transport.Publish(ctx, presenceChannel, raw); err != nil {
				s.log.Debug("instance heartbeat failed", zap.Error(err))
			}
		}
	}
}
