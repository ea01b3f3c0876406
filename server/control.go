package server

import (
	"fmt"

	"go.uber.org/zap"

	"winerp/message"
)

// control answers requests addressed to the broker itself.
func (s *Server) control(sess *session, req *message.Message) {
	var reply *message.Message
	switch req.Route {
	case message.RoutePeers:
		names := s.dir.names()
		peers := make([]any, len(names))
		for i, name := range names {
			peers[i] = name
		}
		reply = req.Reply(message.Payload{"peers": peers})
	case message.RoutePing:
		reply = req.Reply(message.Payload{"pong": true})
	default:
		reply = req.Fail(message.CodeRouteNotFound, fmt.Sprintf("broker has no route %q", req.Route))
	}
	if !sess.deliver(reply, "") {
		s.logger.Debug("control reply dropped", zap.String("peer", sess.name), zap.String("route", req.Route))
	}
}
